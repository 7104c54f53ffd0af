package tui

import (
	"context"
	"fmt"

	tea "charm.land/bubbletea/v2"

	"github.com/docsage/docsage/internal/client"
)

// Stream message types for Bubble Tea
type streamStartedMsg struct {
	eventCh <-chan client.Event
	cancel  context.CancelFunc
}

type streamTokenMsg struct {
	token string
}

type streamSourcesMsg struct {
	sources []client.SourceDoc
}

type streamDoneMsg struct{}

type streamErrorMsg struct {
	err error
}

// startStream creates a command that opens the chat stream. The request is
// captured at creation time so the command closure reads no model state.
//
// Goroutine lifecycle: the reader goroutine inside client.Chat exits when:
//  1. The completion sentinel arrives
//  2. Context is canceled (cancel() called)
//  3. The connection drops or a frame fails to decode
//
// Channel closure signals completion - no WaitGroup needed.
func (m *Model) startStream(req client.ChatRequest) tea.Cmd {
	api := m.api
	parent := m.ctx
	return func() tea.Msg {
		// Create context with timeout to prevent indefinite hangs
		ctx, cancel := context.WithTimeout(parent, streamTimeout)

		// Re-read the server-side filter flag before submitting so the
		// request reflects a flag flipped elsewhere since startup.
		if enabled, err := api.Filter(ctx); err == nil {
			req.FilterEnabled = enabled
			if !enabled {
				req.DocumentFilterSelection = nil
				req.DocumentFilterCount = 0
			}
		}

		eventCh, err := api.Chat(ctx, req)
		if err != nil {
			cancel()
			return streamErrorMsg{err: err}
		}

		return streamStartedMsg{
			eventCh: eventCh,
			cancel:  cancel,
		}
	}
}

// listenForStream creates a command to wait for the next stream event.
// Uses single union channel - no complex multi-channel select needed.
func listenForStream(eventCh <-chan client.Event) tea.Cmd {
	return func() tea.Msg {
		if eventCh == nil {
			return nil
		}

		for {
			event, ok := <-eventCh
			if !ok {
				// Channel closed without an event - stream ended
				return streamErrorMsg{err: fmt.Errorf("stream ended without completion signal")}
			}

			// Discriminated union dispatch
			switch {
			case event.Err != nil:
				return streamErrorMsg{err: event.Err}
			case event.Done:
				return streamDoneMsg{}
			case event.Sources != nil:
				return streamSourcesMsg{sources: event.Sources}
			case event.Token != "":
				return streamTokenMsg{token: event.Token}
			default:
				// Empty event - loop instead of recursing
				continue
			}
		}
	}
}
