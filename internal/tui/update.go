package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"

	"github.com/docsage/docsage/internal/client"
	"github.com/docsage/docsage/internal/session"
)

// Update implements tea.Model.
//
//nolint:gocognit,gocyclo // Bubble Tea Update requires type switch on all message types
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		// Calculate viewport height: total - input - separators - help
		inputHeight := m.input.Height() + promptLines
		fixedHeight := separatorLines + inputHeight + helpLines
		vpHeight := max(msg.Height-fixedHeight, minViewport)

		m.viewport.SetWidth(msg.Width)
		m.viewport.SetHeight(vpHeight)
		m.input.SetWidth(msg.Width - 4) // Room for "> " prompt
		m.help.SetWidth(msg.Width)
		m.markdown.UpdateWidth(msg.Width)

		// Rebuild viewport content with new dimensions
		m.rebuildViewportContent()
		return m, nil

	case tea.MouseWheelMsg:
		// Forward mouse wheel to viewport for scrolling
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		// Rebuild viewport to update spinner animation during thinking
		if m.state == StateThinking {
			m.rebuildViewportContent()
		}
		return m, cmd

	case filterStateMsg:
		if msg.err != nil {
			m.setNotice(noticeError, "filter state unavailable: "+msg.err.Error())
		} else {
			m.filterEnabled = msg.enabled
		}
		m.rebuildViewportContent()
		return m, nil

	case documentsListedMsg:
		if msg.err != nil {
			m.setNotice(noticeError, "listing documents failed: "+msg.err.Error())
		} else {
			m.setNotice(noticeSystem, renderDocumentList(msg.docs))
		}
		m.rebuildViewportContent()
		m.viewport.GotoBottom()
		return m, nil

	case streamStartedMsg:
		// The user may have canceled while the handshake was in flight.
		if m.state != StateThinking {
			msg.cancel()
			return m, nil
		}
		m.streamCancel = msg.cancel
		m.streamEventCh = msg.eventCh
		m.state = StateStreaming
		// Session was parked in Submitting while the handshake ran.
		if err := m.session.StreamOpened(); err != nil {
			return m.finishWithError(err)
		}
		m.rebuildViewportContent()
		m.viewport.GotoBottom()
		return m, listenForStream(msg.eventCh)

	case streamTokenMsg:
		if err := m.session.AppendToken(msg.token); err != nil {
			return m.finishWithError(err)
		}
		m.rebuildViewportContent()
		m.viewport.GotoBottom()
		return m, listenForStream(m.streamEventCh)

	case streamSourcesMsg:
		if err := m.session.SetSources(toSessionChunks(msg.sources)); err != nil {
			return m.finishWithError(err)
		}
		return m, listenForStream(m.streamEventCh)

	case streamDoneMsg:
		m.state = StateInput
		m.releaseStream()

		// The answer may be empty when generation failed server-side;
		// finalize regardless so the exchange lands in history.
		if err := m.session.Finalize(); err != nil {
			m.session.TransportFailure()
		}
		m.rebuildViewportContent()
		m.viewport.GotoBottom()
		// Re-focus textarea after stream completes
		return m, m.input.Focus()

	case streamErrorMsg:
		return m.finishWithError(msg.err)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// finishWithError tears the stream down, resets the session to idle, and
// surfaces the failure as a notice.
func (m *Model) finishWithError(err error) (tea.Model, tea.Cmd) {
	m.state = StateInput
	m.releaseStream()
	m.session.TransportFailure()

	switch {
	case errors.Is(err, context.Canceled):
		m.setNotice(noticeSystem, "(Canceled)")
	case errors.Is(err, context.DeadlineExceeded):
		m.setNotice(noticeError, "Answer timed out (>5 min). Try a narrower question.")
	default:
		m.setNotice(noticeError, err.Error())
	}
	m.rebuildViewportContent()
	m.viewport.GotoBottom()
	// Re-focus textarea after error
	return m, m.input.Focus()
}

// releaseStream cancels the stream context and detaches the event channel.
func (m *Model) releaseStream() {
	if m.streamCancel != nil {
		m.streamCancel()
		m.streamCancel = nil
	}
	m.streamEventCh = nil
}

// toSessionChunks converts wire source docs into session chunks.
func toSessionChunks(docs []client.SourceDoc) []session.SourceChunk {
	chunks := make([]session.SourceChunk, len(docs))
	for i, d := range docs {
		chunks[i] = session.SourceChunk{
			Content:  d.Content,
			Metadata: d.Metadata,
		}
	}
	return chunks
}

// renderDocumentList formats the /docs output.
func renderDocumentList(docs []client.DocumentInfo) string {
	if len(docs) == 0 {
		return "No documents indexed."
	}
	var b strings.Builder
	b.WriteString("Indexed documents:\n")
	for _, d := range docs {
		fmt.Fprintf(&b, "  %s (%d chunks)\n", d.Name, d.ChunkCount)
	}
	return strings.TrimSuffix(b.String(), "\n")
}
