package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// streamBufferSize absorbs token bursts while the consumer renders.
// Tokens are small, so the buffered memory stays in the kilobytes.
const streamBufferSize = 100

// maxFrameSize bounds a single SSE line; the sources frame carries whole
// chunk bodies and can run long.
const maxFrameSize = 1 << 20

// doneSentinel terminates every chat stream, error paths included.
const doneSentinel = "[DONE]"

// ChatRequest is the body of a chat call. History rides along with every
// request; the server records it but answers from retrieved context only.
type ChatRequest struct {
	Question                string      `json:"question"`
	History                 [][2]string `json:"history"`
	DocumentFilterSelection []string    `json:"documentFilterSelection"`
	DocumentFilterCount     int         `json:"documentFilterCount"`
	FilterEnabled           bool        `json:"filterEnabled"`
}

// SourceDoc is one retrieved chunk attached to an answer.
type SourceDoc struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

// Event is a discriminated union of chat stream events. Exactly one of the
// fields is meaningful per event; the channel closes after Done or Err.
type Event struct {
	// Token is the next answer fragment, in arrival order.
	Token string
	// Sources is the full set of chunks the answer was grounded on.
	// Sent at most once per stream; may be empty but non-nil.
	Sources []SourceDoc
	// Err reports a transport or protocol failure. The stream is dead.
	Err error
	// Done marks normal completion.
	Done bool
}

// Chat posts a question and returns a channel of stream events. The call
// fails fast when the server rejects the request; otherwise events flow
// until Done, an error, or ctx cancellation. The channel is closed when the
// stream ends, and canceling ctx tears the connection down.
func (c *Client) Chat(ctx context.Context, chatReq ChatRequest) (<-chan Event, error) {
	payload, err := json.Marshal(chatReq)
	if err != nil {
		return nil, fmt.Errorf("encoding chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("opening chat stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, fmt.Errorf("opening chat stream: %s: %w", serverMessage(resp.Body), httpStatusErr(resp.StatusCode))
	}

	events := make(chan Event, streamBufferSize)
	go c.readStream(ctx, resp, events)
	return events, nil
}

// readStream scans SSE frames off the response body and forwards them as
// events. It owns the response body and the channel.
func (c *Client) readStream(ctx context.Context, resp *http.Response, events chan<- Event) {
	defer close(events)
	defer resp.Body.Close()

	send := func(ev Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			// Frame separator.
			continue
		case strings.HasPrefix(line, ":"):
			// SSE comment.
			continue
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimPrefix(line, "data:")
			data = strings.TrimPrefix(data, " ")

			if data == doneSentinel {
				send(Event{Done: true})
				return
			}

			ev, ok, err := parseFrame(data)
			if err != nil {
				send(Event{Err: fmt.Errorf("decoding stream frame: %w", err)})
				return
			}
			if !ok {
				// Keepalive.
				continue
			}
			if !send(ev) {
				return
			}
		default:
			c.logger.Warn("unexpected stream line", "line", line)
		}
	}

	// The body ended without the completion sentinel: the connection
	// dropped or the context was canceled mid-stream.
	err := ctx.Err()
	if err == nil {
		err = scanner.Err()
	}
	if err == nil {
		err = fmt.Errorf("stream ended without completion signal")
	}
	select {
	case events <- Event{Err: err}:
	default:
	}
}

// parseFrame decodes one data payload into an event. ok is false for
// keepalive frames, which carry an empty token and nothing else.
func parseFrame(data string) (ev Event, ok bool, err error) {
	var frame struct {
		Data       *string     `json:"data"`
		SourceDocs []SourceDoc `json:"sourceDocs"`
	}
	if err := json.Unmarshal([]byte(data), &frame); err != nil {
		return Event{}, false, err
	}

	switch {
	case frame.SourceDocs != nil:
		return Event{Sources: frame.SourceDocs}, true, nil
	case frame.Data != nil:
		if *frame.Data == "" {
			return Event{}, false, nil
		}
		return Event{Token: *frame.Data}, true, nil
	default:
		return Event{}, false, nil
	}
}
