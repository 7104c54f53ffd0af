package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// doneSentinel is the literal terminal frame of the chat stream. It is sent
// exactly once, success or failure, and is not JSON.
const doneSentinel = "[DONE]"

// tokenFrame carries the keep-alive frame (empty token) and per-token frames.
type tokenFrame struct {
	Data string `json:"data"`
}

// sourcesFrame carries the retrieved source chunks after a successful run.
type sourcesFrame struct {
	SourceDocs []sourceDoc `json:"sourceDocs"`
}

// sourceDoc is the wire form of one retrieved chunk.
type sourceDoc struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

// sseWriter writes data-only SSE frames, flushing after each one so tokens
// reach the client as they are produced.
type sseWriter struct {
	w       io.Writer
	flusher http.Flusher
}

// newSSEWriter sets the event-stream headers and verifies flushing support.
// Call before any body write.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("response writer does not support streaming")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	return &sseWriter{w: w, flusher: flusher}, nil
}

// sendJSON writes one "data: <json>" frame and flushes.
func (s *sseWriter) sendJSON(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	return s.sendRaw(string(data))
}

// sendRaw writes one "data: <payload>" frame verbatim and flushes.
func (s *sseWriter) sendRaw(payload string) error {
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	s.flusher.Flush()
	return nil
}
