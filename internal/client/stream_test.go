package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// sseHandler writes the given data payloads as SSE frames and optionally
// terminates with the completion sentinel.
func sseHandler(t *testing.T, payloads []string, sendDone bool) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/chat" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, p := range payloads {
			fmt.Fprintf(w, "data: %s\n\n", p)
			flusher.Flush()
		}
		if sendDone {
			fmt.Fprintf(w, "data: %s\n\n", doneSentinel)
			flusher.Flush()
		}
	}
}

func collect(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("timed out waiting for stream events, got %d so far", len(out))
		}
	}
}

func TestChatStream(t *testing.T) {
	t.Run("tokens sources and done arrive in order", func(t *testing.T) {
		payloads := []string{
			`{"data":""}`,
			`{"data":"The "}`,
			`{"data":"answer."}`,
			`{"sourceDocs":[{"content":"chunk text","metadata":{"documentName":"guide.pdf","page":"3"}}]}`,
		}
		srv := httptest.NewServer(sseHandler(t, payloads, true))
		defer srv.Close()

		c := New(srv.URL, discardLogger())
		events, err := c.Chat(context.Background(), ChatRequest{Question: "q"})
		if err != nil {
			t.Fatalf("Chat() error = %v", err)
		}

		got := collect(t, events)
		if len(got) != 4 {
			t.Fatalf("got %d events, want 4 (keepalive skipped): %+v", len(got), got)
		}

		var answer strings.Builder
		for _, ev := range got[:2] {
			answer.WriteString(ev.Token)
		}
		if answer.String() != "The answer." {
			t.Errorf("tokens reconstruct %q, want %q", answer.String(), "The answer.")
		}

		sources := got[2].Sources
		if len(sources) != 1 || sources[0].Metadata["documentName"] != "guide.pdf" {
			t.Errorf("sources event = %+v", got[2])
		}
		if !got[3].Done {
			t.Errorf("last event = %+v, want Done", got[3])
		}
	})

	t.Run("request body carries question history and filter", func(t *testing.T) {
		var gotReq ChatRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
				t.Errorf("decoding request: %v", err)
			}
			fmt.Fprintf(w, "data: %s\n\n", doneSentinel)
		}))
		defer srv.Close()

		c := New(srv.URL, discardLogger())
		events, err := c.Chat(context.Background(), ChatRequest{
			Question:                "what changed?",
			History:                 [][2]string{{"earlier q", "earlier a"}},
			DocumentFilterSelection: []string{"guide.pdf"},
			DocumentFilterCount:     1,
			FilterEnabled:           true,
		})
		if err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
		collect(t, events)

		if gotReq.Question != "what changed?" {
			t.Errorf("question = %q", gotReq.Question)
		}
		if len(gotReq.History) != 1 || gotReq.History[0][1] != "earlier a" {
			t.Errorf("history = %+v", gotReq.History)
		}
		if !gotReq.FilterEnabled || gotReq.DocumentFilterCount != 1 {
			t.Errorf("filter fields = %+v", gotReq)
		}
	})

	t.Run("empty sources frame still surfaces as event", func(t *testing.T) {
		srv := httptest.NewServer(sseHandler(t, []string{`{"sourceDocs":[]}`}, true))
		defer srv.Close()

		c := New(srv.URL, discardLogger())
		events, err := c.Chat(context.Background(), ChatRequest{Question: "q"})
		if err != nil {
			t.Fatalf("Chat() error = %v", err)
		}

		got := collect(t, events)
		if len(got) != 2 {
			t.Fatalf("got %d events, want 2: %+v", len(got), got)
		}
		if got[0].Sources == nil || len(got[0].Sources) != 0 {
			t.Errorf("first event = %+v, want empty non-nil sources", got[0])
		}
		if !got[1].Done {
			t.Errorf("last event = %+v, want Done", got[1])
		}
	})

	t.Run("rejection fails fast with server message", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"message":"No question in the request"}`)
		}))
		defer srv.Close()

		c := New(srv.URL, discardLogger())
		_, err := c.Chat(context.Background(), ChatRequest{})
		if !errors.Is(err, ErrRejected) {
			t.Fatalf("Chat() error = %v, want ErrRejected", err)
		}
		if !strings.Contains(err.Error(), "No question in the request") {
			t.Errorf("error %q does not carry the server message", err)
		}
	})

	t.Run("dropped connection yields error event", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, "data: {\"data\":\"partial\"}\n\n")
			w.(http.Flusher).Flush()
			// Close without the sentinel.
		}))
		defer srv.Close()

		c := New(srv.URL, discardLogger())
		events, err := c.Chat(context.Background(), ChatRequest{Question: "q"})
		if err != nil {
			t.Fatalf("Chat() error = %v", err)
		}

		got := collect(t, events)
		if len(got) != 2 {
			t.Fatalf("got %d events, want token then error: %+v", len(got), got)
		}
		if got[0].Token != "partial" {
			t.Errorf("first event = %+v, want token", got[0])
		}
		if got[1].Err == nil {
			t.Errorf("last event = %+v, want error", got[1])
		}
	})

	t.Run("context cancellation tears the stream down", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, "data: {\"data\":\"first\"}\n\n")
			w.(http.Flusher).Flush()
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		ctx, cancel := context.WithCancel(context.Background())
		c := New(srv.URL, discardLogger())
		events, err := c.Chat(ctx, ChatRequest{Question: "q"})
		if err != nil {
			t.Fatalf("Chat() error = %v", err)
		}

		select {
		case ev := <-events:
			if ev.Token != "first" {
				t.Fatalf("first event = %+v, want token", ev)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for first token")
		}

		cancel()

		got := collect(t, events)
		sawErr := false
		for _, ev := range got {
			if ev.Err != nil {
				sawErr = true
				if !errors.Is(ev.Err, context.Canceled) {
					t.Errorf("error event = %v, want context.Canceled", ev.Err)
				}
			}
		}
		if !sawErr {
			t.Error("no error event after cancellation")
		}
	})

	t.Run("malformed frame yields error event", func(t *testing.T) {
		srv := httptest.NewServer(sseHandler(t, []string{`{not json`}, false))
		defer srv.Close()

		c := New(srv.URL, discardLogger())
		events, err := c.Chat(context.Background(), ChatRequest{Question: "q"})
		if err != nil {
			t.Fatalf("Chat() error = %v", err)
		}

		got := collect(t, events)
		if len(got) != 1 || got[0].Err == nil {
			t.Fatalf("got %+v, want single error event", got)
		}
	})
}
