package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/docsage/docsage/internal/corpus"
	"github.com/docsage/docsage/internal/rag"
)

// chatRequest is the ask endpoint body.
type chatRequest struct {
	Question                string      `json:"question"`
	History                 [][2]string `json:"history"`
	DocumentFilterSelection []string    `json:"documentFilterSelection"`
	DocumentFilterCount     int         `json:"documentFilterCount"`
	FilterEnabled           bool        `json:"filterEnabled"`
}

// chatEvent is the union passed from the generation goroutine to the
// transport writer. Exactly one field is set per event.
type chatEvent struct {
	token   string
	outcome *rag.Outcome
	err     error
}

// chatHandler serves POST /api/chat.
type chatHandler struct {
	resolver *rag.Resolver
	chain    *rag.Chain
	logger   *slog.Logger
}

// stream validates the question, then answers it over a data-only SSE
// stream: an empty-token frame on open, one frame per token, at most one
// sourceDocs frame on success, and the [DONE] sentinel always.
//
// Generation runs in its own goroutine feeding a channel the writer drains,
// so a client disconnect cancels generation through the request context
// instead of leaving the model running against a dead connection.
func (h *chatHandler) stream(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1024*1024)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "No question in the request")
		return
	}

	retrieval, err := h.resolver.Resolve(req.Question, rag.Filter{
		Enabled:   req.FilterEnabled,
		Documents: req.DocumentFilterSelection,
	})
	if err != nil {
		if !errors.Is(err, rag.ErrEmptyQuestion) {
			h.logger.Error("resolving question", "error", err)
		}
		writeMessage(w, http.StatusBadRequest, "No question in the request")
		return
	}

	sw, err := newSSEWriter(w)
	if err != nil {
		h.logger.Error("opening stream", "error", err)
		writeMessage(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	// Stream-is-live signal before any generation work begins.
	if err := sw.sendJSON(tokenFrame{}); err != nil {
		h.logger.Debug("client gone before stream start", "error", err)
		return
	}

	ctx := r.Context()
	events := make(chan chatEvent, 32)

	go h.generate(ctx, retrieval, req.History, events)

	h.writeStream(ctx, sw, events)
}

// generate runs the chain, forwarding tokens and the final outcome (or
// error) to events. Closes events when done. Every send is guarded by ctx
// so a disconnected client stops generation.
func (h *chatHandler) generate(ctx context.Context, retrieval *rag.Retrieval, history [][2]string, events chan<- chatEvent) {
	defer close(events)

	outcome, err := h.chain.Run(ctx, retrieval, history, func(ctx context.Context, token string) error {
		select {
		case events <- chatEvent{token: token}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	ev := chatEvent{outcome: outcome}
	if err != nil {
		ev = chatEvent{err: err}
	}

	select {
	case events <- ev:
	case <-ctx.Done():
	}
}

// writeStream drains events onto the wire. A generation failure is logged
// and swallowed in this one place: no error frame exists in the protocol,
// the sourceDocs frame is omitted, and the sentinel still goes out.
func (h *chatHandler) writeStream(ctx context.Context, sw *sseWriter, events <-chan chatEvent) {
	clientGone := false

	for ev := range events {
		switch {
		case ev.err != nil:
			h.logger.Error("generation failed", "error", ev.err)

		case ev.outcome != nil:
			if clientGone {
				continue
			}
			if len(ev.outcome.Sources) > 0 {
				h.logger.Debug("sending source documents",
					"count", len(ev.outcome.Sources),
					"first_document", ev.outcome.Sources[0].Chunk.DocumentName)
			}
			if err := sw.sendJSON(sourcesFrame{SourceDocs: toSourceDocs(ev.outcome.Sources)}); err != nil {
				h.logger.Debug("client disconnected during stream", "error", err)
				clientGone = true
			}

		default:
			if clientGone {
				continue
			}
			if err := sw.sendJSON(tokenFrame{Data: ev.token}); err != nil {
				h.logger.Debug("client disconnected during stream", "error", err)
				clientGone = true
			}
		}
	}

	if ctx.Err() != nil {
		return
	}
	if err := sw.sendRaw(doneSentinel); err != nil {
		h.logger.Debug("failed to send stream sentinel", "error", err)
	}
}

// toSourceDocs converts retrieval results into their wire form. The
// documentName metadata key is always present; chunk metadata rides along.
func toSourceDocs(sources []corpus.Result) []sourceDoc {
	docs := make([]sourceDoc, 0, len(sources))
	for _, s := range sources {
		metadata := make(map[string]string, len(s.Chunk.Metadata)+1)
		for k, v := range s.Chunk.Metadata {
			metadata[k] = v
		}
		metadata["documentName"] = s.Chunk.DocumentName
		docs = append(docs, sourceDoc{
			Content:  s.Chunk.Content,
			Metadata: metadata,
		})
	}
	return docs
}
