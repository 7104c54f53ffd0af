// Package rag implements the retrieval-augmented generation pipeline:
// resolving a retrieval handle from the question and filter selection, then
// running retrieval plus streaming model generation over the results.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/docsage/docsage/internal/corpus"
)

// Sentinel errors for the pipeline.
var (
	// ErrEmptyQuestion indicates the question was empty after trimming.
	ErrEmptyQuestion = errors.New("no question in the request")

	// ErrGeneration indicates retrieval or model invocation failed.
	ErrGeneration = errors.New("generation failed")
)

// DefaultTopK is the number of chunks retrieved when no document filter
// is active.
const DefaultTopK = 4

// Filter is the document filter selection sent with a question.
type Filter struct {
	Enabled   bool
	Documents []string
}

// Retrieval is a resolved handle: a sanitized question bound to the search
// options that will produce its context chunks.
type Retrieval struct {
	Question string
	K        int

	store *corpus.Store
	opts  []corpus.SearchOption
}

// Run executes the similarity search for this handle.
func (r *Retrieval) Run(ctx context.Context) ([]corpus.Result, error) {
	return r.store.Search(ctx, r.Question, r.opts...)
}

// Resolver turns a raw question and filter selection into a Retrieval.
type Resolver struct {
	store  *corpus.Store
	topK   int
	logger *slog.Logger
}

// NewResolver creates a Resolver. topK <= 0 falls back to DefaultTopK;
// it applies only when the filter is disabled.
func NewResolver(store *corpus.Store, topK int, logger *slog.Logger) *Resolver {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		store:  store,
		topK:   topK,
		logger: logger,
	}
}

// Resolve validates and sanitizes the question and binds the filter
// selection into search options.
//
// When the filter is enabled, k equals the number of selected documents.
// Zero selected documents therefore yields k=0 and a degenerate empty
// retrieval; the pipeline still runs and the model answers without context.
func (r *Resolver) Resolve(question string, filter Filter) (*Retrieval, error) {
	sanitized := SanitizeQuestion(question)
	if sanitized == "" {
		return nil, fmt.Errorf("resolving question: %w", ErrEmptyQuestion)
	}

	k := r.topK
	opts := []corpus.SearchOption{}
	if filter.Enabled {
		k = len(filter.Documents)
		opts = append(opts, corpus.WithDocuments(filter.Documents...))
	}
	opts = append(opts, corpus.WithTopK(k))

	r.logger.Debug("resolved retrieval",
		"k", k,
		"filter_enabled", filter.Enabled,
		"filter_documents", len(filter.Documents))

	return &Retrieval{
		Question: sanitized,
		K:        k,
		store:    r.store,
		opts:     opts,
	}, nil
}

// SanitizeQuestion trims surrounding whitespace and replaces newline
// characters with single spaces. Embedding providers produce noticeably
// worse vectors for text containing raw newlines.
func SanitizeQuestion(question string) string {
	sanitized := strings.ReplaceAll(question, "\r\n", " ")
	sanitized = strings.ReplaceAll(sanitized, "\n", " ")
	sanitized = strings.ReplaceAll(sanitized, "\r", " ")
	return strings.TrimSpace(sanitized)
}
