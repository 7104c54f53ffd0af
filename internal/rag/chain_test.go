package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/docsage/docsage/internal/corpus"
	"github.com/docsage/docsage/internal/testutil"
)

// failingGenerator always returns the configured error.
type failingGenerator struct {
	err error
}

func (f failingGenerator) Generate(_ context.Context, _ ...ai.GenerateOption) (*ai.ModelResponse, error) {
	return nil, f.err
}

func newMockChain(t *testing.T, mock *testutil.MockLLM) *Chain {
	t.Helper()
	g := genkit.Init(context.Background())
	mock.RegisterModel(g)
	return NewChain(GenkitGenerator{G: g}, "mock/test-model", testutil.DiscardLogger())
}

func seededRetrieval(t *testing.T, rows []corpus.ChunkRow) *Retrieval {
	t.Helper()
	r := newTestResolver(&fakeQuerier{rows: rows}, &fakeEmbedder{})
	retrieval, err := r.Resolve("what is the vacation policy?", Filter{})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	return retrieval
}

func TestChainRun(t *testing.T) {
	t.Run("streams tokens then returns outcome", func(t *testing.T) {
		mock := testutil.NewMockLLM("")
		mock.AddResponse("vacation", "Vacation accrues monthly.")
		chain := newMockChain(t, mock)

		retrieval := seededRetrieval(t, []corpus.ChunkRow{
			{ID: "c1", DocumentName: "handbook.pdf", Content: "Vacation accrues monthly.", Similarity: 0.9},
		})

		var tokens []string
		outcome, err := chain.Run(context.Background(), retrieval, nil,
			func(_ context.Context, token string) error {
				tokens = append(tokens, token)
				return nil
			})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}

		if outcome.Answer != "Vacation accrues monthly." {
			t.Errorf("answer = %q", outcome.Answer)
		}
		if len(tokens) == 0 {
			t.Fatal("no tokens streamed")
		}
		// Concatenated tokens reconstruct the full answer, in order.
		if joined := strings.Join(tokens, ""); joined != outcome.Answer {
			t.Errorf("joined tokens = %q, want %q", joined, outcome.Answer)
		}
		if len(outcome.Sources) != 1 || outcome.Sources[0].Chunk.DocumentName != "handbook.pdf" {
			t.Errorf("sources = %+v", outcome.Sources)
		}
	})

	t.Run("retrieved chunks attached as context docs", func(t *testing.T) {
		mock := testutil.NewMockLLM("answer")
		chain := newMockChain(t, mock)

		retrieval := seededRetrieval(t, []corpus.ChunkRow{
			{ID: "c1", DocumentName: "a.pdf", Content: "alpha"},
			{ID: "c2", DocumentName: "b.pdf", Content: "beta"},
		})

		if _, err := chain.Run(context.Background(), retrieval, nil, nil); err != nil {
			t.Fatalf("Run() error = %v", err)
		}

		calls := mock.Calls()
		if len(calls) != 1 {
			t.Fatalf("calls = %d, want 1", len(calls))
		}
		if calls[0].DocCount != 2 {
			t.Errorf("context docs = %d, want 2", calls[0].DocCount)
		}
		if calls[0].UserMessage != "what is the vacation policy?" {
			t.Errorf("user message = %q", calls[0].UserMessage)
		}
	})

	t.Run("history is not threaded into generation", func(t *testing.T) {
		mock := testutil.NewMockLLM("answer")
		chain := newMockChain(t, mock)

		retrieval := seededRetrieval(t, nil)
		history := [][2]string{{"earlier question", "earlier answer"}}

		if _, err := chain.Run(context.Background(), retrieval, history, nil); err != nil {
			t.Fatalf("Run() error = %v", err)
		}

		calls := mock.Calls()
		if len(calls) != 1 {
			t.Fatalf("calls = %d, want 1", len(calls))
		}
		if strings.Contains(calls[0].UserMessage, "earlier question") {
			t.Error("history leaked into the model request")
		}
	})

	t.Run("empty response falls back", func(t *testing.T) {
		mock := testutil.NewMockLLM("")
		chain := newMockChain(t, mock)

		outcome, err := chain.Run(context.Background(), seededRetrieval(t, nil), nil, nil)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if outcome.Answer != fallbackAnswer {
			t.Errorf("answer = %q, want fallback", outcome.Answer)
		}
	})

	t.Run("retrieval failure reported as generation error", func(t *testing.T) {
		dbErr := errors.New("db down")
		r := newTestResolver(&fakeQuerier{searchErr: dbErr}, &fakeEmbedder{})
		retrieval, err := r.Resolve("question", Filter{})
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}

		chain := NewChain(failingGenerator{err: errors.New("unused")}, "", testutil.DiscardLogger())

		_, err = chain.Run(context.Background(), retrieval, nil, nil)
		if !errors.Is(err, ErrGeneration) {
			t.Errorf("Run() error = %v, want ErrGeneration", err)
		}
		if !errors.Is(err, dbErr) {
			t.Errorf("Run() error = %v, want wrapping %v", err, dbErr)
		}
	})

	t.Run("model failure reported as generation error", func(t *testing.T) {
		modelErr := errors.New("model unavailable")
		chain := NewChain(failingGenerator{err: modelErr}, "", testutil.DiscardLogger())

		_, err := chain.Run(context.Background(), seededRetrieval(t, nil), nil, nil)
		if !errors.Is(err, ErrGeneration) {
			t.Errorf("Run() error = %v, want ErrGeneration", err)
		}
		if !errors.Is(err, modelErr) {
			t.Errorf("Run() error = %v, want wrapping %v", err, modelErr)
		}
	})

	t.Run("token callback error aborts generation", func(t *testing.T) {
		mock := testutil.NewMockLLM("some answer text")
		chain := newMockChain(t, mock)

		abortErr := errors.New("client gone")
		_, err := chain.Run(context.Background(), seededRetrieval(t, nil), nil,
			func(_ context.Context, _ string) error {
				return abortErr
			})
		if err == nil {
			t.Error("Run() error = nil, want abort error")
		}
	})
}
