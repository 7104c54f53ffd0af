package rag

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/docsage/docsage/internal/corpus"
)

// systemPrompt instructs the model to answer from the retrieved context.
const systemPrompt = `You are a helpful assistant answering questions about a set of documents.
Use the provided context documents to answer the question.
If the context does not contain the answer, say you don't know instead of guessing.`

// fallbackAnswer is returned when the model produces an empty response.
const fallbackAnswer = "I apologize, but I couldn't generate a response. Please try rephrasing your question."

// TokenCallback is called synchronously for each token the model produces,
// in generation order, before Run returns. Returning an error aborts the
// stream.
type TokenCallback func(ctx context.Context, token string) error

// Generator abstracts the model invocation so tests can substitute a fake.
type Generator interface {
	Generate(ctx context.Context, opts ...ai.GenerateOption) (*ai.ModelResponse, error)
}

// GenkitGenerator is the production Generator backed by a Genkit instance.
type GenkitGenerator struct {
	G *genkit.Genkit
}

func (g GenkitGenerator) Generate(ctx context.Context, opts ...ai.GenerateOption) (*ai.ModelResponse, error) {
	return genkit.Generate(ctx, g.G, opts...)
}

// Outcome is the complete result of one chain run: the full answer text and
// the chunks that grounded it, in retrieval order.
type Outcome struct {
	Answer  string
	Sources []corpus.Result
}

// Chain runs retrieval followed by a streaming model invocation.
type Chain struct {
	gen       Generator
	modelName string
	logger    *slog.Logger
}

// NewChain creates a Chain. modelName is the provider-qualified model
// (e.g., "googleai/gemini-2.5-flash").
func NewChain(gen Generator, modelName string, logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		gen:       gen,
		modelName: modelName,
		logger:    logger,
	}
}

// Run retrieves context for the resolved question and streams the model's
// answer through onToken. Any retrieval or model failure is reported as
// ErrGeneration.
//
// The history parameter is accepted for wire compatibility but the model is
// always invoked with only the current question. Conversation pairs are
// collected and transmitted by clients yet never threaded into generation;
// that observed behavior is kept as-is.
func (c *Chain) Run(ctx context.Context, retrieval *Retrieval, history [][2]string, onToken TokenCallback) (*Outcome, error) {
	_ = history // collected and transmitted, never threaded into generation

	sources, err := retrieval.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: retrieving context: %w", ErrGeneration, err)
	}

	opts := []ai.GenerateOption{
		ai.WithSystem(systemPrompt),
		ai.WithMessages(ai.NewUserMessage(ai.NewTextPart(retrieval.Question))),
	}
	if c.modelName != "" {
		opts = append(opts, ai.WithModelName(c.modelName))
	}
	if len(sources) > 0 {
		opts = append(opts, ai.WithDocs(sourcesToDocuments(sources)...))
	}
	if onToken != nil {
		opts = append(opts, ai.WithStreaming(func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
			return onToken(ctx, chunk.Text())
		}))
	}

	c.logger.Debug("invoking model",
		"model", c.modelName,
		"context_chunks", len(sources),
		"question_length", len(retrieval.Question))

	resp, err := c.gen.Generate(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: invoking model: %w", ErrGeneration, err)
	}

	answer := resp.Text()
	if answer == "" {
		answer = fallbackAnswer
	}

	if len(sources) > 0 {
		c.logger.Debug("generation complete",
			"answer_length", len(answer),
			"first_source", sources[0].Chunk.DocumentName,
			"source_count", len(sources))
	} else {
		c.logger.Debug("generation complete", "answer_length", len(answer))
	}

	return &Outcome{
		Answer:  answer,
		Sources: sources,
	}, nil
}

// sourcesToDocuments converts retrieval results into model context documents.
func sourcesToDocuments(sources []corpus.Result) []*ai.Document {
	docs := make([]*ai.Document, 0, len(sources))
	for _, s := range sources {
		metadata := map[string]any{
			"documentName": s.Chunk.DocumentName,
		}
		for k, v := range s.Chunk.Metadata {
			metadata[k] = v
		}
		docs = append(docs, ai.DocumentFromText(s.Chunk.Content, metadata))
	}
	return docs
}
