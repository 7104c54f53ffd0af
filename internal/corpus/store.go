// Package corpus manages document chunks with vector search capabilities.
// It handles embedding generation and similarity search using PostgreSQL + pgvector.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/pgvector/pgvector-go"
)

// Querier defines the interface for database operations on chunks.
// Interfaces are defined by the consumer, not the provider, so Store can be
// tested against a fake without a live database.
type Querier interface {
	// UpsertChunk inserts or updates a chunk.
	UpsertChunk(ctx context.Context, arg UpsertChunkParams) error

	// SearchChunks performs vector similarity search. An empty documents slice
	// means no document filter.
	SearchChunks(ctx context.Context, arg SearchChunksParams) ([]ChunkRow, error)

	// ListDocuments returns distinct document names with chunk counts.
	ListDocuments(ctx context.Context) ([]DocumentInfo, error)

	// DeleteDocument deletes all chunks belonging to a document and reports
	// how many rows were removed.
	DeleteDocument(ctx context.Context, documentName string) (int64, error)

	// CountChunks counts all stored chunks.
	CountChunks(ctx context.Context) (int64, error)
}

// UpsertChunkParams holds the arguments for Querier.UpsertChunk.
type UpsertChunkParams struct {
	ID           string
	DocumentName string
	Content      string
	Embedding    *pgvector.Vector
	Metadata     []byte
}

// SearchChunksParams holds the arguments for Querier.SearchChunks.
type SearchChunksParams struct {
	QueryEmbedding *pgvector.Vector
	Documents      []string
	ResultLimit    int
}

// DocumentInfo describes one stored document.
type DocumentInfo struct {
	Name       string
	ChunkCount int64
}

// Store manages document chunks backed by a vector index.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	queries      Querier
	embedder     ai.Embedder
	embedOptions any
	logger       *slog.Logger
}

// StoreOption configures a Store at construction time.
type StoreOption func(*Store)

// WithEmbedOptions sets provider-specific options forwarded on every embed
// call. The Gemini embedder needs OutputDimensionality set to VectorDimension
// or it returns 3072-dim vectors the chunks table cannot hold.
func WithEmbedOptions(opts any) StoreOption {
	return func(s *Store) {
		s.embedOptions = opts
	}
}

// New creates a new Store instance. A nil logger falls back to slog.Default.
func New(querier Querier, embedder ai.Embedder, logger *slog.Logger, opts ...StoreOption) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		queries:  querier,
		embedder: embedder,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add stores a chunk, embedding its content with the configured embedder.
// Uses UPSERT semantics so re-adding the same chunk ID updates it in place.
func (s *Store) Add(ctx context.Context, chunk Chunk) error {
	embedding, err := s.embed(ctx, chunk.Content)
	if err != nil {
		return fmt.Errorf("embedding chunk %q: %w", chunk.ID, err)
	}

	metadataJSON, err := marshalMetadata(chunk.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling metadata for chunk %q: %w", chunk.ID, err)
	}

	err = s.queries.UpsertChunk(ctx, UpsertChunkParams{
		ID:           chunk.ID,
		DocumentName: chunk.DocumentName,
		Content:      chunk.Content,
		Embedding:    embedding,
		Metadata:     metadataJSON,
	})
	if err != nil {
		return fmt.Errorf("upserting chunk %q: %w", chunk.ID, err)
	}

	s.logger.Debug("added chunk",
		"id", chunk.ID,
		"document", chunk.DocumentName,
		"content_length", len(chunk.Content))
	return nil
}

// Search performs semantic search over stored chunks, ordered by similarity.
// A 10-second query timeout guards against long-running vector searches.
//
// Example usage:
//
//	results, err := store.Search(ctx, "payment retries",
//	    corpus.WithTopK(4),
//	    corpus.WithDocuments("handbook.pdf"))
func (s *Store) Search(ctx context.Context, query string, opts ...SearchOption) ([]Result, error) {
	cfg := buildSearchConfig(opts)

	queryCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	queryEmbedding, err := s.embed(queryCtx, query)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("embedding generation timeout: %w", err)
		}
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	rows, err := s.queries.SearchChunks(queryCtx, SearchChunksParams{
		QueryEmbedding: queryEmbedding,
		Documents:      cfg.documents,
		ResultLimit:    cfg.topK,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("search query timeout: %w", err)
		}
		return nil, fmt.Errorf("searching chunks: %w", err)
	}

	return s.rowsToResults(rows), nil
}

// ListDocuments returns the distinct documents present in the store.
func (s *Store) ListDocuments(ctx context.Context) ([]DocumentInfo, error) {
	docs, err := s.queries.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	return docs, nil
}

// DeleteDocument removes all chunks belonging to the named document.
// Returns the number of chunks removed; zero with a nil error means the
// document was not found.
func (s *Store) DeleteDocument(ctx context.Context, name string) (int64, error) {
	if name == "" {
		return 0, fmt.Errorf("document name must not be empty")
	}

	deleted, err := s.queries.DeleteDocument(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("deleting document %q: %w", name, err)
	}

	s.logger.Debug("deleted document", "name", name, "chunks", deleted)
	return deleted, nil
}

// Count returns the total number of stored chunks.
func (s *Store) Count(ctx context.Context) (int64, error) {
	count, err := s.queries.CountChunks(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return count, nil
}

// embed generates a vector embedding for one piece of text.
func (s *Store) embed(ctx context.Context, text string) (*pgvector.Vector, error) {
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{
			{
				Content: []*ai.Part{ai.NewTextPart(text)},
			},
		},
		Options: s.embedOptions,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}

	vec := pgvector.NewVector(resp.Embeddings[0].Embedding)
	return &vec, nil
}

// rowsToResults converts database rows to business model Results.
func (s *Store) rowsToResults(rows []ChunkRow) []Result {
	results := make([]Result, 0, len(rows))

	for _, row := range rows {
		metadata, err := unmarshalMetadata(row.Metadata)
		if err != nil {
			s.logger.Warn("failed to parse metadata", "chunk_id", row.ID, "error", err)
			metadata = make(map[string]string)
		}

		results = append(results, Result{
			Chunk: Chunk{
				ID:           row.ID,
				DocumentName: row.DocumentName,
				Content:      row.Content,
				Metadata:     metadata,
				CreatedAt:    row.CreatedAt,
			},
			Similarity: row.Similarity,
		})
	}

	return results
}
