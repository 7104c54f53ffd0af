package corpus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ChunkRow is one row returned by a similarity search.
type ChunkRow struct {
	ID           string
	DocumentName string
	Content      string
	Metadata     []byte
	CreatedAt    time.Time
	Similarity   float32
}

// PGQueries implements Querier against PostgreSQL with the pgvector extension.
type PGQueries struct {
	pool *pgxpool.Pool
}

// NewPGQueries creates a Querier backed by the given connection pool.
func NewPGQueries(pool *pgxpool.Pool) *PGQueries {
	return &PGQueries{pool: pool}
}

var _ Querier = (*PGQueries)(nil)

// UpsertChunk inserts or updates a chunk by ID.
func (q *PGQueries) UpsertChunk(ctx context.Context, arg UpsertChunkParams) error {
	_, err := q.pool.Exec(ctx, `
		INSERT INTO chunks (id, document_name, content, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			document_name = EXCLUDED.document_name,
			content       = EXCLUDED.content,
			embedding     = EXCLUDED.embedding,
			metadata      = EXCLUDED.metadata
	`, arg.ID, arg.DocumentName, arg.Content, arg.Embedding, arg.Metadata)
	if err != nil {
		return fmt.Errorf("upsert chunk: %w", err)
	}
	return nil
}

// SearchChunks runs a cosine-distance ordered similarity search. When
// arg.Documents is non-empty the search is restricted to those documents.
func (q *PGQueries) SearchChunks(ctx context.Context, arg SearchChunksParams) ([]ChunkRow, error) {
	var rows pgx.Rows
	var err error

	if len(arg.Documents) > 0 {
		rows, err = q.pool.Query(ctx, `
			SELECT id, document_name, content, metadata, created_at,
			       1 - (embedding <=> $1::vector) AS similarity
			FROM chunks
			WHERE document_name = ANY($2)
			ORDER BY embedding <=> $1::vector
			LIMIT $3
		`, arg.QueryEmbedding, arg.Documents, arg.ResultLimit)
	} else {
		rows, err = q.pool.Query(ctx, `
			SELECT id, document_name, content, metadata, created_at,
			       1 - (embedding <=> $1::vector) AS similarity
			FROM chunks
			ORDER BY embedding <=> $1::vector
			LIMIT $2
		`, arg.QueryEmbedding, arg.ResultLimit)
	}
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	results := make([]ChunkRow, 0, arg.ResultLimit)
	for rows.Next() {
		var row ChunkRow
		if err := rows.Scan(&row.ID, &row.DocumentName, &row.Content,
			&row.Metadata, &row.CreatedAt, &row.Similarity); err != nil {
			return nil, fmt.Errorf("scan chunk row: %w", err)
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunk rows: %w", err)
	}

	return results, nil
}

// ListDocuments returns distinct document names with their chunk counts,
// ordered by name.
func (q *PGQueries) ListDocuments(ctx context.Context) ([]DocumentInfo, error) {
	rows, err := q.pool.Query(ctx, `
		SELECT document_name, COUNT(*) AS chunk_count
		FROM chunks
		GROUP BY document_name
		ORDER BY document_name
	`)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	docs := make([]DocumentInfo, 0)
	for rows.Next() {
		var doc DocumentInfo
		if err := rows.Scan(&doc.Name, &doc.ChunkCount); err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating document rows: %w", err)
	}

	return docs, nil
}

// DeleteDocument removes all chunks belonging to the named document.
func (q *PGQueries) DeleteDocument(ctx context.Context, documentName string) (int64, error) {
	tag, err := q.pool.Exec(ctx, `DELETE FROM chunks WHERE document_name = $1`, documentName)
	if err != nil {
		return 0, fmt.Errorf("delete document: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountChunks counts all stored chunks.
func (q *PGQueries) CountChunks(ctx context.Context) (int64, error) {
	var count int64
	if err := q.pool.QueryRow(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return count, nil
}

// marshalMetadata serializes chunk metadata to JSON. Nil metadata becomes an
// empty object so the JSONB column never stores SQL NULL.
func marshalMetadata(metadata map[string]string) ([]byte, error) {
	if metadata == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(metadata)
}

// unmarshalMetadata parses the JSONB metadata column.
func unmarshalMetadata(data []byte) (map[string]string, error) {
	metadata := make(map[string]string)
	if len(data) == 0 {
		return metadata, nil
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, err
	}
	return metadata, nil
}
