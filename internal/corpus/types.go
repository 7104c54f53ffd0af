package corpus

import "time"

// VectorDimension is the embedding width of the chunks table
// (vector(768) in the schema). Embedders that produce wider vectors
// must be asked to truncate; see WithEmbedOptions.
const VectorDimension int32 = 768

// Chunk represents one retrievable piece of a source document.
type Chunk struct {
	ID           string            // Unique identifier
	DocumentName string            // Name of the source document this chunk belongs to
	Content      string            // Chunk text content
	Metadata     map[string]string // Optional metadata (page, section, etc.)
	CreatedAt    time.Time         // Creation timestamp
}

// Result represents a single search result with similarity score.
type Result struct {
	Chunk      Chunk
	Similarity float32 // Cosine similarity score (0-1)
}

// SearchOption configures search behavior using the functional options pattern.
type SearchOption func(*searchConfig)

// searchConfig holds internal search configuration.
type searchConfig struct {
	topK      int
	documents []string
	timeout   time.Duration
}

// WithTopK sets the maximum number of results to return.
// Default is 4 if not specified. Zero is honored as-is and yields no results.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		c.topK = k
	}
}

// WithDocuments restricts search to chunks from the named documents.
func WithDocuments(names ...string) SearchOption {
	return func(c *searchConfig) {
		c.documents = append(c.documents, names...)
	}
}

// buildSearchConfig applies search options and returns the final configuration.
func buildSearchConfig(opts []SearchOption) *searchConfig {
	cfg := &searchConfig{
		topK:    4,
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
