package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docsage/docsage/internal/corpus"
	"github.com/docsage/docsage/internal/rag"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger   *slog.Logger
	Resolver *rag.Resolver // Required
	Chain    *rag.Chain    // Required
	Store    *corpus.Store // Required
	Flags    *FlagStore    // Optional: nil creates a fresh flag store
	Pool     *pgxpool.Pool // Optional: nil disables pool ping in /ready

	CORSOrigins []string // Allowed origins for CORS
	TrustProxy  bool     // Trust X-Real-IP/X-Forwarded-For headers
	RateBurst   int      // Rate limiter burst size per IP (0 = default 60)
}

// Server is the docsage HTTP server.
type Server struct {
	mux   *http.ServeMux
	flags *FlagStore
}

// NewServer creates a new API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Resolver == nil {
		return nil, errors.New("resolver is required")
	}
	if cfg.Chain == nil {
		return nil, errors.New("chain is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	flags := cfg.Flags
	if flags == nil {
		flags = NewFlagStore()
	}

	ch := &chatHandler{
		resolver: cfg.Resolver,
		chain:    cfg.Chain,
		logger:   logger,
	}
	fh := &filterHandler{flags: flags, logger: logger}
	dh := &documentsHandler{store: cfg.Store, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", ch.stream)
	mux.HandleFunc("GET /api/filter", fh.get)
	mux.HandleFunc("POST /api/filter", fh.set)
	mux.HandleFunc("GET /api/documents", dh.list)
	mux.HandleFunc("DELETE /api/documents/{name}", dh.remove)

	// Rate limiter: per-IP token bucket (1 token/sec refill)
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Build middleware stack (outermost first):
	//   Recovery → RequestID → Logging → CORS → RateLimit → Routes
	// RequestID must be before Logging so request_id is available in log
	// attributes. CORS must be before RateLimit so preflight OPTIONS gets
	// proper CORS headers.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Top-level mux keeps health probes out of the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("GET /ready", readiness(cfg.Pool))
	topMux.Handle("/", handler)

	return &Server{mux: topMux, flags: flags}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Flags returns the server's filter flag store.
func (s *Server) Flags() *FlagStore {
	return s.flags
}
