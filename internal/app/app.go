// Package app provides application initialization and dependency wiring.
//
// App is the container that holds every server-side component: the database
// pool, Genkit with the configured AI provider, the corpus store, and the
// retrieval/generation pipeline. Setup builds it; Close releases it.
package app

import (
	"context"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docsage/docsage/internal/config"
	"github.com/docsage/docsage/internal/corpus"
	"github.com/docsage/docsage/internal/rag"
)

// App is the core application container.
type App struct {
	// Configuration
	Config *config.Config
	Logger *slog.Logger

	// Core services
	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool

	// Question answering pipeline
	Store    *corpus.Store
	Resolver *rag.Resolver
	Chain    *rag.Chain

	// Lifecycle management
	cancel      context.CancelFunc
	otelCleanup func()
	dbCleanup   func()
}

// Close gracefully shuts down all resources in reverse setup order.
func (a *App) Close() error {
	a.Logger.Info("shutting down application")

	if a.cancel != nil {
		a.cancel()
	}

	if a.dbCleanup != nil {
		a.dbCleanup()
		a.Logger.Info("database pool closed")
	}

	if a.otelCleanup != nil {
		a.otelCleanup()
	}

	return nil
}
