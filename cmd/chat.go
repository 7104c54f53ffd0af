package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/docsage/docsage/internal/client"
	"github.com/docsage/docsage/internal/config"
	"github.com/docsage/docsage/internal/tui"
)

// runChat starts the interactive Bubble Tea chat client against a running
// docsage server.
func runChat() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	api := client.New(cfg.ServerURL, slog.Default())

	if err := tui.Run(ctx, api); err != nil {
		return fmt.Errorf("chat client exited: %w", err)
	}
	return nil
}
