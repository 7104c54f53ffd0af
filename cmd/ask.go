package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/docsage/docsage/internal/client"
	"github.com/docsage/docsage/internal/config"
)

// runAsk asks a single question, streams the answer tokens to stdout, and
// prints the source document names the answer was grounded on.
func runAsk() error {
	question := strings.TrimSpace(strings.Join(os.Args[2:], " "))
	if question == "" {
		return errors.New("usage: docsage ask <question>")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	api := client.New(cfg.ServerURL, slog.Default())

	events, err := api.Chat(ctx, client.ChatRequest{Question: question})
	if err != nil {
		return fmt.Errorf("asking question: %w", err)
	}

	var sources []client.SourceDoc
	wroteTokens := false
	for ev := range events {
		switch {
		case ev.Err != nil:
			if wroteTokens {
				fmt.Println()
			}
			return fmt.Errorf("answer stream: %w", ev.Err)
		case ev.Done:
			// Sentinel; channel closes next.
		case ev.Sources != nil:
			sources = ev.Sources
		case ev.Token != "":
			fmt.Print(ev.Token)
			wroteTokens = true
		}
	}

	if !wroteTokens {
		fmt.Print("No answer was generated.")
	}
	fmt.Println()

	if names := sourceDocumentNames(sources); len(names) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for _, name := range names {
			fmt.Printf("  %s\n", name)
		}
	}

	return nil
}

// sourceDocumentNames returns deduplicated document names in retrieval order.
func sourceDocumentNames(sources []client.SourceDoc) []string {
	seen := make(map[string]bool, len(sources))
	var names []string
	for _, s := range sources {
		name := s.Metadata["documentName"]
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}
