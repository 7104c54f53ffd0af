// Package cmd provides CLI commands for docsage.
//
// Commands:
//   - serve: HTTP API server with SSE streaming
//   - chat: Interactive terminal chat with Bubble Tea TUI
//   - ask: One-shot question, tokens streamed to stdout
//
// Signal handling and graceful shutdown are implemented
// for all commands via context cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/docsage/docsage/internal/log"
)

// Execute is the main entry point for the docsage CLI application.
func Execute() error {
	// Initialize logger once at entry point
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(log.New(log.Config{Level: level}))

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "serve":
		return runServe()
	case "chat":
		return runChat()
	case "ask":
		return runAsk()
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("Docsage - Ask questions about your documents")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  docsage serve [addr]   Start HTTP API server (default: 127.0.0.1:3500)")
	fmt.Println("  docsage chat           Start interactive chat mode")
	fmt.Println("  docsage ask <question> Ask one question, stream the answer to stdout")
	fmt.Println("  docsage --version      Show version information")
	fmt.Println("  docsage --help         Show this help")
	fmt.Println()
	fmt.Println("Chat Commands (in interactive mode):")
	fmt.Println("  /help                  Show available commands")
	fmt.Println("  /docs                  List indexed documents")
	fmt.Println("  /filter [on|off]       Toggle document filtering")
	fmt.Println("  /use <doc,...>         Select documents to answer from")
	fmt.Println("  /clear                 Start a fresh conversation")
	fmt.Println("  /exit, /quit           Exit docsage")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY         Required for the default provider")
	fmt.Println("  DATABASE_URL           Optional: overrides postgres_* settings")
	fmt.Println("  DOCSAGE_SERVER_URL     Optional: server address for chat/ask")
	fmt.Println("  DEBUG                  Optional: enable debug logging")
}
