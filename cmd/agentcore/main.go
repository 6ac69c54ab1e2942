// Command agentcore runs the Unified Runtime (C7): one process hosting one
// agent's persona, workflow graph, and client-facing stream listener.
//
// Grounded on the teacher's cmd/nexus/main.go (build-info vars populated by
// -ldflags, a buildRootCmd() factory kept separate from main() for
// testability, JSON structured logging installed as the slog default
// before any subcommand runs).
package main

import (
	"fmt"
	"log/slog"
	"os"
)

// Populated at build time via -ldflags "-X main.version=... -X main.commit=... -X main.date=...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func versionString() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
}

// newLogger builds the process-wide *slog.Logger from a §6 LOG_LEVEL
// value, falling back to info on anything it doesn't recognize.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}
