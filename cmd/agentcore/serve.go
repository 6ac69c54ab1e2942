package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/meridianbank/agentcore/internal/agentcore"
	"github.com/meridianbank/agentcore/internal/config"
	"github.com/meridianbank/agentcore/internal/gatewayclient"
	"github.com/meridianbank/agentcore/internal/handoff"
	"github.com/meridianbank/agentcore/internal/llm"
	"github.com/meridianbank/agentcore/internal/runtime"
	"github.com/meridianbank/agentcore/internal/sessions"
	"github.com/meridianbank/agentcore/internal/tools"
)

// buildServeCmd wires every subsystem from §4.7's startup sequence and
// runs the Unified Runtime until a shutdown signal arrives.
//
// Grounded on the teacher's cmd/nexus/handlers_serve.go: runServe loads
// config, logs the effective settings, installs a signal-cancelled
// context, then blocks on <-ctx.Done() before a bounded-timeout shutdown.
func buildServeCmd() *cobra.Command {
	var (
		debug      bool
		sqlitePath string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the agent runtime",
		Long:  "Start the agent runtime: load config, workflow and persona, then serve the client stream until terminated.",
		Example: `  AGENT_ID=triage WORKFLOW_FILE=./triage.yaml PERSONA_FILE=./triage-persona.yaml \
  LLM_API_KEY=sk-... agentcore serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), debug, sqlitePath)
		},
	}
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "enable debug logging regardless of LOG_LEVEL")
	cmd.Flags().StringVar(&sqlitePath, "sqlite", "", "persist sessions to a SQLite database at this path instead of in-memory")
	return cmd
}

func runServe(ctx context.Context, debug bool, sqlitePath string) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logLevel := cfg.LogLevel
	if debug {
		logLevel = "debug"
	}
	logger := newLogger(logLevel)

	logger.Info("starting agentcore runtime",
		"version", version,
		"commit", commit,
		"agent_id", cfg.AgentID,
		"mode", cfg.Mode,
		"workflow_file", cfg.WorkflowFile,
		"persona_file", cfg.PersonaFile,
	)

	watcher, err := config.NewWatcher(cfg.WorkflowFile, cfg.PersonaFile, logger)
	if err != nil {
		return fmt.Errorf("failed to load workflow/persona: %w", err)
	}
	if cfg.Watch {
		if err := watcher.Start(); err != nil {
			return fmt.Errorf("failed to start config watcher: %w", err)
		}
		logger.Info("config hot-reload enabled")
	}
	def := watcher.Current()

	registry := tools.NewRegistry()

	localTools := tools.NewHTTPBackend(cfg.LocalToolsURL, 0)
	if cfg.LocalToolsURL != "" {
		specs, err := localTools.ListTools(ctx, tools.TargetLocalTools)
		if err != nil {
			logger.Warn("failed to list local tools; continuing without them", "error", err)
		}
		for _, s := range specs {
			registry.Register(s)
		}
	}

	var banking tools.Backend
	if cfg.BankingURL != "" {
		b := tools.NewHTTPBackend(cfg.BankingURL, 0)
		specs, err := b.ListTools(ctx, tools.TargetBanking)
		if err != nil {
			logger.Warn("failed to list banking tools; continuing without them", "error", err)
		}
		for _, s := range specs {
			registry.Register(s)
		}
		banking = b
	}

	for _, name := range def.Persona.AllowedTools {
		if tools.IsHandoffTool(name) {
			registry.Register(tools.Spec{
				Name:        name,
				Description: "Hand off the conversation to another agent.",
				Target:      tools.TargetHandoff,
			})
		}
	}

	llmClient, err := llm.New(llm.Config{
		APIKey:  cfg.LLMAPIKey,
		BaseURL: cfg.LLMBaseURL,
		Model:   cfg.LLMModel,
	})
	if err != nil {
		return fmt.Errorf("failed to build LLM client: %w", err)
	}

	var summarizer handoff.Summarizer = llmClient
	dispatcher := tools.NewDispatcher(registry, localTools, banking, summarizer, agentcore.DefaultWindowSize)

	var gateway *gatewayclient.Client
	if cfg.GatewayURL != "" {
		gateway = gatewayclient.New(cfg.GatewayURL, 0)
	}

	store, closeStore, err := buildStore(sqlitePath)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	rt := runtime.New(runtime.Deps{
		Config:     cfg,
		Persona:    def.Persona,
		Workflow:   def.Workflow,
		Registry:   registry,
		Dispatcher: dispatcher,
		LLM:        llmClient,
		Gateway:    gateway,
		Logger:     logger,
		Store:      store,
	})

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := rt.Start(ctx)
	logger.Info("agentcore runtime started", "addr", fmt.Sprintf(":%d", cfg.AgentPort))

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, draining sessions")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listener failed: %w", err)
		}
	}

	if cfg.Watch {
		watcher.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := rt.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("agentcore runtime stopped gracefully")
	return nil
}

func buildStore(sqlitePath string) (sessions.Store, func(), error) {
	if sqlitePath == "" {
		return sessions.NewMemoryStore(), nil, nil
	}
	store, err := sessions.NewSQLiteStore(sqlitePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open sqlite session store: %w", err)
	}
	return store, func() { _ = store.Close() }, nil
}
