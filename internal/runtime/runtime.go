// Package runtime implements the Unified Runtime (C7): the process entry
// point that loads configuration, constructs Agent Core and its one
// adapter, hosts the client-facing stream listener, registers with the
// gateway, heartbeats, and drains sessions on shutdown.
//
// Grounded on the teacher's internal/gateway.Server (the long-lived
// process wiring together every subsystem behind one struct) and
// cmd/nexus/handlers_serve.go's start/signal/shutdown sequencing,
// adapted from Nexus's gRPC+HTTP dual listener down to the single
// gorilla/websocket stream this spec names.
package runtime

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/meridianbank/agentcore/internal/agentcore"
	"github.com/meridianbank/agentcore/internal/config"
	"github.com/meridianbank/agentcore/internal/gatewayclient"
	"github.com/meridianbank/agentcore/internal/handoff"
	"github.com/meridianbank/agentcore/internal/llm"
	"github.com/meridianbank/agentcore/internal/model"
	"github.com/meridianbank/agentcore/internal/sessions"
	"github.com/meridianbank/agentcore/internal/telemetry"
	"github.com/meridianbank/agentcore/internal/timing"
	"github.com/meridianbank/agentcore/internal/tools"
	"github.com/meridianbank/agentcore/internal/voice"
	"github.com/meridianbank/agentcore/internal/workflow"

	agentaudit "github.com/meridianbank/agentcore/internal/audit"
)

// Deps bundles everything Runtime needs that must be constructed by the
// caller (cmd/agentcore), because it depends on credentials, file paths,
// or a pluggable backend this package has no business constructing.
type Deps struct {
	Config     *config.RuntimeConfig
	Persona    *model.Persona
	Workflow   *workflow.Workflow
	Registry   *tools.Registry
	Dispatcher *tools.Dispatcher
	LLM        *llm.Client
	Gateway    *gatewayclient.Client
	Logger     *slog.Logger

	// Store backs the Session Store (C3). Left nil to default to an
	// in-memory store; cmd/agentcore supplies a sessions.SQLiteStore when
	// started with --sqlite, so sessions survive a process restart.
	Store sessions.Store

	// VoiceStreamFactory opens a Sonic stream for one session. Left nil
	// in text-only deployments; a voice/hybrid deployment must supply a
	// concrete implementation — Sonic itself is an opaque external codec
	// (§1), out of this repo's scope to implement.
	VoiceStreamFactory voice.StreamFactory
}

// Runtime is the live process: one Agent Core, one client listener, one
// gateway heartbeat loop, and the connection registry needed to drain on
// shutdown.
type Runtime struct {
	cfg      *config.RuntimeConfig
	persona  *model.Persona
	workflow *workflow.Workflow

	core      *agentcore.Core
	store     sessions.Store
	scheduler *timing.Scheduler
	metrics   *Metrics
	audit     *agentaudit.Logger
	gateway   *gatewayclient.Client
	logger    *slog.Logger

	voiceFactory voice.StreamFactory

	httpServer *http.Server
	startTime  time.Time

	connsMu sync.Mutex
	conns   map[string]*connHandler

	heartbeatCancel context.CancelFunc
}

// New wires every Unified Runtime subsystem from deps. It does not start
// anything — call Start to begin serving.
func New(deps Deps) *Runtime {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store := deps.Store
	if store == nil {
		store = sessions.NewMemoryStore()
	}
	breaker := agentcore.NewCircuitBreaker(deps.Config.MaxSessionErrors, deps.Config.ErrorWindow)
	agents := map[string]agentcore.AgentConfig{
		deps.Config.AgentID: {Persona: deps.Persona, Workflow: deps.Workflow},
	}

	var summarizer handoff.Summarizer
	if deps.LLM != nil {
		summarizer = deps.LLM
	}

	core := agentcore.New(store, deps.Dispatcher, deps.Registry, deps.LLM, deps.LLM, summarizer, agents, breaker, logger)

	return &Runtime{
		cfg:          deps.Config,
		persona:      deps.Persona,
		workflow:     deps.Workflow,
		core:         core,
		store:        store,
		scheduler:    timing.NewScheduler(),
		metrics:      NewMetrics(deps.Config.AgentID),
		audit:        agentaudit.New(logger),
		gateway:      deps.Gateway,
		logger:       logger,
		voiceFactory: deps.VoiceStreamFactory,
		conns:        make(map[string]*connHandler),
	}
}

// Start implements §4.7 steps 5-7: start the listener, register with the
// gateway (non-fatal on failure), and begin heartbeating. The HTTP
// listener runs in its own goroutine and Start does not wait for it to
// bind; the listener's error is reported through the returned channel.
func (r *Runtime) Start(ctx context.Context) <-chan error {
	r.startTime = time.Now()
	errCh := make(chan error, 1)

	r.httpServer = r.newHTTPServer()
	go func() {
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	if r.gateway != nil {
		spanCtx, end := telemetry.StartSpan(ctx, telemetry.PointGateway, r.cfg.AgentID)
		err := r.gateway.Register(spanCtx, gatewayclient.RegisterRequest{
			ID:   r.cfg.AgentID,
			Port: r.cfg.AgentPort,
			Capabilities: gatewayclient.Capabilities{
				Voice:     r.cfg.Mode == model.ModeVoice || r.cfg.Mode == model.ModeHybrid,
				Text:      r.cfg.Mode == model.ModeText || r.cfg.Mode == model.ModeHybrid,
				Mode:      string(r.cfg.Mode),
				PersonaID: r.persona.ID,
				Tools:     r.persona.AllowedTools,
			},
		})
		end(err)
		if err != nil {
			r.logger.Warn("gateway registration failed; continuing without it", "error", err)
		}
	}

	hbCtx, cancel := context.WithCancel(ctx)
	r.heartbeatCancel = cancel
	go r.heartbeatLoop(hbCtx)

	return errCh
}

// Shutdown implements §4.7's shutdown sequence: stop accepting new
// sessions, drain active ones, stop the heartbeat, close the listener.
func (r *Runtime) Shutdown(ctx context.Context) error {
	if r.heartbeatCancel != nil {
		r.heartbeatCancel()
	}

	r.connsMu.Lock()
	active := make([]*connHandler, 0, len(r.conns))
	for _, c := range r.conns {
		active = append(active, c)
	}
	r.connsMu.Unlock()

	g, _ := errgroup.WithContext(ctx)
	for _, c := range active {
		c := c
		g.Go(func() error {
			c.close()
			return nil
		})
	}
	_ = g.Wait()

	r.scheduler.Stop()

	if r.httpServer != nil {
		return r.httpServer.Shutdown(ctx)
	}
	return nil
}

func (r *Runtime) registerConn(c *connHandler) {
	r.connsMu.Lock()
	r.conns[c.sessionID] = c
	r.connsMu.Unlock()
	r.metrics.ActiveSessions.WithLabelValues(r.cfg.AgentID).Inc()
}

func (r *Runtime) unregisterConn(sessionID string) {
	r.connsMu.Lock()
	_, existed := r.conns[sessionID]
	delete(r.conns, sessionID)
	r.connsMu.Unlock()
	if existed {
		r.metrics.ActiveSessions.WithLabelValues(r.cfg.AgentID).Dec()
	}
}

func (r *Runtime) activeSessionCount() int {
	r.connsMu.Lock()
	defer r.connsMu.Unlock()
	return len(r.conns)
}
