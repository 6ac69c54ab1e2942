package runtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// upgrader accepts any origin, matching the teacher's ws_control_plane.go
// (the gateway sits behind its own auth/origin policy; this listener is
// the agent-side leg of an already-authenticated stream).
var upgrader = websocket.Upgrader{
	ReadBufferSize:  8192,
	WriteBufferSize: 8192,
	CheckOrigin:     func(*http.Request) bool { return true },
}

func (r *Runtime) newHTTPServer() *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", r.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws", r.handleWebsocket)

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", r.cfg.AgentPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// handleHealth implements §6's health endpoint contract exactly.
func (r *Runtime) handleHealth(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":          "ok",
		"agent_id":        r.cfg.AgentID,
		"mode":            r.cfg.Mode,
		"active_sessions": r.activeSessionCount(),
		"uptime_s":        time.Since(r.startTime).Seconds(),
	})
}

// handleWebsocket upgrades one client stream and runs its message loop
// until disconnect, per §4.7's "start the listener that accepts client
// streams" and §5's per-session scheduling model.
func (r *Runtime) handleWebsocket(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newConnHandler(r, conn)
	c.run(req.Context())
}
