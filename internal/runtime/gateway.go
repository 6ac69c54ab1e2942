package runtime

import (
	"context"
	"time"

	"github.com/meridianbank/agentcore/internal/gatewayclient"
	"github.com/meridianbank/agentcore/internal/telemetry"
)

// heartbeatInterval matches §4.7 step 7 exactly: "every 15 s".
const heartbeatInterval = 15 * time.Second

// heartbeatLoop implements §4.7 step 7. A heartbeat failure is logged and
// the loop continues — a missed heartbeat is how the gateway notices an
// agent has gone unhealthy (§7: "surfaced to gateway: none directly...
// the gateway observes failure only via dropped heartbeats").
func (r *Runtime) heartbeatLoop(ctx context.Context) {
	if r.gateway == nil {
		return
	}
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			req := gatewayclient.HeartbeatRequest{
				AgentID:        r.cfg.AgentID,
				ActiveSessions: r.activeSessionCount(),
				UptimeSeconds:  time.Since(r.startTime).Seconds(),
			}
			spanCtx, end := telemetry.StartSpan(ctx, telemetry.PointGateway, r.cfg.AgentID)
			err := r.gateway.Heartbeat(spanCtx, req)
			end(err)
			if err != nil {
				r.logger.Warn("heartbeat failed", "error", err)
			}
		}
	}
}
