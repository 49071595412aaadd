package api

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/opsdesk/dispatch/pkg/breaker"
)

const (
	healthStatusOK       = "ok"
	healthStatusDegraded = "degraded"

	agentHealthy     = "healthy"
	agentCircuitOpen = "circuit_open"
	agentHalfOpen    = "half_open"

	mcpStatusOK          = "ok"
	mcpStatusUnavailable = "unavailable"

	dbHealthy   = "healthy"
	dbUnhealthy = "unhealthy"
)

// healthHandler handles GET /health. Degraded when any agent circuit is
// open or half-open, the tool server is unreachable, the durable store
// does not answer its ping, or the last checkpoint operation failed.
// Degraded answers 503 so orchestrators pull the instance from rotation.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	status := healthStatusOK

	ids := s.cfg.AgentIDs()
	sort.Strings(ids)
	agents := make(map[string]string, len(ids))
	for _, id := range ids {
		st := breaker.StateClosed
		if s.breaker != nil {
			st = s.breaker.GetState(id)
		}
		agents[id] = agentHealth(st)
		if st != breaker.StateClosed {
			status = healthStatusDegraded
		}
	}

	mcpStatus := mcpStatusOK
	if s.mcpCheck != nil {
		if err := s.mcpCheck(reqCtx); err != nil {
			slog.Warn("MCP health check failed", "error", err)
			mcpStatus = mcpStatusUnavailable
			status = healthStatusDegraded
		}
	}

	dbStatus := ""
	if s.dbCheck != nil {
		dbStatus = dbHealthy
		if _, err := s.dbCheck(reqCtx); err != nil {
			slog.Warn("Database health check failed", "error", err)
			dbStatus = dbUnhealthy
			status = healthStatusDegraded
		}
	}

	if s.supervisor != nil && s.supervisor.CheckpointerDegraded() {
		status = healthStatusDegraded
	}

	httpStatus := http.StatusOK
	if status == healthStatusDegraded {
		httpStatus = http.StatusServiceUnavailable
	}

	return c.JSON(httpStatus, &HealthResponse{
		Status:   status,
		Agents:   agents,
		MCP:      mcpStatus,
		Database: dbStatus,
	})
}

func agentHealth(st breaker.State) string {
	switch st {
	case breaker.StateOpen:
		return agentCircuitOpen
	case breaker.StateHalfOpen:
		return agentHalfOpen
	default:
		return agentHealthy
	}
}
