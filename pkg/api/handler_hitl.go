package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/opsdesk/dispatch/pkg/hitl"
	"github.com/opsdesk/dispatch/pkg/models"
)

// listPendingHandler handles GET /hitl/pending. Only the ticket handler
// keeps a pending queue; other handlers report an empty one.
func (s *Server) listPendingHandler(c *echo.Context) error {
	th, ok := s.hitl.(*hitl.TicketHandler)
	if !ok {
		return c.JSON(http.StatusOK, map[string]models.PendingEscalation{})
	}
	return c.JSON(http.StatusOK, th.ListPending())
}

// clearPendingHandler handles POST /hitl/pending/:session_id/clear.
// Clearing an unknown session reports cleared=false, not an error.
func (s *Server) clearPendingHandler(c *echo.Context) error {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}

	cleared := false
	if th, ok := s.hitl.(*hitl.TicketHandler); ok {
		cleared = th.ClearPending(sessionID)
	}

	return c.JSON(http.StatusOK, &ClearPendingResponse{
		SessionID: sessionID,
		Cleared:   cleared,
	})
}
