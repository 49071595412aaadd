package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// clearSessionHandler handles POST /sessions/:session_id/clear. It drops
// the session's checkpoint so the next turn starts from an empty
// history. Stored conversation transcripts are kept.
func (s *Server) clearSessionHandler(c *echo.Context) error {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}

	if err := s.supervisor.ClearSession(c.Request().Context(), sessionID); err != nil {
		return mapChatError(err)
	}

	return c.JSON(http.StatusOK, &ClearSessionResponse{
		SessionID: sessionID,
		Cleared:   true,
	})
}
