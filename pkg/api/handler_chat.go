package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/opsdesk/dispatch/pkg/models"
)

// NoReplyFallback is returned when a turn produced no assistant message.
const NoReplyFallback = "I couldn't generate a response. Please try again."

// chatHandler handles POST /chat: routes the message to a session,
// takes a concurrency slot for the leading candidate agent, runs the
// supervisor turn, and records the exchange in the conversation store.
func (s *Server) chatHandler(c *echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.UserID) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}
	if strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}

	reqCtx := c.Request().Context()
	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(reqCtx, s.cfg.RequestTimeout)
		defer cancel()
	}

	route := s.router.Route(reqCtx, req.UserID, req.Message, req.SessionID)

	// The agent is only final after routing inside the supervisor; the
	// slot is taken for the leading registered candidate, which covers
	// the common case and still bounds total in-flight turns.
	limitID := s.cfg.FallbackAgentID
	for _, id := range route.SuggestedAgentIDs {
		if _, ok := s.cfg.Agents[id]; ok {
			limitID = id
			break
		}
	}
	if err := s.limiter.Acquire(reqCtx, limitID); err != nil {
		return mapChatError(err)
	}
	defer s.limiter.Release(limitID)

	state, err := s.supervisor.ProcessTurn(reqCtx, route.SessionID, req.UserID, req.Message, route.SuggestedAgentIDs)
	if err != nil {
		return mapChatError(err)
	}

	reply := models.LastAssistantContent(state.Messages)
	if reply == "" {
		reply = NoReplyFallback
	}

	s.recordTurns(reqCtx, route.SessionID, req.Message, reply, state.CurrentAgent)

	return c.JSON(http.StatusOK, &ChatResponse{
		SessionID: route.SessionID,
		Reply:     reply,
		AgentID:   state.CurrentAgent,
	})
}

// recordTurns appends the user and assistant turns after the supervisor
// has finished. Store failures are logged, never surfaced to the user.
func (s *Server) recordTurns(ctx context.Context, sessionID, userMessage, reply, agentID string) {
	if s.convStore == nil {
		return
	}
	if err := s.convStore.AppendTurn(ctx, sessionID, models.Turn{
		Role:    models.RoleUser,
		Content: userMessage,
	}); err != nil {
		slog.Warn("Failed to record user turn", "session_id", sessionID, "error", err)
		return
	}

	var meta map[string]any
	if agentID != "" {
		meta = map[string]any{"agent_id": agentID}
	}
	if err := s.convStore.AppendTurn(ctx, sessionID, models.Turn{
		Role:     models.RoleAssistant,
		Content:  reply,
		Metadata: meta,
	}); err != nil {
		slog.Warn("Failed to record assistant turn", "session_id", sessionID, "error", err)
	}
}
