// Package api exposes the HTTP surface: chat, health, HITL queue
// management, a GraphQL read endpoint for conversation history, and
// build version.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/graphql-go/graphql"
	echo "github.com/labstack/echo/v5"

	"github.com/opsdesk/dispatch/pkg/breaker"
	"github.com/opsdesk/dispatch/pkg/config"
	"github.com/opsdesk/dispatch/pkg/conversation"
	"github.com/opsdesk/dispatch/pkg/database"
	"github.com/opsdesk/dispatch/pkg/hitl"
	"github.com/opsdesk/dispatch/pkg/limiter"
	"github.com/opsdesk/dispatch/pkg/router"
	"github.com/opsdesk/dispatch/pkg/supervisor"
	"github.com/opsdesk/dispatch/pkg/version"
)

// MCPCheck probes the external tool server. Nil means tool discovery is
// disabled and the health endpoint reports the MCP link as ok.
type MCPCheck func(ctx context.Context) error

// DBCheck probes the durable store. Nil means the memory backend is in
// use and the health endpoint omits the database field.
type DBCheck func(ctx context.Context) (*database.HealthStatus, error)

// Server holds the HTTP handlers and their collaborators.
type Server struct {
	cfg        *config.Config
	router     *router.Router
	supervisor *supervisor.Supervisor
	breaker    *breaker.CircuitBreaker
	limiter    *limiter.Limiter
	convStore  conversation.Store
	hitl       hitl.Handler
	mcpCheck   MCPCheck
	dbCheck    DBCheck

	schema  graphql.Schema
	httpSrv *http.Server
}

// NewServer creates the API server. The circuit breaker may be nil when
// agent ops are disabled; every agent then reports healthy.
func NewServer(
	cfg *config.Config,
	rt *router.Router,
	sup *supervisor.Supervisor,
	cb *breaker.CircuitBreaker,
	lim *limiter.Limiter,
	convStore conversation.Store,
	hitlHandler hitl.Handler,
	mcpCheck MCPCheck,
	dbCheck DBCheck,
) (*Server, error) {
	schema, err := buildSchema(convStore)
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:        cfg,
		router:     rt,
		supervisor: sup,
		breaker:    cb,
		limiter:    lim,
		convStore:  convStore,
		hitl:       hitlHandler,
		mcpCheck:   mcpCheck,
		dbCheck:    dbCheck,
		schema:     schema,
	}, nil
}

// routes builds the echo handler with all endpoints registered.
func (s *Server) routes() *echo.Echo {
	e := echo.New()
	e.Use(securityHeaders())

	e.POST("/chat", s.chatHandler)
	e.GET("/health", s.healthHandler)
	e.GET("/hitl/pending", s.listPendingHandler)
	e.POST("/hitl/pending/:session_id/clear", s.clearPendingHandler)
	e.POST("/sessions/:session_id/clear", s.clearSessionHandler)
	e.POST("/graphql", s.graphqlHandler)
	e.GET("/version", s.versionHandler)

	return e
}

// Start runs the HTTP server on addr. Blocks until the server stops;
// returns http.ErrServerClosed after a graceful Shutdown.
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// versionHandler handles GET /version.
func (s *Server) versionHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, version.Get())
}
