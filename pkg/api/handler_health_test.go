package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdesk/dispatch/pkg/database"
)

func getHealth(t *testing.T, f *apiFixture) (int, HealthResponse) {
	t.Helper()
	rec := f.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func TestHealthHandler_AllHealthy(t *testing.T) {
	f := newAPIFixture(t)

	code, resp := getHealth(t, f)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, healthStatusOK, resp.Status)
	assert.Equal(t, agentHealthy, resp.Agents["support"])
	assert.Equal(t, agentHealthy, resp.Agents["billing"])
	assert.Equal(t, mcpStatusOK, resp.MCP)
	assert.Empty(t, resp.Database, "memory backend reports no database field")
}

func TestHealthHandler_OpenCircuitDegrades(t *testing.T) {
	f := newAPIFixture(t)
	for i := 0; i < 3; i++ {
		f.breaker.RecordFailure("billing")
	}

	code, resp := getHealth(t, f)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, healthStatusDegraded, resp.Status)
	assert.Equal(t, agentCircuitOpen, resp.Agents["billing"])
	assert.Equal(t, agentHealthy, resp.Agents["support"])
}

func TestHealthHandler_MCPUnavailableDegrades(t *testing.T) {
	f := newAPIFixture(t)
	f.srv.mcpCheck = func(context.Context) error { return errors.New("connection refused") }

	code, resp := getHealth(t, f)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, healthStatusDegraded, resp.Status)
	assert.Equal(t, mcpStatusUnavailable, resp.MCP)
}

func TestHealthHandler_MCPReachable(t *testing.T) {
	f := newAPIFixture(t)
	f.srv.mcpCheck = func(context.Context) error { return nil }

	code, resp := getHealth(t, f)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, mcpStatusOK, resp.MCP)
}

func TestHealthHandler_DatabaseReachable(t *testing.T) {
	f := newAPIFixture(t)
	f.srv.dbCheck = func(context.Context) (*database.HealthStatus, error) {
		return &database.HealthStatus{Status: "healthy"}, nil
	}

	code, resp := getHealth(t, f)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, dbHealthy, resp.Database)
}

func TestHealthHandler_DatabaseUnreachableDegrades(t *testing.T) {
	f := newAPIFixture(t)
	f.srv.dbCheck = func(context.Context) (*database.HealthStatus, error) {
		return nil, errors.New("ping failed")
	}

	code, resp := getHealth(t, f)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, healthStatusDegraded, resp.Status)
	assert.Equal(t, dbUnhealthy, resp.Database)
}

func TestVersionHandler(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/version", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "dispatch", resp["name"])
	assert.NotEmpty(t, resp["version"])
}
