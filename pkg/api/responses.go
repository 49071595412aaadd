package api

// ChatResponse is the HTTP response for POST /chat.
type ChatResponse struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
	AgentID   string `json:"agent_id,omitempty"`
}

// HealthResponse is the HTTP response for GET /health. Database is
// reported only when a durable backend is configured.
type HealthResponse struct {
	Status   string            `json:"status"`
	Agents   map[string]string `json:"agents"`
	MCP      string            `json:"mcp"`
	Database string            `json:"database,omitempty"`
}

// ClearPendingResponse is the HTTP response for
// POST /hitl/pending/:session_id/clear.
type ClearPendingResponse struct {
	SessionID string `json:"session_id"`
	Cleared   bool   `json:"cleared"`
}

// ClearSessionResponse is the HTTP response for
// POST /sessions/:session_id/clear.
type ClearSessionResponse struct {
	SessionID string `json:"session_id"`
	Cleared   bool   `json:"cleared"`
}
