package api

// ChatRequest is the HTTP request body for POST /chat.
type ChatRequest struct {
	UserID    string `json:"user_id"`
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// graphQLRequest is the standard GraphQL-over-HTTP request body.
type graphQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}
