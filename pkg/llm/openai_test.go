package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdesk/dispatch/pkg/models"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestChat_TextResponse(t *testing.T) {
	var gotReq openAIRequest
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_ = json.NewEncoder(w).Encode(openAIResponse{
			Choices: []openAIChoice{
				{Message: openAIMessage{Role: "assistant", Content: "Your invoice is paid."}},
			},
		})
	})

	client := NewOpenAIClient(OpenAIClientConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Model:   "gpt-4o-mini",
		TopP:    0.9,
	})

	resp, err := client.Chat(context.Background(), []models.Message{
		models.NewUserMessage("What is the status of INV-1?"),
	}, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, "Your invoice is paid.", resp.Content)
	assert.Empty(t, resp.ToolCalls)

	assert.Equal(t, "gpt-4o-mini", gotReq.Model)
	assert.Equal(t, 0.9, gotReq.TopP)
	require.Len(t, gotReq.Messages, 1)
	assert.Equal(t, "user", gotReq.Messages[0].Role)
}

func TestChat_ToolCallResponse(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Tools, 1)
		assert.Equal(t, "function", req.Tools[0].Type)
		assert.Equal(t, "look_up_invoice", req.Tools[0].Function.Name)

		_ = json.NewEncoder(w).Encode(openAIResponse{
			Choices: []openAIChoice{
				{
					Message: openAIMessage{
						Role: "assistant",
						ToolCalls: []openAIToolCall{
							{
								ID:   "call_1",
								Type: "function",
								Function: openAIFunctionCall{
									Name:      "look_up_invoice",
									Arguments: `{"invoice_id":"INV-1"}`,
								},
							},
						},
					},
					FinishReason: "tool_calls",
				},
			},
		})
	})

	client := NewOpenAIClient(OpenAIClientConfig{BaseURL: srv.URL, Model: "gpt-4o-mini"})

	tools := []ToolDefinition{
		{
			Name:        "look_up_invoice",
			Description: "Look up an invoice by ID.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"invoice_id": map[string]any{"type": "string"}},
			},
		},
	}
	resp, err := client.Chat(context.Background(), []models.Message{
		models.NewUserMessage("look up INV-1"),
	}, tools, Options{})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "look_up_invoice", resp.ToolCalls[0].Name)
	assert.JSONEq(t, `{"invoice_id":"INV-1"}`, resp.ToolCalls[0].Arguments)
}

func TestChat_ToolMessagesOnWire(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 3)
		assert.Equal(t, "assistant", req.Messages[1].Role)
		require.Len(t, req.Messages[1].ToolCalls, 1)
		assert.Equal(t, "tool", req.Messages[2].Role)
		assert.Equal(t, "call_1", req.Messages[2].ToolCallID)

		_ = json.NewEncoder(w).Encode(openAIResponse{
			Choices: []openAIChoice{{Message: openAIMessage{Content: "done"}}},
		})
	})

	client := NewOpenAIClient(OpenAIClientConfig{BaseURL: srv.URL, Model: "m"})

	messages := []models.Message{
		models.NewUserMessage("look up INV-1"),
		{
			Role: models.RoleAssistant,
			ToolCalls: []models.ToolCall{
				{ID: "call_1", Name: "look_up_invoice", Arguments: `{"invoice_id":"INV-1"}`},
			},
		},
		models.NewToolMessage("call_1", "look_up_invoice", "status=paid"),
	}
	resp, err := client.Chat(context.Background(), messages, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Content)
}

func TestChat_APIError(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(openAIResponse{
			Error: &openAIError{Message: "invalid api key", Type: "auth_error"},
		})
	})

	client := NewOpenAIClient(OpenAIClientConfig{BaseURL: srv.URL, Model: "m"})

	_, err := client.Chat(context.Background(), []models.Message{models.NewUserMessage("hi")}, nil, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid api key")
}

func TestChat_RetriesOnceOnTimeout(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			time.Sleep(300 * time.Millisecond)
		}
		_ = json.NewEncoder(w).Encode(openAIResponse{
			Choices: []openAIChoice{{Message: openAIMessage{Content: "ok"}}},
		})
	})

	client := NewOpenAIClient(OpenAIClientConfig{
		BaseURL: srv.URL,
		Model:   "m",
		Timeout: 100 * time.Millisecond,
	})

	resp, err := client.Chat(context.Background(), []models.Message{models.NewUserMessage("hi")}, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, int32(2), calls.Load())
}

func TestChat_NoChoices(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(openAIResponse{})
	})

	client := NewOpenAIClient(OpenAIClientConfig{BaseURL: srv.URL, Model: "m"})

	_, err := client.Chat(context.Background(), []models.Message{models.NewUserMessage("hi")}, nil, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}
