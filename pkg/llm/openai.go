package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/opsdesk/dispatch/pkg/models"
)

// Compile-time check that OpenAIClient implements Client.
var _ Client = (*OpenAIClient)(nil)

// OpenAIClient talks to any OpenAI-compatible chat-completions API
// (OpenAI, vLLM, TensorRT-LLM, ...). Requests go to
// {baseURL}/chat/completions.
type OpenAIClient struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	topP        float64
	timeout     time.Duration
	httpClient  *http.Client
}

// OpenAIClientConfig configures an OpenAIClient.
type OpenAIClientConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	TopP        float64
	// Timeout bounds each chat call. A call that times out is retried once.
	Timeout time.Duration
}

// NewOpenAIClient creates a client for an OpenAI-compatible endpoint.
func NewOpenAIClient(cfg OpenAIClientConfig) *OpenAIClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &OpenAIClient{
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		topP:        cfg.TopP,
		timeout:     timeout,
		httpClient:  &http.Client{},
	}
}

// Wire types for the chat-completions API.

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	TopP        float64         `json:"top_p,omitempty"`
	Tools       []openAITool    `json:"tools,omitempty"`
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	Name       string           `json:"name,omitempty"`
}

type openAITool struct {
	Type     string         `json:"type"`
	Function openAIFunction `json:"function"`
}

type openAIFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type openAIToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function openAIFunctionCall `json:"function"`
}

type openAIFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openAIResponse struct {
	Choices []openAIChoice `json:"choices"`
	Error   *openAIError   `json:"error,omitempty"`
}

type openAIChoice struct {
	Message      openAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// Chat implements Client. Each call gets its own timeout; a timed-out
// call is retried once before the error is surfaced.
func (c *OpenAIClient) Chat(ctx context.Context, messages []models.Message, tools []ToolDefinition, opts Options) (*Response, error) {
	req := c.buildRequest(messages, tools, opts)

	resp, err := c.doChat(ctx, req)
	if err != nil && isTimeout(err) && ctx.Err() == nil {
		slog.Warn("LLM call timed out, retrying once", "model", req.Model)
		resp, err = c.doChat(ctx, req)
	}
	return resp, err
}

func (c *OpenAIClient) buildRequest(messages []models.Message, tools []ToolDefinition, opts Options) openAIRequest {
	req := openAIRequest{
		Model:       c.model,
		Temperature: c.temperature,
		TopP:        c.topP,
	}
	if opts.Model != "" {
		req.Model = opts.Model
	}
	if opts.Temperature != 0 {
		req.Temperature = opts.Temperature
	}
	if opts.TopP != 0 {
		req.TopP = opts.TopP
	}

	req.Messages = make([]openAIMessage, 0, len(messages))
	for _, m := range messages {
		wire := openAIMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.ToolName,
		}
		for _, tc := range m.ToolCalls {
			wire.ToolCalls = append(wire.ToolCalls, openAIToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: openAIFunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		req.Messages = append(req.Messages, wire)
	}

	for _, t := range tools {
		req.Tools = append(req.Tools, openAITool{
			Type: "function",
			Function: openAIFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return req
}

func (c *OpenAIClient) doChat(ctx context.Context, req openAIRequest) (*Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read chat response: %w", err)
	}

	var parsed openAIResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode chat response (status %d): %w", httpResp.StatusCode, err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("chat API error (status %d): %s", httpResp.StatusCode, parsed.Error.Message)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chat API returned status %d", httpResp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return nil, errors.New("chat API returned no choices")
	}

	msg := parsed.Choices[0].Message
	out := &Response{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, models.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
