// Package mcp connects to the external tool server over the Model
// Context Protocol. Tool discovery runs once at startup and is required:
// persistent discovery failure aborts the process.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/opsdesk/dispatch/pkg/config"
	"github.com/opsdesk/dispatch/pkg/version"
)

const (
	// InitTimeout bounds the connect+initialize handshake.
	InitTimeout = 30 * time.Second

	// DiscoveryRetries and DiscoveryBackoff bound startup tool discovery.
	DiscoveryRetries = 3
	DiscoveryBackoff = 2 * time.Second
)

// Client holds a connection to one MCP tool server.
type Client struct {
	cfg         config.MCPServerConfig
	callTimeout time.Duration

	mu      sync.Mutex
	session *mcpsdk.ClientSession
}

// NewClient creates a disconnected client. Connect must be called before
// ListTools or CallTool.
func NewClient(cfg config.MCPServerConfig, callTimeout time.Duration) *Client {
	return &Client{cfg: cfg, callTimeout: callTimeout}
}

// Connect establishes the MCP session.
func (c *Client) Connect(ctx context.Context) error {
	transport, err := createTransport(c.cfg)
	if err != nil {
		return fmt.Errorf("failed to create transport: %w", err)
	}

	initCtx, cancel := context.WithTimeout(ctx, InitTimeout)
	defer cancel()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    version.AppName,
		Version: version.GitCommit,
	}, nil)

	session, err := client.Connect(initCtx, transport, nil)
	if err != nil {
		// Close the transport if it implements io.Closer to avoid leaking
		// stdio child processes on failed handshakes.
		if closer, ok := transport.(io.Closer); ok {
			_ = closer.Close()
		}
		return fmt.Errorf("failed to connect to tool server: %w", err)
	}

	c.mu.Lock()
	c.session = session
	c.mu.Unlock()

	slog.Info("MCP tool server connected", "transport", c.cfg.Transport)
	return nil
}

// ListTools enumerates the server's tools.
func (c *Client) ListTools(ctx context.Context) ([]*mcpsdk.Tool, error) {
	session, err := c.currentSession()
	if err != nil {
		return nil, err
	}

	opCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	result, err := session.ListTools(opCtx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	return result.Tools, nil
}

// CallTool executes one tool call on the server.
func (c *Client) CallTool(ctx context.Context, toolName string, args map[string]any) (*mcpsdk.CallToolResult, error) {
	session, err := c.currentSession()
	if err != nil {
		return nil, err
	}

	opCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	return session.CallTool(opCtx, &mcpsdk.CallToolParams{
		Name:      toolName,
		Arguments: args,
	})
}

// Close tears down the session (and any stdio subprocess).
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	return err
}

func (c *Client) currentSession() (*mcpsdk.ClientSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil, fmt.Errorf("tool server not connected")
	}
	return c.session, nil
}

// createTransport creates an MCP SDK transport from config.
func createTransport(cfg config.MCPServerConfig) (mcpsdk.Transport, error) {
	switch cfg.Transport {
	case config.TransportTypeStdio:
		if cfg.Command == "" {
			return nil, fmt.Errorf("stdio transport requires command")
		}
		cmd := exec.Command(cfg.Command, cfg.Args...)
		cmd.Env = os.Environ()
		return &mcpsdk.CommandTransport{Command: cmd}, nil
	case config.TransportTypeHTTP:
		if cfg.URL == "" {
			return nil, fmt.Errorf("HTTP transport requires url")
		}
		return &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}, nil
	default:
		return nil, fmt.Errorf("unsupported transport type: %q", cfg.Transport)
	}
}

// ConnectWithRetry connects and verifies tool discovery, retrying with a
// constant backoff. External tools are a required collaborator, so
// exhausting the retries is a startup failure.
func ConnectWithRetry(ctx context.Context, cfg config.MCPServerConfig, callTimeout time.Duration) (*Client, error) {
	client := NewClient(cfg, callTimeout)

	attempt := 0
	operation := func() error {
		attempt++
		if err := client.Connect(ctx); err != nil {
			slog.Warn("MCP tool server connection failed",
				"attempt", attempt, "max_attempts", DiscoveryRetries, "error", err)
			return err
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(DiscoveryBackoff), DiscoveryRetries-1),
		ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("tool server unreachable after %d attempts: %w", DiscoveryRetries, err)
	}
	return client, nil
}

// ExtractText concatenates the text content items of a tool result.
// Non-text content is skipped.
func ExtractText(result *mcpsdk.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			parts = append(parts, tc.Text)
		} else {
			slog.Debug("MCP tool returned non-text content, skipping",
				"content_type", fmt.Sprintf("%T", c))
		}
	}
	return strings.Join(parts, "\n")
}

// SchemaToMap converts a tool's input schema to a generic JSON object.
func SchemaToMap(schema any) map[string]any {
	if schema == nil {
		return nil
	}
	data, err := json.Marshal(schema)
	if err != nil {
		slog.Debug("Failed to marshal tool input schema", "error", err)
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
