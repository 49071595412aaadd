package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/opsdesk/dispatch/pkg/tools"
)

// DiscoverTools lists the server's tools and adapts each into a local
// tool whose handler forwards calls over MCP. Runs once at startup; the
// returned tools are merged into agent tool sets (built-ins win on name
// conflicts).
func DiscoverTools(ctx context.Context, client *Client) ([]tools.Tool, error) {
	remote, err := client.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("tool discovery failed: %w", err)
	}

	discovered := make([]tools.Tool, 0, len(remote))
	for _, t := range remote {
		discovered = append(discovered, tools.Tool{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  SchemaToMap(t.InputSchema),
			Handler:     remoteHandler(client, t.Name),
		})
	}

	slog.Info("External tools discovered", "count", len(discovered))
	return discovered, nil
}

// remoteHandler adapts one MCP tool into a tools.Handler. Server-side
// tool errors come back as result content with IsError set; those are
// returned as content so the LLM can react, matching the built-in tools'
// error-as-content convention.
func remoteHandler(client *Client, toolName string) tools.Handler {
	return func(ctx context.Context, argsJSON string) (string, error) {
		args, err := parseArguments(argsJSON)
		if err != nil {
			return "", err
		}

		result, err := client.CallTool(ctx, toolName, args)
		if err != nil {
			return "", fmt.Errorf("tool server call failed: %w", err)
		}
		return ExtractText(result), nil
	}
}

func parseArguments(argsJSON string) (map[string]any, error) {
	if argsJSON == "" {
		return nil, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return nil, fmt.Errorf("invalid tool arguments: %w", err)
	}
	return args, nil
}
