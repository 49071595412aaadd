// Dispatch conversation server — routes customer messages to specialist
// agents, runs the supervisor pipeline, and serves the HTTP API.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/opsdesk/dispatch/pkg/agent"
	"github.com/opsdesk/dispatch/pkg/api"
	"github.com/opsdesk/dispatch/pkg/breaker"
	"github.com/opsdesk/dispatch/pkg/checkpoint"
	"github.com/opsdesk/dispatch/pkg/config"
	"github.com/opsdesk/dispatch/pkg/conversation"
	"github.com/opsdesk/dispatch/pkg/database"
	"github.com/opsdesk/dispatch/pkg/faithfulness"
	"github.com/opsdesk/dispatch/pkg/guardrails"
	"github.com/opsdesk/dispatch/pkg/hitl"
	"github.com/opsdesk/dispatch/pkg/intent"
	"github.com/opsdesk/dispatch/pkg/limiter"
	"github.com/opsdesk/dispatch/pkg/llm"
	"github.com/opsdesk/dispatch/pkg/mcp"
	"github.com/opsdesk/dispatch/pkg/rag"
	"github.com/opsdesk/dispatch/pkg/registry"
	"github.com/opsdesk/dispatch/pkg/router"
	"github.com/opsdesk/dispatch/pkg/supervisor"
	"github.com/opsdesk/dispatch/pkg/tools"
	"github.com/opsdesk/dispatch/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// builtinTools returns the built-in tool table for an agent. Unknown
// agents get the support tools, matching the routing default.
func builtinTools(agentID string) []tools.Tool {
	if agentID == "billing" {
		return tools.BillingTools()
	}
	return tools.SupportTools()
}

func main() {
	// Parse command-line flags
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(*configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Durable stores (memory or postgres)
	var (
		dbClient  *database.Client
		ckpt      checkpoint.Checkpointer
		convStore conversation.Store
	)
	var dbCheck api.DBCheck
	if cfg.StoreBackend == "postgres" {
		dbCfg, err := database.LoadConfigFromEnv()
		if err != nil {
			slog.Error("Invalid database configuration", "error", err)
			os.Exit(1)
		}
		dbClient, err = database.NewClient(ctx, dbCfg)
		if err != nil {
			slog.Error("Failed to initialize database client", "error", err)
			os.Exit(1)
		}
		defer dbClient.Close()
		ckpt = checkpoint.NewPostgresCheckpointer(dbClient, cfg.SessionTTL)
		convStore = conversation.NewPostgresStore(dbClient)
		dbCheck = func(ctx context.Context) (*database.HealthStatus, error) {
			return database.Health(ctx, dbClient.DB())
		}
		slog.Info("Durable stores initialized", "backend", "postgres", "host", dbCfg.Host)
	} else {
		mem := checkpoint.NewMemoryCheckpointer(cfg.SessionTTL)
		defer mem.Close()
		ckpt = mem
		convStore = conversation.NewMemoryStore()
		slog.Info("Durable stores initialized", "backend", "memory")
	}

	// 3. LLM client (OpenAI-compatible endpoint)
	llmClient := llm.NewOpenAIClient(llm.OpenAIClientConfig{
		BaseURL: cfg.LLMBaseURL,
		APIKey:  cfg.LLMAPIKey,
		Model:   cfg.ModelID,
		TopP:    cfg.TopP,
		Timeout: cfg.LLMTimeout,
	})

	// 4. Retrieval and guardrails
	guard := guardrails.NewService(cfg.Guardrails)
	var retriever rag.Retriever
	if cfg.WeaviateURL != "" {
		retriever = rag.NewWeaviateRetriever(cfg.WeaviateURL, cfg.WeaviateAPIKey, cfg.WeaviateClass)
		slog.Info("Weaviate retriever initialized", "url", cfg.WeaviateURL, "class", cfg.WeaviateClass)
	} else {
		retriever = rag.NewNullRetriever()
		slog.Info("No vector store configured, agents run without document context")
	}

	// 5. External tool discovery (required collaborator when configured)
	var (
		mcpClient *mcp.Client
		mcpTools  []tools.Tool
		mcpCheck  api.MCPCheck
	)
	if cfg.MCPServerURL != "" {
		mcpClient, err = mcp.ConnectWithRetry(ctx, config.MCPServerConfig{
			Transport: config.TransportTypeHTTP,
			URL:       cfg.MCPServerURL,
		}, cfg.ToolTimeout)
		if err != nil {
			slog.Error("Failed to connect to MCP tool server", "error", err)
			os.Exit(1)
		}
		defer mcpClient.Close()

		mcpTools, err = mcp.DiscoverTools(ctx, mcpClient)
		if err != nil {
			slog.Error("Tool discovery failed", "error", err)
			os.Exit(1)
		}
		mcpCheck = func(ctx context.Context) error {
			_, err := mcpClient.ListTools(ctx)
			return err
		}
		slog.Info("MCP tools discovered", "count", len(mcpTools))
	}

	// 6. Intent classifier and router
	keyword := intent.NewKeywordClassifier(cfg.IntentRules)
	var classifier intent.Classifier = keyword
	if cfg.UseIntentModel {
		classifier = intent.NewModelClassifier(cfg.IntentModelURL, cfg.IntentLabels, cfg.ConfidenceThreshold, keyword)
		slog.Info("Model intent classifier initialized", "url", cfg.IntentModelURL)
	}
	rt := router.NewRouter(classifier)

	// 7. Agent runners, registry, concurrency limits
	reg := registry.New(cfg.FallbackAgentID)
	lim := limiter.New()
	for id, agentCfg := range cfg.Agents {
		toolSet := tools.NewSet(builtinTools(id)).Merge(mcpTools)
		reg.Register(agentCfg, agent.NewRunner(agentCfg, cfg, llmClient, retriever, guard, toolSet))
		lim.Register(id, agentCfg.MaxConcurrent)
	}
	slog.Info("Agents registered", "count", len(cfg.Agents), "fallback", cfg.FallbackAgentID)

	// 8. Circuit breaker, faithfulness gate, HITL
	var cb *breaker.CircuitBreaker
	if cfg.AgentOpsEnabled {
		cb = breaker.NewCircuitBreaker(cfg.CircuitFailureThreshold, cfg.CircuitCooldown)
	}

	var scorer faithfulness.Scorer = faithfulness.NewNullScorer()
	if cfg.UseFaithfulnessModel {
		scorer = faithfulness.NewModelScorer(cfg.FaithfulnessModelURL)
		slog.Info("Faithfulness model scorer initialized", "url", cfg.FaithfulnessModelURL)
	}

	hitlHandler := hitl.FromConfig(cfg)

	// 9. Supervisor and HTTP server
	sup := supervisor.New(cfg, reg, llmClient, scorer, cb, hitlHandler, ckpt)

	httpServer, err := api.NewServer(cfg, rt, sup, cb, lim, convStore, hitlHandler, mcpCheck, dbCheck)
	if err != nil {
		slog.Error("Failed to build API server", "error", err)
		os.Exit(1)
	}

	// 10. Start HTTP server (non-blocking)
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + httpPort
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Dispatch started successfully", "version", version.Version)

	// 11. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 12. Graceful shutdown
	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 10*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Warn("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped gracefully")
	}

	slog.Info("Dispatch stopped")
}
