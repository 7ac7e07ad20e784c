// groundquery server: accepts user questions over HTTP, runs the
// evidence-grounded pipeline (plan, policy, tools, verify, answer), and
// streams the result as server-sent events.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/groundquery/groundquery/pkg/answer"
	"github.com/groundquery/groundquery/pkg/api"
	"github.com/groundquery/groundquery/pkg/config"
	"github.com/groundquery/groundquery/pkg/connector"
	"github.com/groundquery/groundquery/pkg/connector/postgres"
	"github.com/groundquery/groundquery/pkg/connector/weaviaterag"
	"github.com/groundquery/groundquery/pkg/database"
	"github.com/groundquery/groundquery/pkg/llm"
	"github.com/groundquery/groundquery/pkg/pipeline"
	"github.com/groundquery/groundquery/pkg/planner"
	"github.com/groundquery/groundquery/pkg/policy"
	"github.com/groundquery/groundquery/pkg/runtime"
	"github.com/groundquery/groundquery/pkg/schema"
	"github.com/groundquery/groundquery/pkg/store"
	"github.com/groundquery/groundquery/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configPath := flag.String("config",
		getEnv("CONFIG_PATH", "./groundquery.yaml"),
		"Path to the configuration file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		logger.Warn("Could not load .env file, continuing with existing environment", "error", err)
	}

	logger.Info("Starting groundquery", "version", version.Full(), "config", *configPath)

	ctx := context.Background()

	cfg, err := config.Load(*configPath, logger)
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Evidence store. Without database credentials the server still runs;
	// audit persistence is best-effort by design.
	var evidence store.EvidenceStore = store.NopStore{}
	var dbClient *database.Client
	if os.Getenv("DB_HOST") != "" {
		dbConfig, err := database.LoadConfigFromEnv()
		if err != nil {
			logger.Error("Failed to load database config", "error", err)
			os.Exit(1)
		}
		dbClient, err = database.NewClient(ctx, dbConfig)
		if err != nil {
			logger.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := dbClient.Close(); err != nil {
				logger.Error("Error closing database client", "error", err)
			}
		}()
		evidence = store.NewPostgresStore(dbClient.DB())
		logger.Info("Connected to PostgreSQL evidence store")
	} else {
		logger.Warn("DB_HOST not set, audit persistence disabled")
	}

	// Connectors. Each one is optional; a missing connector turns its tool
	// into a graceful per-action failure.
	var sqlConnector connector.SQLQuerier
	if dsn := os.Getenv("SOURCE_DB_DSN"); dsn != "" {
		pg, err := postgres.New(ctx, postgres.Config{
			DSN:              dsn,
			StatementTimeout: cfg.Tools.Timeout(),
		}, logger)
		if err != nil {
			logger.Error("Failed to create SQL connector", "error", err)
			os.Exit(1)
		}
		defer pg.Disconnect()
		sqlConnector = pg
		logger.Info("SQL connector ready")
	} else {
		logger.Warn("SOURCE_DB_DSN not set, sql.query tool disabled")
	}

	var ragConnector connector.RAGSearcher
	if cfg.Weaviate.Host != "" {
		searcher, err := weaviaterag.New(weaviaterag.Config{
			Scheme: cfg.Weaviate.Scheme,
			Host:   cfg.Weaviate.Host,
		}, logger)
		if err != nil {
			logger.Error("Failed to create RAG connector", "error", err)
			os.Exit(1)
		}
		ragConnector = searcher
		logger.Info("RAG connector ready", "host", cfg.Weaviate.Host)
	} else {
		logger.Warn("weaviate.host not configured, rag.search tool disabled")
	}

	adapter, err := llm.NewOpenAIAdapter(llm.OpenAIConfig{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
	}, logger)
	if err != nil {
		logger.Error("Failed to create LLM adapter", "error", err)
		os.Exit(1)
	}

	validator, err := schema.NewValidator()
	if err != nil {
		logger.Error("Failed to compile schemas", "error", err)
		os.Exit(1)
	}

	engine := policy.NewEngine(
		policy.NewToolGate(policy.ToolGateConfig{
			AllowedTools:        cfg.Policy.AllowedTools,
			MaxToolCallsPerPlan: cfg.Policy.MaxToolCallsPerPlan,
		}),
		policy.NewSQLGate(policy.SQLPolicyConfig{
			MaxRows:            cfg.Policy.MaxRows,
			AllowedTables:      cfg.Policy.AllowedTables,
			ForbiddenFunctions: cfg.Policy.ForbiddenFunctions,
		}, logger),
		logger,
	)

	coordinator := pipeline.New(
		planner.New(adapter, validator, planner.Options{
			Temperature:   cfg.Planner.Temperature,
			MaxRetries:    cfg.Planner.MaxRetries,
			SystemContext: cfg.Planner.SystemContext,
		}, logger),
		engine,
		runtime.New(sqlConnector, ragConnector, evidence, runtime.Config{
			ToolTimeout: cfg.Tools.Timeout(),
			PreviewRows: cfg.Tools.PreviewRows,
		}, logger),
		answer.New(adapter, validator, answer.Options{
			SystemContext: cfg.Planner.SystemContext,
		}, logger),
		evidence,
		pipeline.Config{AllowedTools: cfg.Policy.AllowedTools},
		logger,
	)

	server := api.NewServer(coordinator, dbClient, logger)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: server.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		logger.Error("HTTP server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}
	logger.Info("groundquery stopped")
}
