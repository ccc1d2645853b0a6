package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/psearch-ai/transform-engine/pkg/adapters/bigquery"
	"github.com/psearch-ai/transform-engine/pkg/config"
	"github.com/psearch-ai/transform-engine/pkg/handlers"
	"github.com/psearch-ai/transform-engine/pkg/llm"
	"github.com/psearch-ai/transform-engine/pkg/models"
	"github.com/psearch-ai/transform-engine/pkg/services"
	"github.com/psearch-ai/transform-engine/pkg/tasks"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load("config.yaml", Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", cfg.LLM.Model),
		zap.String("bigquery_project", cfg.BigQuery.ProjectID),
		zap.String("task_store_backend", cfg.TaskStore.Backend))

	ctx := context.Background()

	generator, err := llm.NewFromConfig(ctx, llm.Config{
		Provider: cfg.LLM.Provider,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
		Endpoint: cfg.LLM.Endpoint,
	}, logger)
	if err != nil {
		logger.Fatal("failed to create LLM client", zap.Error(err))
	}

	if cfg.BigQuery.ProjectID == "" {
		logger.Fatal("BIGQUERY_PROJECT_ID is required")
	}
	bq, err := bigquery.NewClient(ctx, cfg.BigQuery.ProjectID, logger)
	if err != nil {
		logger.Fatal("failed to create BigQuery client", zap.Error(err))
	}
	defer bq.Close()

	store, err := newTaskStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to create task store", zap.Error(err))
	}
	defer store.Close()

	schema, err := models.LoadSchema(cfg.Pipeline.SchemaPath)
	if err != nil {
		logger.Fatal("failed to load destination schema", zap.Error(err),
			zap.String("path", cfg.Pipeline.SchemaPath))
	}

	validator := services.NewValidator(bq, logger)
	fixer := services.NewFixer(generator, logger)
	pipeline := services.NewPipeline(
		services.NewGenerator(generator, logger),
		services.NewFieldAnalyzer(logger),
		services.NewEnhancer(generator, logger),
		validator,
		fixer,
		bq,
		store,
		logger,
		services.WithPipelineTimeout(time.Duration(cfg.Pipeline.TimeoutMinutes)*time.Minute),
		services.WithMaxFixAttempts(cfg.Pipeline.MaxFixAttempts),
		services.WithDefaultSchema(schema),
	)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(logger).RegisterRoutes(mux)
	handlers.NewSQLHandler(pipeline, validator, fixer, services.NewDiffAnalyzer(generator, logger), store, logger).RegisterRoutes(mux)

	addr := cfg.Addr()
	logger.Info("starting transform-engine", zap.String("addr", addr), zap.String("version", cfg.Version))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

type closableStore interface {
	tasks.Store
	Close()
}

func newTaskStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (closableStore, error) {
	if cfg.TaskStore.Backend == "postgres" {
		return tasks.NewPostgresStore(ctx, cfg.TaskStore.DSN, logger)
	}
	ttl := time.Duration(cfg.TaskStore.TTLHours) * time.Hour
	return tasks.NewMemoryStore(logger, tasks.WithTTL(ttl)), nil
}
