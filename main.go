package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/insightpilot/insight-engine/pkg/config"
	"github.com/insightpilot/insight-engine/pkg/database"
	"github.com/insightpilot/insight-engine/pkg/llm"
	"github.com/insightpilot/insight-engine/pkg/logging"
	"github.com/insightpilot/insight-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("starting insight-engine",
		zap.String("version", cfg.Version),
		zap.String("env", cfg.Env),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", cfg.LLM.Model))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("insight-engine failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	sqlDB := stdlib.OpenDBFromPool(db.Pool)
	if err := database.RunMigrations(sqlDB, cfg.Database.MigrationsPath, logger); err != nil {
		return err
	}
	if err := sqlDB.Close(); err != nil {
		logger.Warn("failed to close migration connection", zap.Error(err))
	}

	client, err := llm.NewFromConfig(&cfg.LLM, logger)
	if err != nil {
		return err
	}

	engine := services.NewEngine(cfg, db, client, logger)
	return engine.Run(ctx)
}
