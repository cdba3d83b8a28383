package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/markdave123-py/examvault/internal/app"
	"github.com/markdave123-py/examvault/internal/config"
	"github.com/markdave123-py/examvault/internal/logging"
)

func main() {
	// Handle SIGINT/SIGTERM for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	application, err := app.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	defer application.Close()

	logger.Info("examvault is running",
		zap.String("vector_backend", cfg.VectorBackend),
		zap.Int("ingest_workers", cfg.IngestWorkers),
	)
	if err := application.Run(ctx); err != nil {
		logger.Error("server stopped", zap.Error(err))
	}
	logger.Info("shutting down")
}
