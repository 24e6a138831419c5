package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mcoot/typeroom/internal/api"
	"github.com/mcoot/typeroom/internal/config"
	"github.com/mcoot/typeroom/internal/factory"
)

func main() {
	// Bootstrap logger until the configured level is known
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load(logger, config.DefaultFileName)
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Set up logging with JSON output
	level, _ := cfg.Log.SlogLevel()
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Handle graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Create application factory
	app, err := factory.New(ctx, factory.Config{
		AuthConfig:     cfg.Auth,
		RealtimeConfig: cfg.Realtime,
		Logger:         logger,
		StorageType:    cfg.Storage.Type,
		RedisConfig:    &cfg.Redis,
		PostgresConfig: &cfg.Postgres,
		MongoConfig:    &cfg.Mongo,
	})
	if err != nil {
		logger.Error("failed to create application",
			slog.String("storage", cfg.Storage.Type),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// Create server
	server := api.NewServer(app.Handler(), cfg.Server, logger)
	server.OnShutdown(app.CloseConnections)

	if err := server.Listen(); err != nil {
		logger.Error("failed to listen", slog.String("error", err.Error()))
		_ = app.Close()
		os.Exit(1)
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	logger.Info("server started",
		slog.String("addr", server.Addr()),
		slog.String("storage", cfg.Storage.Type),
	)

	// Wait for shutdown or error
	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		if err := server.Shutdown(context.Background()); err != nil {
			logger.Error("shutdown error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	if err := app.Close(); err != nil {
		logger.Warn("storage close error", slog.String("error", err.Error()))
	}
	logger.Info("server stopped")
}
