package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"tubewatch/backend/features/job"
	"tubewatch/backend/internal/app"
	"tubewatch/backend/internal/config"
	"tubewatch/backend/internal/logger"
)

func main() {
	log := logger.New(os.Stdout, slog.LevelInfo)
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		slog.Error("app exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}
	defer deps.Close()

	store := job.NewRedisStore(deps.Redis)

	a, err := app.New(cfg, deps.DB, store, deps.NSQProducer, logger)
	if err != nil {
		return fmt.Errorf("app init failed: %w", err)
	}

	consumers, err := a.StartConsumers()
	if err != nil {
		return err
	}
	defer app.StopConsumers(consumers)

	if !cfg.EnableAPI {
		slog.Info("API disabled, running workers only")
		<-ctx.Done()
		return nil
	}
	return a.Run(ctx)
}
