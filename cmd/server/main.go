package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/jw6ventures/casefile/internal/app"
	"github.com/jw6ventures/casefile/internal/config"
	"github.com/jw6ventures/casefile/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "casefile: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)
	logger.Info("starting casefile server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DB.DSN)
	if err != nil {
		return fmt.Errorf("create db pool: %w", err)
	}
	defer pool.Close()

	a, err := app.New(ctx, cfg, pool, logger)
	if err != nil {
		return fmt.Errorf("initialize app: %w", err)
	}
	if err := a.Store.Migrate(ctx); err != nil {
		a.Close()
		return fmt.Errorf("apply migrations: %w", err)
	}
	return a.Run(ctx)
}
