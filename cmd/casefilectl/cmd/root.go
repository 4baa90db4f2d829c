// Package cmd implements casefilectl, the operator CLI.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jw6ventures/casefile/internal/config"
	"github.com/jw6ventures/casefile/internal/logging"
)

// env holds what every subcommand needs. The pool is opened on first use
// so commands that never touch the database work without one.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	pool   *pgxpool.Pool
}

func (e *env) openPool(ctx context.Context) (*pgxpool.Pool, error) {
	if e.pool != nil {
		return e.pool, nil
	}
	pool, err := pgxpool.New(ctx, e.cfg.DB.DSN)
	if err != nil {
		return nil, fmt.Errorf("create db pool: %w", err)
	}
	e.pool = pool
	return pool, nil
}

func (e *env) close() {
	if e.pool != nil {
		e.pool.Close()
	}
	if e.logger != nil {
		_ = e.logger.Sync()
	}
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:           "casefilectl",
		Short:         "Operate a casefile deployment",
		Long:          "casefilectl applies migrations, runs sync passes by hand, issues API tokens and inspects connections.\nConfiguration comes from the same APP_* environment variables as the server.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			level, _ := cmd.Flags().GetString("log-level")
			if level == "" {
				level = cfg.Log.Level
			}
			logger, err := logging.New(level, "console")
			if err != nil {
				return err
			}
			zap.ReplaceGlobals(logger)
			e.cfg, e.logger = cfg, logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			e.close()
		},
	}
	root.PersistentFlags().String("log-level", "", "log level (default from APP_LOG_LEVEL)")

	root.AddCommand(
		newMigrateCommand(e),
		newSyncCommand(e),
		newTokenCommand(e),
		newConnectionsCommand(e),
	)
	return root
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
