package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jw6ventures/casefile/internal/store"
)

func newMigrateCommand(e *env) *cobra.Command {
	var dryRun bool
	c := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := e.openPool(cmd.Context())
			if err != nil {
				return err
			}
			pending, err := store.PendingMigrations(cmd.Context(), pool)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(pending) == 0 {
				fmt.Fprintln(out, "database is up to date")
				return nil
			}
			for _, name := range pending {
				fmt.Fprintf(out, "pending: %s\n", name)
			}
			if dryRun {
				return nil
			}
			if err := store.ApplyMigrations(cmd.Context(), pool); err != nil {
				return err
			}
			fmt.Fprintf(out, "applied %d migration(s)\n", len(pending))
			return nil
		},
	}
	c.Flags().BoolVar(&dryRun, "dry-run", false, "list pending migrations without applying them")
	return c
}
