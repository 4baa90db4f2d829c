package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jw6ventures/casefile/internal/store"
)

func newConnectionsCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:     "connections <user-id>",
		Aliases: []string{"conns"},
		Short:   "List a user's connections and their sync state",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := e.openPool(cmd.Context())
			if err != nil {
				return err
			}
			conns, err := store.New(pool).Connections.ListByUser(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printConnections(cmd, conns)
			return nil
		},
	}
}

func printConnections(cmd *cobra.Command, conns []store.Connection) {
	out := cmd.OutOrStdout()
	if len(conns) == 0 {
		fmt.Fprintln(out, "no connections")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tSTATUS\tITEMS\tFAILED\tLAST SYNC\tLAST ERROR")
	for _, c := range conns {
		last := "never"
		if c.LastSyncAt != nil {
			last = c.LastSyncAt.UTC().Format(time.RFC3339)
		}
		lastErr := "-"
		if c.LastError != nil {
			lastErr = *c.LastError
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n", c.ID, c.Kind, c.Status, c.TotalItems, c.FailedItems, last, lastErr)
	}
	_ = tw.Flush()
}
