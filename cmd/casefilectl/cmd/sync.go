package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jw6ventures/casefile/internal/app"
	"github.com/jw6ventures/casefile/internal/syncer"
)

func newSyncCommand(e *env) *cobra.Command {
	var quiet bool
	c := &cobra.Command{
		Use:   "sync <connection-id>",
		Short: "Run one sync pass for a connection and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := e.openPool(cmd.Context())
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), e.cfg, pool, e.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			var progress syncer.ProgressFunc
			if !quiet {
				progress = func(p syncer.Progress) {
					fmt.Fprintf(out, "[%d/%d] %s %s (ok %d, failed %d)\n", p.Index, p.Total, p.Phase, p.Name, p.Succeeded, p.Failed)
				}
			}
			res, runErr := a.Engine.RunPass(cmd.Context(), args[0], progress)
			if res != nil {
				printResult(cmd, res)
			}
			return runErr
		},
	}
	c.Flags().BoolVarP(&quiet, "quiet", "q", false, "only print the summary")
	return c
}

func printResult(cmd *cobra.Command, res *syncer.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "processed %d: %d succeeded (%d unchanged), %d failed in %s\n",
		res.Processed, res.Succeeded, res.Skipped, res.Failed, res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond))
	for _, item := range res.Errors {
		fmt.Fprintf(out, "  %s: %s\n", item.Name, item.Message)
	}
	if res.Error != "" {
		fmt.Fprintf(out, "pass aborted: %s\n", res.Error)
	}
}
