package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/mutaflow/application"
)

func (a *App) newVerifyCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "verify [request-id]",
		Short: "Replay the event log and compare it with stored statuses",
		Long: `Replay each request's events through the lifecycle chart under the
current policy tables and compare the result with the stored status.
Without an argument every stream in the event store is verified.

The command fails when any request is inconsistent.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			rt, err := buildRuntime(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close(context.Background()) }()

			var reports []*application.Report
			if len(args) == 1 {
				r, err := rt.replay.Verify(ctx, args[0])
				if err != nil {
					return err
				}
				reports = append(reports, r)
			} else {
				reports, err = rt.replay.VerifyAll(ctx)
				if err != nil {
					return err
				}
			}

			if jsonOutput {
				if err := writeJSON(a.stdout, reports); err != nil {
					return err
				}
			}
			bad := 0
			for _, r := range reports {
				if !r.Consistent() {
					bad++
				}
				if jsonOutput {
					continue
				}
				mark := "✓"
				if !r.Consistent() {
					mark = "✗"
				}
				fmt.Fprintf(a.stdout, "%s %s: %d events, replayed %s\n", mark, r.RequestID, r.Events, r.Replayed)
				for _, p := range r.Problems {
					fmt.Fprintf(a.stdout, "    %s\n", p)
				}
			}
			if bad > 0 {
				return fmt.Errorf("%d of %d request(s) inconsistent", bad, len(reports))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
