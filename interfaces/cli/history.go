package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

func (a *App) newHistoryCmd() *cobra.Command {
	var (
		actor      actorFlags
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the decisions an actor made under its role",
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

			who, err := actor.resolve(ctx, rt)
			if err != nil {
				return err
			}
			entries, err := rt.service.History(ctx, who)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(a.stdout, entries)
			}

			rows := make([][]any, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []any{
					e.Decision.CreatedAt.Format(time.DateTime),
					e.Decision.RequestID,
					e.Decision.Outcome,
					e.Decision.ToStatus,
					e.Request.RequesterName,
					e.Source,
				})
			}
			return table(a.stdout, "DECIDED\tREQUEST\tOUTCOME\tTO\tREQUESTER\tSOURCE", rows)
		},
	}
	actor.register(cmd)
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
