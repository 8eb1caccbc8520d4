package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/mutaflow/domain/identity"
	"github.com/felixgeelhaar/mutaflow/domain/workflow"
)

type queueOptions struct {
	actor      actorFlags
	watch      bool
	jsonOutput bool
}

func (a *App) newQueueCmd() *cobra.Command {
	opts := &queueOptions{}

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Show the requests an actor can act on",
		Long: `Show the worklist of a reviewer against the configured storage.

Examples:
  # Line manager of unit svc-12
  mutaflow queue -c config.yaml --as "u42;RESPONSABLE;svc-12"

  # Refresh at queue.refresh_interval until interrupted
  mutaflow queue -c config.yaml --as "u7;DGR" --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.queue(cmd.Context(), opts)
		},
	}
	opts.actor.register(cmd)
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Re-read the queue at the configured refresh interval")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func (a *App) queue(ctx context.Context, opts *queueOptions) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	rt, err := buildRuntime(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close(context.Background()) }()

	actor, err := opts.actor.resolve(ctx, rt)
	if err != nil {
		return err
	}

	if err := a.printQueue(ctx, rt, actor, opts.jsonOutput); err != nil || !opts.watch {
		return err
	}

	ticker := time.NewTicker(rt.service.RefreshInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := a.printQueue(ctx, rt, actor, opts.jsonOutput); err != nil {
				return err
			}
		}
	}
}

func (a *App) printQueue(ctx context.Context, rt *runtime, actor identity.Actor, jsonOutput bool) error {
	q, err := rt.service.Queue(ctx, actor)
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(a.stdout, q)
	}
	return printQueueTable(a, q)
}

func printQueueTable(a *App, q workflow.Queue) error {
	fmt.Fprintf(a.stdout, "Queue of %s (%s) at %s: %d request(s)\n",
		q.ActorID, q.Role, time.Now().Format(time.TimeOnly), len(q.Requests))
	for _, w := range q.Warnings {
		fmt.Fprintf(a.stdout, "  ! %s\n", w.Message)
	}
	if len(q.Requests) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(q.Requests))
	for _, r := range q.Requests {
		submitted := "-"
		if r.SubmittedAt != nil {
			submitted = r.SubmittedAt.Format(time.DateTime)
		}
		rows = append(rows, []any{r.ID, r.Kind, r.Status, r.Requester.Name(), submitted})
	}
	return table(a.stdout, "ID\tKIND\tSTATUS\tREQUESTER\tSUBMITTED", rows)
}
