package cli

import (
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/mutaflow/application"
	"github.com/felixgeelhaar/mutaflow/domain/workflow"
	"github.com/felixgeelhaar/mutaflow/infrastructure/config"
)

func (a *App) newStatusesCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "statuses",
		Short: "List every request status with its label and owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			set, err := config.NewLoader().PolicySet(cfg)
			if err != nil {
				return err
			}
			infos := application.Catalogue(workflow.NewEngine(workflow.StaticSource{Set: set}))
			if jsonOutput {
				return writeJSON(a.stdout, infos)
			}

			rows := make([][]any, 0, len(infos))
			for _, info := range infos {
				terminal := ""
				if info.Terminal {
					terminal = "terminal"
				}
				owner := string(info.Owner)
				if owner == "" {
					owner = "-"
				}
				rows = append(rows, []any{info.Ordinal, info.Status, info.Label, owner, terminal})
			}
			return table(a.stdout, "#\tSTATUS\tLABEL\tOWNER\t", rows)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
