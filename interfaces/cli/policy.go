package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/mutaflow/domain/mutation"
	"github.com/felixgeelhaar/mutaflow/domain/policy"
	"github.com/felixgeelhaar/mutaflow/infrastructure/config"
)

func (a *App) newPolicyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect and validate role policy tables",
	}
	cmd.AddCommand(a.newPolicyValidateCmd(), a.newPolicyShowCmd())
	return cmd
}

func (a *App) newPolicyValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [policy-file]",
		Short: "Validate a policy file, or the tables of the configuration",
		Long: `Validate role policy tables. With a file argument the file is checked on
its own; otherwise the tables the configuration resolves to are checked.

Checks: every status is known, each role owns at most one stage, each status
is actionable by at most one role, and no stage leads back to its own inputs.

Examples:
  mutaflow policy validate policies.yaml
  mutaflow policy validate -c config.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := a.resolvePolicies(args)
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}
			fmt.Fprintf(a.stdout, "✓ Policy tables are valid\n")
			for _, kind := range []mutation.Kind{mutation.KindOrdinary, mutation.KindStrategic} {
				p, err := set.For(kind)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "  %s: %s, %d stages\n", kind, p.Name, len(p.Stages))
			}
			return nil
		},
	}
}

func (a *App) newPolicyShowCmd() *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "show [policy-file]",
		Short: "Print the resolved policy tables as YAML",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := a.resolvePolicies(args)
			if err != nil {
				return err
			}
			var out any = set
			if kind != "" {
				k, err := mutation.ParseKind(kind)
				if err != nil {
					return err
				}
				p, err := set.For(k)
				if err != nil {
					return err
				}
				out = p
			}
			enc := yaml.NewEncoder(a.stdout)
			enc.SetIndent(2)
			if err := enc.Encode(out); err != nil {
				return err
			}
			return enc.Close()
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Only show the table for ORDINAIRE or STRATEGIQUE")
	return cmd
}

func (a *App) resolvePolicies(args []string) (*policy.Set, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	if len(args) == 1 {
		return config.NewLoader().LoadPolicyFile(args[0], cfg.Policies.Options)
	}
	return config.NewLoader().PolicySet(cfg)
}
