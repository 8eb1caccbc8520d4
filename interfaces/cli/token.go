package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/mutaflow/domain/identity"
)

func (a *App) newTokenCmd() *cobra.Command {
	var (
		id    string
		role  string
		scope string
		ttl   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for development",
		Long: `Mint an HS256 bearer token signed with identity.jwt.secret.

Example:
  mutaflow token -c config.yaml --id u42 --role RESPONSABLE --scope svc-12`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			r, err := identity.ParseRole(role)
			if err != nil {
				return err
			}
			if id == "" {
				return fmt.Errorf("--id is required")
			}
			p, err := newJWTProvider(cfg)
			if err != nil {
				return err
			}
			token, err := p.Issue(identity.Actor{ID: id, Role: r, Scope: scope}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, token)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Actor id (token subject)")
	cmd.Flags().StringVar(&role, "role", "", "AGENT, RESPONSABLE, DGR, CVR or DNCF")
	cmd.Flags().StringVar(&scope, "scope", "", "Organizational unit of the actor")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (defaults to identity.jwt.ttl)")
	return cmd
}
