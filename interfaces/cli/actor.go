package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/mutaflow/domain/identity"
	infraidentity "github.com/felixgeelhaar/mutaflow/infrastructure/identity"
)

// actorFlags selects who a read command runs as.
type actorFlags struct {
	as    string
	token string
}

func (f *actorFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.as, "as", "", `Actor as "id;ROLE[;scope]"`)
	cmd.Flags().StringVar(&f.token, "token", "", "Bearer token issued by the configured JWT provider")
}

func (f *actorFlags) resolve(ctx context.Context, rt *runtime) (identity.Actor, error) {
	switch {
	case f.token != "":
		if rt.jwt == nil {
			return identity.Actor{}, errors.New("--token needs identity.provider: jwt")
		}
		return rt.jwt.Authenticate(ctx, f.token)
	case f.as != "":
		return infraidentity.NewHeaderProvider().Authenticate(ctx, f.as)
	}
	return identity.Actor{}, errors.New("one of --as or --token is required")
}
