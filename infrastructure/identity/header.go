package identity

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/felixgeelhaar/mutaflow/domain/identity"
)

// Headers set by a fronting gateway in header mode.
const (
	ActorIDHeader    = "X-Actor-ID"
	ActorRoleHeader  = "X-Actor-Role"
	ActorScopeHeader = "X-Actor-Scope"
)

// HeaderProvider trusts the actor headers as presented. Deploy it only
// behind a proxy that authenticates users and strips client-set headers.
type HeaderProvider struct{}

// NewHeaderProvider creates a header provider.
func NewHeaderProvider() *HeaderProvider {
	return &HeaderProvider{}
}

// Authenticate decodes an "id;ROLE;scope" credential. The scope is optional.
func (HeaderProvider) Authenticate(_ context.Context, credential string) (identity.Actor, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return identity.Actor{}, identity.ErrUnauthenticated
	}

	parts := strings.Split(credential, ";")
	if len(parts) < 2 || len(parts) > 3 {
		return identity.Actor{}, fmt.Errorf("%w: expected id;role[;scope]", identity.ErrInvalidCredentials)
	}

	id := strings.TrimSpace(parts[0])
	if id == "" {
		return identity.Actor{}, fmt.Errorf("%w: empty actor id", identity.ErrInvalidCredentials)
	}
	role, err := identity.ParseRole(parts[1])
	if err != nil {
		return identity.Actor{}, fmt.Errorf("%w: %w", identity.ErrInvalidCredentials, err)
	}

	actor := identity.Actor{ID: id, Role: role}
	if len(parts) == 3 {
		actor.Scope = strings.TrimSpace(parts[2])
	}
	return actor, nil
}

// EncodeHeader formats actor as an "id;ROLE;scope" credential.
func EncodeHeader(actor identity.Actor) string {
	if actor.Scope == "" {
		return actor.ID + ";" + string(actor.Role)
	}
	return actor.ID + ";" + string(actor.Role) + ";" + actor.Scope
}

// CredentialFunc extracts the raw credential from a request.
type CredentialFunc func(r *http.Request) string

// BearerCredential returns the token of an "Authorization: Bearer" header.
func BearerCredential(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}

// HeaderCredential joins the actor headers into an "id;ROLE;scope"
// credential. It returns "" when no actor id is present.
func HeaderCredential(r *http.Request) string {
	id := strings.TrimSpace(r.Header.Get(ActorIDHeader))
	if id == "" {
		return ""
	}
	return EncodeHeader(identity.Actor{
		ID:    id,
		Role:  identity.Role(strings.TrimSpace(r.Header.Get(ActorRoleHeader))),
		Scope: strings.TrimSpace(r.Header.Get(ActorScopeHeader)),
	})
}

var _ identity.Provider = HeaderProvider{}
