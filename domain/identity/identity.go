// Package identity describes who is acting on a request.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownRole indicates a role outside the enumeration.
	ErrUnknownRole = errors.New("unknown role")

	// ErrUnauthenticated indicates no actor could be established for the call.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrInvalidCredentials indicates the presented credentials were rejected.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Role is the standing an actor holds in the review chain.
type Role string

const (
	// RoleAgent is a requester. It holds no review stage.
	RoleAgent Role = "AGENT"

	// RoleResponsable is the line manager, scoped to an organizational service.
	RoleResponsable Role = "RESPONSABLE"

	// RoleDGR is the regional directorate.
	RoleDGR Role = "DGR"

	// RoleCVR is the verification committee.
	RoleCVR Role = "CVR"

	// RoleDNCF is the national final-decision body.
	RoleDNCF Role = "DNCF"
)

// Reviewers returns the review roles in chain order.
func Reviewers() []Role {
	return []Role{RoleResponsable, RoleDGR, RoleCVR, RoleDNCF}
}

// ParseRole decodes a wire value.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	switch r {
	case RoleAgent, RoleResponsable, RoleDGR, RoleCVR, RoleDNCF:
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

// UnmarshalText decodes and validates a role.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	// ID identifies the user.
	ID string `json:"id"`

	// Role is the standing the user acts under for this call.
	Role Role `json:"role"`

	// Scope is the organizational unit the actor is bound to. Empty when unscoped.
	Scope string `json:"scope,omitempty"`
}

// Provider resolves the actor of the current call from its credentials.
type Provider interface {
	// Authenticate returns the actor for the presented credential.
	Authenticate(ctx context.Context, credential string) (Actor, error)
}

type actorKey struct{}

// WithActor returns a context carrying the actor.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// FromContext returns the actor carried by ctx.
func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}
