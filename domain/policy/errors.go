package policy

import "errors"

// Domain errors for role policy enforcement.
var (
	// ErrRoleNotAuthorizedForStatus indicates a role attempted a transition
	// from a status outside its actionable set.
	ErrRoleNotAuthorizedForStatus = errors.New("role not authorized for status")

	// ErrNoStage indicates the role holds no review stage in the policy.
	ErrNoStage = errors.New("role holds no review stage")

	// ErrInvalidPolicy indicates the policy table is inconsistent.
	ErrInvalidPolicy = errors.New("invalid policy")
)
