// Package workflow is the workflow engine: the only place a request's status
// changes, plus the queue and history projections reviewers read from.
package workflow

import (
	"errors"

	"github.com/felixgeelhaar/mutaflow/domain/policy"
	"github.com/felixgeelhaar/mutaflow/domain/status"
)

// Errors surfaced to the acting user. None of them is retried by the engine.
var (
	// ErrMissingComment indicates an empty or blank justification.
	ErrMissingComment = errors.New("a non-empty comment is required")

	// ErrInvalidStateForRole indicates the request status is not actionable by the role.
	ErrInvalidStateForRole = errors.New("request is not in a state this role can act on")

	// ErrDuplicateDecision indicates the role already decided this request.
	ErrDuplicateDecision = errors.New("this role already decided the request")

	// ErrUnresolvedScope indicates a scoped stage could not match actor and requester units.
	ErrUnresolvedScope = errors.New("organizational scope could not be resolved")

	// ErrOutOfScope indicates the requester belongs to another organizational unit.
	ErrOutOfScope = errors.New("request is outside the actor's scope")

	// ErrNotRequester indicates a requester-only operation attempted by someone else.
	ErrNotRequester = errors.New("only the requester may perform this operation")

	// ErrUnknownStatus is re-exported from the status registry.
	ErrUnknownStatus = status.ErrUnknownStatus

	// ErrRoleNotAuthorizedForStatus is re-exported from the role policy.
	ErrRoleNotAuthorizedForStatus = policy.ErrRoleNotAuthorizedForStatus
)
