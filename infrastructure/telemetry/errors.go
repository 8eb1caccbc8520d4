package telemetry

import (
	"errors"

	"github.com/felixgeelhaar/mutaflow/domain/mutation"
	"github.com/felixgeelhaar/mutaflow/domain/workflow"
	"github.com/felixgeelhaar/mutaflow/infrastructure/distributed/lock"
)

var errorKinds = []struct {
	err  error
	kind string
}{
	{workflow.ErrMissingComment, "missing_comment"},
	{workflow.ErrDuplicateDecision, "duplicate_decision"},
	{workflow.ErrInvalidStateForRole, "invalid_state"},
	{workflow.ErrRoleNotAuthorizedForStatus, "role_not_authorized"},
	{workflow.ErrOutOfScope, "out_of_scope"},
	{workflow.ErrUnresolvedScope, "unresolved_scope"},
	{workflow.ErrNotRequester, "not_requester"},
	{workflow.ErrUnknownStatus, "unknown_status"},
	{mutation.ErrStatusConflict, "conflict"},
	{lock.ErrLockHeld, "busy"},
	{mutation.ErrRequestNotFound, "not_found"},
}

// ErrorKind maps an error to a low-cardinality label.
func ErrorKind(err error) string {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "internal"
}
