package validation

import (
	"context"

	"github.com/felixgeelhaar/mutaflow/domain/identity"
	"github.com/felixgeelhaar/mutaflow/domain/mutation"
)

// Store persists decisions. Decisions are append-only.
type Store interface {
	// List returns decisions matching the filter. The zero filter matches all.
	List(ctx context.Context, filter ListFilter) ([]*Decision, error)

	// Create appends a decision. It fails with ErrDecisionExists when a
	// decision for the same (RequestID, Role) is already stored; the check
	// and the insert are atomic.
	Create(ctx context.Context, d *Decision) (*Decision, error)
}

// Recorder stores a decision together with the request change it causes.
type Recorder interface {
	// Record inserts d and applies patch to the request d.RequestID as one
	// unit of work: either both writes are kept or neither is. It fails with
	// ErrDecisionExists when the (RequestID, Role) pair is taken and with
	// mutation.ErrStatusConflict when patch.ExpectedStatus no longer holds.
	Record(ctx context.Context, d *Decision, patch mutation.Patch) (*Decision, *mutation.Request, error)
}

// ListFilter filters decision queries.
type ListFilter struct {
	RequestID string
	ActorID   string
	Role      identity.Role
}

// Matches reports whether d satisfies the filter.
func (f ListFilter) Matches(d *Decision) bool {
	if f.RequestID != "" && d.RequestID != f.RequestID {
		return false
	}
	if f.ActorID != "" && d.ActorID != f.ActorID {
		return false
	}
	if f.Role != "" && d.Role != f.Role {
		return false
	}
	return true
}
