package mutation

import (
	"context"

	"github.com/felixgeelhaar/mutaflow/domain/status"
)

// Store persists mutation requests. Requests are never deleted.
type Store interface {
	// Save persists a new request.
	Save(ctx context.Context, req *Request) error

	// Get retrieves a request by ID.
	Get(ctx context.Context, id string) (*Request, error)

	// List returns requests matching the filter. The zero filter matches all.
	List(ctx context.Context, filter ListFilter) ([]*Request, error)

	// Update applies patch to the request. When patch.ExpectedStatus is set and
	// differs from the stored status, it fails with ErrStatusConflict and
	// leaves the record untouched.
	Update(ctx context.Context, id string, patch Patch) (*Request, error)
}

// ListFilter filters request queries.
type ListFilter struct {
	// Status filters by current status.
	Status []status.Status

	// Kind filters by request kind.
	Kind Kind

	// RequesterID filters by resolved agent ID.
	RequesterID string
}

// Matches reports whether req satisfies the filter.
func (f ListFilter) Matches(req *Request) bool {
	if f.Kind != "" && req.Kind != f.Kind {
		return false
	}
	if f.RequesterID != "" && req.Requester.AgentID() != f.RequesterID {
		return false
	}
	if len(f.Status) > 0 {
		for _, s := range f.Status {
			if req.Status == s {
				return true
			}
		}
		return false
	}
	return true
}
