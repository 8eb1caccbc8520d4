// Package memory provides in-memory storage implementations.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/felixgeelhaar/mutaflow/domain/mutation"
)

// RequestStore is an in-memory implementation of mutation.Store.
type RequestStore struct {
	mu       sync.RWMutex
	requests map[string]*mutation.Request
}

// NewRequestStore creates a new in-memory request store.
func NewRequestStore() *RequestStore {
	return &RequestStore{
		requests: make(map[string]*mutation.Request),
	}
}

// Save persists a new request.
func (s *RequestStore) Save(ctx context.Context, req *mutation.Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.requests[req.ID]; exists {
		return mutation.ErrRequestExists
	}
	s.requests[req.ID] = req.Clone()
	return nil
}

// Get retrieves a request by ID.
func (s *RequestStore) Get(ctx context.Context, id string) (*mutation.Request, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	req, exists := s.requests[id]
	if !exists {
		return nil, mutation.ErrRequestNotFound
	}
	return req.Clone(), nil
}

// List returns requests matching the filter, oldest first.
func (s *RequestStore) List(ctx context.Context, filter mutation.ListFilter) ([]*mutation.Request, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]*mutation.Request, 0, len(s.requests))
	for _, req := range s.requests {
		if filter.Matches(req) {
			results = append(results, req.Clone())
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if !results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].CreatedAt.Before(results[j].CreatedAt)
		}
		return results[i].ID < results[j].ID
	})
	return results, nil
}

// Update applies patch under the store lock, so the status check and the
// write are atomic.
func (s *RequestStore) Update(ctx context.Context, id string, patch mutation.Patch) (*mutation.Request, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.requests[id]
	if !exists {
		return nil, mutation.ErrRequestNotFound
	}
	if err := patch.Check(stored.Status); err != nil {
		return nil, err
	}

	updated := stored.Clone()
	patch.ApplyTo(updated)
	s.requests[id] = updated
	return updated.Clone(), nil
}

// Len returns the number of stored requests.
func (s *RequestStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.requests)
}

var _ mutation.Store = (*RequestStore)(nil)
