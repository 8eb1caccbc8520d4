package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/felixgeelhaar/mutaflow/domain/identity"
	"github.com/felixgeelhaar/mutaflow/domain/validation"
)

type decisionKey struct {
	requestID string
	role      identity.Role
}

// DecisionStore is an in-memory implementation of validation.Store.
type DecisionStore struct {
	mu        sync.RWMutex
	decisions []*validation.Decision
	byPair    map[decisionKey]string
}

// NewDecisionStore creates a new in-memory decision store.
func NewDecisionStore() *DecisionStore {
	return &DecisionStore{
		byPair: make(map[decisionKey]string),
	}
}

// List returns decisions matching the filter in insertion order.
func (s *DecisionStore) List(ctx context.Context, filter validation.ListFilter) ([]*validation.Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]*validation.Decision, 0)
	for _, d := range s.decisions {
		if filter.Matches(d) {
			results = append(results, d.Clone())
		}
	}
	return results, nil
}

// Create appends d unless the (request, role) pair is taken.
func (s *DecisionStore) Create(ctx context.Context, d *validation.Decision) (*validation.Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := decisionKey{requestID: d.RequestID, role: d.Role}
	if _, taken := s.byPair[key]; taken {
		return nil, validation.ErrDecisionExists
	}
	stored := d.Clone()
	s.decisions = append(s.decisions, stored)
	s.byPair[key] = stored.ID
	return stored.Clone(), nil
}

// Len returns the number of stored decisions.
func (s *DecisionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.decisions)
}

// Sorted returns all decisions ordered by creation time.
func (s *DecisionStore) Sorted() []*validation.Decision {
	s.mu.RLock()
	out := make([]*validation.Decision, len(s.decisions))
	for i, d := range s.decisions {
		out[i] = d.Clone()
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

var _ validation.Store = (*DecisionStore)(nil)
