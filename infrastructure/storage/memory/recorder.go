package memory

import (
	"context"

	"github.com/felixgeelhaar/mutaflow/domain/mutation"
	"github.com/felixgeelhaar/mutaflow/domain/validation"
)

// Recorder commits a decision and its request change across a RequestStore
// and a DecisionStore while holding both store locks.
type Recorder struct {
	requests  *RequestStore
	decisions *DecisionStore
}

// NewRecorder creates a recorder over the given stores.
func NewRecorder(requests *RequestStore, decisions *DecisionStore) *Recorder {
	return &Recorder{requests: requests, decisions: decisions}
}

// Record inserts d and applies patch, or changes nothing.
func (r *Recorder) Record(ctx context.Context, d *validation.Decision, patch mutation.Patch) (*validation.Decision, *mutation.Request, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if err := d.Validate(); err != nil {
		return nil, nil, err
	}

	// Lock order: decisions, then requests.
	r.decisions.mu.Lock()
	defer r.decisions.mu.Unlock()
	r.requests.mu.Lock()
	defer r.requests.mu.Unlock()

	key := decisionKey{requestID: d.RequestID, role: d.Role}
	if _, taken := r.decisions.byPair[key]; taken {
		return nil, nil, validation.ErrDecisionExists
	}
	stored, exists := r.requests.requests[d.RequestID]
	if !exists {
		return nil, nil, mutation.ErrRequestNotFound
	}
	if err := patch.Check(stored.Status); err != nil {
		return nil, nil, err
	}

	updated := stored.Clone()
	patch.ApplyTo(updated)
	decision := d.Clone()

	r.requests.requests[d.RequestID] = updated
	r.decisions.decisions = append(r.decisions.decisions, decision)
	r.decisions.byPair[key] = decision.ID
	return decision.Clone(), updated.Clone(), nil
}

var _ validation.Recorder = (*Recorder)(nil)
