package event

import (
	"github.com/felixgeelhaar/mutaflow/domain/identity"
	"github.com/felixgeelhaar/mutaflow/domain/mutation"
	"github.com/felixgeelhaar/mutaflow/domain/status"
	"github.com/felixgeelhaar/mutaflow/domain/validation"
)

// Type classifies domain events.
type Type string

// Event types for the request lifecycle.
const (
	TypeRequestCreated    Type = "request.created"
	TypeRequestEdited     Type = "request.edited"
	TypeRequestSubmitted  Type = "request.submitted"
	TypeReviewOpened      Type = "review.opened"
	TypeDecisionRecorded  Type = "decision.recorded"
	TypeRequestIneligible Type = "request.ineligible"
)

// CreatedPayload contains data for request.created events.
type CreatedPayload struct {
	Kind      mutation.Kind          `json:"kind"`
	Status    status.Status          `json:"status"`
	Requester mutation.RequesterKind `json:"requester"`
}

// EditedPayload contains data for request.edited events.
type EditedPayload struct {
	ActorID string   `json:"actor_id"`
	Fields  []string `json:"fields"`
}

// TransitionPayload contains data for transition events. Path lists every
// status entered, the last being the resulting status.
type TransitionPayload struct {
	ActorID string          `json:"actor_id"`
	Role    identity.Role   `json:"role"`
	From    status.Status   `json:"from"`
	Path    []status.Status `json:"path"`

	// Decision fields, set on decision.recorded and request.ineligible.
	DecisionID string             `json:"decision_id,omitempty"`
	Outcome    validation.Outcome `json:"outcome,omitempty"`
}

// To returns the resulting status.
func (p TransitionPayload) To() status.Status {
	if len(p.Path) == 0 {
		return p.From
	}
	return p.Path[len(p.Path)-1]
}
