package validation

import (
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/mutaflow/domain/identity"
	"github.com/felixgeelhaar/mutaflow/domain/mutation"
	"github.com/felixgeelhaar/mutaflow/domain/status"
)

// Outcome is the binary verdict of a reviewer.
type Outcome string

const (
	// Approve advances the request along the favorable branch.
	Approve Outcome = "APPROVE"

	// Reject advances the request along the unfavorable branch.
	Reject Outcome = "REJECT"
)

// Outcomes returns both outcomes.
func Outcomes() []Outcome {
	return []Outcome{Approve, Reject}
}

// ParseOutcome decodes a wire value.
func ParseOutcome(s string) (Outcome, error) {
	switch o := Outcome(strings.ToUpper(strings.TrimSpace(s))); o {
	case Approve, Reject:
		return o, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOutcome, s)
}

// Decision is an immutable record of one reviewer's verdict on a request.
type Decision struct {
	// ID is the unique identifier.
	ID string `json:"id"`

	// RequestID references the decided request.
	RequestID string `json:"request_id"`

	// ActorID identifies the reviewer.
	ActorID string `json:"actor_id"`

	// Role is the standing the reviewer acted under.
	Role identity.Role `json:"role"`

	// Outcome is the verdict.
	Outcome Outcome `json:"outcome"`

	// Comment is the mandatory justification.
	Comment string `json:"comment"`

	// FromStatus is the request status when the decision was taken.
	FromStatus status.Status `json:"from_status"`

	// ToStatus is the status the decision moved the request to.
	ToStatus status.Status `json:"to_status"`

	// CreatedAt is when the decision was recorded.
	CreatedAt time.Time `json:"created_at"`

	// Snapshot is the request as seen by the reviewer, if captured.
	Snapshot *mutation.Summary `json:"snapshot,omitempty"`
}

// Validate checks structural integrity.
func (d *Decision) Validate() error {
	switch {
	case d.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalidDecision)
	case d.RequestID == "":
		return fmt.Errorf("%w: missing request id", ErrInvalidDecision)
	case d.ActorID == "":
		return fmt.Errorf("%w: missing actor id", ErrInvalidDecision)
	case d.Role == "":
		return fmt.Errorf("%w: missing role", ErrInvalidDecision)
	case d.Outcome != Approve && d.Outcome != Reject:
		return fmt.Errorf("%w: %w: %q", ErrInvalidDecision, ErrUnknownOutcome, d.Outcome)
	case strings.TrimSpace(d.Comment) == "":
		return fmt.Errorf("%w: missing comment", ErrInvalidDecision)
	}
	return nil
}

// Clone returns a deep copy.
func (d *Decision) Clone() *Decision {
	if d == nil {
		return nil
	}
	c := *d
	if d.Snapshot != nil {
		s := *d.Snapshot
		s.Locations = append([]string(nil), d.Snapshot.Locations...)
		c.Snapshot = &s
	}
	return &c
}
