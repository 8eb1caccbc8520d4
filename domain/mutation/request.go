package mutation

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/mutaflow/domain/status"
)

// Kind distinguishes ordinary from strategic requests.
type Kind string

const (
	// KindOrdinary is the default request kind.
	KindOrdinary Kind = "ORDINAIRE"

	// KindStrategic follows its own policy table.
	KindStrategic Kind = "STRATEGIQUE"
)

// ParseKind decodes a wire value. Empty defaults to KindOrdinary.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToUpper(strings.TrimSpace(s))); k {
	case "":
		return KindOrdinary, nil
	case KindOrdinary, KindStrategic:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Request is a staff mutation demand.
type Request struct {
	// ID is the unique identifier.
	ID string `json:"id"`

	// Kind selects the policy table that governs the request.
	Kind Kind `json:"kind"`

	// Requester is the agent asking to move.
	Requester Requester `json:"requester"`

	// DesiredPostID optionally references a target post.
	DesiredPostID string `json:"desired_post_id,omitempty"`

	// DesiredLocations lists the wished locations in preference order.
	DesiredLocations []string `json:"desired_locations"`

	// Motive is the free-text justification.
	Motive string `json:"motive"`

	// Status is the current lifecycle status.
	Status status.Status `json:"status"`

	// CreatedAt is when the request was created.
	CreatedAt time.Time `json:"created_at"`

	// SubmittedAt is when the request left draft.
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`

	// UpdatedAt is when the request last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// NewDraft creates a request in draft for a resolved agent.
func NewDraft(agent Agent, kind Kind, motive string, locations []string, now time.Time) *Request {
	return &Request{
		ID:               uuid.NewString(),
		Kind:             kind,
		Requester:        Resolved(agent),
		DesiredLocations: append([]string(nil), locations...),
		Motive:           motive,
		Status:           status.Draft,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// NewPublicSubmission creates a request that bypasses draft.
func NewPublicSubmission(snapshot AgentSnapshot, kind Kind, motive string, locations []string, now time.Time) *Request {
	submitted := now
	return &Request{
		ID:               uuid.NewString(),
		Kind:             kind,
		Requester:        Inline(snapshot),
		DesiredLocations: append([]string(nil), locations...),
		Motive:           motive,
		Status:           status.Submitted,
		CreatedAt:        now,
		SubmittedAt:      &submitted,
		UpdatedAt:        now,
	}
}

// Validate checks structural integrity.
func (r *Request) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidRequest)
	}
	if r.Kind != KindOrdinary && r.Kind != KindStrategic {
		return fmt.Errorf("%w: %w: %q", ErrInvalidRequest, ErrUnknownKind, r.Kind)
	}
	if !r.Status.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrInvalidRequest, status.ErrUnknownStatus, r.Status)
	}
	if r.Requester.IsZero() {
		return fmt.Errorf("%w: missing requester", ErrInvalidRequest)
	}
	return nil
}

// ValidateForSubmission checks that the request carries what reviewers need.
func (r *Request) ValidateForSubmission() error {
	if err := r.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(r.Motive) == "" {
		return fmt.Errorf("%w: missing motive", ErrInvalidRequest)
	}
	if len(r.DesiredLocations) == 0 {
		return fmt.Errorf("%w: at least one desired location is required", ErrInvalidRequest)
	}
	return nil
}

// Clone returns a deep copy.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	c := *r
	c.DesiredLocations = append([]string(nil), r.DesiredLocations...)
	if r.SubmittedAt != nil {
		t := *r.SubmittedAt
		c.SubmittedAt = &t
	}
	return &c
}

// Summary is the read-only view joined into history entries.
type Summary struct {
	RequestID     string    `json:"request_id"`
	Resolved      bool      `json:"resolved"`
	RequesterName string    `json:"requester_name,omitempty"`
	Matricule     string    `json:"matricule,omitempty"`
	ServiceID     string    `json:"service_id,omitempty"`
	Motive        string    `json:"motive,omitempty"`
	Kind          Kind      `json:"kind,omitempty"`
	Locations     []string  `json:"desired_locations,omitempty"`
	SubmittedAt   time.Time `json:"submitted_at,omitempty"`
}

// Summarize captures the fields displayed in history views.
func (r *Request) Summarize() Summary {
	s := Summary{
		RequestID:     r.ID,
		Resolved:      true,
		RequesterName: r.Requester.Name(),
		Matricule:     r.Requester.Matricule(),
		ServiceID:     r.Requester.ServiceID(),
		Motive:        r.Motive,
		Kind:          r.Kind,
		Locations:     append([]string(nil), r.DesiredLocations...),
	}
	if r.SubmittedAt != nil {
		s.SubmittedAt = *r.SubmittedAt
	}
	return s
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	// ExpectedStatus makes the update a compare-and-set when non-empty.
	ExpectedStatus status.Status

	Status           *status.Status
	Motive           *string
	DesiredPostID    *string
	DesiredLocations []string
	SubmittedAt      *time.Time
	UpdatedAt        time.Time
}

// ApplyTo mutates req in place.
func (p Patch) ApplyTo(req *Request) {
	if p.Status != nil {
		req.Status = *p.Status
	}
	if p.Motive != nil {
		req.Motive = *p.Motive
	}
	if p.DesiredPostID != nil {
		req.DesiredPostID = *p.DesiredPostID
	}
	if p.DesiredLocations != nil {
		req.DesiredLocations = append([]string(nil), p.DesiredLocations...)
	}
	if p.SubmittedAt != nil {
		t := *p.SubmittedAt
		req.SubmittedAt = &t
	}
	if !p.UpdatedAt.IsZero() {
		req.UpdatedAt = p.UpdatedAt
	}
}

// Check returns ErrStatusConflict when current does not match the expected status.
func (p Patch) Check(current status.Status) error {
	if p.ExpectedStatus != "" && p.ExpectedStatus != current {
		return fmt.Errorf("%w: expected %s, found %s", ErrStatusConflict, p.ExpectedStatus, current)
	}
	return nil
}
