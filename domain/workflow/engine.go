package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/mutaflow/domain/identity"
	"github.com/felixgeelhaar/mutaflow/domain/mutation"
	"github.com/felixgeelhaar/mutaflow/domain/policy"
	"github.com/felixgeelhaar/mutaflow/domain/status"
	"github.com/felixgeelhaar/mutaflow/domain/validation"
)

// PolicySource supplies the policy set in force for a call.
type PolicySource interface {
	Current() *policy.Set
}

// StaticSource is a PolicySource that never changes.
type StaticSource struct {
	Set *policy.Set
}

// Current returns the fixed set.
func (s StaticSource) Current() *policy.Set {
	return s.Set
}

// Engine computes transitions over request snapshots. It holds no request
// state between calls.
type Engine struct {
	policies PolicySource
	now      func() time.Time
	newID    func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithIDGenerator overrides decision ID generation.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) {
		e.newID = newID
	}
}

// NewEngine creates an engine over the given policies.
func NewEngine(policies PolicySource, opts ...Option) *Engine {
	e := &Engine{
		policies: policies,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policies returns the set currently in force.
func (e *Engine) Policies() *policy.Set {
	return e.policies.Current()
}

// PolicyFor returns the table governing req.
func (e *Engine) PolicyFor(req *mutation.Request) (*policy.Policy, error) {
	return e.policies.Current().For(req.Kind)
}

// Transition is the outcome of a successful engine operation.
type Transition struct {
	// Request is an updated copy; the input snapshot is not modified.
	Request *mutation.Request

	// From is the status before the operation.
	From status.Status

	// Path lists every status entered, in order. The last one is Request.Status.
	Path []status.Status

	// Patch persists the change as a compare-and-set on From.
	Patch mutation.Patch

	// Decision is the record to append, if the operation produces one.
	Decision *validation.Decision
}

// To returns the final status.
func (t *Transition) To() status.Status {
	return t.Request.Status
}

// Submit moves a draft to SUBMITTED on behalf of its requester, and on into
// the first review status when the policy opens it automatically.
func (e *Engine) Submit(req *mutation.Request, actor identity.Actor) (*Transition, error) {
	if req.Requester.AgentID() == "" || req.Requester.AgentID() != actor.ID {
		return nil, fmt.Errorf("%w: %s", ErrNotRequester, actor.ID)
	}
	if req.Status != status.Draft {
		return nil, fmt.Errorf("%w: %w", ErrInvalidStateForRole, mutation.ErrNotDraft)
	}
	if err := req.ValidateForSubmission(); err != nil {
		return nil, err
	}
	p, err := e.PolicyFor(req)
	if err != nil {
		return nil, err
	}

	now := e.now()
	path := []status.Status{status.Submitted}
	if first, ok := p.FirstStage(); ok && p.AutoOpenFirstReview && first.IsEntry(status.Submitted) {
		path = append(path, first.Review)
	}
	t := e.transition(req, path, now)
	t.Request.SubmittedAt = &now
	t.Patch.SubmittedAt = &now
	return t, nil
}

// OpenReview moves a request from a stage entry status to its review status.
func (e *Engine) OpenReview(req *mutation.Request, actor identity.Actor) (*Transition, error) {
	if !req.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, string(req.Status))
	}
	p, err := e.PolicyFor(req)
	if err != nil {
		return nil, err
	}
	review, err := p.ReviewFor(actor.Role, req.Status)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidStateForRole, err)
	}
	stage, _ := p.Stage(actor.Role)
	if err := checkScope(stage, actor, req); err != nil {
		return nil, err
	}
	return e.transition(req, []status.Status{review}, e.now()), nil
}

// Apply records a reviewer's decision. Checks run in order: a non-blank
// comment, a known outcome and status, no prior decision by the same role,
// a status the role can act on, and for scoped stages a matching unit.
// prior holds the decisions already recorded for the request.
func (e *Engine) Apply(
	req *mutation.Request,
	actor identity.Actor,
	outcome validation.Outcome,
	comment string,
	prior []*validation.Decision,
) (*Transition, error) {
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return nil, ErrMissingComment
	}
	if _, err := validation.ParseOutcome(string(outcome)); err != nil {
		return nil, err
	}
	if !req.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, string(req.Status))
	}
	if d := findDecision(prior, req.ID, actor.Role); d != nil {
		return nil, fmt.Errorf("%w: decision %s by %s", ErrDuplicateDecision, d.ID, d.ActorID)
	}

	p, err := e.PolicyFor(req)
	if err != nil {
		return nil, err
	}
	next, err := p.TransitionFrom(actor.Role, req.Status, outcome)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidStateForRole, err)
	}
	stage, _ := p.Stage(actor.Role)
	if err := checkScope(stage, actor, req); err != nil {
		return nil, err
	}

	now := e.now()
	t := e.transition(req, []status.Status{next}, now)
	t.Decision = e.decision(req, actor, outcome, comment, next, now)
	return t, nil
}

// DeclareIneligible short-circuits a request to INELIGIBLE. Only the first
// stage's reviewer may do so, before line review concludes.
func (e *Engine) DeclareIneligible(
	req *mutation.Request,
	actor identity.Actor,
	reason string,
	prior []*validation.Decision,
) (*Transition, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrMissingComment
	}
	if !req.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, string(req.Status))
	}
	if d := findDecision(prior, req.ID, actor.Role); d != nil {
		return nil, fmt.Errorf("%w: decision %s by %s", ErrDuplicateDecision, d.ID, d.ActorID)
	}

	p, err := e.PolicyFor(req)
	if err != nil {
		return nil, err
	}
	if !p.CanDeclareIneligible(actor.Role, req.Status) {
		return nil, fmt.Errorf("%w: %w: %s on %s", ErrInvalidStateForRole, ErrRoleNotAuthorizedForStatus, actor.Role, req.Status)
	}
	stage, _ := p.Stage(actor.Role)
	if err := checkScope(stage, actor, req); err != nil {
		return nil, err
	}

	now := e.now()
	t := e.transition(req, []status.Status{status.Ineligible}, now)
	t.Decision = e.decision(req, actor, validation.Reject, reason, status.Ineligible, now)
	return t, nil
}

func (e *Engine) transition(req *mutation.Request, path []status.Status, now time.Time) *Transition {
	to := path[len(path)-1]
	updated := req.Clone()
	updated.Status = to
	updated.UpdatedAt = now

	return &Transition{
		Request: updated,
		From:    req.Status,
		Path:    path,
		Patch: mutation.Patch{
			ExpectedStatus: req.Status,
			Status:         &to,
			UpdatedAt:      now,
		},
	}
}

func (e *Engine) decision(
	req *mutation.Request,
	actor identity.Actor,
	outcome validation.Outcome,
	comment string,
	to status.Status,
	now time.Time,
) *validation.Decision {
	snapshot := req.Summarize()
	return &validation.Decision{
		ID:         e.newID(),
		RequestID:  req.ID,
		ActorID:    actor.ID,
		Role:       actor.Role,
		Outcome:    outcome,
		Comment:    comment,
		FromStatus: req.Status,
		ToStatus:   to,
		CreatedAt:  now,
		Snapshot:   &snapshot,
	}
}

func findDecision(decisions []*validation.Decision, requestID string, role identity.Role) *validation.Decision {
	for _, d := range decisions {
		if d != nil && d.RequestID == requestID && d.Role == role {
			return d
		}
	}
	return nil
}

func checkScope(stage policy.Stage, actor identity.Actor, req *mutation.Request) error {
	if !stage.Scoped {
		return nil
	}
	if strings.TrimSpace(actor.Scope) == "" {
		return fmt.Errorf("%w: actor %s has no unit", ErrUnresolvedScope, actor.ID)
	}
	svc := req.Requester.ServiceID()
	if svc == "" {
		return fmt.Errorf("%w: request %s has no requester service", ErrUnresolvedScope, req.ID)
	}
	if svc != strings.TrimSpace(actor.Scope) {
		return fmt.Errorf("%w: %s", ErrOutOfScope, req.ID)
	}
	return nil
}
