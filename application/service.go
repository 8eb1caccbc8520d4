// Package application orchestrates the workflow engine with its stores, the
// per-request lock and the event log.
package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/felixgeelhaar/mutaflow/domain/event"
	"github.com/felixgeelhaar/mutaflow/domain/identity"
	"github.com/felixgeelhaar/mutaflow/domain/mutation"
	"github.com/felixgeelhaar/mutaflow/domain/status"
	"github.com/felixgeelhaar/mutaflow/domain/validation"
	"github.com/felixgeelhaar/mutaflow/domain/workflow"
	"github.com/felixgeelhaar/mutaflow/infrastructure/distributed/lock"
	"github.com/felixgeelhaar/mutaflow/infrastructure/logging"
	"github.com/felixgeelhaar/mutaflow/infrastructure/telemetry"
)

// DefaultLockTTL bounds how long one request stays locked by a caller.
const DefaultLockTTL = 10 * time.Second

// DefaultRefreshInterval is advertised to clients polling their queue.
const DefaultRefreshInterval = 30 * time.Second

// WorkflowService runs every request operation. It is safe for concurrent use.
type WorkflowService struct {
	engine    *workflow.Engine
	requests  mutation.Store
	decisions validation.Store
	recorder  validation.Recorder
	events    event.Publisher
	lock      lock.Lock
	lockTTL   time.Duration
	lockOpts  []lock.Option
	metrics   telemetry.Metrics
	tracer    trace.Tracer
	now       func() time.Time
	refresh   time.Duration
}

// ServiceConfig wires a WorkflowService.
type ServiceConfig struct {
	Engine    *workflow.Engine
	Requests  mutation.Store
	Decisions validation.Store

	// Recorder commits a decision with its status change. Defaults to
	// Decisions when that store implements validation.Recorder.
	Recorder validation.Recorder

	// Events receives the audit trail. Optional.
	Events event.Publisher

	// Lock serializes operations on one request. Defaults to an in-process lock.
	Lock        lock.Lock
	LockTTL     time.Duration
	LockOptions []lock.Option

	Metrics telemetry.Metrics
	Tracer  trace.Tracer
	Clock   func() time.Time

	// RefreshInterval is how often clients should re-read their queue.
	RefreshInterval time.Duration
}

// NewWorkflowService creates a service from cfg.
func NewWorkflowService(cfg ServiceConfig) (*WorkflowService, error) {
	if cfg.Engine == nil {
		return nil, errors.New("engine is required")
	}
	if cfg.Requests == nil {
		return nil, errors.New("request store is required")
	}
	if cfg.Decisions == nil {
		return nil, errors.New("decision store is required")
	}
	if cfg.Recorder == nil {
		r, ok := cfg.Decisions.(validation.Recorder)
		if !ok {
			return nil, errors.New("decision recorder is required")
		}
		cfg.Recorder = r
	}

	s := &WorkflowService{
		engine:    cfg.Engine,
		requests:  cfg.Requests,
		decisions: cfg.Decisions,
		recorder:  cfg.Recorder,
		events:    cfg.Events,
		lock:      cfg.Lock,
		lockTTL:   cfg.LockTTL,
		lockOpts:  cfg.LockOptions,
		metrics:   cfg.Metrics,
		tracer:    cfg.Tracer,
		now:       cfg.Clock,
		refresh:   cfg.RefreshInterval,
	}
	if s.lock == nil {
		s.lock = lock.NewMemoryLock()
	}
	if s.lockTTL <= 0 {
		s.lockTTL = DefaultLockTTL
	}
	if s.metrics == nil {
		s.metrics = telemetry.NoopMetrics{}
	}
	if s.tracer == nil {
		s.tracer = noop.NewTracerProvider().Tracer(telemetry.TracerName)
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.refresh <= 0 {
		s.refresh = DefaultRefreshInterval
	}
	return s, nil
}

// RefreshInterval returns the advertised queue refresh interval.
func (s *WorkflowService) RefreshInterval() time.Duration {
	return s.refresh
}

// Engine returns the workflow engine.
func (s *WorkflowService) Engine() *workflow.Engine {
	return s.engine
}

// CreateInput describes a new request.
type CreateInput struct {
	Kind          mutation.Kind
	Motive        string
	DesiredPostID string
	Locations     []string

	// Name and Matricule describe the requesting agent of a draft.
	Name      string
	Matricule string

	// Public, when set, files the request from the public form: the
	// requester is this snapshot and the request starts SUBMITTED.
	Public *mutation.AgentSnapshot
}

// CreateRequest files a draft for actor, or a public submission.
func (s *WorkflowService) CreateRequest(ctx context.Context, actor identity.Actor, in CreateInput) (_ *mutation.Request, err error) {
	ctx, span := s.tracer.Start(ctx, "workflow.CreateRequest")
	defer func() { telemetry.EndSpan(span, err) }()

	kind, err := mutation.ParseKind(string(in.Kind))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", mutation.ErrInvalidRequest, err)
	}
	if _, err := s.engine.Policies().For(kind); err != nil {
		return nil, err
	}

	now := s.now()
	var req *mutation.Request
	if in.Public != nil {
		snap := *in.Public
		if strings.TrimSpace(snap.Name) == "" || strings.TrimSpace(snap.Matricule) == "" {
			return nil, fmt.Errorf("%w: public submissions need a name and a matricule", mutation.ErrInvalidRequest)
		}
		req = mutation.NewPublicSubmission(snap, kind, in.Motive, in.Locations, now)
		if err := req.ValidateForSubmission(); err != nil {
			return nil, err
		}
	} else {
		if actor.ID == "" {
			return nil, fmt.Errorf("%w: no authenticated requester", identity.ErrUnauthenticated)
		}
		req = mutation.NewDraft(mutation.Agent{
			ID:        actor.ID,
			Name:      in.Name,
			Matricule: in.Matricule,
			ServiceID: actor.Scope,
		}, kind, in.Motive, in.Locations, now)
	}
	req.DesiredPostID = in.DesiredPostID

	if err := s.requests.Save(ctx, req); err != nil {
		return nil, s.storageError("save request", req.ID, err)
	}

	s.publish(ctx, req.ID, event.TypeRequestCreated, now, event.CreatedPayload{
		Kind:      req.Kind,
		Status:    req.Status,
		Requester: req.Requester.Kind(),
	})
	logging.Info().
		Add(logging.Operation("create")).
		Add(logging.RequestID(req.ID)).
		Add(logging.ToStatus(req.Status)).
		Msg("request created")
	return req, nil
}

// DraftEdit lists the fields a requester may change. Nil fields are kept.
type DraftEdit struct {
	Motive           *string
	DesiredPostID    *string
	DesiredLocations []string
}

func (e DraftEdit) fields() []string {
	var fields []string
	if e.Motive != nil {
		fields = append(fields, "motive")
	}
	if e.DesiredPostID != nil {
		fields = append(fields, "desired_post_id")
	}
	if e.DesiredLocations != nil {
		fields = append(fields, "desired_locations")
	}
	return fields
}

// UpdateDraft edits a draft on behalf of its requester.
func (s *WorkflowService) UpdateDraft(ctx context.Context, actor identity.Actor, id string, edit DraftEdit) (*mutation.Request, error) {
	var updated *mutation.Request
	err := s.withRequestLock(ctx, "workflow.UpdateDraft", id, func(ctx context.Context) error {
		req, err := s.requests.Get(ctx, id)
		if err != nil {
			return err
		}
		if req.Requester.AgentID() == "" || req.Requester.AgentID() != actor.ID {
			return fmt.Errorf("%w: %s", workflow.ErrNotRequester, actor.ID)
		}
		if req.Status != status.Draft {
			return fmt.Errorf("%w: %w", workflow.ErrInvalidStateForRole, mutation.ErrNotDraft)
		}

		now := s.now()
		updated, err = s.requests.Update(ctx, id, mutation.Patch{
			ExpectedStatus:   status.Draft,
			Motive:           edit.Motive,
			DesiredPostID:    edit.DesiredPostID,
			DesiredLocations: edit.DesiredLocations,
			UpdatedAt:        now,
		})
		if err != nil {
			return s.storageError("update draft", id, err)
		}
		s.publish(ctx, id, event.TypeRequestEdited, now, event.EditedPayload{ActorID: actor.ID, Fields: edit.fields()})
		return nil
	})
	return updated, err
}

// Submit sends a draft into review.
func (s *WorkflowService) Submit(ctx context.Context, actor identity.Actor, id string) (*mutation.Request, error) {
	return s.transition(ctx, "workflow.Submit", actor, id, event.TypeRequestSubmitted,
		func(req *mutation.Request, _ []*validation.Decision) (*workflow.Transition, error) {
			return s.engine.Submit(req, actor)
		})
}

// OpenReview marks a request as being examined by actor's stage.
func (s *WorkflowService) OpenReview(ctx context.Context, actor identity.Actor, id string) (*mutation.Request, error) {
	return s.transition(ctx, "workflow.OpenReview", actor, id, event.TypeReviewOpened,
		func(req *mutation.Request, _ []*validation.Decision) (*workflow.Transition, error) {
			return s.engine.OpenReview(req, actor)
		})
}

// DecisionResult is the outcome of Decide and DeclareIneligible.
type DecisionResult struct {
	Request  *mutation.Request    `json:"request"`
	Decision *validation.Decision `json:"decision"`
}

// Decide records actor's verdict and moves the request on. The request is
// locked for the whole sequence; the recorder stores the decision and the
// status change together and enforces one decision per (request, role)
// even across processes.
func (s *WorkflowService) Decide(
	ctx context.Context,
	actor identity.Actor,
	id string,
	outcome validation.Outcome,
	comment string,
) (*DecisionResult, error) {
	start := time.Now()
	var result *DecisionResult
	err := s.withRequestLock(ctx, "workflow.Decide", id, func(ctx context.Context) error {
		var err error
		result, err = s.decide(ctx, actor, id, event.TypeDecisionRecorded,
			func(req *mutation.Request, prior []*validation.Decision) (*workflow.Transition, error) {
				return s.engine.Apply(req, actor, outcome, comment, prior)
			})
		return err
	})
	if err != nil {
		s.reject("decide", id, actor, err)
		return nil, err
	}
	s.metrics.RecordDecision(ctx, actor.Role, result.Decision.Outcome, time.Since(start))
	return result, nil
}

// DeclareIneligible closes a request as ineligible with a mandatory reason.
func (s *WorkflowService) DeclareIneligible(ctx context.Context, actor identity.Actor, id, reason string) (*DecisionResult, error) {
	start := time.Now()
	var result *DecisionResult
	err := s.withRequestLock(ctx, "workflow.DeclareIneligible", id, func(ctx context.Context) error {
		var err error
		result, err = s.decide(ctx, actor, id, event.TypeRequestIneligible,
			func(req *mutation.Request, prior []*validation.Decision) (*workflow.Transition, error) {
				return s.engine.DeclareIneligible(req, actor, reason, prior)
			})
		return err
	})
	if err != nil {
		s.reject("declare_ineligible", id, actor, err)
		return nil, err
	}
	s.metrics.RecordDecision(ctx, actor.Role, result.Decision.Outcome, time.Since(start))
	return result, nil
}

type step func(req *mutation.Request, prior []*validation.Decision) (*workflow.Transition, error)

// decide runs a decision-producing step. Must be called with the request lock held.
func (s *WorkflowService) decide(ctx context.Context, actor identity.Actor, id string, typ event.Type, fn step) (*DecisionResult, error) {
	req, err := s.requests.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	prior, err := s.decisions.List(ctx, validation.ListFilter{RequestID: id})
	if err != nil {
		return nil, s.storageError("list decisions", id, err)
	}

	t, err := fn(req, prior)
	if err != nil {
		return nil, err
	}

	decision, updated, err := s.recorder.Record(ctx, t.Decision, t.Patch)
	if err != nil {
		if errors.Is(err, validation.ErrDecisionExists) {
			return nil, fmt.Errorf("%w: %w", workflow.ErrDuplicateDecision, err)
		}
		return nil, s.storageError("record decision", id, err)
	}

	s.recordTransition(ctx, actor, t, typ, decision)
	logging.Info().
		Add(logging.Operation(string(typ))).
		Add(logging.RequestID(id)).
		Add(logging.DecisionID(decision.ID)).
		Add(logging.Actor(actor)).
		Add(logging.Outcome(decision.Outcome)).
		Add(logging.FromStatus(t.From)).
		Add(logging.ToStatus(updated.Status)).
		Msg("decision recorded")
	return &DecisionResult{Request: updated, Decision: decision}, nil
}

// transition runs a step that changes status without a decision.
func (s *WorkflowService) transition(
	ctx context.Context,
	op string,
	actor identity.Actor,
	id string,
	typ event.Type,
	fn step,
) (*mutation.Request, error) {
	var updated *mutation.Request
	err := s.withRequestLock(ctx, op, id, func(ctx context.Context) error {
		req, err := s.requests.Get(ctx, id)
		if err != nil {
			return err
		}
		t, err := fn(req, nil)
		if err != nil {
			return err
		}
		updated, err = s.requests.Update(ctx, id, t.Patch)
		if err != nil {
			return s.storageError("update request", id, err)
		}
		s.recordTransition(ctx, actor, t, typ, nil)
		logging.Info().
			Add(logging.Operation(string(typ))).
			Add(logging.RequestID(id)).
			Add(logging.Actor(actor)).
			Add(logging.FromStatus(t.From)).
			Add(logging.ToStatus(updated.Status)).
			Msg("request moved")
		return nil
	})
	if err != nil {
		s.reject(op, id, actor, err)
		return nil, err
	}
	return updated, nil
}

func (s *WorkflowService) recordTransition(ctx context.Context, actor identity.Actor, t *workflow.Transition, typ event.Type, d *validation.Decision) {
	prev := t.From
	for _, st := range t.Path {
		s.metrics.RecordTransition(ctx, prev, st)
		prev = st
	}

	payload := event.TransitionPayload{
		ActorID: actor.ID,
		Role:    actor.Role,
		From:    t.From,
		Path:    t.Path,
	}
	at := t.Request.UpdatedAt
	if d != nil {
		payload.DecisionID = d.ID
		payload.Outcome = d.Outcome
		at = d.CreatedAt
	}
	s.publish(ctx, t.Request.ID, typ, at, payload)
}

// withRequestLock runs fn in a span while holding the request's lock.
func (s *WorkflowService) withRequestLock(ctx context.Context, op, id string, fn func(ctx context.Context) error) (err error) {
	ctx, span := s.tracer.Start(ctx, op, trace.WithAttributes(attribute.String("request.id", id)))
	defer func() { telemetry.EndSpan(span, err) }()

	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: missing id", mutation.ErrInvalidRequest)
	}
	return lock.WithLock(ctx, s.lock, LockKey(id), s.lockTTL, fn, s.lockOpts...)
}

// LockKey is the lock held while a request is being changed.
func LockKey(requestID string) string {
	return "decision:" + requestID
}

// publish appends one event. The state change is already persisted, so a
// failed append is logged rather than returned.
func (s *WorkflowService) publish(ctx context.Context, requestID string, typ event.Type, at time.Time, payload any) {
	if s.events == nil {
		return
	}
	e, err := event.NewEvent(requestID, typ, at, payload)
	if err == nil {
		err = s.events.Publish(ctx, e)
	}
	if err != nil {
		logging.Error().
			Add(logging.Component("events")).
			Add(logging.RequestID(requestID)).
			Add(logging.Str("event_type", string(typ))).
			Add(logging.ErrorField(err)).
			Msg("failed to publish event")
	}
}

// storageError logs a backend failure and returns it unchanged.
func (s *WorkflowService) storageError(op, id string, err error) error {
	if isDomainError(err) {
		return err
	}
	logging.Error().
		Add(logging.Component("storage")).
		Add(logging.Operation(op)).
		Add(logging.RequestID(id)).
		Add(logging.ErrorField(err)).
		Msg("storage operation failed")
	return err
}

func (s *WorkflowService) reject(op, id string, actor identity.Actor, err error) {
	s.metrics.RecordRejection(context.Background(), op, err)
	logging.Debug().
		Add(logging.Operation(op)).
		Add(logging.RequestID(id)).
		Add(logging.Actor(actor)).
		Add(logging.ErrorField(err)).
		Msg("operation refused")
}

func isDomainError(err error) bool {
	return errors.Is(err, mutation.ErrStatusConflict) ||
		errors.Is(err, mutation.ErrRequestNotFound) ||
		errors.Is(err, mutation.ErrRequestExists) ||
		errors.Is(err, validation.ErrDecisionExists)
}
