package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/mutaflow/domain/identity"
	"github.com/felixgeelhaar/mutaflow/domain/mutation"
	"github.com/felixgeelhaar/mutaflow/domain/policy"
	"github.com/felixgeelhaar/mutaflow/domain/status"
	"github.com/felixgeelhaar/mutaflow/domain/validation"
	"github.com/felixgeelhaar/mutaflow/domain/workflow"
	"github.com/felixgeelhaar/mutaflow/infrastructure/logging"
	"github.com/felixgeelhaar/mutaflow/infrastructure/telemetry"
)

// Queue returns the requests actor can act on now.
func (s *WorkflowService) Queue(ctx context.Context, actor identity.Actor) (_ workflow.Queue, err error) {
	ctx, span := s.tracer.Start(ctx, "workflow.Queue")
	defer func() { telemetry.EndSpan(span, err) }()

	set := s.engine.Policies()
	var statuses []status.Status
	seen := make(map[status.Status]bool)
	for _, kind := range []mutation.Kind{mutation.KindOrdinary, mutation.KindStrategic} {
		p, err := set.For(kind)
		if err != nil {
			continue
		}
		for _, st := range p.ActionableStatuses(actor.Role) {
			if !seen[st] {
				seen[st] = true
				statuses = append(statuses, st)
			}
		}
	}
	if len(statuses) == 0 {
		return workflow.QueueFor(set, actor.Role, actor.ID, nil, nil, actor.Scope), nil
	}

	requests, err := s.requests.List(ctx, mutation.ListFilter{Status: statuses})
	if err != nil {
		return workflow.Queue{}, s.storageError("list requests", "", err)
	}
	decisions, err := s.decisions.List(ctx, validation.ListFilter{ActorID: actor.ID, Role: actor.Role})
	if err != nil {
		return workflow.Queue{}, s.storageError("list decisions", "", err)
	}

	q := workflow.QueueFor(set, actor.Role, actor.ID, requests, decisions, actor.Scope)
	for _, w := range q.Warnings {
		logging.Warn().
			Add(logging.Component("queue")).
			Add(logging.Actor(actor)).
			Add(logging.RequestID(w.RequestID)).
			Add(logging.Reason(w.Message)).
			Msg("queue warning")
	}
	s.metrics.RecordQueue(ctx, actor.Role, len(q.Requests), len(q.Warnings))
	return q, nil
}

// History returns the decisions actor made under its current role, most
// recent first.
func (s *WorkflowService) History(ctx context.Context, actor identity.Actor) (_ []workflow.HistoryEntry, err error) {
	ctx, span := s.tracer.Start(ctx, "workflow.History")
	defer func() { telemetry.EndSpan(span, err) }()

	decisions, err := s.decisions.List(ctx, validation.ListFilter{ActorID: actor.ID, Role: actor.Role})
	if err != nil {
		return nil, s.storageError("list decisions", "", err)
	}

	// Only decisions without a snapshot need the current request.
	var joined []*mutation.Request
	fetched := make(map[string]bool)
	for _, d := range decisions {
		if d.Snapshot != nil || d.RequestID == "" || fetched[d.RequestID] {
			continue
		}
		fetched[d.RequestID] = true
		req, err := s.requests.Get(ctx, d.RequestID)
		if errors.Is(err, mutation.ErrRequestNotFound) {
			continue
		}
		if err != nil {
			return nil, s.storageError("get request", d.RequestID, err)
		}
		joined = append(joined, req)
	}

	return workflow.HistoryFor(actor.Role, actor.ID, decisions, workflow.LookupFrom(joined)), nil
}

// RequestView is a request with the decisions recorded on it.
type RequestView struct {
	Request   *mutation.Request      `json:"request"`
	Decisions []*validation.Decision `json:"decisions"`
	Label     string                 `json:"status_label"`
}

// GetRequest returns a request and its decisions. Requesters only see their
// own requests.
func (s *WorkflowService) GetRequest(ctx context.Context, actor identity.Actor, id string) (*RequestView, error) {
	req, err := s.requests.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == identity.RoleAgent && req.Requester.AgentID() != actor.ID {
		return nil, fmt.Errorf("%w: %s", workflow.ErrNotRequester, actor.ID)
	}
	decisions, err := s.decisions.List(ctx, validation.ListFilter{RequestID: id})
	if err != nil {
		return nil, s.storageError("list decisions", id, err)
	}
	label, _ := status.Label(req.Status)
	return &RequestView{Request: req, Decisions: decisions, Label: label}, nil
}

// MyRequests lists the requests filed by actor.
func (s *WorkflowService) MyRequests(ctx context.Context, actor identity.Actor) ([]*mutation.Request, error) {
	if actor.ID == "" {
		return nil, identity.ErrUnauthenticated
	}
	requests, err := s.requests.List(ctx, mutation.ListFilter{RequesterID: actor.ID})
	if err != nil {
		return nil, s.storageError("list requests", "", err)
	}
	return requests, nil
}

// StatusInfo describes one status for display.
type StatusInfo struct {
	Status   status.Status `json:"status"`
	Label    string        `json:"label"`
	Terminal bool          `json:"terminal"`
	Ordinal  int           `json:"ordinal"`
	// Owner is the role acting on the status under the ordinary table.
	Owner identity.Role `json:"owner,omitempty"`
}

// Statuses returns the status catalogue in lifecycle order.
func (s *WorkflowService) Statuses() []StatusInfo {
	return Catalogue(s.engine)
}

// Catalogue lists every status with its label and the owner under the
// ordinary table in force.
func Catalogue(engine *workflow.Engine) []StatusInfo {
	var ordinary *policy.Policy
	if engine != nil {
		if p, err := engine.Policies().For(mutation.KindOrdinary); err == nil {
			ordinary = p
		}
	}

	all := status.All()
	out := make([]StatusInfo, 0, len(all))
	for _, st := range all {
		label, _ := status.Label(st)
		terminal, _ := status.IsTerminal(st)
		ordinal, _ := status.Ordinal(st)
		info := StatusInfo{Status: st, Label: label, Terminal: terminal, Ordinal: ordinal}
		if ordinary != nil {
			if role, ok := ordinary.Owner(st); ok {
				info.Owner = role
			}
		}
		out = append(out, info)
	}
	return out
}
