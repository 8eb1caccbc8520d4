package application

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/mutaflow/domain/event"
	"github.com/felixgeelhaar/mutaflow/domain/identity"
	"github.com/felixgeelhaar/mutaflow/domain/mutation"
	"github.com/felixgeelhaar/mutaflow/domain/status"
	"github.com/felixgeelhaar/mutaflow/domain/workflow"
	"github.com/felixgeelhaar/mutaflow/infrastructure/statemachine"
)

// Replay rebuilds request statuses from the event log.
type Replay struct {
	events   event.Store
	requests mutation.Store
	policies workflow.PolicySource
}

// NewReplay creates a replay over events. requests is optional; without it
// Verify cannot compare against the stored status.
func NewReplay(events event.Store, requests mutation.Store, policies workflow.PolicySource) *Replay {
	return &Replay{events: events, requests: requests, policies: policies}
}

// Report is the outcome of replaying one request.
type Report struct {
	RequestID string              `json:"request_id"`
	Events    int                 `json:"events"`
	Replayed  status.Status       `json:"replayed"`
	Stored    status.Status       `json:"stored,omitempty"`
	Steps     []statemachine.Step `json:"steps"`
	Problems  []string            `json:"problems,omitempty"`
}

// Consistent reports whether the log replays cleanly onto the stored status.
func (r *Report) Consistent() bool {
	return len(r.Problems) == 0
}

// Verify replays a request's events through the lifecycle chart and compares
// the result with the stored request. Transitions the current policy would
// not allow are reported as problems, not errors.
func (r *Replay) Verify(ctx context.Context, requestID string) (*Report, error) {
	events, err := r.events.LoadEvents(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: %s", event.ErrStreamNotFound, requestID)
	}

	report, err := r.replay(requestID, events)
	if err != nil {
		return nil, err
	}

	if r.requests != nil {
		req, err := r.requests.Get(ctx, requestID)
		switch {
		case errors.Is(err, mutation.ErrRequestNotFound):
			report.Problems = append(report.Problems, "request missing from store")
		case err != nil:
			return nil, err
		default:
			report.Stored = req.Status
			if req.Status != report.Replayed {
				report.Problems = append(report.Problems,
					fmt.Sprintf("stored status %s differs from replayed %s", req.Status, report.Replayed))
			}
		}
	}
	return report, nil
}

// VerifyAll verifies every stream the event store can enumerate.
func (r *Replay) VerifyAll(ctx context.Context) ([]*Report, error) {
	lister, ok := r.events.(event.Lister)
	if !ok {
		return nil, errors.New("event store cannot enumerate streams")
	}
	ids, err := lister.ListStreams(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)

	reports := make([]*Report, 0, len(ids))
	for _, id := range ids {
		report, err := r.Verify(ctx, id)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func (r *Replay) replay(requestID string, events []event.Event) (*Report, error) {
	report := &Report{RequestID: requestID, Events: len(events)}

	first := events[0]
	if first.Type != event.TypeRequestCreated {
		report.Problems = append(report.Problems, fmt.Sprintf("stream starts with %s", first.Type))
		return report, nil
	}
	var created event.CreatedPayload
	if err := first.UnmarshalPayload(&created); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", first.Type, err)
	}

	p, err := r.policies.Current().For(created.Kind)
	if err != nil {
		return nil, err
	}
	interp, err := statemachine.NewInterpreter(p)
	if err != nil {
		return nil, err
	}
	defer interp.Stop()

	if err := interp.StartAt(created.Status); err != nil {
		report.Problems = append(report.Problems, err.Error())
		return report, nil
	}

	for _, e := range events[1:] {
		if e.Type == event.TypeRequestEdited || e.Type == event.TypeRequestCreated {
			continue
		}
		var payload event.TransitionPayload
		if err := e.UnmarshalPayload(&payload); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", e.Type, err)
		}
		if payload.From != interp.State() {
			report.Problems = append(report.Problems,
				fmt.Sprintf("event %d (%s) starts from %s, replay is at %s", e.Sequence, e.Type, payload.From, interp.State()))
		}
		if err := replayEvent(interp, e.Type, payload); err != nil {
			report.Problems = append(report.Problems, fmt.Sprintf("event %d (%s): %v", e.Sequence, e.Type, err))
			break
		}
	}

	report.Replayed = interp.State()
	report.Steps = interp.Trail()
	return report, nil
}

// replayEvent drives the chart along every status in the event's path.
func replayEvent(interp *statemachine.Interpreter, typ event.Type, payload event.TransitionPayload) error {
	for i, want := range payload.Path {
		ev, role, err := chartEvent(interp, typ, payload, i)
		if err != nil {
			return err
		}
		got, err := interp.Send(ev, role)
		if err != nil {
			return err
		}
		if got != want {
			return fmt.Errorf("reached %s, log says %s", got, want)
		}
	}
	return nil
}

// chartEvent maps the i-th status of an event's path to a chart event.
func chartEvent(interp *statemachine.Interpreter, typ event.Type, payload event.TransitionPayload, i int) (statekit.EventType, identity.Role, error) {
	switch {
	case typ == event.TypeRequestSubmitted && i == 0:
		return statemachine.EventSubmit, identity.RoleAgent, nil
	case typ == event.TypeRequestSubmitted:
		// Auto-opened first review.
		owner, _ := interp.Context().Policy.Owner(interp.State())
		return statemachine.EventOpen, owner, nil
	case typ == event.TypeReviewOpened:
		return statemachine.EventOpen, payload.Role, nil
	case typ == event.TypeDecisionRecorded:
		ev, err := statemachine.EventForOutcome(payload.Outcome)
		return ev, payload.Role, err
	case typ == event.TypeRequestIneligible:
		return statemachine.EventIneligible, payload.Role, nil
	}
	return "", "", fmt.Errorf("unexpected event type %s", typ)
}
