package workflow

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/felixgeelhaar/mutaflow/domain/identity"
	"github.com/felixgeelhaar/mutaflow/domain/mutation"
	"github.com/felixgeelhaar/mutaflow/domain/policy"
	"github.com/felixgeelhaar/mutaflow/domain/validation"
)

// Warning reports a request left out of a queue for a data problem, or a
// queue that could not be computed at all (RequestID empty).
type Warning struct {
	RequestID string `json:"request_id,omitempty"`
	Err       error  `json:"-"`
	Message   string `json:"message"`
}

// Queue is the worklist of one reviewer.
type Queue struct {
	Role     identity.Role       `json:"role"`
	ActorID  string              `json:"actor_id"`
	Scope    string              `json:"scope,omitempty"`
	Requests []*mutation.Request `json:"requests"`
	Warnings []Warning           `json:"warnings,omitempty"`
}

// IDs returns the request IDs in queue order.
func (q Queue) IDs() []string {
	ids := make([]string, len(q.Requests))
	for i, r := range q.Requests {
		ids[i] = r.ID
	}
	return ids
}

// QueueFor computes the requests role can act on now. A request is kept when
// its status is actionable by role under the table for its kind, actorID has
// not already decided it in that role, and, for scoped stages, its requester
// belongs to scope. A scoped stage without scope yields no requests and a
// single queue-level warning. Requests whose requester unit is unknown are
// left out of scoped queues with a warning. The result is sorted most recently
// submitted first, then by ID. Inputs are not modified.
func QueueFor(
	set *policy.Set,
	role identity.Role,
	actorID string,
	requests []*mutation.Request,
	decisions []*validation.Decision,
	scope string,
) Queue {
	scope = strings.TrimSpace(scope)
	q := Queue{Role: role, ActorID: actorID, Scope: scope, Requests: []*mutation.Request{}}

	decided := make(map[string]bool)
	for _, d := range decisions {
		if d != nil && d.ActorID == actorID && d.Role == role {
			decided[d.RequestID] = true
		}
	}

	scopeMissing := false
	for _, req := range requests {
		if req == nil {
			continue
		}
		if !req.Status.Valid() {
			q.Warnings = append(q.Warnings, Warning{
				RequestID: req.ID,
				Err:       ErrUnknownStatus,
				Message:   fmt.Sprintf("%v: %q", ErrUnknownStatus, string(req.Status)),
			})
			continue
		}
		p, err := set.For(req.Kind)
		if err != nil {
			q.Warnings = append(q.Warnings, Warning{RequestID: req.ID, Err: err, Message: err.Error()})
			continue
		}
		stage, ok := p.Stage(role)
		if !ok || !p.CanAct(role, req.Status) {
			continue
		}
		if decided[req.ID] {
			continue
		}
		if stage.Scoped {
			if scope == "" {
				scopeMissing = true
				continue
			}
			svc := req.Requester.ServiceID()
			if svc == "" {
				q.Warnings = append(q.Warnings, Warning{
					RequestID: req.ID,
					Err:       ErrUnresolvedScope,
					Message:   fmt.Sprintf("%v: requester of %s has no service", ErrUnresolvedScope, req.ID),
				})
				continue
			}
			if svc != scope {
				continue
			}
		}
		q.Requests = append(q.Requests, req.Clone())
	}

	if scopeMissing {
		q.Requests = []*mutation.Request{}
		q.Warnings = append([]Warning{{
			Err:     ErrUnresolvedScope,
			Message: fmt.Sprintf("%v: %s %s has no organizational unit", ErrUnresolvedScope, role, actorID),
		}}, q.Warnings...)
	}

	sort.SliceStable(q.Requests, func(i, j int) bool {
		a, b := submittedAt(q.Requests[i]), submittedAt(q.Requests[j])
		if !a.Equal(b) {
			return a.After(b)
		}
		return q.Requests[i].ID < q.Requests[j].ID
	})
	return q
}

// QueueFor computes the queue under the policy set currently in force.
func (e *Engine) QueueFor(
	actor identity.Actor,
	requests []*mutation.Request,
	decisions []*validation.Decision,
) Queue {
	return QueueFor(e.policies.Current(), actor.Role, actor.ID, requests, decisions, actor.Scope)
}

func submittedAt(r *mutation.Request) time.Time {
	if r.SubmittedAt != nil {
		return *r.SubmittedAt
	}
	return r.CreatedAt
}
