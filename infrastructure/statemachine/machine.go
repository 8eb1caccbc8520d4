// Package statemachine charts the request lifecycle with statekit so that a
// recorded history can be replayed against a role policy.
package statemachine

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/mutaflow/domain/identity"
	"github.com/felixgeelhaar/mutaflow/domain/policy"
	"github.com/felixgeelhaar/mutaflow/domain/status"
	"github.com/felixgeelhaar/mutaflow/domain/validation"
)

// Lifecycle events understood by the chart.
const (
	EventSubmit     statekit.EventType = "SUBMIT"
	EventOpen       statekit.EventType = "OPEN"
	EventApprove    statekit.EventType = "APPROVE"
	EventReject     statekit.EventType = "REJECT"
	EventIneligible statekit.EventType = "INELIGIBLE"
)

// Step is one transition taken by the interpreter.
type Step struct {
	Event statekit.EventType
	Role  identity.Role
	From  status.Status
	To    status.Status
}

// Context carries replay state through the chart.
type Context struct {
	Policy  *policy.Policy
	Current status.Status
	Trail   []Step
}

// NewContext creates a context positioned on DRAFT.
func NewContext(p *policy.Policy) *Context {
	return &Context{Policy: p, Current: status.Draft}
}

// edge is a chart transition derived from the policy.
type edge struct {
	event  statekit.EventType
	target status.Status
	guard  statekit.GuardType
}

func stateID(s status.Status) statekit.StateID {
	return statekit.StateID(s)
}

// MachineID names the chart built for p.
func MachineID(p *policy.Policy) string {
	return "mutation:" + p.Name
}

// NewLifecycleMachine builds the chart for p. Every status is a state;
// terminal statuses are final. Review transitions are guarded by the role
// that owns the source status.
func NewLifecycleMachine(p *policy.Policy) (*statekit.MachineConfig[*Context], error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil table", policy.ErrInvalidPolicy)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	b := statekit.NewMachine[*Context](MachineID(p)).
		WithInitial(stateID(status.Draft)).
		WithContext(NewContext(p)).
		WithAction("recordStep", recordStep).
		WithGuard(guardNameRequester, guards[guardNameRequester]).
		WithGuard(guardNameOwner, guards[guardNameOwner]).
		WithGuard(guardNameFirstStage, guards[guardNameFirstStage])

	for _, st := range status.All() {
		sb := b.State(stateID(st))
		if terminal, _ := status.IsTerminal(st); terminal {
			b = sb.Final().Done()
			continue
		}

		edges := edgesFrom(p, st)
		if len(edges) == 0 {
			b = sb.Done()
			continue
		}
		tb := sb.On(edges[0].event).Target(stateID(edges[0].target)).Guard(edges[0].guard).Do("recordStep")
		for _, e := range edges[1:] {
			tb = tb.On(e.event).Target(stateID(e.target)).Guard(e.guard).Do("recordStep")
		}
		b = tb.Done()
	}

	return b.Build()
}

// edgesFrom lists the transitions p allows out of st. Each status is
// actionable by at most one role, so every (status, event) pair has at most
// one target.
func edgesFrom(p *policy.Policy, st status.Status) []edge {
	if st == status.Draft {
		return []edge{{event: EventSubmit, target: status.Submitted, guard: guardNameRequester}}
	}

	var edges []edge
	if owner, ok := p.Owner(st); ok {
		if review, err := p.ReviewFor(owner, st); err == nil {
			edges = append(edges, edge{event: EventOpen, target: review, guard: guardNameOwner})
		}
		if to, err := p.TransitionFrom(owner, st, validation.Approve); err == nil {
			edges = append(edges, edge{event: EventApprove, target: to, guard: guardNameOwner})
		}
		if to, err := p.TransitionFrom(owner, st, validation.Reject); err == nil {
			edges = append(edges, edge{event: EventReject, target: to, guard: guardNameOwner})
		}
	}
	if first, ok := p.FirstStage(); ok && p.CanDeclareIneligible(first.Role, st) {
		edges = append(edges, edge{event: EventIneligible, target: status.Ineligible, guard: guardNameFirstStage})
	}
	return edges
}

// EventForOutcome returns the chart event for a decision outcome.
func EventForOutcome(o validation.Outcome) (statekit.EventType, error) {
	switch o {
	case validation.Approve:
		return EventApprove, nil
	case validation.Reject:
		return EventReject, nil
	}
	return "", fmt.Errorf("%w: %q", validation.ErrUnknownOutcome, o)
}

// StateFromMachine converts a chart state to a status.
func StateFromMachine(id statekit.StateID) status.Status {
	return status.Status(id)
}
