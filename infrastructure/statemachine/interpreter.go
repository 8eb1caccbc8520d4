package statemachine

import (
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/mutaflow/domain/identity"
	"github.com/felixgeelhaar/mutaflow/domain/policy"
	"github.com/felixgeelhaar/mutaflow/domain/status"
)

// ErrTransitionRejected indicates the chart did not accept an event.
var ErrTransitionRejected = errors.New("transition rejected by lifecycle chart")

// Interpreter runs the lifecycle chart for one request.
type Interpreter struct {
	interp    *statekit.Interpreter[*Context]
	ctx       *Context
	machineID string
	started   bool
}

// NewInterpreter builds the chart for p and returns an interpreter over it.
func NewInterpreter(p *policy.Policy) (*Interpreter, error) {
	machine, err := NewLifecycleMachine(p)
	if err != nil {
		return nil, err
	}
	ctx := NewContext(p)
	interp := statekit.NewInterpreter(machine)
	interp.UpdateContext(func(c **Context) {
		*c = ctx
	})
	return &Interpreter{
		interp:    interp,
		ctx:       ctx,
		machineID: MachineID(p),
	}, nil
}

// Start enters DRAFT.
func (i *Interpreter) Start() {
	if !i.started {
		i.interp.Start()
		i.started = true
	}
	i.ctx.Current = StateFromMachine(i.interp.State().Value)
}

// StartAt positions the chart on st. Public submissions begin on SUBMITTED
// without ever being drafts.
func (i *Interpreter) StartAt(st status.Status) error {
	if !st.Valid() {
		return fmt.Errorf("%w: %q", status.ErrUnknownStatus, string(st))
	}
	i.Start()
	snapshot := statekit.Snapshot[*Context]{
		MachineID:    i.machineID,
		CurrentState: stateID(st),
		Context:      i.ctx,
		CreatedAt:    time.Now(),
	}
	if err := i.interp.Restore(snapshot); err != nil {
		return fmt.Errorf("failed to restore state: %w", err)
	}
	i.ctx.Current = st
	return nil
}

// Stop stops the interpreter.
func (i *Interpreter) Stop() {
	if i.started {
		i.interp.Stop()
		i.started = false
	}
}

// State returns the current status.
func (i *Interpreter) State() status.Status {
	return StateFromMachine(i.interp.State().Value)
}

// Send delivers event on behalf of role and returns the status reached.
// The chart must move; an event it ignores is reported as
// ErrTransitionRejected.
func (i *Interpreter) Send(event statekit.EventType, role identity.Role) (status.Status, error) {
	from := i.State()
	if !i.CanSend(event, role) {
		return from, fmt.Errorf("%w: %s by %q from %s", ErrTransitionRejected, event, role, from)
	}
	before := len(i.ctx.Trail)

	i.interp.Send(statekit.Event{Type: event, Payload: Payload{Role: role}})

	to := i.State()
	if len(i.ctx.Trail) == before || to == from {
		return from, fmt.Errorf("%w: %s by %q from %s", ErrTransitionRejected, event, role, from)
	}
	i.ctx.Trail[len(i.ctx.Trail)-1].To = to
	i.ctx.Current = to
	return to, nil
}

// CanSend reports whether the chart has a transition for event out of the
// current status that role passes the guard of.
func (i *Interpreter) CanSend(event statekit.EventType, role identity.Role) bool {
	ev := statekit.Event{Type: event, Payload: Payload{Role: role}}
	for _, e := range edgesFrom(i.ctx.Policy, i.State()) {
		if e.event != event {
			continue
		}
		if guard, ok := guards[e.guard]; ok && guard(i.ctx, ev) {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the chart has reached a final status.
func (i *Interpreter) IsTerminal() bool {
	return i.interp.Done()
}

// Matches checks whether the chart is on st.
func (i *Interpreter) Matches(st status.Status) bool {
	return i.interp.Matches(stateID(st))
}

// Trail returns the steps taken so far.
func (i *Interpreter) Trail() []Step {
	return append([]Step(nil), i.ctx.Trail...)
}

// Context returns the interpreter context.
func (i *Interpreter) Context() *Context {
	return i.ctx
}
