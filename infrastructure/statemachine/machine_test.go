package statemachine

import (
	"errors"
	"testing"

	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/mutaflow/domain/identity"
	"github.com/felixgeelhaar/mutaflow/domain/policy"
	"github.com/felixgeelhaar/mutaflow/domain/status"
	"github.com/felixgeelhaar/mutaflow/domain/validation"
)

func ordinary() *policy.Policy {
	return policy.Standard("ordinary", policy.DefaultOptions())
}

func newStarted(t *testing.T, p *policy.Policy) *Interpreter {
	t.Helper()
	i, err := NewInterpreter(p)
	if err != nil {
		t.Fatalf("NewInterpreter() error = %v", err)
	}
	i.Start()
	t.Cleanup(i.Stop)
	return i
}

func TestNewLifecycleMachine(t *testing.T) {
	t.Parallel()

	machine, err := NewLifecycleMachine(ordinary())
	if err != nil {
		t.Fatalf("NewLifecycleMachine() error = %v", err)
	}
	if machine == nil {
		t.Fatal("NewLifecycleMachine() returned nil machine")
	}

	if _, err := NewLifecycleMachine(nil); !errors.Is(err, policy.ErrInvalidPolicy) {
		t.Errorf("NewLifecycleMachine(nil) error = %v", err)
	}
	if _, err := NewLifecycleMachine(&policy.Policy{Name: "empty"}); !errors.Is(err, policy.ErrInvalidPolicy) {
		t.Errorf("NewLifecycleMachine(empty) error = %v", err)
	}
}

func TestEdgesFrom(t *testing.T) {
	t.Parallel()

	p := ordinary()
	tests := []struct {
		from  status.Status
		event statekit.EventType
		want  status.Status
	}{
		{status.Draft, EventSubmit, status.Submitted},
		{status.Submitted, EventOpen, status.UnderLineReview},
		{status.Submitted, EventApprove, status.LineApproved},
		{status.Submitted, EventIneligible, status.Ineligible},
		{status.UnderLineReview, EventReject, status.LineRejected},
		{status.UnderLineReview, EventIneligible, status.Ineligible},
		{status.RegionalUnfavorable, EventOpen, status.UnderCommitteeReview},
		{status.UnderFinalReview, EventApprove, status.Accepted},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.event), func(t *testing.T) {
			t.Parallel()
			for _, e := range edgesFrom(p, tt.from) {
				if e.event == tt.event {
					if e.target != tt.want {
						t.Errorf("target = %s, want %s", e.target, tt.want)
					}
					return
				}
			}
			t.Errorf("no %s edge from %s", tt.event, tt.from)
		})
	}

	if edges := edgesFrom(p, status.LineRejected); len(edges) != 0 {
		t.Errorf("LINE_REJECTED edges = %v, want none", edges)
	}
	if edges := edgesFrom(p, status.UnderLineReview); len(edges) != 3 {
		t.Errorf("UNDER_LINE_REVIEW edges = %d, want approve, reject and ineligible", len(edges))
	}
}

func TestInterpreter_HappyPath(t *testing.T) {
	t.Parallel()

	i := newStarted(t, ordinary())
	if i.State() != status.Draft {
		t.Fatalf("State() = %s, want DRAFT", i.State())
	}

	steps := []struct {
		event statekit.EventType
		role  identity.Role
		want  status.Status
	}{
		{EventSubmit, identity.RoleAgent, status.Submitted},
		{EventOpen, identity.RoleResponsable, status.UnderLineReview},
		{EventApprove, identity.RoleResponsable, status.LineApproved},
		{EventOpen, identity.RoleDGR, status.UnderRegionalReview},
		{EventReject, identity.RoleDGR, status.RegionalUnfavorable},
		{EventOpen, identity.RoleCVR, status.UnderCommitteeReview},
		{EventApprove, identity.RoleCVR, status.CommitteeApproved},
		{EventApprove, identity.RoleDNCF, status.Accepted},
	}
	for _, s := range steps {
		got, err := i.Send(s.event, s.role)
		if err != nil {
			t.Fatalf("Send(%s, %s) error = %v", s.event, s.role, err)
		}
		if got != s.want {
			t.Fatalf("Send(%s, %s) = %s, want %s", s.event, s.role, got, s.want)
		}
	}

	if !i.IsTerminal() {
		t.Error("ACCEPTED should be final")
	}
	if !i.Matches(status.Accepted) {
		t.Error("Matches(ACCEPTED) = false")
	}
	trail := i.Trail()
	if len(trail) != len(steps) {
		t.Fatalf("len(Trail) = %d, want %d", len(trail), len(steps))
	}
	if trail[4].From != status.UnderRegionalReview || trail[4].To != status.RegionalUnfavorable || trail[4].Role != identity.RoleDGR {
		t.Errorf("trail[4] = %+v", trail[4])
	}
}

func TestInterpreter_RejectsWrongRole(t *testing.T) {
	t.Parallel()

	i := newStarted(t, ordinary())
	if _, err := i.Send(EventSubmit, ""); err != nil {
		t.Fatalf("Send(SUBMIT) error = %v", err)
	}

	tests := []struct {
		event statekit.EventType
		role  identity.Role
	}{
		{EventApprove, identity.RoleDGR},
		{EventOpen, identity.RoleDNCF},
		{EventIneligible, identity.RoleCVR},
		{EventSubmit, identity.RoleAgent},
	}
	for _, tt := range tests {
		if _, err := i.Send(tt.event, tt.role); !errors.Is(err, ErrTransitionRejected) {
			t.Errorf("Send(%s, %s) error = %v, want ErrTransitionRejected", tt.event, tt.role, err)
		}
		if i.State() != status.Submitted {
			t.Fatalf("State() = %s after rejected event", i.State())
		}
	}
}

func TestInterpreter_TerminalCommitteeRejection(t *testing.T) {
	t.Parallel()

	i := newStarted(t, ordinary())
	if err := i.StartAt(status.CommitteeRejected); err != nil {
		t.Fatalf("StartAt() error = %v", err)
	}
	if _, err := i.Send(EventOpen, identity.RoleDNCF); !errors.Is(err, ErrTransitionRejected) {
		t.Errorf("DNCF opened a committee rejection: %v", err)
	}

	opts := policy.DefaultOptions()
	opts.AdvisoryCommitteeRejection = true
	advisory := newStarted(t, policy.Standard("advisory", opts))
	if err := advisory.StartAt(status.CommitteeRejected); err != nil {
		t.Fatalf("StartAt() error = %v", err)
	}
	if got, err := advisory.Send(EventOpen, identity.RoleDNCF); err != nil || got != status.UnderFinalReview {
		t.Errorf("Send(OPEN) = %s, %v", got, err)
	}
}

func TestInterpreter_StartAt(t *testing.T) {
	t.Parallel()

	i := newStarted(t, ordinary())
	if err := i.StartAt(status.Status("BOGUS")); !errors.Is(err, status.ErrUnknownStatus) {
		t.Errorf("StartAt(BOGUS) error = %v", err)
	}
	if err := i.StartAt(status.Submitted); err != nil {
		t.Fatalf("StartAt() error = %v", err)
	}
	if got, err := i.Send(EventIneligible, identity.RoleResponsable); err != nil || got != status.Ineligible {
		t.Errorf("Send(INELIGIBLE) = %s, %v", got, err)
	}
}

func TestEventForOutcome(t *testing.T) {
	t.Parallel()

	tests := []struct {
		outcome validation.Outcome
		want    statekit.EventType
		wantErr bool
	}{
		{validation.Approve, EventApprove, false},
		{validation.Reject, EventReject, false},
		{validation.Outcome("MAYBE"), "", true},
	}
	for _, tt := range tests {
		got, err := EventForOutcome(tt.outcome)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("EventForOutcome(%s) = %s, %v", tt.outcome, got, err)
		}
	}
}

func TestGuards_NilContext(t *testing.T) {
	t.Parallel()

	ev := statekit.Event{Type: EventApprove, Payload: Payload{Role: identity.RoleDGR}}
	if guardOwner(nil, ev) || guardFirstStage(nil, ev) {
		t.Error("guards should refuse a nil context")
	}
	if !guardRequester(nil, statekit.Event{Type: EventSubmit}) {
		t.Error("requester guard should accept an event without payload")
	}
}

func TestEdgesFrom_GuardsRegistered(t *testing.T) {
	t.Parallel()

	for _, p := range []*policy.Policy{ordinary(), policy.Standard("strategic", policy.DefaultOptions())} {
		for _, st := range status.All() {
			for _, e := range edgesFrom(p, st) {
				if _, ok := guards[e.guard]; !ok {
					t.Errorf("%s %s -> %s: guard %q is not registered", p.Name, st, e.target, e.guard)
				}
			}
		}
	}
}
