package policy_test

import (
	"errors"
	"testing"

	"github.com/felixgeelhaar/mutaflow/domain/identity"
	"github.com/felixgeelhaar/mutaflow/domain/mutation"
	"github.com/felixgeelhaar/mutaflow/domain/policy"
	"github.com/felixgeelhaar/mutaflow/domain/status"
	"github.com/felixgeelhaar/mutaflow/domain/validation"
)

func TestStandard_Validates(t *testing.T) {
	t.Parallel()

	for _, opts := range []policy.Options{
		policy.DefaultOptions(),
		{},
		{AdvisoryRegionalRejection: true, AdvisoryCommitteeRejection: true},
	} {
		if err := policy.Standard("test", opts).Validate(); err != nil {
			t.Errorf("Standard(%+v).Validate() error = %v", opts, err)
		}
	}
}

func TestPolicy_TransitionFor(t *testing.T) {
	t.Parallel()

	p := policy.Standard("ordinary", policy.DefaultOptions())

	tests := []struct {
		role    identity.Role
		outcome validation.Outcome
		want    status.Status
	}{
		{identity.RoleResponsable, validation.Approve, status.LineApproved},
		{identity.RoleResponsable, validation.Reject, status.LineRejected},
		{identity.RoleDGR, validation.Approve, status.RegionalFavorable},
		{identity.RoleDGR, validation.Reject, status.RegionalUnfavorable},
		{identity.RoleCVR, validation.Approve, status.CommitteeApproved},
		{identity.RoleCVR, validation.Reject, status.CommitteeRejected},
		{identity.RoleDNCF, validation.Approve, status.Accepted},
		{identity.RoleDNCF, validation.Reject, status.Rejected},
	}

	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.outcome), func(t *testing.T) {
			t.Parallel()

			got, err := p.TransitionFor(tt.role, tt.outcome)
			if err != nil {
				t.Fatalf("TransitionFor() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("TransitionFor() = %s, want %s", got, tt.want)
			}
		})
	}

	if _, err := p.TransitionFor(identity.RoleAgent, validation.Approve); !errors.Is(err, policy.ErrNoStage) {
		t.Errorf("TransitionFor(AGENT) error = %v, want ErrNoStage", err)
	}
	if _, err := p.TransitionFor(identity.RoleDGR, "ABSTAIN"); !errors.Is(err, validation.ErrUnknownOutcome) {
		t.Errorf("TransitionFor(ABSTAIN) error = %v, want ErrUnknownOutcome", err)
	}
}

func TestPolicy_ActionableStatuses(t *testing.T) {
	t.Parallel()

	p := policy.Standard("ordinary", policy.DefaultOptions())

	tests := []struct {
		role identity.Role
		want []status.Status
	}{
		{identity.RoleResponsable, []status.Status{status.Submitted, status.UnderLineReview}},
		{identity.RoleDGR, []status.Status{status.LineApproved, status.UnderRegionalReview}},
		{identity.RoleCVR, []status.Status{status.RegionalFavorable, status.RegionalUnfavorable, status.UnderCommitteeReview}},
		{identity.RoleDNCF, []status.Status{status.CommitteeApproved, status.UnderFinalReview}},
		{identity.RoleAgent, nil},
	}

	for _, tt := range tests {
		got := p.ActionableStatuses(tt.role)
		if len(got) != len(tt.want) {
			t.Errorf("ActionableStatuses(%s) = %v, want %v", tt.role, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("ActionableStatuses(%s)[%d] = %s, want %s", tt.role, i, got[i], tt.want[i])
			}
		}
	}
}

func TestPolicy_AdvisoryOptions(t *testing.T) {
	t.Parallel()

	strict := policy.Standard("strict", policy.Options{})
	if strict.CanAct(identity.RoleCVR, status.RegionalUnfavorable) {
		t.Error("strict table lets CVR act on REGIONAL_UNFAVORABLE")
	}
	if !strict.IsDeadEnd(status.RegionalUnfavorable) {
		t.Error("REGIONAL_UNFAVORABLE should be a dead end in the strict table")
	}

	lenient := policy.Standard("lenient", policy.Options{AdvisoryCommitteeRejection: true})
	if !lenient.CanAct(identity.RoleDNCF, status.CommitteeRejected) {
		t.Error("advisory committee rejection should reach DNCF")
	}

	def := policy.Standard("default", policy.DefaultOptions())
	if !def.CanAct(identity.RoleCVR, status.RegionalUnfavorable) {
		t.Error("default table should route REGIONAL_UNFAVORABLE to CVR")
	}
	if !def.IsDeadEnd(status.CommitteeRejected) {
		t.Error("COMMITTEE_REJECTED should be a dead end by default")
	}
}

func TestPolicy_Authorize(t *testing.T) {
	t.Parallel()

	p := policy.Standard("ordinary", policy.DefaultOptions())

	if err := p.Authorize(identity.RoleDGR, status.UnderLineReview); !errors.Is(err, policy.ErrRoleNotAuthorizedForStatus) {
		t.Errorf("Authorize(DGR, UNDER_LINE_REVIEW) error = %v", err)
	}
	if err := p.Authorize(identity.RoleDGR, status.LineApproved); err != nil {
		t.Errorf("Authorize(DGR, LINE_APPROVED) error = %v", err)
	}
	if err := p.Authorize(identity.RoleDGR, "BOGUS"); !errors.Is(err, status.ErrUnknownStatus) {
		t.Errorf("Authorize(DGR, BOGUS) error = %v, want ErrUnknownStatus", err)
	}

	if _, err := p.TransitionFrom(identity.RoleDNCF, status.Submitted, validation.Approve); !errors.Is(err, policy.ErrRoleNotAuthorizedForStatus) {
		t.Errorf("TransitionFrom() error = %v", err)
	}
	got, err := p.TransitionFrom(identity.RoleDNCF, status.UnderFinalReview, validation.Approve)
	if err != nil || got != status.Accepted {
		t.Errorf("TransitionFrom() = %s, %v", got, err)
	}
}

func TestPolicy_ReviewFor(t *testing.T) {
	t.Parallel()

	p := policy.Standard("ordinary", policy.DefaultOptions())

	got, err := p.ReviewFor(identity.RoleCVR, status.RegionalUnfavorable)
	if err != nil || got != status.UnderCommitteeReview {
		t.Errorf("ReviewFor(CVR, REGIONAL_UNFAVORABLE) = %s, %v", got, err)
	}
	if _, err := p.ReviewFor(identity.RoleCVR, status.UnderCommitteeReview); !errors.Is(err, policy.ErrRoleNotAuthorizedForStatus) {
		t.Errorf("ReviewFor from review status error = %v", err)
	}
	if _, err := p.ReviewFor(identity.RoleAgent, status.Submitted); !errors.Is(err, policy.ErrNoStage) {
		t.Errorf("ReviewFor(AGENT) error = %v", err)
	}
}

func TestPolicy_Owner(t *testing.T) {
	t.Parallel()

	p := policy.Standard("ordinary", policy.DefaultOptions())

	for _, st := range status.All() {
		role, ok := p.Owner(st)
		if ok && !p.CanAct(role, st) {
			t.Errorf("Owner(%s) = %s, but CanAct is false", st, role)
		}
		terminal, _ := status.IsTerminal(st)
		if terminal && ok {
			t.Errorf("terminal status %s has owner %s", st, role)
		}
	}
	if p.IsDeadEnd(status.Draft) {
		t.Error("DRAFT is not a dead end")
	}
	if !p.IsDeadEnd(status.LineRejected) {
		t.Error("LINE_REJECTED should be a dead end")
	}
}

func TestPolicy_CanDeclareIneligible(t *testing.T) {
	t.Parallel()

	p := policy.Standard("ordinary", policy.DefaultOptions())

	if !p.CanDeclareIneligible(identity.RoleResponsable, status.Submitted) {
		t.Error("line manager should declare SUBMITTED ineligible")
	}
	if p.CanDeclareIneligible(identity.RoleDGR, status.Submitted) {
		t.Error("DGR should not declare ineligible")
	}
	if p.CanDeclareIneligible(identity.RoleResponsable, status.LineApproved) {
		t.Error("LINE_APPROVED should not be declarable ineligible")
	}
}

func TestPolicy_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(p *policy.Policy)
	}{
		{"no stages", func(p *policy.Policy) { p.Stages = nil }},
		{"duplicate role", func(p *policy.Policy) { p.Stages[1].Role = identity.RoleResponsable }},
		{"agent stage", func(p *policy.Policy) { p.Stages[0].Role = identity.RoleAgent }},
		{"overlapping status", func(p *policy.Policy) { p.Stages[1].Entry = append(p.Stages[1].Entry, status.Submitted) }},
		{"unknown status", func(p *policy.Policy) { p.Stages[2].Approved = "OK" }},
		{"no entry", func(p *policy.Policy) { p.Stages[3].Entry = nil }},
		{"same outcome", func(p *policy.Policy) { p.Stages[0].Rejected = p.Stages[0].Approved }},
		{"decision stays in stage", func(p *policy.Policy) { p.Stages[0].Rejected = status.UnderLineReview }},
		{"acts on terminal", func(p *policy.Policy) { p.Stages[3].Entry = []status.Status{status.Accepted} }},
		{"acts on draft", func(p *policy.Policy) { p.Stages[0].Entry = []status.Status{status.Draft} }},
		{"bad ineligible source", func(p *policy.Policy) { p.IneligibleFrom = []status.Status{"X"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := policy.Standard("broken", policy.DefaultOptions())
			tt.mutate(p)
			if err := p.Validate(); !errors.Is(err, policy.ErrInvalidPolicy) {
				t.Errorf("Validate() error = %v, want ErrInvalidPolicy", err)
			}
		})
	}
}

func TestPolicy_Clone(t *testing.T) {
	t.Parallel()

	p := policy.Standard("ordinary", policy.DefaultOptions())
	c := p.Clone()
	c.Stages[0].Entry[0] = status.LineApproved
	c.IneligibleFrom[0] = status.Draft

	if p.Stages[0].Entry[0] != status.Submitted {
		t.Error("Clone shares stage entries")
	}
	if p.IneligibleFrom[0] != status.Submitted {
		t.Error("Clone shares IneligibleFrom")
	}
}

func TestSet_For(t *testing.T) {
	t.Parallel()

	set := policy.DefaultSet(policy.DefaultOptions())

	ord, err := set.For(mutation.KindOrdinary)
	if err != nil || ord.Name != "ordinary" {
		t.Errorf("For(ORDINAIRE) = %v, %v", ord, err)
	}
	strat, err := set.For(mutation.KindStrategic)
	if err != nil || strat.Name != "strategic" {
		t.Errorf("For(STRATEGIQUE) = %v, %v", strat, err)
	}
	if _, err := set.For("URGENT"); !errors.Is(err, mutation.ErrUnknownKind) {
		t.Errorf("For(URGENT) error = %v", err)
	}

	partial := &policy.Set{Ordinary: ord}
	if got, err := partial.For(mutation.KindStrategic); err != nil || got != ord {
		t.Errorf("strategic falls back to ordinary: %v, %v", got, err)
	}
	if err := partial.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	if err := (&policy.Set{}).Validate(); !errors.Is(err, policy.ErrInvalidPolicy) {
		t.Errorf("empty set Validate() error = %v", err)
	}
}
