// Package policy provides the role policy: which role may act on which
// status, and where each decision leads.
package policy

import (
	"errors"
	"fmt"
	"sort"

	"github.com/felixgeelhaar/mutaflow/domain/identity"
	"github.com/felixgeelhaar/mutaflow/domain/status"
	"github.com/felixgeelhaar/mutaflow/domain/validation"
)

// Stage is one reviewer's step in the chain.
type Stage struct {
	// Role is the reviewer that owns the stage.
	Role identity.Role `yaml:"role" json:"role"`

	// Entry lists statuses that hand the request to this stage.
	Entry []status.Status `yaml:"entry" json:"entry"`

	// Review is the status while the reviewer has the request open.
	Review status.Status `yaml:"review" json:"review"`

	// Approved is the status an APPROVE decision produces.
	Approved status.Status `yaml:"approved" json:"approved"`

	// Rejected is the status a REJECT decision produces.
	Rejected status.Status `yaml:"rejected" json:"rejected"`

	// Scoped restricts the stage queue to the reviewer's organizational unit.
	Scoped bool `yaml:"scoped" json:"scoped"`
}

// Actionable returns the entry statuses followed by the review status.
func (s Stage) Actionable() []status.Status {
	out := make([]status.Status, 0, len(s.Entry)+1)
	out = append(out, s.Entry...)
	if s.Review != "" && !contains(s.Entry, s.Review) {
		out = append(out, s.Review)
	}
	return out
}

// IsEntry reports whether st hands the request to this stage.
func (s Stage) IsEntry(st status.Status) bool {
	return contains(s.Entry, st)
}

// Outcome maps a decision to the resulting status.
func (s Stage) Outcome(o validation.Outcome) (status.Status, error) {
	switch o {
	case validation.Approve:
		return s.Approved, nil
	case validation.Reject:
		return s.Rejected, nil
	}
	return "", fmt.Errorf("%w: %q", validation.ErrUnknownOutcome, o)
}

// Policy is a transition table for one request kind.
type Policy struct {
	// Name labels the table in logs and listings.
	Name string `yaml:"name" json:"name"`

	// Stages are ordered along the review chain.
	Stages []Stage `yaml:"stages" json:"stages"`

	// AutoOpenFirstReview moves a submitted request straight into the first
	// stage's review status.
	AutoOpenFirstReview bool `yaml:"auto_open_first_review" json:"auto_open_first_review"`

	// IneligibleFrom lists statuses from which the first stage's reviewer may
	// declare a request ineligible.
	IneligibleFrom []status.Status `yaml:"ineligible_from" json:"ineligible_from"`
}

// Stage returns the stage owned by role.
func (p *Policy) Stage(role identity.Role) (Stage, bool) {
	for _, s := range p.Stages {
		if s.Role == role {
			return s, true
		}
	}
	return Stage{}, false
}

// FirstStage returns the head of the review chain.
func (p *Policy) FirstStage() (Stage, bool) {
	if len(p.Stages) == 0 {
		return Stage{}, false
	}
	return p.Stages[0], true
}

// ActionableStatuses returns the statuses in which role has standing to act,
// in lifecycle order. A role without a stage gets an empty set.
func (p *Policy) ActionableStatuses(role identity.Role) []status.Status {
	s, ok := p.Stage(role)
	if !ok {
		return nil
	}
	out := s.Actionable()
	sort.SliceStable(out, func(i, j int) bool {
		a, _ := status.Ordinal(out[i])
		b, _ := status.Ordinal(out[j])
		return a < b
	})
	return out
}

// CanAct reports whether role has standing to act on st.
func (p *Policy) CanAct(role identity.Role, st status.Status) bool {
	s, ok := p.Stage(role)
	return ok && contains(s.Actionable(), st)
}

// Authorize returns ErrRoleNotAuthorizedForStatus when role cannot act on st.
func (p *Policy) Authorize(role identity.Role, st status.Status) error {
	if !st.Valid() {
		return fmt.Errorf("%w: %q", status.ErrUnknownStatus, string(st))
	}
	if !p.CanAct(role, st) {
		return fmt.Errorf("%w: %s on %s", ErrRoleNotAuthorizedForStatus, role, st)
	}
	return nil
}

// TransitionFor maps (role, outcome) to the resulting status.
func (p *Policy) TransitionFor(role identity.Role, o validation.Outcome) (status.Status, error) {
	s, ok := p.Stage(role)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoStage, role)
	}
	return s.Outcome(o)
}

// TransitionFrom is TransitionFor guarded by Authorize.
func (p *Policy) TransitionFrom(role identity.Role, from status.Status, o validation.Outcome) (status.Status, error) {
	if err := p.Authorize(role, from); err != nil {
		return "", err
	}
	return p.TransitionFor(role, o)
}

// ReviewFor returns the review status role opens from the entry status from.
func (p *Policy) ReviewFor(role identity.Role, from status.Status) (status.Status, error) {
	s, ok := p.Stage(role)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoStage, role)
	}
	if !s.IsEntry(from) {
		return "", fmt.Errorf("%w: %s cannot open review from %s", ErrRoleNotAuthorizedForStatus, role, from)
	}
	return s.Review, nil
}

// Owner returns the role that may act on st, if any.
func (p *Policy) Owner(st status.Status) (identity.Role, bool) {
	for _, s := range p.Stages {
		if contains(s.Actionable(), st) {
			return s.Role, true
		}
	}
	return "", false
}

// IsDeadEnd reports whether st is a non-draft status nobody can act on.
// Terminal statuses are dead ends, as are stage rejections that the
// table does not route onward.
func (p *Policy) IsDeadEnd(st status.Status) bool {
	if st == status.Draft {
		return false
	}
	_, ok := p.Owner(st)
	return !ok
}

// CanDeclareIneligible reports whether role may short-circuit st to INELIGIBLE.
func (p *Policy) CanDeclareIneligible(role identity.Role, st status.Status) bool {
	first, ok := p.FirstStage()
	return ok && first.Role == role && contains(p.IneligibleFrom, st)
}

// Validate checks the table for internal consistency. All problems are joined.
func (p *Policy) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s: %s", ErrInvalidPolicy, p.Name, fmt.Sprintf(format, args...)))
	}

	if len(p.Stages) == 0 {
		fail("no stages")
	}

	roles := make(map[identity.Role]bool)
	owner := make(map[status.Status]identity.Role)
	for i, s := range p.Stages {
		if _, err := identity.ParseRole(string(s.Role)); err != nil || s.Role == identity.RoleAgent {
			fail("stage %d: role %q cannot review", i, s.Role)
			continue
		}
		if roles[s.Role] {
			fail("role %s owns more than one stage", s.Role)
		}
		roles[s.Role] = true

		if len(s.Entry) == 0 {
			fail("%s: no entry status", s.Role)
		}
		for _, st := range append(s.Actionable(), s.Approved, s.Rejected) {
			if !st.Valid() {
				fail("%s: %v", s.Role, fmt.Errorf("%w: %q", status.ErrUnknownStatus, string(st)))
			}
		}
		for _, st := range s.Actionable() {
			if st == status.Draft {
				fail("%s: drafts belong to the requester", s.Role)
			}
			if terminal, _ := status.IsTerminal(st); terminal {
				fail("%s: cannot act on terminal status %s", s.Role, st)
			}
			if prev, taken := owner[st]; taken && prev != s.Role {
				fail("status %s is actionable by both %s and %s", st, prev, s.Role)
			}
			owner[st] = s.Role
		}
		if s.Approved == s.Rejected {
			fail("%s: approve and reject lead to the same status", s.Role)
		}
		if contains(s.Actionable(), s.Approved) || contains(s.Actionable(), s.Rejected) {
			fail("%s: a decision must leave the stage", s.Role)
		}
	}

	for _, st := range p.IneligibleFrom {
		if !st.Valid() {
			fail("ineligible_from: %v", fmt.Errorf("%w: %q", status.ErrUnknownStatus, string(st)))
		}
	}

	return errors.Join(errs...)
}

// Clone returns a deep copy.
func (p *Policy) Clone() *Policy {
	c := *p
	c.Stages = make([]Stage, len(p.Stages))
	for i, s := range p.Stages {
		s.Entry = append([]status.Status(nil), s.Entry...)
		c.Stages[i] = s
	}
	c.IneligibleFrom = append([]status.Status(nil), p.IneligibleFrom...)
	return &c
}

func contains(list []status.Status, st status.Status) bool {
	for _, s := range list {
		if s == st {
			return true
		}
	}
	return false
}
