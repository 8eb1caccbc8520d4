package policy

import (
	"fmt"

	"github.com/felixgeelhaar/mutaflow/domain/identity"
	"github.com/felixgeelhaar/mutaflow/domain/mutation"
	"github.com/felixgeelhaar/mutaflow/domain/status"
)

// Options tune the default tables.
type Options struct {
	// AdvisoryRegionalRejection keeps an unfavorable regional opinion routable
	// to the verification committee.
	AdvisoryRegionalRejection bool `yaml:"advisory_regional_rejection" json:"advisory_regional_rejection"`

	// AdvisoryCommitteeRejection routes a committee rejection to the final authority.
	AdvisoryCommitteeRejection bool `yaml:"advisory_committee_rejection" json:"advisory_committee_rejection"`

	// AutoOpenFirstReview moves submissions straight into line review.
	AutoOpenFirstReview bool `yaml:"auto_open_first_review" json:"auto_open_first_review"`
}

// DefaultOptions returns the options matching the deployed behavior:
// regional rejection is advisory, committee rejection is final.
func DefaultOptions() Options {
	return Options{
		AdvisoryRegionalRejection:  true,
		AdvisoryCommitteeRejection: false,
		AutoOpenFirstReview:        true,
	}
}

// Standard builds the four-stage chain.
func Standard(name string, opts Options) *Policy {
	cvrEntry := []status.Status{status.RegionalFavorable}
	if opts.AdvisoryRegionalRejection {
		cvrEntry = append(cvrEntry, status.RegionalUnfavorable)
	}
	dncfEntry := []status.Status{status.CommitteeApproved}
	if opts.AdvisoryCommitteeRejection {
		dncfEntry = append(dncfEntry, status.CommitteeRejected)
	}

	return &Policy{
		Name:                name,
		AutoOpenFirstReview: opts.AutoOpenFirstReview,
		IneligibleFrom:      []status.Status{status.Submitted, status.UnderLineReview},
		Stages: []Stage{
			{
				Role:     identity.RoleResponsable,
				Entry:    []status.Status{status.Submitted},
				Review:   status.UnderLineReview,
				Approved: status.LineApproved,
				Rejected: status.LineRejected,
				Scoped:   true,
			},
			{
				Role:     identity.RoleDGR,
				Entry:    []status.Status{status.LineApproved},
				Review:   status.UnderRegionalReview,
				Approved: status.RegionalFavorable,
				Rejected: status.RegionalUnfavorable,
			},
			{
				Role:     identity.RoleCVR,
				Entry:    cvrEntry,
				Review:   status.UnderCommitteeReview,
				Approved: status.CommitteeApproved,
				Rejected: status.CommitteeRejected,
			},
			{
				Role:     identity.RoleDNCF,
				Entry:    dncfEntry,
				Review:   status.UnderFinalReview,
				Approved: status.Accepted,
				Rejected: status.Rejected,
			},
		},
	}
}

// Set maps each request kind to its table.
type Set struct {
	// Version increases every time the set is reloaded.
	Version int `yaml:"-" json:"version"`

	Ordinary  *Policy `yaml:"ordinary" json:"ordinary"`
	Strategic *Policy `yaml:"strategic" json:"strategic"`
}

// DefaultSet returns a set where the strategic table mirrors the ordinary
// one until a divergent table is configured.
func DefaultSet(opts Options) *Set {
	return &Set{
		Version:   1,
		Ordinary:  Standard("ordinary", opts),
		Strategic: Standard("strategic", opts),
	}
}

// For returns the table governing kind.
func (s *Set) For(kind mutation.Kind) (*Policy, error) {
	switch kind {
	case mutation.KindOrdinary, "":
		if s.Ordinary != nil {
			return s.Ordinary, nil
		}
	case mutation.KindStrategic:
		if s.Strategic != nil {
			return s.Strategic, nil
		}
		if s.Ordinary != nil {
			return s.Ordinary, nil
		}
	default:
		return nil, fmt.Errorf("%w: %q", mutation.ErrUnknownKind, kind)
	}
	return nil, fmt.Errorf("%w: no table for %s", ErrInvalidPolicy, kind)
}

// Validate validates every configured table.
func (s *Set) Validate() error {
	if s.Ordinary == nil {
		return fmt.Errorf("%w: ordinary table is required", ErrInvalidPolicy)
	}
	if err := s.Ordinary.Validate(); err != nil {
		return err
	}
	if s.Strategic != nil {
		return s.Strategic.Validate()
	}
	return nil
}
