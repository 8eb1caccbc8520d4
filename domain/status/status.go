// Package status enumerates the lifecycle statuses of a mutation request.
package status

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownStatus indicates a value outside the status enumeration.
var ErrUnknownStatus = errors.New("unknown status")

// Status is the lifecycle state of a mutation request.
type Status string

const (
	// Draft is the initial state, editable by the requester.
	Draft Status = "DRAFT"

	// Submitted indicates the requester has sent the request.
	Submitted Status = "SUBMITTED"

	// UnderLineReview indicates the line manager has opened the request.
	UnderLineReview Status = "UNDER_LINE_REVIEW"

	// LineApproved indicates the line manager approved the request.
	LineApproved Status = "LINE_APPROVED"

	// LineRejected indicates the line manager rejected the request.
	LineRejected Status = "LINE_REJECTED"

	// UnderRegionalReview indicates the regional directorate has opened the request.
	UnderRegionalReview Status = "UNDER_REGIONAL_REVIEW"

	// RegionalFavorable indicates a favorable regional opinion.
	RegionalFavorable Status = "REGIONAL_FAVORABLE"

	// RegionalUnfavorable indicates an unfavorable regional opinion.
	RegionalUnfavorable Status = "REGIONAL_UNFAVORABLE"

	// UnderCommitteeReview indicates the verification committee has opened the request.
	UnderCommitteeReview Status = "UNDER_COMMITTEE_REVIEW"

	// CommitteeApproved indicates the committee found the request compliant.
	CommitteeApproved Status = "COMMITTEE_APPROVED"

	// CommitteeRejected indicates the committee found the request non-compliant.
	CommitteeRejected Status = "COMMITTEE_REJECTED"

	// UnderFinalReview indicates the national authority has opened the request.
	UnderFinalReview Status = "UNDER_FINAL_REVIEW"

	// Accepted is the binding positive outcome.
	Accepted Status = "ACCEPTED"

	// Rejected is the binding negative outcome.
	Rejected Status = "REJECTED"

	// Ineligible short-circuits the request before line review.
	Ineligible Status = "INELIGIBLE"
)

type entry struct {
	label    string
	terminal bool
}

// ordered lists statuses in lifecycle order; ordinal is the index.
var ordered = []Status{
	Draft,
	Submitted,
	UnderLineReview,
	LineApproved,
	LineRejected,
	UnderRegionalReview,
	RegionalFavorable,
	RegionalUnfavorable,
	UnderCommitteeReview,
	CommitteeApproved,
	CommitteeRejected,
	UnderFinalReview,
	Accepted,
	Rejected,
	Ineligible,
}

var registry = map[Status]entry{
	Draft:                {label: "Brouillon"},
	Submitted:            {label: "Soumise"},
	UnderLineReview:      {label: "En cours de validation hiérarchique"},
	LineApproved:         {label: "Validée par le responsable"},
	LineRejected:         {label: "Rejetée par le responsable"},
	UnderRegionalReview:  {label: "En cours d'examen DGR"},
	RegionalFavorable:    {label: "Avis favorable DGR"},
	RegionalUnfavorable:  {label: "Avis défavorable DGR"},
	UnderCommitteeReview: {label: "En cours de vérification CVR"},
	CommitteeApproved:    {label: "Conforme CVR"},
	CommitteeRejected:    {label: "Non conforme CVR"},
	UnderFinalReview:     {label: "En cours de décision DNCF"},
	Accepted:             {label: "Acceptée", terminal: true},
	Rejected:             {label: "Rejetée", terminal: true},
	Ineligible:           {label: "Irrecevable", terminal: true},
}

// All returns every status in lifecycle order.
func All() []Status {
	out := make([]Status, len(ordered))
	copy(out, ordered)
	return out
}

// Parse decodes a wire value. Surrounding whitespace and case are ignored.
func Parse(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := registry[st]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
	return st, nil
}

// Label returns the display label for s.
func Label(s Status) (string, error) {
	e, ok := registry[s]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, string(s))
	}
	return e.label, nil
}

// IsTerminal reports whether no further transition can leave s.
func IsTerminal(s Status) (bool, error) {
	e, ok := registry[s]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownStatus, string(s))
	}
	return e.terminal, nil
}

// Ordinal returns the lifecycle rank of s, starting at zero for Draft.
func Ordinal(s Status) (int, error) {
	for i, st := range ordered {
		if st == s {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %q", ErrUnknownStatus, string(s))
}

// Valid reports whether s belongs to the enumeration.
func (s Status) Valid() bool {
	_, ok := registry[s]
	return ok
}

// String returns the wire value.
func (s Status) String() string {
	return string(s)
}

// UnmarshalText decodes and validates a status.
func (s *Status) UnmarshalText(text []byte) error {
	st, err := Parse(string(text))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// MarshalText rejects values outside the enumeration. The zero value encodes
// as an empty string.
func (s Status) MarshalText() ([]byte, error) {
	if s != "" && !s.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, string(s))
	}
	return []byte(s), nil
}
