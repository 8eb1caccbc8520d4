// Package validation provides the decision ("validation") records reviewers append to a request.
package validation

import "errors"

var (
	// ErrDecisionExists indicates a decision already exists for the same request and role.
	ErrDecisionExists = errors.New("decision already recorded for this request and role")

	// ErrInvalidDecision indicates the decision is malformed.
	ErrInvalidDecision = errors.New("invalid decision")

	// ErrUnknownOutcome indicates an outcome other than APPROVE or REJECT.
	ErrUnknownOutcome = errors.New("unknown outcome")
)
