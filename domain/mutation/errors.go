// Package mutation provides the mutation request aggregate.
package mutation

import "errors"

var (
	// ErrRequestNotFound indicates the request was not found.
	ErrRequestNotFound = errors.New("request not found")

	// ErrRequestExists indicates a request with this ID already exists.
	ErrRequestExists = errors.New("request already exists")

	// ErrInvalidRequest indicates the request is malformed.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrStatusConflict indicates the stored status no longer matches the expected one.
	ErrStatusConflict = errors.New("request status changed concurrently")

	// ErrNotDraft indicates a requester edit on a request that left draft.
	ErrNotDraft = errors.New("request is no longer a draft")

	// ErrUnknownKind indicates a request kind outside the enumeration.
	ErrUnknownKind = errors.New("unknown request kind")
)
