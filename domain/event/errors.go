package event

import "errors"

// Domain errors for event store operations.
var (
	// ErrStreamNotFound is returned when no events exist for a request.
	ErrStreamNotFound = errors.New("request stream not found in event store")

	// ErrInvalidEvent is returned when an event is malformed.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrConnectionFailed is returned when connection to the store backend fails.
	ErrConnectionFailed = errors.New("event store connection failed")

	// ErrOperationTimeout is returned when a store operation times out.
	ErrOperationTimeout = errors.New("event store operation timeout")

	// ErrPublisherClosed is returned when publishing after Close.
	ErrPublisherClosed = errors.New("event publisher closed")
)
