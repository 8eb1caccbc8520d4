package event

import "context"

// Store persists request event streams.
type Store interface {
	// Append persists one or more events atomically. Sequence numbers are
	// assigned per stream in order of appearance.
	Append(ctx context.Context, events ...Event) error

	// LoadEvents retrieves all events of a stream in sequence order.
	LoadEvents(ctx context.Context, requestID string) ([]Event, error)

	// LoadEventsFrom retrieves events with Sequence >= fromSeq.
	LoadEventsFrom(ctx context.Context, requestID string, fromSeq uint64) ([]Event, error)
}

// Lister is an optional interface for stores that can enumerate streams.
type Lister interface {
	// ListStreams returns every request ID with at least one event.
	ListStreams(ctx context.Context) ([]string, error)
}

// Subscriber is an optional interface for stores that push new events.
type Subscriber interface {
	// Subscribe returns a channel receiving new events of a stream until ctx is done.
	Subscribe(ctx context.Context, requestID string) (<-chan Event, error)
}
