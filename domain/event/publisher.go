package event

import "context"

// Publisher publishes events to the event store.
type Publisher interface {
	// Publish sends events downstream.
	Publish(ctx context.Context, events ...Event) error

	// Close releases any resources held by the publisher.
	Close() error
}
