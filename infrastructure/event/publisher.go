// Package event appends workflow events to an event store.
package event

import (
	"context"
	"sync"

	"github.com/felixgeelhaar/mutaflow/domain/event"
	"github.com/felixgeelhaar/mutaflow/infrastructure/logging"
)

// Observer is told about every event once it is stored.
type Observer func(event.Event)

// Publisher appends events to a store. With a buffer, events are held until
// the buffer fills or Flush is called.
type Publisher struct {
	store     event.Store
	buffer    []event.Event
	bufSize   int
	observers []Observer
	mu        sync.Mutex
}

// PublisherOption configures the publisher.
type PublisherOption func(*Publisher)

// WithBufferSize sets the event buffer size. Zero appends immediately.
func WithBufferSize(size int) PublisherOption {
	return func(p *Publisher) {
		p.bufSize = size
	}
}

// WithObserver registers fn to run for each stored event.
func WithObserver(fn Observer) PublisherOption {
	return func(p *Publisher) {
		p.observers = append(p.observers, fn)
	}
}

// NewPublisher creates a new event publisher.
func NewPublisher(store event.Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufSize > 0 {
		p.buffer = make([]event.Event, 0, p.bufSize)
	}
	return p
}

// Publish validates and stores events. One call is one atomic append unless
// buffering is enabled.
func (p *Publisher) Publish(ctx context.Context, events ...event.Event) error {
	if len(events) == 0 {
		return nil
	}
	for i := range events {
		if err := events[i].Validate(); err != nil {
			return err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bufSize == 0 {
		return p.append(ctx, events)
	}

	p.buffer = append(p.buffer, events...)
	if len(p.buffer) >= p.bufSize {
		return p.flush(ctx)
	}
	return nil
}

// Flush writes all buffered events to the store.
func (p *Publisher) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flush(ctx)
}

// Pending returns the number of buffered events.
func (p *Publisher) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}

// flush must be called with mu held.
func (p *Publisher) flush(ctx context.Context) error {
	if len(p.buffer) == 0 {
		return nil
	}
	if err := p.append(ctx, p.buffer); err != nil {
		return err
	}
	p.buffer = p.buffer[:0]
	return nil
}

func (p *Publisher) append(ctx context.Context, events []event.Event) error {
	if err := p.store.Append(ctx, events...); err != nil {
		logging.Error().
			Add(logging.Component("events")).
			Add(logging.RequestID(events[0].RequestID)).
			Add(logging.Count("events", len(events))).
			Add(logging.ErrorField(err)).
			Msg("failed to append events")
		return err
	}
	for _, e := range events {
		for _, fn := range p.observers {
			fn(e)
		}
	}
	return nil
}

// Close flushes remaining events.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flush(context.Background())
}

var _ event.Publisher = (*Publisher)(nil)
