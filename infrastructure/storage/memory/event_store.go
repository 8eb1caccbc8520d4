package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/mutaflow/domain/event"
)

// EventStore is an in-memory implementation of event.Store.
type EventStore struct {
	events      map[string][]event.Event // requestID -> events
	subscribers map[string][]chan event.Event
	mu          sync.RWMutex
}

// NewEventStore creates a new in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{
		events:      make(map[string][]event.Event),
		subscribers: make(map[string][]chan event.Event),
	}
}

// Append persists one or more events atomically. Either every event is
// stored or none is.
func (s *EventStore) Append(ctx context.Context, events ...event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}
	for i := range events {
		if err := events[i].Validate(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	staged := make(map[string][]event.Event)
	var order []string
	for _, e := range events {
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		if _, seen := staged[e.RequestID]; !seen {
			order = append(order, e.RequestID)
		}
		e.Sequence = uint64(len(s.events[e.RequestID]) + len(staged[e.RequestID]) + 1)
		staged[e.RequestID] = append(staged[e.RequestID], e)
	}

	for _, requestID := range order {
		stream := staged[requestID]
		s.events[requestID] = append(s.events[requestID], stream...)

		for _, sub := range s.subscribers[requestID] {
			for _, e := range stream {
				select {
				case sub <- e:
				default:
					// slow subscriber, drop
				}
			}
		}
	}
	return nil
}

// LoadEvents retrieves all events of a stream in sequence order.
func (s *EventStore) LoadEvents(ctx context.Context, requestID string) ([]event.Event, error) {
	return s.LoadEventsFrom(ctx, requestID, 0)
}

// LoadEventsFrom retrieves events starting from a specific sequence number.
func (s *EventStore) LoadEventsFrom(ctx context.Context, requestID string, fromSeq uint64) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]event.Event, 0, len(s.events[requestID]))
	for _, e := range s.events[requestID] {
		if e.Sequence >= fromSeq {
			result = append(result, e)
		}
	}
	return result, nil
}

// ListStreams returns every request ID with events, sorted.
func (s *EventStore) ListStreams(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.events))
	for id := range s.events {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Subscribe returns a channel that receives new events for a stream. The
// channel is closed once ctx is done.
func (s *EventStore) Subscribe(ctx context.Context, requestID string) (<-chan event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan event.Event, 100)
	s.subscribers[requestID] = append(s.subscribers[requestID], ch)

	go func() {
		<-ctx.Done()
		s.unsubscribe(requestID, ch)
	}()

	return ch, nil
}

func (s *EventStore) unsubscribe(requestID string, ch chan event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs := s.subscribers[requestID]
	for i, sub := range subs {
		if sub == ch {
			s.subscribers[requestID] = append(subs[:i], subs[i+1:]...)
			close(ch)
			break
		}
	}
	if len(s.subscribers[requestID]) == 0 {
		delete(s.subscribers, requestID)
	}
}

// Len returns the total number of events across all streams.
func (s *EventStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	for _, events := range s.events {
		count += len(events)
	}
	return count
}

var (
	_ event.Store      = (*EventStore)(nil)
	_ event.Lister     = (*EventStore)(nil)
	_ event.Subscriber = (*EventStore)(nil)
)
