package event_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domainevent "github.com/felixgeelhaar/mutaflow/domain/event"
	infraevent "github.com/felixgeelhaar/mutaflow/infrastructure/event"
	"github.com/felixgeelhaar/mutaflow/infrastructure/storage/memory"
)

// failingStore refuses every append.
type failingStore struct {
	domainevent.Store
	err error
}

func (s failingStore) Append(context.Context, ...domainevent.Event) error {
	return s.err
}

func created(t *testing.T, requestID string) domainevent.Event {
	t.Helper()
	e, err := domainevent.NewEvent(requestID, domainevent.TypeRequestCreated, time.Now(), domainevent.CreatedPayload{Status: "DRAFT"})
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestPublisher_Publish(t *testing.T) {
	t.Parallel()

	store := memory.NewEventStore()
	var mu sync.Mutex
	var seen []string
	p := infraevent.NewPublisher(store, infraevent.WithObserver(func(e domainevent.Event) {
		mu.Lock()
		seen = append(seen, e.RequestID)
		mu.Unlock()
	}))

	ctx := context.Background()
	if err := p.Publish(ctx); err != nil {
		t.Fatalf("Publish() with no events error = %v", err)
	}
	if err := p.Publish(ctx, created(t, "r1"), created(t, "r2")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	events, err := store.LoadEvents(ctx, "r1")
	if err != nil || len(events) != 1 {
		t.Fatalf("LoadEvents() = %v, %v", events, err)
	}
	if len(seen) != 2 {
		t.Errorf("observed = %v, want two events", seen)
	}
}

func TestPublisher_RejectsInvalid(t *testing.T) {
	t.Parallel()

	store := memory.NewEventStore()
	p := infraevent.NewPublisher(store)

	err := p.Publish(context.Background(), created(t, "r1"), domainevent.Event{Type: domainevent.TypeRequestCreated})
	if !errors.Is(err, domainevent.ErrInvalidEvent) {
		t.Fatalf("Publish() error = %v, want ErrInvalidEvent", err)
	}
	if store.Len() != 0 {
		t.Errorf("store holds %d events after rejected batch", store.Len())
	}
}

func TestPublisher_Buffered(t *testing.T) {
	t.Parallel()

	store := memory.NewEventStore()
	p := infraevent.NewPublisher(store, infraevent.WithBufferSize(3))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := p.Publish(ctx, created(t, "r1")); err != nil {
			t.Fatal(err)
		}
	}
	if store.Len() != 0 || p.Pending() != 2 {
		t.Fatalf("store = %d, pending = %d, want 0 and 2", store.Len(), p.Pending())
	}

	if err := p.Publish(ctx, created(t, "r1")); err != nil {
		t.Fatal(err)
	}
	if store.Len() != 3 || p.Pending() != 0 {
		t.Fatalf("store = %d, pending = %d after buffer filled", store.Len(), p.Pending())
	}

	if err := p.Publish(ctx, created(t, "r2")); err != nil {
		t.Fatal(err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if store.Len() != 4 {
		t.Errorf("store = %d after Close, want 4", store.Len())
	}
}

func TestPublisher_StoreError(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk full")
	p := infraevent.NewPublisher(failingStore{err: boom}, infraevent.WithBufferSize(2))
	ctx := context.Background()

	if err := p.Publish(ctx, created(t, "r1")); err != nil {
		t.Fatalf("buffered Publish() error = %v", err)
	}
	if err := p.Flush(ctx); !errors.Is(err, boom) {
		t.Fatalf("Flush() error = %v, want %v", err, boom)
	}
	if p.Pending() != 1 {
		t.Errorf("pending = %d, failed flush must keep the buffer", p.Pending())
	}
	if err := p.Close(); !errors.Is(err, boom) {
		t.Errorf("Close() error = %v, want %v", err, boom)
	}
}
