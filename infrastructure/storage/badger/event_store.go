package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/felixgeelhaar/mutaflow/domain/event"
)

// EventStore is a BadgerDB-backed implementation of event.Store.
type EventStore struct {
	db          *badger.DB
	keyPrefix   string
	subscribers map[string][]chan event.Event
	mu          sync.RWMutex
	gcStop      chan struct{}
	gcWg        sync.WaitGroup
	closeOnce   sync.Once
}

// NewEventStore creates a new BadgerDB event store with the given configuration.
func NewEventStore(cfg Config, opts ...Option) (*EventStore, error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	s := NewEventStoreFromDB(db, cfg.KeyPrefix)
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.startGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return s, nil
}

// NewEventStoreFromDB creates an event store from an existing BadgerDB database.
func NewEventStoreFromDB(db *badger.DB, keyPrefix string) *EventStore {
	return &EventStore{
		db:          db,
		keyPrefix:   keyPrefix,
		subscribers: make(map[string][]chan event.Event),
		gcStop:      make(chan struct{}),
	}
}

func (s *EventStore) startGC(interval time.Duration, discardRatio float64) {
	if discardRatio <= 0 || discardRatio >= 1 {
		discardRatio = 0.5
	}

	s.gcWg.Add(1)
	go func() {
		defer s.gcWg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.gcStop:
				return
			case <-ticker.C:
				// Keep collecting until badger reports nothing left to rewrite.
				for s.db.RunValueLogGC(discardRatio) == nil {
				}
			}
		}
	}()
}

// Key format: prefix + "events:" + requestID + ":" + sequence (8 bytes, big-endian)
func (s *EventStore) eventKey(requestID string, seq uint64) []byte {
	seqBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(seqBytes, seq)
	return append(s.streamPrefix(requestID), seqBytes...)
}

func (s *EventStore) streamPrefix(requestID string) []byte {
	return []byte(s.keyPrefix + "events:" + requestID + ":")
}

// Key format: prefix + "seq:" + requestID, holding the last sequence number
func (s *EventStore) seqKey(requestID string) []byte {
	return []byte(s.keyPrefix + "seq:" + requestID)
}

// Append persists one or more events in a single transaction.
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

	var stored []event.Event
	err := s.db.Update(func(txn *badger.Txn) error {
		stored = stored[:0]
		seqs := make(map[string]uint64)

		for _, e := range events {
			seq, ok := seqs[e.RequestID]
			if !ok {
				var err error
				if seq, err = s.readSeq(txn, e.RequestID); err != nil {
					return err
				}
			}

			if e.ID == "" {
				e.ID = uuid.New().String()
			}
			seq++
			e.Sequence = seq
			seqs[e.RequestID] = seq

			data, err := json.Marshal(e)
			if err != nil {
				return err
			}
			if err := txn.Set(s.eventKey(e.RequestID, seq), data); err != nil {
				return err
			}
			stored = append(stored, e)
		}

		for requestID, seq := range seqs {
			seqBytes := make([]byte, 8)
			binary.BigEndian.PutUint64(seqBytes, seq)
			if err := txn.Set(s.seqKey(requestID), seqBytes); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.notifySubscribers(stored)
	return nil
}

func (s *EventStore) readSeq(txn *badger.Txn, requestID string) (uint64, error) {
	item, err := txn.Get(s.seqKey(requestID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var seq uint64
	err = item.Value(func(val []byte) error {
		if len(val) == 8 {
			seq = binary.BigEndian.Uint64(val)
		}
		return nil
	})
	return seq, err
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

	events := make([]event.Event, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = s.streamPrefix(requestID)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(s.eventKey(requestID, fromSeq)); it.Valid(); it.Next() {
			var e event.Event
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return err
			}
			events = append(events, e)
		}
		return nil
	})
	return events, err
}

// ListStreams returns every request ID with events, sorted.
func (s *EventStore) ListStreams(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := []byte(s.keyPrefix + "seq:")
	ids := make([]string, 0)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			ids = append(ids, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})

	sort.Strings(ids)
	return ids, err
}

// Subscribe returns a channel that receives new events for a stream.
func (s *EventStore) Subscribe(ctx context.Context, requestID string) (<-chan event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	ch := make(chan event.Event, 100)
	s.subscribers[requestID] = append(s.subscribers[requestID], ch)
	s.mu.Unlock()

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

func (s *EventStore) notifySubscribers(events []event.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range events {
		for _, ch := range s.subscribers[e.RequestID] {
			select {
			case ch <- e:
			default:
			}
		}
	}
}

// Close stops GC, closes subscriber channels and the database.
func (s *EventStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.gcStop)
		s.gcWg.Wait()

		s.mu.Lock()
		for _, subs := range s.subscribers {
			for _, ch := range subs {
				close(ch)
			}
		}
		s.subscribers = make(map[string][]chan event.Event)
		s.mu.Unlock()

		err = s.db.Close()
	})
	return err
}

var (
	_ event.Store      = (*EventStore)(nil)
	_ event.Lister     = (*EventStore)(nil)
	_ event.Subscriber = (*EventStore)(nil)
)
