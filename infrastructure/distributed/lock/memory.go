package lock

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	token      string
	acquiredAt time.Time
	expiresAt  time.Time
}

// MemoryLock implements Lock in process memory. Suitable for single-node
// deployments and tests.
type MemoryLock struct {
	mu    sync.Mutex
	locks map[string]*entry
	now   func() time.Time
}

// MemoryOption configures the memory lock.
type MemoryOption func(*MemoryLock)

// WithClock overrides the time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(l *MemoryLock) {
		l.now = now
	}
}

// NewMemoryLock creates a new in-memory lock.
func NewMemoryLock(opts ...MemoryOption) *MemoryLock {
	l := &MemoryLock{
		locks: make(map[string]*entry),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire attempts to acquire the lock.
func (l *MemoryLock) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if ttl <= 0 {
		return "", false, ErrInvalidTTL
	}
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if e, exists := l.locks[key]; exists && e.expiresAt.After(now) {
		return "", false, nil
	}

	token := newToken()
	l.locks[key] = &entry{
		token:      token,
		acquiredAt: now,
		expiresAt:  now.Add(ttl),
	}
	return token, true, nil
}

// Release releases the lock.
func (l *MemoryLock) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, exists := l.locks[key]
	if !exists || e.token != token {
		return ErrLockNotHeld
	}

	delete(l.locks, key)
	return nil
}

// Extend extends the TTL of a held lock.
func (l *MemoryLock) Extend(_ context.Context, key, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, exists := l.locks[key]
	if !exists || e.token != token {
		return ErrLockNotHeld
	}

	now := l.now()
	if !e.expiresAt.After(now) {
		return ErrLockExpired
	}

	e.expiresAt = now.Add(ttl)
	return nil
}

// IsHeld checks if the lock is currently held.
func (l *MemoryLock) IsHeld(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, exists := l.locks[key]
	if !exists {
		return false, nil
	}
	return e.expiresAt.After(l.now()), nil
}

// Info returns information about a lease.
func (l *MemoryLock) Info(key string) (*Info, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, exists := l.locks[key]
	if !exists {
		return nil, false
	}
	return &Info{
		Key:        key,
		Token:      e.token,
		AcquiredAt: e.acquiredAt,
		ExpiresAt:  e.expiresAt,
	}, true
}

// Cleanup removes expired leases and returns how many were dropped.
func (l *MemoryLock) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, e := range l.locks {
		if !e.expiresAt.After(now) {
			delete(l.locks, key)
			removed++
		}
	}
	return removed
}

var _ Lock = (*MemoryLock)(nil)
