// Package lock provides the per-request locks that serialize decisions.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Lock is a lease-based mutual exclusion primitive. Every successful
// Acquire returns a fresh token; only the token holder may release or
// extend the lease.
type Lock interface {
	// Acquire attempts to take key for ttl. It reports false without error
	// when another holder owns the key.
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, acquired bool, err error)

	// Release frees key if token still owns it.
	Release(ctx context.Context, key, token string) error

	// Extend pushes the expiry of a held lease to now+ttl.
	Extend(ctx context.Context, key, token string, ttl time.Duration) error

	// IsHeld reports whether any unexpired lease exists for key.
	IsHeld(ctx context.Context, key string) (bool, error)
}

// Info contains metadata about a lease.
type Info struct {
	Key        string    `json:"key"`
	Token      string    `json:"token"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Common errors.
var (
	ErrLockNotHeld = errors.New("lock not held")
	ErrLockHeld    = errors.New("lock already held by another owner")
	ErrLockExpired = errors.New("lock has expired")
	ErrInvalidTTL  = errors.New("invalid TTL")
)

// Option configures acquisition retries.
type Option func(*options)

type options struct {
	retryInterval time.Duration
	maxRetries    int
	onAcquire     func(key string)
	onRelease     func(key string)
}

// WithRetryInterval sets the interval between acquisition retries.
func WithRetryInterval(interval time.Duration) Option {
	return func(o *options) {
		o.retryInterval = interval
	}
}

// WithMaxRetries sets the maximum number of acquisition retries.
func WithMaxRetries(max int) Option {
	return func(o *options) {
		o.maxRetries = max
	}
}

// WithOnAcquire sets a callback for successful acquisition.
func WithOnAcquire(fn func(key string)) Option {
	return func(o *options) {
		o.onAcquire = fn
	}
}

// WithOnRelease sets a callback for release.
func WithOnRelease(fn func(key string)) Option {
	return func(o *options) {
		o.onRelease = fn
	}
}

func buildOptions(opts []Option) *options {
	o := &options{
		retryInterval: 25 * time.Millisecond,
		maxRetries:    40,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// AcquireWithRetry polls until key is acquired, retries are exhausted or
// ctx is done.
func AcquireWithRetry(ctx context.Context, l Lock, key string, ttl time.Duration, opts ...Option) (string, bool, error) {
	o := buildOptions(opts)

	for i := 0; i <= o.maxRetries; i++ {
		token, acquired, err := l.Acquire(ctx, key, ttl)
		if err != nil {
			return "", false, err
		}
		if acquired {
			if o.onAcquire != nil {
				o.onAcquire(key)
			}
			return token, true, nil
		}

		if i < o.maxRetries {
			select {
			case <-ctx.Done():
				return "", false, ctx.Err()
			case <-time.After(o.retryInterval):
			}
		}
	}
	return "", false, nil
}

// WithLock runs fn while holding key. It returns ErrLockHeld when the key
// could not be acquired within the retry budget.
func WithLock(ctx context.Context, l Lock, key string, ttl time.Duration, fn func(ctx context.Context) error, opts ...Option) error {
	o := buildOptions(opts)

	token, acquired, err := AcquireWithRetry(ctx, l, key, ttl, opts...)
	if err != nil {
		return err
	}
	if !acquired {
		return ErrLockHeld
	}
	defer func() {
		// Release even when ctx is already cancelled.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = l.Release(releaseCtx, key, token)
		if o.onRelease != nil {
			o.onRelease(key)
		}
	}()

	return fn(ctx)
}

func newToken() string {
	return uuid.NewString()
}
