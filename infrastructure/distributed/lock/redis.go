package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrConnectionFailed is returned when the Redis server cannot be reached.
var ErrConnectionFailed = errors.New("lock: redis connection failed")

var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)
)

// RedisConfig configures the Redis lock.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisLock implements Lock with SET NX PX and token-checked scripts, so
// every service replica sharing the server sees the same leases.
type RedisLock struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisLock connects to Redis and verifies the connection.
func NewRedisLock(ctx context.Context, cfg RedisConfig) (*RedisLock, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Join(ErrConnectionFailed, err)
	}

	return NewRedisLockFromClient(client, cfg.KeyPrefix), nil
}

// NewRedisLockFromClient wraps an existing client.
func NewRedisLockFromClient(client *redis.Client, keyPrefix string) *RedisLock {
	return &RedisLock{client: client, keyPrefix: keyPrefix}
}

func (l *RedisLock) key(key string) string {
	return l.keyPrefix + "lock:" + key
}

// Acquire attempts to acquire the lock.
func (l *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if ttl <= 0 {
		return "", false, ErrInvalidTTL
	}

	token := newToken()
	ok, err := l.client.SetNX(ctx, l.key(key), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release releases the lock.
func (l *RedisLock) Release(ctx context.Context, key, token string) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key(key)}, token).Int64()
	if err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Extend extends the TTL of a held lock.
func (l *RedisLock) Extend(ctx context.Context, key, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}

	n, err := extendScript.Run(ctx, l.client, []string{l.key(key)}, token, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("extend %s: %w", key, err)
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// IsHeld checks if the lock is currently held.
func (l *RedisLock) IsHeld(ctx context.Context, key string) (bool, error) {
	_, err := l.client.Get(ctx, l.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Close closes the client connection.
func (l *RedisLock) Close() error {
	return l.client.Close()
}

var _ Lock = (*RedisLock)(nil)
