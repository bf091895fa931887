// Package redislock implements lock.Locker on Redis so that several
// ingestion processes serialize per-company work.
//
// A lock is a key set with SET NX PX holding a random token. Release
// deletes the key only if it still holds the caller's token, so a lock
// that expired and was taken by someone else is never released by mistake.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/lock"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL bounds how long a crashed holder blocks the key.
	DefaultTTL = 30 * time.Second
	// DefaultRetryInterval is the polling interval while waiting for a lock.
	DefaultRetryInterval = 50 * time.Millisecond
	defaultPrefix        = "ingest:lock:"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker acquires locks stored in Redis.
type Locker struct {
	client        redis.UniversalClient
	ttl           time.Duration
	retryInterval time.Duration
	prefix        string
}

var _ lock.Locker = (*Locker)(nil)

// Option configures a Locker.
type Option func(*Locker)

// WithTTL sets the lock expiry.
func WithTTL(ttl time.Duration) Option {
	return func(l *Locker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithRetryInterval sets how often a waiting Lock polls Redis.
func WithRetryInterval(interval time.Duration) Option {
	return func(l *Locker) {
		if interval > 0 {
			l.retryInterval = interval
		}
	}
}

// WithPrefix sets the key namespace.
func WithPrefix(prefix string) Option {
	return func(l *Locker) {
		l.prefix = prefix
	}
}

// New creates a Redis locker.
func New(client redis.UniversalClient, opts ...Option) *Locker {
	l := &Locker{
		client:        client,
		ttl:           DefaultTTL,
		retryInterval: DefaultRetryInterval,
		prefix:        defaultPrefix,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock polls SET NX until the key is acquired or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string) (func() error, error) {
	redisKey := l.prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.retryInterval)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	return func() error {
		// Release must succeed even when the caller's context is done.
		released, err := releaseScript.Run(context.Background(), l.client, []string{redisKey}, token).Int()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("release lock %s: %w", key, err)
		}
		if released == 0 {
			return lock.ErrNotHeld
		}
		return nil
	}, nil
}
