package authapi

import (
	"context"
	"errors"
	"sync"
	"time"

	"calcsync/cmd/security/token"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

// FailureCounter counts login failures per key inside an expiring window.
// Keys are opaque; callers hash anything that identifies a person.
type FailureCounter interface {
	// Incr adds one failure. A new key expires after window.
	Incr(ctx context.Context, key string, window time.Duration) (int, error)
	// Peek returns the current count and the time until it resets.
	Peek(ctx context.Context, key string) (int, time.Duration, error)
	// Hold keeps key alive for at least d.
	Hold(ctx context.Context, key string, d time.Duration) error
	// Reset forgets key.
	Reset(ctx context.Context, key string) error
}

func hashKey(prefix, raw string) string {
	return prefix + token.HashSHA256Hex(raw)
}

// ---- memory ----

type counterEntry struct {
	n       int
	expires time.Time
}

// MemoryCounter is a process-local FailureCounter.
type MemoryCounter struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	entries map[string]counterEntry
}

const memorySweepAt = 10_000

// NewMemoryCounter returns a MemoryCounter. A nil clock selects the real clock.
func NewMemoryCounter(clock clockwork.Clock) *MemoryCounter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryCounter{clock: clock, entries: make(map[string]counterEntry)}
}

func (c *MemoryCounter) live(key string, now time.Time) (counterEntry, bool) {
	e, ok := c.entries[key]
	if !ok {
		return counterEntry{}, false
	}
	if !now.Before(e.expires) {
		delete(c.entries, key)
		return counterEntry{}, false
	}
	return e, true
}

func (c *MemoryCounter) Incr(_ context.Context, key string, window time.Duration) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if len(c.entries) >= memorySweepAt {
		for k, e := range c.entries {
			if !now.Before(e.expires) {
				delete(c.entries, k)
			}
		}
	}

	e, ok := c.live(key, now)
	if !ok {
		e = counterEntry{expires: now.Add(window)}
	}
	e.n++
	c.entries[key] = e
	return e.n, nil
}

func (c *MemoryCounter) Peek(_ context.Context, key string) (int, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	e, ok := c.live(key, now)
	if !ok {
		return 0, 0, nil
	}
	return e.n, e.expires.Sub(now), nil
}

func (c *MemoryCounter) Hold(_ context.Context, key string, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	e, ok := c.live(key, now)
	if !ok {
		return nil
	}
	if until := now.Add(d); until.After(e.expires) {
		e.expires = until
		c.entries[key] = e
	}
	return nil
}

func (c *MemoryCounter) Reset(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// ---- redis ----

// incrScript sets the expiry only on the first increment so the window is
// fixed from the first failure.
var incrScript = redis.NewScript(`
	local n = redis.call('INCR', KEYS[1])
	if n == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return n
`)

var holdScript = redis.NewScript(`
	local ttl = redis.call('PTTL', KEYS[1])
	if ttl >= 0 and ttl < tonumber(ARGV[1]) then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return ttl
`)

// RedisCounter shares failure counts between instances.
type RedisCounter struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisCounter returns a RedisCounter whose keys start with prefix.
func NewRedisCounter(rdb redis.UniversalClient, prefix string) *RedisCounter {
	return &RedisCounter{rdb: rdb, prefix: prefix}
}

func (c *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int, error) {
	n, err := incrScript.Run(ctx, c.rdb, []string{c.prefix + key}, window.Milliseconds()).Int()
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (c *RedisCounter) Peek(ctx context.Context, key string) (int, time.Duration, error) {
	k := c.prefix + key
	pipe := c.rdb.Pipeline()
	get := pipe.Get(ctx, k)
	ttl := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, 0, err
	}

	n, err := get.Int()
	if errors.Is(err, redis.Nil) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	d := ttl.Val()
	if d < 0 {
		d = 0
	}
	return n, d, nil
}

func (c *RedisCounter) Hold(ctx context.Context, key string, d time.Duration) error {
	return holdScript.Run(ctx, c.rdb, []string{c.prefix + key}, d.Milliseconds()).Err()
}

func (c *RedisCounter) Reset(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, c.prefix+key).Err()
}

var (
	_ FailureCounter = (*MemoryCounter)(nil)
	_ FailureCounter = (*RedisCounter)(nil)
)
