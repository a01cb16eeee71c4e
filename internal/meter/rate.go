package meter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CounterStore increments a per-credential counter scoped to the current
// fixed window. The first increment in a window arms its expiry.
type CounterStore interface {
	// Incr bumps the counter for key in the current window and returns the
	// new count.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Gate enforces per-credential throughput limits over a fixed window.
// It never queues: an over-limit call is rejected immediately so the caller
// can back off.
type Gate struct {
	store  CounterStore
	window time.Duration
}

// NewGate creates a rate gate over the given counter store
func NewGate(store CounterStore, window time.Duration) *Gate {
	if window <= 0 {
		window = time.Minute
	}
	return &Gate{
		store:  store,
		window: window,
	}
}

// Window returns the configured window length, used for Retry-After hints
func (g *Gate) Window() time.Duration {
	return g.window
}

// Check increments the credential's counter and compares against the limit.
// A store error is returned to the caller, which decides fail-open vs
// fail-closed by method tier.
func (g *Gate) Check(ctx context.Context, credentialID string, limit int) (allowed bool, remaining int, err error) {
	count, err := g.store.Incr(ctx, "rate:"+credentialID, g.window)
	if err != nil {
		return false, 0, fmt.Errorf("rate store: %w", err)
	}

	remaining = limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return count <= int64(limit), remaining, nil
}

// MemoryCounterStore keeps windows in process memory. Counters are sharded
// per credential behind one mutex guarding only the map; the per-window
// bookkeeping is a single comparison.
type MemoryCounterStore struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time // overridable for tests
}

type window struct {
	count     int64
	expiresAt time.Time
}

// NewMemoryCounterStore creates an in-process counter store
func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Incr bumps the counter, rolling the window over when it has expired
func (m *MemoryCounterStore) Incr(_ context.Context, key string, windowLen time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	w, ok := m.windows[key]
	if !ok || now.After(w.expiresAt) {
		w = &window{expiresAt: now.Add(windowLen)}
		m.windows[key] = w
	}
	w.count++
	return w.count, nil
}

// RedisCounterStore backs the rate gate with Redis so limits hold across
// gateway instances.
type RedisCounterStore struct {
	client *redis.Client
}

// NewRedisCounterStore wraps an existing Redis client
func NewRedisCounterStore(client *redis.Client) *RedisCounterStore {
	return &RedisCounterStore{client: client}
}

// Incr bumps the counter with INCR, arming the window expiry on first use
func (r *RedisCounterStore) Incr(ctx context.Context, key string, windowLen time.Duration) (int64, error) {
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := r.client.Expire(ctx, key, windowLen).Err(); err != nil {
			return count, err
		}
	}
	return count, nil
}
