package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrNotFound is returned by a Store when a key is absent or expired
var ErrNotFound = errors.New("cache: key not found")

// ErrInvalidScope is returned by Invalidate when a narrow segment is given
// without the segments above it, such as a method with no network. Keys nest
// chain:network:method, so the gap would silently widen the deletion.
var ErrInvalidScope = errors.New("cache: invalid invalidation scope")

// Store is the shared (L1) cache tier contract: a networked key-value store
// with native TTL. Implementations must be safe for concurrent use.
type Store interface {
	// Get retrieves a value. Returns ErrNotFound when absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with the given TTL
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// DeleteByPrefix removes every key sharing the prefix and returns how
	// many were deleted. Used for administrative invalidation, not on the
	// request hot path.
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)

	// Close releases the store's resources
	Close() error
}

// Stats holds running cache counters. All fields are updated atomically and
// may be read while requests are in flight.
type Stats struct {
	localHits   atomic.Uint64
	sharedHits  atomic.Uint64
	misses      atomic.Uint64
	originCalls atomic.Uint64
	storeErrors atomic.Uint64
}

// RecordOriginCall counts a forwarded call to the origin endpoint
func (s *Stats) RecordOriginCall() {
	s.originCalls.Add(1)
}

// RecordOriginCalls counts n forwarded calls at once (batch fetches)
func (s *Stats) RecordOriginCalls(n int) {
	s.originCalls.Add(uint64(n))
}

// Snapshot is a point-in-time read of cache statistics
type Snapshot struct {
	LocalHits   uint64  `json:"localHits"`
	SharedHits  uint64  `json:"sharedHits"`
	Misses      uint64  `json:"misses"`
	OriginCalls uint64  `json:"originCalls"`
	StoreErrors uint64  `json:"storeErrors"`
	HitRate     float64 `json:"hitRate"`
}

// Snapshot returns current counter values and the derived hit rate
func (s *Stats) Snapshot() Snapshot {
	snap := Snapshot{
		LocalHits:   s.localHits.Load(),
		SharedHits:  s.sharedHits.Load(),
		Misses:      s.misses.Load(),
		OriginCalls: s.originCalls.Load(),
		StoreErrors: s.storeErrors.Load(),
	}
	total := snap.LocalHits + snap.SharedHits + snap.Misses
	if total > 0 {
		snap.HitRate = float64(snap.LocalHits+snap.SharedHits) / float64(total)
	}
	return snap
}
