package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"chaingate/internal/tier"
)

// Tiered serves the freshest-permissible cached value for a request from two
// cooperating layers: L0 (process-local LRU) and L1 (shared store). The edge
// (L2) tier is driven passively through response headers and is never written
// to here.
type Tiered struct {
	local       *Local
	shared      Store // nil when no shared tier is configured
	localTTLCap time.Duration
	stats       Stats
	logger      zerolog.Logger
}

// NewTiered creates a multi-tier cache. shared may be nil.
func NewTiered(local *Local, shared Store, localTTLCap time.Duration, logger zerolog.Logger) *Tiered {
	if localTTLCap <= 0 {
		localTTLCap = 5 * time.Minute
	}
	return &Tiered{
		local:       local,
		shared:      shared,
		localTTLCap: localTTLCap,
		logger:      logger.With().Str("component", "cache").Logger(),
	}
}

// Get looks up a request in L0 then L1. The returned tier is the request's
// classification regardless of hit or miss. NoCache requests never touch
// storage. A shared-store failure degrades to a miss: a cache backend outage
// must never become a user-visible error.
func (t *Tiered) Get(ctx context.Context, chain, network, method string, params json.RawMessage) ([]byte, bool, tier.Tier) {
	tr := tier.Classify(method, params)
	if !tr.Cacheable() {
		return nil, false, tr
	}

	key := Key(chain, network, method, params)

	if data, ok := t.local.Get(key); ok {
		t.stats.localHits.Add(1)
		return data, true, tr
	}

	if t.shared != nil {
		data, err := t.shared.Get(ctx, key)
		switch {
		case err == nil:
			t.stats.sharedHits.Add(1)
			t.local.Set(key, data, t.localTTL(tr))
			return data, true, tr
		case !errors.Is(err, ErrNotFound):
			t.stats.storeErrors.Add(1)
			t.logger.Warn().Err(err).Str("key", key).Msg("shared cache read failed, treating as miss")
		}
	}

	t.stats.misses.Add(1)
	return nil, false, tr
}

// Set writes a value through L0 and L1 with the tier's TTL. A no-op for
// NoCache requests even when called directly.
func (t *Tiered) Set(ctx context.Context, chain, network, method string, params json.RawMessage, value []byte) {
	tr := tier.Classify(method, params)
	if !tr.Cacheable() {
		return
	}

	key := Key(chain, network, method, params)
	ttl := tr.TTL()

	t.local.Set(key, value, t.localTTL(tr))

	if t.shared != nil {
		if err := t.shared.Set(ctx, key, value, ttl); err != nil {
			t.stats.storeErrors.Add(1)
			t.logger.Warn().Err(err).Str("key", key).Msg("shared cache write failed")
		}
	}
}

// Invalidate removes matching entries from L0 and L1 and returns the number
// of shared-tier deletions. Trailing empty segments widen the scope; a filled
// segment below an empty one is rejected with ErrInvalidScope because the
// prefix could not honor it.
func (t *Tiered) Invalidate(ctx context.Context, chain, network, method string) (int, error) {
	if (chain == "" && (network != "" || method != "")) || (network == "" && method != "") {
		return 0, ErrInvalidScope
	}

	prefix := KeyPrefix(chain, network, method)

	removed := t.local.RemoveByPrefix(prefix)

	if t.shared != nil && prefix != "" {
		n, err := t.shared.DeleteByPrefix(ctx, prefix)
		if err != nil {
			return removed, err
		}
		removed = n
	}

	t.logger.Info().
		Str("prefix", prefix).
		Int("removed", removed).
		Msg("cache invalidated")

	return removed, nil
}

// Stats exposes the running counters read-only
func (t *Tiered) Stats() *Stats {
	return &t.stats
}

// Close releases both layers
func (t *Tiered) Close() {
	t.local.Close()
	if t.shared != nil {
		if err := t.shared.Close(); err != nil {
			t.logger.Warn().Err(err).Msg("error closing shared store")
		}
	}
}

// localTTL caps how long L0 may hold an entry. Long-lived tiers still expire
// locally within the cap so invalidations propagate across instances.
func (t *Tiered) localTTL(tr tier.Tier) time.Duration {
	ttl := tr.TTL()
	if ttl > t.localTTLCap {
		return t.localTTLCap
	}
	return ttl
}
