package tier

import (
	"fmt"
	"time"
)

// Tier classifies how quickly cached data for a method may become stale.
// Lower values are more conservative; a batch inherits the lowest tier of
// its items when deriving response headers.
type Tier int

const (
	// NoCache - state-dependent reads and any write/signing operation
	NoCache Tier = iota
	// Realtime - mempool/pending data, changes within a block
	Realtime
	// Short - briefly cacheable, also the default for unknown methods
	Short
	// Medium - latest-tip data, changes every block
	Medium
	// Long - finalized block-number data, changes slowly
	Long
	// Immutable - data keyed by hash, never changes
	Immutable
)

// String returns the tier name
func (t Tier) String() string {
	switch t {
	case NoCache:
		return "nocache"
	case Realtime:
		return "realtime"
	case Short:
		return "short"
	case Medium:
		return "medium"
	case Long:
		return "long"
	case Immutable:
		return "immutable"
	default:
		return "unknown"
	}
}

// Cacheable returns true if values of this tier may be stored
func (t Tier) Cacheable() bool {
	return t != NoCache
}

// Tier TTLs
const (
	ttlImmutable = 365 * 24 * time.Hour
	ttlLong      = time.Hour
	ttlMedium    = 30 * time.Second
	ttlShort     = 5 * time.Second
	ttlRealtime  = 2 * time.Second
)

// TTL returns how long a value of this tier stays fresh
func (t Tier) TTL() time.Duration {
	switch t {
	case Immutable:
		return ttlImmutable
	case Long:
		return ttlLong
	case Medium:
		return ttlMedium
	case Short:
		return ttlShort
	case Realtime:
		return ttlRealtime
	default:
		return 0
	}
}

// CacheControl returns the Cache-Control header value instructing the edge
// tier how to hold this response.
func (t Tier) CacheControl() string {
	switch t {
	case Immutable:
		return "public, max-age=31536000, s-maxage=31536000, immutable"
	case NoCache:
		return "no-store, no-cache"
	default:
		secs := int(t.TTL().Seconds())
		if secs < 1 {
			secs = 1
		}
		swr := secs / 2
		if swr < 1 {
			swr = 1
		}
		return fmt.Sprintf("public, max-age=%d, s-maxage=%d, stale-while-revalidate=%d", secs, secs, swr)
	}
}

// Min returns the more conservative of two tiers
func Min(a, b Tier) Tier {
	if b < a {
		return b
	}
	return a
}
