package cache

import (
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// localEntry represents a cached item with expiration
type localEntry struct {
	data      []byte
	expiresAt time.Time
}

// Local is the process-local (L0) cache tier: a capacity-bounded LRU with
// per-entry expiry. The lock is scoped to the map so lookups for unrelated
// keys never block behind slow callers.
type Local struct {
	cache *lru.Cache[string, *localEntry]
	mu    sync.RWMutex
	stop  chan struct{}
}

// NewLocal creates a new local cache with the given capacity
func NewLocal(size int) (*Local, error) {
	c, err := lru.New[string, *localEntry](size)
	if err != nil {
		return nil, err
	}

	l := &Local{
		cache: c,
		stop:  make(chan struct{}),
	}

	go l.cleanupLoop()

	return l, nil
}

// Get retrieves a value, honoring per-entry expiry
func (l *Local) Get(key string) ([]byte, bool) {
	l.mu.RLock()
	entry, ok := l.cache.Get(key)
	l.mu.RUnlock()

	if !ok {
		return nil, false
	}

	if time.Now().After(entry.expiresAt) {
		l.mu.Lock()
		l.cache.Remove(key)
		l.mu.Unlock()
		return nil, false
	}

	return entry.data, true
}

// Set stores a value with the given TTL. The LRU evicts the oldest entries
// once capacity is reached.
func (l *Local) Set(key string, value []byte, ttl time.Duration) {
	entry := &localEntry{
		data:      value,
		expiresAt: time.Now().Add(ttl),
	}

	l.mu.Lock()
	l.cache.Add(key, entry)
	l.mu.Unlock()
}

// RemoveByPrefix removes every entry whose key shares the prefix and returns
// the count. An empty prefix purges everything.
func (l *Local) RemoveByPrefix(prefix string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for _, key := range l.cache.Keys() {
		if prefix == "" || strings.HasPrefix(key, prefix) {
			l.cache.Remove(key)
			removed++
		}
	}
	return removed
}

// Len returns the current entry count
func (l *Local) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cache.Len()
}

// Close stops the cleanup goroutine
func (l *Local) Close() {
	close(l.stop)
}

// cleanupLoop periodically removes expired entries so short-tier values do
// not linger until LRU eviction
func (l *Local) cleanupLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.removeExpired()
		case <-l.stop:
			return
		}
	}
}

// removeExpired removes all expired entries
func (l *Local) removeExpired() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for _, key := range l.cache.Keys() {
		entry, ok := l.cache.Peek(key)
		if ok && now.After(entry.expiresAt) {
			l.cache.Remove(key)
		}
	}
}
