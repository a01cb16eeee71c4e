package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestTiered(t *testing.T, shared Store) *Tiered {
	t.Helper()
	local, err := NewLocal(100)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	c := NewTiered(local, shared, 5*time.Minute, zerolog.Nop())
	t.Cleanup(c.Close)
	return c
}

func TestTiered_MissThenHit(t *testing.T) {
	c := newTestTiered(t, NewMemoryStore())
	ctx := context.Background()
	params := json.RawMessage(`["0x10", false]`)
	value := []byte(`{"jsonrpc":"2.0","id":1,"result":{"number":"0x10"}}`)

	if _, found, _ := c.Get(ctx, "eth", "mainnet", "eth_getBlockByNumber", params); found {
		t.Fatal("Get on empty cache reported a hit")
	}

	c.Set(ctx, "eth", "mainnet", "eth_getBlockByNumber", params, value)

	data, found, tr := c.Get(ctx, "eth", "mainnet", "eth_getBlockByNumber", params)
	if !found {
		t.Fatal("Get after Set missed")
	}
	if string(data) != string(value) {
		t.Errorf("Get = %s, want %s", data, value)
	}
	if tr.String() != "long" {
		t.Errorf("tier = %v, want long", tr)
	}
}

func TestTiered_NoCacheNeverStored(t *testing.T) {
	shared := NewMemoryStore()
	c := newTestTiered(t, shared)
	ctx := context.Background()
	params := json.RawMessage(`["0xabc", "latest"]`)
	value := []byte(`{"jsonrpc":"2.0","id":1,"result":"0x1"}`)

	c.Set(ctx, "eth", "mainnet", "eth_getBalance", params, value)
	c.Set(ctx, "eth", "mainnet", "eth_sendRawTransaction", json.RawMessage(`["0xf86c"]`), value)

	if _, found, tr := c.Get(ctx, "eth", "mainnet", "eth_getBalance", params); found {
		t.Error("floating-tag state read was served from cache")
	} else if tr.Cacheable() {
		t.Errorf("tier = %v, want nocache", tr)
	}

	if len(shared.entries) != 0 {
		t.Errorf("shared store holds %d entries, want 0", len(shared.entries))
	}
}

func TestTiered_SharedHitBackfillsLocal(t *testing.T) {
	shared := NewMemoryStore()
	c := newTestTiered(t, shared)
	ctx := context.Background()
	params := json.RawMessage(`["0xdeadbeef"]`)
	value := []byte(`{"jsonrpc":"2.0","id":1,"result":{"hash":"0xdeadbeef"}}`)

	// Seed only the shared tier, as another instance would have
	key := Key("eth", "mainnet", "eth_getTransactionByHash", params)
	if err := shared.Set(ctx, key, value, time.Hour); err != nil {
		t.Fatalf("seed shared: %v", err)
	}

	if _, found, _ := c.Get(ctx, "eth", "mainnet", "eth_getTransactionByHash", params); !found {
		t.Fatal("shared-tier value not served")
	}
	if got := c.Stats().Snapshot().SharedHits; got != 1 {
		t.Errorf("sharedHits = %d, want 1", got)
	}

	// Second read must come from L0
	if _, found, _ := c.Get(ctx, "eth", "mainnet", "eth_getTransactionByHash", params); !found {
		t.Fatal("backfilled value not served")
	}
	if got := c.Stats().Snapshot().LocalHits; got != 1 {
		t.Errorf("localHits = %d, want 1", got)
	}
}

// failingStore simulates a shared-tier outage
type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}
func (failingStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}
func (failingStore) DeleteByPrefix(context.Context, string) (int, error) {
	return 0, errors.New("connection refused")
}
func (failingStore) Close() error { return nil }

func TestTiered_SharedFailureDegradesToMiss(t *testing.T) {
	c := newTestTiered(t, failingStore{})
	ctx := context.Background()
	params := json.RawMessage(`["0x10", false]`)

	_, found, tr := c.Get(ctx, "eth", "mainnet", "eth_getBlockByNumber", params)
	if found {
		t.Fatal("failing store reported a hit")
	}
	if !tr.Cacheable() {
		t.Errorf("tier = %v, want cacheable", tr)
	}

	// Writes must not surface the failure either
	c.Set(ctx, "eth", "mainnet", "eth_getBlockByNumber", params, []byte(`{}`))

	snap := c.Stats().Snapshot()
	if snap.StoreErrors != 2 {
		t.Errorf("storeErrors = %d, want 2", snap.StoreErrors)
	}

	// L0 still serves despite the broken shared tier
	if _, found, _ := c.Get(ctx, "eth", "mainnet", "eth_getBlockByNumber", params); !found {
		t.Error("local tier did not serve after shared-tier write failure")
	}
}

func TestTiered_NilShared(t *testing.T) {
	c := newTestTiered(t, nil)
	ctx := context.Background()
	params := json.RawMessage(`["0xabc"]`)
	value := []byte(`{"jsonrpc":"2.0","id":1,"result":null}`)

	c.Set(ctx, "eth", "mainnet", "eth_getTransactionByHash", params, value)
	if _, found, _ := c.Get(ctx, "eth", "mainnet", "eth_getTransactionByHash", params); !found {
		t.Error("local-only cache did not serve")
	}
}

func TestTiered_Invalidate(t *testing.T) {
	c := newTestTiered(t, NewMemoryStore())
	ctx := context.Background()
	value := []byte(`{"jsonrpc":"2.0","id":1,"result":{}}`)

	c.Set(ctx, "eth", "mainnet", "eth_getBlockByNumber", json.RawMessage(`["0x1", false]`), value)
	c.Set(ctx, "eth", "mainnet", "eth_getBlockByNumber", json.RawMessage(`["0x2", false]`), value)
	c.Set(ctx, "polygon", "mainnet", "eth_getBlockByNumber", json.RawMessage(`["0x1", false]`), value)

	removed, err := c.Invalidate(ctx, "eth", "mainnet", "eth_getBlockByNumber")
	if err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	if _, found, _ := c.Get(ctx, "eth", "mainnet", "eth_getBlockByNumber", json.RawMessage(`["0x1", false]`)); found {
		t.Error("invalidated entry still served")
	}
	if _, found, _ := c.Get(ctx, "polygon", "mainnet", "eth_getBlockByNumber", json.RawMessage(`["0x1", false]`)); !found {
		t.Error("out-of-scope entry was removed")
	}
}

func TestTiered_InvalidateRejectsScopeGaps(t *testing.T) {
	c := newTestTiered(t, NewMemoryStore())
	ctx := context.Background()
	value := []byte(`{"jsonrpc":"2.0","id":1,"result":{}}`)

	c.Set(ctx, "eth", "mainnet", "eth_getLogs", json.RawMessage(`[{"fromBlock":"0x1","toBlock":"0x2"}]`), value)
	c.Set(ctx, "eth", "mainnet", "eth_getBlockByNumber", json.RawMessage(`["0x1", false]`), value)

	// A method without a network cannot narrow the prefix; accepting it
	// would flush the whole chain
	if _, err := c.Invalidate(ctx, "eth", "", "eth_getLogs"); !errors.Is(err, ErrInvalidScope) {
		t.Fatalf("Invalidate(eth, \"\", eth_getLogs) err = %v, want ErrInvalidScope", err)
	}
	if _, err := c.Invalidate(ctx, "", "mainnet", ""); !errors.Is(err, ErrInvalidScope) {
		t.Fatalf("Invalidate(\"\", mainnet, \"\") err = %v, want ErrInvalidScope", err)
	}

	// Nothing was removed by the rejected calls
	if _, found, _ := c.Get(ctx, "eth", "mainnet", "eth_getBlockByNumber", json.RawMessage(`["0x1", false]`)); !found {
		t.Error("entry removed by a rejected invalidation")
	}

	// Trailing empty segments still widen as documented
	removed, err := c.Invalidate(ctx, "eth", "", "")
	if err != nil {
		t.Fatalf("Invalidate(eth, \"\", \"\"): %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
}

func TestTiered_LocalTTLCapped(t *testing.T) {
	local, err := NewLocal(10)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	c := NewTiered(local, nil, 50*time.Millisecond, zerolog.Nop())
	t.Cleanup(c.Close)
	ctx := context.Background()
	params := json.RawMessage(`["0xdeadbeef"]`)

	// Immutable tier, but L0 residency is bounded by the cap
	c.Set(ctx, "eth", "mainnet", "eth_getTransactionByHash", params, []byte(`{}`))

	time.Sleep(80 * time.Millisecond)
	if _, found, _ := c.Get(ctx, "eth", "mainnet", "eth_getTransactionByHash", params); found {
		t.Error("entry outlived the local TTL cap")
	}
}

func TestStats_Snapshot(t *testing.T) {
	var s Stats
	s.localHits.Add(3)
	s.sharedHits.Add(1)
	s.misses.Add(4)
	s.RecordOriginCall()
	s.RecordOriginCalls(2)

	snap := s.Snapshot()
	if snap.OriginCalls != 3 {
		t.Errorf("originCalls = %d, want 3", snap.OriginCalls)
	}
	if snap.HitRate != 0.5 {
		t.Errorf("hitRate = %v, want 0.5", snap.HitRate)
	}
}
