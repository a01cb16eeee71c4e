package subscribe

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"chaingate/internal/origin"
)

// headOrigin serves eth_getBlockByNumber with a controllable head hash
func headOrigin(t *testing.T, head *atomic.Int64) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := head.Load()
		result := fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"result":{"number":"0x%x","hash":"0xhead%d"}}`, n, n)
		w.Write([]byte(result))
	}))
	t.Cleanup(server.Close)
	return server
}

func newPollerClient(url string) *origin.Client {
	return origin.NewClient(origin.Config{
		URL:     url,
		Timeout: time.Second,
		Retry:   origin.RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
		Logger:  zerolog.Nop(),
	})
}

func TestHeadPoller_DeliversNewHeads(t *testing.T) {
	var head atomic.Int64
	head.Store(1)
	server := headOrigin(t, &head)

	p := NewHeadPoller(newPollerClient(server.URL), 10*time.Millisecond, zerolog.Nop())
	id, events := p.Subscribe()
	defer p.Unsubscribe(id)

	if id == "" || id[:2] != "0x" {
		t.Errorf("subscription id = %q, want 0x-prefixed", id)
	}

	var first json.RawMessage
	select {
	case first = <-events:
	case <-time.After(time.Second):
		t.Fatal("no head delivered")
	}

	var header struct {
		Hash string `json:"hash"`
	}
	if err := json.Unmarshal(first, &header); err != nil {
		t.Fatalf("unmarshal head: %v", err)
	}
	if header.Hash != "0xhead1" {
		t.Errorf("hash = %s, want 0xhead1", header.Hash)
	}

	// Advance the chain; a new event must follow
	head.Store(2)
	select {
	case ev := <-events:
		json.Unmarshal(ev, &header)
		if header.Hash != "0xhead2" {
			t.Errorf("hash = %s, want 0xhead2", header.Hash)
		}
	case <-time.After(time.Second):
		t.Fatal("no event after head advance")
	}
}

func TestHeadPoller_DedupesUnchangedHead(t *testing.T) {
	var head atomic.Int64
	head.Store(5)
	server := headOrigin(t, &head)

	p := NewHeadPoller(newPollerClient(server.URL), 5*time.Millisecond, zerolog.Nop())
	id, events := p.Subscribe()
	defer p.Unsubscribe(id)

	select {
	case <-events:
	case <-time.After(time.Second):
		t.Fatal("no initial head delivered")
	}

	// The head is static, so no further events may arrive
	select {
	case ev := <-events:
		t.Errorf("duplicate head delivered: %s", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHeadPoller_UnsubscribeStopsLoop(t *testing.T) {
	var head atomic.Int64
	head.Store(1)
	server := headOrigin(t, &head)

	p := NewHeadPoller(newPollerClient(server.URL), 5*time.Millisecond, zerolog.Nop())

	id1, ch1 := p.Subscribe()
	id2, _ := p.Subscribe()
	if p.SubscriberCount() != 2 {
		t.Fatalf("SubscriberCount = %d, want 2", p.SubscriberCount())
	}

	if !p.Unsubscribe(id1) {
		t.Error("Unsubscribe(id1) = false")
	}
	// The channel must be closed so pumps terminate
	select {
	case _, open := <-ch1:
		if open {
			// drain buffered event and re-check
			for range ch1 {
			}
		}
	case <-time.After(time.Second):
		t.Error("unsubscribed channel never closed")
	}

	if p.Unsubscribe(id1) {
		t.Error("double Unsubscribe returned true")
	}

	if !p.Unsubscribe(id2) {
		t.Error("Unsubscribe(id2) = false")
	}
	if p.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount = %d, want 0", p.SubscriberCount())
	}
}

func TestNewSubID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := newSubID()
		if seen[id] {
			t.Fatalf("duplicate subscription id %s", id)
		}
		seen[id] = true
	}
}
