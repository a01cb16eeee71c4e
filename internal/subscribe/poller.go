package subscribe

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chaingate/internal/jsonrpc"
	"chaingate/internal/origin"
)

// HeadPoller produces newHeads events for one chain by polling the origin
// client on a fixed interval and fanning deltas out over channels. The poll
// loop runs only while at least one subscriber exists; cancellation is
// scoped to subscription teardown.
type HeadPoller struct {
	client   *origin.Client
	interval time.Duration
	logger   zerolog.Logger

	mu       sync.Mutex
	subs     map[string]chan json.RawMessage
	lastHash string
	cancel   context.CancelFunc
}

// NewHeadPoller creates a poller over the chain's origin client
func NewHeadPoller(client *origin.Client, interval time.Duration, logger zerolog.Logger) *HeadPoller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &HeadPoller{
		client:   client,
		interval: interval,
		logger:   logger.With().Str("component", "headpoller").Logger(),
		subs:     make(map[string]chan json.RawMessage),
	}
}

// Subscribe registers a new subscriber and returns its id and event channel.
// The first subscriber starts the poll loop.
func (p *HeadPoller) Subscribe() (string, <-chan json.RawMessage) {
	id := newSubID()
	ch := make(chan json.RawMessage, 16)

	p.mu.Lock()
	p.subs[id] = ch
	if p.cancel == nil {
		ctx, cancel := context.WithCancel(context.Background())
		p.cancel = cancel
		go p.loop(ctx)
	}
	p.mu.Unlock()

	return id, ch
}

// Unsubscribe removes a subscriber, closing its channel. The last
// unsubscribe stops the poll loop.
func (p *HeadPoller) Unsubscribe(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, ok := p.subs[id]
	if !ok {
		return false
	}
	delete(p.subs, id)
	close(ch)

	if len(p.subs) == 0 && p.cancel != nil {
		p.cancel()
		p.cancel = nil
		p.lastHash = ""
	}
	return true
}

// loop polls the chain tip until cancelled
func (p *HeadPoller) loop(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// poll fetches the latest header and fans it out when it changed
func (p *HeadPoller) poll(ctx context.Context) {
	req, err := jsonrpc.NewRequest("eth_getBlockByNumber", []interface{}{"latest", false}, jsonrpc.NewIDInt(1))
	if err != nil {
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, p.interval)
	resp, err := p.client.Call(callCtx, req)
	cancel()

	if err != nil {
		p.logger.Warn().Err(err).Msg("head poll failed")
		return
	}
	if resp.HasError() || resp.ResultIsNull() {
		return
	}

	var header struct {
		Hash string `json:"hash"`
	}
	if err := resp.GetResultAs(&header); err != nil || header.Hash == "" {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if header.Hash == p.lastHash {
		return
	}
	p.lastHash = header.Hash

	for id, ch := range p.subs {
		select {
		case ch <- resp.Result:
		default:
			// Slow consumer: drop the event rather than stall the loop
			p.logger.Debug().Str("sub", id).Msg("subscriber lagging, head dropped")
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (p *HeadPoller) SubscriberCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

// newSubID generates an opaque subscription id
func newSubID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "0x" + hex.EncodeToString([]byte(time.Now().String()))[:32]
	}
	return "0x" + hex.EncodeToString(b[:])
}
