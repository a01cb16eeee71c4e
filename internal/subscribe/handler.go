package subscribe

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chaingate/internal/chains"
	"chaingate/internal/jsonrpc"
	"chaingate/internal/origin"
)

// RequestServer serves a non-subscription request over the same pipeline the
// HTTP surface uses. Wired to the gateway at startup.
type RequestServer func(ctx context.Context, cn *chains.ChainNetwork, credential string, req *jsonrpc.Request) *jsonrpc.Response

// ClientResolver returns the origin client for a chain network
type ClientResolver func(cn *chains.ChainNetwork) (*origin.Client, error)

// Handler upgrades RPC paths to WebSocket connections supporting
// eth_subscribe("newHeads"). Every other method flows through the regular
// gateway pipeline.
type Handler struct {
	upgrader   websocket.Upgrader
	serve      RequestServer
	clientFor  ClientResolver
	interval   time.Duration
	logger     zerolog.Logger

	mu      sync.Mutex
	pollers map[string]*HeadPoller // chain key -> poller
}

// NewHandler creates the WebSocket subscription handler
func NewHandler(serve RequestServer, clientFor ClientResolver, interval time.Duration, logger zerolog.Logger) *Handler {
	return &Handler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		serve:     serve,
		clientFor: clientFor,
		interval:  interval,
		logger:    logger.With().Str("component", "subscribe").Logger(),
		pollers:   make(map[string]*HeadPoller),
	}
}

// Upgrade takes over an HTTP request asking for a WebSocket connection
func (h *Handler) Upgrade(w http.ResponseWriter, r *http.Request, cn *chains.ChainNetwork) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	credential := r.Header.Get("X-API-Key")
	if credential == "" {
		credential = "anonymous"
	}

	c := &wsConn{
		handler:    h,
		conn:       conn,
		cn:         cn,
		credential: credential,
		outgoing:   make(chan []byte, 64),
		subs:       make(map[string]struct{}),
		logger:     h.logger.With().Str("chain", cn.Key()).Logger(),
	}
	c.run(r.Context())
}

// pollerFor returns the chain's head poller, creating it on first use
func (h *Handler) pollerFor(cn *chains.ChainNetwork) (*HeadPoller, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if p, ok := h.pollers[cn.Key()]; ok {
		return p, nil
	}

	client, err := h.clientFor(cn)
	if err != nil {
		return nil, err
	}
	p := NewHeadPoller(client, h.interval, h.logger)
	h.pollers[cn.Key()] = p
	return p, nil
}

// wsConn is one client connection. A single writer goroutine owns the socket
// for writes; reads happen on the connection's own loop.
type wsConn struct {
	handler    *Handler
	conn       *websocket.Conn
	cn         *chains.ChainNetwork
	credential string
	outgoing   chan []byte

	mu   sync.Mutex
	subs map[string]struct{}

	logger zerolog.Logger
}

func (c *wsConn) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writeLoop(ctx)
	c.readLoop(ctx)

	// Connection gone: tear down every subscription it held
	c.mu.Lock()
	ids := make([]string, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	c.subs = map[string]struct{}{}
	c.mu.Unlock()

	if poller, err := c.handler.pollerFor(c.cn); err == nil {
		for _, id := range ids {
			poller.Unsubscribe(id)
		}
	}
	c.conn.Close()
}

func (c *wsConn) readLoop(ctx context.Context) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		req, err := jsonrpc.ParseRequest(data)
		if err != nil || req.Validate() != nil {
			c.send(jsonrpc.NewErrorResponse(jsonrpc.NewIDNull(), jsonrpc.ErrParse))
			continue
		}

		switch {
		case req.IsSubscribeMethod():
			c.handleSubscribe(ctx, req)
		case req.IsUnsubscribeMethod():
			c.handleUnsubscribe(req)
		default:
			resp := c.handler.serve(ctx, c.cn, c.credential, req)
			c.send(resp)
		}
	}
}

func (c *wsConn) handleSubscribe(ctx context.Context, req *jsonrpc.Request) {
	subType, _, err := req.GetSubscriptionType()
	if err != nil {
		c.send(jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.CodeInvalidParams, err.Error())))
		return
	}
	if subType != "newHeads" {
		c.send(jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.CodeInvalidParams, "unsupported subscription type")))
		return
	}

	poller, err := c.handler.pollerFor(c.cn)
	if err != nil {
		c.send(jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrInternal))
		return
	}

	id, events := poller.Subscribe()
	c.mu.Lock()
	c.subs[id] = struct{}{}
	c.mu.Unlock()

	go c.pump(ctx, id, events)

	resp, _ := jsonrpc.NewResponse(req.ID, id)
	c.send(resp)
}

func (c *wsConn) handleUnsubscribe(req *jsonrpc.Request) {
	id, err := req.GetUnsubscribeID()
	if err != nil {
		c.send(jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.CodeInvalidParams, err.Error())))
		return
	}

	removed := false
	c.mu.Lock()
	if _, ok := c.subs[id]; ok {
		delete(c.subs, id)
		removed = true
	}
	c.mu.Unlock()

	if removed {
		if poller, perr := c.handler.pollerFor(c.cn); perr == nil {
			poller.Unsubscribe(id)
		}
	}

	resp, _ := jsonrpc.NewResponse(req.ID, removed)
	c.send(resp)
}

// pump forwards head events for one subscription into the write queue
func (c *wsConn) pump(ctx context.Context, id string, events <-chan json.RawMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case head, ok := <-events:
			if !ok {
				return
			}
			note := jsonrpc.SubscriptionNotification{
				JSONRPC: jsonrpc.Version,
				Method:  "eth_subscription",
				Params: jsonrpc.SubscriptionParams{
					Subscription: id,
					Result:       head,
				},
			}
			data, err := json.Marshal(note)
			if err != nil {
				continue
			}
			select {
			case c.outgoing <- data:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (c *wsConn) send(resp *jsonrpc.Response) {
	data, err := resp.Bytes()
	if err != nil {
		return
	}
	select {
	case c.outgoing <- data:
	default:
		c.logger.Warn().Msg("write queue full, dropping response")
	}
}

func (c *wsConn) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-c.outgoing:
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}
