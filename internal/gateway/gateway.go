package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"chaingate/internal/batch"
	"chaingate/internal/cache"
	"chaingate/internal/chains"
	"chaingate/internal/config"
	"chaingate/internal/jsonrpc"
	"chaingate/internal/meter"
	"chaingate/internal/metrics"
	"chaingate/internal/origin"
	"chaingate/internal/tier"
)

// Gateway composes the per-request pipeline: classify, derive key, check
// cache tiers, rate-gate and forward misses to origin, back-fill the cache,
// and meter usage. The cache and rate counters are the only mutable shared
// state; everything else is constructed once and shared by reference.
type Gateway struct {
	registry  *chains.Registry
	cache     *cache.Tiered
	optimizer *batch.Optimizer
	gate      *meter.Gate // nil disables rate limiting
	recorder  *meter.Recorder
	metrics   *metrics.Metrics
	clients   map[string]*origin.Client
	rateLimit int
	logger    zerolog.Logger
}

// New builds a Gateway with one origin client per registered chain network
func New(cfg *config.Config, registry *chains.Registry, tieredCache *cache.Tiered, gate *meter.Gate, recorder *meter.Recorder, m *metrics.Metrics, logger zerolog.Logger) *Gateway {
	clients := make(map[string]*origin.Client)
	for _, cn := range registry.All() {
		clients[cn.Key()] = origin.NewClient(origin.Config{
			URL:     cn.RPCURL,
			Timeout: cfg.Origin.GetTimeoutDuration(),
			Retry: origin.RetryConfig{
				MaxAttempts: cfg.Origin.RetryMaxAttempts,
				BaseDelay:   cfg.Origin.GetRetryBaseDelayDuration(),
				MaxDelay:    cfg.Origin.GetRetryMaxDelayDuration(),
			},
			Logger: logger,
		})
	}

	return &Gateway{
		registry:  registry,
		cache:     tieredCache,
		optimizer: batch.NewOptimizer(tieredCache, cfg.MaxBatchSize, logger),
		gate:      gate,
		recorder:  recorder,
		metrics:   m,
		clients:   clients,
		rateLimit: cfg.Rate.DefaultLimit,
		logger:    logger.With().Str("component", "gateway").Logger(),
	}
}

// Client returns the origin client for a chain network
func (g *Gateway) Client(cn *chains.ChainNetwork) (*origin.Client, error) {
	client, ok := g.clients[cn.Key()]
	if !ok {
		return nil, fmt.Errorf("no origin client for chain '%s'", cn.Key())
	}
	return client, nil
}

// CacheStats exposes cache counters for the admin surface
func (g *Gateway) CacheStats() cache.Snapshot {
	return g.cache.Stats().Snapshot()
}

// Invalidate removes cached entries matching the scope
func (g *Gateway) Invalidate(ctx context.Context, chain, network, method string) (int, error) {
	return g.cache.Invalidate(ctx, chain, network, method)
}

// Serve runs one request through the full pipeline and returns its
// response. Used by the WebSocket surface, which has no header channel for
// tier metadata.
func (g *Gateway) Serve(ctx context.Context, cn *chains.ChainNetwork, credential string, req *jsonrpc.Request) *jsonrpc.Response {
	return g.serveOne(ctx, cn, credential, req).resp
}

// result bundles a response with everything the HTTP layer needs for headers
type result struct {
	resp         *jsonrpc.Response
	tier         tier.Tier
	rateRejected bool
}

// serveOne runs the one-shot state machine for a single request:
// Classified -> CacheCheck -> hit? respond : RateCheck -> OriginCall ->
// CachePopulate -> MeterRecord -> Respond. No state is re-entered.
func (g *Gateway) serveOne(ctx context.Context, cn *chains.ChainNetwork, credential string, req *jsonrpc.Request) result {
	start := time.Now()

	data, found, tr := g.cache.Get(ctx, cn.Slug, cn.Network, req.Method, req.Params)
	if found {
		if resp, err := jsonrpc.ParseResponse(data); err == nil {
			resp.ID = req.ID
			g.metrics.CacheHits.Inc()
			g.meterUsage(cn, credential, req, resp, start)
			return result{resp: resp, tier: tr}
		}
	}

	g.metrics.CacheMisses.Inc()

	if rpcErr := g.rateCheck(ctx, credential, req); rpcErr != nil {
		resp := jsonrpc.NewErrorResponse(req.ID, rpcErr)
		g.meterUsage(cn, credential, req, resp, start)
		return result{
			resp:         resp,
			tier:         tier.NoCache,
			rateRejected: rpcErr.Code == jsonrpc.CodeRateLimited,
		}
	}

	client, err := g.Client(cn)
	if err != nil {
		return result{resp: jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrInternal), tier: tier.NoCache}
	}

	g.cache.Stats().RecordOriginCall()
	g.metrics.OriginCalls.WithLabelValues(cn.Slug).Inc()

	resp, err := client.Call(ctx, req)
	if err != nil {
		g.logger.Error().Err(err).Str("method", req.Method).Str("chain", cn.Key()).Msg("origin call failed")
		failResp := jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.CodeOriginUnreachable, "origin unreachable"))
		g.meterUsage(cn, credential, req, failResp, start)
		return result{resp: failResp, tier: tier.NoCache}
	}

	// Semantic errors pass through verbatim and are never cached. A null
	// result is an absence (pending receipt, future block) that can fill in
	// later; storing or edge-caching it would pin "not found" for the
	// tier's full TTL.
	if resp.IsSuccess() && !resp.ResultIsNull() {
		if data, merr := resp.Bytes(); merr == nil {
			// Population survives client cancellation; it benefits the
			// next caller
			g.cache.Set(context.WithoutCancel(ctx), cn.Slug, cn.Network, req.Method, req.Params, data)
		}
	} else {
		tr = tier.NoCache
	}

	g.meterUsage(cn, credential, req, resp, start)
	return result{resp: resp, tier: tr}
}

// serveBatch runs the optimizer with the rate gate and metering wired in as
// per-item hooks, and tracks whether any item was rate-rejected.
func (g *Gateway) serveBatch(ctx context.Context, cn *chains.ChainNetwork, credential string, elements []json.RawMessage) ([]*jsonrpc.Response, tier.Tier, bool, *jsonrpc.Error) {
	client, err := g.Client(cn)
	if err != nil {
		return nil, tier.NoCache, false, jsonrpc.ErrInternal
	}

	start := time.Now()
	rateRejected := false

	hooks := batch.Hooks{
		BeforeFetch: func(req *jsonrpc.Request) *jsonrpc.Error {
			rpcErr := g.rateCheck(ctx, credential, req)
			if rpcErr != nil && rpcErr.Code == jsonrpc.CodeRateLimited {
				rateRejected = true
			}
			return rpcErr
		},
		OnServed: func(req *jsonrpc.Request, resp *jsonrpc.Response, cacheHit bool) {
			if cacheHit {
				g.metrics.CacheHits.Inc()
			} else {
				g.metrics.CacheMisses.Inc()
				// Rate-rejected items never reached the origin
				if !resp.HasError() || resp.Error.Code != jsonrpc.CodeRateLimited {
					g.metrics.OriginCalls.WithLabelValues(cn.Slug).Inc()
				}
			}
			g.meterUsage(cn, credential, req, resp, start)
		},
	}

	responses, lowest, rpcErr := g.optimizer.Execute(ctx, cn.Slug, cn.Network, client, elements, hooks)
	return responses, lowest, rateRejected, rpcErr
}

// rateCheck enforces the per-credential window. When the backing store is
// unreachable it fails open for cacheable reads and closed for write and
// no-cache methods: availability wins for idempotent reads, cost control
// wins for writes.
func (g *Gateway) rateCheck(ctx context.Context, credential string, req *jsonrpc.Request) *jsonrpc.Error {
	if g.gate == nil {
		return nil
	}

	allowed, remaining, err := g.gate.Check(ctx, credential, g.rateLimit)
	if err != nil {
		tr := tier.Classify(req.Method, req.Params)
		if tr.Cacheable() && !tier.IsWrite(req.Method) {
			g.logger.Warn().Err(err).Str("credential", credential).Msg("rate store unreachable, failing open for read")
			return nil
		}
		g.logger.Error().Err(err).Str("credential", credential).Msg("rate store unreachable, failing closed for write")
		return jsonrpc.NewError(jsonrpc.CodeRateLimited, "rate limiting unavailable")
	}

	if !allowed {
		g.metrics.RateRejections.Inc()
		return jsonrpc.NewErrorWithData(jsonrpc.CodeRateLimited, "rate limit exceeded", map[string]int{
			"remaining": remaining,
		})
	}

	return nil
}

// meterUsage appends one billable record per served call, hit or miss.
// Record never blocks the response path.
func (g *Gateway) meterUsage(cn *chains.ChainNetwork, credential string, req *jsonrpc.Request, resp *jsonrpc.Response, start time.Time) {
	units := meter.Cost(req.Method)

	g.metrics.Requests.WithLabelValues(cn.Slug, req.Method).Inc()
	g.metrics.ComputeUnits.WithLabelValues(cn.Slug).Add(float64(units))
	g.metrics.Duration.WithLabelValues(cn.Slug).Observe(time.Since(start).Seconds())

	if g.recorder == nil {
		return
	}

	status := 200
	if resp.HasError() {
		status = statusForCode(resp.Error.Code)
	}

	g.recorder.Record(meter.UsageRecord{
		CredentialID:   credential,
		Chain:          cn.Slug,
		Network:        cn.Network,
		Method:         req.Method,
		ComputeUnits:   units,
		ResponseTimeMs: time.Since(start).Milliseconds(),
		StatusCode:     status,
		Timestamp:      time.Now().UTC(),
	})
}

// statusForCode maps JSON-RPC error codes to an HTTP-ish status for usage
// records. Semantic errors still ride an HTTP 200.
func statusForCode(code int) int {
	switch code {
	case jsonrpc.CodeRateLimited:
		return 429
	case jsonrpc.CodeOriginUnreachable:
		return 502
	default:
		return 200
	}
}

// RetryAfterSeconds returns the Retry-After hint for rate-limited responses
func (g *Gateway) RetryAfterSeconds() string {
	if g.gate == nil {
		return "60"
	}
	return strconv.Itoa(int(g.gate.Window().Seconds()))
}
