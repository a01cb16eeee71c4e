package batch

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"chaingate/internal/cache"
	"chaingate/internal/jsonrpc"
	"chaingate/internal/tier"
)

// Fetcher issues origin-bound calls. Satisfied by the origin client.
type Fetcher interface {
	Call(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error)
	BatchCall(ctx context.Context, requests []*jsonrpc.Request) ([]*jsonrpc.Response, error)
}

// Hooks lets the orchestrator run its per-item state machine inside the
// optimizer without the optimizer knowing about rate limits or billing.
type Hooks struct {
	// BeforeFetch runs for each item that missed the cache. A non-nil
	// error rejects the item in place without touching the origin.
	BeforeFetch func(req *jsonrpc.Request) *jsonrpc.Error

	// OnServed runs once per served item, cache hit or not
	OnServed func(req *jsonrpc.Request, resp *jsonrpc.Response, cacheHit bool)
}

// Optimizer minimizes origin round-trips for a JSON-RPC batch: it serves
// what it can from the cache, deduplicates the remaining fetches, issues
// only the misses, back-fills the cache, and reassembles responses in the
// original order.
type Optimizer struct {
	cache    *cache.Tiered
	maxBatch int
	logger   zerolog.Logger
}

// NewOptimizer creates a batch optimizer over the given cache
func NewOptimizer(tieredCache *cache.Tiered, maxBatch int, logger zerolog.Logger) *Optimizer {
	if maxBatch <= 0 {
		maxBatch = 100
	}
	return &Optimizer{
		cache:    tieredCache,
		maxBatch: maxBatch,
		logger:   logger.With().Str("component", "batch").Logger(),
	}
}

// MaxBatch returns the configured batch size cap
func (o *Optimizer) MaxBatch() int {
	return o.maxBatch
}

// pending tracks one origin-bound fetch and every batch position waiting on
// its result. Identical cacheable requests collapse into one fetch.
type pending struct {
	req     *jsonrpc.Request
	indices []int
}

// Execute processes a batch of raw elements and returns one response per
// element in input order. Malformed elements become parse errors at their
// position; only a batch over the size cap fails as a whole. The lowest
// tier across the batch is returned for response header derivation.
func (o *Optimizer) Execute(ctx context.Context, chain, network string, fetcher Fetcher, elements []json.RawMessage, hooks Hooks) ([]*jsonrpc.Response, tier.Tier, *jsonrpc.Error) {
	if len(elements) > o.maxBatch {
		return nil, tier.NoCache, jsonrpc.NewError(jsonrpc.CodeInvalidRequest, "batch too large")
	}

	responses := make([]*jsonrpc.Response, len(elements))
	requests := make([]*jsonrpc.Request, len(elements))
	lowest := tier.Immutable

	// Cache pass: parse each element, serve hits, collect misses.
	// Identical cacheable misses share one pending fetch keyed by the
	// derived cache key.
	fetchOrder := make([]*pending, 0, len(elements))
	byKey := make(map[string]*pending)

	for i, element := range elements {
		req, rpcErr := parseElement(element)
		if rpcErr != nil {
			responses[i] = jsonrpc.NewErrorResponse(jsonrpc.NewIDNull(), rpcErr)
			lowest = tier.NoCache
			continue
		}
		requests[i] = req

		data, found, tr := o.cache.Get(ctx, chain, network, req.Method, req.Params)
		lowest = tier.Min(lowest, tr)

		if found {
			if resp, err := jsonrpc.ParseResponse(data); err == nil {
				resp.ID = req.ID
				responses[i] = resp
				if hooks.OnServed != nil {
					hooks.OnServed(req, resp, true)
				}
				continue
			}
		}

		if tr.Cacheable() {
			key := cache.Key(chain, network, req.Method, req.Params)
			if p, ok := byKey[key]; ok {
				p.indices = append(p.indices, i)
				continue
			}
			p := &pending{req: req, indices: []int{i}}
			byKey[key] = p
			fetchOrder = append(fetchOrder, p)
			continue
		}

		fetchOrder = append(fetchOrder, &pending{req: req, indices: []int{i}})
	}

	// Rate pass: reject gated items before they reach the origin
	toFetch := fetchOrder[:0]
	for _, p := range fetchOrder {
		if hooks.BeforeFetch != nil {
			if rpcErr := hooks.BeforeFetch(p.req); rpcErr != nil {
				for _, idx := range p.indices {
					responses[idx] = jsonrpc.NewErrorResponse(requests[idx].ID, rpcErr)
					if hooks.OnServed != nil {
						hooks.OnServed(requests[idx], responses[idx], false)
					}
				}
				continue
			}
		}
		toFetch = append(toFetch, p)
	}

	o.fetch(ctx, chain, network, fetcher, toFetch, requests, responses, hooks)

	// Error responses and null results must not be edge-cached, so they
	// drag the whole batch down to NoCache headers
	for _, resp := range responses {
		if resp != nil && (resp.HasError() || resp.ResultIsNull()) {
			lowest = tier.NoCache
			break
		}
	}

	return responses, lowest, nil
}

// fetch issues the origin-bound subset and merges results back by index
func (o *Optimizer) fetch(ctx context.Context, chain, network string, fetcher Fetcher, toFetch []*pending, requests []*jsonrpc.Request, responses []*jsonrpc.Response, hooks Hooks) {
	if len(toFetch) == 0 {
		return
	}

	o.cache.Stats().RecordOriginCalls(len(toFetch))

	var results []*jsonrpc.Response
	var err error

	if len(toFetch) == 1 {
		var resp *jsonrpc.Response
		resp, err = fetcher.Call(ctx, toFetch[0].req)
		if err == nil {
			results = []*jsonrpc.Response{resp}
		}
	} else {
		reqs := make([]*jsonrpc.Request, len(toFetch))
		for i, p := range toFetch {
			reqs[i] = p.req
		}
		results, err = fetcher.BatchCall(ctx, reqs)
	}

	if err != nil {
		o.logger.Warn().Err(err).Int("requests", len(toFetch)).Msg("origin fetch failed")
		rpcErr := jsonrpc.NewError(jsonrpc.CodeOriginUnreachable, "origin unreachable")
		for _, p := range toFetch {
			for _, idx := range p.indices {
				responses[idx] = jsonrpc.NewErrorResponse(requests[idx].ID, rpcErr)
				if hooks.OnServed != nil {
					hooks.OnServed(requests[idx], responses[idx], false)
				}
			}
		}
		return
	}

	// Cache population survives client cancellation: entries benefit the
	// next caller even if this one went away.
	writeCtx := context.WithoutCancel(ctx)

	for i, p := range toFetch {
		resp := results[i]

		// Null results are absences that may fill in later; never store them
		if resp.IsSuccess() && !resp.ResultIsNull() {
			if data, merr := resp.Bytes(); merr == nil {
				o.cache.Set(writeCtx, chain, network, p.req.Method, p.req.Params, data)
			}
		}

		for _, idx := range p.indices {
			itemResp := resp.Clone()
			itemResp.ID = requests[idx].ID
			responses[idx] = itemResp
			if hooks.OnServed != nil {
				hooks.OnServed(requests[idx], itemResp, false)
			}
		}
	}
}

// parseElement parses and validates one raw batch element
func parseElement(element json.RawMessage) (*jsonrpc.Request, *jsonrpc.Error) {
	req, err := jsonrpc.ParseRequest(element)
	if err != nil {
		return nil, jsonrpc.ErrParse
	}
	if err := req.Validate(); err != nil {
		return nil, jsonrpc.NewError(jsonrpc.CodeInvalidRequest, err.Error())
	}
	return req, nil
}
