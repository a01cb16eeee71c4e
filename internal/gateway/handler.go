package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"chaingate/internal/chains"
	"chaingate/internal/config"
	"chaingate/internal/jsonrpc"
	"chaingate/internal/tier"
)

// Handler is the inbound HTTP surface: POST /rpc/{chain}[/{network}] with a
// JSON-RPC request or array in the body. Semantic RPC errors always ride an
// HTTP 200; non-2xx is reserved for transport-level problems.
type Handler struct {
	gateway     *Gateway
	maxBodySize int64

	// WSUpgrade, when set, takes over GET requests asking for a WebSocket
	// upgrade on the same path
	WSUpgrade func(w http.ResponseWriter, r *http.Request, cn *chains.ChainNetwork)
}

// NewHandler creates the RPC HTTP handler
func NewHandler(g *Gateway, maxBodySize int64) *Handler {
	return &Handler{
		gateway:     g,
		maxBodySize: maxBodySize,
	}
}

// ServeHTTP handles RPC requests
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	slug, network, ok := splitChainPath(r.URL.Path)
	if !ok {
		http.Error(w, "chain is required", http.StatusNotFound)
		return
	}

	cn, found := h.gateway.registry.Lookup(slug, network)
	if !found {
		http.Error(w, "unsupported chain", http.StatusNotFound)
		return
	}

	if h.WSUpgrade != nil && r.Method == http.MethodGet &&
		strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		h.WSUpgrade(w, r, cn)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := h.readBody(r)
	if err != nil {
		h.writeResponse(w, tier.NoCache, jsonrpc.NewErrorResponse(jsonrpc.NewIDNull(), jsonrpc.NewError(jsonrpc.CodeInvalidRequest, err.Error())))
		return
	}

	elements, isBatch, err := jsonrpc.SplitBatch(body)
	if err != nil {
		h.writeResponse(w, tier.NoCache, jsonrpc.NewErrorResponse(jsonrpc.NewIDNull(), jsonrpc.ErrParse))
		return
	}

	credential := credentialFrom(r)
	ctx := r.Context()

	if isBatch {
		responses, lowest, rateRejected, rpcErr := h.gateway.serveBatch(ctx, cn, credential, elements)
		if rpcErr != nil {
			h.writeResponse(w, tier.NoCache, jsonrpc.NewErrorResponse(jsonrpc.NewIDNull(), rpcErr))
			return
		}
		if rateRejected {
			w.Header().Set("Retry-After", h.gateway.RetryAfterSeconds())
		}
		h.writeBatchResponse(w, lowest, responses)
		return
	}

	req, rpcErr := parseSingle(elements[0])
	if rpcErr != nil {
		h.writeResponse(w, tier.NoCache, jsonrpc.NewErrorResponse(jsonrpc.NewIDNull(), rpcErr))
		return
	}

	res := h.gateway.serveOne(ctx, cn, credential, req)
	if res.rateRejected {
		w.Header().Set("Retry-After", h.gateway.RetryAfterSeconds())
	}
	h.writeResponse(w, res.tier, res.resp)
}

// readBody reads the request body, enforcing the size cap
func (h *Handler) readBody(r *http.Request) ([]byte, error) {
	if h.maxBodySize <= 0 {
		return io.ReadAll(r.Body)
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxBodySize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > h.maxBodySize {
		return nil, errBodyTooLarge
	}
	return body, nil
}

var errBodyTooLarge = jsonrpc.NewError(jsonrpc.CodeInvalidRequest, "request body too large")

// parseSingle parses and validates a lone request
func parseSingle(data json.RawMessage) (*jsonrpc.Request, *jsonrpc.Error) {
	req, err := jsonrpc.ParseRequest(data)
	if err != nil {
		return nil, jsonrpc.ErrParse
	}
	if err := req.Validate(); err != nil {
		return nil, jsonrpc.NewError(jsonrpc.CodeInvalidRequest, err.Error())
	}
	return req, nil
}

// credentialFrom extracts the opaque credential used for rate limiting and
// usage attribution. Key resolution happens upstream of this service; an
// absent header attributes to the shared anonymous budget.
func credentialFrom(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return "anonymous"
}

// splitChainPath parses /rpc/{chain}[/{network}]
func splitChainPath(path string) (slug, network string, ok bool) {
	path = strings.TrimPrefix(path, "/rpc")
	path = strings.Trim(path, "/")
	if path == "" {
		return "", "", false
	}

	parts := strings.SplitN(path, "/", 2)
	slug = parts[0]
	network = config.DefaultNetwork
	if len(parts) == 2 && parts[1] != "" {
		network = strings.Trim(parts[1], "/")
	}
	return slug, network, true
}

// writeResponse writes a single JSON-RPC response with tier-derived
// cache-control headers for the edge tier
func (h *Handler) writeResponse(w http.ResponseWriter, tr tier.Tier, resp *jsonrpc.Response) {
	data, err := resp.Bytes()
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, tr, data)
}

// writeBatchResponse writes a JSON-RPC response array
func (h *Handler) writeBatchResponse(w http.ResponseWriter, tr tier.Tier, responses []*jsonrpc.Response) {
	data, err := jsonrpc.MarshalBatchResponse(responses)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, tr, data)
}

func (h *Handler) writeJSON(w http.ResponseWriter, tr tier.Tier, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", tr.CacheControl())
	w.Write(data)
}
