package origin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"chaingate/internal/jsonrpc"
)

// RetryConfig bounds the retry loop for transport failures
type RetryConfig struct {
	MaxAttempts int           // total attempts including the first
	BaseDelay   time.Duration // first backoff step
	MaxDelay    time.Duration // backoff ceiling
}

// DefaultRetryConfig returns the default retry bounds
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
}

// Config for creating a Client
type Config struct {
	URL     string
	Timeout time.Duration
	Retry   RetryConfig
	Logger  zerolog.Logger
}

// Client issues JSON-RPC calls to a single chain's origin endpoint.
// Transport failures are retried with exponential backoff; a well-formed
// JSON-RPC error object is terminal and returned as-is.
type Client struct {
	url        string
	httpClient *http.Client
	retry      RetryConfig
	logger     zerolog.Logger
}

// NewClient creates an origin client for one RPC URL
func NewClient(cfg Config) *Client {
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  true,
	}

	return &Client{
		url: cfg.URL,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		retry:  cfg.Retry,
		logger: cfg.Logger.With().Str("component", "origin").Str("url", cfg.URL).Logger(),
	}
}

// URL returns the endpoint this client talks to
func (c *Client) URL() string {
	return c.url
}

// Call sends one JSON-RPC request. The returned response may carry a
// semantic JSON-RPC error; a non-nil Go error is always a *TransportError.
func (c *Client) Call(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	body, err := req.Bytes()
	if err != nil {
		return nil, &TransportError{Attempts: 0, Err: fmt.Errorf("marshal request: %w", err)}
	}

	raw, attempts, err := c.post(ctx, body)
	if err != nil {
		return nil, &TransportError{Attempts: attempts, Err: err}
	}

	resp, err := jsonrpc.ParseResponse(raw)
	if err != nil {
		return nil, &TransportError{Attempts: attempts, Err: fmt.Errorf("parse response: %w", err)}
	}

	return resp, nil
}

// BatchCall sends a true JSON-RPC batch. Origins may answer out of order, so
// responses are re-matched to requests by id before returning; callers can
// zip results positionally.
func (c *Client) BatchCall(ctx context.Context, requests []*jsonrpc.Request) ([]*jsonrpc.Response, error) {
	if len(requests) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(requests)
	if err != nil {
		return nil, &TransportError{Attempts: 0, Err: fmt.Errorf("marshal batch: %w", err)}
	}

	raw, attempts, err := c.post(ctx, body)
	if err != nil {
		return nil, &TransportError{Attempts: attempts, Err: err}
	}

	responses, _, err := jsonrpc.ParseBatchResponse(raw)
	if err != nil {
		return nil, &TransportError{Attempts: attempts, Err: fmt.Errorf("parse batch response: %w", err)}
	}

	return matchByID(requests, responses), nil
}

// matchByID aligns responses with requests positionally using their ids.
// A request the origin never answered gets an internal-error response so the
// output length always equals the input length.
func matchByID(requests []*jsonrpc.Request, responses []*jsonrpc.Response) []*jsonrpc.Response {
	byID := make(map[string]*jsonrpc.Response, len(responses))
	for _, resp := range responses {
		if resp != nil {
			byID[resp.ID.String()] = resp
		}
	}

	out := make([]*jsonrpc.Response, len(requests))
	for i, req := range requests {
		if resp, ok := byID[req.ID.String()]; ok {
			out[i] = resp
			continue
		}
		out[i] = jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.CodeInternalError, "no response from origin"))
	}
	return out
}

// post performs the HTTP round-trip with bounded exponential-backoff retry.
// Returns the body, the number of attempts made, and the last error.
func (c *Client) post(ctx context.Context, body []byte) ([]byte, int, error) {
	var lastErr error

	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		raw, err := c.postOnce(ctx, body)
		if err == nil {
			return raw, attempt, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, attempt, ctx.Err()
		}
		if attempt == c.retry.MaxAttempts {
			break
		}

		delay := c.backoff(attempt)
		c.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("maxAttempts", c.retry.MaxAttempts).
			Dur("backoff", delay).
			Msg("origin call failed, retrying")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, attempt, ctx.Err()
		}
	}

	return nil, c.retry.MaxAttempts, lastErr
}

// postOnce performs a single HTTP POST
func (c *Client) postOnce(ctx context.Context, body []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, string(snippet))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return raw, nil
}

// backoff computes the exponential delay for the given attempt with jitter
func (c *Client) backoff(attempt int) time.Duration {
	delay := c.retry.BaseDelay << (attempt - 1)
	if delay > c.retry.MaxDelay {
		delay = c.retry.MaxDelay
	}
	// up to 10% jitter so synchronized clients do not retry in lockstep
	jitter := time.Duration(rand.Int63n(int64(delay)/10 + 1))
	return delay + jitter
}
