package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// Request represents a JSON-RPC request
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      ID              `json:"id"`
}

// Validate checks if the request is valid
func (r *Request) Validate() error {
	if r.JSONRPC != Version {
		return fmt.Errorf("invalid jsonrpc version: %s", r.JSONRPC)
	}
	if r.Method == "" {
		return fmt.Errorf("method is required")
	}
	return nil
}

// NewRequest creates a new JSON-RPC request
func NewRequest(method string, params interface{}, id ID) (*Request, error) {
	req := &Request{
		JSONRPC: Version,
		Method:  method,
		ID:      id,
	}

	if params != nil {
		paramsBytes, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal params: %w", err)
		}
		req.Params = paramsBytes
	}

	return req, nil
}

// ParseRequest parses a single JSON-RPC request from bytes
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	return &req, nil
}

// SplitBatch splits a JSON-RPC body into its raw elements.
// Returns the elements and true when the body is a batch (array), or a
// single-element slice and false for a lone request. Individual elements are
// left unparsed so a malformed entry can be rejected in place without
// failing its siblings.
func SplitBatch(data []byte) ([]json.RawMessage, bool, error) {
	data = trimWhitespace(data)
	if len(data) == 0 {
		return nil, false, ErrInvalidRequest
	}

	if data[0] == '[' {
		var elements []json.RawMessage
		if err := json.Unmarshal(data, &elements); err != nil {
			return nil, true, fmt.Errorf("failed to parse batch request: %w", err)
		}
		if len(elements) == 0 {
			return nil, true, ErrInvalidRequest
		}
		return elements, true, nil
	}

	return []json.RawMessage{data}, false, nil
}

// Bytes returns the request as JSON bytes
func (r *Request) Bytes() ([]byte, error) {
	return json.Marshal(r)
}

// trimWhitespace removes leading whitespace from byte slice
func trimWhitespace(data []byte) []byte {
	for i := 0; i < len(data); i++ {
		switch data[i] {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return data[i:]
		}
	}
	return data
}

// IsSubscribeMethod returns true if the method is eth_subscribe
func (r *Request) IsSubscribeMethod() bool {
	return r.Method == "eth_subscribe"
}

// IsUnsubscribeMethod returns true if the method is eth_unsubscribe
func (r *Request) IsUnsubscribeMethod() bool {
	return r.Method == "eth_unsubscribe"
}

// GetSubscriptionType extracts the subscription type from params
func (r *Request) GetSubscriptionType() (string, json.RawMessage, error) {
	if !r.IsSubscribeMethod() {
		return "", nil, fmt.Errorf("not a subscribe request")
	}

	var params []json.RawMessage
	if err := json.Unmarshal(r.Params, &params); err != nil {
		return "", nil, fmt.Errorf("invalid params format: %w", err)
	}

	if len(params) == 0 {
		return "", nil, fmt.Errorf("subscription type is required")
	}

	var subType string
	if err := json.Unmarshal(params[0], &subType); err != nil {
		return "", nil, fmt.Errorf("invalid subscription type: %w", err)
	}

	var additionalParams json.RawMessage
	if len(params) > 1 {
		additionalParams = params[1]
	}

	return subType, additionalParams, nil
}

// GetUnsubscribeID extracts the subscription ID from unsubscribe params
func (r *Request) GetUnsubscribeID() (string, error) {
	if !r.IsUnsubscribeMethod() {
		return "", fmt.Errorf("not an unsubscribe request")
	}

	var params []string
	if err := json.Unmarshal(r.Params, &params); err != nil {
		return "", fmt.Errorf("invalid params format: %w", err)
	}

	if len(params) == 0 {
		return "", fmt.Errorf("subscription ID is required")
	}

	return params[0], nil
}
