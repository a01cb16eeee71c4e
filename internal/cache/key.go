package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// Key creates a deterministic cache key for a request:
// {chain}:{network}:{method}:{paramsDigest}. The prefix stays human-readable
// for diagnostics and prefix invalidation; the digest bounds key length
// regardless of payload size.
//
// The key never incorporates caller identity: chain data is public and
// identical for every caller, so identical requests from different
// credentials deliberately share one entry.
func Key(chain, network, method string, params json.RawMessage) string {
	normalized := normalizeParams(params)
	hash := sha256.Sum256(normalized)
	digest := hex.EncodeToString(hash[:8])

	return chain + ":" + network + ":" + method + ":" + digest
}

// KeyPrefix returns the shared prefix of keys for the given scope. Empty
// segments widen the scope: ("eth", "", "") matches every network and method
// on the eth chain.
func KeyPrefix(chain, network, method string) string {
	parts := []string{}
	for _, p := range []string{chain, network, method} {
		if p == "" {
			break
		}
		parts = append(parts, p)
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, ":") + ":"
}

// normalizeParams normalizes JSON params for consistent hashing
func normalizeParams(params json.RawMessage) []byte {
	if len(params) == 0 {
		return []byte("[]")
	}

	var data interface{}
	if err := json.Unmarshal(params, &data); err != nil {
		return params // hash as-is if unparseable
	}

	normalized := normalizeValue(data)
	result, err := json.Marshal(normalized)
	if err != nil {
		return params
	}

	return result
}

// normalizeValue recursively normalizes a JSON value
func normalizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return normalizeMap(val)
	case []interface{}:
		return normalizeArray(val)
	case string:
		return strings.ToLower(val) // hex addresses/hashes are case-insensitive
	default:
		return val
	}
}

// normalizeMap normalizes a map by sorting keys
func normalizeMap(m map[string]interface{}) map[string]interface{} {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := make(map[string]interface{})
	for _, k := range keys {
		result[k] = normalizeValue(m[k])
	}
	return result
}

// normalizeArray normalizes an array preserving order
func normalizeArray(arr []interface{}) []interface{} {
	result := make([]interface{}, len(arr))
	for i, v := range arr {
		result[i] = normalizeValue(v)
	}
	return result
}
