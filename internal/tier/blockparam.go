package tier

import (
	"encoding/json"
	"strings"
)

// floatingTags are block identifiers that track the chain tip rather than
// pinning a specific block
var floatingTags = map[string]bool{
	"latest":    true,
	"pending":   true,
	"safe":      true,
	"finalized": true,
}

// IsFloatingTag returns true for block tags that resolve differently over time
func IsFloatingTag(tag string) bool {
	return floatingTags[strings.ToLower(tag)]
}

// isFloatingParam checks whether a single block argument is a floating tag.
// The argument may be a string tag/number or an object with a blockNumber
// field (EIP-1898 style).
func isFloatingParam(param json.RawMessage) bool {
	var strParam string
	if err := json.Unmarshal(param, &strParam); err != nil {
		var objParam map[string]interface{}
		if err := json.Unmarshal(param, &objParam); err != nil {
			return true // unparseable, assume floating
		}
		if blockNum, ok := objParam["blockNumber"]; ok {
			if s, ok := blockNum.(string); ok {
				return floatingTags[strings.ToLower(s)]
			}
		}
		// blockHash pins a specific block
		return false
	}
	return floatingTags[strings.ToLower(strParam)]
}

// blockParamFloating reports whether the block argument at idx is floating.
// A missing block argument defaults to "latest" on every chain, so it counts
// as floating too.
func blockParamFloating(params json.RawMessage, idx int) bool {
	if idx < 0 {
		return false
	}
	if len(params) == 0 {
		return true
	}

	var paramsArray []json.RawMessage
	if err := json.Unmarshal(params, &paramsArray); err != nil {
		return true
	}
	if idx >= len(paramsArray) {
		return true
	}
	return isFloatingParam(paramsArray[idx])
}

// rangeFloating reports whether a filter-object param (eth_getLogs style)
// has a floating fromBlock or toBlock. A missing bound defaults to latest.
func rangeFloating(params json.RawMessage) bool {
	if len(params) == 0 {
		return true
	}

	var paramsArray []json.RawMessage
	if err := json.Unmarshal(params, &paramsArray); err != nil || len(paramsArray) == 0 {
		return true
	}

	var filterObj map[string]interface{}
	if err := json.Unmarshal(paramsArray[0], &filterObj); err != nil {
		return true
	}

	// A blockHash filter pins an exact block
	if _, ok := filterObj["blockHash"]; ok {
		return false
	}

	for _, bound := range []string{"fromBlock", "toBlock"} {
		v, ok := filterObj[bound]
		if !ok {
			return true
		}
		s, ok := v.(string)
		if !ok {
			return true
		}
		if floatingTags[strings.ToLower(s)] {
			return true
		}
	}
	return false
}
