package cache

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestKey_Format(t *testing.T) {
	key := Key("eth", "mainnet", "eth_getBlockByNumber", json.RawMessage(`["0x10", false]`))

	parts := strings.Split(key, ":")
	if len(parts) != 4 {
		t.Fatalf("key has %d segments, want 4: %s", len(parts), key)
	}
	if parts[0] != "eth" || parts[1] != "mainnet" || parts[2] != "eth_getBlockByNumber" {
		t.Errorf("key prefix = %s:%s:%s", parts[0], parts[1], parts[2])
	}
	// 8-byte digest hex-encoded
	if len(parts[3]) != 16 {
		t.Errorf("digest length = %d, want 16", len(parts[3]))
	}
}

func TestKey_Deterministic(t *testing.T) {
	params := json.RawMessage(`["0xABCdef", "latest"]`)
	first := Key("eth", "mainnet", "eth_getBalance", params)
	for i := 0; i < 10; i++ {
		if got := Key("eth", "mainnet", "eth_getBalance", params); got != first {
			t.Fatalf("key not deterministic: %s vs %s", first, got)
		}
	}
}

func TestKey_CallerIndependent(t *testing.T) {
	// The key is a function of chain, network, method, and params only.
	// Two credentials asking for the same data must share one entry, which
	// this encodes by construction: there is no identity input at all.
	a := Key("eth", "mainnet", "eth_getBlockByNumber", json.RawMessage(`["0x10", false]`))
	b := Key("eth", "mainnet", "eth_getBlockByNumber", json.RawMessage(`["0x10", false]`))
	if a != b {
		t.Errorf("identical requests produced different keys: %s vs %s", a, b)
	}
}

func TestKey_Normalization(t *testing.T) {
	// Map key order must not matter
	a := Key("eth", "mainnet", "eth_getLogs", json.RawMessage(`[{"fromBlock":"0x1","toBlock":"0x2"}]`))
	b := Key("eth", "mainnet", "eth_getLogs", json.RawMessage(`[{"toBlock":"0x2","fromBlock":"0x1"}]`))
	if a != b {
		t.Errorf("map key order changed the key: %s vs %s", a, b)
	}

	// Hex case must not matter
	c := Key("eth", "mainnet", "eth_getBalance", json.RawMessage(`["0xABCDEF", "0x10"]`))
	d := Key("eth", "mainnet", "eth_getBalance", json.RawMessage(`["0xabcdef", "0x10"]`))
	if c != d {
		t.Errorf("hex case changed the key: %s vs %s", c, d)
	}

	// Array order does matter
	e := Key("eth", "mainnet", "eth_getBalance", json.RawMessage(`["0xabc", "0x10"]`))
	f := Key("eth", "mainnet", "eth_getBalance", json.RawMessage(`["0x10", "0xabc"]`))
	if e == f {
		t.Error("array order did not change the key")
	}
}

func TestKey_DistinctInputs(t *testing.T) {
	base := Key("eth", "mainnet", "eth_getBalance", json.RawMessage(`["0xabc", "0x10"]`))

	variants := []string{
		Key("polygon", "mainnet", "eth_getBalance", json.RawMessage(`["0xabc", "0x10"]`)),
		Key("eth", "sepolia", "eth_getBalance", json.RawMessage(`["0xabc", "0x10"]`)),
		Key("eth", "mainnet", "eth_getCode", json.RawMessage(`["0xabc", "0x10"]`)),
		Key("eth", "mainnet", "eth_getBalance", json.RawMessage(`["0xabc", "0x11"]`)),
	}
	for i, v := range variants {
		if v == base {
			t.Errorf("variant %d collided with base key %s", i, base)
		}
	}
}

func TestKey_EmptyParams(t *testing.T) {
	a := Key("eth", "mainnet", "eth_blockNumber", nil)
	b := Key("eth", "mainnet", "eth_blockNumber", json.RawMessage(`[]`))
	if a != b {
		t.Errorf("nil and empty-array params produced different keys: %s vs %s", a, b)
	}
}

func TestKeyPrefix(t *testing.T) {
	tests := []struct {
		chain, network, method string
		want                   string
	}{
		{"eth", "mainnet", "eth_getLogs", "eth:mainnet:eth_getLogs:"},
		{"eth", "mainnet", "", "eth:mainnet:"},
		{"eth", "", "", "eth:"},
		{"", "", "", ""},
		// A hole in the scope stops widening there
		{"eth", "", "eth_getLogs", "eth:"},
	}
	for _, tt := range tests {
		if got := KeyPrefix(tt.chain, tt.network, tt.method); got != tt.want {
			t.Errorf("KeyPrefix(%q, %q, %q) = %q, want %q", tt.chain, tt.network, tt.method, got, tt.want)
		}
	}
}

func TestKeyPrefix_MatchesKey(t *testing.T) {
	key := Key("eth", "mainnet", "eth_getLogs", json.RawMessage(`[{"fromBlock":"0x1"}]`))
	for _, prefix := range []string{
		KeyPrefix("eth", "mainnet", "eth_getLogs"),
		KeyPrefix("eth", "mainnet", ""),
		KeyPrefix("eth", "", ""),
	} {
		if !strings.HasPrefix(key, prefix) {
			t.Errorf("key %s does not start with prefix %s", key, prefix)
		}
	}
}
