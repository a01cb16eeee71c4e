package chains

import (
	"testing"

	"chaingate/internal/config"
)

func testEntries() []config.ChainConfig {
	return []config.ChainConfig{
		{Slug: "eth", Network: "mainnet", RPCURL: "https://eth.example.com", Family: config.FamilyEVM, Decimals: 18},
		{Slug: "eth", Network: "sepolia", RPCURL: "https://sepolia.example.com", Family: config.FamilyEVM, Decimals: 18},
		{Slug: "solana", Network: "mainnet", RPCURL: "https://sol.example.com", Family: config.FamilyOther, Decimals: 9},
	}
}

func TestRegistry_Lookup(t *testing.T) {
	r, err := NewRegistry(testEntries())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	cn, ok := r.Lookup("eth", "sepolia")
	if !ok {
		t.Fatal("eth/sepolia not found")
	}
	if cn.RPCURL != "https://sepolia.example.com" {
		t.Errorf("RPCURL = %s", cn.RPCURL)
	}
	if cn.Key() != "eth/sepolia" {
		t.Errorf("Key = %s, want eth/sepolia", cn.Key())
	}

	if _, ok := r.Lookup("eth", "goerli"); ok {
		t.Error("unknown network resolved")
	}
	if _, ok := r.Lookup("dogecoin", "mainnet"); ok {
		t.Error("unknown chain resolved")
	}
}

func TestRegistry_EmptyNetworkDefaultsToMainnet(t *testing.T) {
	r, err := NewRegistry(testEntries())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	cn, ok := r.Lookup("solana", "")
	if !ok {
		t.Fatal("solana with empty network not found")
	}
	if cn.Network != "mainnet" {
		t.Errorf("Network = %s, want mainnet", cn.Network)
	}
}

func TestRegistry_Has(t *testing.T) {
	r, err := NewRegistry(testEntries())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	if !r.Has("eth", "sepolia") {
		t.Error("Has(eth, sepolia) = false")
	}
	if !r.Has("solana", "") {
		t.Error("Has(solana, \"\") = false, empty network should default to mainnet")
	}
	if r.Has("eth", "goerli") {
		t.Error("Has(eth, goerli) = true")
	}
}

func TestRegistry_DuplicateRejected(t *testing.T) {
	entries := append(testEntries(), config.ChainConfig{
		Slug: "eth", Network: "mainnet", RPCURL: "https://other.example.com",
	})
	if _, err := NewRegistry(entries); err == nil {
		t.Error("duplicate chain accepted")
	}
}

func TestRegistry_All(t *testing.T) {
	r, err := NewRegistry(testEntries())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if got := len(r.All()); got != 3 {
		t.Errorf("All() returned %d entries, want 3", got)
	}
}
