package chains

import (
	"fmt"

	"chaingate/internal/config"
)

// ChainNetwork is an immutable record describing one chain endpoint.
type ChainNetwork struct {
	Slug     string
	Network  string
	RPCURL   string
	Family   config.ChainFamily
	Decimals int
}

// Key returns the canonical "{slug}/{network}" identifier.
func (c *ChainNetwork) Key() string {
	return c.Slug + "/" + c.Network
}

// Registry maps (slug, network) pairs to their connection parameters.
// Built once at startup from validated config; read-only afterwards, so
// lookups need no locking.
type Registry struct {
	chains map[string]*ChainNetwork
}

// NewRegistry builds a Registry from config entries.
// Duplicate (slug, network) pairs are a configuration error.
func NewRegistry(entries []config.ChainConfig) (*Registry, error) {
	chains := make(map[string]*ChainNetwork, len(entries))
	for _, e := range entries {
		cn := &ChainNetwork{
			Slug:     e.Slug,
			Network:  e.Network,
			RPCURL:   e.RPCURL,
			Family:   e.Family,
			Decimals: e.Decimals,
		}
		if _, exists := chains[cn.Key()]; exists {
			return nil, fmt.Errorf("duplicate chain '%s'", cn.Key())
		}
		chains[cn.Key()] = cn
	}
	return &Registry{chains: chains}, nil
}

// Lookup resolves a (slug, network) pair. An empty network defaults to mainnet.
func (r *Registry) Lookup(slug, network string) (*ChainNetwork, bool) {
	if network == "" {
		network = config.DefaultNetwork
	}
	cn, ok := r.chains[slug+"/"+network]
	return cn, ok
}

// Has returns true if the (slug, network) pair is registered.
func (r *Registry) Has(slug, network string) bool {
	_, ok := r.Lookup(slug, network)
	return ok
}

// All returns every registered chain network.
func (r *Registry) All() []*ChainNetwork {
	out := make([]*ChainNetwork, 0, len(r.chains))
	for _, cn := range r.chains {
		out = append(out, cn)
	}
	return out
}
