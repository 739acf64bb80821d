package indexer

import (
	"context"
	"sync"

	"github.com/allocatorhq/compactd/internal/domain"
)

// refresher fetches the current set of supported chains from the indexer.
// *Client satisfies this.
type refresher interface {
	GetSupportedChains(ctx context.Context, allocator string) ([]domain.ChainConfig, error)
}

// ChainCache is the process-wide, read-mostly supported-chains cache
// described in SPEC_FULL.md §5: refreshed manually at startup and via
// POST /admin/refresh-chains, never on the hot balance-check path.
type ChainCache struct {
	mu        sync.RWMutex
	byChainID map[string]domain.ChainConfig
	allocator string
	indexer   refresher
}

// NewChainCache returns an empty ChainCache bound to the given allocator
// address; call Refresh once before serving traffic.
func NewChainCache(indexer refresher, allocator string) *ChainCache {
	return &ChainCache{
		byChainID: make(map[string]domain.ChainConfig),
		allocator: allocator,
		indexer:   indexer,
	}
}

// Get returns the ChainConfig for chainID, if known.
func (c *ChainCache) Get(chainID *domain.BigInt) (domain.ChainConfig, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cfg, ok := c.byChainID[chainID.String()]
	return cfg, ok
}

// All returns every cached ChainConfig.
func (c *ChainCache) All() []domain.ChainConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.ChainConfig, 0, len(c.byChainID))
	for _, cfg := range c.byChainID {
		out = append(out, cfg)
	}
	return out
}

// Refresh re-fetches the supported-chains list from the indexer and
// atomically replaces the cached map.
func (c *ChainCache) Refresh(ctx context.Context) ([]domain.ChainConfig, error) {
	chains, err := c.indexer.GetSupportedChains(ctx, c.allocator)
	if err != nil {
		return nil, err
	}

	next := make(map[string]domain.ChainConfig, len(chains))
	for _, cfg := range chains {
		next[cfg.ChainID.String()] = cfg
	}

	c.mu.Lock()
	c.byChainID = next
	c.mu.Unlock()

	return chains, nil
}

var _ domain.SupportedChainCache = (*ChainCache)(nil)
