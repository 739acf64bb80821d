package domain

import (
	"context"
	"time"
)

// ChainConfig is the allocator's view of a single supported chain: the
// allocatorId this service operates under, and how many blocks of
// finalization lag the indexer applies before a resource-lock event is
// considered settled.
type ChainConfig struct {
	ChainID               *BigInt
	AllocatorID           *BigInt
	FinalizationLagBlocks int
}

// SupportedChainCache is the process-wide, read-mostly mapping of chainId to
// ChainConfig. It is refreshed manually at startup and on an administrative
// call — never on the hot balance-check path, since a stale entry there
// would violate the TOCTOU guarantees of the AllocationEngine.
type SupportedChainCache interface {
	Get(chainID *BigInt) (ChainConfig, bool)
	All() []ChainConfig
	Refresh(ctx context.Context) ([]ChainConfig, error)
}

// RateLimiter provides distributed rate limiting for the HTTP boundary.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides the per-sponsor exclusion primitive the
// AllocationEngine uses to serialize submissions from a single sponsor.
// Acquire blocks (subject to ctx) until the lock is held, and returns a
// function that releases it; that function is safe to call more than once.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
