// Package balance computes, for a sponsor's resource lock, how much of the
// on-chain balance remains allocatable after pending withdrawals and
// already-outstanding local commitments.
package balance

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/allocatorhq/compactd/internal/domain"
	"github.com/allocatorhq/compactd/internal/indexer"
)

// IndexerClient is the narrow slice of internal/indexer.Client the
// BalanceEngine depends on.
type IndexerClient interface {
	GetCompactDetails(ctx context.Context, allocator, sponsor string, lockID *domain.BigInt, chainID *domain.BigInt) (*indexer.CompactDetails, error)
}

// ChainLookup resolves a chain's configured allocatorId, for the
// wrong-allocator check.
type ChainLookup interface {
	Get(chainID *domain.BigInt) (domain.ChainConfig, bool)
}

// Engine computes allocatable balance and outstanding commitments for
// (sponsor, chainId, lockId) triples.
type Engine struct {
	indexer IndexerClient
	chains  ChainLookup
	store   domain.CompactStore
}

// New returns an Engine.
func New(indexer IndexerClient, chains ChainLookup, store domain.CompactStore) *Engine {
	return &Engine{indexer: indexer, chains: chains, store: store}
}

// Result is the per-lock outcome of Check.
type Result struct {
	LockID      *domain.BigInt
	ChainID     *domain.BigInt
	Allocatable *domain.BigInt
	Outstanding *domain.BigInt
}

// Capacity returns how much of this lock's allocatable balance remains
// uncommitted: allocatable - outstanding.
func (r Result) Capacity() *domain.BigInt {
	return r.Allocatable.Sub(r.Outstanding)
}

// Check computes (allocatable, outstanding) for a single (sponsor, chainId,
// lockId) triple per SPEC_FULL.md §4.6, enforcing the lock-missing,
// forced-withdrawal, and wrong-allocator checks.
func (e *Engine) Check(ctx context.Context, allocatorAddr, sponsor string, chainID, lockID, allocatorID *domain.BigInt) (Result, error) {
	details, err := e.indexer.GetCompactDetails(ctx, allocatorAddr, sponsor, lockID, chainID)
	if err != nil {
		return Result{}, &domain.IndexerErr{Op: "GetCompactDetails", Err: err}
	}
	if details.ResourceLock == nil {
		return Result{}, &domain.BalanceError{Kind: domain.BalanceLockMissing, LockID: lockID}
	}
	if details.ResourceLock.WithdrawalStatus != 0 {
		return Result{}, &domain.BalanceError{Kind: domain.BalanceForcedWithdrawal, LockID: lockID}
	}

	cfg, ok := e.chains.Get(chainID)
	if !ok || cfg.AllocatorID.Cmp(allocatorID) != 0 {
		return Result{}, &domain.BalanceError{Kind: domain.BalanceWrongAllocator, LockID: lockID}
	}

	pending := domain.BigIntFromInt64(0)
	for _, d := range details.AccountDeltas {
		pending = pending.Add(d.Delta)
	}
	balance := details.ResourceLock.Balance
	allocatable := balance.Sub(pending)
	if allocatable.Sign() < 0 {
		allocatable = domain.BigIntFromInt64(0)
	}

	outstanding, err := e.store.SumOutstanding(ctx, sponsor, chainID, lockID, time.Now(), details.SettledClaims)
	if err != nil {
		return Result{}, err
	}

	return Result{LockID: lockID, ChainID: chainID, Allocatable: allocatable, Outstanding: outstanding}, nil
}

// Lookup is one (chainId, lockId, allocatorId) triple to check, as derived
// from a submission's commitments.
type Lookup struct {
	ChainID     *domain.BigInt
	LockID      *domain.BigInt
	AllocatorID *domain.BigInt
}

// CheckAll runs Check concurrently for every distinct lookup, via
// golang.org/x/sync/errgroup; the first hard failure cancels the
// remaining in-flight lookups.
func (e *Engine) CheckAll(ctx context.Context, allocatorAddr, sponsor string, lookups []Lookup) ([]Result, error) {
	results := make([]Result, len(lookups))
	g, gctx := errgroup.WithContext(ctx)
	for i, lk := range lookups {
		i, lk := i, lk
		g.Go(func() error {
			r, err := e.Check(gctx, allocatorAddr, sponsor, lk.ChainID, lk.LockID, lk.AllocatorID)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
