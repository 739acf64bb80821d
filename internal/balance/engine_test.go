package balance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/allocatorhq/compactd/internal/domain"
	"github.com/allocatorhq/compactd/internal/indexer"
)

type fakeIndexerClient struct {
	details *indexer.CompactDetails
	err     error
}

func (f *fakeIndexerClient) GetCompactDetails(ctx context.Context, allocator, sponsor string, lockID *domain.BigInt, chainID *domain.BigInt) (*indexer.CompactDetails, error) {
	return f.details, f.err
}

type fakeChainLookup struct {
	cfg domain.ChainConfig
	ok  bool
}

func (f *fakeChainLookup) Get(chainID *domain.BigInt) (domain.ChainConfig, bool) {
	return f.cfg, f.ok
}

// echoChainLookup reports chainID itself as the configured allocatorId, so
// a lookup's AllocatorID always matches so long as it equals its ChainID —
// useful for driving several distinct (chainId, allocatorId) pairs through
// one fake in a single CheckAll call.
type echoChainLookup struct{}

func (echoChainLookup) Get(chainID *domain.BigInt) (domain.ChainConfig, bool) {
	return domain.ChainConfig{AllocatorID: chainID}, true
}

type fakeCompactStore struct {
	outstanding *domain.BigInt
	err         error
}

func (f *fakeCompactStore) Insert(ctx context.Context, nc domain.NewCompact) error { return nil }
func (f *fakeCompactStore) ListBySponsor(ctx context.Context, sponsor string, opts domain.ListOpts) ([]domain.Compact, error) {
	return nil, nil
}
func (f *fakeCompactStore) FindByChainAndClaimHash(ctx context.Context, chainID *domain.BigInt, claimHash string) (domain.Compact, error) {
	return domain.Compact{}, nil
}
func (f *fakeCompactStore) SumOutstanding(ctx context.Context, sponsor string, chainID, lockID *domain.BigInt, now time.Time, settledClaimHashes []string) (*domain.BigInt, error) {
	return f.outstanding, f.err
}
func (f *fakeCompactStore) ListRetiredBefore(ctx context.Context, cutoff time.Time, opts domain.ListOpts) ([]domain.Compact, error) {
	return nil, nil
}

func newDetails(withdrawalStatus int, balance int64, deltas ...int64) *indexer.CompactDetails {
	d := &indexer.CompactDetails{
		ResourceLock: &indexer.ResourceLock{
			WithdrawalStatus: withdrawalStatus,
			Balance:          domain.BigIntFromInt64(balance),
		},
	}
	for _, v := range deltas {
		d.AccountDeltas = append(d.AccountDeltas, indexer.AccountDelta{Delta: domain.BigIntFromInt64(v)})
	}
	return d
}

func TestCheckReturnsLockMissingWhenLockIsNil(t *testing.T) {
	e := New(&fakeIndexerClient{details: &indexer.CompactDetails{}}, &fakeChainLookup{}, &fakeCompactStore{})
	_, err := e.Check(context.Background(), "0xallocator", "0xsponsor", domain.BigIntFromInt64(1), domain.BigIntFromInt64(2), domain.BigIntFromInt64(3))

	var balErr *domain.BalanceError
	if !errors.As(err, &balErr) || balErr.Kind != domain.BalanceLockMissing {
		t.Fatalf("err = %v, want BalanceError{Kind: BalanceLockMissing}", err)
	}
}

func TestCheckReturnsForcedWithdrawalWhenStatusNonZero(t *testing.T) {
	e := New(&fakeIndexerClient{details: newDetails(1, 100)}, &fakeChainLookup{}, &fakeCompactStore{})
	_, err := e.Check(context.Background(), "0xallocator", "0xsponsor", domain.BigIntFromInt64(1), domain.BigIntFromInt64(2), domain.BigIntFromInt64(3))

	var balErr *domain.BalanceError
	if !errors.As(err, &balErr) || balErr.Kind != domain.BalanceForcedWithdrawal {
		t.Fatalf("err = %v, want BalanceError{Kind: BalanceForcedWithdrawal}", err)
	}
}

func TestCheckReturnsWrongAllocatorWhenMismatched(t *testing.T) {
	chains := &fakeChainLookup{ok: true, cfg: domain.ChainConfig{AllocatorID: domain.BigIntFromInt64(99)}}
	e := New(&fakeIndexerClient{details: newDetails(0, 100)}, chains, &fakeCompactStore{})
	_, err := e.Check(context.Background(), "0xallocator", "0xsponsor", domain.BigIntFromInt64(1), domain.BigIntFromInt64(2), domain.BigIntFromInt64(3))

	var balErr *domain.BalanceError
	if !errors.As(err, &balErr) || balErr.Kind != domain.BalanceWrongAllocator {
		t.Fatalf("err = %v, want BalanceError{Kind: BalanceWrongAllocator}", err)
	}
}

func TestCheckComputesAllocatableNetOfPendingDeltas(t *testing.T) {
	chains := &fakeChainLookup{ok: true, cfg: domain.ChainConfig{AllocatorID: domain.BigIntFromInt64(3)}}
	e := New(&fakeIndexerClient{details: newDetails(0, 100, 30, 10)}, chains, &fakeCompactStore{outstanding: domain.BigIntFromInt64(5)})
	result, err := e.Check(context.Background(), "0xallocator", "0xsponsor", domain.BigIntFromInt64(1), domain.BigIntFromInt64(2), domain.BigIntFromInt64(3))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if result.Allocatable.Cmp(domain.BigIntFromInt64(60)) != 0 {
		t.Errorf("Allocatable = %s, want 60", result.Allocatable.String())
	}
	if result.Capacity().Cmp(domain.BigIntFromInt64(55)) != 0 {
		t.Errorf("Capacity = %s, want 55", result.Capacity().String())
	}
}

func TestCheckClampsNegativeAllocatableToZero(t *testing.T) {
	chains := &fakeChainLookup{ok: true, cfg: domain.ChainConfig{AllocatorID: domain.BigIntFromInt64(3)}}
	e := New(&fakeIndexerClient{details: newDetails(0, 10, 50)}, chains, &fakeCompactStore{outstanding: domain.BigIntFromInt64(0)})
	result, err := e.Check(context.Background(), "0xallocator", "0xsponsor", domain.BigIntFromInt64(1), domain.BigIntFromInt64(2), domain.BigIntFromInt64(3))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if result.Allocatable.Sign() != 0 {
		t.Errorf("Allocatable = %s, want clamped to 0", result.Allocatable.String())
	}
}

func TestCheckWrapsIndexerFailure(t *testing.T) {
	e := New(&fakeIndexerClient{err: errors.New("boom")}, &fakeChainLookup{}, &fakeCompactStore{})
	_, err := e.Check(context.Background(), "0xallocator", "0xsponsor", domain.BigIntFromInt64(1), domain.BigIntFromInt64(2), domain.BigIntFromInt64(3))

	var idxErr *domain.IndexerErr
	if !errors.As(err, &idxErr) {
		t.Fatalf("err = %v, want *domain.IndexerErr", err)
	}
}

func TestCheckAllRunsEveryLookupConcurrently(t *testing.T) {
	e := New(&fakeIndexerClient{details: newDetails(0, 100)}, echoChainLookup{}, &fakeCompactStore{outstanding: domain.BigIntFromInt64(0)})
	lookups := []Lookup{
		{ChainID: domain.BigIntFromInt64(1), LockID: domain.BigIntFromInt64(1), AllocatorID: domain.BigIntFromInt64(1)},
		{ChainID: domain.BigIntFromInt64(2), LockID: domain.BigIntFromInt64(2), AllocatorID: domain.BigIntFromInt64(2)},
		{ChainID: domain.BigIntFromInt64(3), LockID: domain.BigIntFromInt64(3), AllocatorID: domain.BigIntFromInt64(3)},
	}
	results, err := e.CheckAll(context.Background(), "0xallocator", "0xsponsor", lookups)
	if err != nil {
		t.Fatalf("CheckAll: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	for i, r := range results {
		if r.LockID.Cmp(lookups[i].LockID) != 0 {
			t.Errorf("results[%d].LockID = %s, want %s", i, r.LockID.String(), lookups[i].LockID.String())
		}
	}
}

func TestCheckAllPropagatesFirstFailure(t *testing.T) {
	e := New(&fakeIndexerClient{details: &indexer.CompactDetails{}}, &fakeChainLookup{}, &fakeCompactStore{})
	lookups := []Lookup{
		{ChainID: domain.BigIntFromInt64(1), LockID: domain.BigIntFromInt64(1), AllocatorID: domain.BigIntFromInt64(1)},
	}
	_, err := e.CheckAll(context.Background(), "0xallocator", "0xsponsor", lookups)
	if err == nil {
		t.Fatal("CheckAll: want error when a lookup's lock is missing")
	}
}
