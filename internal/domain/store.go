package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// NewCompact is the atomic-insert payload the AllocationEngine hands the
// store once a submission has cleared validation, balance checks, and
// signing. It carries the full compact tree (elements + commitments) plus
// the nonce to consume, all in one transaction.
type NewCompact struct {
	Compact      Compact
	Elements     []Element
	ConsumedNonce ConsumedNonce
}

// CompactStore provides transactional CRUD over compacts, their elements,
// and commitments, keyed at the compact level.
type CompactStore interface {
	// Insert persists a new compact tree and its consumed-nonce row in a
	// single transaction. A (chainId, claimHash) collision returns a
	// *StoreError wrapping ErrDuplicateCompact.
	Insert(ctx context.Context, nc NewCompact) error

	// ListBySponsor returns every compact owned by sponsor, most recent
	// first.
	ListBySponsor(ctx context.Context, sponsor string, opts ListOpts) ([]Compact, error)

	// FindByChainAndClaimHash looks up a single compact by its idempotency
	// key.
	FindByChainAndClaimHash(ctx context.Context, chainID *BigInt, claimHash string) (Compact, error)

	// SumOutstanding sums commitment amounts for (sponsor, chainId, lockId)
	// whose parent compact has not expired and whose claimHash is not in
	// settledClaimHashes.
	SumOutstanding(ctx context.Context, sponsor string, chainID, lockID *BigInt, now time.Time, settledClaimHashes []string) (*BigInt, error)

	// ListRetiredBefore returns compacts that expired before cutoff, for
	// archival export. It never deletes rows.
	ListRetiredBefore(ctx context.Context, cutoff time.Time, opts ListOpts) ([]Compact, error)
}

// NonceStore persists the consumed-nonce ledger independently of the
// compact tree — a ConsumedNonce row's lifetime is forever.
type NonceStore interface {
	// Insert records a nonce as consumed. A duplicate key returns a
	// *NonceError{Kind: NonceReplay}.
	Insert(ctx context.Context, n ConsumedNonce) error

	// IsConsumed reports whether (chainId, sponsor, nonceHigh, nonceLow) has
	// already been recorded.
	IsConsumed(ctx context.Context, chainID *BigInt, sponsor string, nonceHigh, nonceLow *BigInt) (bool, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
