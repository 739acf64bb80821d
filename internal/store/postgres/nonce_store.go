package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/allocatorhq/compactd/internal/domain"
)

// NonceStore implements domain.NonceStore against the consumed_nonces
// table. It is consulted outside the AllocationEngine's critical section
// for fast replay rejection; the authoritative check happens inside the
// same transaction as CompactStore.Insert.
type NonceStore struct {
	pool *pgxpool.Pool
}

// NewNonceStore creates a NonceStore backed by the given connection pool.
func NewNonceStore(pool *pgxpool.Pool) *NonceStore {
	return &NonceStore{pool: pool}
}

// Insert records a nonce as consumed. A duplicate (chainId, sponsor,
// nonceHigh, nonceLow) tuple is reported as a replay, not a generic store
// error.
func (s *NonceStore) Insert(ctx context.Context, n domain.ConsumedNonce) error {
	const query = `
		INSERT INTO consumed_nonces (chain_id, sponsor, nonce_high, nonce_low)
		VALUES ($1, $2, $3, $4)`
	_, err := s.pool.Exec(ctx, query, n.ChainID.String(), domain.NormalizeAddress(n.Sponsor), n.NonceHigh.String(), n.NonceLow.String())
	if err != nil {
		if isUniqueViolation(err) {
			return &domain.NonceError{Kind: domain.NonceReplay, Nonce: n.Nonce.Hex()}
		}
		return fmt.Errorf("postgres: insert consumed nonce: %w", err)
	}
	return nil
}

// IsConsumed reports whether the given nonce fragment has already been
// recorded for (chainId, sponsor).
func (s *NonceStore) IsConsumed(ctx context.Context, chainID *domain.BigInt, sponsor string, nonceHigh, nonceLow *domain.BigInt) (bool, error) {
	const query = `
		SELECT 1 FROM consumed_nonces
		WHERE chain_id = $1 AND sponsor = $2 AND nonce_high = $3 AND nonce_low = $4`
	var one int
	err := s.pool.QueryRow(ctx, query, chainID.String(), domain.NormalizeAddress(sponsor), nonceHigh.String(), nonceLow.String()).Scan(&one)
	if err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("postgres: check consumed nonce: %w", err)
	}
	return true, nil
}
