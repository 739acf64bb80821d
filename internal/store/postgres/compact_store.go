package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/allocatorhq/compactd/internal/domain"
)

// CompactStore implements domain.CompactStore using PostgreSQL. All
// 256-bit fields (chainId, nonce, amount, lockId) are persisted as NUMERIC
// columns populated from (*big.Int).String(), never as bigint/int32.
type CompactStore struct {
	pool *pgxpool.Pool
}

// NewCompactStore creates a CompactStore backed by the given connection pool.
func NewCompactStore(pool *pgxpool.Pool) *CompactStore {
	return &CompactStore{pool: pool}
}

// Insert persists a new compact tree and its consumed-nonce row in a
// single transaction.
func (s *CompactStore) Insert(ctx context.Context, nc domain.NewCompact) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin insert compact: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	c := nc.Compact
	var compactID int64
	const insertCompact = `
		INSERT INTO compacts (variant, chain_id, claim_hash, sponsor, nonce, expires, witness_type_string, witness_hash, signature)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`
	err = tx.QueryRow(ctx, insertCompact,
		int(c.Variant), c.ChainID.String(), c.ClaimHash, c.Sponsor, c.Nonce.String(), c.Expires,
		c.WitnessTypeString, c.WitnessHash, c.Signature,
	).Scan(&compactID)
	if err != nil {
		if isUniqueViolation(err) {
			return &domain.StoreError{Op: "Insert", Detail: fmt.Sprintf("compact (chainId=%s, claimHash=%s) already exists", c.ChainID.String(), c.ClaimHash)}
		}
		return fmt.Errorf("postgres: insert compact: %w", err)
	}

	const insertElement = `
		INSERT INTO elements (compact_id, element_index, arbiter, chain_id, mandate_hash)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	const insertCommitment = `
		INSERT INTO commitments (element_id, lock_tag, token, amount, lock_id)
		VALUES ($1, $2, $3, $4, $5)`

	for _, el := range nc.Elements {
		var elementID int64
		if err := tx.QueryRow(ctx, insertElement, compactID, el.ElementIndex, el.Arbiter, el.ChainID.String(), el.MandateHash).Scan(&elementID); err != nil {
			return fmt.Errorf("postgres: insert element: %w", err)
		}
		for _, comm := range el.Commitments {
			lockID, err := comm.LockID()
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, insertCommitment, elementID, comm.LockTag, comm.Token, comm.Amount.String(), lockID.String()); err != nil {
				return fmt.Errorf("postgres: insert commitment: %w", err)
			}
		}
	}

	n := nc.ConsumedNonce
	const insertNonce = `
		INSERT INTO consumed_nonces (chain_id, sponsor, nonce_high, nonce_low)
		VALUES ($1, $2, $3, $4)`
	if _, err := tx.Exec(ctx, insertNonce, n.ChainID.String(), n.Sponsor, n.NonceHigh.String(), n.NonceLow.String()); err != nil {
		if isUniqueViolation(err) {
			return &domain.NonceError{Kind: domain.NonceReplay, Nonce: n.Nonce.Hex()}
		}
		return fmt.Errorf("postgres: insert consumed nonce: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit insert compact: %w", err)
	}
	return nil
}

// ListBySponsor returns every compact owned by sponsor, most recent first.
func (s *CompactStore) ListBySponsor(ctx context.Context, sponsor string, opts domain.ListOpts) ([]domain.Compact, error) {
	query := `SELECT id, variant, chain_id, claim_hash, sponsor, nonce, expires, witness_type_string, witness_hash, signature, created_at
		FROM compacts WHERE sponsor = $1`
	args := []any{domain.NormalizeAddress(sponsor)}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}
	query += " ORDER BY created_at DESC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list compacts by sponsor: %w", err)
	}
	defer rows.Close()

	var out []domain.Compact
	for rows.Next() {
		c, err := scanCompact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// FindByChainAndClaimHash looks up a single compact by its idempotency key.
func (s *CompactStore) FindByChainAndClaimHash(ctx context.Context, chainID *domain.BigInt, claimHash string) (domain.Compact, error) {
	const query = `SELECT id, variant, chain_id, claim_hash, sponsor, nonce, expires, witness_type_string, witness_hash, signature, created_at
		FROM compacts WHERE chain_id = $1 AND claim_hash = $2`
	row := s.pool.QueryRow(ctx, query, chainID.String(), claimHash)
	c, err := scanCompact(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Compact{}, domain.ErrNotFound
		}
		return domain.Compact{}, fmt.Errorf("postgres: find compact: %w", err)
	}
	return c, nil
}

// SumOutstanding sums commitment amounts for (sponsor, chainId, lockId)
// whose parent compact has not expired and whose claimHash is not in
// settledClaimHashes.
func (s *CompactStore) SumOutstanding(ctx context.Context, sponsor string, chainID, lockID *domain.BigInt, now time.Time, settledClaimHashes []string) (*domain.BigInt, error) {
	query := `
		SELECT COALESCE(SUM(comm.amount), 0)
		FROM commitments comm
		JOIN elements el ON el.id = comm.element_id
		JOIN compacts c ON c.id = el.compact_id
		WHERE c.sponsor = $1 AND el.chain_id = $2 AND comm.lock_id = $3 AND c.expires > $4`
	args := []any{domain.NormalizeAddress(sponsor), chainID.String(), lockID.String(), now}

	if len(settledClaimHashes) > 0 {
		query += " AND c.claim_hash != ALL($5)"
		args = append(args, settledClaimHashes)
	}

	var sumStr string
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&sumStr); err != nil {
		return nil, fmt.Errorf("postgres: sum outstanding: %w", err)
	}
	v, err := domain.ParseBigInt(sumStr)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse outstanding sum: %w", err)
	}
	return v, nil
}

// ListRetiredBefore returns compacts that expired before cutoff, for
// archival export. It never deletes rows.
func (s *CompactStore) ListRetiredBefore(ctx context.Context, cutoff time.Time, opts domain.ListOpts) ([]domain.Compact, error) {
	query := `SELECT id, variant, chain_id, claim_hash, sponsor, nonce, expires, witness_type_string, witness_hash, signature, created_at
		FROM compacts WHERE expires < $1 ORDER BY expires ASC`
	args := []any{cutoff}
	argIdx := 2
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list retired compacts: %w", err)
	}
	defer rows.Close()

	var out []domain.Compact
	for rows.Next() {
		c, err := scanCompact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// rowScanner abstracts over pgx.Row and pgx.Rows, both of which expose Scan.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCompact(row rowScanner) (domain.Compact, error) {
	var c domain.Compact
	var variant int
	var chainIDStr, nonceStr string

	if err := row.Scan(&c.ID, &variant, &chainIDStr, &c.ClaimHash, &c.Sponsor, &nonceStr, &c.Expires,
		&c.WitnessTypeString, &c.WitnessHash, &c.Signature, &c.CreatedAt); err != nil {
		return domain.Compact{}, err
	}

	chainID, err := domain.ParseBigInt(chainIDStr)
	if err != nil {
		return domain.Compact{}, fmt.Errorf("postgres: parse compact chain id: %w", err)
	}
	nonceVal, err := domain.ParseBigInt(nonceStr)
	if err != nil {
		return domain.Compact{}, fmt.Errorf("postgres: parse compact nonce: %w", err)
	}

	c.Variant = domain.CompactVariant(variant)
	c.ChainID = chainID
	c.Nonce = nonceVal
	return c, nil
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	if ok := asPgError(err, &pgErr); ok {
		return pgErr.SQLState() == "23505"
	}
	return false
}

func asPgError(err error, target *interface{ SQLState() string }) bool {
	type sqlStater interface{ SQLState() string }
	for err != nil {
		if e, ok := err.(sqlStater); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
