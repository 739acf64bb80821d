// Package nonce implements the allocator's nonce lifecycle: suggestion of
// a free fragment, validation against both the local store and the
// indexer's on-chain view, and atomic consumption.
package nonce

import (
	"context"
	"fmt"

	"github.com/allocatorhq/compactd/internal/domain"
)

// maxScanAttempts bounds the suggest() fragment scan before giving up with
// NonceError::Exhausted.
const maxScanAttempts = 1024

// OnChainChecker reports whether the indexer considers a nonce already
// consumed on-chain. The AllocationEngine's IndexerClient satisfies this
// narrow interface.
type OnChainChecker interface {
	IsNonceConsumed(ctx context.Context, chainID *domain.BigInt, sponsor string, nonce *domain.BigInt) (bool, error)
}

// Service implements suggest/validate/consume against a local NonceStore
// and an optional on-chain checker.
type Service struct {
	store   domain.NonceStore
	indexer OnChainChecker
}

// New returns a Service backed by store. indexer may be nil, in which case
// validate/suggest only consult the local store (used in tests).
func New(store domain.NonceStore, indexer OnChainChecker) *Service {
	return &Service{store: store, indexer: indexer}
}

// Suggest picks the smallest fragment f >= 0 such that the composed nonce
// (sponsor<<96 | f) is neither locally consumed nor reported consumed
// on-chain. It fails with NonceError::Exhausted after maxScanAttempts.
func (s *Service) Suggest(ctx context.Context, sponsor string, chainID *domain.BigInt) (*domain.BigInt, error) {
	sponsorInt, err := domain.ParseBigInt(sponsor)
	if err != nil {
		return nil, fmt.Errorf("nonce: invalid sponsor address: %w", err)
	}
	for f := uint64(0); f < maxScanAttempts; f++ {
		candidate := domain.ComposeNonce(sponsorInt, f)
		if err := s.Validate(ctx, candidate, sponsor, chainID); err == nil {
			return candidate, nil
		}
	}
	return nil, &domain.NonceError{Kind: domain.NonceExhausted}
}

// Validate confirms the nonce's high bytes equal sponsor, that it is not
// in the local consumed table, and that the indexer does not report it
// consumed on-chain.
func (s *Service) Validate(ctx context.Context, n *domain.BigInt, sponsor string, chainID *domain.BigInt) error {
	if domain.NonceSponsor(n) != domain.NormalizeAddress(sponsor) {
		return &domain.ValidationError{Field: "nonce", Reason: "high 20 bytes must equal the sponsor address"}
	}

	high, low := domain.SplitNonce(n)
	consumed, err := s.store.IsConsumed(ctx, chainID, domain.NormalizeAddress(sponsor), high, low)
	if err != nil {
		return fmt.Errorf("nonce: checking local consumption: %w", err)
	}
	if consumed {
		return &domain.NonceError{Kind: domain.NonceReplay, Nonce: n.Hex()}
	}

	if s.indexer != nil {
		onChainConsumed, err := s.indexer.IsNonceConsumed(ctx, chainID, sponsor, n)
		if err != nil {
			return &domain.IndexerErr{Op: "IsNonceConsumed", Err: err}
		}
		if onChainConsumed {
			return &domain.NonceError{Kind: domain.NonceReplay, Nonce: n.Hex()}
		}
	}
	return nil
}

// Consume atomically inserts the nonce into the consumed table. A
// duplicate insert surfaces as NonceError::Replay.
func (s *Service) Consume(ctx context.Context, n *domain.BigInt, sponsor string, chainID *domain.BigInt) error {
	high, low := domain.SplitNonce(n)
	record := domain.ConsumedNonce{
		ChainID:   chainID,
		Sponsor:   domain.NormalizeAddress(sponsor),
		Nonce:     n,
		NonceHigh: high,
		NonceLow:  low,
	}
	if err := s.store.Insert(ctx, record); err != nil {
		return err
	}
	return nil
}
