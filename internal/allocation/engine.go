// Package allocation implements the AllocationEngine: the critical
// section that revalidates balance, nonce, and sponsor authorization for
// a submission under a per-sponsor exclusive region, then persists the
// new compact and issues the allocator's signature.
package allocation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/allocatorhq/compactd/internal/balance"
	"github.com/allocatorhq/compactd/internal/crypto"
	"github.com/allocatorhq/compactd/internal/domain"
	"github.com/allocatorhq/compactd/internal/indexer"
	"github.com/allocatorhq/compactd/internal/nonce"
	"github.com/allocatorhq/compactd/internal/validator"
)

// lockTTL bounds how long a per-sponsor exclusive region may be held; the
// indexer timeout (5s, see SPEC_FULL.md §5) is well under this.
const lockTTL = 15 * time.Second

// RegistrationLookup is the narrow slice of indexer.Client the sponsor
// on-chain-registration fallback depends on.
type RegistrationLookup interface {
	GetRegisteredCompact(ctx context.Context, allocator, sponsor, claimHash string, chainID *domain.BigInt) (*indexer.RegisteredCompact, error)
}

// Notifier is the narrow slice of notify.Notifier the AllocationEngine uses
// to alert operators on the forced-withdrawal, replay, indexer, and
// rejection paths of Submit.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Submission is a validated request to allocate one or more commitments
// against a sponsor's resource locks.
type Submission struct {
	ChainID          *domain.BigInt // notarization chain
	Compact          domain.Compact
	Elements         []domain.Element
	SponsorSignature []byte // may be empty if relying on on-chain registration
}

// Result is the outcome of a successful Submit.
type Result struct {
	ClaimHash string
	Digest    []byte
	Signature []byte
	Nonce     *domain.BigInt
}

// Engine is the AllocationEngine.
type Engine struct {
	validator   *validator.Validator
	hashBuilder *crypto.HashBuilder
	nonceSvc    *nonce.Service
	balance     *balance.Engine
	signer      *crypto.Signer
	store       domain.CompactStore
	locks       domain.LockManager
	registry    RegistrationLookup
	audit       domain.AuditStore
	notifier    Notifier
	logger      *slog.Logger

	allocatorAddress string
}

// Config bundles Engine's dependencies.
type Config struct {
	Validator        *validator.Validator
	HashBuilder      *crypto.HashBuilder
	NonceService     *nonce.Service
	Balance          *balance.Engine
	Signer           *crypto.Signer
	Store            domain.CompactStore
	Locks            domain.LockManager
	Registry         RegistrationLookup
	Audit            domain.AuditStore
	Notifier         Notifier
	Logger           *slog.Logger
	AllocatorAddress string
}

// New returns an Engine from cfg.
func New(cfg Config) *Engine {
	return &Engine{
		validator:        cfg.Validator,
		hashBuilder:      cfg.HashBuilder,
		nonceSvc:         cfg.NonceService,
		balance:          cfg.Balance,
		signer:           cfg.Signer,
		store:            cfg.Store,
		locks:            cfg.Locks,
		registry:         cfg.Registry,
		audit:            cfg.Audit,
		notifier:         cfg.Notifier,
		logger:           cfg.Logger.With(slog.String("component", "allocation")),
		allocatorAddress: cfg.AllocatorAddress,
	}
}

// Submit runs the full critical section described in SPEC_FULL.md §4.7.
func (e *Engine) Submit(ctx context.Context, s Submission) (*Result, error) {
	if err := e.validator.Validate(validator.Submission{
		ChainID:  s.ChainID,
		Compact:  s.Compact,
		Elements: s.Elements,
	}); err != nil {
		return nil, err
	}

	sponsor := domain.NormalizeAddress(s.Compact.Sponsor)
	unlock, err := e.locks.Acquire(ctx, sponsor, lockTTL)
	if err != nil {
		return nil, err
	}
	defer unlock()

	lookups, requested, err := lockLookups(s.Elements)
	if err != nil {
		return nil, err
	}

	results, err := e.balance.CheckAll(ctx, e.allocatorAddress, sponsor, lookups)
	if err != nil {
		e.notifyFailure(ctx, sponsor, err)
		return nil, err
	}
	for _, r := range results {
		need := requested[r.LockID.String()]
		if r.Capacity().Cmp(need) < 0 {
			return nil, &domain.BalanceError{
				Kind:   domain.BalanceInsufficient,
				LockID: r.LockID,
				Have:   r.Capacity(),
				Need:   need,
			}
		}
	}

	if err := e.nonceSvc.Validate(ctx, s.Compact.Nonce, sponsor, s.ChainID); err != nil {
		e.notifyFailure(ctx, sponsor, err)
		return nil, err
	}

	claimHash, err := e.computeClaimHash(s)
	if err != nil {
		return nil, err
	}

	if err := e.authorizeSponsor(ctx, s, claimHash); err != nil {
		e.logAudit(ctx, "AllocationRejected", map[string]any{"sponsor": sponsor, "reason": err.Error()})
		e.notify(ctx, "AllocationRejected", "Allocation rejected", fmt.Sprintf("sponsor=%s reason=%s", sponsor, err.Error()))
		return nil, err
	}

	digest, err := e.hashBuilder.Digest(s.ChainID.Int(), claimHash)
	if err != nil {
		return nil, err
	}

	signature, err := e.signer.Sign(digest)
	if err != nil {
		return nil, err
	}

	compact := s.Compact
	compact.ChainID = s.ChainID
	compact.ClaimHash = hexString(claimHash)
	compact.Signature = hexString(signature)

	high, low := domain.SplitNonce(s.Compact.Nonce)
	if err := e.store.Insert(ctx, domain.NewCompact{
		Compact:  compact,
		Elements: s.Elements,
		ConsumedNonce: domain.ConsumedNonce{
			ChainID:   s.ChainID,
			Sponsor:   sponsor,
			Nonce:     s.Compact.Nonce,
			NonceHigh: high,
			NonceLow:  low,
		},
	}); err != nil {
		e.notifyFailure(ctx, sponsor, err)
		return nil, err
	}

	return &Result{
		ClaimHash: compact.ClaimHash,
		Digest:    digest,
		Signature: signature,
		Nonce:     s.Compact.Nonce,
	}, nil
}

// computeClaimHash dispatches to the right HashBuilder method for the
// submission's variant.
func (e *Engine) computeClaimHash(s Submission) ([]byte, error) {
	switch s.Compact.Variant {
	case domain.VariantSingle:
		return e.hashBuilder.ClaimHashSingle(s.Compact, s.Elements[0], s.Elements[0].Commitments[0])
	case domain.VariantBatch:
		return e.hashBuilder.ClaimHashBatch(s.Compact, s.Elements[0], s.Elements[0].Commitments)
	default:
		return e.hashBuilder.ClaimHashMultichain(s.Compact, s.Elements)
	}
}

// authorizeSponsor implements SPEC_FULL.md §4.8: either the sponsor
// signature recovers correctly, or an on-chain registration covers this
// claim hash.
func (e *Engine) authorizeSponsor(ctx context.Context, s Submission, claimHash []byte) error {
	sponsor := domain.NormalizeAddress(s.Compact.Sponsor)

	if len(s.SponsorSignature) > 0 {
		digest, err := e.hashBuilder.Digest(s.ChainID.Int(), claimHash)
		if err != nil {
			return err
		}
		recovered, err := crypto.RecoverSponsor(digest, s.SponsorSignature)
		if err == nil && domain.NormalizeAddress(recovered.Hex()) == sponsor {
			return nil
		}
	}

	if e.registry != nil {
		registered, err := e.registry.GetRegisteredCompact(ctx, e.allocatorAddress, sponsor, hexString(claimHash), s.ChainID)
		if err != nil {
			return &domain.IndexerErr{Op: "GetRegisteredCompact", Err: err}
		}
		if registered != nil &&
			domain.NormalizeAddress(registered.Sponsor) == sponsor &&
			!registered.Expires.Before(s.Compact.Expires) {
			return nil
		}
	}

	return &domain.AuthError{Sponsor: sponsor, Reason: "signature does not recover to sponsor and no on-chain registration found"}
}

func (e *Engine) logAudit(ctx context.Context, event string, detail map[string]any) {
	if e.audit == nil {
		return
	}
	_ = e.audit.Log(ctx, event, detail)
}

// notifyFailure inspects err for the failure modes operators configure
// alerts for (forced withdrawal, nonce replay, indexer errors) and fires the
// matching notification.
func (e *Engine) notifyFailure(ctx context.Context, sponsor string, err error) {
	var balErr *domain.BalanceError
	var nonceErr *domain.NonceError
	var idxErr *domain.IndexerErr

	switch {
	case errors.As(err, &balErr) && balErr.Kind == domain.BalanceForcedWithdrawal:
		e.notify(ctx, "ForcedWithdrawal", "Resource lock under forced withdrawal",
			fmt.Sprintf("sponsor=%s lockId=%s", sponsor, balErr.LockID.String()))
	case errors.As(err, &nonceErr) && nonceErr.Kind == domain.NonceReplay:
		e.notify(ctx, "ReplayAttempt", "Nonce replay attempt",
			fmt.Sprintf("sponsor=%s nonce=%s", sponsor, nonceErr.Nonce))
	case errors.As(err, &idxErr):
		e.notify(ctx, "IndexerError", "Indexer request failed",
			fmt.Sprintf("sponsor=%s op=%s err=%v", sponsor, idxErr.Op, idxErr.Err))
	}
}

// notify delivers a single notification, logging (never failing the
// request) if delivery itself errors.
func (e *Engine) notify(ctx context.Context, event, title, message string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, event, title, message); err != nil {
		e.logger.WarnContext(ctx, "notify failed", slog.String("event", event), slog.String("error", err.Error()))
	}
}

// lockLookups derives the distinct (chainId, lockId, allocatorId) triples
// referenced by a submission's commitments, and the total amount requested
// per lockId (commitments for the same lock across elements are summed).
func lockLookups(elements []domain.Element) ([]balance.Lookup, map[string]*domain.BigInt, error) {
	seen := make(map[string]balance.Lookup)
	requested := make(map[string]*domain.BigInt)
	var order []string

	for _, el := range elements {
		for _, c := range el.Commitments {
			lockID, err := c.LockID()
			if err != nil {
				return nil, nil, err
			}
			allocatorID, err := c.AllocatorID()
			if err != nil {
				return nil, nil, err
			}
			key := lockID.String()
			if _, ok := seen[key]; !ok {
				seen[key] = balance.Lookup{ChainID: el.ChainID, LockID: lockID, AllocatorID: allocatorID}
				requested[key] = domain.BigIntFromInt64(0)
				order = append(order, key)
			}
			requested[key] = requested[key].Add(c.Amount)
		}
	}

	lookups := make([]balance.Lookup, 0, len(order))
	for _, key := range order {
		lookups = append(lookups, seen[key])
	}
	return lookups, requested, nil
}

func hexString(b []byte) string {
	return "0x" + common.Bytes2Hex(b)
}
