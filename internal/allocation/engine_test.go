package allocation

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"testing"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/allocatorhq/compactd/internal/balance"
	"github.com/allocatorhq/compactd/internal/crypto"
	"github.com/allocatorhq/compactd/internal/domain"
	"github.com/allocatorhq/compactd/internal/indexer"
	"github.com/allocatorhq/compactd/internal/nonce"
	"github.com/allocatorhq/compactd/internal/validator"
)

const testVerifyingContract = "0x00000000000000171ede64904551eeDF3C6C9788"

type fakeEngineNonceStore struct {
	consumed map[string]bool
}

func newFakeEngineNonceStore() *fakeEngineNonceStore {
	return &fakeEngineNonceStore{consumed: make(map[string]bool)}
}

func engineNonceKey(chainID *domain.BigInt, sponsor string, high, low *domain.BigInt) string {
	return chainID.String() + "|" + sponsor + "|" + high.String() + "|" + low.String()
}

func (f *fakeEngineNonceStore) Insert(ctx context.Context, n domain.ConsumedNonce) error {
	k := engineNonceKey(n.ChainID, n.Sponsor, n.NonceHigh, n.NonceLow)
	if f.consumed[k] {
		return &domain.NonceError{Kind: domain.NonceReplay, Nonce: n.Nonce.Hex()}
	}
	f.consumed[k] = true
	return nil
}

func (f *fakeEngineNonceStore) IsConsumed(ctx context.Context, chainID *domain.BigInt, sponsor string, high, low *domain.BigInt) (bool, error) {
	return f.consumed[engineNonceKey(chainID, sponsor, high, low)], nil
}

type fakeEngineIndexerClient struct {
	balanceAmount int64
}

func (f *fakeEngineIndexerClient) GetCompactDetails(ctx context.Context, allocator, sponsor string, lockID *domain.BigInt, chainID *domain.BigInt) (*indexer.CompactDetails, error) {
	return &indexer.CompactDetails{
		ResourceLock: &indexer.ResourceLock{Balance: domain.BigIntFromInt64(f.balanceAmount)},
	}, nil
}

type fakeEngineChainLookup struct{}

// Get reports allocatorId 0 for every chain, matching the test lockTag
// 0x…01, whose (lockTag >> 4) & (2^92-1) is 0.
func (fakeEngineChainLookup) Get(chainID *domain.BigInt) (domain.ChainConfig, bool) {
	return domain.ChainConfig{AllocatorID: domain.BigIntFromInt64(0)}, true
}

type fakeEngineCompactStore struct {
	inserted []domain.NewCompact
}

func (f *fakeEngineCompactStore) Insert(ctx context.Context, nc domain.NewCompact) error {
	for _, prev := range f.inserted {
		if prev.ConsumedNonce.ChainID.Cmp(nc.ConsumedNonce.ChainID) == 0 &&
			prev.ConsumedNonce.Sponsor == nc.ConsumedNonce.Sponsor &&
			prev.ConsumedNonce.NonceHigh.Cmp(nc.ConsumedNonce.NonceHigh) == 0 &&
			prev.ConsumedNonce.NonceLow.Cmp(nc.ConsumedNonce.NonceLow) == 0 {
			return &domain.NonceError{Kind: domain.NonceReplay, Nonce: nc.ConsumedNonce.Nonce.Hex()}
		}
	}
	f.inserted = append(f.inserted, nc)
	return nil
}
func (f *fakeEngineCompactStore) ListBySponsor(ctx context.Context, sponsor string, opts domain.ListOpts) ([]domain.Compact, error) {
	return nil, nil
}
func (f *fakeEngineCompactStore) FindByChainAndClaimHash(ctx context.Context, chainID *domain.BigInt, claimHash string) (domain.Compact, error) {
	return domain.Compact{}, nil
}
func (f *fakeEngineCompactStore) SumOutstanding(ctx context.Context, sponsor string, chainID, lockID *domain.BigInt, now time.Time, settledClaimHashes []string) (*domain.BigInt, error) {
	return domain.BigIntFromInt64(0), nil
}
func (f *fakeEngineCompactStore) ListRetiredBefore(ctx context.Context, cutoff time.Time, opts domain.ListOpts) ([]domain.Compact, error) {
	return nil, nil
}

type fakeEngineLockManager struct{}

func (fakeEngineLockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	return func() {}, nil
}

func newSubmission(sponsorAddr string, fragment uint64, now time.Time) Submission {
	sponsorInt, _ := domain.ParseBigInt(sponsorAddr)
	nonceVal := domain.ComposeNonce(sponsorInt, fragment)
	return Submission{
		ChainID: domain.BigIntFromInt64(1),
		Compact: domain.Compact{
			Variant: domain.VariantSingle,
			Sponsor: sponsorAddr,
			Nonce:   nonceVal,
			Expires: now.Add(time.Hour),
		},
		Elements: []domain.Element{
			{
				Arbiter: "0x2222222222222222222222222222222222222222",
				ChainID: domain.BigIntFromInt64(1),
				Commitments: []domain.Commitment{
					{
						LockTag: "0x000000000000000000000001",
						Token:   "0x3333333333333333333333333333333333333333",
						Amount:  domain.BigIntFromInt64(100),
					},
				},
			},
		},
	}
}

func newTestEngine(t *testing.T, balanceAmount int64, store domain.CompactStore) (*Engine, *crypto.Signer, string) {
	t.Helper()

	allocatorKey, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	allocatorHex := "0x" + hex.EncodeToString(ethcrypto.FromECDSA(allocatorKey))
	signer, err := crypto.NewSigner(allocatorHex, "", true)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	nonceSvc := nonce.New(newFakeEngineNonceStore(), nil)
	balanceEngine := balance.New(&fakeEngineIndexerClient{balanceAmount: balanceAmount}, fakeEngineChainLookup{}, store)

	eng := New(Config{
		Validator:        validator.New(),
		HashBuilder:      crypto.NewHashBuilder(testVerifyingContract),
		NonceService:     nonceSvc,
		Balance:          balanceEngine,
		Signer:           signer,
		Store:            store,
		Locks:            fakeEngineLockManager{},
		Registry:         nil,
		Audit:            nil,
		Logger:           slog.Default(),
		AllocatorAddress: "0xallocator",
	})
	return eng, signer, allocatorHex
}

func signSubmission(t *testing.T, s *Submission, sponsorKeyHex string) {
	t.Helper()
	hb := crypto.NewHashBuilder(testVerifyingContract)
	claimHash, err := hb.ClaimHashSingle(s.Compact, s.Elements[0], s.Elements[0].Commitments[0])
	if err != nil {
		t.Fatalf("ClaimHashSingle: %v", err)
	}
	digest, err := hb.Digest(s.ChainID.Int(), claimHash)
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	keyBytes, err := hex.DecodeString(sponsorKeyHex[2:])
	if err != nil {
		t.Fatalf("decode sponsor key: %v", err)
	}
	ecdsaKey, err := ethcrypto.ToECDSA(keyBytes)
	if err != nil {
		t.Fatalf("ToECDSA: %v", err)
	}
	full, err := ethcrypto.Sign(digest, ecdsaKey)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	compact, err := crypto.ToCompactSignature(full)
	if err != nil {
		t.Fatalf("ToCompactSignature: %v", err)
	}
	s.SponsorSignature = compact
}

func newSponsor(t *testing.T) (addr string, keyHex string) {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return ethcrypto.PubkeyToAddress(key.PublicKey).Hex(), "0x" + hex.EncodeToString(ethcrypto.FromECDSA(key))
}

func TestSubmitSignsAndPersistsAWellFormedSubmission(t *testing.T) {
	now := time.Now()
	sponsorAddr, sponsorKeyHex := newSponsor(t)
	store := &fakeEngineCompactStore{}
	eng, signer, _ := newTestEngine(t, 1000, store)

	submission := newSubmission(sponsorAddr, 0, now)
	signSubmission(t, &submission, sponsorKeyHex)

	result, err := eng.Submit(context.Background(), submission)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.ClaimHash == "" {
		t.Error("expected a non-empty claim hash")
	}
	if len(result.Signature) != 64 {
		t.Errorf("Signature length = %d, want 64 (EIP-2098 compact)", len(result.Signature))
	}
	recovered, err := crypto.RecoverSponsor(result.Digest, result.Signature)
	if err != nil {
		t.Fatalf("RecoverSponsor on the allocator signature: %v", err)
	}
	if recovered != signer.Address() {
		t.Errorf("allocator signature recovers to %s, want %s", recovered.Hex(), signer.Address().Hex())
	}
	if len(store.inserted) != 1 {
		t.Fatalf("len(store.inserted) = %d, want 1", len(store.inserted))
	}
}

func TestSubmitRejectsInsufficientBalance(t *testing.T) {
	now := time.Now()
	sponsorAddr, sponsorKeyHex := newSponsor(t)
	store := &fakeEngineCompactStore{}
	eng, _, _ := newTestEngine(t, 10, store)

	submission := newSubmission(sponsorAddr, 0, now)
	signSubmission(t, &submission, sponsorKeyHex)

	_, err := eng.Submit(context.Background(), submission)
	var balErr *domain.BalanceError
	if !errors.As(err, &balErr) || balErr.Kind != domain.BalanceInsufficient {
		t.Fatalf("err = %v, want BalanceError{Kind: BalanceInsufficient}", err)
	}
}

func TestSubmitRejectsBadSponsorSignature(t *testing.T) {
	now := time.Now()
	sponsorAddr, _ := newSponsor(t)
	_, wrongKeyHex := newSponsor(t)
	store := &fakeEngineCompactStore{}
	eng, _, _ := newTestEngine(t, 1000, store)

	submission := newSubmission(sponsorAddr, 0, now)
	signSubmission(t, &submission, wrongKeyHex)

	_, err := eng.Submit(context.Background(), submission)
	var authErr *domain.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("err = %v, want *domain.AuthError", err)
	}
}

func TestSubmitRejectsReplayedNonce(t *testing.T) {
	now := time.Now()
	sponsorAddr, sponsorKeyHex := newSponsor(t)
	store := &fakeEngineCompactStore{}
	eng, _, _ := newTestEngine(t, 1000, store)

	first := newSubmission(sponsorAddr, 0, now)
	signSubmission(t, &first, sponsorKeyHex)
	if _, err := eng.Submit(context.Background(), first); err != nil {
		t.Fatalf("first Submit: %v", err)
	}

	second := newSubmission(sponsorAddr, 0, now)
	signSubmission(t, &second, sponsorKeyHex)
	_, err := eng.Submit(context.Background(), second)

	var nonceErr *domain.NonceError
	if !errors.As(err, &nonceErr) || nonceErr.Kind != domain.NonceReplay {
		t.Fatalf("err = %v, want NonceError{Kind: NonceReplay}", err)
	}
}
