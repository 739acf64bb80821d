package crypto

import (
	"bytes"
	"math/big"
	"testing"
	"time"

	"github.com/allocatorhq/compactd/internal/domain"
)

const testVerifyingContract = "0x00000000000000171ede64904551eeDF3C6C9788"

func TestDomainSeparatorDeterministic(t *testing.T) {
	b := NewHashBuilder(testVerifyingContract)
	chainID := big.NewInt(1)

	d1, err := b.DomainSeparator(chainID)
	if err != nil {
		t.Fatalf("DomainSeparator: %v", err)
	}
	d2, err := b.DomainSeparator(chainID)
	if err != nil {
		t.Fatalf("DomainSeparator: %v", err)
	}
	if !bytes.Equal(d1, d2) {
		t.Error("DomainSeparator should be deterministic for the same chain id")
	}
	if len(d1) != 32 {
		t.Fatalf("DomainSeparator length = %d, want 32", len(d1))
	}

	other, err := b.DomainSeparator(big.NewInt(137))
	if err != nil {
		t.Fatalf("DomainSeparator: %v", err)
	}
	if bytes.Equal(d1, other) {
		t.Error("DomainSeparator should differ across chain ids")
	}
}

func TestDigestPrefixAndWidth(t *testing.T) {
	b := NewHashBuilder(testVerifyingContract)
	claimHash := Keccak256([]byte("claim"))

	digest, err := b.Digest(big.NewInt(1), claimHash)
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if len(digest) != 32 {
		t.Fatalf("Digest length = %d, want 32", len(digest))
	}

	if _, err := b.Digest(big.NewInt(1), []byte{0x01}); err == nil {
		t.Error("expected error for a malformed claim hash")
	}
}

func newTestCommitment(lockTag string, token string, amount int64) domain.Commitment {
	return domain.Commitment{
		LockTag: lockTag,
		Token:   token,
		Amount:  domain.BigIntFromInt64(amount),
	}
}

func TestClaimHashSingleDeterministic(t *testing.T) {
	b := NewHashBuilder(testVerifyingContract)

	compact := domain.Compact{
		Variant: domain.VariantSingle,
		Sponsor: "0x1111111111111111111111111111111111111111",
		Nonce:   domain.BigIntFromInt64(1),
		Expires: time.Unix(2000000000, 0),
	}
	el := domain.Element{Arbiter: "0x2222222222222222222222222222222222222222"}
	commitment := newTestCommitment("0x000000000000000000000001", "0x3333333333333333333333333333333333333333", 1000)

	h1, err := b.ClaimHashSingle(compact, el, commitment)
	if err != nil {
		t.Fatalf("ClaimHashSingle: %v", err)
	}
	h2, err := b.ClaimHashSingle(compact, el, commitment)
	if err != nil {
		t.Fatalf("ClaimHashSingle: %v", err)
	}
	if !bytes.Equal(h1, h2) {
		t.Error("ClaimHashSingle should be deterministic for identical inputs")
	}

	commitment.Amount = domain.BigIntFromInt64(2000)
	h3, err := b.ClaimHashSingle(compact, el, commitment)
	if err != nil {
		t.Fatalf("ClaimHashSingle: %v", err)
	}
	if bytes.Equal(h1, h3) {
		t.Error("ClaimHashSingle should change when the amount changes")
	}
}

func TestClaimHashBatchOrderingIsCanonical(t *testing.T) {
	b := NewHashBuilder(testVerifyingContract)

	compact := domain.Compact{
		Variant: domain.VariantBatch,
		Sponsor: "0x1111111111111111111111111111111111111111",
		Nonce:   domain.BigIntFromInt64(1),
		Expires: time.Unix(2000000000, 0),
	}
	el := domain.Element{Arbiter: "0x2222222222222222222222222222222222222222"}

	c1 := newTestCommitment("0x000000000000000000000001", "0x3333333333333333333333333333333333333333", 100)
	c2 := newTestCommitment("0x000000000000000000000002", "0x4444444444444444444444444444444444444444", 200)

	ascending, err := b.ClaimHashBatch(compact, el, []domain.Commitment{c1, c2})
	if err != nil {
		t.Fatalf("ClaimHashBatch (ascending): %v", err)
	}
	descending, err := b.ClaimHashBatch(compact, el, []domain.Commitment{c2, c1})
	if err != nil {
		t.Fatalf("ClaimHashBatch (descending): %v", err)
	}
	if !bytes.Equal(ascending, descending) {
		t.Error("ClaimHashBatch must canonicalize commitment order by ascending lockId")
	}
}

func TestClaimHashBatchRejectsDuplicateLocks(t *testing.T) {
	b := NewHashBuilder(testVerifyingContract)
	compact := domain.Compact{
		Variant: domain.VariantBatch,
		Sponsor: "0x1111111111111111111111111111111111111111",
		Nonce:   domain.BigIntFromInt64(1),
		Expires: time.Unix(2000000000, 0),
	}
	el := domain.Element{Arbiter: "0x2222222222222222222222222222222222222222"}
	c := newTestCommitment("0x000000000000000000000001", "0x3333333333333333333333333333333333333333", 100)

	if _, err := b.ClaimHashBatch(compact, el, []domain.Commitment{c, c}); err == nil {
		t.Error("expected error for duplicate lock ids in the same batch")
	}
}
