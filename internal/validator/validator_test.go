package validator

import (
	"errors"
	"testing"
	"time"

	"github.com/allocatorhq/compactd/internal/domain"
)

func validSubmission(now time.Time) Submission {
	return Submission{
		ChainID: domain.BigIntFromInt64(1),
		Compact: domain.Compact{
			Variant: domain.VariantSingle,
			Sponsor: "0x1111111111111111111111111111111111111111",
			Nonce:   domain.BigIntFromInt64(1),
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

func newTestValidator(now time.Time) *Validator {
	return &Validator{now: func() time.Time { return now }}
}

func TestValidatorAcceptsWellFormedSubmission(t *testing.T) {
	now := time.Unix(2000000000, 0)
	v := newTestValidator(now)
	if err := v.Validate(validSubmission(now)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidatorRejectsZeroChainID(t *testing.T) {
	now := time.Unix(2000000000, 0)
	v := newTestValidator(now)
	s := validSubmission(now)
	s.ChainID = domain.BigIntFromInt64(0)
	if err := v.Validate(s); err == nil {
		t.Fatal("expected error for a non-positive chain id")
	}
}

func TestValidatorRejectsMalformedSponsor(t *testing.T) {
	now := time.Unix(2000000000, 0)
	v := newTestValidator(now)
	s := validSubmission(now)
	s.Compact.Sponsor = "not-an-address"
	if err := v.Validate(s); err == nil {
		t.Fatal("expected error for a malformed sponsor address")
	}
}

func TestValidatorRejectsShortLockTag(t *testing.T) {
	now := time.Unix(2000000000, 0)
	v := newTestValidator(now)
	s := validSubmission(now)
	s.Elements[0].Commitments[0].LockTag = "0x01"
	if err := v.Validate(s); err == nil {
		t.Fatal("expected error for a lockTag that is not exactly 12 bytes")
	}
}

func TestValidatorRejectsMissingElements(t *testing.T) {
	now := time.Unix(2000000000, 0)
	v := newTestValidator(now)
	s := validSubmission(now)
	s.Elements = nil
	if err := v.Validate(s); err == nil {
		t.Fatal("expected error for zero elements")
	}
}

func TestValidatorExpirationWindow(t *testing.T) {
	now := time.Unix(2000000000, 0)
	v := newTestValidator(now)

	pastExpiry := validSubmission(now)
	pastExpiry.Compact.Expires = now.Add(-time.Minute)
	if err := v.Validate(pastExpiry); err == nil {
		t.Error("expected error for an expiry in the past")
	}

	tooFar := validSubmission(now)
	tooFar.Compact.Expires = now.Add(3 * time.Hour)
	if err := v.Validate(tooFar); err == nil {
		t.Error("expected error for an expiry beyond the two-hour window")
	}

	atBoundary := validSubmission(now)
	atBoundary.Compact.Expires = now.Add(2 * time.Hour)
	if err := v.Validate(atBoundary); err != nil {
		t.Errorf("expiry exactly at the two-hour boundary should be accepted: %v", err)
	}
}

func TestValidatorWitnessConsistency(t *testing.T) {
	now := time.Unix(2000000000, 0)
	v := newTestValidator(now)

	s := validSubmission(now)
	typeStr := "uint256 amount"
	s.Compact.WitnessTypeString = &typeStr
	// WitnessHash deliberately left nil: type present, hash absent.
	if err := v.Validate(s); err == nil {
		t.Fatal("expected error when witnessTypeString is set but witnessHash is not")
	}
}

func TestValidatorMultichainRequiresWitnessAndMembership(t *testing.T) {
	now := time.Unix(2000000000, 0)
	v := newTestValidator(now)

	s := validSubmission(now)
	s.Compact.Variant = domain.VariantMultichain
	if err := v.Validate(s); err == nil {
		t.Fatal("expected error: multichain compact requires a witnessTypeString")
	}

	typeStr := "uint256 amount"
	s.Compact.WitnessTypeString = &typeStr
	hash := "0x" + "00"
	s.Elements[0].MandateHash = &hash
	s.Elements[0].ChainID = domain.BigIntFromInt64(999) // does not match submitted chain id
	if err := v.Validate(s); err == nil {
		t.Fatal("expected error: no element matches the submitted chain id")
	}
}

func TestValidatorRejectsMissingNonce(t *testing.T) {
	now := time.Unix(2000000000, 0)
	v := newTestValidator(now)
	s := validSubmission(now)
	s.Compact.Nonce = nil
	err := v.Validate(s)
	if err == nil {
		t.Fatal("expected error for a missing nonce")
	}
	var nonceErr *domain.NonceError
	if !errors.As(err, &nonceErr) {
		t.Fatalf("expected a *domain.NonceError, got %T", err)
	}
	if nonceErr.Kind != domain.NonceMissing {
		t.Errorf("expected NonceMissing, got %v", nonceErr.Kind)
	}
}
