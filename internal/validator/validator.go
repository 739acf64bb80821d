// Package validator runs the ordered, fail-fast structural checks a
// submitted compact must pass before any hashing or persistence is
// attempted.
package validator

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/allocatorhq/compactd/internal/domain"
)

// maxExpiryWindow is the two-hour look-ahead cap: expires must fall in
// (now, now+maxExpiryWindow].
const maxExpiryWindow = 2 * time.Hour

// Submission is the raw, not-yet-validated input to the Validator: a
// compact plus its elements and commitments, as parsed off the wire.
type Submission struct {
	ChainID  *domain.BigInt // the chain the request was submitted against
	Compact  domain.Compact
	Elements []domain.Element
}

// Validator runs the checks of SPEC_FULL.md §4.3, cheapest first, and
// returns on the first failure.
type Validator struct {
	now func() time.Time
}

// New returns a Validator using time.Now for the expiration check.
func New() *Validator {
	return &Validator{now: time.Now}
}

// Validate runs every structural check in order and returns the first
// failure, wrapped as a *domain.ValidationError.
func (v *Validator) Validate(s Submission) error {
	if err := checkChainID(s.ChainID); err != nil {
		return err
	}
	if err := checkAddresses(s); err != nil {
		return err
	}
	if err := checkWidths(s); err != nil {
		return err
	}
	if err := checkPresence(s); err != nil {
		return err
	}
	if err := checkWitnessConsistency(s); err != nil {
		return err
	}
	if err := v.checkExpiration(s.Compact.Expires); err != nil {
		return err
	}
	if err := checkMultichainMembership(s); err != nil {
		return err
	}
	return nil
}

func checkChainID(chainID *domain.BigInt) error {
	if chainID == nil || chainID.Sign() <= 0 {
		return &domain.ValidationError{Field: "chainId", Reason: "must be a positive integer"}
	}
	return nil
}

func checkAddresses(s Submission) error {
	if !common.IsHexAddress(s.Compact.Sponsor) {
		return &domain.ValidationError{Field: "sponsor", Reason: "must be a 20-byte address"}
	}
	for _, el := range s.Elements {
		if !common.IsHexAddress(el.Arbiter) {
			return &domain.ValidationError{Field: "elements[].arbiter", Reason: "must be a 20-byte address"}
		}
		for _, c := range el.Commitments {
			if !common.IsHexAddress(c.Token) {
				return &domain.ValidationError{Field: "elements[].commitments[].token", Reason: "must be a 20-byte address"}
			}
		}
	}
	return nil
}

func checkWidths(s Submission) error {
	for _, el := range s.Elements {
		for _, c := range el.Commitments {
			raw := common.FromHex(c.LockTag)
			if len(raw) != 12 {
				return &domain.ValidationError{Field: "elements[].commitments[].lockTag", Reason: "must be exactly 12 bytes"}
			}
			if c.Amount == nil || c.Amount.Sign() < 0 {
				return &domain.ValidationError{Field: "elements[].commitments[].amount", Reason: "must be a non-negative uint256"}
			}
		}
	}
	if s.Compact.Nonce == nil {
		return &domain.NonceError{Kind: domain.NonceMissing}
	}
	if s.Compact.Expires.IsZero() {
		return &domain.ValidationError{Field: "expires", Reason: "must be a positive unix timestamp"}
	}
	return nil
}

func checkPresence(s Submission) error {
	if len(s.Elements) == 0 {
		return &domain.ValidationError{Field: "elements", Reason: "at least one element is required"}
	}
	for _, el := range s.Elements {
		if len(el.Commitments) == 0 {
			return &domain.ValidationError{Field: "elements[].commitments", Reason: "at least one commitment is required per element"}
		}
	}
	return nil
}

func checkWitnessConsistency(s Submission) error {
	switch s.Compact.Variant {
	case domain.VariantMultichain:
		if s.Compact.WitnessTypeString == nil {
			return &domain.ValidationError{Field: "witnessTypeString", Reason: "required for multichain compacts"}
		}
		for _, el := range s.Elements {
			if el.MandateHash == nil {
				return &domain.ValidationError{Field: "elements[].witnessHash", Reason: "required on every element of a multichain compact"}
			}
		}
	default:
		hasType := s.Compact.WitnessTypeString != nil
		hasHash := s.Compact.WitnessHash != nil
		if hasType != hasHash {
			return &domain.ValidationError{Field: "witnessTypeString/witnessHash", Reason: "both must be present or both absent"}
		}
	}
	return nil
}

func (v *Validator) checkExpiration(expires time.Time) error {
	now := v.now()
	if !expires.After(now) {
		return &domain.ValidationError{Field: "expires", Reason: "must be in the future"}
	}
	if expires.After(now.Add(maxExpiryWindow)) {
		return &domain.ValidationError{Field: "expires", Reason: "exceeds the two-hour look-ahead window"}
	}
	return nil
}

func checkMultichainMembership(s Submission) error {
	if s.Compact.Variant != domain.VariantMultichain {
		return nil
	}
	for _, el := range s.Elements {
		if el.ChainID != nil && el.ChainID.Cmp(s.ChainID) == 0 {
			return nil
		}
	}
	return &domain.ValidationError{Field: "chainId", Reason: "no elements found for the submitted chain"}
}
