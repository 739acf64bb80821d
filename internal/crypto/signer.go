package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer holds the allocator's secp256k1 private key and produces compact
// (EIP-2098) signatures over a pre-computed digest. It is the sole writer
// of the allocator's authorization; once loaded the key never changes.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner loads a hex-encoded private key (with or without 0x prefix)
// and derives its address. If wantAddress is non-empty and skipVerification
// is false, the derived address must match it exactly (case-insensitive)
// or NewSigner fails — the fatal startup check in SPEC_FULL.md §4.9.
func NewSigner(privateKeyHex, wantAddress string, skipVerification bool) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid signer private key: %w", err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)

	if !skipVerification && wantAddress != "" && !strings.EqualFold(addr.Hex(), wantAddress) {
		return nil, fmt.Errorf("crypto: configured signer address %s does not match key-derived address %s", wantAddress, addr.Hex())
	}

	return &Signer{privateKey: key, address: addr}, nil
}

// Address returns the allocator's signing address.
func (s *Signer) Address() common.Address {
	return s.address
}

// Sign produces a 64-byte EIP-2098 compact signature over digest: the
// standard 65-byte (r, s, v) signature with v folded into the top bit of
// s, per yParityAndS = (v << 255) | s.
func (s *Signer) Sign(digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, &EncodingError{Kind: ErrWidth, Detail: "digest must be 32 bytes"}
	}
	sig, err := crypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: signing digest: %w", err)
	}
	return ToCompactSignature(sig)
}

// ToCompactSignature converts a standard 65-byte (r ‖ s ‖ v) signature,
// with v in either {0,1} or {27,28}, into the 64-byte EIP-2098 compact
// form (r ‖ yParityAndS).
func ToCompactSignature(sig []byte) ([]byte, error) {
	if len(sig) != 65 {
		return nil, &EncodingError{Kind: ErrWidth, Detail: "expected a 65-byte signature"}
	}
	r := sig[0:32]
	s := append([]byte(nil), sig[32:64]...)
	v := sig[64]
	if v >= 27 {
		v -= 27
	}
	if v != 0 && v != 1 {
		return nil, fmt.Errorf("crypto: invalid recovery id %d", v)
	}
	if v == 1 {
		s[0] |= 0x80
	}
	out := make([]byte, 64)
	copy(out[0:32], r)
	copy(out[32:64], s)
	return out, nil
}

// FromCompactSignature expands a 64-byte EIP-2098 compact signature, or
// passes through an already-65-byte (r ‖ s ‖ v) signature unchanged aside
// from v-normalization, into the 65-byte form crypto.Ecrecover expects
// (with v in {0,1}).
func FromCompactSignature(sig []byte) ([]byte, error) {
	switch len(sig) {
	case 64:
		r := sig[0:32]
		yParityAndS := sig[32:64]
		s := append([]byte(nil), yParityAndS...)
		v := byte(0)
		if s[0]&0x80 != 0 {
			v = 1
			s[0] &^= 0x80
		}
		out := make([]byte, 65)
		copy(out[0:32], r)
		copy(out[32:64], s)
		out[64] = v
		return out, nil
	case 65:
		out := append([]byte(nil), sig...)
		if out[64] >= 27 {
			out[64] -= 27
		}
		if out[64] != 0 && out[64] != 1 {
			return nil, fmt.Errorf("crypto: invalid recovery id %d", out[64])
		}
		return out, nil
	default:
		return nil, &EncodingError{Kind: ErrWidth, Detail: fmt.Sprintf("expected a 64 or 65-byte signature, got %d", len(sig))}
	}
}

// RecoverSponsor recovers the signer address of sponsorSignature (65-byte
// r‖s‖v or 64-byte EIP-2098 compact) over digest, per SPEC_FULL.md §4.8.
func RecoverSponsor(digest, sponsorSignature []byte) (common.Address, error) {
	if len(digest) != 32 {
		return common.Address{}, &EncodingError{Kind: ErrWidth, Detail: "digest must be 32 bytes"}
	}
	normalized, err := FromCompactSignature(sponsorSignature)
	if err != nil {
		return common.Address{}, err
	}
	pubBytes, err := crypto.Ecrecover(digest, normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto: ecrecover: %w", err)
	}
	pub, err := crypto.UnmarshalPubkey(pubBytes)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto: unmarshal recovered pubkey: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
