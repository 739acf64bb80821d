package crypto

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// EncodingError reports a malformed typed-data argument — the only failure
// mode the Codec exposes.
type EncodingError struct {
	Kind   string
	Detail string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("crypto: encoding error (%s): %s", e.Kind, e.Detail)
}

// ErrWidth is the EncodingError kind for an argument that does not match
// the expected byte width for its typed-data slot (e.g. an address that
// isn't exactly 20 bytes).
const ErrWidth = "width"

// word is a single 32-byte ABI-encoded slot.
type word [32]byte

// Keccak256 hashes the concatenation of its arguments.
func Keccak256(data ...[]byte) []byte {
	return crypto.Keccak256(data...)
}

// PackedTypeString returns keccak256 of the raw type-string bytes — the
// "type hash" used as the first word of every typed-data struct hash.
func PackedTypeString(typeString string) []byte {
	return crypto.Keccak256([]byte(typeString))
}

// WordAddress left-pads a 20-byte address into a 32-byte ABI word.
func WordAddress(addr string) (word, error) {
	if !common.IsHexAddress(addr) {
		return word{}, &EncodingError{Kind: ErrWidth, Detail: fmt.Sprintf("invalid address %q", addr)}
	}
	var w word
	copy(w[12:], common.HexToAddress(addr).Bytes())
	return w, nil
}

// WordUint256 left-pads a non-negative integer into a 32-byte ABI word.
// Values wider than 256 bits are rejected.
func WordUint256(v *big.Int) (word, error) {
	if v == nil || v.Sign() < 0 {
		return word{}, &EncodingError{Kind: ErrWidth, Detail: "uint256 must be non-negative"}
	}
	b := v.Bytes()
	if len(b) > 32 {
		return word{}, &EncodingError{Kind: ErrWidth, Detail: "uint256 overflows 32 bytes"}
	}
	var w word
	copy(w[32-len(b):], b)
	return w, nil
}

// WordBytes32 copies a precomputed 32-byte hash into an ABI word verbatim.
func WordBytes32(b []byte) (word, error) {
	if len(b) != 32 {
		return word{}, &EncodingError{Kind: ErrWidth, Detail: fmt.Sprintf("expected 32 bytes, got %d", len(b))}
	}
	var w word
	copy(w[:], b)
	return w, nil
}

// WordBytes12 places a 12-byte value (a lockTag) at the start of a 32-byte
// ABI word, zero-padding on the right, matching Solidity's packing: bytes12
// values are encoded left-aligned within the word, unlike uint/address
// which are right-aligned. This mirrors abi.encode's treatment of a fixed
// bytesN type.
func WordBytes12(b []byte) (word, error) {
	if len(b) != 12 {
		return word{}, &EncodingError{Kind: ErrWidth, Detail: fmt.Sprintf("expected 12 bytes, got %d", len(b))}
	}
	var w word
	copy(w[:12], b)
	return w, nil
}

// EncodeWords concatenates a sequence of pre-built 32-byte ABI words, the
// "encode" step of EIP-712 struct hashing (tuples of statically-sized
// fields with no dynamic tail).
func EncodeWords(words ...word) []byte {
	out := make([]byte, 0, 32*len(words))
	for _, w := range words {
		out = append(out, w[:]...)
	}
	return out
}

// HashWords is EncodeWords followed by keccak256 — the common case of
// hashing a fixed-size struct's encoded words directly into its struct
// hash.
func HashWords(words ...word) []byte {
	return Keccak256(EncodeWords(words...))
}
