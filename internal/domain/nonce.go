package domain

import "math/big"

// nonceLowBits is the width of the sponsor-chosen fragment packed into the
// low bits of a 256-bit nonce; the remaining high bits encode the sponsor
// address.
const nonceLowBits = 96

// nonceLowMask is (2^96 - 1).
var nonceLowMask = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), nonceLowBits), big.NewInt(1))

// ConsumedNonce records that a given sponsor has consumed a specific
// 256-bit nonce on a specific chain. Persistence splits the value
// losslessly: nonceHigh covers the top 192 bits, nonceLow the bottom 64
// bits — see SPEC_FULL.md §9. The in-memory representation here keeps the
// full value plus the split for callers that need the storage shape
// directly.
type ConsumedNonce struct {
	ChainID   *BigInt
	Sponsor   string // lowercase 20-byte hex
	Nonce     *BigInt
	NonceHigh *BigInt // top 192 bits, unsigned
	NonceLow  *BigInt // bottom 64 bits, unsigned
}

// SplitNonce decomposes a 256-bit nonce into the (high, low) halves used
// for lossless NUMERIC-column persistence: nonceHigh is the top 192 bits,
// nonceLow is the bottom 64 bits.
func SplitNonce(nonce *BigInt) (high, low *BigInt) {
	v := nonce.Int()
	lowMask := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 64), big.NewInt(1))
	l := new(big.Int).And(v, lowMask)
	h := new(big.Int).Rsh(v, 64)
	return NewBigInt(h), NewBigInt(l)
}

// JoinNonce reassembles a 256-bit nonce from its persisted (high, low)
// halves.
func JoinNonce(high, low *BigInt) *BigInt {
	v := new(big.Int).Lsh(high.Int(), 64)
	v.Or(v, low.Int())
	return NewBigInt(v)
}

// NonceSponsor extracts the top 20 bytes of a nonce as a sponsor address,
// matching the layout high=sponsor(20B) ‖ low=fragment(12B).
func NonceSponsor(nonce *BigInt) string {
	v := nonce.Int()
	shifted := new(big.Int).Rsh(v, nonceLowBits)
	addr := common160(shifted)
	return addr
}

// ComposeNonce packs a sponsor address and a fragment into a 256-bit
// nonce: high 20 bytes = sponsor, low 12 bytes = fragment. The fragment is
// a uint64, so the top 4 bytes of the low 12 are always zero.
func ComposeNonce(sponsor *BigInt, fragment uint64) *BigInt {
	v := new(big.Int).Lsh(sponsor.Int(), nonceLowBits)
	v.Or(v, new(big.Int).And(big.NewInt(0).SetUint64(fragment), nonceLowMask))
	return NewBigInt(v)
}

// common160 renders a big.Int as a lowercase, 0x-prefixed 20-byte address
// string, left-padding with zeros as needed.
func common160(v *big.Int) string {
	b := NewBigInt(v)
	hex := b.Int().Text(16)
	for len(hex) < 40 {
		hex = "0" + hex
	}
	if len(hex) > 40 {
		hex = hex[len(hex)-40:]
	}
	return "0x" + hex
}
