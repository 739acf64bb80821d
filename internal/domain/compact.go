package domain

import "time"

// CompactVariant tags which of the three typed-data shapes a Compact is.
type CompactVariant int

const (
	// VariantSingle is a Compact with exactly one element and one
	// commitment.
	VariantSingle CompactVariant = iota
	// VariantBatch is a Compact with exactly one element and one or more
	// commitments.
	VariantBatch
	// VariantMultichain is a Compact with one or more elements, each
	// scoped to its own chainId and carrying its own witness hash.
	VariantMultichain
)

// Compact is the root entity: a sponsor's request for the allocator to
// authorize a future on-chain settlement against one or more resource
// locks. Once signed it is never mutated.
type Compact struct {
	ID        int64
	Variant   CompactVariant
	ChainID   *BigInt // notarization chain
	ClaimHash string  // 0x-prefixed 32-byte hash, unique with ChainID
	Sponsor   string  // lowercase 20-byte hex
	Nonce     *BigInt
	Expires   time.Time

	// WitnessTypeString and WitnessHash are both present or both absent
	// for VariantSingle/VariantBatch. For VariantMultichain the type
	// string is required at the root; each Element carries its own hash.
	WitnessTypeString *string
	WitnessHash       *string

	Signature string // 0x-prefixed 64-byte EIP-2098 compact signature

	CreatedAt time.Time
}

// IsExpired reports whether the compact's expiry has passed as of now.
func (c Compact) IsExpired(now time.Time) bool {
	return !c.Expires.After(now)
}

// IsSettled reports whether the compact's claim hash appears among the
// set of settled claim hashes reported by the indexer.
func (c Compact) IsSettled(settledClaimHashes map[string]struct{}) bool {
	_, ok := settledClaimHashes[c.ClaimHash]
	return ok
}

// IsRetired reports whether the compact is no longer outstanding, either
// because it expired or because its claim has settled on-chain.
func (c Compact) IsRetired(now time.Time, settledClaimHashes map[string]struct{}) bool {
	return c.IsExpired(now) || c.IsSettled(settledClaimHashes)
}
