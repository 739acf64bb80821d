package domain

import "math/big"

// Commitment is a child of Element; every element owns at least one.
type Commitment struct {
	ID        int64
	ElementID int64
	LockTag   string // 0x-prefixed 12-byte hex
	Token     string // lowercase 20-byte hex
	Amount    *BigInt
}

// allocatorIDMask is (2^92 - 1), the width of the allocatorId field packed
// into a lockTag.
var allocatorIDMask = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 92), big.NewInt(1))

// LockID computes the 32-byte composite lockId = (lockTag << 160) | token
// for this commitment.
func (c Commitment) LockID() (*BigInt, error) {
	tag, err := ParseBigInt(c.LockTag)
	if err != nil {
		return nil, err
	}
	tok, err := ParseBigInt(c.Token)
	if err != nil {
		return nil, err
	}
	composite := new(big.Int).Lsh(tag.Int(), 160)
	composite.Or(composite, tok.Int())
	return NewBigInt(composite), nil
}

// AllocatorID extracts the 92-bit allocatorId packed into this
// commitment's lockTag: (lockTag >> 4) & (2^92 - 1).
func (c Commitment) AllocatorID() (*BigInt, error) {
	tag, err := ParseBigInt(c.LockTag)
	if err != nil {
		return nil, err
	}
	shifted := new(big.Int).Rsh(tag.Int(), 4)
	shifted.And(shifted, allocatorIDMask)
	return NewBigInt(shifted), nil
}

// LockIDBytes composes a lockId directly from a lockTag and token address
// without requiring a Commitment value, for callers (e.g. the HTTP balance
// handler) that only have the path parameters.
func LockIDBytes(lockTag, token *BigInt) *BigInt {
	composite := new(big.Int).Lsh(lockTag.Int(), 160)
	composite.Or(composite, token.Int())
	return NewBigInt(composite)
}

// AllocatorIDFromLockID extracts the 92-bit allocatorId packed into a
// composite lockId's upper lockTag bits: (lockId >> 160 >> 4) & (2^92 - 1).
// Used at the HTTP boundary, where callers supply a lockId directly rather
// than a (lockTag, token) pair.
func AllocatorIDFromLockID(lockID *BigInt) *BigInt {
	lockTag := new(big.Int).Rsh(lockID.Int(), 160)
	shifted := new(big.Int).Rsh(lockTag, 4)
	shifted.And(shifted, allocatorIDMask)
	return NewBigInt(shifted)
}
