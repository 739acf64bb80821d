package domain

import (
	"fmt"
	"math/big"
)

// BigInt is the 256-bit unsigned-integer type used throughout the domain for
// amounts, nonces, ids, chain ids, and expiries. It is never represented as a
// fixed-width int64/uint64 — see SPEC_FULL.md §9.
type BigInt struct {
	v *big.Int
}

// NewBigInt wraps a *big.Int. A nil input is treated as zero.
func NewBigInt(v *big.Int) *BigInt {
	if v == nil {
		return &BigInt{v: new(big.Int)}
	}
	return &BigInt{v: new(big.Int).Set(v)}
}

// BigIntFromInt64 wraps a small literal constant for tests and defaults.
func BigIntFromInt64(n int64) *BigInt {
	return &BigInt{v: big.NewInt(n)}
}

// ParseBigInt accepts a decimal string or a "0x"-prefixed hex string and
// returns the corresponding non-negative BigInt. Empty input is an error —
// callers distinguish "absent" at a higher layer.
func ParseBigInt(s string) (*BigInt, error) {
	if s == "" {
		return nil, fmt.Errorf("domain: empty integer literal")
	}
	var v *big.Int
	var ok bool
	if len(s) > 2 && (s[0:2] == "0x" || s[0:2] == "0X") {
		v, ok = new(big.Int).SetString(s[2:], 16)
	} else {
		v, ok = new(big.Int).SetString(s, 10)
	}
	if !ok {
		return nil, fmt.Errorf("domain: invalid integer literal %q", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("domain: integer literal %q must not be negative", s)
	}
	return &BigInt{v: v}, nil
}

// Int returns the underlying *big.Int. Callers must not mutate it.
func (b *BigInt) Int() *big.Int {
	if b == nil {
		return new(big.Int)
	}
	return b.v
}

// String renders the value as a decimal string.
func (b *BigInt) String() string {
	if b == nil || b.v == nil {
		return "0"
	}
	return b.v.String()
}

// Hex renders the value as a "0x"-prefixed, 64-hex-digit zero-padded string,
// matching the egress format for hashes, nonces, and ids mandated by §6.
func (b *BigInt) Hex() string {
	v := b.Int()
	raw := v.Text(16)
	if len(raw) < 64 {
		raw = fmt.Sprintf("%0*s", 64, raw)
	}
	return "0x" + raw
}

// Cmp delegates to big.Int.Cmp, tolerating nil receivers/arguments as zero.
func (b *BigInt) Cmp(o *BigInt) int {
	return b.Int().Cmp(o.Int())
}

// Add returns a new BigInt holding b+o.
func (b *BigInt) Add(o *BigInt) *BigInt {
	return &BigInt{v: new(big.Int).Add(b.Int(), o.Int())}
}

// Sub returns a new BigInt holding b-o, clamped to zero if the result would
// be negative (the allocator never deals in negative allocatable balances).
func (b *BigInt) Sub(o *BigInt) *BigInt {
	r := new(big.Int).Sub(b.Int(), o.Int())
	if r.Sign() < 0 {
		r.SetInt64(0)
	}
	return &BigInt{v: r}
}

// Sign reports -1, 0, or 1 per big.Int.Sign.
func (b *BigInt) Sign() int {
	return b.Int().Sign()
}

// MarshalJSON renders the value as a decimal-string JSON value, matching the
// wire contract for amounts.
func (b *BigInt) MarshalJSON() ([]byte, error) {
	return []byte(`"` + b.String() + `"`), nil
}

// UnmarshalJSON accepts a decimal or 0x-hex JSON string.
func (b *BigInt) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := ParseBigInt(s)
	if err != nil {
		return err
	}
	b.v = parsed.v
	return nil
}
