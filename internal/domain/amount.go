package domain

import (
	"math/big"
)

// Amount is an integer amount in the marketplace payment unit (wei for
// Ethereum-backed registries). It is kept as a decimal string to support up
// to 78 digits and is persisted as numeric(78,0).
type Amount string

// String returns the string representation of the Amount
func (a Amount) String() string {
	return string(a)
}

// BigInt parses the amount into a big.Int, or nil if malformed
func (a Amount) BigInt() *big.Int {
	if a == "" {
		return nil
	}
	n, ok := new(big.Int).SetString(string(a), 10)
	if !ok || n.Sign() < 0 {
		return nil
	}
	return n
}

// Valid checks if the amount is a well-formed non-negative integer
func (a Amount) Valid() bool {
	return a.BigInt() != nil
}

// Positive checks if the amount is a well-formed integer greater than zero
func (a Amount) Positive() bool {
	n := a.BigInt()
	return n != nil && n.Sign() > 0
}

// Equal compares two amounts numerically, so "07" equals "7"
func (a Amount) Equal(b Amount) bool {
	x, y := a.BigInt(), b.BigInt()
	if x == nil || y == nil {
		return false
	}
	return x.Cmp(y) == 0
}

// Canonical returns the amount with leading zeros stripped. Malformed amounts
// are returned unchanged.
func (a Amount) Canonical() Amount {
	n := a.BigInt()
	if n == nil {
		return a
	}
	return Amount(n.String())
}
