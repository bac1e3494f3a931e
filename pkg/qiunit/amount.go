// Copyright (c) 2025 The quaisuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package qiunit provides types for dealing with Qi ledger units. The base
// unit is the qit; one Qi is 1000 qits.
package qiunit

import (
	"fmt"
	"math/big"

	"github.com/quaisuite/quaiwallet/qiutxo"
)

const (
	// QitsPerQi is the number of qits in one Qi.
	QitsPerQi = 1000
)

// Amount is a quantity of qits. Arbitrary-precision amounts flow through the
// RPC layer as big.Int; Amount is the convenience type for values known to
// fit an int64, such as user-facing balances and fees.
type Amount int64

// NewAmountFromQi converts a floating point Qi quantity to an Amount,
// rounding to the nearest qit.
func NewAmountFromQi(qi float64) Amount {
	return Amount(qi*QitsPerQi + 0.5)
}

// ToQi returns the amount as a floating point quantity of Qi.
func (a Amount) ToQi() float64 {
	return float64(a) / QitsPerQi
}

// BigInt returns the amount as an arbitrary-precision integer.
func (a Amount) BigInt() *big.Int {
	return big.NewInt(int64(a))
}

// String formats the amount as Qi with full qit precision.
func (a Amount) String() string {
	return fmt.Sprintf("%.3f Qi", a.ToQi())
}

// FindMinDenominations decomposes a value into the fewest protocol coins,
// largest denomination first. The returned map is keyed by denomination
// index with the count of coins of that size. The second return value is the
// remainder that cannot be represented; it is zero whenever value is a
// multiple of the smallest denomination.
func FindMinDenominations(value *big.Int) (map[qiutxo.Denomination]uint64, *big.Int) {
	counts := make(map[qiutxo.Denomination]uint64)
	rest := new(big.Int).Set(value)

	count, rem := new(big.Int), new(big.Int)
	for i := qiutxo.MaxDenomination; i >= 0; i-- {
		d := qiutxo.Denomination(i)
		count.QuoRem(rest, d.Value(), rem)
		rest.Set(rem)
		if count.Sign() > 0 {
			counts[d] = count.Uint64()
		}
	}

	return counts, rest
}

// Denominate expands a value into individual denomination outputs, largest
// first, mirroring how the node materializes coinbase and conversion
// outputs. An error is returned if the value is not exactly representable.
func Denominate(value *big.Int) ([]qiutxo.Denomination, error) {
	if value == nil || value.Sign() <= 0 {
		return nil, fmt.Errorf("cannot denominate non-positive value")
	}

	counts, rest := FindMinDenominations(value)
	if rest.Sign() != 0 {
		return nil, fmt.Errorf("value %s is not representable in "+
			"protocol denominations (remainder %s)", value, rest)
	}

	var denoms []qiutxo.Denomination
	for i := qiutxo.MaxDenomination; i >= 0; i-- {
		d := qiutxo.Denomination(i)
		for j := uint64(0); j < counts[d]; j++ {
			denoms = append(denoms, d)
		}
	}

	return denoms, nil
}
