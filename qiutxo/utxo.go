// Copyright (c) 2025 The quaisuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package qiutxo provides the value types that describe spendable Qi ledger
// outputs. Qi is the UTXO half of the Quai protocol: every output carries a
// denomination drawn from a fixed, protocol-defined table rather than an
// arbitrary amount.
package qiutxo

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// MaxDenomination is the highest valid denomination index.
	MaxDenomination = 13

	// MaxOutputIndex is the highest outpoint index a Qi transaction may
	// produce. The index is a uint16 on the wire.
	MaxOutputIndex = math.MaxUint16
)

var (
	// ErrMissingAddress is returned when a UTXO is constructed without an
	// owning address.
	ErrMissingAddress = errors.New("utxo address cannot be empty")

	// ErrMissingDenomination is returned when a UTXO is constructed
	// without a denomination.
	ErrMissingDenomination = errors.New("utxo denomination cannot be nil")

	// ErrInvalidDenomination is returned when a denomination index is
	// outside the protocol table.
	ErrInvalidDenomination = errors.New("invalid denomination index")

	// ErrInvalidTarget is returned when a spend target carries a nil or
	// non-positive value.
	ErrInvalidTarget = errors.New("spend target value must be positive")
)

// Denomination indexes the protocol's fixed coin-size table. It is a small
// integer on the wire, never a raw amount.
type Denomination uint8

// Denominations maps each denomination index to its value in qits. The table
// is protocol-defined and append-only; coin selection and change making both
// assume the values are strictly increasing.
var Denominations = [MaxDenomination + 1]*big.Int{
	big.NewInt(1),         // 0.001 Qi
	big.NewInt(5),         // 0.005 Qi
	big.NewInt(10),        // 0.01 Qi
	big.NewInt(50),        // 0.05 Qi
	big.NewInt(100),       // 0.1 Qi
	big.NewInt(250),       // 0.25 Qi
	big.NewInt(500),       // 0.5 Qi
	big.NewInt(1_000),     // 1 Qi
	big.NewInt(5_000),     // 5 Qi
	big.NewInt(10_000),    // 10 Qi
	big.NewInt(20_000),    // 20 Qi
	big.NewInt(50_000),    // 50 Qi
	big.NewInt(100_000),   // 100 Qi
	big.NewInt(1_000_000), // 1000 Qi
}

// Valid reports whether the denomination index is inside the protocol table.
func (d Denomination) Valid() bool {
	return d <= MaxDenomination
}

// Value returns the denomination's value in qits. The returned integer is
// shared and must not be mutated.
func (d Denomination) Value() *big.Int {
	if !d.Valid() {
		return nil
	}
	return Denominations[d]
}

// OutPoint identifies a single Qi ledger output by the hash of its creating
// transaction and the output's index within it.
type OutPoint struct {
	TxHash common.Hash
	Index  uint16
}

// String returns the outpoint in hash:index form.
func (o OutPoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxHash, o.Index)
}

// UTXO describes one spendable Qi coin. A UTXO is immutable once
// constructed; NewUTXO is the only way to obtain a validated instance.
type UTXO struct {
	// OutPoint locates the output on the ledger.
	OutPoint OutPoint

	// Address is the output's owning address.
	Address common.Address

	// Denomination is the coin's size, as an index into Denominations.
	Denomination Denomination

	// Lock, if non-nil, is the block height before which the output may
	// not be spent. A nil lock means the output is immediately spendable.
	Lock *big.Int
}

// NewUTXO validates the given fields and returns a canonical UTXO. A zero
// address or an out-of-table denomination is a construction error, matching
// the node's own eligibility rules.
func NewUTXO(op OutPoint, addr common.Address, denom Denomination,
	lock *big.Int) (*UTXO, error) {

	u := &UTXO{
		OutPoint:     op,
		Address:      addr,
		Denomination: denom,
		Lock:         lock,
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}

	return u, nil
}

// Validate checks the invariants every selectable UTXO must hold.
func (u *UTXO) Validate() error {
	if u.Address == (common.Address{}) {
		return ErrMissingAddress
	}
	if !u.Denomination.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidDenomination,
			u.Denomination)
	}

	return nil
}

// Value returns the coin's value in qits.
func (u *UTXO) Value() *big.Int {
	return u.Denomination.Value()
}

// SpendableAt reports whether the output's lock, if any, has expired at the
// given block height.
func (u *UTXO) SpendableAt(height *big.Int) bool {
	if u.Lock == nil || u.Lock.Sign() == 0 {
		return true
	}
	return height != nil && u.Lock.Cmp(height) <= 0
}

// SpendTarget is a pending payment: the destination address and the amount
// to deliver, in qits.
type SpendTarget struct {
	// Address is the payment destination.
	Address common.Address

	// Value is the payment amount in qits.
	Value *big.Int
}

// Validate checks that the target carries a strictly positive value.
func (t *SpendTarget) Validate() error {
	if t.Value == nil || t.Value.Sign() <= 0 {
		return ErrInvalidTarget
	}

	return nil
}

// SumValues returns the total value in qits of the given coins.
func SumValues(utxos []*UTXO) *big.Int {
	sum := new(big.Int)
	for _, u := range utxos {
		sum.Add(sum, u.Value())
	}
	return sum
}
