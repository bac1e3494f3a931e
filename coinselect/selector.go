// Copyright (c) 2025 The quaisuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package coinselect implements coin selection for Qi transactions. Because
// Qi coins come from a small fixed table of denominations, picking from the
// largest denomination downward yields a covering set of minimal size; this
// is a property of canonical coin systems, not merely a heuristic.
package coinselect

import (
	"errors"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/quaisuite/quaiwallet/qiutxo"
)

var (
	// ErrNoUTXOsAvailable is returned when selection is attempted against
	// an empty coin set.
	ErrNoUTXOsAvailable = errors.New("no UTXOs available")

	// ErrInvalidTarget is returned when the spend target is nil, zero or
	// negative.
	ErrInvalidTarget = errors.New("target amount must be greater than 0")

	// ErrInsufficientFunds is returned when the available coins cannot
	// cover the target.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Output is a value-shaped transaction output produced by selection. The
// wallet later expands each output into protocol denominations before the
// transaction is built.
type Output struct {
	// Address is the output's destination.
	Address common.Address

	// Value is the output's amount in qits.
	Value *big.Int
}

// SelectionResult is the outcome of a successful selection. The conservation
// invariant always holds: the input values sum exactly to the spend outputs
// plus the change outputs.
type SelectionResult struct {
	// Inputs are the coins consumed, in selection order.
	Inputs []*qiutxo.UTXO

	// SpendOutputs pay the recipient. There is exactly one, carrying the
	// full target value.
	SpendOutputs []Output

	// ChangeOutputs return surplus value to the spender. Empty when the
	// inputs match the target exactly, otherwise a single output with the
	// whole surplus.
	ChangeOutputs []Output
}

// InputTotal returns the summed value of the selected inputs.
func (r *SelectionResult) InputTotal() *big.Int {
	return qiutxo.SumValues(r.Inputs)
}

// Selector chooses coins to satisfy a spend target.
type Selector interface {
	// PerformSelection selects inputs from the available coins to cover
	// the target value and computes spend and change outputs. Change, if
	// any, is paid to changeAddr.
	PerformSelection(available []*qiutxo.UTXO, target *qiutxo.SpendTarget,
		changeAddr common.Address) (*SelectionResult, error)
}

// FewestCoinSelection selects the fewest coins able to cover the target.
var FewestCoinSelection Selector = &FewestCoins{}

// FewestCoins is the largest-denomination-first greedy selector.
type FewestCoins struct{}

// A compile-time check to ensure FewestCoins satisfies the Selector
// interface.
var _ Selector = (*FewestCoins)(nil)

// PerformSelection selects coins from available, largest denomination first,
// until the target is covered. When the pass overshoots, the final coin is
// swapped for the smallest unused coin that still covers the remainder, so
// an exact covering set is preferred over one that leaves change. The sort
// is stable, so coins of equal denomination keep their original relative
// order.
func (*FewestCoins) PerformSelection(available []*qiutxo.UTXO,
	target *qiutxo.SpendTarget,
	changeAddr common.Address) (*SelectionResult, error) {

	if len(available) == 0 {
		return nil, ErrNoUTXOsAvailable
	}
	if target == nil || target.Validate() != nil {
		return nil, ErrInvalidTarget
	}

	// Order a copy of the coin set by descending denomination without
	// disturbing the caller's slice.
	sorted := make([]*qiutxo.UTXO, len(available))
	copy(sorted, available)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Value().Cmp(sorted[j].Value()) > 0
	})

	var (
		inputs []*qiutxo.UTXO
		total  = new(big.Int)
	)
	for _, u := range sorted {
		inputs = append(inputs, u)
		total.Add(total, u.Value())
		if total.Cmp(target.Value) >= 0 {
			break
		}
	}
	if total.Cmp(target.Value) < 0 {
		return nil, ErrInsufficientFunds
	}

	// The greedy pass may overshoot when a smaller coin covers what the
	// earlier picks left. Swap the final coin for the smallest unused
	// coin that still covers that remainder, shrinking the surplus and
	// hitting an exact match where one exists.
	if total.Cmp(target.Value) > 0 {
		last := inputs[len(inputs)-1]
		need := new(big.Int).Sub(target.Value, total)
		need.Add(need, last.Value())

		// Unused coins sit after the cut in descending order, so the
		// first covering coin found from the tail is the smallest.
		for i := len(sorted) - 1; i >= len(inputs); i-- {
			if sorted[i].Value().Cmp(need) < 0 {
				continue
			}
			if sorted[i].Value().Cmp(last.Value()) < 0 {
				inputs[len(inputs)-1] = sorted[i]
				total.Sub(total, last.Value())
				total.Add(total, sorted[i].Value())
			}
			break
		}
	}

	result := &SelectionResult{
		Inputs: inputs,
		SpendOutputs: []Output{{
			Address: target.Address,
			Value:   new(big.Int).Set(target.Value),
		}},
	}

	surplus := new(big.Int).Sub(total, target.Value)
	if surplus.Sign() > 0 {
		result.ChangeOutputs = []Output{{
			Address: changeAddr,
			Value:   surplus,
		}}
	}

	return result, nil
}
