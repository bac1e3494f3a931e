// Copyright (c) 2025 The quaisuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package qiutxo

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// RPCOutPoint is the JSON shape in which nodes report spendable outpoints,
// e.g. from qi_getOutpointsByAddress. Quantities arrive hex-encoded.
type RPCOutPoint struct {
	TxHash       common.Hash     `json:"txHash"`
	Index        hexutil.Uint64  `json:"index"`
	Denomination hexutil.Uint64  `json:"denomination"`
	Lock         *hexutil.Big    `json:"lock,omitempty"`
	Address      *common.Address `json:"address,omitempty"`
}

// FromRPC normalizes one wire outpoint into a validated UTXO. The owner
// address is taken from the wire record when present, otherwise from the
// queried address supplied by the caller.
func FromRPC(rec *RPCOutPoint, owner common.Address) (*UTXO, error) {
	if rec.Index > MaxOutputIndex {
		return nil, fmt.Errorf("outpoint index %d exceeds maximum %d",
			rec.Index, uint64(MaxOutputIndex))
	}
	if rec.Denomination > MaxDenomination {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDenomination,
			rec.Denomination)
	}

	addr := owner
	if rec.Address != nil {
		addr = *rec.Address
	}

	return NewUTXO(
		OutPoint{TxHash: rec.TxHash, Index: uint16(rec.Index)},
		addr, Denomination(rec.Denomination), rec.Lock.ToInt(),
	)
}

// FromRPCList normalizes a node's outpoint listing into validated UTXOs.
// Any malformed record fails the whole conversion; a partially validated
// coin set must never reach coin selection.
func FromRPCList(recs []*RPCOutPoint, owner common.Address) ([]*UTXO, error) {
	utxos := make([]*UTXO, 0, len(recs))
	for i, rec := range recs {
		u, err := FromRPC(rec, owner)
		if err != nil {
			return nil, fmt.Errorf("outpoint %d: %w", i, err)
		}
		utxos = append(utxos, u)
	}

	return utxos, nil
}
