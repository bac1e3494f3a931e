// Copyright (c) 2025 The quaisuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/quaisuite/quaiwallet/qiutxo"
)

// Header is the subset of a Quai block header the client consumes.
type Header struct {
	Number    *hexutil.Big   `json:"number"`
	Hash      common.Hash    `json:"hash"`
	Time      hexutil.Uint64 `json:"timestamp"`
	BaseFee   *hexutil.Big   `json:"baseFeePerGas"`
	GasLimit  hexutil.Uint64 `json:"gasLimit"`
	GasUsed   hexutil.Uint64 `json:"gasUsed"`
	TxHash    common.Hash    `json:"transactionsRoot"`
	UtxoRoot  common.Hash    `json:"utxoRoot"`
	Location  hexutil.Bytes  `json:"location"`
}

// CallMsg describes a contract call on the Quai (account) ledger.
type CallMsg struct {
	From  *common.Address `json:"from,omitempty"`
	To    *common.Address `json:"to,omitempty"`
	Gas   hexutil.Uint64  `json:"gas,omitempty"`
	Value *hexutil.Big    `json:"value,omitempty"`
	Data  hexutil.Bytes   `json:"data,omitempty"`
}

// perform runs a logical request through the quorum engine and decodes the
// settled result into out, when out is non-nil.
func (c *FallbackClient) perform(ctx context.Context, method string, out any,
	params ...any) error {

	raw, err := c.Perform(ctx, &Request{Method: method, Params: params})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding %s result: %w", method, err)
	}

	return nil
}

// BlockNumber returns the chain height the backend set agrees on.
func (c *FallbackClient) BlockNumber(ctx context.Context) (uint64, error) {
	var n hexutil.Uint64
	if err := c.perform(ctx, MethodBlockNumber, &n); err != nil {
		return 0, err
	}

	return uint64(n), nil
}

// BalanceAt returns the latest balance of the given address, in qits for Qi
// ledger addresses and wei-equivalent units for Quai ledger addresses.
func (c *FallbackClient) BalanceAt(ctx context.Context,
	addr common.Address) (*big.Int, error) {

	var bal hexutil.Big
	err := c.perform(ctx, MethodGetBalance, &bal, addr, "latest")
	if err != nil {
		return nil, err
	}

	return bal.ToInt(), nil
}

// HeaderByNumber returns the header at the given height, or the latest
// header when number is nil.
func (c *FallbackClient) HeaderByNumber(ctx context.Context,
	number *big.Int) (*Header, error) {

	arg := "latest"
	if number != nil {
		arg = hexutil.EncodeBig(number)
	}

	var hdr Header
	err := c.perform(ctx, MethodGetBlockByNumber, &hdr, arg, false)
	if err != nil {
		return nil, err
	}

	return &hdr, nil
}

// GasPrice returns the suggested gas price the backend set agrees on.
func (c *FallbackClient) GasPrice(ctx context.Context) (*big.Int, error) {
	var price hexutil.Big
	if err := c.perform(ctx, MethodGasPrice, &price); err != nil {
		return nil, err
	}

	return price.ToInt(), nil
}

// CallContract executes a read-only contract call at the latest block.
func (c *FallbackClient) CallContract(ctx context.Context, msg *CallMsg) (
	[]byte, error) {

	var out hexutil.Bytes
	if err := c.perform(ctx, MethodCall, &out, msg, "latest"); err != nil {
		return nil, err
	}

	return out, nil
}

// QiToQuai quotes the Quai value in wei of the given qit amount at the
// latest block. The rate floats block to block, so quotes go stale at block
// cadence.
func (c *FallbackClient) QiToQuai(ctx context.Context, qits *big.Int) (
	*big.Int, error) {

	var wei hexutil.Big
	err := c.perform(
		ctx, MethodQiRateAtBlock, &wei, (*hexutil.Big)(qits), "latest",
	)
	if err != nil {
		return nil, err
	}

	return wei.ToInt(), nil
}

// OutpointsByAddress returns the validated spendable Qi outputs owned by the
// given address.
func (c *FallbackClient) OutpointsByAddress(ctx context.Context,
	addr common.Address) ([]*qiutxo.UTXO, error) {

	var recs []*qiutxo.RPCOutPoint
	err := c.perform(ctx, MethodOutpointsByAddress, &recs, addr)
	if err != nil {
		return nil, err
	}

	return qiutxo.FromRPCList(recs, addr)
}

// SendRawTransaction broadcasts an encoded transaction and returns its hash.
// The duplicate-submission tolerance documented on Perform applies: a
// backend reporting the transaction as already known counts as agreement
// with any backend that accepted it.
func (c *FallbackClient) SendRawTransaction(ctx context.Context,
	encoded []byte) (common.Hash, error) {

	var h common.Hash
	err := c.perform(ctx, MethodSendRawTransaction, &h,
		hexutil.Encode(encoded))
	if err != nil {
		return common.Hash{}, err
	}

	return h, nil
}
