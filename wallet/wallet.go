// Copyright (c) 2025 The quaisuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package wallet ties the library together for callers: it queries chain
// state through the fallback provider, assembles Qi transactions with coin
// selection, signs them, and broadcasts them.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/davecgh/go-spew/spew"
	"github.com/ethereum/go-ethereum/common"

	"github.com/quaisuite/quaiwallet/chain"
	"github.com/quaisuite/quaiwallet/coinselect"
	"github.com/quaisuite/quaiwallet/pkg/qiunit"
	"github.com/quaisuite/quaiwallet/qitx"
	"github.com/quaisuite/quaiwallet/qiutxo"
)

var (
	// ErrMissingChain is returned when a wallet is constructed without a
	// chain source.
	ErrMissingChain = errors.New("missing chain source")

	// ErrMissingSigner is returned when a wallet is constructed without
	// a signer.
	ErrMissingSigner = errors.New("missing signer")

	// ErrMissingAddress is returned when a wallet is constructed without
	// its own address.
	ErrMissingAddress = errors.New("missing wallet address")

	// ErrNoSpendableUTXOs is returned when every owned output is still
	// time locked.
	ErrNoSpendableUTXOs = errors.New("no spendable utxos")
)

// ChainSource is the chain query surface the wallet consumes. It matches
// the aggregate provider exactly, so a *chain.FallbackClient is the normal
// implementation, but any single backend wrapper satisfies it too.
type ChainSource interface {
	// BlockNumber returns the current chain height.
	BlockNumber(ctx context.Context) (uint64, error)

	// BalanceAt returns the latest balance of the given address.
	BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error)

	// OutpointsByAddress returns the spendable Qi outputs owned by the
	// given address.
	OutpointsByAddress(ctx context.Context, addr common.Address) (
		[]*qiutxo.UTXO, error)

	// SendRawTransaction broadcasts an encoded transaction and returns
	// its hash.
	SendRawTransaction(ctx context.Context, encoded []byte) (common.Hash,
		error)
}

// A compile-time check to ensure that FallbackClient satisfies the
// ChainSource interface.
var _ ChainSource = (*chain.FallbackClient)(nil)

// TxPublisher provides an interface for publishing transactions.
type TxPublisher interface {
	// Broadcast signs the transaction if needed, encodes it, and
	// submits it to the network.
	Broadcast(ctx context.Context, tx *qitx.Tx) (common.Hash, error)
}

// A compile time check to ensure that Wallet implements the interface.
var _ TxPublisher = (*Wallet)(nil)

// Config bundles the collaborators a Wallet needs. Chain, Signer and
// Address are required; the rest defaults.
type Config struct {
	// Chain provides chain state, normally a *chain.FallbackClient.
	Chain ChainSource

	// Signer authorizes Qi spends.
	Signer Signer

	// Address is the wallet's own Qi address.
	Address common.Address

	// ChangeAddress receives selection surplus. Defaults to Address;
	// deployments that rotate change addresses set it per send.
	ChangeAddress common.Address

	// ChainID is the network's chain id, committed to by every
	// signature.
	ChainID *big.Int

	// Encoder takes transactions to their wire form. Defaults to the
	// RLP codec.
	Encoder qitx.Encoder

	// Selector picks coins for each send. Defaults to
	// coinselect.FewestCoinSelection.
	Selector coinselect.Selector
}

// validate checks the required config options are set and applies defaults.
func (cfg *Config) validate() error {
	if cfg.Chain == nil {
		return ErrMissingChain
	}
	if cfg.Signer == nil {
		return ErrMissingSigner
	}
	if cfg.Address == (common.Address{}) {
		return ErrMissingAddress
	}
	if cfg.ChangeAddress == (common.Address{}) {
		cfg.ChangeAddress = cfg.Address
	}
	if cfg.ChainID == nil {
		cfg.ChainID = big.NewInt(1)
	}
	if cfg.Encoder == nil {
		cfg.Encoder = &qitx.RLPEncoder{}
	}
	if cfg.Selector == nil {
		cfg.Selector = coinselect.FewestCoinSelection
	}

	return nil
}

// Wallet is a Qi spending wallet over an aggregated chain view. It holds no
// persistent state; every operation reads fresh chain state through the
// configured ChainSource.
type Wallet struct {
	cfg *Config
}

// New validates the config and returns a ready wallet.
func New(cfg *Config) (*Wallet, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &Wallet{cfg: cfg}, nil
}

// Balance returns the wallet's confirmed balance in qits.
func (w *Wallet) Balance(ctx context.Context) (*big.Int, error) {
	return w.cfg.Chain.BalanceAt(ctx, w.cfg.Address)
}

// SpendableUTXOs returns the wallet's outputs whose locks have expired at
// the current height.
func (w *Wallet) SpendableUTXOs(ctx context.Context) ([]*qiutxo.UTXO, error) {
	utxos, err := w.cfg.Chain.OutpointsByAddress(ctx, w.cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("querying outpoints: %w", err)
	}
	if len(utxos) == 0 {
		return nil, nil
	}

	height, err := w.cfg.Chain.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("querying height: %w", err)
	}

	h := new(big.Int).SetUint64(height)
	spendable := make([]*qiutxo.UTXO, 0, len(utxos))
	for _, u := range utxos {
		if u.SpendableAt(h) {
			spendable = append(spendable, u)
		}
	}

	return spendable, nil
}

// SendQi pays amount qits to the given address: it selects coins, builds
// and signs the transaction, and broadcasts it through the chain source.
// The returned hash is the network-accepted transaction hash.
func (w *Wallet) SendQi(ctx context.Context, to common.Address,
	amount *big.Int) (common.Hash, error) {

	utxos, err := w.SpendableUTXOs(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	if len(utxos) == 0 {
		return common.Hash{}, ErrNoSpendableUTXOs
	}

	target := &qiutxo.SpendTarget{Address: to, Value: amount}
	selection, err := w.cfg.Selector.PerformSelection(
		utxos, target, w.cfg.ChangeAddress,
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("selecting coins: %w", err)
	}

	tx, err := w.BuildTx(selection)
	if err != nil {
		return common.Hash{}, err
	}

	return w.Broadcast(ctx, tx)
}

// BuildTx turns a coin selection into an unsigned Qi transaction. Each
// value-shaped output from the selection is expanded into protocol
// denominations, largest first.
func (w *Wallet) BuildTx(selection *coinselect.SelectionResult) (*qitx.Tx,
	error) {

	tx := &qitx.Tx{
		ChainID: new(big.Int).Set(w.cfg.ChainID),
	}

	pubKey := w.cfg.Signer.PubKey()
	for _, u := range selection.Inputs {
		tx.TxIn = append(tx.TxIn, qitx.TxIn{
			PreviousOutPoint: u.OutPoint,
			PubKey:           pubKey,
		})
	}

	outputs := append([]coinselect.Output{}, selection.SpendOutputs...)
	outputs = append(outputs, selection.ChangeOutputs...)
	for _, out := range outputs {
		denoms, err := qiunit.Denominate(out.Value)
		if err != nil {
			return nil, fmt.Errorf("denominating output for %s: %w",
				out.Address, err)
		}
		for _, d := range denoms {
			tx.TxOut = append(tx.TxOut, qitx.TxOut{
				Address:      out.Address,
				Denomination: d,
			})
		}
	}

	if err := tx.SanityCheck(); err != nil {
		return nil, err
	}

	return tx, nil
}

// Broadcast signs the transaction if it carries no signature, encodes it,
// and submits it through the chain source.
func (w *Wallet) Broadcast(ctx context.Context, tx *qitx.Tx) (common.Hash,
	error) {

	if len(tx.Signature) == 0 {
		digest, err := tx.SigningHash()
		if err != nil {
			return common.Hash{}, err
		}
		sig, err := w.cfg.Signer.SignHash(digest)
		if err != nil {
			return common.Hash{}, fmt.Errorf("signing: %w", err)
		}
		tx.Signature = sig
	}

	encoded, err := w.cfg.Encoder.EncodeTx(tx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("encoding: %w", err)
	}

	log.Tracef("Broadcasting qi tx: %s", spew.Sdump(tx))

	hash, err := w.cfg.Chain.SendRawTransaction(ctx, encoded)
	if err != nil {
		return common.Hash{}, err
	}

	log.Infof("Broadcast qi tx %s (%d inputs, %d outputs)", hash,
		len(tx.TxIn), len(tx.TxOut))

	return hash, nil
}
