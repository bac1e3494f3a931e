// Copyright (c) 2025 The quaisuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package qitx defines the structured form of a Qi (UTXO-ledger)
// transaction, its signing digest, and the codec boundary used to take it to
// and from the wire.
package qitx

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/quaisuite/quaiwallet/qiutxo"
)

var (
	// ErrNoInputs is returned when a transaction is built without inputs.
	ErrNoInputs = errors.New("qi tx has no inputs")

	// ErrNoOutputs is returned when a transaction is built without
	// outputs.
	ErrNoOutputs = errors.New("qi tx has no outputs")

	// ErrTooManyOutputs is returned when a transaction would exceed the
	// protocol's output index range.
	ErrTooManyOutputs = errors.New("qi tx exceeds maximum output count")

	// ErrMissingSignature is returned when a wire encoding is requested
	// for an unsigned transaction.
	ErrMissingSignature = errors.New("qi tx is not signed")
)

// TxIn spends one previous Qi output. PubKey is the compressed public key
// whose schnorr signature authorizes the spend.
type TxIn struct {
	PreviousOutPoint qiutxo.OutPoint
	PubKey           []byte
}

// TxOut creates one Qi output of a fixed denomination.
type TxOut struct {
	// Address is the new coin's owner.
	Address common.Address

	// Denomination is the coin size index.
	Denomination qiutxo.Denomination

	// Lock, if non-zero, is the height before which the output cannot be
	// spent.
	Lock *big.Int
}

// Tx is a structured Qi transaction. A single schnorr signature covers the
// whole transaction; when inputs are held by more than one key the signer is
// expected to hand back an aggregated signature.
type Tx struct {
	ChainID   *big.Int
	TxIn      []TxIn
	TxOut     []TxOut
	Signature []byte
}

// SanityCheck validates the structural invariants the protocol imposes on
// every Qi transaction, signed or not.
func (tx *Tx) SanityCheck() error {
	if len(tx.TxIn) == 0 {
		return ErrNoInputs
	}
	if len(tx.TxOut) == 0 {
		return ErrNoOutputs
	}
	if len(tx.TxOut) > qiutxo.MaxOutputIndex {
		return ErrTooManyOutputs
	}
	for i, out := range tx.TxOut {
		if !out.Denomination.Valid() {
			return fmt.Errorf("output %d: %w", i,
				qiutxo.ErrInvalidDenomination)
		}
	}

	return nil
}

// sigPayload is the exact structure hashed for signing. The signature itself
// is excluded.
type sigPayload struct {
	ChainID *big.Int
	TxIn    []TxIn
	TxOut   []TxOut
}

// SigningHash returns the keccak256 digest a signer must commit to.
func (tx *Tx) SigningHash() (common.Hash, error) {
	enc, err := rlp.EncodeToBytes(&sigPayload{
		ChainID: tx.ChainID,
		TxIn:    tx.TxIn,
		TxOut:   tx.TxOut,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("encoding signing payload: %w",
			err)
	}

	return crypto.Keccak256Hash(enc), nil
}

// VerifySignature checks the attached schnorr signature against the given
// public key, accepting either the 33-byte compressed or the 32-byte x-only
// serialization. BIP-340 verification only ever uses the x coordinate.
func (tx *Tx) VerifySignature(pubKey []byte) error {
	if len(tx.Signature) == 0 {
		return ErrMissingSignature
	}

	sig, err := schnorr.ParseSignature(tx.Signature)
	if err != nil {
		return fmt.Errorf("parsing signature: %w", err)
	}

	var key *btcec.PublicKey
	if len(pubKey) == btcec.PubKeyBytesLenCompressed {
		key, err = btcec.ParsePubKey(pubKey)
	} else {
		key, err = schnorr.ParsePubKey(pubKey)
	}
	if err != nil {
		return fmt.Errorf("parsing public key: %w", err)
	}

	digest, err := tx.SigningHash()
	if err != nil {
		return err
	}
	if !sig.Verify(digest[:], key) {
		return errors.New("invalid qi tx signature")
	}

	return nil
}

// Encoder converts structured Qi transactions to and from their wire bytes.
// The protobuf codec used by production nodes lives behind this interface;
// the package default is self-contained RLP, which round-trips exactly and
// is sufficient for nodes speaking the raw-transaction RPC surface.
type Encoder interface {
	// EncodeTx serializes a signed transaction for broadcast.
	EncodeTx(tx *Tx) ([]byte, error)

	// DecodeTx parses wire bytes back into a structured transaction.
	DecodeTx(data []byte) (*Tx, error)
}

// RLPEncoder is the default Encoder implementation.
type RLPEncoder struct{}

// A compile-time check to ensure RLPEncoder satisfies the Encoder interface.
var _ Encoder = (*RLPEncoder)(nil)

// EncodeTx serializes the transaction, refusing unsigned transactions.
func (*RLPEncoder) EncodeTx(tx *Tx) ([]byte, error) {
	if err := tx.SanityCheck(); err != nil {
		return nil, err
	}
	if len(tx.Signature) == 0 {
		return nil, ErrMissingSignature
	}

	return rlp.EncodeToBytes(tx)
}

// DecodeTx parses wire bytes produced by EncodeTx.
func (*RLPEncoder) DecodeTx(data []byte) (*Tx, error) {
	tx := new(Tx)
	if err := rlp.DecodeBytes(data, tx); err != nil {
		return nil, fmt.Errorf("decoding qi tx: %w", err)
	}

	return tx, nil
}
