// Copyright (c) 2025 The quaisuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/ethereum/go-ethereum/common"
)

// Signer produces the schnorr signature that authorizes a Qi spend. The key
// management behind it (single key, hardware, or a musig2 aggregation
// across cosigners) is the implementation's concern.
type Signer interface {
	// SignHash signs the transaction digest.
	SignHash(digest common.Hash) ([]byte, error)

	// PubKey returns the compressed serialization of the signing public
	// key, as embedded in each transaction input.
	PubKey() []byte
}

// SchnorrSigner signs with a single secp256k1 private key.
type SchnorrSigner struct {
	priv *btcec.PrivateKey
}

// A compile-time check to ensure that SchnorrSigner satisfies the Signer
// interface.
var _ Signer = (*SchnorrSigner)(nil)

// NewSchnorrSigner wraps the given private key.
func NewSchnorrSigner(priv *btcec.PrivateKey) (*SchnorrSigner, error) {
	if priv == nil {
		return nil, errors.New("nil private key")
	}

	return &SchnorrSigner{priv: priv}, nil
}

// SignHash signs the digest with a BIP-340 schnorr signature.
func (s *SchnorrSigner) SignHash(digest common.Hash) ([]byte, error) {
	sig, err := schnorr.Sign(s.priv, digest[:])
	if err != nil {
		return nil, err
	}

	return sig.Serialize(), nil
}

// PubKey returns the compressed public key.
func (s *SchnorrSigner) PubKey() []byte {
	return s.priv.PubKey().SerializeCompressed()
}
