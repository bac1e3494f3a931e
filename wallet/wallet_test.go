// Copyright (c) 2025 The quaisuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/quaisuite/quaiwallet/coinselect"
	"github.com/quaisuite/quaiwallet/qitx"
	"github.com/quaisuite/quaiwallet/qiutxo"
)

var (
	walletAddr = common.HexToAddress(
		"0x0011223344556677889900112233445566778899",
	)
	payeeAddr = common.HexToAddress(
		"0x00aabbccddeeff00112233445566778899aabbcc",
	)
	testHash = common.HexToHash("0x52c00e1b363e2d968b1a82b025b12be6" +
		"38c2a2b77fde0f3bcff52a55e38b9e34")
)

// newTestWallet builds a wallet over the given mock chain with a fresh
// random signing key.
func newTestWallet(t *testing.T, chainMock *mockChainSource) *Wallet {
	t.Helper()

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	signer, err := NewSchnorrSigner(priv)
	require.NoError(t, err)

	w, err := New(&Config{
		Chain:   chainMock,
		Signer:  signer,
		Address: walletAddr,
		ChainID: big.NewInt(9000),
	})
	require.NoError(t, err)

	return w
}

// utxoAt builds a validated test coin.
func utxoAt(t *testing.T, index uint16, denom qiutxo.Denomination,
	lock *big.Int) *qiutxo.UTXO {

	t.Helper()

	u, err := qiutxo.NewUTXO(
		qiutxo.OutPoint{TxHash: testHash, Index: index},
		walletAddr, denom, lock,
	)
	require.NoError(t, err)

	return u
}

// TestConfigValidate checks required options and defaulting.
func TestConfigValidate(t *testing.T) {
	t.Parallel()

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	signer, err := NewSchnorrSigner(priv)
	require.NoError(t, err)

	_, err = New(&Config{Signer: signer, Address: walletAddr})
	require.ErrorIs(t, err, ErrMissingChain)

	_, err = New(&Config{Chain: &mockChainSource{}, Address: walletAddr})
	require.ErrorIs(t, err, ErrMissingSigner)

	_, err = New(&Config{Chain: &mockChainSource{}, Signer: signer})
	require.ErrorIs(t, err, ErrMissingAddress)

	w, err := New(&Config{
		Chain:   &mockChainSource{},
		Signer:  signer,
		Address: walletAddr,
	})
	require.NoError(t, err)
	require.Equal(t, walletAddr, w.cfg.ChangeAddress)
	require.NotNil(t, w.cfg.Encoder)
	require.NotNil(t, w.cfg.Selector)
}

// TestBalance checks the balance passthrough.
func TestBalance(t *testing.T) {
	t.Parallel()

	chainMock := &mockChainSource{}
	defer chainMock.AssertExpectations(t)

	chainMock.On("BalanceAt", mock.Anything, walletAddr).Return(
		big.NewInt(12_345), nil,
	)

	w := newTestWallet(t, chainMock)
	bal, err := w.Balance(context.Background())
	require.NoError(t, err)
	require.Equal(t, big.NewInt(12_345), bal)
}

// TestSpendableUTXOs checks the lock screen against the current height.
func TestSpendableUTXOs(t *testing.T) {
	t.Parallel()

	chainMock := &mockChainSource{}
	defer chainMock.AssertExpectations(t)

	free := utxoAt(t, 0, 4, nil)
	matured := utxoAt(t, 1, 5, big.NewInt(100))
	locked := utxoAt(t, 2, 6, big.NewInt(101))

	chainMock.On("OutpointsByAddress", mock.Anything, walletAddr).Return(
		[]*qiutxo.UTXO{free, matured, locked}, nil,
	)
	chainMock.On("BlockNumber", mock.Anything).Return(uint64(100), nil)

	w := newTestWallet(t, chainMock)
	spendable, err := w.SpendableUTXOs(context.Background())
	require.NoError(t, err)
	require.Equal(t, []*qiutxo.UTXO{free, matured}, spendable)
}

// TestSpendableUTXOsEmpty checks that an empty listing skips the height
// query entirely.
func TestSpendableUTXOsEmpty(t *testing.T) {
	t.Parallel()

	chainMock := &mockChainSource{}
	defer chainMock.AssertExpectations(t)

	chainMock.On("OutpointsByAddress", mock.Anything, walletAddr).Return(
		[]*qiutxo.UTXO{}, nil,
	)

	w := newTestWallet(t, chainMock)
	spendable, err := w.SpendableUTXOs(context.Background())
	require.NoError(t, err)
	require.Empty(t, spendable)

	chainMock.AssertNotCalled(t, "BlockNumber", mock.Anything)
}

// TestBuildTx checks selection-to-transaction assembly, including the
// expansion of value-shaped outputs into protocol denominations.
func TestBuildTx(t *testing.T) {
	t.Parallel()

	w := newTestWallet(t, &mockChainSource{})

	selection := &coinselect.SelectionResult{
		Inputs: []*qiutxo.UTXO{
			utxoAt(t, 0, 6, nil), // 500
			utxoAt(t, 1, 3, nil), // 50
		},
		SpendOutputs: []coinselect.Output{{
			Address: payeeAddr,
			Value:   big.NewInt(350), // 250 + 100
		}},
		ChangeOutputs: []coinselect.Output{{
			Address: walletAddr,
			Value:   big.NewInt(200), // 2 x 100
		}},
	}

	tx, err := w.BuildTx(selection)
	require.NoError(t, err)

	require.Equal(t, big.NewInt(9000), tx.ChainID)
	require.Len(t, tx.TxIn, 2)
	for i, in := range tx.TxIn {
		require.Equal(t, w.cfg.Signer.PubKey(), in.PubKey)
		require.EqualValues(t, i, in.PreviousOutPoint.Index)
	}

	// 350 expands to [250, 100] for the payee, 200 to [100, 100] change.
	require.Len(t, tx.TxOut, 4)
	require.Equal(t, payeeAddr, tx.TxOut[0].Address)
	require.EqualValues(t, 5, tx.TxOut[0].Denomination)
	require.Equal(t, payeeAddr, tx.TxOut[1].Address)
	require.EqualValues(t, 4, tx.TxOut[1].Denomination)
	require.Equal(t, walletAddr, tx.TxOut[2].Address)
	require.EqualValues(t, 4, tx.TxOut[2].Denomination)
	require.Equal(t, walletAddr, tx.TxOut[3].Address)
	require.EqualValues(t, 4, tx.TxOut[3].Denomination)

	// The assembled transaction is unsigned.
	require.Empty(t, tx.Signature)
}

// TestSendQi walks the whole send path: listing, selection, signing,
// encoding and broadcast.
func TestSendQi(t *testing.T) {
	t.Parallel()

	chainMock := &mockChainSource{}
	defer chainMock.AssertExpectations(t)

	chainMock.On("OutpointsByAddress", mock.Anything, walletAddr).Return(
		[]*qiutxo.UTXO{
			utxoAt(t, 0, 4, nil), // 100
			utxoAt(t, 1, 6, nil), // 500
		}, nil,
	)
	chainMock.On("BlockNumber", mock.Anything).Return(uint64(100), nil)

	var wire []byte
	chainMock.On("SendRawTransaction", mock.Anything, mock.Anything).Run(
		func(args mock.Arguments) {
			wire = args.Get(1).([]byte)
		},
	).Return(testHash, nil)

	w := newTestWallet(t, chainMock)

	hash, err := w.SendQi(
		context.Background(), payeeAddr, big.NewInt(300),
	)
	require.NoError(t, err)
	require.Equal(t, testHash, hash)

	// The broadcast bytes decode back into the expected transaction:
	// the 500 coin in, 300 out to the payee as [250, 50] and 200 change
	// as [100, 100], carrying a signature that verifies.
	tx, err := (&qitx.RLPEncoder{}).DecodeTx(wire)
	require.NoError(t, err)

	require.Len(t, tx.TxIn, 1)
	require.EqualValues(t, 1, tx.TxIn[0].PreviousOutPoint.Index)

	require.Len(t, tx.TxOut, 4)
	require.EqualValues(t, 5, tx.TxOut[0].Denomination)
	require.EqualValues(t, 3, tx.TxOut[1].Denomination)
	require.EqualValues(t, 4, tx.TxOut[2].Denomination)
	require.EqualValues(t, 4, tx.TxOut[3].Denomination)

	require.NoError(t, tx.VerifySignature(w.cfg.Signer.PubKey()))
}

// TestSendQiNoCoins checks the error paths around coin availability.
func TestSendQiNoCoins(t *testing.T) {
	t.Parallel()

	t.Run("no coins at all", func(t *testing.T) {
		t.Parallel()

		chainMock := &mockChainSource{}
		chainMock.On(
			"OutpointsByAddress", mock.Anything, walletAddr,
		).Return([]*qiutxo.UTXO{}, nil)

		w := newTestWallet(t, chainMock)
		_, err := w.SendQi(
			context.Background(), payeeAddr, big.NewInt(100),
		)
		require.ErrorIs(t, err, ErrNoSpendableUTXOs)
	})

	t.Run("all coins locked", func(t *testing.T) {
		t.Parallel()

		chainMock := &mockChainSource{}
		chainMock.On(
			"OutpointsByAddress", mock.Anything, walletAddr,
		).Return([]*qiutxo.UTXO{
			utxoAt(t, 0, 4, big.NewInt(1_000)),
		}, nil)
		chainMock.On("BlockNumber", mock.Anything).Return(
			uint64(100), nil,
		)

		w := newTestWallet(t, chainMock)
		_, err := w.SendQi(
			context.Background(), payeeAddr, big.NewInt(100),
		)
		require.ErrorIs(t, err, ErrNoSpendableUTXOs)
	})

	t.Run("insufficient funds", func(t *testing.T) {
		t.Parallel()

		chainMock := &mockChainSource{}
		chainMock.On(
			"OutpointsByAddress", mock.Anything, walletAddr,
		).Return([]*qiutxo.UTXO{utxoAt(t, 0, 4, nil)}, nil)
		chainMock.On("BlockNumber", mock.Anything).Return(
			uint64(100), nil,
		)

		w := newTestWallet(t, chainMock)
		_, err := w.SendQi(
			context.Background(), payeeAddr, big.NewInt(200),
		)
		require.ErrorIs(t, err, coinselect.ErrInsufficientFunds)
	})
}

// TestBroadcastPropagatesChainErr checks that a broadcast failure surfaces
// unchanged.
func TestBroadcastPropagatesChainErr(t *testing.T) {
	t.Parallel()

	rejected := errors.New("transaction rejected")

	chainMock := &mockChainSource{}
	chainMock.On("OutpointsByAddress", mock.Anything, walletAddr).Return(
		[]*qiutxo.UTXO{utxoAt(t, 0, 4, nil)}, nil,
	)
	chainMock.On("BlockNumber", mock.Anything).Return(uint64(100), nil)
	chainMock.On("SendRawTransaction", mock.Anything, mock.Anything).Return(
		common.Hash{}, rejected,
	)

	w := newTestWallet(t, chainMock)
	_, err := w.SendQi(context.Background(), payeeAddr, big.NewInt(100))
	require.ErrorIs(t, err, rejected)
}
