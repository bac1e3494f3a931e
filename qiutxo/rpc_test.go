// Copyright (c) 2025 The quaisuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package qiutxo

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"
)

// TestFromRPC checks wire record normalization.
func TestFromRPC(t *testing.T) {
	t.Parallel()

	txHash := common.HexToHash("0x52c00e1b363e2d968b1a82b025b12be6" +
		"38c2a2b77fde0f3bcff52a55e38b9e34")

	t.Run("plain record", func(t *testing.T) {
		t.Parallel()

		u, err := FromRPC(&RPCOutPoint{
			TxHash:       txHash,
			Index:        3,
			Denomination: 5,
		}, testAddr)
		require.NoError(t, err)

		require.Equal(t, txHash, u.OutPoint.TxHash)
		require.EqualValues(t, 3, u.OutPoint.Index)
		require.Equal(t, testAddr, u.Address)
		require.Equal(t, big.NewInt(250), u.Value())
		require.Nil(t, u.Lock)
	})

	t.Run("record address wins over queried address", func(t *testing.T) {
		t.Parallel()

		other := common.HexToAddress(
			"0x00aabbccddeeff00112233445566778899aabbcc",
		)
		u, err := FromRPC(&RPCOutPoint{
			TxHash:       txHash,
			Denomination: 0,
			Address:      &other,
		}, testAddr)
		require.NoError(t, err)
		require.Equal(t, other, u.Address)
	})

	t.Run("locked record", func(t *testing.T) {
		t.Parallel()

		lock := hexutil.Big(*big.NewInt(4096))
		u, err := FromRPC(&RPCOutPoint{
			TxHash:       txHash,
			Denomination: 1,
			Lock:         &lock,
		}, testAddr)
		require.NoError(t, err)
		require.Equal(t, big.NewInt(4096), u.Lock)
	})

	t.Run("denomination out of table", func(t *testing.T) {
		t.Parallel()

		_, err := FromRPC(&RPCOutPoint{
			TxHash:       txHash,
			Denomination: MaxDenomination + 1,
		}, testAddr)
		require.ErrorIs(t, err, ErrInvalidDenomination)
	})

	t.Run("index out of range", func(t *testing.T) {
		t.Parallel()

		_, err := FromRPC(&RPCOutPoint{
			TxHash:       txHash,
			Index:        MaxOutputIndex + 1,
			Denomination: 0,
		}, testAddr)
		require.Error(t, err)
	})
}

// TestFromRPCList checks that one malformed record fails the whole batch.
func TestFromRPCList(t *testing.T) {
	t.Parallel()

	good := &RPCOutPoint{
		TxHash:       common.HexToHash("0x01"),
		Denomination: 2,
	}
	bad := &RPCOutPoint{
		TxHash:       common.HexToHash("0x02"),
		Denomination: MaxDenomination + 1,
	}

	utxos, err := FromRPCList([]*RPCOutPoint{good}, testAddr)
	require.NoError(t, err)
	require.Len(t, utxos, 1)

	_, err = FromRPCList([]*RPCOutPoint{good, bad}, testAddr)
	require.ErrorIs(t, err, ErrInvalidDenomination)

	utxos, err = FromRPCList(nil, testAddr)
	require.NoError(t, err)
	require.Empty(t, utxos)
}

// TestRPCOutPointJSON checks the wire shape nodes actually emit decodes
// cleanly.
func TestRPCOutPointJSON(t *testing.T) {
	t.Parallel()

	payload := `{
		"txHash": "0x52c00e1b363e2d968b1a82b025b12be638c2a2b77fde0f3bcff52a55e38b9e34",
		"index": "0xa",
		"denomination": "0x7",
		"lock": "0x100"
	}`

	var rec RPCOutPoint
	require.NoError(t, json.Unmarshal([]byte(payload), &rec))

	u, err := FromRPC(&rec, testAddr)
	require.NoError(t, err)
	require.EqualValues(t, 10, u.OutPoint.Index)
	require.Equal(t, big.NewInt(1_000), u.Value())
	require.Equal(t, big.NewInt(256), u.Lock)
}
