// Copyright (c) 2025 The quaisuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/mock"

	"github.com/quaisuite/quaiwallet/qiutxo"
)

// A compile-time check to ensure mockChainSource satisfies the ChainSource
// interface.
var _ ChainSource = (*mockChainSource)(nil)

// mockChainSource is a mock implementation of the ChainSource interface.
type mockChainSource struct {
	mock.Mock
}

func (m *mockChainSource) BlockNumber(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)

	return args.Get(0).(uint64), args.Error(1)
}

func (m *mockChainSource) BalanceAt(ctx context.Context,
	addr common.Address) (*big.Int, error) {

	args := m.Called(ctx, addr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *mockChainSource) OutpointsByAddress(ctx context.Context,
	addr common.Address) ([]*qiutxo.UTXO, error) {

	args := m.Called(ctx, addr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*qiutxo.UTXO), args.Error(1)
}

func (m *mockChainSource) SendRawTransaction(ctx context.Context,
	encoded []byte) (common.Hash, error) {

	args := m.Called(ctx, encoded)

	return args.Get(0).(common.Hash), args.Error(1)
}
