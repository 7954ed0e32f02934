package blockchain

import (
	"context"

	"github.com/bitcoin-sv/chaincore/model"
	"github.com/bitcoin-sv/chaincore/stores/blockchain/options"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Push(ctx context.Context, block *model.Block, height uint32, opts ...options.PushBlockOption) error {
	args := m.Called(ctx, block, height)
	return args.Error(0)
}

func (m *MockStore) Pop(ctx context.Context) (*model.Block, error) {
	args := m.Called(ctx)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*model.Block), args.Error(1)
}

func (m *MockStore) GetLastHeight(ctx context.Context) (uint32, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint32), args.Error(1)
}

func (m *MockStore) GetHeaderByHeight(ctx context.Context, height uint32) (*model.BlockHeader, error) {
	args := m.Called(ctx, height)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*model.BlockHeader), args.Error(1)
}

func (m *MockStore) GetHeaderByHash(ctx context.Context, hash *chainhash.Hash) (*model.BlockHeader, uint32, error) {
	args := m.Called(ctx, hash)

	if args.Get(0) == nil {
		return nil, args.Get(1).(uint32), args.Error(2)
	}

	return args.Get(0).(*model.BlockHeader), args.Get(1).(uint32), args.Error(2)
}

func (m *MockStore) GetBlockHeight(ctx context.Context, hash *chainhash.Hash) (uint32, error) {
	args := m.Called(ctx, hash)
	return args.Get(0).(uint32), args.Error(1)
}

func (m *MockStore) GetBlockTxHashes(ctx context.Context, height uint32) ([]chainhash.Hash, error) {
	args := m.Called(ctx, height)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]chainhash.Hash), args.Error(1)
}

func (m *MockStore) GetBlock(ctx context.Context, height uint32) (*model.Block, error) {
	args := m.Called(ctx, height)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*model.Block), args.Error(1)
}

func (m *MockStore) GetTransaction(ctx context.Context, hash *chainhash.Hash) (*bt.Tx, model.TxPosition, error) {
	args := m.Called(ctx, hash)

	if args.Get(0) == nil {
		return nil, args.Get(1).(model.TxPosition), args.Error(2)
	}

	return args.Get(0).(*bt.Tx), args.Get(1).(model.TxPosition), args.Error(2)
}

func (m *MockStore) GetOutput(ctx context.Context, outpoint model.OutPoint) (*bt.Output, model.TxPosition, error) {
	args := m.Called(ctx, outpoint)

	if args.Get(0) == nil {
		return nil, args.Get(1).(model.TxPosition), args.Error(2)
	}

	return args.Get(0).(*bt.Output), args.Get(1).(model.TxPosition), args.Error(2)
}

func (m *MockStore) GetSpend(ctx context.Context, outpoint model.OutPoint) (model.InPoint, uint32, error) {
	args := m.Called(ctx, outpoint)
	return args.Get(0).(model.InPoint), args.Get(1).(uint32), args.Error(2)
}

func (m *MockStore) GetHistory(ctx context.Context, addressHash []byte, limit int, fromHeight uint32) ([]model.HistoryRow, error) {
	args := m.Called(ctx, addressHash, limit, fromHeight)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]model.HistoryRow), args.Error(1)
}

func (m *MockStore) GetStealth(ctx context.Context, prefix uint32, bits uint8, fromHeight uint32) ([]model.StealthRow, error) {
	args := m.Called(ctx, prefix, bits, fromHeight)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]model.StealthRow), args.Error(1)
}

func (m *MockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
