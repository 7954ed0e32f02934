package model_test

import (
	"encoding/hex"
	"math/big"
	"testing"
	"time"

	"github.com/bitcoin-sv/chaincore/errors"
	"github.com/bitcoin-sv/chaincore/model"
	"github.com/bitcoin-sv/chaincore/util/test"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/go-chaincfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const block1Hash = "00000000839a8e6886ab5951d76f411475428afc90947ee320161bbf18eb6048"

func block1State() *model.ChainState {
	return &model.ChainState{
		Height:           1,
		Forks:            model.ForksAt(&chaincfg.MainNetParams, 1, 1231469665),
		MedianTimePast:   1231006505,
		BlockTime:        1231469665,
		WorkRequired:     model.NewNBitFromUint32(0x1d00ffff),
		MinimumVersion:   1,
		CoinbaseMaturity: 100,
		SubsidyInterval:  210000,
		PowLimit:         chaincfg.MainNetParams.PowLimit,
	}
}

func TestNewBlockFromBytes(t *testing.T) {
	block, err := model.NewBlockFromString(test.MainnetBlock1Hex)
	require.NoError(t, err)

	assert.Equal(t, block1Hash, block.Hash().String())
	assert.Equal(t, chaincfg.MainNetParams.GenesisHash.String(), block.Header.HashPrevBlock.String())
	assert.Equal(t, uint32(1231469665), block.Header.Timestamp)
	assert.Equal(t, "1d00ffff", block.Header.Bits.String())
	require.Len(t, block.Transactions, 1)
	assert.True(t, block.Transactions[0].IsCoinbase())
	assert.Equal(t, test.MainnetBlock1Hex, hex.EncodeToString(block.Bytes()))
	assert.Equal(t, uint64(len(test.MainnetBlock1Hex)/2), block.Size())
	assert.Equal(t, uint64(0), block.TotalInputs(false))
	assert.Equal(t, uint64(1), block.TotalInputs(true))

	t.Run("truncated", func(t *testing.T) {
		_, err := model.NewBlockFromString(test.MainnetBlock1Hex[:200])
		require.Error(t, err)
	})

	t.Run("short", func(t *testing.T) {
		_, err := model.NewBlockFromBytes(make([]byte, 10))
		require.True(t, errors.Is(err, errors.ErrInvalidArgument))
	})
}

func TestGenesisBlock(t *testing.T) {
	for _, params := range []*chaincfg.Params{&chaincfg.MainNetParams, &chaincfg.RegressionNetParams} {
		block, err := model.GenesisBlock(params)
		require.NoError(t, err)

		assert.Equal(t, params.GenesisHash.String(), block.Hash().String(), params.Name)
		require.Len(t, block.Transactions, 1)
	}
}

func TestBlock_Check(t *testing.T) {
	now := time.Unix(1231469665, 0)
	powLimit := chaincfg.MainNetParams.PowLimit

	t.Run("mainnet blocks", func(t *testing.T) {
		for _, block := range test.MainnetBlocks(t) {
			require.NoError(t, block.Check(powLimit, 1_000_000, now, 2*time.Hour))
		}
	})

	t.Run("merkle mismatch", func(t *testing.T) {
		block := test.MainnetBlocks(t)[0]
		block.Header.HashMerkleRoot = &chainhash.Hash{}

		err := block.Check(powLimit, 1_000_000, now, 2*time.Hour)
		require.True(t, errors.Is(err, errors.ErrBlockMerkleMismatch))
	})

	t.Run("future timestamp", func(t *testing.T) {
		block := test.MainnetBlocks(t)[0]

		err := block.Check(powLimit, 1_000_000, now.Add(-3*time.Hour), 2*time.Hour)
		require.True(t, errors.Is(err, errors.ErrBlockTimestamp))
	})

	t.Run("proof of work", func(t *testing.T) {
		block := test.MainnetBlocks(t)[0]

		err := block.Check(big.NewInt(1), 1_000_000, now, 2*time.Hour)
		require.True(t, errors.Is(err, errors.ErrBlockPOW))
	})

	t.Run("oversized", func(t *testing.T) {
		block := test.MainnetBlocks(t)[0]

		err := block.Check(powLimit, 100, now, 2*time.Hour)
		require.True(t, errors.Is(err, errors.ErrBlockInvalid))
	})

	t.Run("no coinbase", func(t *testing.T) {
		block := test.MainnetBlocks(t)[0]
		block.Transactions = nil

		err := block.Check(powLimit, 1_000_000, now, 2*time.Hour)
		require.True(t, errors.Is(err, errors.ErrBlockInvalid))
	})
}

func TestBlock_Accept(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		block := test.MainnetBlocks(t)[0]
		require.NoError(t, block.Accept(block1State()))
	})

	t.Run("checkpoint mismatch", func(t *testing.T) {
		state := block1State()
		state.CheckpointHash = &chainhash.Hash{1}

		err := test.MainnetBlocks(t)[0].Accept(state)
		require.True(t, errors.Is(err, errors.ErrBlockCheckpoint))
	})

	t.Run("obsolete version", func(t *testing.T) {
		state := block1State()
		state.MinimumVersion = 2

		err := test.MainnetBlocks(t)[0].Accept(state)
		require.True(t, errors.Is(err, errors.ErrBlockVersion))
	})

	t.Run("timestamp not after median time past", func(t *testing.T) {
		state := block1State()
		state.MedianTimePast = 1231469665

		err := test.MainnetBlocks(t)[0].Accept(state)
		require.True(t, errors.Is(err, errors.ErrBlockTimestamp))
	})

	t.Run("bits", func(t *testing.T) {
		state := block1State()
		state.WorkRequired = model.NewNBitFromUint32(0x1c00ffff)

		err := test.MainnetBlocks(t)[0].Accept(state)
		require.True(t, errors.Is(err, errors.ErrBlockBits))
	})

	t.Run("coinbase claim", func(t *testing.T) {
		state := block1State()
		state.SubsidyInterval = 1

		err := test.MainnetBlocks(t)[0].Accept(state)
		require.True(t, errors.Is(err, errors.ErrBlockInvalid))
	})

	t.Run("bip34 height", func(t *testing.T) {
		state := block1State()
		state.Forks |= model.ForkBIP34

		err := test.MainnetBlocks(t)[0].Accept(state)
		require.True(t, errors.Is(err, errors.ErrCoinbaseMissingHeight))
	})
}

func TestBlock_ExtractCoinbaseHeight(t *testing.T) {
	block := test.MainnetBlocks(t)[0]

	// pre bip34 coinbases push the bits
	height, err := block.ExtractCoinbaseHeight()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x1d00ffff), height)
}

func TestCalculateMerkleRoot(t *testing.T) {
	a := chainhash.HashH([]byte("a"))
	b := chainhash.HashH([]byte("b"))
	c := chainhash.HashH([]byte("c"))

	_, err := model.CalculateMerkleRoot(nil)
	require.Error(t, err)

	root, err := model.CalculateMerkleRoot([]*chainhash.Hash{&a})
	require.NoError(t, err)
	assert.Equal(t, a, *root)

	// odd levels duplicate the last hash
	three, err := model.CalculateMerkleRoot([]*chainhash.Hash{&a, &b, &c})
	require.NoError(t, err)

	four, err := model.CalculateMerkleRoot([]*chainhash.Hash{&a, &b, &c, &c})
	require.NoError(t, err)
	assert.Equal(t, four, three)
}

func TestBlockSubsidy(t *testing.T) {
	assert.Equal(t, uint64(5_000_000_000), model.BlockSubsidy(0, 210000))
	assert.Equal(t, uint64(2_500_000_000), model.BlockSubsidy(210000, 210000))
	assert.Equal(t, uint64(0), model.BlockSubsidy(64*210000, 210000))
	assert.Equal(t, uint64(0), model.BlockSubsidy(1, 0))
}
