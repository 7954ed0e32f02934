package blockvalidation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bitcoin-sv/chaincore/errors"
	"github.com/bitcoin-sv/chaincore/model"
	"github.com/bitcoin-sv/chaincore/services/validator"
	"github.com/bitcoin-sv/chaincore/settings"
	"github.com/bitcoin-sv/chaincore/ulogger"
	"github.com/bitcoin-sv/chaincore/util/dispatcher"
	"github.com/bitcoin-sv/chaincore/util/test"
	"github.com/bitcoin-sv/chaincore/util/test/mocklogger"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/bscript"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/go-bt/v2/unlocker"
	bec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"pgregory.net/rapid"
)

var (
	p2pkhScript, _    = bscript.NewFromHexString("76a914eb0bd5edba389198e73f8efabddfc61666969ff788ac")
	multisigScript, _ = bscript.NewFromASM("OP_2 02aa 02bb 02cc OP_3 OP_CHECKMULTISIG")
	testBits          = model.NewNBitFromUint32(0x1d00ffff)
)

type txSpec struct {
	inputs   int
	multisig int
	current  bool
}

func coinbaseTx(t require.TestingT) *bt.Tx {
	tx := bt.NewTx()
	require.NoError(t, tx.From("0000000000000000000000000000000000000000000000000000000000000000", 0xffffffff, "", 0))
	tx.Inputs[0].UnlockingScript = bscript.NewFromBytes([]byte{0x03, 0x64, 0x00, 0x00})
	tx.AddOutput(&bt.Output{Satoshis: 0, LockingScript: p2pkhScript})

	return tx
}

func buildBlock(t require.TestingT, specs []txSpec) *model.Block {
	txs := []*bt.Tx{coinbaseTx(t)}

	for i, spec := range specs {
		tx := bt.NewTx()

		for j := 0; j < spec.inputs; j++ {
			prev := chainhash.HashH([]byte(fmt.Sprintf("prev-%d-%d", i, j)))

			input := &bt.Input{
				PreviousTxOutIndex: 0,
				UnlockingScript:    bscript.NewFromBytes([]byte{bscript.Op1}),
				SequenceNumber:     0xffffffff,
			}
			require.NoError(t, input.PreviousTxIDAdd(&prev))

			tx.Inputs = append(tx.Inputs, input)
		}

		for j := 0; j < spec.multisig; j++ {
			tx.AddOutput(&bt.Output{Satoshis: 1, LockingScript: multisigScript})
		}

		tx.AddOutput(&bt.Output{Satoshis: 1, LockingScript: p2pkhScript})

		txs = append(txs, tx)
	}

	hashes := make([]*chainhash.Hash, len(txs))
	for i, tx := range txs {
		hashes[i] = tx.TxIDChainHash()
	}

	root, err := model.CalculateMerkleRoot(hashes)
	require.NoError(t, err)

	block := model.NewBlock(&model.BlockHeader{
		Version:        1,
		HashPrevBlock:  &chainhash.Hash{},
		HashMerkleRoot: root,
		Timestamp:      1600000000,
		Bits:           testBits,
	}, txs)

	for i, spec := range specs {
		block.Transactions[i+1].Current = spec.current
	}

	return block
}

func fillPrevouts(block *model.Block) {
	for _, tx := range block.Transactions[1:] {
		for i := range tx.Inputs {
			tx.Prevouts[i] = model.PrevOutput{Valid: true, LockingScript: p2pkhScript, Satoshis: 1_000_000, Height: 1}
		}
	}
}

func acceptState(block *model.Block) *model.ChainState {
	return &model.ChainState{
		Height:           1000,
		MedianTimePast:   block.Header.Timestamp - 1,
		BlockTime:        block.Header.Timestamp,
		WorkRequired:     block.Header.Bits,
		MinimumVersion:   1,
		CoinbaseMaturity: 100,
	}
}

type fixture struct {
	validator  *BlockValidator
	dispatcher *dispatcher.Dispatcher
	states     *MockChainStateProvider
	populator  *MockPopulator
	verifier   *MockScriptVerifier
}

func newFixture(t require.TestingT, tSettings *settings.Settings, logger ulogger.Logger, workers int) *fixture {
	f := &fixture{
		dispatcher: dispatcher.New(ulogger.TestLogger{}, workers),
		states:     &MockChainStateProvider{},
		populator:  &MockPopulator{},
		verifier:   &MockScriptVerifier{},
	}

	f.validator = NewBlockValidator(logger, tSettings, f.dispatcher.Reader(), f.states, f.populator, f.verifier)
	f.validator.Start()

	return f
}

func (f *fixture) stop() {
	f.validator.Stop()
	f.dispatcher.Stop()
}

// countingPool counts the jobs submitted to the wrapped pool.
type countingPool struct {
	dispatcher.Pool
	submitted atomic.Int64
}

func (c *countingPool) Submit(job func()) error {
	c.submitted.Add(1)
	return c.Pool.Submit(job)
}

func wait(t require.TestingT, run func(handler func(error))) error {
	done := make(chan error, 1)

	run(func(err error) { done <- err })

	select {
	case err := <-done:
		return err
	case <-time.After(10 * time.Second):
		require.Fail(t, "handler was not called")
		return nil
	}
}

func TestBlockValidator_Check(t *testing.T) {
	tSettings := test.CreateMainnetTestSettings(t)

	t.Run("mainnet blocks", func(t *testing.T) {
		f := newFixture(t, tSettings, ulogger.TestLogger{}, 4)
		defer f.stop()

		for _, block := range test.MainnetBlocks(t) {
			require.NoError(t, wait(t, func(h func(error)) { f.validator.Check(block, h) }))
			assert.False(t, block.Validation.StartCheck.IsZero())
		}
	})

	t.Run("no transactions", func(t *testing.T) {
		d := dispatcher.New(ulogger.TestLogger{}, 4)
		defer d.Stop()

		pool := &countingPool{Pool: d.Reader()}

		v := NewBlockValidator(ulogger.TestLogger{}, tSettings, pool, &MockChainStateProvider{}, &MockPopulator{}, &MockScriptVerifier{})
		v.Start()

		block := test.MainnetBlocks(t)[0]
		block.Transactions = nil

		require.NoError(t, wait(t, func(h func(error)) { v.Check(block, h) }))
		assert.Zero(t, pool.submitted.Load())
	})

	t.Run("merkle mismatch", func(t *testing.T) {
		f := newFixture(t, tSettings, ulogger.TestLogger{}, 4)
		defer f.stop()

		block := test.MainnetBlocks(t)[0]
		block.Transactions[0].Outputs[0].Satoshis--

		err := wait(t, func(h func(error)) { f.validator.Check(block, h) })
		assert.True(t, errors.Is(err, errors.ErrBlockMerkleMismatch))
	})

	t.Run("stopped", func(t *testing.T) {
		f := newFixture(t, tSettings, ulogger.TestLogger{}, 4)
		defer f.stop()

		f.validator.Stop()

		err := wait(t, func(h func(error)) { f.validator.Check(test.MainnetBlocks(t)[0], h) })
		assert.True(t, errors.Is(err, errors.ErrServiceStopped))
	})
}

func TestBlockValidator_Accept(t *testing.T) {
	tSettings := test.CreateBaseTestSettings(t)

	t.Run("valid", func(t *testing.T) {
		f := newFixture(t, tSettings, ulogger.TestLogger{}, 4)
		defer f.stop()

		block := buildBlock(t, []txSpec{{inputs: 2, multisig: 1}, {inputs: 1}})
		branch := model.NewBranch(999, block)

		f.states.On("ChainState", branch).Return(acceptState(block), nil)
		f.populator.On("Populate", branch).Run(func(mock.Arguments) { fillPrevouts(block) }).Return(nil)

		require.NoError(t, wait(t, func(h func(error)) { f.validator.Accept(branch, h) }))

		assert.Equal(t, uint64(1+20+1+1), block.Validation.Sigops)
		assert.Equal(t, uint32(1000), block.Validation.Height)
		assert.NotNil(t, block.Validation.State)
		f.populator.AssertNumberOfCalls(t, "Populate", 1)
	})

	t.Run("chain state unavailable", func(t *testing.T) {
		f := newFixture(t, tSettings, ulogger.TestLogger{}, 4)
		defer f.stop()

		block := buildBlock(t, []txSpec{{inputs: 1}})
		branch := model.NewBranch(999, block)

		f.states.On("ChainState", branch).Return(nil, nil)

		err := wait(t, func(h func(error)) { f.validator.Accept(branch, h) })
		assert.True(t, errors.Is(err, errors.ErrProcessing))
		f.populator.AssertNotCalled(t, "Populate", mock.Anything)
	})

	t.Run("populate error propagates", func(t *testing.T) {
		f := newFixture(t, tSettings, ulogger.TestLogger{}, 4)
		defer f.stop()

		block := buildBlock(t, []txSpec{{inputs: 1}})
		branch := model.NewBranch(999, block)

		f.states.On("ChainState", branch).Return(acceptState(block), nil)
		f.populator.On("Populate", branch).Return(errors.NewStorageError("disk gone"))

		err := wait(t, func(h func(error)) { f.validator.Accept(branch, h) })
		assert.True(t, errors.Is(err, errors.ErrStorageError))
	})

	t.Run("missing previous output", func(t *testing.T) {
		f := newFixture(t, tSettings, ulogger.TestLogger{}, 4)
		defer f.stop()

		block := buildBlock(t, []txSpec{{inputs: 1}, {inputs: 1}})
		branch := model.NewBranch(999, block)

		f.states.On("ChainState", branch).Return(acceptState(block), nil)
		f.populator.On("Populate", branch).Run(func(mock.Arguments) {
			fillPrevouts(block)
			block.Transactions[2].Prevouts[0] = model.PrevOutput{}
		}).Return(nil)

		err := wait(t, func(h func(error)) { f.validator.Accept(branch, h) })
		assert.True(t, errors.Is(err, errors.ErrMissingPreviousOutput))
	})

	t.Run("legacy sigop limit", func(t *testing.T) {
		f := newFixture(t, tSettings, ulogger.TestLogger{}, 4)
		defer f.stop()

		// 1001 multisig outputs at 20 sigops each exceed 20000
		block := buildBlock(t, []txSpec{{inputs: 1, multisig: 1001}})
		branch := model.NewBranch(999, block)

		f.states.On("ChainState", branch).Return(acceptState(block), nil)
		f.populator.On("Populate", branch).Run(func(mock.Arguments) { fillPrevouts(block) }).Return(nil)

		err := wait(t, func(h func(error)) { f.validator.Accept(branch, h) })
		assert.True(t, errors.Is(err, errors.ErrBlockSigopLimit))
	})

	t.Run("fast sigop limit", func(t *testing.T) {
		f := newFixture(t, tSettings, ulogger.TestLogger{}, 4)
		defer f.stop()

		// weighted by 4, the same block exceeds 80000
		block := buildBlock(t, []txSpec{{inputs: 1, multisig: 1001}})
		branch := model.NewBranch(999, block)

		state := acceptState(block)
		state.Forks |= model.ForkBIP141

		f.states.On("ChainState", branch).Return(state, nil)
		f.populator.On("Populate", branch).Run(func(mock.Arguments) { fillPrevouts(block) }).Return(nil)

		err := wait(t, func(h func(error)) { f.validator.Accept(branch, h) })
		assert.True(t, errors.Is(err, errors.ErrBlockSigopLimit))
	})

	t.Run("under checkpoint skips transactions", func(t *testing.T) {
		f := newFixture(t, tSettings, ulogger.TestLogger{}, 4)
		defer f.stop()

		block := buildBlock(t, []txSpec{{inputs: 1, multisig: 1001}})
		branch := model.NewBranch(999, block)

		state := acceptState(block)
		state.UnderCheckpoint = true

		// prevouts stay empty, which would fail the transaction rules
		f.states.On("ChainState", branch).Return(state, nil)
		f.populator.On("Populate", branch).Return(nil)

		require.NoError(t, wait(t, func(h func(error)) { f.validator.Accept(branch, h) }))
		assert.Zero(t, block.Validation.Sigops)
	})

	for _, underCheckpoint := range []bool{false, true} {
		t.Run(fmt.Sprintf("header only, under checkpoint %v", underCheckpoint), func(t *testing.T) {
			f := newFixture(t, tSettings, ulogger.TestLogger{}, 4)
			defer f.stop()

			block := buildBlock(t, nil)
			state := acceptState(block)
			state.UnderCheckpoint = underCheckpoint
			block.Transactions = nil

			branch := model.NewBranch(999, block)

			f.states.On("ChainState", branch).Return(state, nil)
			f.populator.On("Populate", branch).Return(nil)

			require.NoError(t, wait(t, func(h func(error)) { f.validator.Check(block, h) }))

			err := wait(t, func(h func(error)) { f.validator.Accept(branch, h) })
			assert.True(t, errors.Is(err, errors.ErrBlockInvalid))
		})
	}

	t.Run("stopped before start", func(t *testing.T) {
		f := newFixture(t, tSettings, ulogger.TestLogger{}, 4)
		defer f.stop()

		f.validator.Stop()

		block := buildBlock(t, []txSpec{{inputs: 1}})
		branch := model.NewBranch(999, block)

		err := wait(t, func(h func(error)) { f.validator.Accept(branch, h) })
		assert.True(t, errors.Is(err, errors.ErrServiceStopped))
		f.states.AssertNotCalled(t, "ChainState", mock.Anything)
	})

	t.Run("stopped", func(t *testing.T) {
		f := newFixture(t, tSettings, ulogger.TestLogger{}, 4)
		defer f.stop()

		block := buildBlock(t, []txSpec{{inputs: 1}})
		branch := model.NewBranch(999, block)

		f.states.On("ChainState", branch).Return(acceptState(block), nil)
		f.populator.On("Populate", branch).Run(func(mock.Arguments) { f.validator.Stop() }).Return(nil)

		err := wait(t, func(h func(error)) { f.validator.Accept(branch, h) })
		assert.True(t, errors.Is(err, errors.ErrServiceStopped))
	})
}

func TestBlockValidator_AcceptSigopsAreSummedOverBuckets(t *testing.T) {
	tSettings := test.CreateBaseTestSettings(t)

	rapid.Check(t, func(rt *rapid.T) {
		workers := rapid.IntRange(1, 8).Draw(rt, "workers")
		count := rapid.IntRange(1, 16).Draw(rt, "transactions")

		specs := make([]txSpec, count)
		for i := range specs {
			specs[i] = txSpec{
				inputs:   rapid.IntRange(1, 3).Draw(rt, fmt.Sprintf("inputs%d", i)),
				multisig: rapid.IntRange(0, 3).Draw(rt, fmt.Sprintf("multisig%d", i)),
			}
		}

		f := newFixture(rt, tSettings, ulogger.TestLogger{}, workers)
		defer f.stop()

		block := buildBlock(rt, specs)
		branch := model.NewBranch(999, block)

		f.states.On("ChainState", branch).Return(acceptState(block), nil)
		f.populator.On("Populate", branch).Run(func(mock.Arguments) { fillPrevouts(block) }).Return(nil)

		require.NoError(rt, wait(rt, func(h func(error)) { f.validator.Accept(branch, h) }))

		var expected uint64
		for _, tx := range block.Transactions {
			expected += tx.SignatureOperations(false, false)
		}

		require.Equal(rt, expected, block.Validation.Sigops)
	})
}

type recordingVerifier struct {
	mu       sync.Mutex
	verified map[string]int
}

func (r *recordingVerifier) VerifyInput(tx *model.Tx, index int, _ *model.ChainState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.verified[fmt.Sprintf("%s:%d", tx.Hash(), index)]++

	return nil
}

func TestBlockValidator_ConnectVerifiesEveryInputOnce(t *testing.T) {
	tSettings := test.CreateBaseTestSettings(t)

	rapid.Check(t, func(rt *rapid.T) {
		workers := rapid.IntRange(1, 8).Draw(rt, "workers")
		count := rapid.IntRange(1, 12).Draw(rt, "transactions")

		specs := make([]txSpec, count)
		current := 0

		for i := range specs {
			specs[i] = txSpec{
				inputs:  rapid.IntRange(1, 4).Draw(rt, fmt.Sprintf("inputs%d", i)),
				current: rapid.Bool().Draw(rt, fmt.Sprintf("current%d", i)),
			}

			if specs[i].current {
				current++
			}
		}

		verifier := &recordingVerifier{verified: make(map[string]int)}

		d := dispatcher.New(ulogger.TestLogger{}, workers)
		defer d.Stop()

		v := NewBlockValidator(ulogger.TestLogger{}, tSettings, d.Reader(), &MockChainStateProvider{}, &MockPopulator{}, verifier)
		v.Start()

		block := buildBlock(rt, specs)
		fillPrevouts(block)
		block.Validation.State = acceptState(block)

		require.NoError(rt, wait(rt, func(h func(error)) { v.Connect(model.NewBranch(999, block), h) }))

		expected := make(map[string]int)
		for _, tx := range block.Transactions[1:] {
			if tx.Current {
				continue
			}

			for i := range tx.Inputs {
				expected[fmt.Sprintf("%s:%d", tx.Hash(), i)] = 1
			}
		}

		require.Equal(rt, expected, verifier.verified)
		require.InDelta(rt, float64(current)/float64(count), v.HitRate(), 1e-9)
		require.InDelta(rt, v.HitRate(), block.Validation.CacheEfficiency, 1e-9)
	})
}

func TestBlockValidator_Connect(t *testing.T) {
	tSettings := test.CreateBaseTestSettings(t)

	t.Run("under checkpoint", func(t *testing.T) {
		f := newFixture(t, tSettings, ulogger.TestLogger{}, 4)
		defer f.stop()

		block := buildBlock(t, []txSpec{{inputs: 2}})
		block.Validation.State = acceptState(block)
		block.Validation.State.UnderCheckpoint = true

		require.NoError(t, wait(t, func(h func(error)) { f.validator.Connect(model.NewBranch(999, block), h) }))
		f.verifier.AssertNotCalled(t, "VerifyInput", mock.Anything, mock.Anything, mock.Anything)
		assert.False(t, block.Validation.StartConnect.IsZero())
	})

	t.Run("stopped under checkpoint", func(t *testing.T) {
		f := newFixture(t, tSettings, ulogger.TestLogger{}, 4)
		defer f.stop()

		block := buildBlock(t, []txSpec{{inputs: 2}})
		block.Validation.State = acceptState(block)
		block.Validation.State.UnderCheckpoint = true

		f.validator.Stop()

		err := wait(t, func(h func(error)) { f.validator.Connect(model.NewBranch(999, block), h) })
		assert.True(t, errors.Is(err, errors.ErrServiceStopped))
	})

	t.Run("coinbase only", func(t *testing.T) {
		f := newFixture(t, tSettings, ulogger.TestLogger{}, 4)
		defer f.stop()

		block := buildBlock(t, nil)
		block.Validation.State = acceptState(block)

		require.NoError(t, wait(t, func(h func(error)) { f.validator.Connect(model.NewBranch(999, block), h) }))
	})

	t.Run("missing previous output is dumped", func(t *testing.T) {
		logger := mocklogger.NewTestLogger()

		f := newFixture(t, tSettings, logger, 2)
		defer f.stop()

		block := buildBlock(t, []txSpec{{inputs: 1}, {inputs: 1}})
		fillPrevouts(block)
		block.Transactions[2].Prevouts[0] = model.PrevOutput{}
		block.Validation.State = acceptState(block)

		f.verifier.On("VerifyInput", mock.Anything, mock.Anything, mock.Anything).Return(nil)

		err := wait(t, func(h func(error)) { f.validator.Connect(model.NewBranch(999, block), h) })
		assert.True(t, errors.Is(err, errors.ErrMissingPreviousOutput))

		messages := logger.Messages("Debugf")
		require.Len(t, messages, 1)
		assert.Contains(t, messages[0], "Verify failed [1000]")
		assert.Contains(t, messages[0], block.Transactions[2].Hash().String()+":0")
	})

	t.Run("script failure", func(t *testing.T) {
		f := newFixture(t, tSettings, ulogger.TestLogger{}, 4)
		defer f.stop()

		block := buildBlock(t, []txSpec{{inputs: 3}})
		fillPrevouts(block)
		block.Validation.State = acceptState(block)

		f.verifier.On("VerifyInput", mock.Anything, 1, mock.Anything).Return(errors.NewScriptVerifyError("bad signature"))
		f.verifier.On("VerifyInput", mock.Anything, mock.Anything, mock.Anything).Return(nil)

		err := wait(t, func(h func(error)) { f.validator.Connect(model.NewBranch(999, block), h) })
		assert.True(t, errors.Is(err, errors.ErrScriptVerify))
	})

	t.Run("stopped", func(t *testing.T) {
		f := newFixture(t, tSettings, ulogger.TestLogger{}, 4)
		defer f.stop()

		block := buildBlock(t, []txSpec{{inputs: 3}})
		fillPrevouts(block)
		block.Validation.State = acceptState(block)

		f.validator.Stop()

		err := wait(t, func(h func(error)) { f.validator.Connect(model.NewBranch(999, block), h) })
		assert.True(t, errors.Is(err, errors.ErrServiceStopped))
	})
}

func TestBlockValidator_ConnectSignedSpend(t *testing.T) {
	tSettings := test.CreateBaseTestSettings(t)

	privateKey, err := bec.PrivateKeyFromWif("L56TgyTpDdvL3W24SMoALYotibToSCySQeo4pThLKxw6EFR6f93Q")
	require.NoError(t, err)

	address, err := bscript.NewAddressFromPublicKey(privateKey.PubKey(), true)
	require.NoError(t, err)

	parent := coinbaseTx(t)
	require.NoError(t, parent.AddP2PKHOutputFromAddress(address.AddressString, 50*100000000))

	child := bt.NewTx()
	require.NoError(t, child.FromUTXOs(&bt.UTXO{
		TxIDHash:      parent.TxIDChainHash(),
		Vout:          1,
		LockingScript: parent.Outputs[1].LockingScript,
		Satoshis:      parent.Outputs[1].Satoshis,
	}))
	require.NoError(t, child.AddP2PKHOutputFromAddress(address.AddressString, 49*100000000))
	require.NoError(t, child.FillAllInputs(context.Background(), &unlocker.Getter{PrivateKey: privateKey}))

	d := dispatcher.New(ulogger.TestLogger{}, 2)
	defer d.Stop()

	v := NewBlockValidator(ulogger.TestLogger{}, tSettings, d.Reader(), &MockChainStateProvider{}, &MockPopulator{},
		validator.NewScriptVerifier(ulogger.TestLogger{}))
	v.Start()

	newBlock := func() *model.Block {
		block := model.NewBlock(&model.BlockHeader{HashPrevBlock: &chainhash.Hash{}, HashMerkleRoot: &chainhash.Hash{}}, []*bt.Tx{coinbaseTx(t), child})
		block.Transactions[1].Prevouts[0] = model.PrevOutput{
			Valid:         true,
			LockingScript: parent.Outputs[1].LockingScript,
			Satoshis:      parent.Outputs[1].Satoshis,
			Height:        10,
		}
		block.Validation.State = &model.ChainState{
			Height: 700000,
			Forks:  model.ForkBIP16 | model.ForkBIP66 | model.ForkUAHF,
		}

		return block
	}

	block := newBlock()
	require.NoError(t, wait(t, func(h func(error)) { v.Connect(model.NewBranch(999, block), h) }))
	assert.Zero(t, v.HitRate())

	block = newBlock()
	block.Transactions[1].Prevouts[0].Satoshis++

	err = wait(t, func(h func(error)) { v.Connect(model.NewBranch(999, block), h) })
	assert.True(t, errors.Is(err, errors.ErrScriptVerify))
}
