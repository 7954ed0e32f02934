package blockchain

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/bitcoin-sv/chaincore/errors"
	"github.com/bitcoin-sv/chaincore/model"
	"github.com/bitcoin-sv/chaincore/services/blockvalidation"
	"github.com/bitcoin-sv/chaincore/settings"
	blockchain_store "github.com/bitcoin-sv/chaincore/stores/blockchain"
	"github.com/bitcoin-sv/chaincore/stores/blockchain/memory"
	"github.com/bitcoin-sv/chaincore/stores/blockchain/options"
	"github.com/bitcoin-sv/chaincore/ulogger"
	"github.com/bitcoin-sv/chaincore/util/dispatcher"
	"github.com/bitcoin-sv/chaincore/util/test"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/bscript"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// childBlock builds an unmined block on parent whose coinbase carries tag, so
// every tag yields distinct block and transaction hashes.
func childBlock(t *testing.T, parent *model.Block, tag string) *model.Block {
	t.Helper()

	coinbase := bt.NewTx()
	require.NoError(t, coinbase.From("0000000000000000000000000000000000000000000000000000000000000000", 0xffffffff, "", 0))
	coinbase.Inputs[0].UnlockingScript = bscript.NewFromBytes(append([]byte{0x51}, []byte(tag)...))
	coinbase.AddOutput(&bt.Output{Satoshis: 50, LockingScript: bscript.NewFromBytes([]byte{bscript.Op1})})

	root, err := model.CalculateMerkleRoot([]*chainhash.Hash{coinbase.TxIDChainHash()})
	require.NoError(t, err)

	return model.NewBlock(&model.BlockHeader{
		Version:        1,
		HashPrevBlock:  parent.Hash(),
		HashMerkleRoot: root,
		Timestamp:      parent.Header.Timestamp + 600,
		Bits:           parent.Header.Bits,
	}, []*bt.Tx{coinbase})
}

func compareHashes(a, b *model.Block) int {
	return bytes.Compare(a.Hash()[:], b.Hash()[:])
}

func isBlock(block *model.Block) interface{} {
	return mock.MatchedBy(func(b *model.Block) bool {
		return b.Hash().IsEqual(block.Hash())
	})
}

func topIs(block *model.Block) interface{} {
	return mock.MatchedBy(func(branch *model.Branch) bool {
		return branch.Top().Hash().IsEqual(block.Hash())
	})
}

// faultyStore fails Push of one block, or every Pop after the first pops.
type faultyStore struct {
	blockchain_store.Store
	failPush *chainhash.Hash
	failPop  bool
	pops     int
}

func (s *faultyStore) Push(ctx context.Context, block *model.Block, height uint32, opts ...options.PushBlockOption) error {
	if s.failPush != nil && s.failPush.IsEqual(block.Hash()) {
		return errors.NewStorageError("disk full")
	}

	return s.Store.Push(ctx, block, height, opts...)
}

func (s *faultyStore) Pop(ctx context.Context) (*model.Block, error) {
	if s.failPop {
		if s.pops == 0 {
			return nil, errors.NewStorageError("disk full")
		}

		s.pops--
	}

	return s.Store.Pop(ctx)
}

type organizerFixture struct {
	store      blockchain_store.Store
	faults     *faultyStore
	orphans    *OrphanPool
	validator  *blockvalidation.MockValidator
	organizer  *Organizer
	dispatcher *dispatcher.Dispatcher
	genesis    *model.Block
}

func newOrganizerFixture(t *testing.T, tSettings *settings.Settings) *organizerFixture {
	t.Helper()

	f := &organizerFixture{
		faults:     &faultyStore{Store: blockchain_store.NewChainDB(ulogger.TestLogger{}, memory.New())},
		orphans:    NewOrphanPool(10, time.Minute),
		validator:  &blockvalidation.MockValidator{},
		dispatcher: dispatcher.New(ulogger.TestLogger{}, 2),
	}

	f.store = f.faults

	var err error

	f.genesis, err = model.GenesisBlock(tSettings.ChainCfgParams)
	require.NoError(t, err)
	require.NoError(t, f.store.Push(context.Background(), f.genesis, 0))

	f.validator.On("Start").Return()
	f.validator.On("Stop").Return()

	f.organizer = NewOrganizer(ulogger.NewVerboseTestLogger(t), tSettings, f.store, f.validator, f.orphans, f.dispatcher.Background())
	f.organizer.Start()

	t.Cleanup(func() {
		f.organizer.Stop()
		f.dispatcher.Stop()
	})

	return f
}

// acceptAll lets every stage pass that no earlier expectation rejects.
func (f *organizerFixture) acceptAll() {
	f.validator.On("Check", mock.Anything).Return(nil)
	f.validator.On("Accept", mock.Anything).Return(nil)
	f.validator.On("Connect", mock.Anything).Return(nil)
}

func (f *organizerFixture) organize(t *testing.T, block *model.Block) (model.BlockInfo, error) {
	t.Helper()

	require.True(t, f.orphans.Add(block))

	return f.organizer.Organize(context.Background(), block)
}

func (f *organizerFixture) tip(t *testing.T) *model.BlockHeader {
	t.Helper()

	height, err := f.store.GetLastHeight(context.Background())
	require.NoError(t, err)

	header, err := f.store.GetHeaderByHeight(context.Background(), height)
	require.NoError(t, err)

	return header
}

func TestOrganizer_Extend(t *testing.T) {
	f := newOrganizerFixture(t, test.CreateBaseTestSettings(t))
	f.acceptAll()

	reorganizations := make(chan *Reorganization, 1)
	f.organizer.SubscribeReorganize(func(r *Reorganization) {
		reorganizations <- r
	})

	a1 := childBlock(t, f.genesis, "a1")

	info, err := f.organize(t, a1)
	require.NoError(t, err)
	assert.Equal(t, model.BlockInfo{Status: model.BlockStatusConfirmed, Height: 1}, info)
	assert.Equal(t, 0, f.orphans.Len())

	select {
	case r := <-reorganizations:
		assert.Equal(t, uint32(0), r.ForkHeight)
		assert.Equal(t, []*model.Block{a1}, r.Incoming)
		assert.Empty(t, r.Outgoing)
	case <-time.After(time.Second):
		t.Fatal("no reorganization notification")
	}
}

func TestOrganizer_OrphanThenParent(t *testing.T) {
	f := newOrganizerFixture(t, test.CreateBaseTestSettings(t))
	f.acceptAll()

	c1 := childBlock(t, f.genesis, "c1")
	c2 := childBlock(t, c1, "c2")

	info, err := f.organize(t, c2)
	require.NoError(t, err)
	assert.Equal(t, model.BlockInfo{Status: model.BlockStatusOrphan}, info)

	info, err = f.organize(t, c1)
	require.NoError(t, err)
	assert.Equal(t, model.BlockInfo{Status: model.BlockStatusConfirmed, Height: 1}, info)

	assert.Equal(t, c2.Header.Hash(), f.tip(t).Hash())
	assert.Equal(t, 0, f.orphans.Len())
}

func TestOrganizer_Reorganize(t *testing.T) {
	f := newOrganizerFixture(t, test.CreateBaseTestSettings(t))
	f.acceptAll()

	reorganizations := make(chan *Reorganization, 2)
	f.organizer.SubscribeReorganize(func(r *Reorganization) {
		reorganizations <- r
	})

	a1 := childBlock(t, f.genesis, "a1")
	b1 := childBlock(t, f.genesis, "b1")
	b2 := childBlock(t, b1, "b2")

	_, err := f.organize(t, a1)
	require.NoError(t, err)
	<-reorganizations

	// equal work does not displace the main chain
	info, err := f.organize(t, b1)
	require.NoError(t, err)
	assert.Equal(t, model.BlockInfo{Status: model.BlockStatusOrphan}, info)

	info, err = f.organize(t, b2)
	require.NoError(t, err)
	assert.Equal(t, model.BlockInfo{Status: model.BlockStatusConfirmed, Height: 2}, info)

	height, err := f.store.GetBlockHeight(context.Background(), b1.Hash())
	require.NoError(t, err)
	assert.Equal(t, uint32(1), height)

	_, err = f.store.GetBlockHeight(context.Background(), a1.Hash())
	assert.True(t, errors.Is(err, errors.ErrBlockNotFound))

	assert.NotNil(t, f.orphans.Get(a1.Hash()))
	assert.Nil(t, f.orphans.Get(b1.Hash()))

	select {
	case r := <-reorganizations:
		assert.Equal(t, uint32(0), r.ForkHeight)
		assert.Equal(t, []*model.Block{b1, b2}, r.Incoming)
		require.Len(t, r.Outgoing, 1)
		assert.Equal(t, a1.Hash(), r.Outgoing[0].Hash())
	case <-time.After(time.Second):
		t.Fatal("no reorganization notification")
	}
}

func (f *organizerFixture) confirmed(t *testing.T, blocks ...*model.Block) {
	t.Helper()

	for i, block := range blocks {
		height, err := f.store.GetBlockHeight(context.Background(), block.Hash())
		require.NoError(t, err)
		assert.Equal(t, uint32(i+1), height)
	}

	assert.Equal(t, blocks[len(blocks)-1].Hash(), f.tip(t).Hash())
}

func TestOrganizer_ReorganizeStoreFailure(t *testing.T) {
	t.Run("push failure restores the main chain", func(t *testing.T) {
		f := newOrganizerFixture(t, test.CreateBaseTestSettings(t))
		f.acceptAll()

		a1 := childBlock(t, f.genesis, "a1")
		b1 := childBlock(t, f.genesis, "b1")
		b2 := childBlock(t, b1, "b2")

		_, err := f.organize(t, a1)
		require.NoError(t, err)

		_, err = f.organize(t, b1)
		require.NoError(t, err)

		f.faults.failPush = b2.Hash()

		_, err = f.organize(t, b2)
		assert.True(t, errors.Is(err, errors.ErrStorageError))

		f.confirmed(t, a1)
		assert.Nil(t, f.orphans.Get(a1.Hash()))

		_, err = f.store.GetBlockHeight(context.Background(), b1.Hash())
		assert.True(t, errors.Is(err, errors.ErrBlockNotFound))

		// the branch stays pooled and confirms once the store recovers
		assert.NotNil(t, f.orphans.Get(b1.Hash()))
		assert.NotNil(t, f.orphans.Get(b2.Hash()))

		f.faults.failPush = nil

		info, err := f.organizer.Organize(context.Background(), b2)
		require.NoError(t, err)
		assert.Equal(t, model.BlockInfo{Status: model.BlockStatusConfirmed, Height: 2}, info)
		f.confirmed(t, b1, b2)
		assert.NotNil(t, f.orphans.Get(a1.Hash()))
	})

	t.Run("pop failure restores the popped blocks", func(t *testing.T) {
		f := newOrganizerFixture(t, test.CreateBaseTestSettings(t))
		f.acceptAll()

		a1 := childBlock(t, f.genesis, "a1")
		a2 := childBlock(t, a1, "a2")
		b1 := childBlock(t, f.genesis, "b1")
		b2 := childBlock(t, b1, "b2")
		b3 := childBlock(t, b2, "b3")

		for _, block := range []*model.Block{a1, a2, b1, b2} {
			_, err := f.organize(t, block)
			require.NoError(t, err)
		}

		f.faults.failPop = true
		f.faults.pops = 1

		_, err := f.organize(t, b3)
		assert.True(t, errors.Is(err, errors.ErrStorageError))

		f.confirmed(t, a1, a2)
		assert.Nil(t, f.orphans.Get(a2.Hash()))
		assert.NotNil(t, f.orphans.Get(b3.Hash()))
	})
}

func TestOrganizer_InvalidBlock(t *testing.T) {
	f := newOrganizerFixture(t, test.CreateBaseTestSettings(t))

	d1 := childBlock(t, f.genesis, "d1")
	e1 := childBlock(t, f.genesis, "e1")
	e2 := childBlock(t, e1, "e2")

	f.validator.On("Check", isBlock(d1)).Return(errors.NewBlockInvalidError("bad merkle root"))
	f.validator.On("Connect", topIs(e2)).Return(errors.NewScriptVerifyError("bad signature"))
	f.acceptAll()

	t.Run("rejected block leaves the pool", func(t *testing.T) {
		_, err := f.organize(t, d1)
		assert.True(t, errors.Is(err, errors.ErrBlockInvalid))
		assert.Nil(t, f.orphans.Get(d1.Hash()))
		assert.Equal(t, f.genesis.Hash(), f.tip(t).Hash())
	})

	t.Run("valid ancestor of an invalid block is confirmed", func(t *testing.T) {
		info, err := f.organize(t, e2)
		require.NoError(t, err)
		assert.Equal(t, model.BlockStatusOrphan, info.Status)

		info, err = f.organize(t, e1)
		require.NoError(t, err)
		assert.Equal(t, model.BlockInfo{Status: model.BlockStatusConfirmed, Height: 1}, info)

		assert.Equal(t, e1.Hash(), f.tip(t).Hash())
		assert.Nil(t, f.orphans.Get(e2.Hash()))
	})
}

func TestOrganizer_ReorganizationLimit(t *testing.T) {
	tSettings := test.CreateBaseTestSettings(t)
	tSettings.BlockChain.ReorganizationLimit = 1

	f := newOrganizerFixture(t, tSettings)
	f.acceptAll()

	a1 := childBlock(t, f.genesis, "a1")
	a2 := childBlock(t, a1, "a2")
	b1 := childBlock(t, f.genesis, "b1")

	for _, block := range []*model.Block{a1, a2} {
		_, err := f.organize(t, block)
		require.NoError(t, err)
	}

	_, err := f.organize(t, b1)
	assert.True(t, errors.Is(err, errors.ErrBlockInvalid))
	assert.Nil(t, f.orphans.Get(b1.Hash()))
}

func TestOrganizer_Stopped(t *testing.T) {
	f := newOrganizerFixture(t, test.CreateBaseTestSettings(t))
	f.organizer.stopped.Store(true)

	_, err := f.organize(t, childBlock(t, f.genesis, "a1"))
	assert.True(t, errors.Is(err, errors.ErrServiceStopped))

	f.organizer.stopped.Store(false)
}
