package blockchain

import (
	"context"
	"path/filepath"
	"time"

	"github.com/bitcoin-sv/chaincore/errors"
	"github.com/bitcoin-sv/chaincore/model"
	"github.com/bitcoin-sv/chaincore/services/blockvalidation"
	"github.com/bitcoin-sv/chaincore/services/validator"
	"github.com/bitcoin-sv/chaincore/settings"
	blockchain_store "github.com/bitcoin-sv/chaincore/stores/blockchain"
	"github.com/bitcoin-sv/chaincore/stores/blockchain/options"
	"github.com/bitcoin-sv/chaincore/ulogger"
	"github.com/bitcoin-sv/chaincore/util/dispatcher"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"go.uber.org/atomic"
)

// Blockchain guards a chain store with a sequence counter. The counter is odd
// while a write bracket is open.
type Blockchain struct {
	logger    ulogger.Logger
	settings  *settings.Settings
	store     blockchain_store.Store
	writer    dispatcher.Queue
	reader    dispatcher.Pool
	validator *blockvalidation.BlockValidator
	orphans   *OrphanPool
	organizer *Organizer
	lock      *FileLock
	sequence  *atomic.Uint64
	stopped   *atomic.Bool
}

// New wires the validation pipeline and organizer around store. The returned
// chain is stopped.
func New(logger ulogger.Logger, tSettings *settings.Settings, store blockchain_store.Store, d *dispatcher.Dispatcher) *Blockchain {
	logger = logger.Duplicate(ulogger.WithFields(map[string]interface{}{"network": tSettings.ChainCfgParams.Name}))

	initPrometheusMetrics()

	populator := blockvalidation.NewPopulator(logger.New("populator"), d.Reader(), store)
	states := NewChainStateProvider(logger, tSettings, store)
	verifier := validator.NewScriptVerifier(logger.New("verifier"))
	blockValidator := blockvalidation.NewBlockValidator(logger.New("blockvalidation"), tSettings, d.Reader(), states, populator, verifier)
	orphans := NewOrphanPool(tSettings.BlockChain.OrphanCapacity, tSettings.BlockChain.OrphanTTL)

	return &Blockchain{
		logger:    logger,
		settings:  tSettings,
		store:     store,
		writer:    d.Writer(),
		reader:    d.Reader(),
		validator: blockValidator,
		orphans:   orphans,
		organizer: NewOrganizer(logger.New("organizer"), tSettings, store, blockValidator, orphans, d.Background()),
		lock:      NewFileLock(filepath.Join(tSettings.DataFolder, tSettings.BlockChain.LockFile)),
		sequence:  atomic.NewUint64(0),
		stopped:   atomic.NewBool(true),
	}
}

// Start takes the data folder lock, writes the genesis block into an empty
// store and starts the organizer. It returns false when another process holds
// the lock or the store cannot be bootstrapped.
func (b *Blockchain) Start() bool {
	if !b.stopped.Load() {
		return true
	}

	locked, err := b.lock.TryLock()
	if err != nil {
		b.logger.Errorf("[Blockchain] failed to lock %s: %v", b.lock.path, err)
		return false
	}

	if !locked {
		b.logger.Warnf("[Blockchain] %s is locked by another process", b.lock.path)
		return false
	}

	if err = b.bootstrap(context.Background()); err != nil {
		b.logger.Errorf("[Blockchain] failed to write genesis block: %v", err)
		return false
	}

	b.organizer.Start()
	b.stopped.Store(false)

	b.logger.Infof("[Blockchain] started on %s", b.settings.ChainCfgParams.Name)

	return true
}

func (b *Blockchain) bootstrap(ctx context.Context) error {
	tip, err := b.store.GetLastHeight(ctx)
	if err == nil {
		prometheusBlockchainHeight.Set(float64(tip))
		return nil
	}

	if !errors.Is(err, errors.ErrNotFound) {
		return err
	}

	genesis, err := model.GenesisBlock(b.settings.ChainCfgParams)
	if err != nil {
		return err
	}

	b.startWrite()
	defer b.sequence.Inc()

	indexPayments := b.settings.BlockChain.IndexPayments

	return b.store.Push(ctx, genesis, 0, options.WithHistory(indexPayments), options.WithStealth(indexPayments))
}

// Stop refuses new work. The lock stays held until Unlock.
func (b *Blockchain) Stop() bool {
	if b.stopped.Swap(true) {
		return true
	}

	b.organizer.Stop()

	return true
}

// Unlock releases the data folder lock at process shutdown. The chain must be
// stopped.
func (b *Blockchain) Unlock() error {
	if !b.stopped.Load() {
		return errors.NewProcessingError("cannot unlock a running blockchain")
	}

	return b.lock.Unlock()
}

func (b *Blockchain) Stopped() bool {
	return b.stopped.Load()
}

func (b *Blockchain) SubscribeReorganize(handler ReorganizeHandler) {
	b.organizer.SubscribeReorganize(handler)
}

// HitRate reports the validator cache efficiency of the last connected block.
func (b *Blockchain) HitRate() float64 {
	return b.validator.HitRate()
}

func (b *Blockchain) startWrite() {
	if b.sequence.Inc()%2 != 1 {
		panic("blockchain sequence is even after starting a write")
	}
}

// stopWrite closes the bracket before the handler sees the result.
func (b *Blockchain) stopWrite(start time.Time, operation string, handler func(model.BlockInfo, error), info model.BlockInfo, err error) {
	b.sequence.Inc()

	prometheusBlockchainWrite.WithLabelValues(operation).Observe(float64(time.Since(start).Microseconds()) / 1_000_000)

	handler(info, err)
}

// write submits fn to the writer queue inside a write bracket.
func (b *Blockchain) write(operation string, fn func(ctx context.Context) (model.BlockInfo, error), handler func(model.BlockInfo, error)) {
	if b.stopped.Load() {
		handler(model.BlockInfo{}, errors.NewServiceStoppedError("blockchain is stopped"))
		return
	}

	err := b.writer.Submit(func() {
		if b.stopped.Load() {
			handler(model.BlockInfo{}, errors.NewServiceStoppedError("blockchain is stopped"))
			return
		}

		start := time.Now()

		b.startWrite()

		info, err := fn(context.Background())

		b.stopWrite(start, operation, handler, info, err)
	})
	if err != nil {
		handler(model.BlockInfo{}, err)
	}
}

// Store validates block and organizes it into the chain. Blocks that are
// already confirmed or pooled fail with ERR_BLOCK_EXISTS carrying their
// BlockInfo as "info".
func (b *Blockchain) Store(block *model.Block, handler func(model.BlockInfo, error)) {
	b.write("store", func(ctx context.Context) (model.BlockInfo, error) {
		hash := block.Hash()

		height, err := b.store.GetBlockHeight(ctx, hash)
		if err == nil {
			info := model.BlockInfo{Status: model.BlockStatusConfirmed, Height: height}
			existsErr := errors.NewBlockExistsError("block %s is confirmed at height %d", hash, height)
			existsErr.SetData("info", info)

			return info, existsErr
		}

		if !errors.Is(err, errors.ErrNotFound) {
			return model.BlockInfo{}, err
		}

		if !b.orphans.Add(block) {
			info := model.BlockInfo{Status: model.BlockStatusOrphan}
			existsErr := errors.NewBlockExistsError("block %s is already pooled", hash)
			existsErr.SetData("info", info)

			return info, existsErr
		}

		return b.organizer.Organize(ctx, block)
	}, handler)
}

// Import pushes block on top of the chain without validating it.
func (b *Blockchain) Import(block *model.Block, handler func(model.BlockInfo, error)) {
	b.write("import", func(ctx context.Context) (model.BlockInfo, error) {
		var height uint32

		tip, err := b.store.GetLastHeight(ctx)

		switch {
		case err == nil:
			height = tip + 1
		case !errors.Is(err, errors.ErrNotFound):
			return model.BlockInfo{}, err
		}

		indexPayments := b.settings.BlockChain.IndexPayments

		if err = b.store.Push(ctx, block, height, options.WithHistory(indexPayments), options.WithStealth(indexPayments)); err != nil {
			return model.BlockInfo{}, err
		}

		prometheusBlockchainHeight.Set(float64(height))

		return model.BlockInfo{Status: model.BlockStatusConfirmed, Height: height}, nil
	}, handler)
}

// Fetch runs read on the reader pool and hands its result to handler once a
// run completed without an overlapping write. While a write is in progress the
// read is retried every ReadRetrySleep, until ReadTimeout if one is set.
func Fetch[T any](b *Blockchain, operation string, read func(ctx context.Context, store blockchain_store.Store) (T, error), handler func(T, error)) {
	var zero T

	if b.stopped.Load() {
		handler(zero, errors.NewServiceStoppedError("blockchain is stopped"))
		return
	}

	start := time.Now()

	var (
		attempt func()
		submit  func()
	)

	attempt = func() {
		sequence := b.sequence.Load()

		if sequence%2 == 0 {
			value, err := read(context.Background(), b.store)

			if b.sequence.Load() == sequence {
				prometheusBlockchainRead.WithLabelValues(operation).Observe(float64(time.Since(start).Microseconds()) / 1_000_000)
				handler(value, err)

				return
			}
		}

		prometheusBlockchainReadRetries.WithLabelValues(operation).Inc()

		if timeout := b.settings.BlockChain.ReadTimeout; timeout > 0 && time.Since(start) > timeout {
			handler(zero, errors.NewReadTimeoutError("%s read did not complete within %s", operation, timeout))
			return
		}

		time.AfterFunc(b.settings.BlockChain.ReadRetrySleep, submit)
	}

	submit = func() {
		if b.stopped.Load() {
			handler(zero, errors.NewServiceStoppedError("blockchain is stopped"))
			return
		}

		if err := b.reader.Submit(attempt); err != nil {
			handler(zero, err)
		}
	}

	submit()
}

func (b *Blockchain) FetchBlockHeaderByHeight(height uint32, handler func(*model.BlockHeader, error)) {
	Fetch(b, "header_by_height", func(ctx context.Context, store blockchain_store.Store) (*model.BlockHeader, error) {
		return store.GetHeaderByHeight(ctx, height)
	}, handler)
}

func (b *Blockchain) FetchBlockHeaderByHash(hash *chainhash.Hash, handler func(*model.BlockHeader, uint32, error)) {
	type result struct {
		header *model.BlockHeader
		height uint32
	}

	Fetch(b, "header_by_hash", func(ctx context.Context, store blockchain_store.Store) (result, error) {
		header, height, err := store.GetHeaderByHash(ctx, hash)
		return result{header: header, height: height}, err
	}, func(r result, err error) {
		handler(r.header, r.height, err)
	})
}

func (b *Blockchain) FetchBlockTransactionHashes(hash *chainhash.Hash, handler func([]chainhash.Hash, error)) {
	Fetch(b, "block_transaction_hashes", func(ctx context.Context, store blockchain_store.Store) ([]chainhash.Hash, error) {
		height, err := store.GetBlockHeight(ctx, hash)
		if err != nil {
			return nil, err
		}

		return store.GetBlockTxHashes(ctx, height)
	}, handler)
}

func (b *Blockchain) FetchBlockHeight(hash *chainhash.Hash, handler func(uint32, error)) {
	Fetch(b, "block_height", func(ctx context.Context, store blockchain_store.Store) (uint32, error) {
		return store.GetBlockHeight(ctx, hash)
	}, handler)
}

func (b *Blockchain) FetchLastHeight(handler func(uint32, error)) {
	Fetch(b, "last_height", func(ctx context.Context, store blockchain_store.Store) (uint32, error) {
		return store.GetLastHeight(ctx)
	}, handler)
}

func (b *Blockchain) FetchTransaction(hash *chainhash.Hash, handler func(*bt.Tx, error)) {
	Fetch(b, "transaction", func(ctx context.Context, store blockchain_store.Store) (*bt.Tx, error) {
		tx, _, err := store.GetTransaction(ctx, hash)
		return tx, err
	}, handler)
}

// FetchTransactionIndex returns the confirming height and the position of the
// transaction within its block.
func (b *Blockchain) FetchTransactionIndex(hash *chainhash.Hash, handler func(model.TxPosition, error)) {
	Fetch(b, "transaction_index", func(ctx context.Context, store blockchain_store.Store) (model.TxPosition, error) {
		_, position, err := store.GetTransaction(ctx, hash)
		return position, err
	}, handler)
}

// FetchSpend fails with ERR_UNSPENT_OUTPUT when no confirmed input spends outpoint.
func (b *Blockchain) FetchSpend(outpoint model.OutPoint, handler func(model.InPoint, error)) {
	Fetch(b, "spend", func(ctx context.Context, store blockchain_store.Store) (model.InPoint, error) {
		inpoint, _, err := store.GetSpend(ctx, outpoint)
		return inpoint, err
	}, handler)
}

func (b *Blockchain) FetchHistory(addressHash []byte, limit int, fromHeight uint32, handler func([]model.HistoryRow, error)) {
	Fetch(b, "history", func(ctx context.Context, store blockchain_store.Store) ([]model.HistoryRow, error) {
		return store.GetHistory(ctx, addressHash, limit, fromHeight)
	}, handler)
}

func (b *Blockchain) FetchStealth(prefix uint32, bits uint8, fromHeight uint32, handler func([]model.StealthRow, error)) {
	Fetch(b, "stealth", func(ctx context.Context, store blockchain_store.Store) ([]model.StealthRow, error) {
		return store.GetStealth(ctx, prefix, bits, fromHeight)
	}, handler)
}
