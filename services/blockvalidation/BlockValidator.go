package blockvalidation

import (
	"encoding/hex"
	"time"

	"github.com/bitcoin-sv/chaincore/errors"
	"github.com/bitcoin-sv/chaincore/model"
	"github.com/bitcoin-sv/chaincore/services/validator"
	"github.com/bitcoin-sv/chaincore/settings"
	"github.com/bitcoin-sv/chaincore/ulogger"
	"github.com/bitcoin-sv/chaincore/util"
	"github.com/bitcoin-sv/chaincore/util/dispatcher"
	"go.uber.org/atomic"
)

// BlockValidator validates the top block of a branch. It is created stopped.
//
// Hits and queries describe the last connected block only. Each non-coinbase
// transaction is counted by exactly one bucket, the one whose index equals the
// transaction ordinal modulo the bucket count.
type BlockValidator struct {
	logger    ulogger.Logger
	settings  *settings.Settings
	pool      dispatcher.Pool
	states    ChainStateProvider
	populator BlockPopulator
	verifier  validator.ScriptVerifier

	stopped *atomic.Bool
	hits    *atomic.Uint64
	queries *atomic.Uint64
}

func NewBlockValidator(logger ulogger.Logger, tSettings *settings.Settings, pool dispatcher.Pool, states ChainStateProvider,
	populator BlockPopulator, verifier validator.ScriptVerifier) *BlockValidator {
	initPrometheusMetrics()

	return &BlockValidator{
		logger:    logger,
		settings:  tSettings,
		pool:      pool,
		states:    states,
		populator: populator,
		verifier:  verifier,
		stopped:   atomic.NewBool(true),
		hits:      atomic.NewUint64(0),
		queries:   atomic.NewUint64(0),
	}
}

func (v *BlockValidator) Start() {
	v.stopped.Store(false)
}

func (v *BlockValidator) Stop() {
	v.stopped.Store(true)
}

func (v *BlockValidator) Stopped() bool {
	return v.stopped.Load()
}

// HitRate is the share of non-coinbase transactions of the last connected
// block that were already validated against the current forks.
func (v *BlockValidator) HitRate() float64 {
	queries := v.queries.Load()
	if queries == 0 {
		return 0
	}

	return float64(v.hits.Load()) / float64(queries)
}

// dispatch runs job once per bucket on the reader pool and reports each result.
// A rejected submission is reported in place of the job.
func (v *BlockValidator) dispatch(buckets int, report func(error), job func(bucket int) error) {
	for bucket := 0; bucket < buckets; bucket++ {
		if err := v.pool.Submit(func() { report(job(bucket)) }); err != nil {
			report(err)
		}
	}
}

func (v *BlockValidator) stoppedError() error {
	return errors.NewServiceStoppedError("block validator is stopped")
}

// Check
// -----------------------------------------------------------------------------

// Check runs the context free rules. Transaction hashes are computed on the
// pool before the structural checks read them.
func (v *BlockValidator) Check(block *model.Block, handler func(error)) {
	block.Validation.StartCheck = time.Now()

	count := uint64(len(block.Transactions))
	if count == 0 {
		handler(nil)
		return
	}

	// a single bucket hashes every transaction
	buckets := util.BucketCount(min(1, v.pool.Size()), count)

	join := util.Synchronize(func(err error) {
		v.handleChecked(err, block, handler)
	}, buckets, "block_check")

	v.dispatch(buckets, join, func(bucket int) error {
		return v.checkBlock(block, bucket, buckets)
	})
}

func (v *BlockValidator) checkBlock(block *model.Block, bucket, buckets int) error {
	if v.stopped.Load() {
		return v.stoppedError()
	}

	for tx := bucket; tx < len(block.Transactions); tx += buckets {
		block.Transactions[tx].Hash()
	}

	return nil
}

func (v *BlockValidator) handleChecked(err error, block *model.Block, handler func(error)) {
	if err == nil {
		err = block.Check(v.settings.ChainCfgParams.PowLimit, v.settings.BlockValidation.MaxBlockSize, time.Now(),
			v.settings.BlockValidation.MaxFutureBlockTime)
	}

	prometheusBlockValidationCheck.Observe(time.Since(block.Validation.StartCheck).Seconds())

	if err != nil {
		prometheusBlockValidationInvalid.WithLabelValues("check").Inc()
	}

	handler(err)
}

// Accept
// -----------------------------------------------------------------------------

// Accept resolves the chain state and previous outputs of the branch top, then
// runs the contextual rules and the sigop cap.
func (v *BlockValidator) Accept(branch *model.Branch, handler func(error)) {
	block := branch.Top()
	if block == nil {
		handler(errors.NewProcessingError("accept called with an empty branch"))
		return
	}

	if v.stopped.Load() {
		handler(v.stoppedError())
		return
	}

	block.Validation.StartPopulate = time.Now()

	state, err := v.states.ChainState(branch)

	switch {
	case err != nil:
		handler(errors.NewProcessingError("chain state unavailable for block %s", block.Hash(), err))
		return
	case state == nil:
		handler(errors.NewProcessingError("chain state unavailable for block %s", block.Hash()))
		return
	}

	block.Validation.State = state
	block.Validation.Height = state.Height

	v.populator.Populate(branch, func(err error) {
		v.handlePopulated(err, block, handler)
	})
}

func (v *BlockValidator) handlePopulated(err error, block *model.Block, handler func(error)) {
	if v.stopped.Load() {
		handler(v.stoppedError())
		return
	}

	if err != nil {
		handler(err)
		return
	}

	prometheusBlockValidationPopulate.Observe(time.Since(block.Validation.StartPopulate).Seconds())

	block.Validation.StartAccept = time.Now()

	// a header alone cannot be confirmed, there is no coinbase to accept
	if len(block.Transactions) == 0 {
		prometheusBlockValidationInvalid.WithLabelValues("accept").Inc()
		handler(errors.NewBlockInvalidError("block %s has no transactions", block.Hash()))

		return
	}

	if err = block.Accept(block.Validation.State); err != nil {
		prometheusBlockValidationInvalid.WithLabelValues("accept").Inc()
		handler(err)

		return
	}

	state := block.Validation.State
	sigops := atomic.NewUint64(0)
	bip141 := state.IsEnabled(model.ForkBIP141)

	complete := func(err error) {
		v.handleAccepted(err, block, sigops, bip141, handler)
	}

	if state.IsUnderCheckpoint() {
		complete(nil)
		return
	}

	bip16 := state.IsEnabled(model.ForkBIP16)
	buckets := util.BucketCount(v.pool.Size(), uint64(len(block.Transactions)))

	join := util.Synchronize(complete, buckets, "block_accept")

	v.dispatch(buckets, join, func(bucket int) error {
		return v.acceptTransactions(block, bucket, buckets, sigops, bip16, bip141)
	})
}

func (v *BlockValidator) acceptTransactions(block *model.Block, bucket, buckets int, sigops *atomic.Uint64, bip16, bip141 bool) error {
	if v.stopped.Load() {
		return v.stoppedError()
	}

	var (
		err   error
		state = block.Validation.State
		txs   = block.Transactions
	)

	// not in block order
	for tx := bucket; tx < len(txs) && err == nil; tx += buckets {
		err = txs[tx].Accept(state)
		sigops.Add(txs[tx].SignatureOperations(bip16, bip141))
	}

	return err
}

func (v *BlockValidator) handleAccepted(err error, block *model.Block, sigops *atomic.Uint64, bip141 bool, handler func(error)) {
	if err != nil {
		prometheusBlockValidationInvalid.WithLabelValues("accept").Inc()
		handler(err)

		return
	}

	maxSigops := model.AllowedSigops(block.Size())
	if bip141 {
		maxSigops = model.MaxFastSigops
	}

	block.Validation.Sigops = sigops.Load()

	prometheusBlockValidationAccept.Observe(time.Since(block.Validation.StartAccept).Seconds())
	prometheusBlockValidationSigops.Observe(float64(block.Validation.Sigops))

	if block.Validation.Sigops > maxSigops {
		prometheusBlockValidationInvalid.WithLabelValues("accept").Inc()
		handler(errors.NewBlockSigopLimitError("block %s has %d sigops, limit %d", block.Hash(), block.Validation.Sigops, maxSigops))

		return
	}

	handler(nil)
}

// Connect
// -----------------------------------------------------------------------------

// Connect verifies the input scripts of the branch top. Accept must have
// succeeded on the same branch.
func (v *BlockValidator) Connect(branch *model.Branch, handler func(error)) {
	block := branch.Top()
	if block == nil || block.Validation.State == nil {
		handler(errors.NewProcessingError("connect called without an accepted block"))
		return
	}

	if v.stopped.Load() {
		handler(v.stoppedError())
		return
	}

	block.Validation.StartConnect = time.Now()

	if block.Validation.State.IsUnderCheckpoint() {
		handler(nil)
		return
	}

	inputs := block.TotalInputs(false)
	if inputs == 0 {
		handler(nil)
		return
	}

	// the coinbase counts as cached
	v.hits.Store(0)
	v.queries.Store(0)

	buckets := util.BucketCount(v.pool.Size(), inputs)

	join := util.Synchronize(func(err error) {
		v.handleConnected(err, block, handler)
	}, buckets, "block_connect")

	v.dispatch(buckets, join, func(bucket int) error {
		return v.connectInputs(block, bucket, buckets)
	})
}

func (v *BlockValidator) connectInputs(block *model.Block, bucket, buckets int) error {
	state := block.Validation.State
	position := 0

	for ordinal, tx := range block.Transactions[1:] {
		owner := ordinal%buckets == bucket
		if owner {
			v.queries.Inc()
		}

		// validated against the current forks when it was pooled
		if tx.Current {
			if owner {
				v.hits.Inc()
			}

			continue
		}

		for index := range tx.Inputs {
			p := position
			position++

			if p%buckets != bucket {
				continue
			}

			if v.stopped.Load() {
				return v.stoppedError()
			}

			var err error

			if !tx.Prevouts[index].Valid {
				err = errors.NewMissingPreviousOutputError("transaction %s input %d", tx.Hash(), index)
			} else {
				err = v.verifier.VerifyInput(tx, index, state)
			}

			if err != nil {
				v.dump(err, tx, index, state)
				return err
			}
		}
	}

	return nil
}

func (v *BlockValidator) handleConnected(err error, block *model.Block, handler func(error)) {
	block.Validation.CacheEfficiency = v.HitRate()

	prometheusBlockValidationConnect.Observe(time.Since(block.Validation.StartConnect).Seconds())
	prometheusBlockValidationCacheEfficiency.Set(block.Validation.CacheEfficiency)

	if err != nil {
		prometheusBlockValidationInvalid.WithLabelValues("connect").Inc()
	}

	handler(err)
}

func (v *BlockValidator) dump(err error, tx *model.Tx, index int, state *model.ChainState) {
	input := tx.Inputs[index]
	prevout := tx.Prevouts[index]

	var script string
	if prevout.LockingScript != nil {
		script = hex.EncodeToString(*prevout.LockingScript)
	}

	v.logger.Debugf("[BlockValidator] Verify failed [%d] : %v\n"+
		" forks        : %d\n"+
		" outpoint     : %s:%d\n"+
		" script       : %s\n"+
		" value        : %d\n"+
		" inpoint      : %s:%d\n"+
		" transaction  : %s",
		state.Height, err,
		state.Forks,
		input.PreviousTxIDChainHash(), input.PreviousTxOutIndex,
		script,
		prevout.Satoshis,
		tx.Hash(), index,
		hex.EncodeToString(tx.Bytes()),
	)
}
