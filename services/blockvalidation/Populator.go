package blockvalidation

import (
	"context"
	"sync"

	"github.com/bitcoin-sv/chaincore/errors"
	"github.com/bitcoin-sv/chaincore/model"
	"github.com/bitcoin-sv/chaincore/ulogger"
	"github.com/bitcoin-sv/chaincore/util"
	"github.com/bitcoin-sv/chaincore/util/dispatcher"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// Populator fills the previous outputs of the branch top from, in order, the
// earlier transactions of the same block, the lower branch blocks and the
// confirmed chain at or below the fork point.
type Populator struct {
	logger ulogger.Logger
	pool   dispatcher.Pool
	chain  ChainReader
}

func NewPopulator(logger ulogger.Logger, pool dispatcher.Pool, chain ChainReader) *Populator {
	return &Populator{
		logger: logger,
		pool:   pool,
		chain:  chain,
	}
}

type branchOutput struct {
	tx       *model.Tx
	height   uint32
	coinbase bool
	// position in the top block, -1 for lower branch blocks
	topIndex int
}

// populateContext is built once per block and shared read only by the buckets.
type populateContext struct {
	branch  *model.Branch
	outputs map[chainhash.Hash]branchOutput
	// first spender of each outpoint in the branch, by top block position or -1
	spends map[model.OutPoint]int

	mu  sync.Mutex
	mtp map[uint32]uint32
}

func (p *Populator) Populate(branch *model.Branch, handler func(error)) {
	block := branch.Top()
	if block == nil {
		handler(errors.NewProcessingError("populate called with an empty branch"))
		return
	}

	txs := len(block.Transactions) - 1
	if txs <= 0 {
		handler(nil)
		return
	}

	pc := newPopulateContext(branch)
	buckets := util.BucketCount(p.pool.Size(), uint64(txs))
	join := util.Synchronize(handler, buckets, "block_populate")

	for bucket := 0; bucket < buckets; bucket++ {
		if err := p.pool.Submit(func() { join(p.populateTransactions(pc, bucket, buckets)) }); err != nil {
			join(err)
		}
	}
}

func newPopulateContext(branch *model.Branch) *populateContext {
	pc := &populateContext{
		branch:  branch,
		outputs: make(map[chainhash.Hash]branchOutput),
		spends:  make(map[model.OutPoint]int),
		mtp:     make(map[uint32]uint32),
	}

	top := len(branch.Blocks) - 1

	for i, block := range branch.Blocks {
		height := branch.HeightOf(i)

		for index, tx := range block.Transactions {
			topIndex := -1
			if i == top {
				topIndex = index
			}

			pc.outputs[*tx.Hash()] = branchOutput{tx: tx, height: height, coinbase: index == 0, topIndex: topIndex}

			if index == 0 {
				continue
			}

			for _, input := range tx.Inputs {
				outpoint := model.OutPoint{Hash: *input.PreviousTxIDChainHash(), Index: input.PreviousTxOutIndex}
				if _, ok := pc.spends[outpoint]; !ok {
					pc.spends[outpoint] = topIndex
				}
			}
		}
	}

	return pc
}

func (p *Populator) populateTransactions(pc *populateContext, bucket, buckets int) error {
	ctx := context.Background()
	block := pc.branch.Top()

	for position := 1 + bucket; position < len(block.Transactions); position += buckets {
		tx := block.Transactions[position]

		for index, input := range tx.Inputs {
			outpoint := model.OutPoint{Hash: *input.PreviousTxIDChainHash(), Index: input.PreviousTxOutIndex}

			prevout, err := p.resolve(ctx, pc, outpoint, position)
			if err != nil {
				return err
			}

			if prevout.Valid && tx.Version >= 2 {
				if prevout.MedianTimePast, err = p.medianTimePast(ctx, pc, prevout.Height); err != nil {
					return err
				}
			}

			tx.Prevouts[index] = prevout
		}
	}

	return nil
}

func (p *Populator) resolve(ctx context.Context, pc *populateContext, outpoint model.OutPoint, position int) (model.PrevOutput, error) {
	// an earlier spender in the branch makes this one a double spend
	spent := false
	if spender, ok := pc.spends[outpoint]; ok && (spender == -1 || spender < position) {
		spent = true
	}

	if out, ok := pc.outputs[outpoint.Hash]; ok {
		// outputs of later transactions in the top block are not yet available
		if out.topIndex >= position || int(outpoint.Index) >= len(out.tx.Outputs) {
			return model.PrevOutput{}, nil
		}

		output := out.tx.Outputs[outpoint.Index]

		return model.PrevOutput{
			Valid:         true,
			LockingScript: output.LockingScript,
			Satoshis:      output.Satoshis,
			Height:        out.height,
			Coinbase:      out.coinbase,
			Spent:         spent,
		}, nil
	}

	output, txPosition, err := p.chain.GetOutput(ctx, outpoint)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) || errors.Is(err, errors.ErrTxNotFound) {
			return model.PrevOutput{}, nil
		}

		return model.PrevOutput{}, err
	}

	forkHeight := pc.branch.ForkHeight

	// confirmed above the fork point means it is being reorganized out
	if txPosition.Height > forkHeight {
		return model.PrevOutput{}, nil
	}

	if !spent {
		_, spendHeight, err := p.chain.GetSpend(ctx, outpoint)

		switch {
		case err == nil:
			spent = spendHeight <= forkHeight
		case errors.Is(err, errors.ErrUnspentOutput), errors.Is(err, errors.ErrNotFound):
		default:
			return model.PrevOutput{}, err
		}
	}

	return model.PrevOutput{
		Valid:         true,
		LockingScript: output.LockingScript,
		Satoshis:      output.Satoshis,
		Height:        txPosition.Height,
		Coinbase:      txPosition.Index == 0,
		Spent:         spent,
	}, nil
}

// medianTimePast returns the median time past used to validate the block at
// height, i.e. the median of the timestamps of the blocks below it.
func (p *Populator) medianTimePast(ctx context.Context, pc *populateContext, height uint32) (uint32, error) {
	pc.mu.Lock()
	mtp, ok := pc.mtp[height]
	pc.mu.Unlock()

	if ok {
		return mtp, nil
	}

	timestamps := make([]uint32, 0, util.MedianTimeBlocks)

	for h := height; h > 0 && len(timestamps) < util.MedianTimeBlocks; h-- {
		if block := pc.branch.BlockAt(h - 1); block != nil {
			timestamps = append(timestamps, block.Header.Timestamp)
			continue
		}

		header, err := p.chain.GetHeaderByHeight(ctx, h-1)
		if err != nil {
			return 0, errors.NewProcessingError("missing header at height %d", h-1, err)
		}

		timestamps = append(timestamps, header.Timestamp)
	}

	if len(timestamps) == 0 {
		return 0, nil
	}

	mtp, err := util.CalcPastMedianTime(timestamps)
	if err != nil {
		return 0, err
	}

	pc.mu.Lock()
	pc.mtp[height] = mtp
	pc.mu.Unlock()

	return mtp, nil
}
