package blockvalidation

import (
	"context"

	"github.com/bitcoin-sv/chaincore/model"
	"github.com/bsv-blockchain/go-bt/v2"
)

// Validator runs the three validation stages. Handlers are called exactly once,
// possibly on a dispatcher worker.
type Validator interface {
	Start()
	Stop()
	Check(block *model.Block, handler func(error))
	Accept(branch *model.Branch, handler func(error))
	Connect(branch *model.Branch, handler func(error))
	HitRate() float64
}

// ChainStateProvider builds the consensus context for the top of a branch.
type ChainStateProvider interface {
	ChainState(branch *model.Branch) (*model.ChainState, error)
}

// BlockPopulator resolves the previous outputs of the top block of a branch.
type BlockPopulator interface {
	Populate(branch *model.Branch, handler func(error))
}

// ChainReader is the unguarded view of the confirmed chain. It is only safe to
// use from inside a store write.
type ChainReader interface {
	GetOutput(ctx context.Context, outpoint model.OutPoint) (*bt.Output, model.TxPosition, error)
	GetSpend(ctx context.Context, outpoint model.OutPoint) (model.InPoint, uint32, error)
	GetHeaderByHeight(ctx context.Context, height uint32) (*model.BlockHeader, error)
}
