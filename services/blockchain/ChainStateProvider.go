package blockchain

import (
	"context"

	"github.com/bitcoin-sv/chaincore/errors"
	"github.com/bitcoin-sv/chaincore/model"
	"github.com/bitcoin-sv/chaincore/settings"
	"github.com/bitcoin-sv/chaincore/ulogger"
)

// HeaderReader is the part of the chain store the state provider needs.
type HeaderReader interface {
	GetHeaderByHeight(ctx context.Context, height uint32) (*model.BlockHeader, error)
}

// ChainStateProvider derives the consensus context of a branch top from the
// chain parameters and the headers below it. Like the populator it reads the
// store directly and must only run inside a write.
type ChainStateProvider struct {
	logger     ulogger.Logger
	settings   *settings.Settings
	headers    HeaderReader
	difficulty *Difficulty
}

func NewChainStateProvider(logger ulogger.Logger, tSettings *settings.Settings, headers HeaderReader) *ChainStateProvider {
	return &ChainStateProvider{
		logger:     logger,
		settings:   tSettings,
		headers:    headers,
		difficulty: NewDifficulty(logger, tSettings.ChainCfgParams),
	}
}

// headerAt resolves heights above the fork point from the branch itself.
func (p *ChainStateProvider) headerAt(branch *model.Branch) HeaderAt {
	return func(height uint32) (*model.BlockHeader, error) {
		if block := branch.BlockAt(height); block != nil {
			return block.Header, nil
		}

		if height > branch.TopHeight() {
			return nil, errors.NewProcessingError("height %d is above the branch top %d", height, branch.TopHeight())
		}

		return p.headers.GetHeaderByHeight(context.Background(), height)
	}
}

func (p *ChainStateProvider) ChainState(branch *model.Branch) (*model.ChainState, error) {
	top := branch.Top()
	if top == nil {
		return nil, errors.NewInvalidArgumentError("empty branch")
	}

	params := p.settings.ChainCfgParams
	height := branch.TopHeight()
	headerAt := p.headerAt(branch)

	forks := model.ForksAt(params, height, top.Header.Timestamp)
	if p.settings.BlockValidation.FastSigops {
		forks |= model.ForkBIP141
	}

	var (
		medianTimePast uint32
		err            error
	)

	if height > 0 {
		if medianTimePast, err = pastMedianTime(height-1, headerAt); err != nil {
			return nil, errors.NewProcessingError("failed to compute median time past at %d", height, err)
		}
	}

	workRequired, err := p.difficulty.WorkRequired(height, top.Header.Timestamp, headerAt)
	if err != nil {
		return nil, errors.NewProcessingError("failed to compute work required at %d", height, err)
	}

	state := &model.ChainState{
		Height:           height,
		Forks:            forks,
		MedianTimePast:   medianTimePast,
		BlockTime:        top.Header.Timestamp,
		WorkRequired:     workRequired,
		MinimumVersion:   model.MinimumBlockVersion(forks),
		CoinbaseMaturity: uint32(params.CoinbaseMaturity),
		SubsidyInterval:  uint32(params.SubsidyReductionInterval), //nolint:gosec // positive chain parameter
		MaxBlockSize:     p.settings.BlockValidation.MaxBlockSize,
		PowLimit:         params.PowLimit,
		GenesisHeight:    uint32(params.GenesisActivationHeight), //nolint:gosec // positive chain parameter
	}

	if p.settings.BlockValidation.UseCheckpoints {
		state.CheckpointHash, state.UnderCheckpoint = model.Checkpoints(params, height)
	}

	return state, nil
}
