package blockchain

import (
	"context"
	"math/big"
	"sync"

	"github.com/bitcoin-sv/chaincore/errors"
	"github.com/bitcoin-sv/chaincore/model"
	"github.com/bitcoin-sv/chaincore/services/blockvalidation"
	"github.com/bitcoin-sv/chaincore/settings"
	blockchain_store "github.com/bitcoin-sv/chaincore/stores/blockchain"
	"github.com/bitcoin-sv/chaincore/stores/blockchain/options"
	"github.com/bitcoin-sv/chaincore/ulogger"
	"github.com/bitcoin-sv/chaincore/util/dispatcher"
	"go.uber.org/atomic"
)

// Reorganization reports a change of the main chain above ForkHeight. Outgoing
// is empty when the chain was simply extended.
type Reorganization struct {
	ForkHeight uint32
	Incoming   []*model.Block
	Outgoing   []*model.Block
}

type ReorganizeHandler func(*Reorganization)

// Organizer moves pooled blocks onto the main chain once their branch is valid
// and carries more work than the blocks it would replace.
type Organizer struct {
	logger    ulogger.Logger
	settings  *settings.Settings
	store     blockchain_store.Store
	validator blockvalidation.Validator
	orphans   *OrphanPool
	notify    dispatcher.Queue
	stopped   *atomic.Bool

	mu          sync.RWMutex
	subscribers []ReorganizeHandler
}

func NewOrganizer(logger ulogger.Logger, tSettings *settings.Settings, store blockchain_store.Store, validator blockvalidation.Validator,
	orphans *OrphanPool, notify dispatcher.Queue) *Organizer {
	initPrometheusMetrics()

	return &Organizer{
		logger:    logger,
		settings:  tSettings,
		store:     store,
		validator: validator,
		orphans:   orphans,
		notify:    notify,
		stopped:   atomic.NewBool(true),
	}
}

func (o *Organizer) Start() {
	o.orphans.Start()
	o.validator.Start()
	o.stopped.Store(false)
}

func (o *Organizer) Stop() {
	o.stopped.Store(true)
	o.validator.Stop()
	o.orphans.Stop()
}

// SubscribeReorganize registers handler for every chain change. Handlers run
// on the background queue.
func (o *Organizer) SubscribeReorganize(handler ReorganizeHandler) {
	o.mu.Lock()
	o.subscribers = append(o.subscribers, handler)
	o.mu.Unlock()
}

// Organize tries to move block, which must already be pooled, onto the main
// chain together with its pooled ancestors and descendants. It must run inside
// a store write.
func (o *Organizer) Organize(ctx context.Context, block *model.Block) (model.BlockInfo, error) {
	if o.stopped.Load() {
		return model.BlockInfo{}, errors.NewServiceStoppedError("organizer is stopped")
	}

	trace := o.orphans.Trace(block)
	position := len(trace) - 1

	forkHeight, err := o.store.GetBlockHeight(ctx, trace[0].Header.HashPrevBlock)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			o.logger.Debugf("[Organizer] block %s has no confirmed ancestor, keeping it pooled", block.Hash())
			return model.BlockInfo{Status: model.BlockStatusOrphan}, nil
		}

		return model.BlockInfo{}, err
	}

	branch := model.NewBranch(forkHeight, trace...)

	for {
		children := o.orphans.Children(branch.Top().Hash())
		if len(children) == 0 {
			break
		}

		branch.Push(children[0])
	}

	tip, err := o.store.GetLastHeight(ctx)
	if err != nil {
		return model.BlockInfo{}, err
	}

	if limit := o.settings.BlockChain.ReorganizationLimit; limit > 0 && tip-forkHeight > limit {
		o.orphans.Remove(block.Hash())
		return model.BlockInfo{}, errors.NewBlockInvalidError("block %s would reorganize %d blocks, limit is %d", block.Hash(), tip-forkHeight, limit)
	}

	stronger, err := o.stronger(ctx, branch, tip)
	if err != nil {
		return model.BlockInfo{}, err
	}

	if !stronger {
		o.logger.Debugf("[Organizer] branch of %d blocks above %d has insufficient work", branch.Size(), forkHeight)
		return model.BlockInfo{Status: model.BlockStatusOrphan}, nil
	}

	valid, validationErr := o.validate(branch)
	if validationErr != nil {
		// an invalid block takes its pooled descendants with it
		for _, invalid := range branch.Blocks[valid:] {
			o.orphans.Remove(invalid.Hash())
		}

		if position >= valid {
			return model.BlockInfo{}, validationErr
		}

		branch = branch.Prefix(valid)

		if stronger, err = o.stronger(ctx, branch, tip); err != nil || !stronger {
			return model.BlockInfo{Status: model.BlockStatusOrphan}, err
		}
	}

	reorganization, err := o.reorganize(ctx, branch, tip)
	if err != nil {
		return model.BlockInfo{}, err
	}

	o.publish(reorganization)

	return model.BlockInfo{Status: model.BlockStatusConfirmed, Height: branch.HeightOf(position)}, nil
}

// stronger reports whether branch carries more work than the main chain above
// its fork point.
func (o *Organizer) stronger(ctx context.Context, branch *model.Branch, tip uint32) (bool, error) {
	branchWork := new(big.Int)
	for _, block := range branch.Blocks {
		branchWork.Add(branchWork, model.CalcWork(block.Header.Bits))
	}

	mainWork := new(big.Int)

	for height := branch.ForkHeight + 1; height <= tip; height++ {
		header, err := o.store.GetHeaderByHeight(ctx, height)
		if err != nil {
			return false, err
		}

		mainWork.Add(mainWork, model.CalcWork(header.Bits))
	}

	return branchWork.Cmp(mainWork) > 0, nil
}

// validate runs the three stages on each branch block in turn and returns the
// number of valid blocks and the first failure.
func (o *Organizer) validate(branch *model.Branch) (int, error) {
	for i := range branch.Blocks {
		sub := branch.Prefix(i + 1)

		stages := []func(func(error)){
			func(handler func(error)) { o.validator.Check(sub.Top(), handler) },
			func(handler func(error)) { o.validator.Accept(sub, handler) },
			func(handler func(error)) { o.validator.Connect(sub, handler) },
		}

		for _, stage := range stages {
			if err := wait(stage); err != nil {
				o.logger.Warnf("[Organizer] block %s at height %d is invalid: %v", sub.Top().Hash(), sub.TopHeight(), err)
				return i, err
			}
		}
	}

	return branch.Size(), nil
}

func wait(stage func(func(error))) error {
	done := make(chan error, 1)

	stage(func(err error) {
		done <- err
	})

	return <-done
}

// reorganize replaces the main chain above the fork point with branch. A store
// failure puts the previous main chain back before the error is returned.
func (o *Organizer) reorganize(ctx context.Context, branch *model.Branch, tip uint32) (*Reorganization, error) {
	r := &Reorganization{
		ForkHeight: branch.ForkHeight,
		Incoming:   branch.Blocks,
	}

	for height := tip; height > branch.ForkHeight; height-- {
		block, err := o.store.Pop(ctx)
		if err != nil {
			o.restore(ctx, height, 0, r.Outgoing)
			return nil, errors.NewStorageError("failed to pop block at height %d", height, err)
		}

		r.Outgoing = append([]*model.Block{block}, r.Outgoing...)
	}

	for i, block := range branch.Blocks {
		if err := o.store.Push(ctx, block, branch.HeightOf(i), o.pushOptions()...); err != nil {
			o.restore(ctx, branch.ForkHeight, i, r.Outgoing)
			return nil, errors.NewStorageError("failed to push block %s at height %d", block.Hash(), branch.HeightOf(i), err)
		}
	}

	for _, block := range branch.Blocks {
		o.orphans.Remove(block.Hash())
	}

	for _, block := range r.Outgoing {
		o.orphans.Add(block)
	}

	if len(r.Outgoing) > 0 {
		prometheusBlockchainReorgs.Inc()
		o.logger.Infof("[Organizer] reorganized %d blocks above height %d", len(r.Outgoing), branch.ForkHeight)
	}

	prometheusBlockchainHeight.Set(float64(branch.TopHeight()))

	return r, nil
}

// restore pops the pushed branch blocks and pushes outgoing back above base,
// the height of the tip once those are gone. Outgoing blocks that cannot be
// confirmed again are pooled.
func (o *Organizer) restore(ctx context.Context, base uint32, pushed int, outgoing []*model.Block) {
	restored := 0

	defer func() {
		for _, block := range outgoing[restored:] {
			o.orphans.Add(block)
		}
	}()

	for ; pushed > 0; pushed-- {
		if _, err := o.store.Pop(ctx); err != nil {
			o.logger.Errorf("[Organizer] failed to roll back branch above height %d: %v", base, err)
			return
		}
	}

	for i, block := range outgoing {
		height := base + uint32(i) + 1 //nolint:gosec // bounded by the chain height

		if err := o.store.Push(ctx, block, height, o.pushOptions()...); err != nil {
			o.logger.Errorf("[Organizer] failed to restore block %s at height %d: %v", block.Hash(), height, err)
			return
		}

		restored++
	}
}

func (o *Organizer) pushOptions() []options.PushBlockOption {
	indexPayments := o.settings.BlockChain.IndexPayments

	return []options.PushBlockOption{options.WithHistory(indexPayments), options.WithStealth(indexPayments)}
}

func (o *Organizer) publish(r *Reorganization) {
	o.mu.RLock()
	subscribers := append([]ReorganizeHandler(nil), o.subscribers...)
	o.mu.RUnlock()

	for _, subscriber := range subscribers {
		if err := o.notify.Submit(func() { subscriber(r) }); err != nil {
			o.logger.Warnf("[Organizer] failed to notify reorganization subscriber: %v", err)
		}
	}
}
