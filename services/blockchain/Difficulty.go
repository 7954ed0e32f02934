package blockchain

import (
	"math/big"

	"github.com/bitcoin-sv/chaincore/errors"
	"github.com/bitcoin-sv/chaincore/model"
	"github.com/bitcoin-sv/chaincore/ulogger"
	"github.com/bitcoin-sv/chaincore/util"
	"github.com/bsv-blockchain/go-chaincfg"
)

const (
	DifficultyAdjustmentWindow = 144

	// the emergency adjustment kicks in when six blocks took more than 12 hours
	edaWindow   = 6
	edaDuration = 12 * 60 * 60
)

// HeaderAt returns the header at height of the chain a candidate builds on.
type HeaderAt func(height uint32) (*model.BlockHeader, error)

type suitableBlock struct {
	height uint32
	time   uint32
	bits   model.NBit
}

// Difficulty computes the proof of work bits a block must carry.
type Difficulty struct {
	logger      ulogger.Logger
	chainParams *chaincfg.Params
	powLimit    model.NBit
}

func NewDifficulty(logger ulogger.Logger, params *chaincfg.Params) *Difficulty {
	return &Difficulty{
		logger:      logger,
		chainParams: params,
		powLimit:    model.NewNBitFromUint32(params.PowLimitBits),
	}
}

// WorkRequired returns the bits for a block at height with the given
// timestamp, reading its ancestors through headerAt.
func (d *Difficulty) WorkRequired(height uint32, timestamp uint32, headerAt HeaderAt) (model.NBit, error) {
	if height == 0 {
		return d.powLimit, nil
	}

	previous, err := headerAt(height - 1)
	if err != nil {
		return model.NBit{}, err
	}

	if d.chainParams.NoDifficultyAdjustment {
		return previous.Bits, nil
	}

	if height > uint32(d.chainParams.DaaForkHeight) { //nolint:gosec // configured fork height
		return d.daa(height, timestamp, previous, headerAt)
	}

	return d.legacy(height, timestamp, previous, headerAt)
}

func (d *Difficulty) retargetInterval() uint32 {
	return uint32(d.chainParams.TargetTimespan / d.chainParams.TargetTimePerBlock) //nolint:gosec // positive chain parameter
}

func (d *Difficulty) targetSpacing() int64 {
	return int64(d.chainParams.TargetTimePerBlock.Seconds())
}

// minDifficultyAllowed reports whether a testnet style chain may use the pow
// limit because the block arrived long after its parent.
func (d *Difficulty) minDifficultyAllowed(timestamp uint32, previous *model.BlockHeader) bool {
	return d.chainParams.ReduceMinDifficulty &&
		int64(timestamp) > int64(previous.Timestamp)+2*d.targetSpacing()
}

func (d *Difficulty) legacy(height uint32, timestamp uint32, previous *model.BlockHeader, headerAt HeaderAt) (model.NBit, error) {
	interval := d.retargetInterval()

	if height%interval != 0 {
		if d.minDifficultyAllowed(timestamp, previous) {
			return d.powLimit, nil
		}

		if d.chainParams.ReduceMinDifficulty {
			return d.lastNonMinimumBits(height-1, previous, headerAt)
		}

		if height > uint32(d.chainParams.UahfForkHeight) { //nolint:gosec // configured fork height
			return d.emergencyAdjustment(height, previous, headerAt)
		}

		return previous.Bits, nil
	}

	first, err := headerAt(height - interval)
	if err != nil {
		return model.NBit{}, err
	}

	timespan := int64(d.chainParams.TargetTimespan.Seconds())
	actual := int64(previous.Timestamp) - int64(first.Timestamp)
	actual = max(actual, timespan/4)
	actual = min(actual, timespan*4)

	target := previous.Bits.CalculateTarget()
	target.Mul(target, big.NewInt(actual))
	target.Div(target, big.NewInt(timespan))

	if target.Cmp(d.chainParams.PowLimit) > 0 {
		target.Set(d.chainParams.PowLimit)
	}

	d.logger.Debugf("[Difficulty] retarget at %d: timespan %d, bits %s", height, actual, previous.Bits)

	return model.NewNBitFromUint32(model.BigToCompact(target)), nil
}

// lastNonMinimumBits walks back to the last block that was not mined at the
// pow limit, stopping at a retarget boundary.
func (d *Difficulty) lastNonMinimumBits(height uint32, header *model.BlockHeader, headerAt HeaderAt) (model.NBit, error) {
	interval := d.retargetInterval()

	for height > 0 && height%interval != 0 && header.Bits == d.powLimit {
		height--

		var err error
		if header, err = headerAt(height); err != nil {
			return model.NBit{}, err
		}
	}

	return header.Bits, nil
}

// emergencyAdjustment lowers the difficulty by a fifth when the last six
// blocks took more than twelve hours.
func (d *Difficulty) emergencyAdjustment(height uint32, previous *model.BlockHeader, headerAt HeaderAt) (model.NBit, error) {
	if height <= edaWindow+util.MedianTimeBlocks {
		return previous.Bits, nil
	}

	tipTime, err := pastMedianTime(height-1, headerAt)
	if err != nil {
		return model.NBit{}, err
	}

	earlierTime, err := pastMedianTime(height-1-edaWindow, headerAt)
	if err != nil {
		return model.NBit{}, err
	}

	if int64(tipTime)-int64(earlierTime) < edaDuration {
		return previous.Bits, nil
	}

	target := previous.Bits.CalculateTarget()
	target.Add(target, new(big.Int).Rsh(target, 2))

	if target.Cmp(d.chainParams.PowLimit) > 0 {
		target.Set(d.chainParams.PowLimit)
	}

	d.logger.Infof("[Difficulty] emergency adjustment at %d", height)

	return model.NewNBitFromUint32(model.BigToCompact(target)), nil
}

func (d *Difficulty) daa(height uint32, timestamp uint32, previous *model.BlockHeader, headerAt HeaderAt) (model.NBit, error) {
	if d.minDifficultyAllowed(timestamp, previous) {
		return d.powLimit, nil
	}

	if height < DifficultyAdjustmentWindow+4 {
		return d.powLimit, nil
	}

	last, err := d.suitableBlock(height-1, headerAt)
	if err != nil {
		return model.NBit{}, err
	}

	first, err := d.suitableBlock(height-1-DifficultyAdjustmentWindow, headerAt)
	if err != nil {
		return model.NBit{}, err
	}

	work := new(big.Int)

	for h := first.height + 1; h <= last.height; h++ {
		header, err := headerAt(h)
		if err != nil {
			return model.NBit{}, err
		}

		work.Add(work, model.CalcWork(header.Bits))
	}

	return d.computeTarget(first, last, work), nil
}

// suitableBlock picks the block with the median timestamp of the three ending
// at height.
func (d *Difficulty) suitableBlock(height uint32, headerAt HeaderAt) (suitableBlock, error) {
	blocks := make([]suitableBlock, 3)

	for i := range blocks {
		h := height - uint32(i) //nolint:gosec // i < 3

		header, err := headerAt(h)
		if err != nil {
			return suitableBlock{}, errors.NewProcessingError("error getting suitable block at %d", h, err)
		}

		blocks[i] = suitableBlock{height: h, time: header.Timestamp, bits: header.Bits}
	}

	// sorting network of three
	if blocks[0].time > blocks[2].time {
		blocks[0], blocks[2] = blocks[2], blocks[0]
	}

	if blocks[0].time > blocks[1].time {
		blocks[0], blocks[1] = blocks[1], blocks[0]
	}

	if blocks[1].time > blocks[2].time {
		blocks[1], blocks[2] = blocks[2], blocks[1]
	}

	return blocks[1], nil
}

// computeTarget derives the next target from the work done between two
// suitable blocks, clamping the timespan to [72, 288] target spacings.
func (d *Difficulty) computeTarget(first, last suitableBlock, work *big.Int) model.NBit {
	spacing := d.targetSpacing()

	duration := int64(last.time) - int64(first.time)
	duration = max(duration, 72*spacing)
	duration = min(duration, 288*spacing)

	projectedWork := new(big.Int).Mul(work, big.NewInt(spacing))
	projectedWork.Div(projectedWork, big.NewInt(duration))

	if projectedWork.Sign() == 0 {
		d.logger.Debugf("[Difficulty] projected work is zero - returning %s", last.bits)
		return last.bits
	}

	e := new(big.Int).Lsh(big.NewInt(1), 256)
	newTarget := new(big.Int).Sub(e, projectedWork)
	newTarget.Div(newTarget, projectedWork)

	// clip if above minimum target (too easy)
	if newTarget.Cmp(d.chainParams.PowLimit) > 0 {
		newTarget.Set(d.chainParams.PowLimit)
	}

	return model.NewNBitFromUint32(model.BigToCompact(newTarget))
}

// pastMedianTime is the median timestamp of the up to eleven blocks ending at
// height.
func pastMedianTime(height uint32, headerAt HeaderAt) (uint32, error) {
	timestamps := make([]uint32, 0, util.MedianTimeBlocks)

	for i := 0; i < util.MedianTimeBlocks; i++ {
		header, err := headerAt(height)
		if err != nil {
			return 0, err
		}

		timestamps = append(timestamps, header.Timestamp)

		if height == 0 {
			break
		}

		height--
	}

	return util.CalcPastMedianTime(timestamps)
}
