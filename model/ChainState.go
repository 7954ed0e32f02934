package model

import (
	"math/big"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/go-chaincfg"
)

// RuleFork is a bitmask of consensus rule changes active at a height.
type RuleFork uint32

const (
	ForkNone RuleFork = 0

	// ForkBIP16 enables pay to script hash evaluation.
	ForkBIP16 RuleFork = 1 << iota
	// ForkBIP30 forbids overwriting unspent transactions.
	ForkBIP30
	// ForkBIP34 requires the height in the coinbase.
	ForkBIP34
	// ForkBIP65 enables OP_CHECKLOCKTIMEVERIFY.
	ForkBIP65
	// ForkBIP66 enforces strict DER signatures.
	ForkBIP66
	// ForkCSV enables relative lock times and median time past finality (BIP68/112/113).
	ForkCSV
	// ForkUAHF enables SIGHASH_FORKID replay protection.
	ForkUAHF
	// ForkDAA enables the 144 block difficulty adjustment.
	ForkDAA
	// ForkGenesis lifts the script limits removed by the Genesis upgrade.
	ForkGenesis
	// ForkBIP141 switches block sigop accounting to the weighted fast sigop cap.
	ForkBIP141
)

// bip16 activation time on mainnet, 2012-04-01.
const bip16SwitchTime = 1333238400

const (
	// MaxBlockSigopsPerMB is the legacy sigop allowance per started megabyte.
	MaxBlockSigopsPerMB = 20000
	// MaxFastSigops is the cap used when ForkBIP141 is active.
	MaxFastSigops = 80000
	// FastSigopFactor scales legacy sigops when ForkBIP141 is active.
	FastSigopFactor = 4
	oneMegabyte     = 1000000
)

// AllowedSigops returns the legacy sigop cap for a block of the given size.
func AllowedSigops(blockSize uint64) uint64 {
	mb := (blockSize + oneMegabyte - 1) / oneMegabyte
	if mb == 0 {
		mb = 1
	}

	return mb * MaxBlockSigopsPerMB
}

// ChainState is the consensus context for validating the block at Height.
// It is immutable once built and shared by all validation buckets.
type ChainState struct {
	Height           uint32
	Forks            RuleFork
	MedianTimePast   uint32
	BlockTime        uint32
	WorkRequired     NBit
	MinimumVersion   uint32
	CoinbaseMaturity uint32
	SubsidyInterval  uint32
	MaxBlockSize     uint64
	PowLimit         *big.Int

	// GenesisHeight is the Genesis activation height; outputs created at or
	// above it are evaluated under the relaxed script rules.
	GenesisHeight uint32

	// UnderCheckpoint is set when Height is at or below the highest configured checkpoint.
	UnderCheckpoint bool
	// CheckpointHash is the configured hash for Height, if any.
	CheckpointHash *chainhash.Hash
}

func (s *ChainState) IsEnabled(fork RuleFork) bool {
	return s.Forks&fork != 0
}

// IsUnderCheckpoint reports whether expensive per-transaction work may be skipped.
func (s *ChainState) IsUnderCheckpoint() bool {
	return s.UnderCheckpoint
}

// ForksAt returns the rule forks active for a block at height with the given
// header timestamp.
func ForksAt(params *chaincfg.Params, height uint32, timestamp uint32) RuleFork {
	forks := ForkBIP30

	if timestamp >= bip16SwitchTime {
		forks |= ForkBIP16
	}

	if height >= uint32(params.BIP0034Height) {
		forks |= ForkBIP34
	}

	if height >= uint32(params.BIP0065Height) {
		forks |= ForkBIP65
	}

	if height >= uint32(params.BIP0066Height) {
		forks |= ForkBIP66
	}

	if height >= uint32(params.CSVHeight) {
		forks |= ForkCSV
	}

	if height > uint32(params.UahfForkHeight) {
		forks |= ForkUAHF
	}

	if height > uint32(params.DaaForkHeight) {
		forks |= ForkDAA
	}

	if height >= uint32(params.GenesisActivationHeight) {
		forks |= ForkGenesis
	}

	return forks
}

// MinimumBlockVersion returns the lowest header version accepted under forks.
func MinimumBlockVersion(forks RuleFork) uint32 {
	switch {
	case forks&ForkBIP65 != 0:
		return 4
	case forks&ForkBIP66 != 0:
		return 3
	case forks&ForkBIP34 != 0:
		return 2
	default:
		return 1
	}
}

// Checkpoints returns the configured hash for height and whether height is at
// or below the last checkpoint.
func Checkpoints(params *chaincfg.Params, height uint32) (*chainhash.Hash, bool) {
	var (
		hash    *chainhash.Hash
		highest uint32
	)

	for _, checkpoint := range params.Checkpoints {
		h := uint32(checkpoint.Height) //nolint:gosec // checkpoint heights are positive

		if h > highest {
			highest = h
		}

		if h == height {
			hash = checkpoint.Hash
		}
	}

	return hash, len(params.Checkpoints) > 0 && height <= highest
}

const initialSubsidy uint64 = 50 * 100_000_000

// BlockSubsidy returns the coinbase reward for height, halving every interval blocks.
func BlockSubsidy(height, interval uint32) uint64 {
	if interval == 0 {
		return 0
	}

	halvings := height / interval
	if halvings >= 64 {
		return 0
	}

	return initialSubsidy >> halvings
}
