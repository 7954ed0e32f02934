package model

import (
	"sync"

	"github.com/bitcoin-sv/chaincore/errors"
	"github.com/bitcoin-sv/chaincore/util"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/bscript"
	"github.com/bsv-blockchain/go-bt/v2/bscript/interpreter"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

const (
	// MaxSatoshis is the total supply in satoshis.
	MaxSatoshis uint64 = 21_000_000 * 100_000_000

	minCoinbaseScriptLen = 2
	maxCoinbaseScriptLen = 100

	// multisig counts as the maximum number of keys when counted inaccurately.
	maxPubKeysPerMultisig = 20

	nullOutPointIndex = 0xffffffff
)

// Tx is a transaction under validation. The embedded bt.Tx is never modified
// by the validator; Current and Prevouts are validation metadata.
type Tx struct {
	*bt.Tx

	// Current marks a transaction already validated against the present tip,
	// for example one still held in the pool.
	Current bool

	// Prevouts holds the resolved previous output of each input.
	Prevouts []PrevOutput

	hashOnce sync.Once
	hash     *chainhash.Hash
}

func NewTx(tx *bt.Tx) *Tx {
	return &Tx{
		Tx:       tx,
		Prevouts: make([]PrevOutput, len(tx.Inputs)),
	}
}

// Hash returns the txid, computing it at most once.
func (tx *Tx) Hash() *chainhash.Hash {
	tx.hashOnce.Do(func() {
		tx.hash = tx.Tx.TxIDChainHash()
	})

	return tx.hash
}

// Check runs the context free transaction rules.
func (tx *Tx) Check(maxBlockSize uint64) error {
	if len(tx.Inputs) == 0 {
		return errors.NewTxInvalidError("transaction %s has no inputs", tx.Hash())
	}

	if len(tx.Outputs) == 0 {
		return errors.NewTxInvalidError("transaction %s has no outputs", tx.Hash())
	}

	if maxBlockSize > 0 && uint64(tx.Size()) > maxBlockSize {
		return errors.NewTxInvalidError("transaction %s size %d exceeds block size limit", tx.Hash(), tx.Size())
	}

	var total uint64

	for index, output := range tx.Outputs {
		if output.Satoshis > MaxSatoshis {
			return errors.NewTxInvalidError("transaction %s output %d value %d is above the money supply", tx.Hash(), index, output.Satoshis)
		}

		total += output.Satoshis
		if total > MaxSatoshis {
			return errors.NewTxInvalidError("transaction %s total output value is above the money supply", tx.Hash())
		}
	}

	seen := make(map[OutPoint]struct{}, len(tx.Inputs))

	for _, input := range tx.Inputs {
		op := OutPoint{Hash: *input.PreviousTxIDChainHash(), Index: input.PreviousTxOutIndex}
		if _, ok := seen[op]; ok {
			return errors.NewTxInvalidError("transaction %s spends %s more than once", tx.Hash(), op)
		}

		seen[op] = struct{}{}
	}

	if tx.IsCoinbase() {
		scriptLen := 0
		if tx.Inputs[0].UnlockingScript != nil {
			scriptLen = len(*tx.Inputs[0].UnlockingScript)
		}

		if scriptLen < minCoinbaseScriptLen || scriptLen > maxCoinbaseScriptLen {
			return errors.NewTxInvalidError("coinbase script length %d is out of range", scriptLen)
		}

		return nil
	}

	for index, input := range tx.Inputs {
		if isNullOutPoint(input) {
			return errors.NewTxInvalidError("transaction %s input %d references a null outpoint", tx.Hash(), index)
		}
	}

	return nil
}

// Accept runs the contextual non-script rules against the resolved prevouts.
func (tx *Tx) Accept(state *ChainState) error {
	cutoff := state.BlockTime
	if state.IsEnabled(ForkCSV) {
		cutoff = state.MedianTimePast
	}

	if !tx.IsFinal(state.Height, cutoff) {
		return errors.NewLockTimeError("transaction %s is not final at height %d", tx.Hash(), state.Height)
	}

	if tx.IsCoinbase() {
		return nil
	}

	var totalIn uint64

	for index := range tx.Inputs {
		prevout := tx.Prevouts[index]

		if !prevout.Valid {
			return errors.NewMissingPreviousOutputError("transaction %s input %d", tx.Hash(), index)
		}

		if prevout.Spent {
			return errors.NewTxInvalidDoubleSpendError("transaction %s input %d spends a confirmed spent output", tx.Hash(), index)
		}

		if prevout.Coinbase && state.Height-prevout.Height < state.CoinbaseMaturity {
			return errors.NewCoinbaseMaturityError("transaction %s input %d spends coinbase from height %d at height %d", tx.Hash(), index, prevout.Height, state.Height)
		}

		totalIn += prevout.Satoshis
		if prevout.Satoshis > MaxSatoshis || totalIn > MaxSatoshis {
			return errors.NewTxInvalidError("transaction %s input value is above the money supply", tx.Hash())
		}
	}

	if totalOut := tx.TotalOutputSatoshis(); totalIn < totalOut {
		return errors.NewTxInvalidError("transaction %s spends %d but only has %d", tx.Hash(), totalOut, totalIn)
	}

	if state.IsEnabled(ForkCSV) && tx.Version >= 2 {
		if err := tx.checkSequenceLocks(state); err != nil {
			return err
		}
	}

	return nil
}

// IsFinal reports whether the lock time is satisfied at height and cutoff time.
func (tx *Tx) IsFinal(height uint32, cutoff uint32) bool {
	if util.IsLockTimeSatisfied(tx.LockTime, height, cutoff) {
		return true
	}

	for _, input := range tx.Inputs {
		if !util.IsSequenceFinal(input.SequenceNumber) {
			return false
		}
	}

	return true
}

func (tx *Tx) checkSequenceLocks(state *ChainState) error {
	for index, input := range tx.Inputs {
		prevout := tx.Prevouts[index]

		if !util.IsSequenceLockSatisfied(input.SequenceNumber, prevout.Height, prevout.MedianTimePast, state.Height, state.MedianTimePast) {
			return errors.NewLockTimeError("transaction %s input %d relative lock time not met", tx.Hash(), index)
		}
	}

	return nil
}

func (tx *Tx) TotalOutputSatoshis() uint64 {
	var total uint64
	for _, output := range tx.Outputs {
		total += output.Satoshis
	}

	return total
}

// SignatureOperations counts sigops inaccurately in all scripts and, with
// bip16, accurately in the redeem scripts of p2sh spends. With bip141 the
// result is scaled by FastSigopFactor.
func (tx *Tx) SignatureOperations(bip16, bip141 bool) uint64 {
	var sigops uint64

	for _, input := range tx.Inputs {
		sigops += countSigOps(input.UnlockingScript, false)
	}

	for _, output := range tx.Outputs {
		sigops += countSigOps(output.LockingScript, false)
	}

	if bip16 && !tx.IsCoinbase() {
		for index, input := range tx.Inputs {
			prevout := tx.Prevouts[index]
			if !prevout.Valid || prevout.LockingScript == nil || !prevout.LockingScript.IsP2SH() {
				continue
			}

			sigops += countSigOps(redeemScript(input.UnlockingScript), true)
		}
	}

	if bip141 {
		sigops *= FastSigopFactor
	}

	return sigops
}

func countSigOps(script *bscript.Script, accurate bool) uint64 {
	if script == nil || len(*script) == 0 {
		return 0
	}

	parser := interpreter.DefaultOpcodeParser{}

	parsed, err := parser.Parse(script)
	if err != nil {
		return 0
	}

	var (
		count  uint64
		lastOp byte = bscript.OpINVALIDOPCODE
	)

	for _, op := range parsed {
		switch op.Value() {
		case bscript.OpCHECKSIG, bscript.OpCHECKSIGVERIFY:
			count++
		case bscript.OpCHECKMULTISIG, bscript.OpCHECKMULTISIGVERIFY:
			if accurate && lastOp >= bscript.Op1 && lastOp <= bscript.Op16 {
				count += uint64(lastOp - (bscript.Op1 - 1))
			} else {
				count += maxPubKeysPerMultisig
			}
		}

		lastOp = op.Value()
	}

	return count
}

// redeemScript returns the final push of a push only unlocking script.
func redeemScript(unlocking *bscript.Script) *bscript.Script {
	if unlocking == nil || len(*unlocking) == 0 {
		return nil
	}

	parser := interpreter.DefaultOpcodeParser{}

	parsed, err := parser.Parse(unlocking)
	if err != nil || len(parsed) == 0 || !parsed.IsPushOnly() {
		return nil
	}

	return bscript.NewFromBytes(parsed[len(parsed)-1].Data)
}

func isNullOutPoint(input *bt.Input) bool {
	if input.PreviousTxOutIndex != nullOutPointIndex {
		return false
	}

	var zero chainhash.Hash

	return input.PreviousTxIDChainHash().IsEqual(&zero)
}
