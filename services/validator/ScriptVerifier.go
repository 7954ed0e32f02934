// Package validator verifies transaction input scripts with the go-bt script
// interpreter under the rule forks of a chain state.
package validator

import (
	"github.com/bitcoin-sv/chaincore/errors"
	"github.com/bitcoin-sv/chaincore/model"
	"github.com/bitcoin-sv/chaincore/ulogger"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/bscript/interpreter"
	"github.com/bsv-blockchain/go-bt/v2/bscript/interpreter/scriptflag"
)

// ScriptVerifier checks that input index of tx unlocks its previous output.
type ScriptVerifier interface {
	VerifyInput(tx *model.Tx, index int, state *model.ChainState) error
}

type GoBtVerifier struct {
	logger ulogger.Logger
}

func NewScriptVerifier(logger ulogger.Logger) *GoBtVerifier {
	return &GoBtVerifier{logger: logger}
}

// VerifyInput requires tx.Prevouts[index] to be populated.
func (v *GoBtVerifier) VerifyInput(tx *model.Tx, index int, state *model.ChainState) error {
	if index < 0 || index >= len(tx.Inputs) {
		return errors.NewInvalidArgumentError("input %d out of range for transaction %s", index, tx.Hash())
	}

	prevout := tx.Prevouts[index]
	if !prevout.Valid || prevout.LockingScript == nil {
		return errors.NewMissingPreviousOutputError("transaction %s input %d", tx.Hash(), index)
	}

	output := &bt.Output{
		Satoshis:      prevout.Satoshis,
		LockingScript: prevout.LockingScript,
	}

	opts := []interpreter.ExecutionOptionFunc{
		interpreter.WithTx(tx.Tx, index, output),
		interpreter.WithFlags(Flags(state, prevout.Height)),
	}

	if state.IsEnabled(model.ForkUAHF) {
		opts = append(opts, interpreter.WithForkID())
	}

	if state.IsEnabled(model.ForkGenesis) && prevout.Height >= state.GenesisHeight {
		opts = append(opts, interpreter.WithAfterGenesis())
	}

	if err := interpreter.NewEngine().Execute(opts...); err != nil {
		return errors.NewScriptVerifyError("transaction %s input %d", tx.Hash(), index, err)
	}

	return nil
}

// Flags maps the active rule forks to interpreter flags for an output created
// at prevoutHeight.
func Flags(state *model.ChainState, prevoutHeight uint32) scriptflag.Flag {
	var flags scriptflag.Flag

	if state.IsEnabled(model.ForkBIP16) {
		flags |= scriptflag.Bip16
	}

	if state.IsEnabled(model.ForkBIP66) {
		flags |= scriptflag.VerifyDERSignatures
	}

	if state.IsEnabled(model.ForkBIP65) {
		flags |= scriptflag.VerifyCheckLockTimeVerify
	}

	if state.IsEnabled(model.ForkCSV) {
		flags |= scriptflag.VerifyCheckSequenceVerify
	}

	if state.IsEnabled(model.ForkUAHF) {
		flags |= scriptflag.EnableSighashForkID | scriptflag.VerifyStrictEncoding
	}

	if state.IsEnabled(model.ForkGenesis) && prevoutHeight >= state.GenesisHeight {
		flags |= scriptflag.UTXOAfterGenesis
	}

	return flags
}
