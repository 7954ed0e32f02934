package model

import (
	"fmt"

	"github.com/bsv-blockchain/go-bt/v2/bscript"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// OutPoint references output Index of transaction Hash.
type OutPoint struct {
	Hash  chainhash.Hash
	Index uint32
}

func (o OutPoint) String() string {
	return fmt.Sprintf("%s:%d", o.Hash, o.Index)
}

// InPoint references input Index of transaction Hash.
type InPoint struct {
	Hash  chainhash.Hash
	Index uint32
}

func (i InPoint) String() string {
	return fmt.Sprintf("%s:%d", i.Hash, i.Index)
}

// PrevOutput is the resolved previous output of an input, filled in by the
// populator before connect.
type PrevOutput struct {
	// Valid is false until the output has been found.
	Valid bool

	LockingScript *bscript.Script
	Satoshis      uint64

	// Height and MedianTimePast describe the block that confirmed the output.
	Height         uint32
	MedianTimePast uint32
	Coinbase       bool

	// Spent is set when a confirmed transaction already spends the output.
	Spent bool
}

// TxPosition locates a confirmed transaction.
type TxPosition struct {
	Height uint32
	Index  uint32
}
