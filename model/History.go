package model

import (
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

type HistoryKind uint8

const (
	// HistoryReceived rows record an output paying to the address.
	HistoryReceived HistoryKind = iota
	// HistorySpent rows record an input spending such an output.
	HistorySpent
)

func (k HistoryKind) String() string {
	if k == HistorySpent {
		return "spent"
	}

	return "received"
}

// HistoryRow is one entry of the payment history of an address hash.
//
// For received rows Point is the output and Value its amount. For spent rows
// Point is the spending input and Previous the output it spends.
type HistoryRow struct {
	Kind     HistoryKind
	Point    OutPoint
	Height   uint32
	Value    uint64
	Previous OutPoint
}

// StealthRow pairs an ephemeral key published in a null data output with the
// payment that follows it.
type StealthRow struct {
	Prefix       uint32
	EphemeralKey []byte
	AddressHash  []byte
	TxHash       chainhash.Hash
	Height       uint32
}
