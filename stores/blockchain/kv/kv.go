// Package kv defines the ordered key value engine the chain store is built on.
// Engines only need to store opaque rows per table; the row layout lives in
// the blockchain store.
package kv

import (
	"context"
)

type Table uint8

const (
	TableMeta Table = iota
	TableHeader
	TableBlockIndex
	TableBlockTxs
	TableTransaction
	TableSpend
	TableHistory
	TableStealth
)

var tableNames = map[Table]string{
	TableMeta:        "meta",
	TableHeader:      "header",
	TableBlockIndex:  "block_index",
	TableBlockTxs:    "block_txs",
	TableTransaction: "transaction",
	TableSpend:       "spend",
	TableHistory:     "history",
	TableStealth:     "stealth",
}

// Tables lists every table in key order.
var Tables = []Table{TableMeta, TableHeader, TableBlockIndex, TableBlockTxs, TableTransaction, TableSpend, TableHistory, TableStealth}

func (t Table) String() string {
	if name, ok := tableNames[t]; ok {
		return name
	}

	return "unknown"
}

// Engine is an ordered key value store partitioned into tables.
type Engine interface {
	// Get returns errors.ErrNotFound for a missing key.
	Get(ctx context.Context, table Table, key []byte) ([]byte, error)
	// Scan calls fn for every key in [start, end) of table in ascending order
	// until fn returns false. A nil end scans to the end of the table.
	Scan(ctx context.Context, table Table, start, end []byte, fn func(key, value []byte) bool) error
	// Apply writes all operations of batch atomically.
	Apply(ctx context.Context, batch *Batch) error
	Close() error
}

type Op struct {
	Table  Table
	Key    []byte
	Value  []byte
	Delete bool
}

// Batch collects writes to apply in one go. Later operations on the same key
// win.
type Batch struct {
	Ops []Op
}

func NewBatch() *Batch {
	return &Batch{}
}

func (b *Batch) Put(table Table, key, value []byte) {
	b.Ops = append(b.Ops, Op{Table: table, Key: key, Value: value})
}

func (b *Batch) Delete(table Table, key []byte) {
	b.Ops = append(b.Ops, Op{Table: table, Key: key, Delete: true})
}

func (b *Batch) Len() int {
	return len(b.Ops)
}

// PrefixEnd returns the smallest key greater than every key starting with
// prefix, or nil when there is none.
func PrefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)

	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}

	return nil
}
