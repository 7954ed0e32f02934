// Package blockchain persists the confirmed chain as rows of a kv.Engine:
// headers, block transaction lists, transactions, spends and the optional
// address history and stealth indexes.
package blockchain

import (
	"context"

	"github.com/bitcoin-sv/chaincore/model"
	"github.com/bitcoin-sv/chaincore/stores/blockchain/options"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// Store is not safe for concurrent writes. Readers running alongside a writer
// may observe a partially applied block; callers that need consistency guard
// reads themselves.
type Store interface {
	// Push confirms block at height, which must be one above the tip (or 0 for
	// an empty store).
	Push(ctx context.Context, block *model.Block, height uint32, opts ...options.PushBlockOption) error
	// Pop removes and returns the tip block.
	Pop(ctx context.Context) (*model.Block, error)

	GetLastHeight(ctx context.Context) (uint32, error)
	GetHeaderByHeight(ctx context.Context, height uint32) (*model.BlockHeader, error)
	GetHeaderByHash(ctx context.Context, hash *chainhash.Hash) (*model.BlockHeader, uint32, error)
	GetBlockHeight(ctx context.Context, hash *chainhash.Hash) (uint32, error)
	GetBlockTxHashes(ctx context.Context, height uint32) ([]chainhash.Hash, error)
	GetBlock(ctx context.Context, height uint32) (*model.Block, error)
	GetTransaction(ctx context.Context, hash *chainhash.Hash) (*bt.Tx, model.TxPosition, error)
	GetOutput(ctx context.Context, outpoint model.OutPoint) (*bt.Output, model.TxPosition, error)
	// GetSpend returns the input spending outpoint and the height it was
	// confirmed at, or ERR_UNSPENT_OUTPUT.
	GetSpend(ctx context.Context, outpoint model.OutPoint) (model.InPoint, uint32, error)
	// GetHistory returns up to limit rows (0 for all) at or above fromHeight.
	GetHistory(ctx context.Context, addressHash []byte, limit int, fromHeight uint32) ([]model.HistoryRow, error)
	// GetStealth returns rows whose prefix matches the top bits of prefix.
	GetStealth(ctx context.Context, prefix uint32, bits uint8, fromHeight uint32) ([]model.StealthRow, error)

	Close() error
}
