package blockchain

import (
	"bytes"
	"context"

	"github.com/bitcoin-sv/chaincore/errors"
	"github.com/bitcoin-sv/chaincore/model"
	"github.com/bitcoin-sv/chaincore/stores/blockchain/kv"
	"github.com/bitcoin-sv/chaincore/stores/blockchain/options"
	"github.com/bitcoin-sv/chaincore/ulogger"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/bscript"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	safeconversion "github.com/bsv-blockchain/go-safe-conversion"
)

// ChainDB implements Store on any kv.Engine.
type ChainDB struct {
	logger ulogger.Logger
	engine kv.Engine
}

func NewChainDB(logger ulogger.Logger, engine kv.Engine) *ChainDB {
	return &ChainDB{
		logger: logger,
		engine: engine,
	}
}

type row struct {
	table kv.Table
	key   []byte
	value []byte
}

func (c *ChainDB) Push(ctx context.Context, block *model.Block, height uint32, opts ...options.PushBlockOption) error {
	pushOptions := options.ProcessPushBlockOptions(opts...)

	tip, err := c.GetLastHeight(ctx)

	switch {
	case errors.Is(err, errors.ErrNotFound):
		if height != 0 {
			return errors.NewInvalidArgumentError("cannot push block %s at height %d onto an empty chain", block.Hash(), height)
		}
	case err != nil:
		return err
	default:
		if height != tip+1 {
			return errors.NewInvalidArgumentError("cannot push block %s at height %d onto tip %d", block.Hash(), height, tip)
		}

		tipHeader, err := c.GetHeaderByHeight(ctx, tip)
		if err != nil {
			return err
		}

		if !block.Header.HashPrevBlock.IsEqual(tipHeader.Hash()) {
			return errors.NewBlockOrphanError("block %s does not extend tip %s", block.Hash(), tipHeader.Hash())
		}
	}

	rows, err := c.blockRows(ctx, block, height, pushOptions.History, pushOptions.Stealth)
	if err != nil {
		return err
	}

	batch := kv.NewBatch()
	for _, r := range rows {
		batch.Put(r.table, r.key, r.value)
	}

	batch.Put(kv.TableMeta, tipKey, heightKey(height))

	if err = c.engine.Apply(ctx, batch); err != nil {
		return errors.NewStorageError("failed to push block %s at height %d", block.Hash(), height, err)
	}

	c.logger.Debugf("[ChainDB] pushed block %s at height %d with %d rows", block.Hash(), height, batch.Len())

	return nil
}

func (c *ChainDB) Pop(ctx context.Context) (*model.Block, error) {
	tip, err := c.GetLastHeight(ctx)
	if err != nil {
		return nil, err
	}

	block, err := c.GetBlock(ctx, tip)
	if err != nil {
		return nil, err
	}

	// the rows are rebuilt from the stored block, so indexes that were never
	// written are deleted as no-ops
	rows, err := c.blockRows(ctx, block, tip, true, true)
	if err != nil {
		return nil, err
	}

	batch := kv.NewBatch()
	for _, r := range rows {
		batch.Delete(r.table, r.key)
	}

	if tip == 0 {
		batch.Delete(kv.TableMeta, tipKey)
	} else {
		batch.Put(kv.TableMeta, tipKey, heightKey(tip-1))
	}

	if err = c.engine.Apply(ctx, batch); err != nil {
		return nil, errors.NewStorageError("failed to pop block %s at height %d", block.Hash(), tip, err)
	}

	c.logger.Debugf("[ChainDB] popped block %s at height %d", block.Hash(), tip)

	return block, nil
}

func (c *ChainDB) blockRows(ctx context.Context, block *model.Block, height uint32, history, stealth bool) ([]row, error) {
	hash := block.Hash()

	rows := []row{
		{kv.TableHeader, heightKey(height), block.Header.Bytes()},
		{kv.TableBlockIndex, append([]byte(nil), hash[:]...), heightKey(height)},
	}

	hashes := make([]byte, 0, chainhash.HashSize*len(block.Transactions))

	for i, tx := range block.Transactions {
		txHash := tx.Hash()
		hashes = append(hashes, txHash[:]...)

		index, err := safeconversion.IntToUint32(i)
		if err != nil {
			return nil, errors.NewProcessingError("transaction index %d out of range", i, err)
		}

		rows = append(rows, row{kv.TableTransaction, append([]byte(nil), txHash[:]...), encodeTransaction(model.TxPosition{Height: height, Index: index}, tx.Tx.Bytes())})

		if i == 0 {
			continue
		}

		for j, input := range tx.Inputs {
			spender := model.InPoint{Hash: *txHash, Index: uint32(j)} //nolint:gosec // input count fits a varint
			rows = append(rows, row{kv.TableSpend, outPointKey(previousOutPoint(input)), encodeSpend(spender, height)})
		}
	}

	rows = append(rows, row{kv.TableBlockTxs, heightKey(height), hashes})

	if history {
		historyRows, err := c.historyRows(ctx, block, height)
		if err != nil {
			return nil, err
		}

		rows = append(rows, historyRows...)
	}

	if stealth {
		rows = append(rows, stealthRows(block, height)...)
	}

	return rows, nil
}

func previousOutPoint(input *bt.Input) model.OutPoint {
	return model.OutPoint{Hash: *input.PreviousTxIDChainHash(), Index: input.PreviousTxOutIndex}
}

// historyRows records every P2PKH output of block and every input spending one.
func (c *ChainDB) historyRows(ctx context.Context, block *model.Block, height uint32) ([]row, error) {
	var rows []row

	inBlock := make(map[model.OutPoint]*bscript.Script)

	for _, tx := range block.Transactions {
		txHash := tx.Hash()

		for i, output := range tx.Outputs {
			point := model.OutPoint{Hash: *txHash, Index: uint32(i)} //nolint:gosec // output count fits a varint
			inBlock[point] = output.LockingScript

			addressHash, ok := AddressHash(output.LockingScript)
			if !ok {
				continue
			}

			r := model.HistoryRow{Kind: model.HistoryReceived, Point: point, Height: height, Value: output.Satoshis}
			rows = append(rows, row{kv.TableHistory, historyKey(addressHash, height, r.Kind, r.Point), encodeHistoryValue(r)})
		}
	}

	for i, tx := range block.Transactions {
		if i == 0 {
			continue
		}

		txHash := tx.Hash()

		for j, input := range tx.Inputs {
			previous := previousOutPoint(input)

			script, err := c.previousScript(ctx, tx, j, previous, inBlock)
			if err != nil {
				return nil, err
			}

			addressHash, ok := AddressHash(script)
			if !ok {
				continue
			}

			r := model.HistoryRow{
				Kind:     model.HistorySpent,
				Point:    model.OutPoint{Hash: *txHash, Index: uint32(j)}, //nolint:gosec // input count fits a varint
				Height:   height,
				Previous: previous,
			}
			rows = append(rows, row{kv.TableHistory, historyKey(addressHash, height, r.Kind, r.Point), encodeHistoryValue(r)})
		}
	}

	return rows, nil
}

func (c *ChainDB) previousScript(ctx context.Context, tx *model.Tx, index int, previous model.OutPoint, inBlock map[model.OutPoint]*bscript.Script) (*bscript.Script, error) {
	if index < len(tx.Prevouts) && tx.Prevouts[index].Valid {
		return tx.Prevouts[index].LockingScript, nil
	}

	if script, ok := inBlock[previous]; ok {
		return script, nil
	}

	output, _, err := c.GetOutput(ctx, previous)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, nil
		}

		return nil, err
	}

	return output.LockingScript, nil
}

// stealthRows finds null data outputs carrying an ephemeral key that are
// followed by a P2PKH payment.
func stealthRows(block *model.Block, height uint32) []row {
	var rows []row

	for _, tx := range block.Transactions {
		for i := 0; i+1 < len(tx.Outputs); i++ {
			data, ok := nullDataPush(tx.Outputs[i].LockingScript)
			if !ok || len(data) < ephemeralKeySize {
				continue
			}

			addressHash, ok := AddressHash(tx.Outputs[i+1].LockingScript)
			if !ok {
				continue
			}

			value := make([]byte, 0, ephemeralKeySize+addressHashSize)
			value = append(value, data[:ephemeralKeySize]...)
			value = append(value, addressHash...)

			rows = append(rows, row{kv.TableStealth, stealthKey(StealthPrefix(tx.Outputs[i].LockingScript), height, tx.Hash()), value})
		}
	}

	return rows
}

func (c *ChainDB) GetLastHeight(ctx context.Context) (uint32, error) {
	v, err := c.engine.Get(ctx, kv.TableMeta, tipKey)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return 0, errors.NewNotFoundError("chain is empty", err)
		}

		return 0, err
	}

	return decodeHeight(v)
}

func (c *ChainDB) GetHeaderByHeight(ctx context.Context, height uint32) (*model.BlockHeader, error) {
	v, err := c.engine.Get(ctx, kv.TableHeader, heightKey(height))
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.NewNotFoundError("no block at height %d", height, err)
		}

		return nil, err
	}

	return model.NewBlockHeaderFromBytes(v)
}

func (c *ChainDB) GetBlockHeight(ctx context.Context, hash *chainhash.Hash) (uint32, error) {
	v, err := c.engine.Get(ctx, kv.TableBlockIndex, hash[:])
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return 0, errors.NewBlockNotFoundError("block %s is not confirmed", hash, err)
		}

		return 0, err
	}

	return decodeHeight(v)
}

func (c *ChainDB) GetHeaderByHash(ctx context.Context, hash *chainhash.Hash) (*model.BlockHeader, uint32, error) {
	height, err := c.GetBlockHeight(ctx, hash)
	if err != nil {
		return nil, 0, err
	}

	header, err := c.GetHeaderByHeight(ctx, height)
	if err != nil {
		return nil, 0, err
	}

	return header, height, nil
}

func (c *ChainDB) GetBlockTxHashes(ctx context.Context, height uint32) ([]chainhash.Hash, error) {
	v, err := c.engine.Get(ctx, kv.TableBlockTxs, heightKey(height))
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.NewNotFoundError("no block at height %d", height, err)
		}

		return nil, err
	}

	if len(v)%chainhash.HashSize != 0 {
		return nil, errors.NewStorageError("block transactions row at height %d has %d bytes", height, len(v))
	}

	hashes := make([]chainhash.Hash, len(v)/chainhash.HashSize)
	for i := range hashes {
		copy(hashes[i][:], v[i*chainhash.HashSize:])
	}

	return hashes, nil
}

func (c *ChainDB) GetBlock(ctx context.Context, height uint32) (*model.Block, error) {
	header, err := c.GetHeaderByHeight(ctx, height)
	if err != nil {
		return nil, err
	}

	hashes, err := c.GetBlockTxHashes(ctx, height)
	if err != nil {
		return nil, err
	}

	txs := make([]*bt.Tx, len(hashes))

	for i := range hashes {
		if txs[i], _, err = c.GetTransaction(ctx, &hashes[i]); err != nil {
			return nil, err
		}
	}

	return model.NewBlock(header, txs), nil
}

func (c *ChainDB) GetTransaction(ctx context.Context, hash *chainhash.Hash) (*bt.Tx, model.TxPosition, error) {
	v, err := c.engine.Get(ctx, kv.TableTransaction, hash[:])
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, model.TxPosition{}, errors.NewTxNotFoundError("transaction %s is not confirmed", hash, err)
		}

		return nil, model.TxPosition{}, err
	}

	position, raw, err := decodeTransactionPosition(v)
	if err != nil {
		return nil, model.TxPosition{}, err
	}

	tx, err := bt.NewTxFromBytes(raw)
	if err != nil {
		return nil, model.TxPosition{}, errors.NewStorageError("failed to parse transaction %s", hash, err)
	}

	return tx, position, nil
}

func (c *ChainDB) GetOutput(ctx context.Context, outpoint model.OutPoint) (*bt.Output, model.TxPosition, error) {
	tx, position, err := c.GetTransaction(ctx, &outpoint.Hash)
	if err != nil {
		return nil, model.TxPosition{}, err
	}

	if int(outpoint.Index) >= len(tx.Outputs) {
		return nil, model.TxPosition{}, errors.NewNotFoundError("output %s does not exist", outpoint)
	}

	return tx.Outputs[outpoint.Index], position, nil
}

func (c *ChainDB) GetSpend(ctx context.Context, outpoint model.OutPoint) (model.InPoint, uint32, error) {
	v, err := c.engine.Get(ctx, kv.TableSpend, outPointKey(outpoint))
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return model.InPoint{}, 0, errors.NewUnspentOutputError("output %s is unspent", outpoint, err)
		}

		return model.InPoint{}, 0, err
	}

	return decodeSpend(v)
}

func (c *ChainDB) GetHistory(ctx context.Context, addressHash []byte, limit int, fromHeight uint32) ([]model.HistoryRow, error) {
	if len(addressHash) != addressHashSize {
		return nil, errors.NewInvalidArgumentError("address hash must be %d bytes, got %d", addressHashSize, len(addressHash))
	}

	var (
		rows    []model.HistoryRow
		scanErr error
	)

	start := append(bytes.Clone(addressHash), heightKey(fromHeight)...)

	err := c.engine.Scan(ctx, kv.TableHistory, start, kv.PrefixEnd(addressHash), func(k, v []byte) bool {
		r, err := decodeHistory(k, v)
		if err != nil {
			scanErr = err
			return false
		}

		rows = append(rows, r)

		return limit <= 0 || len(rows) < limit
	})
	if err != nil {
		return nil, err
	}

	return rows, scanErr
}

func (c *ChainDB) GetStealth(ctx context.Context, prefix uint32, bits uint8, fromHeight uint32) ([]model.StealthRow, error) {
	var (
		rows    []model.StealthRow
		scanErr error
	)

	start, end := stealthRange(prefix, bits)

	err := c.engine.Scan(ctx, kv.TableStealth, start, end, func(k, v []byte) bool {
		r, err := decodeStealth(k, v)
		if err != nil {
			scanErr = err
			return false
		}

		if r.Height >= fromHeight {
			rows = append(rows, r)
		}

		return true
	})
	if err != nil {
		return nil, err
	}

	return rows, scanErr
}

func (c *ChainDB) Close() error {
	return c.engine.Close()
}
