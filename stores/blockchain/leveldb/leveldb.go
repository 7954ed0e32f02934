// Package leveldb is a persistent kv.Engine on top of goleveldb. Every row is
// stored under a one byte table prefix.
package leveldb

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/bitcoin-sv/chaincore/errors"
	"github.com/bitcoin-sv/chaincore/stores/blockchain/kv"
	"github.com/bitcoin-sv/chaincore/ulogger"
	goleveldb "github.com/btcsuite/goleveldb/leveldb"
	"github.com/btcsuite/goleveldb/leveldb/opt"
	"github.com/btcsuite/goleveldb/leveldb/util"
)

type LevelDB struct {
	logger ulogger.Logger
	db     *goleveldb.DB
	closed atomic.Bool
}

// New opens (or creates) the database named by storeURL. A relative path is
// resolved against dataFolder.
func New(logger ulogger.Logger, storeURL *url.URL, dataFolder string) (*LevelDB, error) {
	path := Path(storeURL, dataFolder)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.NewStorageError("failed to create folder for %s", path, err)
	}

	opts := &opt.Options{
		Compression:        opt.SnappyCompression,
		WriteBuffer:        64 * opt.MiB,
		BlockCacheCapacity: 64 * opt.MiB,
	}

	logger.Infof("Opening LevelDB at %s", path)

	db, err := goleveldb.OpenFile(path, opts)
	if err != nil {
		return nil, errors.NewStorageError("couldn't open LevelDB at %s", path, err)
	}

	return &LevelDB{
		logger: logger,
		db:     db,
	}, nil
}

// Path returns the folder storeURL points at.
func Path(storeURL *url.URL, dataFolder string) string {
	path := storeURL.Host + storeURL.Path
	if path == "" || path == "/" {
		path = "blockchain"
	}

	if storeURL.Host == "" && len(storeURL.Path) > 1 {
		// leveldb:///name is relative, leveldb:////abs/name is not
		path = storeURL.Path[1:]
	}

	if filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(dataFolder, path)
}

func rowKey(table kv.Table, key []byte) []byte {
	k := make([]byte, 1+len(key))
	k[0] = byte(table)
	copy(k[1:], key)

	return k
}

func (l *LevelDB) Get(_ context.Context, table kv.Table, key []byte) ([]byte, error) {
	if l.closed.Load() {
		return nil, errors.NewStorageError("leveldb store is closed")
	}

	value, err := l.db.Get(rowKey(table, key), nil)
	if err != nil {
		if errors.Is(err, goleveldb.ErrNotFound) {
			return nil, errors.NewNotFoundError("%s key %x not found", table, key)
		}

		return nil, errors.NewStorageError("failed to read %s key %x", table, key, err)
	}

	return value, nil
}

func (l *LevelDB) Scan(ctx context.Context, table kv.Table, start, end []byte, fn func(key, value []byte) bool) error {
	if l.closed.Load() {
		return errors.NewStorageError("leveldb store is closed")
	}

	r := &util.Range{
		Start: rowKey(table, start),
	}

	if end != nil {
		r.Limit = rowKey(table, end)
	} else {
		r.Limit = kv.PrefixEnd([]byte{byte(table)})
	}

	iter := l.db.NewIterator(r, nil)
	defer iter.Release()

	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return errors.NewContextCanceledError("scan of %s cancelled", table, err)
		}

		// the iterator reuses its buffers
		key := append([]byte(nil), iter.Key()[1:]...)
		value := append([]byte(nil), iter.Value()...)

		if !fn(key, value) {
			break
		}
	}

	if err := iter.Error(); err != nil {
		return errors.NewStorageError("failed to scan %s", table, err)
	}

	return nil
}

func (l *LevelDB) Apply(_ context.Context, batch *kv.Batch) error {
	if l.closed.Load() {
		return errors.NewStorageError("leveldb store is closed")
	}

	b := new(goleveldb.Batch)

	for _, op := range batch.Ops {
		if op.Delete {
			b.Delete(rowKey(op.Table, op.Key))
			continue
		}

		b.Put(rowKey(op.Table, op.Key), op.Value)
	}

	if err := l.db.Write(b, &opt.WriteOptions{Sync: true}); err != nil {
		return errors.NewStorageError("failed to write batch of %d rows", batch.Len(), err)
	}

	return nil
}

func (l *LevelDB) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}

	return l.db.Close()
}
