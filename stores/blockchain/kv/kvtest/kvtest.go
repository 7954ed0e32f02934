// Package kvtest holds the behaviour every kv.Engine must share.
package kvtest

import (
	"context"
	"testing"

	"github.com/bitcoin-sv/chaincore/errors"
	"github.com/bitcoin-sv/chaincore/stores/blockchain/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises engine, which must be empty.
func Run(t *testing.T, engine kv.Engine) {
	t.Helper()

	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		_, err := engine.Get(ctx, kv.TableHeader, []byte{0x01})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrNotFound))
	})

	t.Run("put, overwrite and delete", func(t *testing.T) {
		batch := kv.NewBatch()
		batch.Put(kv.TableMeta, []byte("tip"), []byte{0x01})
		batch.Put(kv.TableMeta, []byte("tip"), []byte{0x02})
		batch.Put(kv.TableHeader, []byte("tip"), []byte{0x03})
		require.NoError(t, engine.Apply(ctx, batch))

		value, err := engine.Get(ctx, kv.TableMeta, []byte("tip"))
		require.NoError(t, err)
		assert.Equal(t, []byte{0x02}, value)

		// tables do not share keys
		value, err = engine.Get(ctx, kv.TableHeader, []byte("tip"))
		require.NoError(t, err)
		assert.Equal(t, []byte{0x03}, value)

		batch = kv.NewBatch()
		batch.Delete(kv.TableMeta, []byte("tip"))
		batch.Delete(kv.TableMeta, []byte("never written"))
		require.NoError(t, engine.Apply(ctx, batch))

		_, err = engine.Get(ctx, kv.TableMeta, []byte("tip"))
		assert.True(t, errors.Is(err, errors.ErrNotFound))
	})

	t.Run("ordered scan", func(t *testing.T) {
		batch := kv.NewBatch()
		for _, key := range [][]byte{{0x02, 0x01}, {0x01, 0xff}, {0x02, 0x00}, {0x03}, {0x02}} {
			batch.Put(kv.TableHistory, key, key)
		}

		batch.Put(kv.TableStealth, []byte{0x02, 0x05}, []byte{0x00})
		require.NoError(t, engine.Apply(ctx, batch))

		var keys [][]byte

		require.NoError(t, engine.Scan(ctx, kv.TableHistory, []byte{0x02}, kv.PrefixEnd([]byte{0x02}), func(key, value []byte) bool {
			assert.Equal(t, key, value)
			keys = append(keys, key)

			return true
		}))

		assert.Equal(t, [][]byte{{0x02}, {0x02, 0x00}, {0x02, 0x01}}, keys)

		keys = nil

		require.NoError(t, engine.Scan(ctx, kv.TableHistory, []byte{0x01}, nil, func(key, _ []byte) bool {
			keys = append(keys, key)
			return len(keys) < 2
		}))

		assert.Equal(t, [][]byte{{0x01, 0xff}, {0x02}}, keys)
	})

	t.Run("returned values are copies", func(t *testing.T) {
		value := []byte{0x01, 0x02}

		batch := kv.NewBatch()
		batch.Put(kv.TableTransaction, []byte("tx"), value)
		require.NoError(t, engine.Apply(ctx, batch))

		value[0] = 0xff

		got, err := engine.Get(ctx, kv.TableTransaction, []byte("tx"))
		require.NoError(t, err)
		assert.Equal(t, []byte{0x01, 0x02}, got)
	})
}
