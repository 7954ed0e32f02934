// Package memory is a volatile kv.Engine backed by swiss maps.
package memory

import (
	"bytes"
	"context"
	"slices"
	"sync"

	"github.com/bitcoin-sv/chaincore/errors"
	"github.com/bitcoin-sv/chaincore/stores/blockchain/kv"
	"github.com/dolthub/swiss"
)

type Memory struct {
	mu     sync.RWMutex
	tables map[kv.Table]*swiss.Map[string, []byte]
	closed bool
}

func New() *Memory {
	m := &Memory{
		tables: make(map[kv.Table]*swiss.Map[string, []byte], len(kv.Tables)),
	}

	for _, table := range kv.Tables {
		m.tables[table] = swiss.NewMap[string, []byte](1024)
	}

	return m
}

func (m *Memory) Get(_ context.Context, table kv.Table, key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, errors.NewStorageError("memory store is closed")
	}

	value, ok := m.tables[table].Get(string(key))
	if !ok {
		return nil, errors.NewNotFoundError("%s key %x not found", table, key)
	}

	return slices.Clone(value), nil
}

func (m *Memory) Scan(_ context.Context, table kv.Table, start, end []byte, fn func(key, value []byte) bool) error {
	type row struct {
		key   []byte
		value []byte
	}

	m.mu.RLock()

	if m.closed {
		m.mu.RUnlock()
		return errors.NewStorageError("memory store is closed")
	}

	var rows []row

	m.tables[table].Iter(func(key string, value []byte) bool {
		k := []byte(key)
		if bytes.Compare(k, start) >= 0 && (end == nil || bytes.Compare(k, end) < 0) {
			rows = append(rows, row{key: k, value: slices.Clone(value)})
		}

		return false
	})

	m.mu.RUnlock()

	slices.SortFunc(rows, func(a, b row) int {
		return bytes.Compare(a.key, b.key)
	})

	for _, r := range rows {
		if !fn(r.key, r.value) {
			break
		}
	}

	return nil
}

func (m *Memory) Apply(_ context.Context, batch *kv.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errors.NewStorageError("memory store is closed")
	}

	for _, op := range batch.Ops {
		if op.Delete {
			m.tables[op.Table].Delete(string(op.Key))
			continue
		}

		m.tables[op.Table].Put(string(op.Key), slices.Clone(op.Value))
	}

	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true

	return nil
}
