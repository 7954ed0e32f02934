package blockchain

import (
	"encoding/binary"

	"github.com/bitcoin-sv/chaincore/errors"
	"github.com/bitcoin-sv/chaincore/model"
	"github.com/bsv-blockchain/go-bt/v2/bscript"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// Row layouts. All integers in keys are big endian so that keys sort by value.
//
//	meta         "tip"                               -> height(4)
//	header       height(4)                           -> header(80)
//	block_index  hash(32)                            -> height(4)
//	block_txs    height(4)                           -> txid(32)...
//	transaction  txid(32)                            -> height(4) index(4) raw
//	spend        outpoint(36)                        -> inpoint(36) height(4)
//	history      addressHash(20) height(4) kind(1) point(36) -> value(8) | previous(36)
//	stealth      prefix(4) height(4) txid(32)        -> ephemeralKey(32) addressHash(20)
const (
	pointSize        = chainhash.HashSize + 4
	addressHashSize  = 20
	ephemeralKeySize = 32
	historyKeySize   = addressHashSize + 4 + 1 + pointSize
	stealthKeySize   = 4 + 4 + chainhash.HashSize
)

var tipKey = []byte("tip")

func heightKey(height uint32) []byte {
	k := make([]byte, 4)
	binary.BigEndian.PutUint32(k, height)

	return k
}

func pointKey(hash *chainhash.Hash, index uint32) []byte {
	k := make([]byte, pointSize)
	copy(k, hash[:])
	binary.BigEndian.PutUint32(k[chainhash.HashSize:], index)

	return k
}

func outPointKey(o model.OutPoint) []byte {
	return pointKey(&o.Hash, o.Index)
}

func decodePoint(b []byte) (chainhash.Hash, uint32) {
	var hash chainhash.Hash

	copy(hash[:], b[:chainhash.HashSize])

	return hash, binary.BigEndian.Uint32(b[chainhash.HashSize:pointSize])
}

func decodeHeight(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, errors.NewStorageError("height row has %d bytes", len(b))
	}

	return binary.BigEndian.Uint32(b), nil
}

func encodeTransaction(position model.TxPosition, raw []byte) []byte {
	v := make([]byte, 8+len(raw))
	binary.BigEndian.PutUint32(v, position.Height)
	binary.BigEndian.PutUint32(v[4:], position.Index)
	copy(v[8:], raw)

	return v
}

func decodeTransactionPosition(v []byte) (model.TxPosition, []byte, error) {
	if len(v) < 8 {
		return model.TxPosition{}, nil, errors.NewStorageError("transaction row has %d bytes", len(v))
	}

	return model.TxPosition{
		Height: binary.BigEndian.Uint32(v),
		Index:  binary.BigEndian.Uint32(v[4:]),
	}, v[8:], nil
}

func encodeSpend(in model.InPoint, height uint32) []byte {
	v := make([]byte, pointSize+4)
	copy(v, pointKey(&in.Hash, in.Index))
	binary.BigEndian.PutUint32(v[pointSize:], height)

	return v
}

func decodeSpend(v []byte) (model.InPoint, uint32, error) {
	if len(v) != pointSize+4 {
		return model.InPoint{}, 0, errors.NewStorageError("spend row has %d bytes", len(v))
	}

	hash, index := decodePoint(v)

	return model.InPoint{Hash: hash, Index: index}, binary.BigEndian.Uint32(v[pointSize:]), nil
}

func historyKey(addressHash []byte, height uint32, kind model.HistoryKind, point model.OutPoint) []byte {
	k := make([]byte, historyKeySize)
	copy(k, addressHash)
	binary.BigEndian.PutUint32(k[addressHashSize:], height)
	k[addressHashSize+4] = byte(kind)
	copy(k[addressHashSize+5:], outPointKey(point))

	return k
}

func encodeHistoryValue(row model.HistoryRow) []byte {
	if row.Kind == model.HistorySpent {
		return outPointKey(row.Previous)
	}

	v := make([]byte, 8)
	binary.BigEndian.PutUint64(v, row.Value)

	return v
}

func decodeHistory(k, v []byte) (model.HistoryRow, error) {
	if len(k) != historyKeySize {
		return model.HistoryRow{}, errors.NewStorageError("history key has %d bytes", len(k))
	}

	hash, index := decodePoint(k[addressHashSize+5:])

	row := model.HistoryRow{
		Kind:   model.HistoryKind(k[addressHashSize+4]),
		Point:  model.OutPoint{Hash: hash, Index: index},
		Height: binary.BigEndian.Uint32(k[addressHashSize:]),
	}

	switch {
	case row.Kind == model.HistorySpent && len(v) == pointSize:
		prevHash, prevIndex := decodePoint(v)
		row.Previous = model.OutPoint{Hash: prevHash, Index: prevIndex}
	case row.Kind == model.HistoryReceived && len(v) == 8:
		row.Value = binary.BigEndian.Uint64(v)
	default:
		return model.HistoryRow{}, errors.NewStorageError("history value of %s row has %d bytes", row.Kind, len(v))
	}

	return row, nil
}

func stealthKey(prefix uint32, height uint32, txHash *chainhash.Hash) []byte {
	k := make([]byte, stealthKeySize)
	binary.BigEndian.PutUint32(k, prefix)
	binary.BigEndian.PutUint32(k[4:], height)
	copy(k[8:], txHash[:])

	return k
}

func decodeStealth(k, v []byte) (model.StealthRow, error) {
	if len(k) != stealthKeySize || len(v) != ephemeralKeySize+addressHashSize {
		return model.StealthRow{}, errors.NewStorageError("stealth row has %d/%d bytes", len(k), len(v))
	}

	var hash chainhash.Hash

	copy(hash[:], k[8:])

	return model.StealthRow{
		Prefix:       binary.BigEndian.Uint32(k),
		Height:       binary.BigEndian.Uint32(k[4:]),
		TxHash:       hash,
		EphemeralKey: append([]byte(nil), v[:ephemeralKeySize]...),
		AddressHash:  append([]byte(nil), v[ephemeralKeySize:]...),
	}, nil
}

// AddressHash returns the hash160 a P2PKH script pays to.
func AddressHash(script *bscript.Script) ([]byte, bool) {
	if script == nil || !script.IsP2PKH() {
		return nil, false
	}

	return append([]byte(nil), (*script)[3:3+addressHashSize]...), true
}

// nullDataPush returns the first push of an OP_RETURN (or OP_FALSE OP_RETURN)
// script.
func nullDataPush(script *bscript.Script) ([]byte, bool) {
	if script == nil {
		return nil, false
	}

	s := []byte(*script)

	if len(s) > 0 && s[0] == bscript.OpFALSE {
		s = s[1:]
	}

	if len(s) < 2 || s[0] != bscript.OpRETURN {
		return nil, false
	}

	op := s[1]
	s = s[2:]

	var size int

	switch {
	case op > bscript.OpFALSE && op < bscript.OpPUSHDATA1:
		size = int(op)
	case op == bscript.OpPUSHDATA1 && len(s) >= 1:
		size, s = int(s[0]), s[1:]
	case op == bscript.OpPUSHDATA2 && len(s) >= 2:
		size, s = int(binary.LittleEndian.Uint16(s)), s[2:]
	case op == bscript.OpPUSHDATA4 && len(s) >= 4:
		size, s = int(binary.LittleEndian.Uint32(s)), s[4:]
	default:
		return nil, false
	}

	if size > len(s) {
		return nil, false
	}

	return s[:size], true
}

// StealthPrefix is the first 32 bits of the double SHA256 of a stealth
// announcement script.
func StealthPrefix(script *bscript.Script) uint32 {
	return binary.BigEndian.Uint32(chainhash.DoubleHashB(*script))
}

// stealthRange returns the key range of rows whose prefix matches the top bits
// of prefix.
func stealthRange(prefix uint32, bits uint8) (start, end []byte) {
	if bits == 0 {
		return []byte{}, nil
	}

	if bits > 32 {
		bits = 32
	}

	mask := ^uint32(0) << (32 - uint(bits))
	low := uint64(prefix & mask)
	high := low + uint64(1)<<(32-uint(bits))

	start = heightKey(uint32(low)) //nolint:gosec // masked to 32 bits

	if high > uint64(^uint32(0)) {
		return start, nil
	}

	return start, heightKey(uint32(high)) //nolint:gosec // checked above
}
