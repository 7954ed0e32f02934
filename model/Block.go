package model

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"io"
	"math/big"
	"time"

	"github.com/bitcoin-sv/chaincore/errors"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/bscript"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/go-chaincfg"
	safeconversion "github.com/bsv-blockchain/go-safe-conversion"
	subtreepkg "github.com/bsv-blockchain/go-subtree"
	"github.com/bsv-blockchain/go-wire"
)

// BlockValidation carries the per block validation context and timings. It is
// written by the validator pipeline and read by the store once connected.
type BlockValidation struct {
	State *ChainState

	StartCheck    time.Time
	StartPopulate time.Time
	StartAccept   time.Time
	StartConnect  time.Time

	Sigops          uint64
	CacheEfficiency float64
	Height          uint32
}

type Block struct {
	Header       *BlockHeader
	Transactions []*Tx
	Validation   BlockValidation

	// local
	hash *chainhash.Hash
	size uint64
}

func NewBlock(header *BlockHeader, transactions []*bt.Tx) *Block {
	txs := make([]*Tx, len(transactions))
	for i, tx := range transactions {
		txs[i] = NewTx(tx)
	}

	return &Block{
		Header:       header,
		Transactions: txs,
	}
}

func NewBlockFromBytes(blockBytes []byte) (*Block, error) {
	if len(blockBytes) < BlockHeaderSize {
		return nil, errors.NewInvalidArgumentError("block should be at least %d bytes long, got %d", BlockHeaderSize, len(blockBytes))
	}

	block, err := NewBlockFromReader(bytes.NewReader(blockBytes))
	if err != nil {
		return nil, err
	}

	block.size = uint64(len(blockBytes))

	return block, nil
}

// GenesisBlock returns the genesis block of params.
func GenesisBlock(params *chaincfg.Params) (*Block, error) {
	var buf bytes.Buffer

	if err := params.GenesisBlock.Serialize(&buf); err != nil {
		return nil, errors.NewProcessingError("failed to serialize %s genesis block", params.Name, err)
	}

	return NewBlockFromBytes(buf.Bytes())
}

func NewBlockFromString(blockHex string) (*Block, error) {
	blockBytes, err := hex.DecodeString(blockHex)
	if err != nil {
		return nil, errors.NewInvalidArgumentError("error decoding hex string to bytes", err)
	}

	return NewBlockFromBytes(blockBytes)
}

func NewBlockFromReader(r io.Reader) (*Block, error) {
	var headerBytes [BlockHeaderSize]byte

	if _, err := io.ReadFull(r, headerBytes[:]); err != nil {
		return nil, errors.NewInvalidArgumentError("error reading block header", err)
	}

	header, err := NewBlockHeaderFromBytes(headerBytes[:])
	if err != nil {
		return nil, err
	}

	txCount, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, errors.NewInvalidArgumentError("error reading transaction count", err)
	}

	block := &Block{
		Header:       header,
		Transactions: make([]*Tx, 0, min(txCount, 1<<16)),
	}

	for i := uint64(0); i < txCount; i++ {
		tx := bt.NewTx()

		if _, err = tx.ReadFrom(r); err != nil {
			return nil, errors.NewInvalidArgumentError("error reading transaction %d", i, err)
		}

		block.Transactions = append(block.Transactions, NewTx(tx))
	}

	return block, nil
}

func (b *Block) Hash() *chainhash.Hash {
	if b.hash != nil {
		return b.hash
	}

	b.hash = b.Header.Hash()

	return b.hash
}

func (b *Block) String() string {
	return b.Hash().String()
}

func (b *Block) Bytes() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, b.Size()))

	buf.Write(b.Header.Bytes())
	buf.Write(bt.VarInt(uint64(len(b.Transactions))).Bytes())

	for _, tx := range b.Transactions {
		buf.Write(tx.Bytes())
	}

	return buf.Bytes()
}

// Size returns the serialized size of the block.
func (b *Block) Size() uint64 {
	if b.size != 0 {
		return b.size
	}

	size := BlockHeaderSize + uint64(bt.VarInt(len(b.Transactions)).Length()) //nolint:gosec // length is small
	for _, tx := range b.Transactions {
		size += uint64(tx.Size())
	}

	b.size = size

	return size
}

// TotalInputs counts the inputs of all transactions, optionally skipping the coinbase.
func (b *Block) TotalInputs(includeCoinbase bool) uint64 {
	var total uint64

	for i, tx := range b.Transactions {
		if i == 0 && !includeCoinbase && tx.IsCoinbase() {
			continue
		}

		total += uint64(len(tx.Inputs))
	}

	return total
}

// MerkleRoot computes the root over the transaction hashes, duplicating the last
// hash on odd levels.
func (b *Block) MerkleRoot() (*chainhash.Hash, error) {
	hashes := make([]*chainhash.Hash, len(b.Transactions))
	for i, tx := range b.Transactions {
		hashes[i] = tx.Hash()
	}

	return CalculateMerkleRoot(hashes)
}

func CalculateMerkleRoot(hashes []*chainhash.Hash) (*chainhash.Hash, error) {
	switch len(hashes) {
	case 0:
		return nil, errors.NewInvalidArgumentError("cannot calculate merkle root of no hashes")
	case 1:
		return hashes[0], nil
	}

	st, err := subtreepkg.NewIncompleteTreeByLeafCount(len(hashes))
	if err != nil {
		return nil, errors.NewProcessingError("error creating merkle tree", err)
	}

	for _, hash := range hashes {
		if err = st.AddNode(*hash, 1, 0); err != nil {
			return nil, errors.NewProcessingError("error adding merkle node", err)
		}
	}

	root := st.RootHash()

	return chainhash.NewHash(root[:])
}

// Check runs the context free block rules. Transaction hashes are expected to
// have been computed already where parallelism matters.
func (b *Block) Check(powLimit *big.Int, maxBlockSize uint64, now time.Time, maxFutureTime time.Duration) error {
	if len(b.Transactions) == 0 {
		return errors.NewBlockInvalidError("block %s has no transactions", b.Hash())
	}

	if maxBlockSize > 0 && b.Size() > maxBlockSize {
		return errors.NewBlockInvalidError("block %s size %d exceeds %d", b.Hash(), b.Size(), maxBlockSize)
	}

	if b.Header.Time().After(now.Add(maxFutureTime)) {
		return errors.NewBlockTimestampError("block %s timestamp %d is too far in the future", b.Hash(), b.Header.Timestamp)
	}

	if err := b.Header.HasMetTargetDifficulty(powLimit); err != nil {
		return err
	}

	if !b.Transactions[0].IsCoinbase() {
		return errors.NewBlockInvalidError("first transaction of block %s is not a coinbase", b.Hash())
	}

	seen := make(map[chainhash.Hash]struct{}, len(b.Transactions))

	for i, tx := range b.Transactions {
		if i > 0 && tx.IsCoinbase() {
			return errors.NewBlockInvalidError("block %s has more than one coinbase, second at %d", b.Hash(), i)
		}

		if _, ok := seen[*tx.Hash()]; ok {
			return errors.NewBlockInvalidError("block %s contains duplicate transaction %s", b.Hash(), tx.Hash())
		}

		seen[*tx.Hash()] = struct{}{}

		if err := tx.Check(maxBlockSize); err != nil {
			return err
		}
	}

	return b.CheckMerkleRoot()
}

func (b *Block) CheckMerkleRoot() error {
	root, err := b.MerkleRoot()
	if err != nil {
		return err
	}

	if !b.Header.HashMerkleRoot.IsEqual(root) {
		return errors.NewBlockMerkleMismatchError("block %s merkle root %s does not match calculated %s", b.Hash(), b.Header.HashMerkleRoot, root)
	}

	return nil
}

// Accept runs the block level contextual rules against state. Transaction level
// rules run separately so they can be spread over buckets.
func (b *Block) Accept(state *ChainState) error {
	if state.CheckpointHash != nil && !state.CheckpointHash.IsEqual(b.Hash()) {
		return errors.NewBlockCheckpointError("block %s at height %d does not match checkpoint %s", b.Hash(), state.Height, state.CheckpointHash)
	}

	if b.Header.Version < state.MinimumVersion {
		return errors.NewBlockVersionError("block %s version %d is below %d", b.Hash(), b.Header.Version, state.MinimumVersion)
	}

	if b.Header.Timestamp <= state.MedianTimePast {
		return errors.NewBlockTimestampError("block %s timestamp %d is not after median time past %d", b.Hash(), b.Header.Timestamp, state.MedianTimePast)
	}

	if b.Header.Bits != state.WorkRequired {
		return errors.NewBlockBitsError("block %s bits %s do not match required %s", b.Hash(), b.Header.Bits, state.WorkRequired)
	}

	if state.MaxBlockSize > 0 && b.Size() > state.MaxBlockSize {
		return errors.NewBlockInvalidError("block %s size %d exceeds %d", b.Hash(), b.Size(), state.MaxBlockSize)
	}

	if state.IsEnabled(ForkBIP34) {
		height, err := b.ExtractCoinbaseHeight()
		if err != nil {
			return err
		}

		if height != state.Height {
			return errors.NewCoinbaseMissingHeightError("block %s coinbase height %d does not match %d", b.Hash(), height, state.Height)
		}
	}

	if state.IsUnderCheckpoint() {
		return nil
	}

	return b.checkCoinbaseClaim(state)
}

// checkCoinbaseClaim requires populated prevouts.
func (b *Block) checkCoinbaseClaim(state *ChainState) error {
	if len(b.Transactions) == 0 {
		return errors.NewBlockInvalidError("block %s has no coinbase", b.Hash())
	}

	var fees uint64

	for _, tx := range b.Transactions[1:] {
		var in uint64

		for _, prevout := range tx.Prevouts {
			if !prevout.Valid {
				// reported per transaction
				return nil
			}

			in += prevout.Satoshis
		}

		out := tx.TotalOutputSatoshis()
		if in < out {
			return nil
		}

		fees += in - out
	}

	claim := b.Transactions[0].TotalOutputSatoshis()
	if allowed := BlockSubsidy(state.Height, state.SubsidyInterval) + fees; claim > allowed {
		return errors.NewBlockInvalidError("block %s coinbase claims %d, allowed %d", b.Hash(), claim, allowed)
	}

	return nil
}

// ExtractCoinbaseHeight attempts to extract the height of the block from the
// scriptSig of a coinbase transaction. Coinbase heights are only present in
// blocks of version 2 or later. This was added as part of BIP0034.
func (b *Block) ExtractCoinbaseHeight() (uint32, error) {
	if len(b.Transactions) == 0 || !b.Transactions[0].IsCoinbase() {
		return 0, errors.NewBlockInvalidError("block %s has no coinbase", b.Hash())
	}

	script := b.Transactions[0].Inputs[0].UnlockingScript
	if script == nil || len(*script) < 1 {
		return 0, errors.NewCoinbaseMissingHeightError("the coinbase signature script must start with the length of the serialized block height")
	}

	sigScript := *script

	// small heights are a single opcode
	opcode := sigScript[0]
	if opcode == bscript.Op0 {
		return 0, nil
	}

	if opcode >= bscript.Op1 && opcode <= bscript.Op16 {
		return uint32(opcode - (bscript.Op1 - 1)), nil
	}

	serializedLen := int(opcode)
	if serializedLen > 8 || len(sigScript[1:]) < serializedLen {
		return 0, errors.NewCoinbaseMissingHeightError("the coinbase signature script must start with the serialized block height")
	}

	serializedHeightBytes := make([]byte, 8)
	copy(serializedHeightBytes, sigScript[1:serializedLen+1])

	height, err := safeconversion.Uint64ToUint32(binary.LittleEndian.Uint64(serializedHeightBytes))
	if err != nil {
		return 0, errors.NewCoinbaseMissingHeightError("coinbase height is out of range", err)
	}

	return height, nil
}
