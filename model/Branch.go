package model

import (
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// Branch is an uncommitted run of blocks connecting to the main chain above
// ForkHeight. Blocks[0] sits at ForkHeight+1.
type Branch struct {
	ForkHeight uint32
	Blocks     []*Block
}

func NewBranch(forkHeight uint32, blocks ...*Block) *Branch {
	return &Branch{ForkHeight: forkHeight, Blocks: blocks}
}

// Top returns the newest block, or nil for an empty branch.
func (b *Branch) Top() *Block {
	if len(b.Blocks) == 0 {
		return nil
	}

	return b.Blocks[len(b.Blocks)-1]
}

// TopHeight returns the height the top block would have once confirmed.
func (b *Branch) TopHeight() uint32 {
	return b.ForkHeight + uint32(len(b.Blocks)) //nolint:gosec // branch length is small
}

func (b *Branch) Size() int {
	return len(b.Blocks)
}

// HeightOf returns the height of Blocks[i].
func (b *Branch) HeightOf(i int) uint32 {
	return b.ForkHeight + uint32(i) + 1 //nolint:gosec // index within branch
}

// BlockAt returns the branch block at height, if the branch covers it.
func (b *Branch) BlockAt(height uint32) *Block {
	if height <= b.ForkHeight || height > b.TopHeight() {
		return nil
	}

	return b.Blocks[height-b.ForkHeight-1]
}

// ForkHash is the hash the first branch block builds on.
func (b *Branch) ForkHash() *chainhash.Hash {
	if len(b.Blocks) == 0 {
		return nil
	}

	return b.Blocks[0].Header.HashPrevBlock
}

// Push appends block and returns false when it does not link to the current top.
func (b *Branch) Push(block *Block) bool {
	if top := b.Top(); top != nil && !block.Header.HashPrevBlock.IsEqual(top.Hash()) {
		return false
	}

	b.Blocks = append(b.Blocks, block)

	return true
}

// Prefix returns a branch holding the first n blocks.
func (b *Branch) Prefix(n int) *Branch {
	return &Branch{ForkHeight: b.ForkHeight, Blocks: b.Blocks[:n]}
}
