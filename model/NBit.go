package model

import (
	"encoding/binary"
	"encoding/hex"
	"math/big"

	"github.com/bitcoin-sv/chaincore/errors"
)

// NBit is the compact difficulty target as it appears in a serialized header
// (little endian).
type NBit [4]byte

var (
	bigOne    = big.NewInt(1)
	oneLsh256 = new(big.Int).Lsh(bigOne, 256)
)

func NewNBitFromUint32(bits uint32) NBit {
	var nBit NBit
	binary.LittleEndian.PutUint32(nBit[:], bits)

	return nBit
}

// NewNBitFromString parses the conventional big endian hex rendering, e.g. "1d00ffff".
func NewNBitFromString(s string) (NBit, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return NBit{}, errors.NewInvalidArgumentError("invalid nbits hex %q", s, err)
	}

	if len(b) != 4 {
		return NBit{}, errors.NewInvalidArgumentError("nbits must be 4 bytes, got %d", len(b))
	}

	return NewNBitFromUint32(binary.BigEndian.Uint32(b)), nil
}

func NewNBitFromSlice(b []byte) (NBit, error) {
	var nBit NBit

	if len(b) != 4 {
		return nBit, errors.NewInvalidArgumentError("nbits must be 4 bytes, got %d", len(b))
	}

	copy(nBit[:], b)

	return nBit, nil
}

func (b NBit) Uint32() uint32 {
	return binary.LittleEndian.Uint32(b[:])
}

func (b NBit) String() string {
	var be [4]byte
	binary.BigEndian.PutUint32(be[:], b.Uint32())

	return hex.EncodeToString(be[:])
}

func (b NBit) CloneBytes() []byte {
	return []byte{b[0], b[1], b[2], b[3]}
}

func (b NBit) CalculateTarget() *big.Int {
	return CompactToBig(b.Uint32())
}

// CalculateDifficulty returns the difficulty relative to the minimum mainnet
// target 0x1d00ffff.
func (b NBit) CalculateDifficulty() *big.Float {
	target := new(big.Float).SetInt(b.CalculateTarget())
	if target.Sign() == 0 {
		return big.NewFloat(0)
	}

	maxTarget := new(big.Float).SetInt(CompactToBig(0x1d00ffff))

	return new(big.Float).Quo(maxTarget, target)
}

// CompactToBig expands a compact target into a big integer. Bit 23 is a sign
// bit; bits 24-31 are a base 256 exponent.
func CompactToBig(compact uint32) *big.Int {
	mantissa := compact & 0x007fffff
	isNegative := compact&0x00800000 != 0
	exponent := uint(compact >> 24)

	var bn *big.Int

	if exponent <= 3 {
		mantissa >>= 8 * (3 - exponent)
		bn = big.NewInt(int64(mantissa))
	} else {
		bn = big.NewInt(int64(mantissa))
		bn.Lsh(bn, 8*(exponent-3))
	}

	if isNegative {
		bn = bn.Neg(bn)
	}

	return bn
}

// BigToCompact is the inverse of CompactToBig, keeping 23 bits of precision.
func BigToCompact(n *big.Int) uint32 {
	if n.Sign() == 0 {
		return 0
	}

	var mantissa uint32

	exponent := uint(len(n.Bytes()))
	if exponent <= 3 {
		//nolint:gosec // at most three bytes
		mantissa = uint32(n.Bits()[0])
		mantissa <<= 8 * (3 - exponent)
	} else {
		tn := new(big.Int).Set(n)
		//nolint:gosec // shifted down to three bytes
		mantissa = uint32(tn.Rsh(tn, 8*(exponent-3)).Bits()[0])
	}

	// sign bit set, so shift into the next exponent
	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		exponent++
	}

	//nolint:gosec // exponent fits a byte for 256 bit values
	compact := uint32(exponent<<24) | mantissa
	if n.Sign() < 0 {
		compact |= 0x00800000
	}

	return compact
}

// CalcWork returns the expected number of hashes for a block with the given
// bits: 2^256 / (target + 1).
func CalcWork(bits NBit) *big.Int {
	target := bits.CalculateTarget()
	if target.Sign() <= 0 {
		return big.NewInt(0)
	}

	return new(big.Int).Div(oneLsh256, new(big.Int).Add(target, bigOne))
}
