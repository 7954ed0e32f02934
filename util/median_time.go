package util

import (
	"slices"

	"github.com/bitcoin-sv/chaincore/errors"
)

// MedianTimeBlocks is the number of previous blocks which should be used to
// calculate the median time used to validate block timestamps.
const MedianTimeBlocks = 11

// CalcPastMedianTime calculates the median of up to MedianTimeBlocks
// timestamps. The input is not modified.
//
// The consensus rules take the upper middle element for even counts, which only
// happens for the first few blocks of a chain.
func CalcPastMedianTime(timestamps []uint32) (uint32, error) {
	if len(timestamps) == 0 {
		return 0, errors.NewProcessingError("no timestamps for median time calculation")
	}

	if len(timestamps) > MedianTimeBlocks {
		return 0, errors.NewProcessingError("too many timestamps for median time calculation")
	}

	sorted := slices.Clone(timestamps)
	slices.Sort(sorted)

	return sorted[len(sorted)/2], nil
}
