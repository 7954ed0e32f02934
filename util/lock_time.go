package util

// LockTimeThreshold separates block height lock times from unix time lock times.
const LockTimeThreshold = 500000000

const (
	sequenceFinal               = 0xffffffff
	sequenceLockTimeDisabled    = 1 << 31
	sequenceLockTimeIsSeconds   = 1 << 22
	sequenceLockTimeMask        = 0x0000ffff
	sequenceLockTimeGranularity = 9
)

// IsLockTimeSatisfied reports whether lockTime lies before height, or before
// cutoff for time based lock times. Since BIP113 cutoff is the median time past
// rather than the block time.
func IsLockTimeSatisfied(lockTime uint32, height uint32, cutoff uint32) bool {
	if lockTime == 0 {
		return true
	}

	if lockTime < LockTimeThreshold {
		return lockTime < height
	}

	return lockTime < cutoff
}

// IsSequenceFinal reports whether a sequence number opts its input out of lock time.
func IsSequenceFinal(sequence uint32) bool {
	return sequence == sequenceFinal
}

// IsSequenceLockSatisfied evaluates the BIP68 relative lock encoded in
// sequence for an output confirmed at prevHeight with median time past
// prevMedianTime, spent in a block at height with median time past medianTime.
func IsSequenceLockSatisfied(sequence, prevHeight, prevMedianTime, height, medianTime uint32) bool {
	if sequence&sequenceLockTimeDisabled != 0 {
		return true
	}

	value := int64(sequence & sequenceLockTimeMask)

	if sequence&sequenceLockTimeIsSeconds != 0 {
		minTime := int64(prevMedianTime) + value<<sequenceLockTimeGranularity - 1
		return minTime < int64(medianTime)
	}

	minHeight := int64(prevHeight) + value - 1

	return minHeight < int64(height)
}
