package model

// BlockStatus describes where a stored block ended up.
type BlockStatus uint8

const (
	BlockStatusNone BlockStatus = iota
	BlockStatusConfirmed
	BlockStatusOrphan
)

func (s BlockStatus) String() string {
	switch s {
	case BlockStatusConfirmed:
		return "confirmed"
	case BlockStatusOrphan:
		return "orphan"
	default:
		return "none"
	}
}

// BlockInfo accompanies every store result.
type BlockInfo struct {
	Status BlockStatus
	Height uint32
}
