package util

import "golang.org/x/sync/errgroup"

// SafeSetLimit sets the limit on an errgroup.Group, panicking on zero because
// errgroup.SetLimit(0) would block every Go call forever.
func SafeSetLimit(g *errgroup.Group, limit int) {
	if limit == 0 {
		panic("limit cannot be 0")
	}

	g.SetLimit(limit)
}

// BucketCount returns how many buckets to split items over given a pool of
// workers: min(workers, items), and at least one worker is assumed.
func BucketCount(workers int, items uint64) int {
	if workers < 1 {
		workers = 1
	}

	if uint64(workers) > items {
		return int(items) //nolint:gosec // items < workers
	}

	return workers
}
