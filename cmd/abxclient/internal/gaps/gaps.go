// Package gaps finds sequence numbers absent from an observed range.
package gaps

import (
	"github.com/bits-and-blooms/bitset"
)

// Span returns the size of the inclusive range [min, max] covered by seqs,
// or 0 when seqs is empty.
func Span(seqs []int32) int64 {
	if len(seqs) == 0 {
		return 0
	}
	lo, hi := bounds(seqs)
	return int64(hi) - int64(lo) + 1
}

// FindMissing returns, in ascending order, every integer between the smallest
// and largest value of seqs that does not occur in seqs. Duplicates in seqs are
// allowed and seqs is not modified.
func FindMissing(seqs []int32) []int32 {
	if len(seqs) == 0 {
		return nil
	}
	lo, hi := bounds(seqs)
	span := uint(int64(hi) - int64(lo) + 1)

	seen := bitset.New(span)
	for _, s := range seqs {
		seen.Set(uint(int64(s) - int64(lo)))
	}

	var missing []int32
	for i := uint(0); i < span; i++ {
		if !seen.Test(i) {
			missing = append(missing, int32(int64(lo)+int64(i)))
		}
	}
	return missing
}

func bounds(seqs []int32) (lo, hi int32) {
	lo, hi = seqs[0], seqs[0]
	for _, s := range seqs[1:] {
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}
	return lo, hi
}
