package fetch

// BlockRange represents an inclusive block range.
type BlockRange struct {
	From uint64
	To   uint64
}

// Blocks returns the number of heights covered.
func (r BlockRange) Blocks() uint64 {
	if r.To < r.From {
		return 0
	}
	return r.To - r.From + 1
}

// window returns the range starting at from spanning at most stride blocks,
// clamped to end.
func window(from, stride, end uint64) BlockRange {
	if stride == 0 {
		stride = 1
	}
	to := from + stride - 1
	if to < from || to > end {
		to = end
	}
	return BlockRange{From: from, To: to}
}

// narrower returns the next stride to try after a size-limit rejection.
// The first narrowing drops to small; below that the stride is halved.
// It returns false once a single block has been rejected.
func narrower(stride, small uint64) (uint64, bool) {
	if stride <= 1 {
		return 0, false
	}
	if small > 0 && stride > small {
		return small, true
	}
	return stride / 2, true
}
