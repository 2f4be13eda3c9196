package peripheral

import (
	"cmp"

	"golang.org/x/exp/slices"
)

// AddrRange is a half-open byte range [Base, Base+Length).
type AddrRange struct {
	Base   uint32
	Length uint32
}

func (r AddrRange) End() uint64 {
	return uint64(r.Base) + uint64(r.Length)
}

// CoalesceRanges sorts ranges by base address and merges neighbours whose gap
// is at most gap bytes. A negative gap merges overlapping ranges only, so
// the result never contains two ranges sharing a byte.
func CoalesceRanges(ranges []AddrRange, gap int) []AddrRange {
	if len(ranges) == 0 {
		return nil
	}

	sorted := slices.Clone(ranges)
	slices.SortStableFunc(sorted, func(a, b AddrRange) int {
		return cmp.Compare(a.Base, b.Base)
	})

	result := []AddrRange{sorted[0]}
	for _, r := range sorted[1:] {
		last := &result[len(result)-1]
		merge := uint64(r.Base) < last.End()
		if gap >= 0 {
			merge = uint64(r.Base) <= last.End()+uint64(gap)
		}
		if merge {
			if r.End() > last.End() {
				last.Length = uint32(r.End() - uint64(last.Base))
			}
			continue
		}
		result = append(result, r)
	}
	return result
}

// SplitIntoChunks cuts every range into pieces of at most limit bytes.
func SplitIntoChunks(ranges []AddrRange, limit uint32) []AddrRange {
	if limit == 0 {
		return ranges
	}

	var result []AddrRange
	for _, r := range ranges {
		for r.Length > limit {
			result = append(result, AddrRange{Base: r.Base, Length: limit})
			r.Base += limit
			r.Length -= limit
		}
		if r.Length > 0 {
			result = append(result, r)
		}
	}
	return result
}

// collectRanges gathers the absolute byte ranges of every readable register
// below id.
func (t *Tree) collectRanges(id NodeID) []AddrRange {
	var ranges []AddrRange
	t.walk(id, func(id NodeID, n *node) {
		if n.kind == KindRegister && n.access.CanRead() {
			ranges = append(ranges, AddrRange{Base: t.Address(id), Length: (n.bits + 7) / 8})
		}
	})
	return ranges
}
