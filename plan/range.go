// Package plan describes the byte ranges handed to the physical I/O layer.
package plan

import (
	"fmt"
	"sort"
)

// Range is a closed interval of byte offsets [Start, End].
type Range struct {
	Start int64
	End   int64
}

// NewRange returns the range [start, end].
//
// Returns an error if either bound is negative or start > end.
func NewRange(start, end int64) (Range, error) {
	if start < 0 || end < 0 {
		return Range{}, fmt.Errorf("negative range bounds [%d, %d]", start, end)
	}
	if start > end {
		return Range{}, fmt.Errorf("range start %d is after end %d", start, end)
	}
	return Range{Start: start, End: end}, nil
}

// Length returns the number of bytes covered by r.
func (r Range) Length() int64 {
	return r.End - r.Start + 1
}

// Contains reports whether o lies entirely within r.
func (r Range) Contains(o Range) bool {
	return r.Start <= o.Start && o.End <= r.End
}

// String formats r as [start-end].
func (r Range) String() string {
	return fmt.Sprintf("[%d-%d]", r.Start, r.End)
}

// Merge returns the minimal sorted set of disjoint ranges covering the same
// bytes as ranges. Ranges that overlap or touch (next.Start <= cur.End+1) are
// coalesced. The input slice is not modified.
func Merge(ranges []Range) []Range {
	if len(ranges) == 0 {
		return nil
	}

	sorted := make([]Range, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start == sorted[j].Start {
			return sorted[i].End < sorted[j].End
		}
		return sorted[i].Start < sorted[j].Start
	})

	merged := make([]Range, 0, len(sorted))
	cur := sorted[0]
	for _, next := range sorted[1:] {
		if next.Start <= cur.End+1 {
			if next.End > cur.End {
				cur.End = next.End
			}
			continue
		}
		merged = append(merged, cur)
		cur = next
	}
	return append(merged, cur)
}

// TotalLength returns the sum of the lengths of ranges.
func TotalLength(ranges []Range) int64 {
	var n int64
	for _, r := range ranges {
		n += r.Length()
	}
	return n
}
