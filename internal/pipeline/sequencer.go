package pipeline

import (
	"slices"

	"github.com/jonathan/pikflix/internal/types"
)

// Ordered returns items sorted by rank. Ranks with no item are simply absent.
func Ordered(items []types.ResolvedItem) []types.ResolvedItem {
	out := slices.Clone(items)
	slices.SortStableFunc(out, func(a, b types.ResolvedItem) int {
		return a.Rank - b.Rank
	})
	return out
}

// streamSequencer tracks emission order in streaming mode. It never
// reorders; it only records how far emission strayed from proposal order.
type streamSequencer struct {
	maxRank    int
	emitted    int
	outOfOrder int
}

// observe records that the item with rank was emitted and reports whether it
// came after an item of higher rank.
func (s *streamSequencer) observe(rank int) bool {
	s.emitted++
	late := rank < s.maxRank
	if late {
		s.outOfOrder++
	} else {
		s.maxRank = rank
	}
	return late
}
