package domain

import (
	"math"
	"sort"
)

const (
	// DefaultPosition is assigned to the first entity of an empty collection.
	DefaultPosition = 1024.0
	// PositionGap separates appended entities and rebalanced siblings.
	PositionGap = 1024.0
)

// Placement is the result of positioning one entity among its siblings.
type Placement struct {
	Position float64
	// Rebalanced carries fresh positions for the existing siblings, in their
	// current order, when there was no representable value left at the target
	// index. Nil when the siblings keep their positions.
	Rebalanced []float64
}

// PlaceAt returns the position that puts a new entity at index within siblings.
// siblings must be the current positions in ascending order; index is clamped
// to [0, len(siblings)]. When the neighbours are too close for a distinct
// midpoint, or the siblings are not strictly ascending, every sibling is
// respaced by PositionGap and the position is computed against the new spacing.
func PlaceAt(siblings []float64, index int) Placement {
	if index < 0 {
		index = 0
	}
	if index > len(siblings) {
		index = len(siblings)
	}
	if strictlyAscending(siblings) {
		if pos, ok := between(siblings, index); ok {
			return Placement{Position: pos}
		}
	}
	spread := Spread(len(siblings))
	pos, _ := between(spread, index)
	return Placement{Position: pos, Rebalanced: spread}
}

// Spread returns n positions evenly spaced by PositionGap.
func Spread(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i+1) * PositionGap
	}
	return out
}

// IndexOf returns the index at which an entity with the given position sorts
// among ascending positions: the first index whose position is greater.
func IndexOf(positions []float64, pos float64) int {
	return sort.Search(len(positions), func(i int) bool { return positions[i] > pos })
}

// ValidPosition reports whether p can be persisted as a sort key.
func ValidPosition(p float64) bool {
	return finite(p) && p > 0
}

func between(s []float64, index int) (float64, bool) {
	switch {
	case len(s) == 0:
		return DefaultPosition, true
	case index == 0:
		p := s[0] / 2
		return p, ValidPosition(p) && p < s[0]
	case index == len(s):
		last := s[len(s)-1]
		p := last + PositionGap
		return p, finite(p) && p > last
	default:
		prev, next := s[index-1], s[index]
		p := (prev + next) / 2
		return p, finite(p) && prev < p && p < next
	}
}

func strictlyAscending(s []float64) bool {
	for i, p := range s {
		if !ValidPosition(p) {
			return false
		}
		if i > 0 && p <= s[i-1] {
			return false
		}
	}
	return true
}

func finite(p float64) bool {
	return !math.IsNaN(p) && !math.IsInf(p, 0)
}
