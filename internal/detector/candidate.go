// Package detector turns a closed window into a periodicity verdict. The
// whole analysis is pure: it reads the frozen window, allocates its own
// working state, and touches nothing shared, so the pool can run any
// number of analyses concurrently.
package detector

import (
	"sort"

	"github.com/alanyoungcy/bazaarpulse/internal/domain"
)

// buildMagnitudes reduces each summary-delta record to a single activity
// magnitude. Positive bucket changes are new standing orders, not
// consumption, so they are clamped away; only disappearances count. The
// per-bucket magnitudes of one record are summed and the result taken
// absolute, yielding one non-negative value per window index.
func buildMagnitudes(deltas []domain.SummaryDelta) []float64 {
	out := make([]float64, len(deltas))
	for i, d := range deltas {
		var sum int64
		for _, change := range d.Changes {
			if change < 0 {
				sum += change
			}
		}
		if sum < 0 {
			sum = -sum
		}
		out[i] = float64(sum)
	}
	return out
}

// ratioPoint couples one window index's consumption ratio with its
// chronological position.
type ratioPoint struct {
	ratio float64
	index int
}

// buildRatios divides each index's magnitude by the same index's
// moving-week delta. An index whose moving-week delta is zero has no
// defined ratio and is dropped; an index with zero magnitude carries no
// consumption event at all and is dropped too, so quiet stretches of the
// window cannot pose as a pattern.
func buildRatios(magnitudes []float64, mwDeltas []int64) []ratioPoint {
	points := make([]ratioPoint, 0, len(magnitudes))
	for i, m := range magnitudes {
		if mwDeltas[i] == 0 || m == 0 {
			continue
		}
		points = append(points, ratioPoint{
			ratio: m / float64(mwDeltas[i]),
			index: i,
		})
	}
	return points
}

// candidate is one contiguous run of the ratio-sorted points: the start
// offset and length identify the run inside the sorted slice.
type candidate struct {
	start int
	size  int
}

// sortPoints orders points ascending by ratio. The sort is stable so
// equal ratios keep chronological order, which keeps candidate
// enumeration deterministic.
func sortPoints(points []ratioPoint) []ratioPoint {
	sorted := make([]ratioPoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ratio < sorted[j].ratio
	})
	return sorted
}

// enumerateCandidates yields every contiguous run of every length over
// the sorted points: n points produce n*(n+1)/2 candidates. Runs below
// the selectable minimum are enumerated anyway; they take part in score
// normalization even though the selector will pass them over.
func enumerateCandidates(n int) []candidate {
	if n == 0 {
		return nil
	}
	cands := make([]candidate, 0, n*(n+1)/2)
	for size := 1; size <= n; size++ {
		for start := 0; start+size <= n; start++ {
			cands = append(cands, candidate{start: start, size: size})
		}
	}
	return cands
}
