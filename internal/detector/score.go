package detector

import "sort"

// scores holds the three raw dimensions for one candidate. Lower
// homogeneity and rhythm are better; higher exclusion is better.
type scores struct {
	homogeneity float64
	exclusion   float64
	rhythm      float64
}

// variance returns the population variance of xs. Fewer than two values
// have no spread. The accumulation can come out a hair below zero on
// floating-point error; clamp so callers never see a negative variance.
func variance(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	// Identical values must come out exactly zero. mean = sum/n picks up
	// rounding error, and min-max normalization downstream would stretch
	// a ~1e-34 residue into a full [0,1] signal.
	equal := true
	for _, x := range xs[1:] {
		if x != xs[0] {
			equal = false
			break
		}
	}
	if equal {
		return 0
	}

	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))

	var v float64
	for _, x := range xs {
		d := x - mean
		v += d * d
	}
	v /= float64(len(xs))
	if v < 0 {
		v = 0
	}
	return v
}

// scoreCandidate computes the raw dimensions for one run of the sorted
// points.
//
// Homogeneity is the variance of the run's own ratios. Exclusion is the
// variance of every ratio outside the run. Rhythm takes the run's
// chronological indices in window order and measures the variance of
// the gaps between consecutive ones; a perfectly periodic group has
// identical gaps and scores zero.
func scoreCandidate(sorted []ratioPoint, c candidate) scores {
	member := make([]float64, 0, c.size)
	rest := make([]float64, 0, len(sorted)-c.size)
	indices := make([]int, 0, c.size)

	for i, p := range sorted {
		if i >= c.start && i < c.start+c.size {
			member = append(member, p.ratio)
			indices = append(indices, p.index)
		} else {
			rest = append(rest, p.ratio)
		}
	}

	sort.Ints(indices)
	gaps := make([]float64, 0, len(indices))
	for i := 1; i < len(indices); i++ {
		gaps = append(gaps, float64(indices[i]-indices[i-1]))
	}

	return scores{
		homogeneity: variance(member),
		exclusion:   variance(rest),
		rhythm:      variance(gaps),
	}
}

// normalize min-max normalizes each dimension across all candidates:
// v -> (v-min)/(max-min), so the best homogeneity and rhythm map to 0
// and the best exclusion maps to 1. A degenerate dimension, where every
// candidate scored the same, maps to 0 for all of them.
func normalize(raw []scores) []scores {
	if len(raw) == 0 {
		return nil
	}

	minS, maxS := raw[0], raw[0]
	for _, s := range raw[1:] {
		if s.homogeneity < minS.homogeneity {
			minS.homogeneity = s.homogeneity
		}
		if s.homogeneity > maxS.homogeneity {
			maxS.homogeneity = s.homogeneity
		}
		if s.exclusion < minS.exclusion {
			minS.exclusion = s.exclusion
		}
		if s.exclusion > maxS.exclusion {
			maxS.exclusion = s.exclusion
		}
		if s.rhythm < minS.rhythm {
			minS.rhythm = s.rhythm
		}
		if s.rhythm > maxS.rhythm {
			maxS.rhythm = s.rhythm
		}
	}

	norm := make([]scores, len(raw))
	for i, s := range raw {
		norm[i] = scores{
			homogeneity: scale(s.homogeneity, minS.homogeneity, maxS.homogeneity),
			exclusion:   scale(s.exclusion, minS.exclusion, maxS.exclusion),
			rhythm:      scale(s.rhythm, minS.rhythm, maxS.rhythm),
		}
	}
	return norm
}

func scale(v, min, max float64) float64 {
	if max == min {
		return 0
	}
	return (v - min) / (max - min)
}
