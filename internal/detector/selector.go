package detector

// combined folds the normalized dimensions into the single score the
// selector minimizes: lower homogeneity and rhythm pull the score down,
// higher exclusion is rewarded by subtraction.
func combined(s scores) float64 {
	return s.homogeneity + s.rhythm - s.exclusion
}

// selectBest picks the winning candidate: the lowest combined score over
// all candidates of at least minGroupSize members. Ties go to the larger
// group, then to the earlier run in ratio order, so the outcome never
// depends on enumeration accidents. Returns ok=false when no candidate
// is selectable.
func selectBest(cands []candidate, norm []scores, minGroupSize int) (int, bool) {
	best := -1
	var bestScore float64
	for i, c := range cands {
		if c.size < minGroupSize {
			continue
		}
		score := combined(norm[i])
		switch {
		case best == -1 || score < bestScore:
			best, bestScore = i, score
		case score == bestScore && c.size > cands[best].size:
			best = i
		case score == bestScore && c.size == cands[best].size && c.start < cands[best].start:
			best = i
		}
	}
	if best == -1 {
		return 0, false
	}
	return best, true
}
