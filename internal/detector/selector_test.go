package detector

import "testing"

func TestSelectBest_LowestCombinedWins(t *testing.T) {
	cands := []candidate{
		{start: 0, size: 3},
		{start: 1, size: 4},
		{start: 2, size: 3},
	}
	norm := []scores{
		{homogeneity: 0.5, exclusion: 0.2, rhythm: 0.3}, // 0.6
		{homogeneity: 0.1, exclusion: 0.9, rhythm: 0.1}, // -0.7
		{homogeneity: 0.0, exclusion: 0.4, rhythm: 0.2}, // -0.2
	}

	best, ok := selectBest(cands, norm, 3)
	if !ok {
		t.Fatal("expected a winner")
	}
	if best != 1 {
		t.Errorf("best = %d, want 1", best)
	}
}

func TestSelectBest_MinimumGroupSize(t *testing.T) {
	cands := []candidate{
		{start: 0, size: 1},
		{start: 0, size: 2},
	}
	norm := []scores{
		{exclusion: 1}, // combined -1, but too small to select
		{exclusion: 0.5},
	}

	if _, ok := selectBest(cands, norm, 3); ok {
		t.Error("no candidate reaches the minimum group size, want ok=false")
	}

	best, ok := selectBest(cands, norm, 2)
	if !ok {
		t.Fatal("expected a winner with minGroupSize 2")
	}
	if best != 1 {
		t.Errorf("best = %d, want 1 (the only selectable candidate)", best)
	}
}

func TestSelectBest_TiePrefersLargerRun(t *testing.T) {
	cands := []candidate{
		{start: 0, size: 3},
		{start: 0, size: 6},
		{start: 2, size: 6},
	}
	norm := []scores{{}, {}, {}} // all combined scores are 0

	best, ok := selectBest(cands, norm, 3)
	if !ok {
		t.Fatal("expected a winner")
	}
	// Ties: larger run first, then the smaller start offset.
	if best != 1 {
		t.Errorf("best = %d, want 1", best)
	}
}

func TestSelectBest_Empty(t *testing.T) {
	if _, ok := selectBest(nil, nil, 3); ok {
		t.Error("selectBest on no candidates should report ok=false")
	}
}
