package detector

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestVariance(t *testing.T) {
	tests := []struct {
		name string
		xs   []float64
		want float64
	}{
		{"empty", nil, 0},
		{"single", []float64{5}, 0},
		{"all equal", []float64{3, 3, 3, 3}, 0},
		{"known population", []float64{2, 4, 4, 4, 5, 5, 7, 9}, 4},
		{"two values", []float64{0.5, 0.9}, 0.04},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := variance(tt.xs)
			if !almostEqual(got, tt.want) {
				t.Errorf("variance(%v) = %v, want %v", tt.xs, got, tt.want)
			}
			if got < 0 {
				t.Errorf("variance(%v) = %v, must never be negative", tt.xs, got)
			}
		})
	}
}

func TestVariance_IdenticalValuesExactlyZero(t *testing.T) {
	// sum/n does not round-trip to the common value here, which used to
	// leave a ~1e-34 residue instead of zero. normalize detects a
	// degenerate dimension with an exact max == min comparison, so the
	// residue read as genuine spread and got stretched to a full [0,1]
	// signal.
	xs := make([]float64, 18)
	for i := range xs {
		xs[i] = 100.0 / 1000.0
	}
	if v := variance(xs); v != 0 {
		t.Errorf("variance(identical values) = %g, want exactly 0", v)
	}
}

func TestScoreCandidate_IdenticalRatiosScoreExactlyZero(t *testing.T) {
	// An evenly spaced group of equal ratios is the canonical pattern:
	// both its dimensions must be exactly zero so that an all-pattern
	// window normalizes to zero everywhere.
	sorted := make([]ratioPoint, 18)
	for i := range sorted {
		sorted[i] = ratioPoint{ratio: 100.0 / 1000.0, index: (i + 1) * 10}
	}

	s := scoreCandidate(sorted, candidate{start: 0, size: 18})

	if s.homogeneity != 0 {
		t.Errorf("homogeneity = %g, want exactly 0", s.homogeneity)
	}
	if s.rhythm != 0 {
		t.Errorf("rhythm = %g, want exactly 0", s.rhythm)
	}
}

func TestScoreCandidate(t *testing.T) {
	sorted := []ratioPoint{
		{ratio: 0.1, index: 10},
		{ratio: 0.1, index: 20},
		{ratio: 0.1, index: 30},
		{ratio: 0.5, index: 5},
		{ratio: 0.9, index: 40},
	}

	s := scoreCandidate(sorted, candidate{start: 0, size: 3})

	if !almostEqual(s.homogeneity, 0) {
		t.Errorf("homogeneity = %v, want 0", s.homogeneity)
	}
	// Complement {0.5, 0.9}: population variance 0.04.
	if !almostEqual(s.exclusion, 0.04) {
		t.Errorf("exclusion = %v, want 0.04", s.exclusion)
	}
	// Member indices 10,20,30: gaps 10,10, no spread.
	if !almostEqual(s.rhythm, 0) {
		t.Errorf("rhythm = %v, want 0", s.rhythm)
	}
}

func TestScoreCandidate_RhythmUsesChronologicalOrder(t *testing.T) {
	// The run covers indices 5, 10, 40 once re-sorted chronologically:
	// gaps 5 and 30, mean 17.5, variance 156.25.
	sorted := []ratioPoint{
		{ratio: 0.2, index: 40},
		{ratio: 0.2, index: 5},
		{ratio: 0.2, index: 10},
	}

	s := scoreCandidate(sorted, candidate{start: 0, size: 3})

	if !almostEqual(s.rhythm, 156.25) {
		t.Errorf("rhythm = %v, want 156.25", s.rhythm)
	}
}

func TestScoreCandidate_SingleMember(t *testing.T) {
	sorted := []ratioPoint{
		{ratio: 0.1, index: 3},
		{ratio: 0.4, index: 7},
	}

	s := scoreCandidate(sorted, candidate{start: 1, size: 1})

	if !almostEqual(s.homogeneity, 0) {
		t.Errorf("homogeneity = %v, want 0", s.homogeneity)
	}
	if !almostEqual(s.rhythm, 0) {
		t.Errorf("rhythm = %v, want 0", s.rhythm)
	}
	// Complement is the single remaining point.
	if !almostEqual(s.exclusion, 0) {
		t.Errorf("exclusion = %v, want 0", s.exclusion)
	}
}

func TestNormalize_Bounds(t *testing.T) {
	raw := []scores{
		{homogeneity: 0.0, exclusion: 0.2, rhythm: 5},
		{homogeneity: 0.5, exclusion: 0.8, rhythm: 0},
		{homogeneity: 1.0, exclusion: 0.4, rhythm: 10},
	}

	norm := normalize(raw)

	var hMin, hMax, eMin, eMax, rMin, rMax = 1.0, 0.0, 1.0, 0.0, 1.0, 0.0
	for _, s := range norm {
		for _, v := range []float64{s.homogeneity, s.exclusion, s.rhythm} {
			if v < 0 || v > 1 {
				t.Errorf("normalized value %v outside [0,1]", v)
			}
		}
		hMin, hMax = math.Min(hMin, s.homogeneity), math.Max(hMax, s.homogeneity)
		eMin, eMax = math.Min(eMin, s.exclusion), math.Max(eMax, s.exclusion)
		rMin, rMax = math.Min(rMin, s.rhythm), math.Max(rMax, s.rhythm)
	}

	// Each dimension with spread must hit exactly 0 and exactly 1.
	if hMin != 0 || hMax != 1 {
		t.Errorf("homogeneity range [%v, %v], want [0, 1]", hMin, hMax)
	}
	if eMin != 0 || eMax != 1 {
		t.Errorf("exclusion range [%v, %v], want [0, 1]", eMin, eMax)
	}
	if rMin != 0 || rMax != 1 {
		t.Errorf("rhythm range [%v, %v], want [0, 1]", rMin, rMax)
	}
}

func TestNormalize_DegenerateDimension(t *testing.T) {
	raw := []scores{
		{homogeneity: 0.3, exclusion: 0.1, rhythm: 4},
		{homogeneity: 0.3, exclusion: 0.9, rhythm: 2},
	}

	norm := normalize(raw)

	// Every candidate scored the same homogeneity: all map to 0, not NaN.
	for i, s := range norm {
		if s.homogeneity != 0 {
			t.Errorf("norm[%d].homogeneity = %v, want 0 for degenerate dimension", i, s.homogeneity)
		}
	}
	if norm[0].exclusion != 0 || norm[1].exclusion != 1 {
		t.Errorf("exclusion = %v, %v, want 0, 1", norm[0].exclusion, norm[1].exclusion)
	}
}

func TestNormalize_Empty(t *testing.T) {
	if got := normalize(nil); got != nil {
		t.Errorf("normalize(nil) = %v, want nil", got)
	}
}
