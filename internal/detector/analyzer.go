package detector

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/bazaarpulse/internal/domain"
)

const (
	// DefaultMinGroupSize is the smallest repetition group the selector
	// will accept. One or two aligned events are coincidence, not a
	// pattern.
	DefaultMinGroupSize = 3

	// DefaultCadence converts period counts into wall time when the
	// configuration does not say otherwise.
	DefaultCadence = 20 * time.Second
)

// Config configures an Analyzer.
type Config struct {
	// MinGroupSize is the smallest selectable repetition group. Smaller
	// candidates still take part in score normalization to keep the
	// scale honest but can never win. Defaults to DefaultMinGroupSize.
	MinGroupSize int

	// Cadence is the poll interval used to express the detected period
	// in wall time. Defaults to DefaultCadence.
	Cadence time.Duration
}

// Analyzer scores a closed window for periodic consumption. It holds no
// mutable state, so one Analyzer is safely shared by every pool worker.
type Analyzer struct {
	minGroupSize int
	cadence      time.Duration
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(cfg Config) *Analyzer {
	minSize := cfg.MinGroupSize
	if minSize <= 0 {
		minSize = DefaultMinGroupSize
	}
	cadence := cfg.Cadence
	if cadence <= 0 {
		cadence = DefaultCadence
	}
	return &Analyzer{minGroupSize: minSize, cadence: cadence}
}

// Analyze runs the full candidate/score/select pipeline over one frozen
// window and returns the verdict. A window with no usable ratio points,
// or no candidate of the minimum group size, yields Detected=false.
func (a *Analyzer) Analyze(w *domain.Window) domain.WindowResult {
	started := time.Now()
	res := domain.WindowResult{
		ID:              uuid.New().String(),
		ProductID:       w.ProductID,
		WindowIndex:     w.Index,
		WindowStartedAt: w.StartedAt,
		WindowClosedAt:  w.ClosedAt,
	}

	magnitudes := buildMagnitudes(w.SummaryDeltas)
	points := buildRatios(magnitudes, w.MovingWeekDeltas)
	if len(points) > 0 {
		sorted := sortPoints(points)
		cands := enumerateCandidates(len(sorted))
		raw := make([]scores, len(cands))
		for i, c := range cands {
			raw[i] = scoreCandidate(sorted, c)
		}
		norm := normalize(raw)

		if best, ok := selectBest(cands, norm, a.minGroupSize); ok {
			c := cands[best]
			indices := make([]int, 0, c.size)
			for _, p := range sorted[c.start : c.start+c.size] {
				indices = append(indices, p.index)
			}
			sort.Ints(indices)

			res.Detected = true
			res.GroupSize = c.size
			res.PeriodSnapshots = float64(w.DeltaLen()) / float64(c.size)
			res.Period = time.Duration(res.PeriodSnapshots * float64(a.cadence))
			res.CombinedScore = combined(norm[best])
			res.Homogeneity = raw[best].homogeneity
			res.Exclusion = raw[best].exclusion
			res.Rhythm = raw[best].rhythm
			res.MemberIndices = indices
		}
	}

	res.AnalyzedAt = time.Now()
	res.AnalysisTime = time.Since(started)
	return res
}
