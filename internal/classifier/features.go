// Package classifier provides the statistical corroboration layer: feature
// extraction over interaction history, a nearest-centroid pattern
// classifier, a z-score anomaly detector, and a supervised retraining
// worker.
//
// The heuristic pattern engine remains authoritative; classifier output is
// recorded as corroborating evidence with its own confidence and never
// overrides a heuristic detection.
package classifier

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat"

	"github.com/BTreeMap/FocusLoop/internal/models"
)

// FeatureDim is the fixed length of every feature vector.
const FeatureDim = 20

// DefaultEpsilon is the Laplace noise privacy budget. Larger epsilon means
// less noise.
const DefaultEpsilon = 1.0

// Extractor turns an interaction window into a fixed-length feature vector,
// optionally perturbed with Laplace noise before it leaves the process.
type Extractor struct {
	epsilon  float64
	addNoise bool
}

// ExtractorOption configures the extractor.
type ExtractorOption func(*Extractor)

// WithLaplaceNoise enables differential-privacy noise with the given epsilon.
func WithLaplaceNoise(epsilon float64) ExtractorOption {
	return func(e *Extractor) {
		if epsilon > 0 {
			e.epsilon = epsilon
			e.addNoise = true
		}
	}
}

// NewExtractor creates a feature extractor. Noise is off by default.
func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{epsilon: DefaultEpsilon}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract builds the feature vector from the current interaction and its
// recent history. Features are normalized to roughly [0,1] so no single
// dimension dominates centroid distances.
func (e *Extractor) Extract(current models.Interaction, history []models.Interaction) []float64 {
	window := append(append([]models.Interaction{}, history...), current)

	var sessions, delays, switches, energies, stresses, loads, msgLens []float64
	var started, completed int
	for _, ix := range window {
		sessions = append(sessions, ix.SessionDurationMinutes)
		delays = append(delays, ix.ResponseDelayMinutes)
		switches = append(switches, float64(ix.TaskSwitches))
		if ix.EnergyLevel > 0 {
			energies = append(energies, ix.EnergyLevel)
		}
		if ix.StressLevel > 0 {
			stresses = append(stresses, ix.StressLevel)
		}
		if ix.CognitiveLoad > 0 {
			loads = append(loads, ix.CognitiveLoad)
		}
		msgLens = append(msgLens, float64(len(ix.Message)))
		started += ix.TasksStarted
		completed += ix.TasksCompleted
	}

	completionRate := 0.5
	if started > 0 {
		completionRate = float64(completed) / float64(started)
	}

	hour := float64(current.Timestamp.Hour())
	estimateRatio := 1.0
	if current.EstimatedMinutes > 0 && current.ActualMinutes > 0 {
		estimateRatio = current.ActualMinutes / current.EstimatedMinutes
	}

	v := []float64{
		norm(stat.Mean(sessions, nil), 480),        // 0: mean session minutes
		norm(safeStdDev(sessions), 240),            // 1: session variability
		norm(current.SessionDurationMinutes, 480),  // 2: current session
		norm(stat.Mean(delays, nil), 120),          // 3: mean response delay
		norm(current.ResponseDelayMinutes, 120),    // 4: current delay
		norm(stat.Mean(switches, nil), 20),         // 5: mean switches
		norm(safeStdDev(switches), 10),             // 6: switch variability
		models.ClampUnit(completionRate),           // 7: completion rate
		meanOr(energies, 0.5),                      // 8: mean energy
		models.ClampUnit(current.EnergyLevel),      // 9: current energy
		meanOr(stresses, 0.5),                      // 10: mean stress
		models.ClampUnit(current.StressLevel),      // 11: current stress
		models.ClampUnit(safeStdDev(stresses) * 2), // 12: stress volatility
		meanOr(loads, 0.5),                         // 13: mean cognitive load
		models.ClampUnit(current.CognitiveLoad),    // 14: current load
		norm(stat.Mean(msgLens, nil), 2000),        // 15: mean message length
		norm(float64(len(current.Message)), 2000),  // 16: current message length
		hour / 23,              // 17: hour of day
		norm(estimateRatio, 5), // 18: estimate ratio
		norm(float64(len(window)), models.MetricsWindow), // 19: window fill
	}

	if e.addNoise {
		for n := range v {
			v[n] = models.ClampUnit(v[n] + laplaceNoise(1.0/float64(FeatureDim), e.epsilon))
		}
	}
	return v
}

// laplaceNoise samples Laplace(0, sensitivity/epsilon) via inverse CDF.
func laplaceNoise(sensitivity, epsilon float64) float64 {
	scale := sensitivity / epsilon
	u := rand.Float64() - 0.5
	return -scale * sign(u) * math.Log(1-2*math.Abs(u))
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

func norm(v, ceiling float64) float64 {
	if ceiling <= 0 {
		return 0
	}
	return models.ClampUnit(v / ceiling)
}

func meanOr(values []float64, fallback float64) float64 {
	if len(values) == 0 {
		return fallback
	}
	return models.ClampUnit(stat.Mean(values, nil))
}

// safeStdDev wraps stat.StdDev, which returns NaN for fewer than two samples.
func safeStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	sd := stat.StdDev(values, nil)
	if math.IsNaN(sd) {
		return 0
	}
	return sd
}
