package pattern

import (
	"math"
	"sort"

	"github.com/BTreeMap/FocusLoop/internal/models"
)

// computeMetrics builds a behavioral snapshot from the current interaction
// plus up to MetricsWindow-1 recent stored interactions. All ratio fields
// come out clamped to [0,1].
func computeMetrics(current models.Interaction, history []models.Interaction) models.BehavioralMetrics {
	window := make([]models.Interaction, 0, len(history)+1)
	window = append(window, history...)
	window = append(window, current)
	if len(window) > models.MetricsWindow {
		window = window[len(window)-models.MetricsWindow:]
	}

	sort.SliceStable(window, func(a, b int) bool {
		return window[a].Timestamp.Before(window[b].Timestamp)
	})

	var m models.BehavioralMetrics
	m.InteractionCount = len(window)
	m.SessionDurationMinutes = current.SessionDurationMinutes
	m.ResponseDelayMinutes = current.ResponseDelayMinutes

	var totalSwitches, totalStarted, totalCompleted int
	var totalSessionMin float64
	var energies, stresses []float64
	var accuracySum float64
	var accuracyCount int

	for _, ix := range window {
		totalSwitches += ix.TaskSwitches
		totalStarted += ix.TasksStarted
		totalCompleted += ix.TasksCompleted
		totalSessionMin += ix.SessionDurationMinutes
		if ix.EnergyLevel > 0 {
			energies = append(energies, models.ClampUnit(ix.EnergyLevel))
		}
		if ix.StressLevel > 0 {
			stresses = append(stresses, models.ClampUnit(ix.StressLevel))
		}
		if ix.EstimatedMinutes > 0 && ix.ActualMinutes > 0 {
			accuracySum += estimateAccuracy(ix.EstimatedMinutes, ix.ActualMinutes)
			accuracyCount++
		}
	}

	// Switch frequency in switches per hour of tracked session time.
	if totalSessionMin > 0 {
		m.TaskSwitchFrequency = float64(totalSwitches) / (totalSessionMin / 60)
	}

	// Completion rate defaults to neutral when nothing was started.
	if totalStarted > 0 {
		m.CompletionRate = float64(totalCompleted) / float64(totalStarted)
	} else {
		m.CompletionRate = 0.5
	}

	m.EnergyLevel = mean(energies, 0.5)
	m.EmotionalVolatility = math.Min(stddev(stresses)*2, 1)

	// Interruption frequency: high switch rates normalized against the
	// 10-per-hour ceiling observed in practice.
	m.InterruptionFrequency = m.TaskSwitchFrequency / 10

	if accuracyCount > 0 {
		m.TimeEstimationAccuracy = accuracySum / float64(accuracyCount)
	} else {
		m.TimeEstimationAccuracy = 0.5
	}

	// Largest gap between consecutive interactions in the window.
	for n := 1; n < len(window); n++ {
		gap := window[n].Timestamp.Sub(window[n-1].Timestamp).Minutes()
		if gap > m.MaxInteractionGapMin {
			m.MaxInteractionGapMin = gap
		}
	}

	m.Clamp()
	return m
}

// estimateAccuracy returns min/max of the estimate-actual pair, so a perfect
// estimate scores 1.0 and a 3x miss scores ~0.33.
func estimateAccuracy(estimated, actual float64) float64 {
	lo, hi := estimated, actual
	if lo > hi {
		lo, hi = hi, lo
	}
	if hi == 0 {
		return 0.5
	}
	return lo / hi
}

func mean(values []float64, fallback float64) float64 {
	if len(values) == 0 {
		return fallback
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values, 0)
	var sum float64
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)-1))
}
