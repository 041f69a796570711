// Package pattern implements heuristic behavioral pattern detection for
// FocusLoop.
//
// Five detectors (hyperfocus, executive dysfunction, time blindness,
// emotional dysregulation, overwhelm) score rolling behavioral metrics
// against a consolidated, versioned configuration. Detectors run
// independently; several pattern types may fire for the same interaction.
package pattern

import (
	"fmt"

	"github.com/BTreeMap/FocusLoop/internal/models"
)

// Config consolidates every detector threshold so behavior is tunable and
// testable without code changes. Version increments whenever defaults change
// meaning.
type Config struct {
	Version int `json:"version"`

	// Detector firing thresholds on the weighted indicator sum.
	HyperfocusThreshold    float64 `json:"hyperfocus_threshold"`
	ExecutiveThreshold     float64 `json:"executive_threshold"`
	TimeBlindnessThreshold float64 `json:"time_blindness_threshold"`
	EmotionalThreshold     float64 `json:"emotional_threshold"`
	OverwhelmThreshold     float64 `json:"overwhelm_threshold"`

	// Indicator cutoffs.
	LongSessionMinutes    float64 `json:"long_session_minutes"`
	LongDelayMinutes      float64 `json:"long_delay_minutes"`
	LowSwitchRatePerHour  float64 `json:"low_switch_rate_per_hour"`
	HighSwitchRatePerHour float64 `json:"high_switch_rate_per_hour"`
	PoorEstimateAccuracy  float64 `json:"poor_estimate_accuracy"`
	LongGapMinutes        float64 `json:"long_gap_minutes"`
	LowCompletionRate     float64 `json:"low_completion_rate"`
	HighVolatility        float64 `json:"high_volatility"`
	HighStress            float64 `json:"high_stress"`
	HighCognitiveLoad     float64 `json:"high_cognitive_load"`
	LowEnergy             float64 `json:"low_energy"`

	// Severity bands on the final score. Bands are shared across detectors;
	// escalating detectors (overwhelm, emotional dysregulation) map the top
	// band to critical instead of high.
	SeverityHighBand     float64 `json:"severity_high_band"`
	SeverityModerateBand float64 `json:"severity_moderate_band"`
}

// DefaultConfig returns the version-1 detector configuration.
func DefaultConfig() Config {
	return Config{
		Version: 1,

		HyperfocusThreshold:    0.4,
		ExecutiveThreshold:     0.35,
		TimeBlindnessThreshold: 0.4,
		EmotionalThreshold:     0.4,
		OverwhelmThreshold:     0.3,

		LongSessionMinutes:    180,
		LongDelayMinutes:      30,
		LowSwitchRatePerHour:  0.5,
		HighSwitchRatePerHour: 3.0,
		PoorEstimateAccuracy:  0.3,
		LongGapMinutes:        60,
		LowCompletionRate:     0.3,
		HighVolatility:        0.6,
		HighStress:            0.7,
		HighCognitiveLoad:     0.7,
		LowEnergy:             0.2,

		SeverityHighBand:     0.8,
		SeverityModerateBand: 0.6,
	}
}

// Validate checks that thresholds and bands are ordered and in range.
func (c Config) Validate() error {
	unit := map[string]float64{
		"hyperfocus_threshold":     c.HyperfocusThreshold,
		"executive_threshold":      c.ExecutiveThreshold,
		"time_blindness_threshold": c.TimeBlindnessThreshold,
		"emotional_threshold":      c.EmotionalThreshold,
		"overwhelm_threshold":      c.OverwhelmThreshold,
		"poor_estimate_accuracy":   c.PoorEstimateAccuracy,
		"low_completion_rate":      c.LowCompletionRate,
		"high_volatility":          c.HighVolatility,
		"high_stress":              c.HighStress,
		"high_cognitive_load":      c.HighCognitiveLoad,
		"low_energy":               c.LowEnergy,
		"severity_high_band":       c.SeverityHighBand,
		"severity_moderate_band":   c.SeverityModerateBand,
	}
	for name, v := range unit {
		if v < 0 || v > 1 {
			return fmt.Errorf("config field %s out of range [0,1]: %v", name, v)
		}
	}
	if c.SeverityModerateBand >= c.SeverityHighBand {
		return fmt.Errorf("severity bands out of order: moderate %v >= high %v", c.SeverityModerateBand, c.SeverityHighBand)
	}
	if c.LongSessionMinutes <= 0 || c.LongDelayMinutes <= 0 || c.LongGapMinutes <= 0 {
		return fmt.Errorf("duration cutoffs must be positive")
	}
	return nil
}

// severityFor maps a detector score to a severity band. Escalating detectors
// promote the top band to critical. Monotonic in score by construction.
func (c Config) severityFor(score float64, escalate bool) models.Severity {
	switch {
	case score >= c.SeverityHighBand:
		if escalate {
			return models.SeverityCritical
		}
		return models.SeverityHigh
	case score >= c.SeverityModerateBand:
		if escalate {
			return models.SeverityHigh
		}
		return models.SeverityModerate
	default:
		return models.SeverityLow
	}
}

// urgencyTable maps pattern type and severity to intervention urgency [1,10].
var urgencyTable = map[models.PatternType]map[models.Severity]int{
	models.PatternHyperfocus: {
		models.SeverityLow: 4, models.SeverityModerate: 6, models.SeverityHigh: 8, models.SeverityCritical: 9,
	},
	models.PatternExecutiveDysfunction: {
		models.SeverityLow: 3, models.SeverityModerate: 5, models.SeverityHigh: 7, models.SeverityCritical: 8,
	},
	models.PatternTimeBlindness: {
		models.SeverityLow: 2, models.SeverityModerate: 4, models.SeverityHigh: 6, models.SeverityCritical: 7,
	},
	models.PatternEmotionalDysregulation: {
		models.SeverityLow: 4, models.SeverityModerate: 6, models.SeverityHigh: 8, models.SeverityCritical: 10,
	},
	models.PatternOverwhelm: {
		models.SeverityLow: 4, models.SeverityModerate: 6, models.SeverityHigh: 8, models.SeverityCritical: 10,
	},
}

// urgencyFor looks up intervention urgency, defaulting to mid-scale for
// unknown combinations.
func urgencyFor(pt models.PatternType, sev models.Severity) int {
	if bySev, ok := urgencyTable[pt]; ok {
		if u, ok := bySev[sev]; ok {
			return u
		}
	}
	return 5
}
