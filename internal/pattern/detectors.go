package pattern

import (
	"fmt"
	"math"
	"strings"

	"github.com/BTreeMap/FocusLoop/internal/models"
)

// detectorFunc scores one pattern type. A nil detection with nil error means
// "nothing detected"; a non-nil error means the detector itself failed.
// Callers must not conflate the two.
type detectorFunc func(userID string, m models.BehavioralMetrics, ix models.Interaction) (*models.PatternDetection, error)

// Keyword groups scanned against the interaction message.
var (
	stuckKeywords     = []string{"can't start", "cant start", "stuck", "avoiding", "putting off", "procrastinat", "don't know where to begin"}
	timeKeywords      = []string{"lost track of time", "didn't realize", "didnt realize", "ran out of time", "how is it already", "late again"}
	emotionKeywords   = []string{"frustrated", "angry", "furious", "crying", "hate this", "can't cope", "meltdown", "falling apart"}
	overwhelmKeywords = []string{"too much", "overwhelmed", "drowning", "can't keep up", "cant keep up", "everything at once", "burned out", "burnt out"}
)

// keywordScore returns the fraction of keyword groups present, scaled by
// weight. Matching is case-insensitive substring matching.
func keywordScore(message string, keywords []string, weight float64) float64 {
	if message == "" {
		return 0
	}
	lower := strings.ToLower(message)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return weight
		}
	}
	return 0
}

// checkMetrics rejects pathological input so detector failure is reportable
// instead of silently producing a bogus score.
func checkMetrics(m models.BehavioralMetrics) error {
	for name, v := range map[string]float64{
		"session_duration_minutes": m.SessionDurationMinutes,
		"response_delay_minutes":   m.ResponseDelayMinutes,
		"max_interaction_gap":      m.MaxInteractionGapMin,
	} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("invalid metric %s: %v", name, v)
		}
	}
	return nil
}

// detectHyperfocus fires on long uninterrupted sessions with delayed
// responses, few switches, and poor time estimation.
func (e *Engine) detectHyperfocus(userID string, m models.BehavioralMetrics, ix models.Interaction) (*models.PatternDetection, error) {
	if err := checkMetrics(m); err != nil {
		return nil, fmt.Errorf("hyperfocus detector: %w", err)
	}

	var score float64
	evidence := make(map[string]any)

	if m.SessionDurationMinutes > e.cfg.LongSessionMinutes {
		score += 0.3
		evidence["session_duration_minutes"] = m.SessionDurationMinutes
	}
	if m.ResponseDelayMinutes > e.cfg.LongDelayMinutes {
		score += 0.2
		evidence["response_delay_minutes"] = m.ResponseDelayMinutes
	}
	if m.TaskSwitchFrequency < e.cfg.LowSwitchRatePerHour {
		score += 0.2
		evidence["task_switch_frequency"] = m.TaskSwitchFrequency
	}
	if m.TimeEstimationAccuracy < e.cfg.PoorEstimateAccuracy {
		score += 0.15
		evidence["time_estimation_accuracy"] = m.TimeEstimationAccuracy
	}
	if m.MaxInteractionGapMin > e.cfg.LongGapMinutes {
		score += 0.15
		evidence["max_interaction_gap_minutes"] = m.MaxInteractionGapMin
	}

	if score < e.cfg.HyperfocusThreshold {
		return nil, nil
	}

	sev := e.cfg.severityFor(score, false)
	d := models.NewPatternDetection(userID, models.PatternHyperfocus, sev, score, urgencyFor(models.PatternHyperfocus, sev))
	d.Evidence = evidence
	d.Intervene = sev.Rank() >= models.SeverityModerate.Rank()
	return &d, nil
}

// detectExecutiveDysfunction fires on low completion rates, stalled starts,
// and stuck language.
func (e *Engine) detectExecutiveDysfunction(userID string, m models.BehavioralMetrics, ix models.Interaction) (*models.PatternDetection, error) {
	if err := checkMetrics(m); err != nil {
		return nil, fmt.Errorf("executive dysfunction detector: %w", err)
	}

	var score float64
	evidence := make(map[string]any)

	if m.CompletionRate < e.cfg.LowCompletionRate {
		score += 0.3
		evidence["completion_rate"] = m.CompletionRate
	}
	if m.ResponseDelayMinutes > e.cfg.LongDelayMinutes {
		score += 0.2
		evidence["response_delay_minutes"] = m.ResponseDelayMinutes
	}
	if kw := keywordScore(ix.Message, stuckKeywords, 0.3); kw > 0 {
		score += kw
		evidence["stuck_language"] = true
	}
	if m.InterruptionFrequency > 0.5 {
		score += 0.2
		evidence["interruption_frequency"] = m.InterruptionFrequency
	}

	if score < e.cfg.ExecutiveThreshold {
		return nil, nil
	}

	sev := e.cfg.severityFor(score, false)
	d := models.NewPatternDetection(userID, models.PatternExecutiveDysfunction, sev, score, urgencyFor(models.PatternExecutiveDysfunction, sev))
	d.Evidence = evidence
	d.Intervene = sev.Rank() >= models.SeverityModerate.Rank()
	return &d, nil
}

// detectTimeBlindness fires on poor estimation accuracy and time-loss language.
func (e *Engine) detectTimeBlindness(userID string, m models.BehavioralMetrics, ix models.Interaction) (*models.PatternDetection, error) {
	if err := checkMetrics(m); err != nil {
		return nil, fmt.Errorf("time blindness detector: %w", err)
	}

	var score float64
	evidence := make(map[string]any)

	if m.TimeEstimationAccuracy < e.cfg.PoorEstimateAccuracy {
		score += 0.35
		evidence["time_estimation_accuracy"] = m.TimeEstimationAccuracy
	}
	if ix.EstimatedMinutes > 0 && ix.ActualMinutes > 0 {
		ratio := ix.ActualMinutes / ix.EstimatedMinutes
		if ratio > 2 || ratio < 0.5 {
			score += 0.25
			evidence["estimate_ratio"] = ratio
		}
	}
	if m.ResponseDelayMinutes > e.cfg.LongDelayMinutes {
		score += 0.2
		evidence["response_delay_minutes"] = m.ResponseDelayMinutes
	}
	if kw := keywordScore(ix.Message, timeKeywords, 0.2); kw > 0 {
		score += kw
		evidence["time_loss_language"] = true
	}

	if score < e.cfg.TimeBlindnessThreshold {
		return nil, nil
	}

	sev := e.cfg.severityFor(score, false)
	d := models.NewPatternDetection(userID, models.PatternTimeBlindness, sev, score, urgencyFor(models.PatternTimeBlindness, sev))
	d.Evidence = evidence
	d.Intervene = sev.Rank() >= models.SeverityModerate.Rank()
	return &d, nil
}

// detectEmotionalDysregulation fires on volatility, high stress, distress
// language, and energy crashes. Top band escalates to critical.
func (e *Engine) detectEmotionalDysregulation(userID string, m models.BehavioralMetrics, ix models.Interaction) (*models.PatternDetection, error) {
	if err := checkMetrics(m); err != nil {
		return nil, fmt.Errorf("emotional dysregulation detector: %w", err)
	}

	var score float64
	evidence := make(map[string]any)

	if m.EmotionalVolatility > e.cfg.HighVolatility {
		score += 0.35
		evidence["emotional_volatility"] = m.EmotionalVolatility
	}
	if ix.StressLevel > e.cfg.HighStress {
		score += 0.25
		evidence["stress_level"] = ix.StressLevel
	}
	if kw := keywordScore(ix.Message, emotionKeywords, 0.25); kw > 0 {
		score += kw
		evidence["distress_language"] = true
	}
	if ix.EnergyLevel > 0 && ix.EnergyLevel < e.cfg.LowEnergy {
		score += 0.15
		evidence["energy_level"] = ix.EnergyLevel
	}

	if score < e.cfg.EmotionalThreshold {
		return nil, nil
	}

	sev := e.cfg.severityFor(score, true)
	d := models.NewPatternDetection(userID, models.PatternEmotionalDysregulation, sev, score, urgencyFor(models.PatternEmotionalDysregulation, sev))
	d.Evidence = evidence
	d.Intervene = true
	return &d, nil
}

// detectOverwhelm fires on high cognitive load, high stress, overload
// language, and churning task switches. Top band escalates to critical.
func (e *Engine) detectOverwhelm(userID string, m models.BehavioralMetrics, ix models.Interaction) (*models.PatternDetection, error) {
	if err := checkMetrics(m); err != nil {
		return nil, fmt.Errorf("overwhelm detector: %w", err)
	}

	var score float64
	evidence := make(map[string]any)

	if ix.CognitiveLoad > e.cfg.HighCognitiveLoad {
		score += 0.3
		evidence["cognitive_load"] = ix.CognitiveLoad
	}
	if ix.StressLevel > e.cfg.HighStress {
		score += 0.25
		evidence["stress_level"] = ix.StressLevel
	}
	if kw := keywordScore(ix.Message, overwhelmKeywords, 0.25); kw > 0 {
		score += kw
		evidence["overload_language"] = true
	}
	if m.TaskSwitchFrequency > e.cfg.HighSwitchRatePerHour {
		score += 0.2
		evidence["task_switch_frequency"] = m.TaskSwitchFrequency
	}

	if score < e.cfg.OverwhelmThreshold {
		return nil, nil
	}

	sev := e.cfg.severityFor(score, true)
	d := models.NewPatternDetection(userID, models.PatternOverwhelm, sev, score, urgencyFor(models.PatternOverwhelm, sev))
	d.Evidence = evidence
	d.Intervene = true
	return &d, nil
}
