// Package adaptation turns pattern detections and user state into
// prioritized adaptation decisions, and applies the applicable ones to the
// outgoing response.
//
// Decisions come from three sources: cognitive load breaching the user's
// personal threshold, per-pattern lookups, and the crisis check (a critical
// detection or stress above the crisis line). The engine never fails the
// response path: if every adaptation application errors, the original
// response text is returned untouched.
package adaptation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/BTreeMap/FocusLoop/internal/models"
	"github.com/BTreeMap/FocusLoop/internal/store"
)

// crisisStressLevel is the self-reported stress level that triggers the
// crisis protocol regardless of detections.
const crisisStressLevel = 0.9

// Engine derives and applies adaptation decisions.
type Engine struct {
	st store.Store
}

// NewEngine creates an adaptation engine. The store is used only for trace
// events; a nil store disables tracing.
func NewEngine(st store.Store) *Engine {
	return &Engine{st: st}
}

// Process derives adaptation decisions from detections, the profile, the
// frame, and the self-reported user state. The result is sorted by priority
// descending, then confidence descending; the sort is stable so decisions
// from earlier sources keep their relative order on ties.
func (e *Engine) Process(ctx context.Context, profile *models.UserProfile, detections []models.PatternDetection, frame models.Frame, state models.UserState) []models.AdaptationDecision {
	if profile == nil {
		return nil
	}
	now := time.Now().UTC()
	var decisions []models.AdaptationDecision

	// Source 1: cognitive load breaching the personal overwhelm threshold.
	if frame.CognitiveLoad > profile.Thresholds.OverwhelmThreshold {
		decisions = append(decisions, models.AdaptationDecision{
			UserID:     profile.UserID,
			Type:       AdaptTypeForLoad(frame.CognitiveLoad, profile.Thresholds.OverwhelmThreshold),
			Priority:   models.PriorityHigh,
			Confidence: models.ClampUnit(frame.CognitiveLoad),
			Reasoning:  fmt.Sprintf("cognitive load %.2f exceeds personal threshold %.2f", frame.CognitiveLoad, profile.Thresholds.OverwhelmThreshold),
			Parameters: map[string]any{
				"max_context_items": profile.Thresholds.MaxContextItems,
				"current_load":      frame.CognitiveLoad,
			},
			ExpectedOutcome:  "reduced cognitive load",
			RollbackCriteria: []string{"load drops below threshold for 3 consecutive interactions"},
			Timestamp:        now,
		})
	}

	// Source 2: one decision per detection, looked up by pattern type.
	for _, d := range detections {
		if dec, ok := decisionForPattern(profile, d, now); ok {
			decisions = append(decisions, dec)
		}
	}

	// Source 3: crisis protocol on any critical detection or extreme stress.
	if crisis, reason := crisisCondition(detections, state); crisis {
		decisions = append(decisions, models.AdaptationDecision{
			UserID:     profile.UserID,
			Type:       models.AdaptCrisisProtocol,
			Priority:   models.PriorityCritical,
			Confidence: 1.0,
			Reasoning:  reason,
			Parameters: map[string]any{
				"interface":  "minimal",
				"tone":       "calm",
				"max_length": 400,
			},
			ExpectedOutcome:  "de-escalation",
			RollbackCriteria: []string{"stress drops below 0.6", "no critical detections for 24h"},
			Timestamp:        now,
		})
	}

	sort.SliceStable(decisions, func(a, b int) bool {
		if decisions[a].Priority.Rank() != decisions[b].Priority.Rank() {
			return decisions[a].Priority.Rank() > decisions[b].Priority.Rank()
		}
		return decisions[a].Confidence > decisions[b].Confidence
	})

	if len(decisions) > 0 {
		slog.Info("Engine.Process: adaptation decisions derived",
			"userID", profile.UserID,
			"count", len(decisions),
			"top", decisions[0].Type,
			"top_priority", decisions[0].Priority)
		e.trace(profile.UserID, decisions)
	}
	return decisions
}

// AdaptTypeForLoad picks a load response: heavy breaches simplify the whole
// interface, light breaches just trim the response.
func AdaptTypeForLoad(load, threshold float64) models.AdaptationType {
	if load-threshold > 0.15 {
		return models.AdaptInterfaceSimplification
	}
	return models.AdaptCognitiveLoadReduction
}

// decisionForPattern maps one detection to an adaptation decision. Unknown
// or advisory-only pattern types produce no decision.
func decisionForPattern(profile *models.UserProfile, d models.PatternDetection, now time.Time) (models.AdaptationDecision, bool) {
	dec := models.AdaptationDecision{
		UserID:     profile.UserID,
		Confidence: d.Confidence,
		Reasoning:  fmt.Sprintf("%s detected at %s severity", d.PatternType, d.Severity),
		Timestamp:  now,
	}
	switch d.PatternType {
	case models.PatternOverwhelm:
		dec.Type = models.AdaptInterfaceSimplification
		dec.Priority = models.PriorityHigh
		dec.Parameters = map[string]any{"max_context_items": minInt(profile.Thresholds.MaxContextItems, 3)}
		dec.ExpectedOutcome = "reduced overwhelm"
	case models.PatternEmotionalDysregulation:
		dec.Type = models.AdaptToneSoftening
		dec.Priority = models.PriorityHigh
		dec.Parameters = map[string]any{"style": string(models.StyleGentle)}
		dec.ExpectedOutcome = "emotional de-escalation"
	case models.PatternHyperfocus:
		dec.Type = models.AdaptFocusProtection
		dec.Priority = models.PriorityMedium
		dec.Parameters = map[string]any{"defer_nudges": true, "session_minutes": d.Evidence["session_duration_minutes"]}
		dec.ExpectedOutcome = "protected focus with gentle exit ramp"
	case models.PatternTimeBlindness:
		dec.Type = models.AdaptTimeAnchoring
		dec.Priority = models.PriorityMedium
		dec.Parameters = map[string]any{"include_time_anchor": true}
		dec.ExpectedOutcome = "improved time awareness"
	case models.PatternExecutiveDysfunction:
		dec.Type = models.AdaptResponseShortening
		dec.Priority = models.PriorityMedium
		dec.Parameters = map[string]any{"max_length": profile.Thresholds.ResponseLengthChars}
		dec.ExpectedOutcome = "lower activation barrier"
	case models.PatternEnergy:
		dec.Type = models.AdaptEnergyAlignment
		dec.Priority = models.PriorityLow
		dec.Parameters = map[string]any{"energy_schedule": profile.Energy}
		dec.ExpectedOutcome = "work scheduled into high-energy hours"
	default:
		return models.AdaptationDecision{}, false
	}
	// Severity promotes priority one step.
	if d.Severity == models.SeverityCritical && dec.Priority != models.PriorityCritical {
		dec.Priority = models.PriorityCritical
	}
	dec.RollbackCriteria = []string{fmt.Sprintf("%s not detected for 7 days", d.PatternType)}
	return dec, true
}

// crisisCondition reports whether the crisis protocol applies and why.
func crisisCondition(detections []models.PatternDetection, state models.UserState) (bool, string) {
	for _, d := range detections {
		if d.Severity == models.SeverityCritical {
			return true, fmt.Sprintf("critical %s detection", d.PatternType)
		}
	}
	if state.StressLevel > crisisStressLevel {
		return true, fmt.Sprintf("stress level %.2f above crisis line", state.StressLevel)
	}
	return false, ""
}

// Apply rewrites the response per the decisions. Each application failure is
// logged and skipped; if nothing applies cleanly the original response comes
// back unchanged. Interface changes from multiple decisions merge, with
// higher-priority decisions (applied first) winning on key conflicts.
func (e *Engine) Apply(ctx context.Context, response string, decisions []models.AdaptationDecision, profile *models.UserProfile) (string, map[string]any) {
	adapted := response
	interfaceChanges := make(map[string]any)

	for _, dec := range decisions {
		out, changes, err := e.applyOne(adapted, dec, profile)
		if err != nil {
			slog.Warn("Engine.Apply: adaptation failed, skipping", "type", dec.Type, "error", err, "userID", dec.UserID)
			continue
		}
		adapted = out
		for k, v := range changes {
			if _, taken := interfaceChanges[k]; !taken {
				interfaceChanges[k] = v
			}
		}
	}
	return adapted, interfaceChanges
}

// simplifications maps load-heavy phrasing to plainer equivalents.
var simplifications = map[string]string{
	"additionally":  "also",
	"furthermore":   "also",
	"consequently":  "so",
	"nevertheless":  "still",
	"utilize":       "use",
	"approximately": "about",
	"immediately":   "now",
	"prioritize":    "pick first",
}

func (e *Engine) applyOne(response string, dec models.AdaptationDecision, profile *models.UserProfile) (string, map[string]any, error) {
	switch dec.Type {
	case models.AdaptResponseShortening:
		limit := profile.Thresholds.ResponseLengthChars
		if v, ok := dec.Parameters["max_length"].(int); ok && v > 0 {
			limit = v
		}
		return truncateAtBoundary(response, limit), nil, nil

	case models.AdaptCognitiveLoadReduction, models.AdaptInterfaceSimplification:
		out := response
		for heavy, plain := range simplifications {
			if idx := indexFold(out, heavy); idx >= 0 {
				out = out[:idx] + plain + out[idx+len(heavy):]
			}
		}
		changes := map[string]any{"complexity": "reduced"}
		if v, ok := dec.Parameters["max_context_items"]; ok {
			changes["max_context_items"] = v
		}
		if dec.Type == models.AdaptInterfaceSimplification {
			changes["layout"] = "single_column"
			changes["hide_secondary_panels"] = true
		}
		return out, changes, nil

	case models.AdaptToneSoftening:
		if strings.TrimSpace(response) == "" {
			return response, nil, nil
		}
		return "Take a breath. " + response, nil, nil

	case models.AdaptTimeAnchoring:
		anchor := fmt.Sprintf("(It's currently %s.) ", time.Now().Format("3:04 PM"))
		return anchor + response, map[string]any{"show_clock": true}, nil

	case models.AdaptFocusProtection:
		return response, map[string]any{"suppress_notifications": true}, nil

	case models.AdaptEnergyAlignment:
		return response, map[string]any{"suggest_energy_windows": true}, nil

	case models.AdaptCrisisProtocol:
		out := truncateAtBoundary(response, 400)
		if strings.TrimSpace(out) == "" {
			out = "One thing at a time. You're okay."
		}
		return out, map[string]any{
			"layout":                 "minimal",
			"hide_secondary_panels":  true,
			"suppress_notifications": true,
		}, nil

	default:
		return response, nil, fmt.Errorf("unknown adaptation type: %s", dec.Type)
	}
}

// indexFold returns the index of the first case-insensitive occurrence of
// substr in s, searching the original string so the index is valid for
// splicing even when case conversion would change byte lengths.
func indexFold(s, substr string) int {
	n := len(substr)
	for i := 0; i+n <= len(s); i++ {
		if strings.EqualFold(s[i:i+n], substr) {
			return i
		}
	}
	return -1
}

// truncateAtBoundary cuts at the last sentence end before the limit, falling
// back to a word boundary, so truncation never splits mid-word or mid-rune.
func truncateAtBoundary(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	cut := s[:limit]
	if idx := strings.LastIndexAny(cut, ".!?"); idx > limit/2 {
		return cut[:idx+1]
	}
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		return strings.TrimSpace(cut[:idx]) + "..."
	}
	return cut
}

// trace writes the decision set as one adaptation trace event. Failures are
// logged, never surfaced: tracing must not affect the response path.
func (e *Engine) trace(userID string, decisions []models.AdaptationDecision) {
	if e.st == nil {
		return
	}
	data, err := json.Marshal(decisions)
	if err != nil {
		slog.Error("Engine.trace: failed to marshal decisions", "error", err, "userID", userID)
		return
	}
	event := models.TraceEvent{
		UserID:     userID,
		EventType:  models.TraceEventAdaptation,
		EventData:  string(data),
		Confidence: decisions[0].Confidence,
		Source:     "adaptation_engine",
	}
	if err := e.st.AddTraceEvent(event); err != nil {
		slog.Error("Engine.trace: failed to write adaptation trace", "error", err, "userID", userID)
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
