package adaptation

import (
	"fmt"
	"time"

	"github.com/BTreeMap/FocusLoop/internal/models"
)

// Load bands for standalone load recommendations.
const (
	loadSevere   = 0.85
	loadElevated = 0.65
)

// CognitiveLoadAdapter produces load-only recommendations from the frame,
// independent of pattern detections. The loop consults it when the caller
// supplies a frame but analysis produced nothing actionable.
type CognitiveLoadAdapter struct{}

// NewCognitiveLoadAdapter creates a load adapter.
func NewCognitiveLoadAdapter() *CognitiveLoadAdapter {
	return &CognitiveLoadAdapter{}
}

// RecommendLoadAdaptations maps the frame's cognitive load against the
// user's thresholds. Severe load always yields at least a high-priority
// cognitive load reduction; elevated load yields a medium one; load at or
// under the optimum yields nothing.
func (a *CognitiveLoadAdapter) RecommendLoadAdaptations(profile *models.UserProfile, frame models.Frame) []models.AdaptationDecision {
	if profile == nil {
		return nil
	}
	load := models.ClampUnit(frame.CognitiveLoad)
	now := time.Now().UTC()

	var decisions []models.AdaptationDecision
	switch {
	case load >= loadSevere:
		decisions = append(decisions, models.AdaptationDecision{
			UserID:     profile.UserID,
			Type:       models.AdaptCognitiveLoadReduction,
			Priority:   models.PriorityHigh,
			Confidence: load,
			Reasoning:  fmt.Sprintf("severe cognitive load %.2f", load),
			Parameters: map[string]any{
				"max_context_items": minInt(profile.Thresholds.MaxContextItems, 3),
				"current_load":      load,
			},
			ExpectedOutcome: "immediate load relief",
			Timestamp:       now,
		})
		if len(frame.Context) > profile.Thresholds.MaxContextItems {
			decisions = append(decisions, models.AdaptationDecision{
				UserID:     profile.UserID,
				Type:       models.AdaptInterfaceSimplification,
				Priority:   models.PriorityHigh,
				Confidence: load,
				Reasoning:  fmt.Sprintf("%d context items exceed personal limit %d", len(frame.Context), profile.Thresholds.MaxContextItems),
				Parameters: map[string]any{"max_context_items": profile.Thresholds.MaxContextItems},
				Timestamp:  now,
			})
		}
	case load >= loadElevated && load > profile.Thresholds.OptimalLoad:
		decisions = append(decisions, models.AdaptationDecision{
			UserID:          profile.UserID,
			Type:            models.AdaptCognitiveLoadReduction,
			Priority:        models.PriorityMedium,
			Confidence:      load,
			Reasoning:       fmt.Sprintf("cognitive load %.2f above personal optimum %.2f", load, profile.Thresholds.OptimalLoad),
			Parameters:      map[string]any{"current_load": load},
			ExpectedOutcome: "load trending back toward optimum",
			Timestamp:       now,
		})
	}
	return decisions
}
