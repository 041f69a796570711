// Package models defines adaptation structures for FocusLoop.
package models

import "time"

// AdaptationType identifies a system-initiated change to response style or
// interface complexity.
type AdaptationType string

const (
	AdaptInterfaceSimplification AdaptationType = "interface_simplification"
	AdaptCognitiveLoadReduction  AdaptationType = "cognitive_load_reduction"
	AdaptResponseShortening      AdaptationType = "response_shortening"
	AdaptToneSoftening           AdaptationType = "tone_softening"
	AdaptFocusProtection         AdaptationType = "focus_protection"
	AdaptTimeAnchoring           AdaptationType = "time_anchoring"
	AdaptEnergyAlignment         AdaptationType = "energy_alignment"
	AdaptCrisisProtocol          AdaptationType = "crisis_protocol"
)

// Priority orders adaptation decisions. Crisis decisions always sort first.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// priorityRank orders priorities for sorting (higher sorts first).
var priorityRank = map[Priority]int{
	PriorityCritical: 4,
	PriorityHigh:     3,
	PriorityMedium:   2,
	PriorityLow:      1,
}

// Rank returns the numeric ordering of a priority (higher is more urgent).
func (p Priority) Rank() int {
	return priorityRank[p]
}

// AdaptationDecision is one prioritized instruction emitted by the
// adaptation engine. Rollback criteria are advisory text; there is no
// rollback executor.
type AdaptationDecision struct {
	UserID           string         `json:"user_id"`
	Type             AdaptationType `json:"adaptation_type"`
	Priority         Priority       `json:"priority"`
	Confidence       float64        `json:"confidence"`
	Reasoning        string         `json:"reasoning,omitempty"`
	Parameters       map[string]any `json:"parameters,omitempty"`
	ExpectedOutcome  string         `json:"expected_outcome,omitempty"`
	RollbackCriteria []string       `json:"rollback_criteria,omitempty"`
	Timestamp        time.Time      `json:"timestamp"`
}

// ContextItem is one element of the contextual frame supplied by the caller.
type ContextItem struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// Frame is the contextual frame the loop passes through analysis and
// adaptation: current context items plus synthetic load and task focus.
type Frame struct {
	Context       []ContextItem `json:"context,omitempty"`
	CognitiveLoad float64       `json:"cognitive_load"`
	TaskFocus     string        `json:"task_focus,omitempty"`
}

// UserState carries the self-reported signals the adaptation engine reads
// alongside detections.
type UserState struct {
	StressLevel   float64 `json:"stress_level"`
	EnergyLevel   float64 `json:"energy_level"`
	CognitiveLoad float64 `json:"cognitive_load"`
}
