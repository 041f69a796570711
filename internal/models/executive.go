// Package models defines executive-function support structures for FocusLoop.
package models

import "time"

// TaskComplexity tiers a task description from trivial to overwhelming.
type TaskComplexity string

const (
	ComplexityMicro        TaskComplexity = "micro"
	ComplexitySimple       TaskComplexity = "simple"
	ComplexityModerate     TaskComplexity = "moderate"
	ComplexityComplex      TaskComplexity = "complex"
	ComplexityProject      TaskComplexity = "project"
	ComplexityOverwhelming TaskComplexity = "overwhelming"
)

// Subtask is one ordered step of a task breakdown.
type Subtask struct {
	Order            int     `json:"order"`
	Description      string  `json:"description"`
	EstimatedMinutes float64 `json:"estimated_minutes"`
}

// TaskBreakdown is the ephemeral advice object produced by the task
// breakdown engine.
type TaskBreakdown struct {
	UserID                string         `json:"user_id"`
	TaskDescription       string         `json:"task_description"`
	Complexity            TaskComplexity `json:"complexity"`
	Subtasks              []Subtask      `json:"subtasks"`
	TotalEstimatedMinutes float64        `json:"total_estimated_minutes"`
	Guidance              string         `json:"guidance,omitempty"`
	CreatedAt             time.Time      `json:"created_at"`
}

// ContextType classifies a free-text working context.
type ContextType string

const (
	ContextCreative       ContextType = "creative"
	ContextAnalytical     ContextType = "analytical"
	ContextCommunication  ContextType = "communication"
	ContextAdministrative ContextType = "administrative"
)

// ContextSwitchPlan describes how to move between two working contexts.
type ContextSwitchPlan struct {
	UserID           string      `json:"user_id"`
	FromContext      string      `json:"from_context"`
	ToContext        string      `json:"to_context"`
	FromType         ContextType `json:"from_type"`
	ToType           ContextType `json:"to_type"`
	LoadDelta        float64     `json:"load_delta"`
	Steps            []string    `json:"steps"`
	EstimatedMinutes float64     `json:"estimated_minutes"`
	CreatedAt        time.Time   `json:"created_at"`
}

// MemoryItem is one TTL'd entry in the working-memory store.
type MemoryItem struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	ItemType  string    `json:"item_type,omitempty"`
	TaskTag   string    `json:"task_tag,omitempty"`
	Keywords  []string  `json:"keywords,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the item is past its TTL at the given time.
func (m *MemoryItem) Expired(now time.Time) bool {
	return !m.ExpiresAt.IsZero() && now.After(m.ExpiresAt)
}

// ProcrastinationTrigger names a recognized avoidance driver.
type ProcrastinationTrigger string

const (
	TriggerPerfectionism   ProcrastinationTrigger = "perfectionism"
	TriggerOverwhelm       ProcrastinationTrigger = "overwhelm"
	TriggerBoredom         ProcrastinationTrigger = "boredom"
	TriggerUnclearNextStep ProcrastinationTrigger = "unclear_next_step"
	TriggerFearOfFailure   ProcrastinationTrigger = "fear_of_failure"
	TriggerTaskUnpleasant  ProcrastinationTrigger = "task_unpleasant"
	TriggerDistractionPull ProcrastinationTrigger = "distraction_pull"
	TriggerEnergyDepletion ProcrastinationTrigger = "energy_depletion"
)

// InterventionLevel grades how strong a procrastination intervention is.
type InterventionLevel int

const (
	InterventionNudge InterventionLevel = iota + 1
	InterventionStructured
	InterventionIntensive
	InterventionEmergency
)

// InterventionPlan is the assessment result for a task at risk of avoidance.
type InterventionPlan struct {
	UserID     string                   `json:"user_id"`
	Task       string                   `json:"task"`
	RiskScore  float64                  `json:"risk_score"`
	Triggers   []ProcrastinationTrigger `json:"triggers,omitempty"`
	Level      InterventionLevel        `json:"level"`
	Strategies []string                 `json:"strategies"`
	CreatedAt  time.Time                `json:"created_at"`
}
