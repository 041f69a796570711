// Package models defines the core data structures for FocusLoop.
//
// It includes behavioral pattern detections, rolling behavioral metrics,
// interaction records, trace events, and the shared API response envelope.
package models

import (
	"errors"
	"time"
)

// PatternType identifies a heuristically-detected behavioral signal.
type PatternType string

const (
	// PatternHyperfocus indicates an extended, hard-to-interrupt focus session.
	PatternHyperfocus PatternType = "hyperfocus"
	// PatternExecutiveDysfunction indicates task-initiation or follow-through difficulty.
	PatternExecutiveDysfunction PatternType = "executive_dysfunction"
	// PatternTimeBlindness indicates poor time estimation and awareness.
	PatternTimeBlindness PatternType = "time_blindness"
	// PatternEmotionalDysregulation indicates elevated emotional volatility.
	PatternEmotionalDysregulation PatternType = "emotional_dysregulation"
	// PatternProcrastination indicates task avoidance behavior.
	PatternProcrastination PatternType = "procrastination"
	// PatternTaskSwitching indicates excessive context switching.
	PatternTaskSwitching PatternType = "task_switching"
	// PatternEnergy indicates a recurring energy-level pattern.
	PatternEnergy PatternType = "energy_pattern"
	// PatternOverwhelm indicates cognitive overload.
	PatternOverwhelm PatternType = "overwhelm"
)

// IsValidPatternType checks if the given pattern type is supported.
func IsValidPatternType(pt PatternType) bool {
	switch pt {
	case PatternHyperfocus, PatternExecutiveDysfunction, PatternTimeBlindness,
		PatternEmotionalDysregulation, PatternProcrastination, PatternTaskSwitching,
		PatternEnergy, PatternOverwhelm:
		return true
	default:
		return false
	}
}

// Severity grades how strongly a pattern fired.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityModerate Severity = "moderate"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// severityRank orders severities for monotonicity checks.
var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityModerate: 2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns the numeric ordering of a severity (higher is worse).
// Unknown severities rank 0.
func (s Severity) Rank() int {
	return severityRank[s]
}

// Validation constants shared across modules.
const (
	// MaxDetectionHistory bounds the per-user rolling detection history.
	MaxDetectionHistory = 1000
	// MetricsWindow is the number of recent interactions behavioral metrics
	// are computed over.
	MetricsWindow = 50
	// MinUrgency and MaxUrgency bound intervention urgency.
	MinUrgency = 1
	MaxUrgency = 10
)

// Error variables for better error handling and testability.
var (
	ErrEmptyUserID      = errors.New("user id cannot be empty")
	ErrEmptyMessage     = errors.New("message cannot be empty")
	ErrInvalidPattern   = errors.New("invalid pattern type")
	ErrInvalidSeverity  = errors.New("invalid severity")
	ErrEmptyEventType   = errors.New("event type cannot be empty")
	ErrEmptyDescription = errors.New("description cannot be empty")
	ErrEmptyContent     = errors.New("content cannot be empty")
)

// PatternDetection is an immutable record of one detector firing.
type PatternDetection struct {
	ID          string         `json:"id,omitempty"`
	UserID      string         `json:"user_id"`
	PatternType PatternType    `json:"pattern_type"`
	Severity    Severity       `json:"severity"`
	Confidence  float64        `json:"confidence"`
	Evidence    map[string]any `json:"evidence,omitempty"`
	Intervene   bool           `json:"intervention_recommended"`
	Urgency     int            `json:"intervention_urgency"`
	Timestamp   time.Time      `json:"timestamp"`
}

// NewPatternDetection constructs a detection with confidence clamped to [0,1]
// and urgency clamped to [1,10], so out-of-range values cannot be persisted.
func NewPatternDetection(userID string, pt PatternType, sev Severity, confidence float64, urgency int) PatternDetection {
	if urgency < MinUrgency {
		urgency = MinUrgency
	}
	if urgency > MaxUrgency {
		urgency = MaxUrgency
	}
	return PatternDetection{
		UserID:      userID,
		PatternType: pt,
		Severity:    sev,
		Confidence:  ClampUnit(confidence),
		Urgency:     urgency,
		Timestamp:   time.Now().UTC(),
	}
}

// Validate checks a detection for structural validity.
func (d *PatternDetection) Validate() error {
	if d.UserID == "" {
		return ErrEmptyUserID
	}
	if !IsValidPatternType(d.PatternType) {
		return ErrInvalidPattern
	}
	if d.Severity.Rank() == 0 {
		return ErrInvalidSeverity
	}
	return nil
}

// BehavioralMetrics is a transient snapshot computed from recent interactions.
// All ratio and level fields are clamped to [0,1].
type BehavioralMetrics struct {
	SessionDurationMinutes float64 `json:"session_duration_minutes"`
	TaskSwitchFrequency    float64 `json:"task_switch_frequency"` // switches per hour
	ResponseDelayMinutes   float64 `json:"response_delay_minutes"`
	CompletionRate         float64 `json:"completion_rate"`
	EnergyLevel            float64 `json:"energy_level"`
	EmotionalVolatility    float64 `json:"emotional_volatility"`
	InterruptionFrequency  float64 `json:"interruption_frequency"`
	TimeEstimationAccuracy float64 `json:"time_estimation_accuracy"`
	MaxInteractionGapMin   float64 `json:"max_interaction_gap_minutes"`
	InteractionCount       int     `json:"interaction_count"`
}

// Clamp normalizes all bounded metric fields into [0,1].
func (m *BehavioralMetrics) Clamp() {
	m.CompletionRate = ClampUnit(m.CompletionRate)
	m.EnergyLevel = ClampUnit(m.EnergyLevel)
	m.EmotionalVolatility = ClampUnit(m.EmotionalVolatility)
	m.InterruptionFrequency = ClampUnit(m.InterruptionFrequency)
	m.TimeEstimationAccuracy = ClampUnit(m.TimeEstimationAccuracy)
}

// Interaction is one analysis input: a message plus self-reported signals.
// Input is intentionally loose; detectors treat missing fields as zero.
type Interaction struct {
	ID                     string    `json:"id,omitempty"`
	UserID                 string    `json:"user_id"`
	Message                string    `json:"message,omitempty"`
	SessionDurationMinutes float64   `json:"session_duration_minutes,omitempty"`
	ResponseDelayMinutes   float64   `json:"response_delay_minutes,omitempty"`
	TaskSwitches           int       `json:"task_switches,omitempty"`
	TasksCompleted         int       `json:"tasks_completed,omitempty"`
	TasksStarted           int       `json:"tasks_started,omitempty"`
	EnergyLevel            float64   `json:"energy_level,omitempty"`   // self-reported [0,1]
	StressLevel            float64   `json:"stress_level,omitempty"`   // self-reported [0,1]
	CognitiveLoad          float64   `json:"cognitive_load,omitempty"` // synthetic [0,1]
	EstimatedMinutes       float64   `json:"estimated_minutes,omitempty"`
	ActualMinutes          float64   `json:"actual_minutes,omitempty"`
	Timestamp              time.Time `json:"timestamp"`
}

// Validate checks the minimal structural requirements for an interaction.
func (i *Interaction) Validate() error {
	if i.UserID == "" {
		return ErrEmptyUserID
	}
	return nil
}

// TraceEvent is one row of the append-only per-user event log. It is the
// system's only durable record; profiles are reconstructed from the most
// recent profile_update event.
type TraceEvent struct {
	ID         string    `json:"id,omitempty"`
	UserID     string    `json:"user_id"`
	EventType  string    `json:"event_type"`
	EventData  string    `json:"event_data"` // JSON blob
	Confidence float64   `json:"confidence"`
	Source     string    `json:"source"`
	Timestamp  time.Time `json:"timestamp"`
}

// Well-known trace event types.
const (
	TraceEventProfileUpdate    = "profile_update"
	TraceEventPatternDetection = "pattern_detection"
	TraceEventInteraction      = "interaction"
	TraceEventAdaptation       = "adaptation"
	TraceEventRetraining       = "retraining"
	TraceEventMemoryItem       = "memory_item"
	TraceEventEnergyCheckpoint = "energy_checkpoint"
)

// Validate checks a trace event for structural validity.
func (e *TraceEvent) Validate() error {
	if e.UserID == "" {
		return ErrEmptyUserID
	}
	if e.EventType == "" {
		return ErrEmptyEventType
	}
	return nil
}

// ClampUnit clamps v into [0,1].
func ClampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
