// Package models defines profile structures for FocusLoop users.
package models

import "time"

// ADHDSubtype classifies the dominant presentation inferred from history.
type ADHDSubtype string

const (
	SubtypeInattentive ADHDSubtype = "inattentive"
	SubtypeHyperactive ADHDSubtype = "hyperactive"
	SubtypeCombined    ADHDSubtype = "combined"
	SubtypeUnknown     ADHDSubtype = "unknown"
)

// InteractionStyle describes how the assistant should talk to the user.
type InteractionStyle string

const (
	StyleDirect     InteractionStyle = "direct"
	StyleGentle     InteractionStyle = "gentle"
	StyleStructured InteractionStyle = "structured"
	StyleMinimal    InteractionStyle = "minimal"
)

// CognitiveThresholds holds the per-user tunable limits the adaptation
// engine reads. All unit fields live in (0,1]; integer fields are counts.
type CognitiveThresholds struct {
	OverwhelmThreshold   float64 `json:"overwhelm_threshold"`
	OptimalLoad          float64 `json:"optimal_load"`
	MaxContextItems      int     `json:"max_context_items"`
	ResponseLengthChars  int     `json:"response_length_chars"`
	AttentionSpanMinutes float64 `json:"attention_span_minutes"`
}

// EnergySchedule maps hour-of-day (0-23) to an expected energy level [0,1].
type EnergySchedule map[int]float64

// UserProfile is the long-lived per-user record. It is mutated only through
// the profile manager's EMA update rules and serialized as a whole into the
// trace store on every change.
type UserProfile struct {
	UserID             string              `json:"user_id"`
	Subtype            ADHDSubtype         `json:"subtype"`
	SubtypeConfidence  float64             `json:"subtype_confidence"`
	Energy             EnergySchedule      `json:"energy_schedule,omitempty"`
	Thresholds         CognitiveThresholds `json:"thresholds"`
	Style              InteractionStyle    `json:"interaction_style"`
	HyperfocusTendency float64             `json:"hyperfocus_tendency"`
	NudgeEffectiveness map[string]float64  `json:"nudge_effectiveness,omitempty"`
	Preferences        map[string]string   `json:"preferences,omitempty"`
	Version            int                 `json:"version"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// DefaultThresholds are the heuristic starting points for a new profile.
func DefaultThresholds() CognitiveThresholds {
	return CognitiveThresholds{
		OverwhelmThreshold:   0.7,
		OptimalLoad:          0.5,
		MaxContextItems:      5,
		ResponseLengthChars:  800,
		AttentionSpanMinutes: 25,
	}
}

// NewUserProfile creates a profile with heuristic defaults.
func NewUserProfile(userID string) *UserProfile {
	now := time.Now().UTC()
	return &UserProfile{
		UserID:             userID,
		Subtype:            SubtypeUnknown,
		SubtypeConfidence:  0.0,
		Energy:             make(EnergySchedule),
		Thresholds:         DefaultThresholds(),
		Style:              StyleGentle,
		HyperfocusTendency: 0.3,
		NudgeEffectiveness: make(map[string]float64),
		Preferences:        make(map[string]string),
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// Validate checks a profile for structural validity.
func (p *UserProfile) Validate() error {
	if p.UserID == "" {
		return ErrEmptyUserID
	}
	return nil
}

// Clone returns a deep copy so callers cannot mutate cached state.
func (p *UserProfile) Clone() *UserProfile {
	cp := *p
	cp.Energy = make(EnergySchedule, len(p.Energy))
	for h, v := range p.Energy {
		cp.Energy[h] = v
	}
	cp.NudgeEffectiveness = make(map[string]float64, len(p.NudgeEffectiveness))
	for k, v := range p.NudgeEffectiveness {
		cp.NudgeEffectiveness[k] = v
	}
	cp.Preferences = make(map[string]string, len(p.Preferences))
	for k, v := range p.Preferences {
		cp.Preferences[k] = v
	}
	return &cp
}
