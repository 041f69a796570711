package executive

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/FocusLoop/internal/models"
)

// Transition time bounds in minutes.
const (
	minSwitchMinutes = 3
	maxSwitchMinutes = 20
)

// contextKeywords classify a free-text context into one of four types.
var contextKeywords = map[models.ContextType][]string{
	models.ContextCreative:       {"design", "write", "writing", "brainstorm", "draw", "sketch", "compose", "creative", "idea"},
	models.ContextAnalytical:     {"code", "coding", "debug", "analyze", "analysis", "spreadsheet", "data", "math", "review", "research"},
	models.ContextCommunication:  {"email", "meeting", "call", "chat", "message", "slack", "reply", "conversation", "standup"},
	models.ContextAdministrative: {"invoice", "form", "schedule", "file", "filing", "expense", "paperwork", "admin", "booking", "tax"},
}

// loadByType is the relative cognitive load of sustaining each context type.
var loadByType = map[models.ContextType]float64{
	models.ContextCreative:       0.8,
	models.ContextAnalytical:     0.9,
	models.ContextCommunication:  0.5,
	models.ContextAdministrative: 0.4,
}

// ContextSwitchAssistant plans transitions between working contexts.
type ContextSwitchAssistant struct{}

// NewContextSwitchAssistant creates a switch assistant.
func NewContextSwitchAssistant() *ContextSwitchAssistant {
	return &ContextSwitchAssistant{}
}

// PlanSwitch classifies both contexts, computes the load delta, and produces
// ordered transition steps with a clamped time estimate. Switches into
// heavier contexts get longer ramps; users with high hyperfocus tendency get
// extra exit time when leaving a deep context.
func (a *ContextSwitchAssistant) PlanSwitch(userID, from, to string, profile *models.UserProfile) (*models.ContextSwitchPlan, error) {
	if userID == "" {
		return nil, models.ErrEmptyUserID
	}
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	if from == "" || to == "" {
		return nil, models.ErrEmptyDescription
	}

	fromType := classifyContext(from)
	toType := classifyContext(to)
	delta := loadByType[toType] - loadByType[fromType]

	steps := []string{
		fmt.Sprintf("Write down exactly where you're stopping in %q (one line is enough)", from),
		"Close or minimize everything from the old context",
	}
	if delta > 0.2 {
		steps = append(steps, "Take 2 minutes away from the screen before ramping up")
	}
	steps = append(steps,
		fmt.Sprintf("Open only what %q needs", to),
		fmt.Sprintf("Say out loud the first thing you'll do in %q, then do it", to),
	)

	minutes := minSwitchMinutes + delta*10
	if delta < 0 {
		minutes = minSwitchMinutes + 2
	}
	if profile != nil && profile.HyperfocusTendency > 0.6 && loadByType[fromType] >= 0.8 {
		// Exiting a deep context is the hard part for hyperfocus-prone users.
		minutes += 5
		steps = append([]string{"Set a 5-minute wind-down timer before you stop"}, steps...)
	}
	if minutes < minSwitchMinutes {
		minutes = minSwitchMinutes
	}
	if minutes > maxSwitchMinutes {
		minutes = maxSwitchMinutes
	}

	plan := &models.ContextSwitchPlan{
		UserID:           userID,
		FromContext:      from,
		ToContext:        to,
		FromType:         fromType,
		ToType:           toType,
		LoadDelta:        delta,
		Steps:            steps,
		EstimatedMinutes: minutes,
		CreatedAt:        time.Now().UTC(),
	}
	slog.Debug("ContextSwitchAssistant.PlanSwitch: plan built", "userID", userID, "from_type", fromType, "to_type", toType, "minutes", minutes)
	return plan, nil
}

// classifyContext scores keyword hits per type and picks the highest,
// defaulting to administrative.
func classifyContext(context string) models.ContextType {
	lower := strings.ToLower(context)
	best := models.ContextAdministrative
	bestHits := 0
	for _, ct := range []models.ContextType{models.ContextCreative, models.ContextAnalytical, models.ContextCommunication, models.ContextAdministrative} {
		hits := 0
		for _, kw := range contextKeywords[ct] {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		if hits > bestHits {
			best = ct
			bestHits = hits
		}
	}
	return best
}
