package executive

import (
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/FocusLoop/internal/models"
)

// Risk band boundaries mapping combined risk to intervention levels.
const (
	riskStructured = 0.3
	riskIntensive  = 0.55
	riskEmergency  = 0.8
)

// triggerSignals maps each procrastination trigger to the message phrases
// that indicate it, with an additive risk weight.
var triggerSignals = []struct {
	trigger models.ProcrastinationTrigger
	phrases []string
	weight  float64
}{
	{models.TriggerPerfectionism, []string{"perfect", "must be", "has to be right", "not good enough", "exactly right"}, 0.3},
	{models.TriggerOverwhelm, []string{"too big", "too much", "so many", "where do i even", "overwhelming"}, 0.3},
	{models.TriggerUnclearNextStep, []string{"don't know how", "dont know how", "not sure where", "no idea", "unclear"}, 0.25},
	{models.TriggerFearOfFailure, []string{"what if i fail", "afraid", "scared", "mess it up", "screw it up"}, 0.25},
	{models.TriggerBoredom, []string{"boring", "tedious", "dull", "mind-numbing"}, 0.15},
	{models.TriggerTaskUnpleasant, []string{"hate", "dread", "awful", "worst"}, 0.15},
	{models.TriggerDistractionPull, []string{"keep checking", "can't stop scrolling", "cant stop scrolling", "distracted"}, 0.15},
	{models.TriggerEnergyDepletion, []string{"exhausted", "no energy", "drained", "too tired"}, 0.2},
}

// baseStrategies are offered at every intervention level; each level adds
// its own on top.
var baseStrategies = []string{
	"Shrink the first step until it takes under 2 minutes",
	"Set a timer for 10 minutes and permit yourself to stop after",
}

// ProcrastinationIntervenor assesses avoidance risk for a task and builds a
// leveled intervention plan.
type ProcrastinationIntervenor struct{}

// NewProcrastinationIntervenor creates an intervenor.
func NewProcrastinationIntervenor() *ProcrastinationIntervenor {
	return &ProcrastinationIntervenor{}
}

// Assess scores avoidance risk from the task description and urgency,
// reinforced by the user's detection history, and maps risk to one of four
// intervention levels. Strategy lists grow additively with the level.
// urgency is the caller's 1-10 rating of how soon the task matters.
func (p *ProcrastinationIntervenor) Assess(userID, task string, urgency int, profile *models.UserProfile, history []models.PatternDetection) (*models.InterventionPlan, error) {
	if userID == "" {
		return nil, models.ErrEmptyUserID
	}
	task = strings.TrimSpace(task)
	if task == "" {
		return nil, models.ErrEmptyDescription
	}

	lower := strings.ToLower(task)
	var risk float64
	var triggers []models.ProcrastinationTrigger
	for _, sig := range triggerSignals {
		for _, phrase := range sig.phrases {
			if strings.Contains(lower, phrase) {
				risk += sig.weight
				triggers = append(triggers, sig.trigger)
				break
			}
		}
	}

	// Historical reinforcement: recent executive dysfunction or
	// procrastination detections raise baseline risk.
	var historical int
	for _, d := range history {
		if d.PatternType == models.PatternExecutiveDysfunction || d.PatternType == models.PatternProcrastination {
			historical++
		}
	}
	if historical > 0 {
		risk += 0.1
		if historical >= 3 {
			risk += 0.1
		}
	}

	// High urgency with any avoidance signal compounds the risk.
	if urgency >= 8 && risk > 0 {
		risk += 0.1
	}
	risk = models.ClampUnit(risk)

	level := levelForRisk(risk, urgency)
	plan := &models.InterventionPlan{
		UserID:     userID,
		Task:       task,
		RiskScore:  risk,
		Triggers:   triggers,
		Level:      level,
		Strategies: strategiesFor(level, triggers),
		CreatedAt:  time.Now().UTC(),
	}
	slog.Debug("ProcrastinationIntervenor.Assess: plan built", "userID", userID, "risk", risk, "level", level, "triggers", len(triggers))
	return plan, nil
}

// levelForRisk maps risk bands to levels; top-urgency tasks promote one level.
func levelForRisk(risk float64, urgency int) models.InterventionLevel {
	var level models.InterventionLevel
	switch {
	case risk >= riskEmergency:
		level = models.InterventionEmergency
	case risk >= riskIntensive:
		level = models.InterventionIntensive
	case risk >= riskStructured:
		level = models.InterventionStructured
	default:
		level = models.InterventionNudge
	}
	if urgency >= 9 && level < models.InterventionEmergency {
		level++
	}
	return level
}

// strategiesFor builds the strategy list additively per level, with
// trigger-specific additions.
func strategiesFor(level models.InterventionLevel, triggers []models.ProcrastinationTrigger) []string {
	strategies := append([]string{}, baseStrategies...)

	if level >= models.InterventionStructured {
		strategies = append(strategies,
			"Break the task into steps and write them where you can see them",
			"Do the first step with someone nearby or on a call (body doubling)")
	}
	if level >= models.InterventionIntensive {
		strategies = append(strategies,
			"Block the next 25 minutes on your calendar for step 1 only",
			"Remove the top distraction from reach before starting")
	}
	if level >= models.InterventionEmergency {
		strategies = append(strategies,
			"Tell someone what you're about to do and when you'll report back",
			"Lower the bar: done badly today beats done perfectly never")
	}

	for _, t := range triggers {
		switch t {
		case models.TriggerPerfectionism:
			strategies = append(strategies, "Explicitly aim for a rough version; polishing is a separate task")
		case models.TriggerUnclearNextStep:
			strategies = append(strategies, "Spend 5 minutes only on figuring out the literal first action")
		case models.TriggerEnergyDepletion:
			strategies = append(strategies, "If energy is the blocker, schedule this for your best hour instead")
		}
	}
	return strategies
}
