// Package executive implements the executive-function support tools:
// task breakdown, context-switch planning, working memory, and
// procrastination intervention.
//
// Every generator is pure over its inputs plus the profile, and degrades to
// generic advice instead of failing: a user mid-struggle should never see an
// internal error where a next step could be.
package executive

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/FocusLoop/internal/models"
)

// Complexity tier boundaries by word count.
const (
	microMaxWords    = 3
	simpleMaxWords   = 8
	moderateMaxWords = 15
	complexMaxWords  = 25
	projectMaxWords  = 40
)

// switchPenaltyMinutes is added per subtask transition when estimating
// total time.
const switchPenaltyMinutes = 2.0

// complexityKeywords promote a task at least one tier regardless of length.
var complexityKeywords = []string{"project", "organize", "plan", "research", "redesign", "migrate", "overhaul", "entire", "everything", "all of"}

// TaskBreakdownEngine turns a free-text task into an ordered subtask plan.
type TaskBreakdownEngine struct{}

// NewTaskBreakdownEngine creates a breakdown engine.
func NewTaskBreakdownEngine() *TaskBreakdownEngine {
	return &TaskBreakdownEngine{}
}

// BreakDown classifies the task's complexity and produces ordered subtasks
// with a total time estimate scaled by the profile's focus characteristics.
func (e *TaskBreakdownEngine) BreakDown(userID, task string, profile *models.UserProfile) (*models.TaskBreakdown, error) {
	if userID == "" {
		return nil, models.ErrEmptyUserID
	}
	task = strings.TrimSpace(task)
	if task == "" {
		return nil, models.ErrEmptyDescription
	}

	complexity := classifyComplexity(task)
	subtasks := buildSubtasks(task, complexity)

	var total float64
	for _, st := range subtasks {
		total += st.EstimatedMinutes
	}
	if n := len(subtasks); n > 1 {
		total += float64(n-1) * switchPenaltyMinutes
	}
	total *= estimateMultiplier(profile)

	b := &models.TaskBreakdown{
		UserID:                userID,
		TaskDescription:       task,
		Complexity:            complexity,
		Subtasks:              subtasks,
		TotalEstimatedMinutes: total,
		Guidance:              guidanceFor(complexity),
		CreatedAt:             time.Now().UTC(),
	}
	slog.Debug("TaskBreakdownEngine.BreakDown: plan built", "userID", userID, "complexity", complexity, "subtasks", len(subtasks), "total_minutes", total)
	return b, nil
}

// classifyComplexity tiers by word count, with complexity keywords promoting
// short descriptions that hide large scope.
func classifyComplexity(task string) models.TaskComplexity {
	words := len(strings.Fields(task))
	lower := strings.ToLower(task)

	keywordHit := false
	for _, kw := range complexityKeywords {
		if strings.Contains(lower, kw) {
			keywordHit = true
			break
		}
	}

	var tier models.TaskComplexity
	switch {
	case words <= microMaxWords:
		tier = models.ComplexityMicro
	case words <= simpleMaxWords:
		tier = models.ComplexitySimple
	case words <= moderateMaxWords:
		tier = models.ComplexityModerate
	case words <= complexMaxWords:
		tier = models.ComplexityComplex
	case words <= projectMaxWords:
		tier = models.ComplexityProject
	default:
		tier = models.ComplexityOverwhelming
	}

	if keywordHit {
		tier = promote(tier)
	}
	return tier
}

func promote(t models.TaskComplexity) models.TaskComplexity {
	switch t {
	case models.ComplexityMicro:
		return models.ComplexitySimple
	case models.ComplexitySimple:
		return models.ComplexityModerate
	case models.ComplexityModerate:
		return models.ComplexityComplex
	case models.ComplexityComplex:
		return models.ComplexityProject
	default:
		return models.ComplexityOverwhelming
	}
}

// buildSubtasks branches on common task verbs, falling back to a generic
// start/middle/finish split sized by tier. Micro tasks get exactly one step.
func buildSubtasks(task string, complexity models.TaskComplexity) []models.Subtask {
	if complexity == models.ComplexityMicro {
		return []models.Subtask{{Order: 1, Description: task, EstimatedMinutes: 5}}
	}

	lower := strings.ToLower(task)
	switch {
	case strings.Contains(lower, "email") || strings.Contains(lower, "message") || strings.Contains(lower, "reply"):
		return numberSubtasks([]models.Subtask{
			{Description: "Open the thread and skim what's needed", EstimatedMinutes: 3},
			{Description: "Write one rough draft, no editing", EstimatedMinutes: 8},
			{Description: "One quick read-through, then send", EstimatedMinutes: 4},
		})
	case strings.Contains(lower, "write") || strings.Contains(lower, "draft") || strings.Contains(lower, "report"):
		return numberSubtasks([]models.Subtask{
			{Description: "List the 3-5 points it must cover", EstimatedMinutes: 5},
			{Description: "Write the ugliest possible first draft", EstimatedMinutes: 20},
			{Description: "Revise for clarity only", EstimatedMinutes: 10},
			{Description: "Final pass and deliver", EstimatedMinutes: 5},
		})
	case strings.Contains(lower, "plan") || strings.Contains(lower, "organize") || strings.Contains(lower, "project"):
		return numberSubtasks([]models.Subtask{
			{Description: "Brain-dump everything this involves", EstimatedMinutes: 10},
			{Description: "Group the dump into 3-4 chunks", EstimatedMinutes: 8},
			{Description: "Pick the first chunk and define its first concrete step", EstimatedMinutes: 5},
			{Description: "Do that first step only", EstimatedMinutes: 15},
			{Description: "Schedule the remaining chunks", EstimatedMinutes: 7},
		})
	}

	// Generic split sized by tier.
	steps := []models.Subtask{
		{Description: fmt.Sprintf("Set up what you need for: %s", task), EstimatedMinutes: 5},
		{Description: "Do the first concrete piece", EstimatedMinutes: 15},
		{Description: "Finish and put things away", EstimatedMinutes: 5},
	}
	if complexity == models.ComplexityComplex || complexity == models.ComplexityProject || complexity == models.ComplexityOverwhelming {
		steps = append(steps[:2],
			models.Subtask{Description: "Do the second piece after a short break", EstimatedMinutes: 15},
			models.Subtask{Description: "Review what's left and decide if today or later", EstimatedMinutes: 5},
			steps[2])
	}
	return numberSubtasks(steps)
}

func numberSubtasks(steps []models.Subtask) []models.Subtask {
	for n := range steps {
		steps[n].Order = n + 1
	}
	return steps
}

// estimateMultiplier scales time estimates for users whose history shows
// time blindness or short attention spans.
func estimateMultiplier(profile *models.UserProfile) float64 {
	if profile == nil {
		return 1.0
	}
	m := 1.0
	if profile.Preferences["time_anchors"] == "enabled" {
		m += 0.25
	}
	if profile.Thresholds.AttentionSpanMinutes > 0 && profile.Thresholds.AttentionSpanMinutes < 20 {
		m += 0.15
	}
	return m
}

func guidanceFor(c models.TaskComplexity) string {
	switch c {
	case models.ComplexityMicro:
		return "This is small enough to just do right now."
	case models.ComplexitySimple:
		return "One sitting. Start with step 1 and momentum will carry you."
	case models.ComplexityModerate:
		return "Doable today. Take a short break between steps if you need it."
	case models.ComplexityComplex:
		return "Don't try to hold all of this in your head. The list is the plan."
	case models.ComplexityProject:
		return "This is multiple sessions. Today's job is only the first chunk."
	default:
		return "This is too big to start as-is. Step 1 is making it smaller."
	}
}
