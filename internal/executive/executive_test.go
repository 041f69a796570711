package executive

import (
	"context"
	"testing"
	"time"

	"github.com/BTreeMap/FocusLoop/internal/models"
	"github.com/BTreeMap/FocusLoop/internal/store"
)

func TestBreakDownMicroTaskGetsOneSubtask(t *testing.T) {
	e := NewTaskBreakdownEngine()
	b, err := e.BreakDown("u1", "water the ferns", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Complexity != models.ComplexityMicro {
		t.Errorf("3 words without complexity keywords should be micro, got %s", b.Complexity)
	}
	if len(b.Subtasks) != 1 {
		t.Errorf("micro task should have exactly one subtask, got %d", len(b.Subtasks))
	}
}

func TestBreakDownKeywordPromotesTier(t *testing.T) {
	e := NewTaskBreakdownEngine()
	b, err := e.BreakDown("u1", "organize the garage", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Complexity == models.ComplexityMicro {
		t.Error("complexity keyword should promote past micro")
	}
	if len(b.Subtasks) < 2 {
		t.Errorf("promoted task should have multiple subtasks, got %d", len(b.Subtasks))
	}
}

func TestBreakDownEmailBranch(t *testing.T) {
	e := NewTaskBreakdownEngine()
	b, err := e.BreakDown("u1", "reply to the email from the landlord about the lease", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(b.Subtasks) != 3 {
		t.Errorf("email branch should have 3 subtasks, got %d", len(b.Subtasks))
	}
	for n, st := range b.Subtasks {
		if st.Order != n+1 {
			t.Errorf("subtask %d has order %d", n, st.Order)
		}
	}
}

func TestBreakDownTotalIncludesSwitchPenalty(t *testing.T) {
	e := NewTaskBreakdownEngine()
	b, err := e.BreakDown("u1", "write the quarterly report for the finance team", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var sum float64
	for _, st := range b.Subtasks {
		sum += st.EstimatedMinutes
	}
	if b.TotalEstimatedMinutes <= sum {
		t.Errorf("total %v should exceed subtask sum %v by switch penalties", b.TotalEstimatedMinutes, sum)
	}
}

func TestBreakDownProfileMultiplierExtendsEstimate(t *testing.T) {
	e := NewTaskBreakdownEngine()
	base, err := e.BreakDown("u1", "write the quarterly report for the finance team", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	prof := models.NewUserProfile("u1")
	prof.Preferences["time_anchors"] = "enabled"
	scaled, err := e.BreakDown("u1", "write the quarterly report for the finance team", prof)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scaled.TotalEstimatedMinutes <= base.TotalEstimatedMinutes {
		t.Errorf("time-blind profile should extend estimate: %v vs %v", scaled.TotalEstimatedMinutes, base.TotalEstimatedMinutes)
	}
}

func TestBreakDownValidation(t *testing.T) {
	e := NewTaskBreakdownEngine()
	if _, err := e.BreakDown("", "task", nil); err != models.ErrEmptyUserID {
		t.Errorf("expected ErrEmptyUserID, got %v", err)
	}
	if _, err := e.BreakDown("u1", "   ", nil); err != models.ErrEmptyDescription {
		t.Errorf("expected ErrEmptyDescription, got %v", err)
	}
}

func TestPlanSwitchClassifiesAndClamps(t *testing.T) {
	a := NewContextSwitchAssistant()
	plan, err := a.PlanSwitch("u1", "answering slack messages", "debugging the payment code", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.FromType != models.ContextCommunication {
		t.Errorf("expected communication from-type, got %s", plan.FromType)
	}
	if plan.ToType != models.ContextAnalytical {
		t.Errorf("expected analytical to-type, got %s", plan.ToType)
	}
	if plan.LoadDelta <= 0 {
		t.Errorf("switch into heavier context should have positive delta, got %v", plan.LoadDelta)
	}
	if plan.EstimatedMinutes < minSwitchMinutes || plan.EstimatedMinutes > maxSwitchMinutes {
		t.Errorf("estimate outside bounds: %v", plan.EstimatedMinutes)
	}
	if len(plan.Steps) < 3 {
		t.Errorf("expected ordered steps, got %d", len(plan.Steps))
	}
}

func TestPlanSwitchHyperfocusExitRamp(t *testing.T) {
	a := NewContextSwitchAssistant()
	prof := models.NewUserProfile("u1")
	prof.HyperfocusTendency = 0.9

	plan, err := a.PlanSwitch("u1", "debugging the payment code", "filing expense forms", prof)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.Steps[0] != "Set a 5-minute wind-down timer before you stop" {
		t.Errorf("hyperfocus-prone exit should lead with wind-down, got %q", plan.Steps[0])
	}
}

func TestWorkingMemoryNeverReturnsExpired(t *testing.T) {
	st := store.NewInMemoryStore()
	w := NewWorkingMemory(st)
	ctx := context.Background()

	if _, err := w.Save(ctx, "u1", "call the pharmacy before 5pm", "reminder", "errands", time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	live, err := w.Save(ctx, "u1", "parser bug is in the tokenizer loop", "note", "coding", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	items, err := w.Retrieve(ctx, "u1", "", "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 || items[0].ID != live.ID {
		t.Fatalf("expected only the live item, got %+v", items)
	}

	// The expired item must also be gone from the store (lazy deletion).
	stored, err := st.GetMemoryItems("u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stored) != 1 {
		t.Errorf("expired item not deleted from store: %d items", len(stored))
	}
}

func TestWorkingMemoryWeightedRetrieval(t *testing.T) {
	w := NewWorkingMemory(store.NewInMemoryStore())
	ctx := context.Background()

	if _, err := w.Save(ctx, "u1", "parser bug is in the tokenizer loop", "note", "coding", time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := w.Save(ctx, "u1", "buy oat milk and coffee", "errand", "groceries", time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	items, err := w.Retrieve(ctx, "u1", "tokenizer parser", "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected one relevant item, got %d", len(items))
	}
	if items[0].TaskTag != "coding" {
		t.Errorf("wrong item retrieved: %+v", items[0])
	}
}

func TestAssessPerfectionismTrigger(t *testing.T) {
	p := NewProcrastinationIntervenor()
	plan, err := p.Assess("u1", "it must be perfect before I send it", 5, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.RiskScore < 0.3 {
		t.Errorf("perfectionism language should score >= 0.3, got %v", plan.RiskScore)
	}
	var found bool
	for _, trig := range plan.Triggers {
		if trig == models.TriggerPerfectionism {
			found = true
		}
	}
	if !found {
		t.Errorf("expected perfectionism trigger, got %+v", plan.Triggers)
	}
	if plan.Level < models.InterventionStructured {
		t.Errorf("risk >= 0.3 should reach structured level, got %d", plan.Level)
	}
}

func TestAssessLevelsGrowStrategies(t *testing.T) {
	p := NewProcrastinationIntervenor()
	low, err := p.Assess("u1", "file the weekly update", 3, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	high, err := p.Assess("u1", "it must be perfect and it's too much, I'm exhausted and afraid I'll mess it up", 9, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if high.Level <= low.Level {
		t.Errorf("stacked triggers should raise level: %d vs %d", high.Level, low.Level)
	}
	if len(high.Strategies) <= len(low.Strategies) {
		t.Errorf("higher level should add strategies: %d vs %d", len(high.Strategies), len(low.Strategies))
	}
}

func TestAssessHistoricalReinforcement(t *testing.T) {
	p := NewProcrastinationIntervenor()
	history := []models.PatternDetection{
		models.NewPatternDetection("u1", models.PatternExecutiveDysfunction, models.SeverityModerate, 0.6, 5),
	}
	bare, err := p.Assess("u1", "start the boring paperwork", 5, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reinforced, err := p.Assess("u1", "start the boring paperwork", 5, nil, history)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reinforced.RiskScore <= bare.RiskScore {
		t.Errorf("history should raise risk: %v vs %v", reinforced.RiskScore, bare.RiskScore)
	}
}
