package pattern

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/BTreeMap/FocusLoop/internal/models"
	"github.com/BTreeMap/FocusLoop/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.InMemoryStore) {
	t.Helper()
	st := store.NewInMemoryStore()
	e, err := NewEngine(st, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return e, st
}

func TestAnalyzeDetectsHyperfocusFromLongSession(t *testing.T) {
	e, _ := newTestEngine(t)
	ix := models.Interaction{
		UserID:                 "u1",
		Message:                "still working on the parser",
		SessionDurationMinutes: 200,
		ResponseDelayMinutes:   45,
		Timestamp:              time.Now().UTC(),
	}

	detections, err := e.Analyze(context.Background(), ix)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(detections) != 1 {
		t.Fatalf("expected exactly one detection, got %d: %+v", len(detections), detections)
	}
	d := detections[0]
	if d.PatternType != models.PatternHyperfocus {
		t.Errorf("expected hyperfocus, got %s", d.PatternType)
	}
	if d.Severity.Rank() < models.SeverityModerate.Rank() {
		t.Errorf("expected severity >= moderate, got %s", d.Severity)
	}
	if d.Urgency < 6 {
		t.Errorf("expected urgency >= 6, got %d", d.Urgency)
	}
	if !d.Intervene {
		t.Error("expected intervention recommendation")
	}
}

func TestAnalyzeDetectsCriticalOverwhelm(t *testing.T) {
	e, _ := newTestEngine(t)
	ix := models.Interaction{
		UserID:        "u1",
		Message:       "This is too much, I can't keep up",
		CognitiveLoad: 0.9,
		StressLevel:   0.8,
		Timestamp:     time.Now().UTC(),
	}

	detections, err := e.Analyze(context.Background(), ix)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var overwhelm *models.PatternDetection
	for n := range detections {
		if detections[n].PatternType == models.PatternOverwhelm {
			overwhelm = &detections[n]
		}
	}
	if overwhelm == nil {
		t.Fatalf("expected overwhelm detection, got %+v", detections)
	}
	if overwhelm.Severity != models.SeverityCritical {
		t.Errorf("expected critical severity, got %s", overwhelm.Severity)
	}
	if !overwhelm.Intervene {
		t.Error("expected intervention recommendation")
	}
	if overwhelm.Urgency != 10 {
		t.Errorf("expected urgency 10, got %d", overwhelm.Urgency)
	}
}

func TestAnalyzeCalmInputProducesNothing(t *testing.T) {
	e, _ := newTestEngine(t)
	ix := models.Interaction{
		UserID:    "u1",
		Message:   "finished the report, feeling fine",
		Timestamp: time.Now().UTC(),
	}
	detections, err := e.Analyze(context.Background(), ix)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(detections) != 0 {
		t.Errorf("expected no detections, got %+v", detections)
	}
}

func TestAnalyzeReportsDetectorFailureDistinctly(t *testing.T) {
	e, _ := newTestEngine(t)
	ix := models.Interaction{
		UserID:                 "u1",
		Message:                "hello",
		SessionDurationMinutes: -10,
		Timestamp:              time.Now().UTC(),
	}
	detections, err := e.Analyze(context.Background(), ix)
	if err == nil {
		t.Fatal("expected detector failure error for negative duration")
	}
	if len(detections) != 0 {
		t.Errorf("expected no detections alongside failure, got %+v", detections)
	}
}

func TestAnalyzeRejectsEmptyUserID(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.Analyze(context.Background(), models.Interaction{Message: "hi"})
	if err != models.ErrEmptyUserID {
		t.Errorf("expected ErrEmptyUserID, got %v", err)
	}
}

func TestSeverityMonotonicInScore(t *testing.T) {
	cfg := DefaultConfig()
	prev := 0
	for _, score := range []float64{0.1, 0.3, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0} {
		rank := cfg.severityFor(score, false).Rank()
		if rank < prev {
			t.Errorf("severity rank decreased at score %v", score)
		}
		prev = rank
	}
	if cfg.severityFor(0.85, true) != models.SeverityCritical {
		t.Error("escalating detector should map top band to critical")
	}
	if cfg.severityFor(0.85, false) != models.SeverityHigh {
		t.Error("non-escalating detector should map top band to high")
	}
}

func TestUrgencyAlwaysInRange(t *testing.T) {
	severities := []models.Severity{models.SeverityLow, models.SeverityModerate, models.SeverityHigh, models.SeverityCritical}
	patterns := []models.PatternType{
		models.PatternHyperfocus, models.PatternExecutiveDysfunction, models.PatternTimeBlindness,
		models.PatternEmotionalDysregulation, models.PatternOverwhelm, models.PatternProcrastination,
	}
	for _, pt := range patterns {
		for _, sev := range severities {
			u := urgencyFor(pt, sev)
			if u < models.MinUrgency || u > models.MaxUrgency {
				t.Errorf("urgency out of range for %s/%s: %d", pt, sev, u)
			}
		}
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}

	cfg := DefaultConfig()
	cfg.HyperfocusThreshold = 1.5
	if err := cfg.Validate(); err == nil {
		t.Error("out-of-range threshold should fail validation")
	}

	cfg = DefaultConfig()
	cfg.SeverityModerateBand = 0.9
	if err := cfg.Validate(); err == nil {
		t.Error("out-of-order severity bands should fail validation")
	}

	cfg = DefaultConfig()
	cfg.LongSessionMinutes = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero duration cutoff should fail validation")
	}
}

func TestHistoryBoundedAndCopied(t *testing.T) {
	e, _ := newTestEngine(t)
	for n := 0; n < models.MaxDetectionHistory+20; n++ {
		e.record(models.NewPatternDetection("u1", models.PatternHyperfocus, models.SeverityLow, 0.5, 4))
	}
	hist := e.History("u1")
	if len(hist) != models.MaxDetectionHistory {
		t.Errorf("expected history capped at %d, got %d", models.MaxDetectionHistory, len(hist))
	}
	hist[0].UserID = "mutated"
	if e.History("u1")[0].UserID != "u1" {
		t.Error("History should return a copy")
	}
}

func TestComputeMetricsCompletionAndGap(t *testing.T) {
	now := time.Now().UTC()
	history := []models.Interaction{
		{UserID: "u1", Timestamp: now.Add(-3 * time.Hour), TasksStarted: 4, TasksCompleted: 1, SessionDurationMinutes: 60},
		{UserID: "u1", Timestamp: now.Add(-30 * time.Minute), TasksStarted: 2, TasksCompleted: 1, SessionDurationMinutes: 30},
	}
	current := models.Interaction{UserID: "u1", Timestamp: now, SessionDurationMinutes: 10}

	m := computeMetrics(current, history)
	want := float64(2) / float64(6)
	if m.CompletionRate != want {
		t.Errorf("completion rate = %v, want %v", m.CompletionRate, want)
	}
	if m.MaxInteractionGapMin < 149 || m.MaxInteractionGapMin > 151 {
		t.Errorf("max gap = %v, want ~150", m.MaxInteractionGapMin)
	}
	if m.InteractionCount != 3 {
		t.Errorf("interaction count = %d, want 3", m.InteractionCount)
	}
}

func TestComputeMetricsDefaults(t *testing.T) {
	m := computeMetrics(models.Interaction{UserID: "u1", Timestamp: time.Now().UTC()}, nil)
	if m.CompletionRate != 0.5 {
		t.Errorf("completion rate default = %v, want 0.5", m.CompletionRate)
	}
	if m.TimeEstimationAccuracy != 0.5 {
		t.Errorf("estimation accuracy default = %v, want 0.5", m.TimeEstimationAccuracy)
	}
}

func TestAnalyzeCountsStoredInteractionOnce(t *testing.T) {
	e, st := newTestEngine(t)
	now := time.Now().UTC()

	solo := models.Interaction{
		ID:                     "ix_solo",
		UserID:                 "u1",
		Message:                "switching around a lot",
		TaskSwitches:           4,
		TasksStarted:           2,
		TasksCompleted:         1,
		SessionDurationMinutes: 60,
		Timestamp:              now,
	}
	if err := st.AddInteraction(solo); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The request path stores the interaction before analysis; the stored
	// copy must not occupy a second window slot.
	m := computeMetrics(solo, e.recentHistory(solo))
	if m.InteractionCount != 1 {
		t.Errorf("expected interaction count 1, got %d", m.InteractionCount)
	}
	if math.Abs(m.TaskSwitchFrequency-4) > 1e-9 {
		t.Errorf("expected 4 switches/hour, got %v", m.TaskSwitchFrequency)
	}

	old := models.Interaction{
		ID:                     "ix_old",
		UserID:                 "u2",
		Message:                "earlier",
		EnergyLevel:            0.2,
		SessionDurationMinutes: 30,
		Timestamp:              now.Add(-time.Hour),
	}
	current := models.Interaction{
		ID:                     "ix_new",
		UserID:                 "u2",
		Message:                "now",
		EnergyLevel:            0.8,
		SessionDurationMinutes: 60,
		Timestamp:              now,
	}
	if err := st.AddInteraction(old); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := st.AddInteraction(current); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	history := e.recentHistory(current)
	if len(history) != 1 || history[0].ID != "ix_old" {
		t.Fatalf("expected only the older interaction in history, got %+v", history)
	}
	m = computeMetrics(current, history)
	if m.InteractionCount != 2 {
		t.Errorf("expected interaction count 2, got %d", m.InteractionCount)
	}
	// A duplicated current interaction would skew the mean toward 0.8.
	if math.Abs(m.EnergyLevel-0.5) > 1e-9 {
		t.Errorf("expected energy mean 0.5, got %v", m.EnergyLevel)
	}
}
