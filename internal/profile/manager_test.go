package profile

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/BTreeMap/FocusLoop/internal/models"
	"github.com/BTreeMap/FocusLoop/internal/store"
)

func TestGetOrCreateBuildsDefaults(t *testing.T) {
	m := NewManager(store.NewInMemoryStore())
	p, err := m.GetOrCreate(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Subtype != models.SubtypeUnknown {
		t.Errorf("expected unknown subtype, got %s", p.Subtype)
	}
	if p.Thresholds != models.DefaultThresholds() {
		t.Errorf("expected default thresholds, got %+v", p.Thresholds)
	}
	if p.Style != models.StyleGentle {
		t.Errorf("expected gentle style, got %s", p.Style)
	}
}

func TestGetOrCreateRejectsEmptyUserID(t *testing.T) {
	m := NewManager(store.NewInMemoryStore())
	if _, err := m.GetOrCreate(context.Background(), ""); err != models.ErrEmptyUserID {
		t.Errorf("expected ErrEmptyUserID, got %v", err)
	}
}

func TestProfilePersistsAcrossManagers(t *testing.T) {
	st := store.NewInMemoryStore()
	m1 := NewManager(st)
	ctx := context.Background()

	detections := []models.PatternDetection{
		models.NewPatternDetection("u1", models.PatternHyperfocus, models.SeverityModerate, 0.7, 6),
	}
	saved, err := m1.AdaptToDetections(ctx, "u1", detections)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A fresh manager over the same store must reconstruct the profile from
	// the trace blob.
	m2 := NewManager(st)
	loaded, err := m2.GetOrCreate(ctx, "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded.HyperfocusTendency != saved.HyperfocusTendency {
		t.Errorf("hyperfocus tendency not persisted: got %v, want %v", loaded.HyperfocusTendency, saved.HyperfocusTendency)
	}
	if loaded.Version != saved.Version {
		t.Errorf("version not persisted: got %d, want %d", loaded.Version, saved.Version)
	}
}

func TestUpdateFromInteractionConvergesWithoutOvershoot(t *testing.T) {
	m := NewManager(store.NewInMemoryStore())
	ctx := context.Background()

	ix := models.Interaction{
		UserID:        "u1",
		Message:       "working through the queue",
		CognitiveLoad: 0.8,
		StressLevel:   0.2,
		Timestamp:     time.Now().UTC(),
	}

	prev := models.DefaultThresholds().OptimalLoad
	for n := 0; n < 50; n++ {
		p, err := m.UpdateFromInteraction(ctx, "u1", ix)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		cur := p.Thresholds.OptimalLoad
		if cur > 0.8+1e-9 {
			t.Fatalf("optimal load overshot target: %v", cur)
		}
		if cur < prev-1e-9 {
			t.Fatalf("optimal load moved away from target: %v -> %v", prev, cur)
		}
		prev = cur
	}
	if math.Abs(prev-0.8) > 0.01 {
		t.Errorf("optimal load did not converge: got %v, want ~0.8", prev)
	}
}

func TestAdaptToDetectionsOverwhelmLowersThresholdWithFloor(t *testing.T) {
	m := NewManager(store.NewInMemoryStore())
	ctx := context.Background()
	detections := []models.PatternDetection{
		models.NewPatternDetection("u1", models.PatternOverwhelm, models.SeverityHigh, 0.8, 8),
	}

	first, err := m.AdaptToDetections(ctx, "u1", detections)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Thresholds.OverwhelmThreshold >= models.DefaultThresholds().OverwhelmThreshold {
		t.Errorf("overwhelm threshold should decrease: got %v", first.Thresholds.OverwhelmThreshold)
	}

	// Many repetitions must bottom out at the floor, never zero or negative.
	var last *models.UserProfile
	for n := 0; n < 100; n++ {
		last, err = m.AdaptToDetections(ctx, "u1", detections)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if last.Thresholds.OverwhelmThreshold <= 0 {
		t.Errorf("overwhelm threshold must stay positive: got %v", last.Thresholds.OverwhelmThreshold)
	}
	if last.Thresholds.OverwhelmThreshold < overwhelmThresholdFloor-1e-9 {
		t.Errorf("overwhelm threshold fell below floor: got %v", last.Thresholds.OverwhelmThreshold)
	}
	if last.Thresholds.MaxContextItems < minContextItems {
		t.Errorf("max context items fell below floor: got %d", last.Thresholds.MaxContextItems)
	}
}

func TestAdaptToDetectionsHyperfocusTendencyCapped(t *testing.T) {
	m := NewManager(store.NewInMemoryStore())
	ctx := context.Background()
	detections := []models.PatternDetection{
		models.NewPatternDetection("u1", models.PatternHyperfocus, models.SeverityModerate, 0.7, 6),
	}

	var last *models.UserProfile
	var err error
	for n := 0; n < 20; n++ {
		last, err = m.AdaptToDetections(ctx, "u1", detections)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if last.HyperfocusTendency != 1.0 {
		t.Errorf("hyperfocus tendency should cap at 1.0: got %v", last.HyperfocusTendency)
	}
}

func TestAdaptToDetectionsStyleShifts(t *testing.T) {
	m := NewManager(store.NewInMemoryStore())
	ctx := context.Background()

	p, err := m.AdaptToDetections(ctx, "u1", []models.PatternDetection{
		models.NewPatternDetection("u1", models.PatternExecutiveDysfunction, models.SeverityModerate, 0.6, 5),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Style != models.StyleStructured {
		t.Errorf("expected structured style after executive dysfunction, got %s", p.Style)
	}

	p, err = m.AdaptToDetections(ctx, "u1", []models.PatternDetection{
		models.NewPatternDetection("u1", models.PatternEmotionalDysregulation, models.SeverityHigh, 0.8, 8),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Style != models.StyleGentle {
		t.Errorf("expected gentle style after emotional dysregulation, got %s", p.Style)
	}
}

func TestPutClampsAndPersists(t *testing.T) {
	st := store.NewInMemoryStore()
	m := NewManager(st)
	ctx := context.Background()

	p := models.NewUserProfile("u1")
	p.HyperfocusTendency = 1.8
	p.Thresholds.OverwhelmThreshold = -0.2

	saved, err := m.Put(ctx, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved.HyperfocusTendency != 1.0 {
		t.Errorf("hyperfocus tendency not clamped: %v", saved.HyperfocusTendency)
	}
	if saved.Thresholds.OverwhelmThreshold != overwhelmThresholdFloor {
		t.Errorf("overwhelm threshold not floored: %v", saved.Thresholds.OverwhelmThreshold)
	}

	event, err := st.LatestTraceEvent("u1", models.TraceEventProfileUpdate)
	if err != nil || event == nil {
		t.Fatalf("expected persisted profile_update event, got %v, %v", event, err)
	}
}
