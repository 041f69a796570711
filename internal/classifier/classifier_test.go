package classifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BTreeMap/FocusLoop/internal/models"
	"github.com/BTreeMap/FocusLoop/internal/store"
)

func TestExtractProducesFixedDimension(t *testing.T) {
	e := NewExtractor()
	ix := models.Interaction{
		UserID:                 "u1",
		Message:                "long session today",
		SessionDurationMinutes: 120,
		StressLevel:            0.4,
		Timestamp:              time.Now().UTC(),
	}
	v := e.Extract(ix, nil)
	if len(v) != FeatureDim {
		t.Fatalf("expected %d features, got %d", FeatureDim, len(v))
	}
	for n, f := range v {
		if f < 0 || f > 1 {
			t.Errorf("feature %d out of [0,1]: %v", n, f)
		}
	}
}

func TestExtractNoiseStaysBounded(t *testing.T) {
	e := NewExtractor(WithLaplaceNoise(DefaultEpsilon))
	ix := models.Interaction{UserID: "u1", Message: "hi", Timestamp: time.Now().UTC()}
	for trial := 0; trial < 20; trial++ {
		for n, f := range e.Extract(ix, nil) {
			if f < 0 || f > 1 {
				t.Fatalf("noisy feature %d out of [0,1]: %v", n, f)
			}
		}
	}
}

func TestClassifyRequiresTraining(t *testing.T) {
	c := NewClassifier()
	v := make([]float64, FeatureDim)
	if _, err := c.Classify(v); !errors.Is(err, ErrNotTrained) {
		t.Errorf("expected ErrNotTrained, got %v", err)
	}
}

func TestClassifyPicksNearestCentroid(t *testing.T) {
	c := NewClassifier()

	// Hyperfocus cluster near 0.9 on feature 0, overwhelm cluster near 0.9
	// on feature 14.
	for n := 0; n < 10; n++ {
		hyper := make([]float64, FeatureDim)
		hyper[0] = 0.9
		if err := c.AddLabeled(models.PatternHyperfocus, hyper); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		over := make([]float64, FeatureDim)
		over[14] = 0.9
		if err := c.AddLabeled(models.PatternOverwhelm, over); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if err := c.Retrain(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	probe := make([]float64, FeatureDim)
	probe[0] = 0.85
	cls, err := c.Classify(probe)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cls.PatternType != models.PatternHyperfocus {
		t.Errorf("expected hyperfocus, got %s", cls.PatternType)
	}
	if cls.Confidence <= 0 || cls.Confidence > 1 {
		t.Errorf("confidence out of range: %v", cls.Confidence)
	}
}

func TestClassifyRejectsWrongDimension(t *testing.T) {
	c := NewClassifier()
	if _, err := c.Classify(make([]float64, 3)); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	if err := c.AddLabeled(models.PatternHyperfocus, make([]float64, 3)); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestAnomalousFlagsOutlier(t *testing.T) {
	c := NewClassifier()
	// Baseline clustered tightly around 0.5 with slight jitter.
	for n := 0; n < 20; n++ {
		v := make([]float64, FeatureDim)
		for dim := range v {
			v[dim] = 0.5 + float64(n%3)*0.01
		}
		if err := c.AddNormal(v); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	normal := make([]float64, FeatureDim)
	for dim := range normal {
		normal[dim] = 0.505
	}
	anomalous, _, err := c.Anomalous(normal)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if anomalous {
		t.Error("in-distribution vector flagged as anomalous")
	}

	outlier := make([]float64, FeatureDim)
	for dim := range outlier {
		outlier[dim] = 0.5
	}
	outlier[0] = 1.0
	anomalous, maxZ, err := c.Anomalous(outlier)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !anomalous {
		t.Errorf("outlier not flagged, max z = %v", maxZ)
	}
}

func TestAnomalousQuietWithoutBaseline(t *testing.T) {
	c := NewClassifier()
	v := make([]float64, FeatureDim)
	anomalous, _, err := c.Anomalous(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if anomalous {
		t.Error("empty baseline must not flag anomalies")
	}
}

func TestTrainingVectorsBounded(t *testing.T) {
	c := NewClassifier()
	v := make([]float64, FeatureDim)
	for n := 0; n < MaxTrainingVectors+50; n++ {
		if err := c.AddLabeled(models.PatternHyperfocus, v); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := c.TrainingSize(); got != MaxTrainingVectors {
		t.Errorf("training size should cap at %d, got %d", MaxTrainingVectors, got)
	}
}

func TestRetrainWorkerRunsAndStops(t *testing.T) {
	st := store.NewInMemoryStore()
	c := NewClassifier()
	v := make([]float64, FeatureDim)
	v[0] = 0.9
	for n := 0; n < 10; n++ {
		if err := c.AddLabeled(models.PatternHyperfocus, v); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	w := NewRetrainWorker(c, st)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	w.Trigger("test")

	deadline := time.After(2 * time.Second)
	for {
		events, err := st.GetTraceEvents("system", models.TraceEventRetraining, 1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(events) > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("retraining trace event never appeared")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if err := w.Stop(); err != nil {
		t.Errorf("clean stop returned error: %v", err)
	}
}

func TestObserveConfidenceTriggersBelowFloor(t *testing.T) {
	w := NewRetrainWorker(NewClassifier(), nil)
	w.ObserveConfidence(0.4)
	select {
	case reason := <-w.triggers:
		if reason == "" {
			t.Error("expected a trigger reason")
		}
	default:
		t.Error("low confidence should queue a retraining trigger")
	}

	w.ObserveConfidence(0.9)
	select {
	case <-w.triggers:
		t.Error("high confidence should not trigger retraining")
	default:
	}
}
