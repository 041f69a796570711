package models

import (
	"testing"
	"time"
)

func TestNewPatternDetectionClampsConfidenceAndUrgency(t *testing.T) {
	d := NewPatternDetection("u1", PatternHyperfocus, SeverityModerate, 1.7, 15)
	if d.Confidence != 1.0 {
		t.Errorf("confidence not clamped: got %v", d.Confidence)
	}
	if d.Urgency != MaxUrgency {
		t.Errorf("urgency not clamped: got %v", d.Urgency)
	}

	d = NewPatternDetection("u1", PatternOverwhelm, SeverityLow, -0.2, 0)
	if d.Confidence != 0 {
		t.Errorf("negative confidence not clamped: got %v", d.Confidence)
	}
	if d.Urgency != MinUrgency {
		t.Errorf("urgency floor not applied: got %v", d.Urgency)
	}
}

func TestPatternDetectionValidate(t *testing.T) {
	d := NewPatternDetection("u1", PatternHyperfocus, SeverityModerate, 0.5, 5)
	if err := d.Validate(); err != nil {
		t.Errorf("valid detection rejected: %v", err)
	}

	d.UserID = ""
	if err := d.Validate(); err != ErrEmptyUserID {
		t.Errorf("expected ErrEmptyUserID, got %v", err)
	}

	d.UserID = "u1"
	d.PatternType = "made_up"
	if err := d.Validate(); err != ErrInvalidPattern {
		t.Errorf("expected ErrInvalidPattern, got %v", err)
	}

	d.PatternType = PatternHyperfocus
	d.Severity = "extreme"
	if err := d.Validate(); err != ErrInvalidSeverity {
		t.Errorf("expected ErrInvalidSeverity, got %v", err)
	}
}

func TestSeverityRankOrdering(t *testing.T) {
	order := []Severity{SeverityLow, SeverityModerate, SeverityHigh, SeverityCritical}
	for n := 1; n < len(order); n++ {
		if order[n].Rank() <= order[n-1].Rank() {
			t.Errorf("severity %s should rank above %s", order[n], order[n-1])
		}
	}
	if Severity("bogus").Rank() != 0 {
		t.Error("unknown severity should rank 0")
	}
}

func TestClampUnit(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{-1, 0}, {0, 0}, {0.5, 0.5}, {1, 1}, {3.2, 1},
	}
	for _, c := range cases {
		if got := ClampUnit(c.in); got != c.want {
			t.Errorf("ClampUnit(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestBehavioralMetricsClamp(t *testing.T) {
	m := BehavioralMetrics{CompletionRate: 1.5, EnergyLevel: -0.5, EmotionalVolatility: 2, InterruptionFrequency: 1.1, TimeEstimationAccuracy: -1}
	m.Clamp()
	if m.CompletionRate != 1 || m.EnergyLevel != 0 || m.EmotionalVolatility != 1 || m.InterruptionFrequency != 1 || m.TimeEstimationAccuracy != 0 {
		t.Errorf("metrics not clamped: %+v", m)
	}
}

func TestUserProfileClone(t *testing.T) {
	p := NewUserProfile("u1")
	p.Energy[9] = 0.8
	p.Preferences["time_anchors"] = "enabled"
	p.NudgeEffectiveness["gentle"] = 0.6

	cp := p.Clone()
	cp.Energy[9] = 0.1
	cp.Preferences["time_anchors"] = "disabled"
	cp.NudgeEffectiveness["gentle"] = 0.9

	if p.Energy[9] != 0.8 {
		t.Error("clone shares energy schedule with original")
	}
	if p.Preferences["time_anchors"] != "enabled" {
		t.Error("clone shares preferences with original")
	}
	if p.NudgeEffectiveness["gentle"] != 0.6 {
		t.Error("clone shares nudge effectiveness with original")
	}
}

func TestMemoryItemExpired(t *testing.T) {
	now := time.Now().UTC()
	item := MemoryItem{ExpiresAt: now.Add(-time.Minute)}
	if !item.Expired(now) {
		t.Error("past-expiry item should be expired")
	}
	item.ExpiresAt = now.Add(time.Minute)
	if item.Expired(now) {
		t.Error("future-expiry item should not be expired")
	}
	item.ExpiresAt = time.Time{}
	if item.Expired(now) {
		t.Error("zero expiry should mean no expiry")
	}
}

func TestInteractionValidate(t *testing.T) {
	ix := Interaction{}
	if err := ix.Validate(); err != ErrEmptyUserID {
		t.Errorf("expected ErrEmptyUserID, got %v", err)
	}
	ix.UserID = "u1"
	if err := ix.Validate(); err != nil {
		t.Errorf("valid interaction rejected: %v", err)
	}
}

func TestTraceEventValidate(t *testing.T) {
	e := TraceEvent{UserID: "u1"}
	if err := e.Validate(); err != ErrEmptyEventType {
		t.Errorf("expected ErrEmptyEventType, got %v", err)
	}
	e.EventType = TraceEventProfileUpdate
	if err := e.Validate(); err != nil {
		t.Errorf("valid event rejected: %v", err)
	}
}
