package recovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BTreeMap/FocusLoop/internal/classifier"
	"github.com/BTreeMap/FocusLoop/internal/models"
	"github.com/BTreeMap/FocusLoop/internal/profile"
	"github.com/BTreeMap/FocusLoop/internal/scheduler"
	"github.com/BTreeMap/FocusLoop/internal/store"
)

type stubRecoverable struct {
	err    error
	called bool
}

func (s *stubRecoverable) RecoverState(ctx context.Context) error {
	s.called = true
	return s.err
}

func TestRecoverAllRunsEveryComponent(t *testing.T) {
	m := NewManager()
	first := &stubRecoverable{err: errors.New("boom")}
	second := &stubRecoverable{}
	m.Register(first)
	m.Register(second)

	err := m.RecoverAll(context.Background())
	if err == nil {
		t.Error("expected first component's error surfaced")
	}
	if !second.called {
		t.Error("a failing component must not stop the rest")
	}
}

func TestRecoverAllEmptyIsClean(t *testing.T) {
	if err := NewManager().RecoverAll(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestMemorySweeperDropsExpiredOnly(t *testing.T) {
	st := store.NewInMemoryStore()
	now := time.Now().UTC()
	expired := models.MemoryItem{ID: "wm_old", UserID: "u1", Content: "stale", CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)}
	live := models.MemoryItem{ID: "wm_live", UserID: "u1", Content: "fresh", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	otherUser := models.MemoryItem{ID: "wm_u2", UserID: "u2", Content: "stale too", CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)}
	for _, item := range []models.MemoryItem{expired, live, otherUser} {
		if err := st.SaveMemoryItem(item); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if err := NewMemorySweeper(st).RecoverState(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	items, err := st.GetMemoryItems("u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 || items[0].ID != "wm_live" {
		t.Errorf("expected only the live item for u1, got %+v", items)
	}
	others, err := st.GetMemoryItems("u2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(others) != 0 {
		t.Errorf("expired items of other users must be swept too, got %+v", others)
	}
}

func TestRetrainSchedulerQueuesStartupPass(t *testing.T) {
	sched := scheduler.NewScheduler()
	defer sched.Stop()

	st := store.NewInMemoryStore()
	worker := classifier.NewRetrainWorker(classifier.NewClassifier(), st)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)
	defer worker.Stop()

	if err := NewRetrainScheduler(sched, worker).RecoverState(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The startup trigger must produce a retraining trace event.
	deadline := time.After(2 * time.Second)
	for {
		events, err := st.GetTraceEvents("system", models.TraceEventRetraining, 1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(events) > 0 {
			return
		}
		select {
		case <-deadline:
			t.Fatal("startup retraining trace event never appeared")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestEnergyCheckpointerSnapshotsSchedules(t *testing.T) {
	st := store.NewInMemoryStore()
	profiles := profile.NewManager(st)
	if _, err := profiles.GetOrCreate(context.Background(), "u1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	c := NewEnergyCheckpointer(sched, profiles, st)
	if err := c.RecoverState(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := c.Checkpoint(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	events, err := st.GetTraceEvents("u1", models.TraceEventEnergyCheckpoint, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected one checkpoint event, got %d", len(events))
	}
	if events[0].Source != "energy_checkpointer" {
		t.Errorf("unexpected source: %q", events[0].Source)
	}
}

func TestEnergyCheckpointerNoProfilesIsClean(t *testing.T) {
	st := store.NewInMemoryStore()
	c := NewEnergyCheckpointer(scheduler.NewScheduler(), profile.NewManager(st), st)
	if err := c.Checkpoint(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
