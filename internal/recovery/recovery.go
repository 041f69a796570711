// Package recovery restores FocusLoop state after a restart.
//
// Components register Recoverable implementations with the manager; at
// startup RecoverAll walks them in registration order. The built-in
// recoverables sweep expired working-memory items out of the store and
// re-register the classifier retraining schedule.
package recovery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/FocusLoop/internal/classifier"
	"github.com/BTreeMap/FocusLoop/internal/models"
	"github.com/BTreeMap/FocusLoop/internal/profile"
	"github.com/BTreeMap/FocusLoop/internal/scheduler"
	"github.com/BTreeMap/FocusLoop/internal/store"
)

// Recoverable is a component that can restore its state at startup.
type Recoverable interface {
	RecoverState(ctx context.Context) error
}

// Manager orchestrates recovery of all registered components.
type Manager struct {
	recoverables []Recoverable
}

// NewManager creates an empty recovery manager.
func NewManager() *Manager {
	return &Manager{}
}

// Register adds a component to recover at startup, in registration order.
func (m *Manager) Register(r Recoverable) {
	m.recoverables = append(m.recoverables, r)
}

// RecoverAll runs every registered component's recovery. A component
// failing does not stop the rest; the first error is returned after all
// components have run.
func (m *Manager) RecoverAll(ctx context.Context) error {
	slog.Info("Manager.RecoverAll: starting recovery", "components", len(m.recoverables))
	var firstErr error
	for _, r := range m.recoverables {
		if err := r.RecoverState(ctx); err != nil {
			slog.Error("Manager.RecoverAll: component recovery failed", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		return fmt.Errorf("recovery incomplete: %w", firstErr)
	}
	slog.Info("Manager.RecoverAll: recovery complete")
	return nil
}

// MemorySweeper drops expired working-memory items from the store so the
// retrieval path starts clean after a restart.
type MemorySweeper struct {
	st store.Store
}

// NewMemorySweeper creates a sweeper over the given store.
func NewMemorySweeper(st store.Store) *MemorySweeper {
	return &MemorySweeper{st: st}
}

// RecoverState walks every user's memory items and deletes the expired ones.
func (s *MemorySweeper) RecoverState(ctx context.Context) error {
	userIDs, err := s.st.MemoryUserIDs()
	if err != nil {
		return fmt.Errorf("failed to list memory item users: %w", err)
	}

	now := time.Now().UTC()
	var kept, dropped int
	for _, userID := range userIDs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		items, err := s.st.GetMemoryItems(userID)
		if err != nil {
			slog.Error("MemorySweeper.RecoverState: failed to load items", "error", err, "userID", userID)
			continue
		}
		for _, item := range items {
			if !item.Expired(now) {
				kept++
				continue
			}
			if err := s.st.DeleteMemoryItem(item.ID); err != nil {
				slog.Error("MemorySweeper.RecoverState: failed to delete expired item", "error", err, "itemID", item.ID)
				continue
			}
			dropped++
		}
	}
	slog.Info("MemorySweeper.RecoverState: sweep complete", "users", len(userIDs), "kept", kept, "dropped", dropped)
	return nil
}

// RetrainScheduler re-registers the classifier retraining cadence with the
// cron scheduler and queues an immediate pass so a long-dead process does
// not wait another month.
type RetrainScheduler struct {
	sched  *scheduler.Scheduler
	worker *classifier.RetrainWorker
}

// NewRetrainScheduler creates a retraining schedule recoverable.
func NewRetrainScheduler(sched *scheduler.Scheduler, worker *classifier.RetrainWorker) *RetrainScheduler {
	return &RetrainScheduler{sched: sched, worker: worker}
}

// RecoverState registers the cron job and triggers a startup retraining pass.
func (r *RetrainScheduler) RecoverState(ctx context.Context) error {
	if err := r.sched.AddJob(scheduler.RetrainExpr, func() {
		r.worker.Trigger("scheduled cadence")
	}); err != nil {
		return fmt.Errorf("failed to schedule retraining job: %w", err)
	}
	r.worker.Trigger("startup recovery")
	slog.Info("RetrainScheduler.RecoverState: retraining schedule registered", "expr", scheduler.RetrainExpr)
	return nil
}

// EnergyCheckpointer snapshots each user's learned energy schedule as a trace
// event on the daily cron cadence, so schedule drift stays auditable even
// when no profile_update lands on a given day.
type EnergyCheckpointer struct {
	sched    *scheduler.Scheduler
	profiles *profile.Manager
	st       store.Store
}

// NewEnergyCheckpointer creates an energy checkpoint recoverable.
func NewEnergyCheckpointer(sched *scheduler.Scheduler, profiles *profile.Manager, st store.Store) *EnergyCheckpointer {
	return &EnergyCheckpointer{sched: sched, profiles: profiles, st: st}
}

// RecoverState registers the daily checkpoint job.
func (c *EnergyCheckpointer) RecoverState(ctx context.Context) error {
	if err := c.sched.AddJob(scheduler.EnergyCheckpointExpr, func() {
		if err := c.Checkpoint(context.Background()); err != nil {
			slog.Error("EnergyCheckpointer: scheduled checkpoint failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule energy checkpoint job: %w", err)
	}
	slog.Info("EnergyCheckpointer.RecoverState: energy checkpoint schedule registered", "expr", scheduler.EnergyCheckpointExpr)
	return nil
}

// Checkpoint writes one energy_checkpoint trace event per known profile.
// Per-user failures are logged and skipped; the first error is returned
// after every user has been visited.
func (c *EnergyCheckpointer) Checkpoint(ctx context.Context) error {
	userIDs, err := c.st.ProfileUserIDs()
	if err != nil {
		return fmt.Errorf("failed to list profile users: %w", err)
	}

	var firstErr error
	var written int
	for _, userID := range userIDs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		prof, err := c.profiles.GetOrCreate(ctx, userID)
		if err != nil {
			slog.Error("EnergyCheckpointer.Checkpoint: failed to load profile", "error", err, "userID", userID)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		data, err := json.Marshal(prof.Energy)
		if err != nil {
			slog.Error("EnergyCheckpointer.Checkpoint: failed to marshal energy schedule", "error", err, "userID", userID)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		event := models.TraceEvent{
			UserID:     userID,
			EventType:  models.TraceEventEnergyCheckpoint,
			EventData:  string(data),
			Confidence: 1,
			Source:     "energy_checkpointer",
		}
		if err := c.st.AddTraceEvent(event); err != nil {
			slog.Error("EnergyCheckpointer.Checkpoint: failed to write checkpoint", "error", err, "userID", userID)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		written++
	}
	slog.Info("EnergyCheckpointer.Checkpoint: checkpoint complete", "users", len(userIDs), "written", written)
	return firstErr
}
