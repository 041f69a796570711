package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BTreeMap/FocusLoop/internal/models"
	"github.com/BTreeMap/FocusLoop/internal/store"
)

// Retraining defaults.
const (
	// DefaultRetrainInterval is the scheduled retraining cadence.
	DefaultRetrainInterval = 30 * 24 * time.Hour
	// LowConfidenceFloor triggers retraining when a classification comes in
	// below it.
	LowConfidenceFloor = 0.6
)

// RetrainWorker runs retraining in a supervised goroutine. Triggers come
// from the scheduler (cadence) or from low-confidence classifications.
// Failures propagate out through Wait instead of being dropped.
type RetrainWorker struct {
	classifier *Classifier
	st         store.Store
	group      *errgroup.Group
	cancel     context.CancelFunc
	triggers   chan string
}

// NewRetrainWorker creates a worker for the given classifier. The store is
// used to record retraining trace events; nil disables tracing.
func NewRetrainWorker(classifier *Classifier, st store.Store) *RetrainWorker {
	return &RetrainWorker{
		classifier: classifier,
		st:         st,
		triggers:   make(chan string, 8),
	}
}

// Start launches the supervised retraining loop. Call Stop (or cancel the
// parent context) to shut down; Wait returns the first error the loop hit.
func (w *RetrainWorker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.group, ctx = errgroup.WithContext(ctx)
	w.group.Go(func() error {
		return w.run(ctx)
	})
	slog.Info("RetrainWorker.Start: retraining worker started")
}

// Trigger requests a retraining pass. Non-blocking: if a trigger is already
// queued the new one is coalesced into it.
func (w *RetrainWorker) Trigger(reason string) {
	select {
	case w.triggers <- reason:
	default:
	}
}

// ObserveConfidence triggers retraining when a classification's confidence
// falls below the floor.
func (w *RetrainWorker) ObserveConfidence(confidence float64) {
	if confidence < LowConfidenceFloor {
		w.Trigger(fmt.Sprintf("confidence %.2f below floor %.2f", confidence, LowConfidenceFloor))
	}
}

// Stop cancels the loop and waits for it to exit, returning its error.
func (w *RetrainWorker) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}
	return w.Wait()
}

// Wait blocks until the loop exits and returns its error, if any.
func (w *RetrainWorker) Wait() error {
	if w.group == nil {
		return nil
	}
	err := w.group.Wait()
	if err != nil && err != context.Canceled {
		return fmt.Errorf("retrain worker failed: %w", err)
	}
	return nil
}

func (w *RetrainWorker) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			slog.Info("RetrainWorker.run: shutting down")
			return ctx.Err()
		case reason := <-w.triggers:
			if err := w.retrain(reason); err != nil {
				return err
			}
		}
	}
}

func (w *RetrainWorker) retrain(reason string) error {
	start := time.Now()
	if err := w.classifier.Retrain(); err != nil {
		return fmt.Errorf("retraining failed (%s): %w", reason, err)
	}
	elapsed := time.Since(start)
	slog.Info("RetrainWorker.retrain: retraining complete", "reason", reason, "training_size", w.classifier.TrainingSize(), "elapsed", elapsed)

	if w.st == nil {
		return nil
	}
	data, err := json.Marshal(map[string]any{
		"reason":        reason,
		"training_size": w.classifier.TrainingSize(),
		"elapsed_ms":    elapsed.Milliseconds(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal retraining trace: %w", err)
	}
	event := models.TraceEvent{
		UserID:     "system",
		EventType:  models.TraceEventRetraining,
		EventData:  string(data),
		Confidence: 1.0,
		Source:     "retrain_worker",
	}
	if err := w.st.AddTraceEvent(event); err != nil {
		// Trace failure is not worth killing the worker over.
		slog.Error("RetrainWorker.retrain: failed to write retraining trace", "error", err)
	}
	return nil
}
