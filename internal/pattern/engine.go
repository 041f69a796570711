package pattern

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BTreeMap/FocusLoop/internal/models"
	"github.com/BTreeMap/FocusLoop/internal/store"
)

// Engine runs all detectors over each interaction and maintains a bounded
// per-user detection history.
type Engine struct {
	cfg Config
	st  store.Store

	mu      sync.Mutex
	history map[string][]models.PatternDetection
}

// NewEngine creates a pattern engine. An invalid config is replaced with
// defaults and reported.
func NewEngine(st store.Store, cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pattern config: %w", err)
	}
	slog.Debug("Engine.NewEngine: creating pattern engine", "config_version", cfg.Version)
	return &Engine{
		cfg:     cfg,
		st:      st,
		history: make(map[string][]models.PatternDetection),
	}, nil
}

// Config returns the active detector configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Analyze runs every detector over the interaction and its recent history.
// Detectors run independently: one detector failing does not suppress the
// others. The returned error (if any) aggregates detector failures and is
// reported alongside whatever detections succeeded, so callers can tell
// "nothing detected" apart from "detection failed".
func (e *Engine) Analyze(ctx context.Context, ix models.Interaction) ([]models.PatternDetection, error) {
	if err := ix.Validate(); err != nil {
		return nil, err
	}
	slog.Debug("Engine.Analyze: analyzing interaction", "userID", ix.UserID)

	metrics := computeMetrics(ix, e.recentHistory(ix))
	slog.Debug("Engine.Analyze: metrics computed",
		"userID", ix.UserID,
		"session_minutes", metrics.SessionDurationMinutes,
		"switch_frequency", metrics.TaskSwitchFrequency,
		"completion_rate", metrics.CompletionRate)

	detectors := []struct {
		name string
		fn   detectorFunc
	}{
		{"hyperfocus", e.detectHyperfocus},
		{"executive_dysfunction", e.detectExecutiveDysfunction},
		{"time_blindness", e.detectTimeBlindness},
		{"emotional_dysregulation", e.detectEmotionalDysregulation},
		{"overwhelm", e.detectOverwhelm},
	}

	var detections []models.PatternDetection
	var detectorErrs []error
	for _, det := range detectors {
		if ctx.Err() != nil {
			detectorErrs = append(detectorErrs, ctx.Err())
			break
		}
		result, err := det.fn(ix.UserID, metrics, ix)
		if err != nil {
			slog.Error("Engine.Analyze: detector failed", "detector", det.name, "error", err, "userID", ix.UserID)
			detectorErrs = append(detectorErrs, err)
			continue
		}
		if result == nil {
			continue
		}
		slog.Info("Engine.Analyze: pattern detected",
			"userID", ix.UserID,
			"pattern", result.PatternType,
			"severity", result.Severity,
			"confidence", result.Confidence,
			"urgency", result.Urgency)
		e.record(*result)
		detections = append(detections, *result)
	}

	return detections, errors.Join(detectorErrs...)
}

// recentHistory loads the interaction window for metrics. Callers persist
// the in-hand interaction before analysis, so its stored copy is dropped by
// ID to keep it from counting twice in the window.
func (e *Engine) recentHistory(ix models.Interaction) []models.Interaction {
	history, err := e.st.GetRecentInteractions(ix.UserID, models.MetricsWindow)
	if err != nil {
		// Degrade to single-interaction metrics rather than refusing to analyze.
		slog.Warn("Engine.recentHistory: failed to load interaction history, using current only", "error", err, "userID", ix.UserID)
		return nil
	}
	if ix.ID == "" {
		return history
	}
	kept := history[:0]
	for _, h := range history {
		if h.ID != ix.ID {
			kept = append(kept, h)
		}
	}
	return kept
}

// record appends to the bounded in-memory history and writes the detection
// plus a trace event to the store. Store failures are logged, not fatal:
// detection results are still returned to the caller.
func (e *Engine) record(d models.PatternDetection) {
	e.mu.Lock()
	hist := append(e.history[d.UserID], d)
	if len(hist) > models.MaxDetectionHistory {
		hist = hist[len(hist)-models.MaxDetectionHistory:]
	}
	e.history[d.UserID] = hist
	e.mu.Unlock()

	if err := e.st.AddDetection(d); err != nil {
		slog.Error("Engine.record: failed to persist detection", "error", err, "userID", d.UserID, "pattern", d.PatternType)
	}
	data, err := json.Marshal(d)
	if err != nil {
		slog.Error("Engine.record: failed to marshal detection for trace", "error", err, "userID", d.UserID)
		return
	}
	trace := models.TraceEvent{
		UserID:     d.UserID,
		EventType:  models.TraceEventPatternDetection,
		EventData:  string(data),
		Confidence: d.Confidence,
		Source:     "pattern_engine",
	}
	if err := e.st.AddTraceEvent(trace); err != nil {
		slog.Error("Engine.record: failed to write detection trace", "error", err, "userID", d.UserID)
	}
}

// History returns a copy of the user's in-memory detection history,
// newest last.
func (e *Engine) History(userID string) []models.PatternDetection {
	e.mu.Lock()
	defer e.mu.Unlock()
	hist := e.history[userID]
	out := make([]models.PatternDetection, len(hist))
	copy(out, hist)
	return out
}
