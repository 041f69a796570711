// Package profile maintains the slowly-adapting per-user profile for
// FocusLoop.
//
// Profiles drift toward recent observations through EMA blending, adapt to
// pattern detections through bounded threshold nudges, and persist as full
// JSON blobs in the trace store under the profile_update event type. Reads
// reconstruct the profile from the most recent such blob. Every bounded
// field is clamped after each mutation, so repeated identical updates
// converge toward the observation without overshooting.
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/FocusLoop/internal/models"
	"github.com/BTreeMap/FocusLoop/internal/store"
)

// DefaultLearningRate is the EMA blend factor for interaction-driven drift.
const DefaultLearningRate = 0.1

// Adaptation constants for pattern-driven mutations.
const (
	// overwhelmThresholdFactor shrinks the overwhelm threshold on each
	// overwhelm detection.
	overwhelmThresholdFactor = 0.9
	// overwhelmThresholdFloor keeps the threshold inside (0,1].
	overwhelmThresholdFloor = 0.05
	// hyperfocusTendencyStep raises tendency per hyperfocus detection.
	hyperfocusTendencyStep = 0.1
	// minContextItems bounds interface simplification.
	minContextItems = 2
	// minResponseLengthChars bounds response shortening.
	minResponseLengthChars = 300
)

// Manager owns profile lifecycle: lazy creation, EMA updates, pattern
// adaptation, and persistence. Updates for the same user are serialized
// through a per-user mutex so concurrent requests cannot silently clobber
// each other's writes.
type Manager struct {
	st           store.Store
	learningRate float64

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	cache map[string]*models.UserProfile
}

// Option configures the Manager.
type Option func(*Manager)

// WithLearningRate overrides the EMA blend factor.
func WithLearningRate(rate float64) Option {
	return func(m *Manager) {
		if rate > 0 && rate <= 1 {
			m.learningRate = rate
		}
	}
}

// NewManager creates a profile manager backed by the given store.
func NewManager(st store.Store, opts ...Option) *Manager {
	m := &Manager{
		st:           st,
		learningRate: DefaultLearningRate,
		locks:        make(map[string]*sync.Mutex),
		cache:        make(map[string]*models.UserProfile),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// userLock returns the mutex serializing updates for one user.
func (m *Manager) userLock(userID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[userID] = lock
	}
	return lock
}

// GetOrCreate returns the user's profile, loading it from the trace store or
// creating one with heuristic defaults derived from interaction history.
// The returned profile is a copy; mutations go through the update methods.
func (m *Manager) GetOrCreate(ctx context.Context, userID string) (*models.UserProfile, error) {
	if userID == "" {
		return nil, models.ErrEmptyUserID
	}
	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	p, err := m.loadLocked(ctx, userID)
	if err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

// loadLocked resolves the profile from cache, the trace store, or defaults.
// Caller must hold the user lock.
func (m *Manager) loadLocked(ctx context.Context, userID string) (*models.UserProfile, error) {
	m.mu.Lock()
	cached, ok := m.cache[userID]
	m.mu.Unlock()
	if ok {
		return cached, nil
	}

	event, err := m.st.LatestTraceEvent(userID, models.TraceEventProfileUpdate)
	if err != nil {
		// Load failure falls back to a default profile so the assistant
		// keeps responding; the failure is visible in the logs.
		slog.Error("Manager.loadLocked: failed to load profile trace, using defaults", "error", err, "userID", userID)
		event = nil
	}

	var p *models.UserProfile
	if event != nil {
		p = &models.UserProfile{}
		if err := json.Unmarshal([]byte(event.EventData), p); err != nil {
			slog.Error("Manager.loadLocked: profile blob corrupt, rebuilding defaults", "error", err, "userID", userID)
			p = nil
		}
	}
	if p == nil {
		p = m.bootstrapProfile(userID)
		if err := m.persistLocked(p); err != nil {
			slog.Error("Manager.loadLocked: failed to persist bootstrap profile", "error", err, "userID", userID)
		}
	}

	m.mu.Lock()
	m.cache[userID] = p
	m.mu.Unlock()
	slog.Debug("Manager.loadLocked: profile resolved", "userID", userID, "version", p.Version, "subtype", p.Subtype)
	return p, nil
}

// bootstrapProfile builds defaults, seeding the energy schedule and
// hyperfocus tendency from whatever interaction history already exists.
func (m *Manager) bootstrapProfile(userID string) *models.UserProfile {
	p := models.NewUserProfile(userID)

	history, err := m.st.GetRecentInteractions(userID, models.MetricsWindow)
	if err != nil || len(history) == 0 {
		return p
	}

	var longSessions int
	for _, ix := range history {
		if ix.EnergyLevel > 0 {
			hour := ix.Timestamp.Hour()
			prev, ok := p.Energy[hour]
			if !ok {
				p.Energy[hour] = models.ClampUnit(ix.EnergyLevel)
			} else {
				p.Energy[hour] = models.ClampUnit(m.ema(prev, ix.EnergyLevel))
			}
		}
		if ix.SessionDurationMinutes > 120 {
			longSessions++
		}
	}
	if len(history) > 0 {
		ratio := float64(longSessions) / float64(len(history))
		p.HyperfocusTendency = models.ClampUnit(0.3 + ratio*0.4)
	}
	slog.Debug("Manager.bootstrapProfile: derived defaults from history", "userID", userID, "interactions", len(history), "hyperfocus_tendency", p.HyperfocusTendency)
	return p
}

// UpdateFromInteraction applies EMA drift from one interaction: optimal
// load, attention span, energy schedule, and response-length preference all
// move a learningRate fraction toward the observation.
func (m *Manager) UpdateFromInteraction(ctx context.Context, userID string, ix models.Interaction) (*models.UserProfile, error) {
	if userID == "" {
		return nil, models.ErrEmptyUserID
	}
	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	p, err := m.loadLocked(ctx, userID)
	if err != nil {
		return nil, err
	}

	if ix.CognitiveLoad > 0 && ix.StressLevel < 0.7 {
		// Loads the user handles without stress pull the optimal load
		// toward them.
		p.Thresholds.OptimalLoad = models.ClampUnit(m.ema(p.Thresholds.OptimalLoad, ix.CognitiveLoad))
	}
	if ix.SessionDurationMinutes > 0 {
		observed := ix.SessionDurationMinutes
		if observed > 120 {
			observed = 120
		}
		p.Thresholds.AttentionSpanMinutes = m.ema(p.Thresholds.AttentionSpanMinutes, observed)
	}
	if ix.EnergyLevel > 0 {
		hour := ix.Timestamp.Hour()
		if ix.Timestamp.IsZero() {
			hour = time.Now().UTC().Hour()
		}
		prev, ok := p.Energy[hour]
		if !ok {
			p.Energy[hour] = models.ClampUnit(ix.EnergyLevel)
		} else {
			p.Energy[hour] = models.ClampUnit(m.ema(prev, ix.EnergyLevel))
		}
	}
	if n := len(ix.Message); n > 0 {
		// Long messages signal tolerance for longer replies; short ones the
		// opposite. Preference drifts, never jumps.
		target := models.ClampUnit(float64(n)/500)*900 + 300
		p.Thresholds.ResponseLengthChars = int(m.ema(float64(p.Thresholds.ResponseLengthChars), target))
		if p.Thresholds.ResponseLengthChars < minResponseLengthChars {
			p.Thresholds.ResponseLengthChars = minResponseLengthChars
		}
	}

	if err := m.persistLocked(p); err != nil {
		slog.Error("Manager.UpdateFromInteraction: persist failed", "error", err, "userID", userID)
	}
	return p.Clone(), nil
}

// AdaptToDetections mutates thresholds and tendencies per detected pattern
// type. All mutations are bounded: overwhelm_threshold stays in (0,1],
// hyperfocus_tendency caps at 1.0, context items floor at minContextItems.
func (m *Manager) AdaptToDetections(ctx context.Context, userID string, detections []models.PatternDetection) (*models.UserProfile, error) {
	if userID == "" {
		return nil, models.ErrEmptyUserID
	}
	if len(detections) == 0 {
		return m.GetOrCreate(ctx, userID)
	}
	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	p, err := m.loadLocked(ctx, userID)
	if err != nil {
		return nil, err
	}

	for _, d := range detections {
		switch d.PatternType {
		case models.PatternOverwhelm:
			p.Thresholds.OverwhelmThreshold *= overwhelmThresholdFactor
			if p.Thresholds.OverwhelmThreshold < overwhelmThresholdFloor {
				p.Thresholds.OverwhelmThreshold = overwhelmThresholdFloor
			}
			if p.Thresholds.MaxContextItems > minContextItems {
				p.Thresholds.MaxContextItems--
			}
		case models.PatternHyperfocus:
			p.HyperfocusTendency = models.ClampUnit(p.HyperfocusTendency + hyperfocusTendencyStep)
		case models.PatternEmotionalDysregulation:
			p.Style = models.StyleGentle
		case models.PatternExecutiveDysfunction:
			p.Style = models.StyleStructured
			p.Thresholds.ResponseLengthChars = int(float64(p.Thresholds.ResponseLengthChars) * 0.9)
			if p.Thresholds.ResponseLengthChars < minResponseLengthChars {
				p.Thresholds.ResponseLengthChars = minResponseLengthChars
			}
		case models.PatternTimeBlindness:
			p.Preferences["time_anchors"] = "enabled"
		}
	}

	m.updateSubtype(p, detections)

	if err := m.persistLocked(p); err != nil {
		slog.Error("Manager.AdaptToDetections: persist failed", "error", err, "userID", userID)
	}
	slog.Info("Manager.AdaptToDetections: profile adapted",
		"userID", userID,
		"detections", len(detections),
		"overwhelm_threshold", p.Thresholds.OverwhelmThreshold,
		"hyperfocus_tendency", p.HyperfocusTendency)
	return p.Clone(), nil
}

// updateSubtype drifts the subtype classification from the pattern mix:
// hyperfocus and time blindness lean inattentive, task switching and
// overwhelm lean hyperactive, both lean combined.
func (m *Manager) updateSubtype(p *models.UserProfile, detections []models.PatternDetection) {
	var inattentive, hyperactive int
	for _, d := range detections {
		switch d.PatternType {
		case models.PatternHyperfocus, models.PatternTimeBlindness, models.PatternExecutiveDysfunction:
			inattentive++
		case models.PatternTaskSwitching, models.PatternOverwhelm, models.PatternEmotionalDysregulation:
			hyperactive++
		}
	}
	var observed models.ADHDSubtype
	switch {
	case inattentive > 0 && hyperactive > 0:
		observed = models.SubtypeCombined
	case inattentive > 0:
		observed = models.SubtypeInattentive
	case hyperactive > 0:
		observed = models.SubtypeHyperactive
	default:
		return
	}

	if p.Subtype == observed {
		p.SubtypeConfidence = models.ClampUnit(p.SubtypeConfidence + m.learningRate)
	} else {
		p.SubtypeConfidence -= m.learningRate
		if p.SubtypeConfidence <= 0 {
			p.Subtype = observed
			p.SubtypeConfidence = m.learningRate
		}
	}
}

// Put replaces the stored profile wholesale, for explicit edits through the
// API. Bounded fields are clamped before persisting.
func (m *Manager) Put(ctx context.Context, p *models.UserProfile) (*models.UserProfile, error) {
	if p == nil {
		return nil, models.ErrEmptyUserID
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	lock := m.userLock(p.UserID)
	lock.Lock()
	defer lock.Unlock()

	cp := p.Clone()
	cp.SubtypeConfidence = models.ClampUnit(cp.SubtypeConfidence)
	cp.HyperfocusTendency = models.ClampUnit(cp.HyperfocusTendency)
	cp.Thresholds.OverwhelmThreshold = models.ClampUnit(cp.Thresholds.OverwhelmThreshold)
	if cp.Thresholds.OverwhelmThreshold < overwhelmThresholdFloor {
		cp.Thresholds.OverwhelmThreshold = overwhelmThresholdFloor
	}
	cp.Thresholds.OptimalLoad = models.ClampUnit(cp.Thresholds.OptimalLoad)
	for h, v := range cp.Energy {
		cp.Energy[h] = models.ClampUnit(v)
	}

	if err := m.persistLocked(cp); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.cache[cp.UserID] = cp
	m.mu.Unlock()
	slog.Info("Manager.Put: profile replaced", "userID", cp.UserID, "version", cp.Version)
	return cp.Clone(), nil
}

// persistLocked serializes the whole profile into a profile_update trace
// event. Caller must hold the user lock. Last writer wins across processes;
// within this process the per-user lock prevents lost updates.
func (m *Manager) persistLocked(p *models.UserProfile) error {
	p.Version++
	p.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal profile for %s: %w", p.UserID, err)
	}
	event := models.TraceEvent{
		UserID:     p.UserID,
		EventType:  models.TraceEventProfileUpdate,
		EventData:  string(data),
		Confidence: 1.0,
		Source:     "profile_manager",
	}
	if err := m.st.AddTraceEvent(event); err != nil {
		return fmt.Errorf("failed to persist profile for %s: %w", p.UserID, err)
	}
	slog.Debug("Manager.persistLocked: profile persisted", "userID", p.UserID, "version", p.Version)
	return nil
}

// ema blends prev toward observed by the learning rate.
func (m *Manager) ema(prev, observed float64) float64 {
	return (1-m.learningRate)*prev + m.learningRate*observed
}
