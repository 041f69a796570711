// Package loop wires the FocusLoop pipeline together: one user message in,
// one adapted response out.
//
// The pipeline stores the interaction, runs pattern analysis, updates the
// profile, asks the classifier for corroboration, generates the
// conversational reply, and lets the adaptation engine rewrite it. Inner
// stages degrade individually; only a total failure of the response path
// returns the recalibration fallback. Crisis decisions are always applied.
package loop

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/FocusLoop/internal/adaptation"
	"github.com/BTreeMap/FocusLoop/internal/classifier"
	"github.com/BTreeMap/FocusLoop/internal/genai"
	"github.com/BTreeMap/FocusLoop/internal/models"
	"github.com/BTreeMap/FocusLoop/internal/pattern"
	"github.com/BTreeMap/FocusLoop/internal/profile"
	"github.com/BTreeMap/FocusLoop/internal/store"
	"github.com/BTreeMap/FocusLoop/internal/util"
)

// FallbackResponse is returned when the whole response path fails. It is
// deliberately calm and content-free.
const FallbackResponse = "I need a moment to recalibrate. Let's take this one step at a time."

// systemPrompt frames the GenAI reply before adaptation post-processing.
const systemPrompt = `You are a supportive assistant for a user with ADHD.
Be concrete and brief. Offer one next step, not a list of options.
Never moralize about productivity.`

// Result is everything HandleMessage produced for one message.
type Result struct {
	Response         string                      `json:"response"`
	Detections       []models.PatternDetection   `json:"detections,omitempty"`
	Decisions        []models.AdaptationDecision `json:"adaptations,omitempty"`
	InterfaceChanges map[string]any              `json:"interface_changes,omitempty"`
	Profile          *models.UserProfile         `json:"profile,omitempty"`
	Fallback         bool                        `json:"fallback,omitempty"`
}

// CognitiveLoop orchestrates the per-message pipeline.
type CognitiveLoop struct {
	st        store.Store
	patterns  *pattern.Engine
	profiles  *profile.Manager
	adapter   *adaptation.Engine
	loadAdapt *adaptation.CognitiveLoadAdapter
	extractor *classifier.Extractor
	clf       *classifier.Classifier
	retrain   *classifier.RetrainWorker
	generator genai.Generator
}

// NewCognitiveLoop creates the loop. generator may be nil; the loop then
// answers with a minimal acknowledgment instead of a GenAI reply.
func NewCognitiveLoop(st store.Store, patterns *pattern.Engine, profiles *profile.Manager, adapter *adaptation.Engine, extractor *classifier.Extractor, clf *classifier.Classifier, retrain *classifier.RetrainWorker, generator genai.Generator) *CognitiveLoop {
	return &CognitiveLoop{
		st:        st,
		patterns:  patterns,
		profiles:  profiles,
		adapter:   adapter,
		loadAdapt: adaptation.NewCognitiveLoadAdapter(),
		extractor: extractor,
		clf:       clf,
		retrain:   retrain,
		generator: generator,
	}
}

// HandleMessage runs the full pipeline for one message. It never returns an
// empty response: on total failure the caller gets the fallback text plus
// the error for logging.
func (l *CognitiveLoop) HandleMessage(ctx context.Context, userID, message string, ix models.Interaction, frame models.Frame) (*Result, error) {
	if userID == "" {
		return fallbackResult(), models.ErrEmptyUserID
	}
	if strings.TrimSpace(message) == "" {
		return fallbackResult(), models.ErrEmptyMessage
	}

	ix.UserID = userID
	ix.Message = message
	if ix.ID == "" {
		ix.ID = util.GenerateInteractionID()
	}
	if ix.Timestamp.IsZero() {
		ix.Timestamp = time.Now().UTC()
	}
	if frame.CognitiveLoad == 0 {
		frame.CognitiveLoad = ix.CognitiveLoad
	}

	if err := l.st.AddInteraction(ix); err != nil {
		// Analysis still works off the in-hand interaction; history is
		// just one entry shorter.
		slog.Error("CognitiveLoop.HandleMessage: failed to store interaction", "error", err, "userID", userID)
	}

	detections, err := l.patterns.Analyze(ctx, ix)
	if err != nil {
		slog.Warn("CognitiveLoop.HandleMessage: pattern analysis reported errors", "error", err, "userID", userID, "detections", len(detections))
	}

	prof := l.updateProfile(ctx, userID, ix, detections)
	l.corroborate(ctx, userID, ix, detections)

	state := models.UserState{
		StressLevel:   ix.StressLevel,
		EnergyLevel:   ix.EnergyLevel,
		CognitiveLoad: frame.CognitiveLoad,
	}
	decisions := l.adapter.Process(ctx, prof, detections, frame, state)
	if len(decisions) == 0 && prof != nil {
		decisions = l.loadAdapt.RecommendLoadAdaptations(prof, frame)
	}

	reply, genErr := l.generate(ctx, message, prof, detections)
	if genErr != nil {
		slog.Error("CognitiveLoop.HandleMessage: reply generation failed", "error", genErr, "userID", userID)
		if crisisOnly := filterCrisis(decisions); len(crisisOnly) > 0 {
			// Crisis adaptations apply even to the fallback text.
			adapted, changes := l.adapter.Apply(ctx, FallbackResponse, crisisOnly, prof)
			return &Result{Response: adapted, Detections: detections, Decisions: crisisOnly, InterfaceChanges: changes, Profile: prof, Fallback: true}, genErr
		}
		return fallbackResult(), genErr
	}

	adapted, changes := l.adapter.Apply(ctx, reply, decisions, prof)
	slog.Info("CognitiveLoop.HandleMessage: message handled",
		"userID", userID,
		"detections", len(detections),
		"decisions", len(decisions),
		"response_chars", len(adapted))
	return &Result{
		Response:         adapted,
		Detections:       detections,
		Decisions:        decisions,
		InterfaceChanges: changes,
		Profile:          prof,
	}, nil
}

// updateProfile applies interaction drift and detection adaptations,
// degrading to whatever profile state is available.
func (l *CognitiveLoop) updateProfile(ctx context.Context, userID string, ix models.Interaction, detections []models.PatternDetection) *models.UserProfile {
	prof, err := l.profiles.UpdateFromInteraction(ctx, userID, ix)
	if err != nil {
		slog.Error("CognitiveLoop.updateProfile: interaction update failed", "error", err, "userID", userID)
		prof, err = l.profiles.GetOrCreate(ctx, userID)
		if err != nil {
			slog.Error("CognitiveLoop.updateProfile: profile load failed, using defaults", "error", err, "userID", userID)
			return models.NewUserProfile(userID)
		}
	}
	if len(detections) > 0 {
		if adapted, err := l.profiles.AdaptToDetections(ctx, userID, detections); err == nil {
			prof = adapted
		} else {
			slog.Error("CognitiveLoop.updateProfile: detection adaptation failed", "error", err, "userID", userID)
		}
	}
	return prof
}

// corroborate feeds the classifier and records its (non-authoritative) call.
// Heuristic detections are also fed back as labeled training data.
func (l *CognitiveLoop) corroborate(ctx context.Context, userID string, ix models.Interaction, detections []models.PatternDetection) {
	if l.extractor == nil || l.clf == nil {
		return
	}
	history, err := l.st.GetRecentInteractions(userID, models.MetricsWindow-1)
	if err != nil {
		slog.Warn("CognitiveLoop.corroborate: history load failed", "error", err, "userID", userID)
		history = nil
	}
	vector := l.extractor.Extract(ix, history)

	for _, d := range detections {
		if err := l.clf.AddLabeled(d.PatternType, vector); err != nil {
			slog.Warn("CognitiveLoop.corroborate: failed to add training vector", "error", err)
		}
	}
	if len(detections) == 0 {
		if err := l.clf.AddNormal(vector); err != nil {
			slog.Warn("CognitiveLoop.corroborate: failed to add normal vector", "error", err)
		}
	}

	cls, err := l.clf.Classify(vector)
	if err != nil {
		if err != classifier.ErrNotTrained {
			slog.Warn("CognitiveLoop.corroborate: classification failed", "error", err, "userID", userID)
		}
		return
	}
	if l.retrain != nil {
		l.retrain.ObserveConfidence(cls.Confidence)
	}

	anomalous, maxZ, err := l.clf.Anomalous(vector)
	if err == nil && anomalous {
		slog.Warn("CognitiveLoop.corroborate: anomalous behavioral vector", "userID", userID, "max_z", maxZ)
	}

	event := models.TraceEvent{
		UserID:     userID,
		EventType:  models.TraceEventPatternDetection,
		EventData:  fmt.Sprintf(`{"classifier_pattern":%q,"distance":%.4f,"anomalous":%t}`, cls.PatternType, cls.Distance, anomalous),
		Confidence: cls.Confidence,
		Source:     "classifier",
	}
	if err := l.st.AddTraceEvent(event); err != nil {
		slog.Error("CognitiveLoop.corroborate: failed to write classifier trace", "error", err, "userID", userID)
	}
}

// generate produces the conversational reply, folding profile style and
// detections into the prompt.
func (l *CognitiveLoop) generate(ctx context.Context, message string, prof *models.UserProfile, detections []models.PatternDetection) (string, error) {
	if l.generator == nil {
		return "Got it. What's the one thing you want to tackle first?", nil
	}

	var sb strings.Builder
	sb.WriteString(systemPrompt)
	if prof != nil {
		fmt.Fprintf(&sb, "\nThe user responds best to a %s style. Keep replies under %d characters.", prof.Style, prof.Thresholds.ResponseLengthChars)
	}
	for _, d := range detections {
		fmt.Fprintf(&sb, "\nCurrent signal: %s (%s severity). Respond accordingly.", d.PatternType, d.Severity)
	}

	reply, err := l.generator.GenerateWithContext(ctx, sb.String(), message)
	if err != nil {
		return "", fmt.Errorf("failed to generate reply: %w", err)
	}
	if strings.TrimSpace(reply) == "" {
		return "", fmt.Errorf("empty reply from generator")
	}
	return reply, nil
}

func filterCrisis(decisions []models.AdaptationDecision) []models.AdaptationDecision {
	var out []models.AdaptationDecision
	for _, d := range decisions {
		if d.Type == models.AdaptCrisisProtocol {
			out = append(out, d)
		}
	}
	return out
}

func fallbackResult() *Result {
	return &Result{Response: FallbackResponse, Fallback: true}
}
