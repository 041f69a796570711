// Package api provides HTTP handlers and the main API server logic for
// FocusLoop.
//
// It exposes RESTful endpoints for chat, pattern queries, profile access,
// the executive-function tools, trace inspection, and health. The API wires
// together the store, pattern engine, profile manager, adaptation engine,
// classifier, scheduler, and recovery modules.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/FocusLoop/internal/adaptation"
	"github.com/BTreeMap/FocusLoop/internal/classifier"
	"github.com/BTreeMap/FocusLoop/internal/executive"
	"github.com/BTreeMap/FocusLoop/internal/genai"
	"github.com/BTreeMap/FocusLoop/internal/loop"
	"github.com/BTreeMap/FocusLoop/internal/pattern"
	"github.com/BTreeMap/FocusLoop/internal/profile"
	"github.com/BTreeMap/FocusLoop/internal/recovery"
	"github.com/BTreeMap/FocusLoop/internal/scheduler"
	"github.com/BTreeMap/FocusLoop/internal/store"
	"github.com/BTreeMap/FocusLoop/internal/util"
)

// Server configuration constants
const (
	// DefaultAddr is the default listen address.
	DefaultAddr = ":8080"
	// DefaultRequestTimeout bounds handler work.
	DefaultRequestTimeout = 30 * time.Second
	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 10 * time.Second
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// Server holds the wired FocusLoop components and the HTTP server.
type Server struct {
	addr    string
	httpSrv *http.Server

	st        store.Store
	loop      *loop.CognitiveLoop
	patterns  *pattern.Engine
	profiles  *profile.Manager
	breakdown *executive.TaskBreakdownEngine
	switcher  *executive.ContextSwitchAssistant
	memory    *executive.WorkingMemory
	intervene *executive.ProcrastinationIntervenor
	clf       *classifier.Classifier
	retrain   *classifier.RetrainWorker
	sched     *scheduler.Scheduler
	started   time.Time
}

// NewServer wires the full component graph over the given store and
// (possibly nil) GenAI generator.
func NewServer(st store.Store, generator genai.Generator, opts ...Option) (*Server, error) {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}

	patterns, err := pattern.NewEngine(st, pattern.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create pattern engine: %w", err)
	}
	profiles := profile.NewManager(st,
		profile.WithLearningRate(util.ParseFloatEnv("FOCUSLOOP_LEARNING_RATE", profile.DefaultLearningRate)))
	adapter := adaptation.NewEngine(st)

	var extractorOpts []classifier.ExtractorOption
	if util.ParseBoolEnv("FOCUSLOOP_FEATURE_NOISE", true) {
		epsilon := util.ParseFloatEnv("FOCUSLOOP_NOISE_EPSILON", classifier.DefaultEpsilon)
		extractorOpts = append(extractorOpts, classifier.WithLaplaceNoise(epsilon))
	}
	extractor := classifier.NewExtractor(extractorOpts...)
	clf := classifier.NewClassifier()
	retrain := classifier.NewRetrainWorker(clf, st)

	s := &Server{
		addr:      cfg.Addr,
		st:        st,
		loop:      loop.NewCognitiveLoop(st, patterns, profiles, adapter, extractor, clf, retrain, generator),
		patterns:  patterns,
		profiles:  profiles,
		breakdown: executive.NewTaskBreakdownEngine(),
		switcher:  executive.NewContextSwitchAssistant(),
		memory:    executive.NewWorkingMemory(st),
		intervene: executive.NewProcrastinationIntervenor(),
		clf:       clf,
		retrain:   retrain,
		sched:     scheduler.NewScheduler(),
		started:   time.Now().UTC(),
	}
	return s, nil
}

// routes registers all endpoints on a fresh mux.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat", s.chatHandler)
	mux.HandleFunc("/patterns/", s.patternsHandler)
	mux.HandleFunc("/profile/", s.profileHandler)
	mux.HandleFunc("/tasks/breakdown", s.breakdownHandler)
	mux.HandleFunc("/switch/plan", s.switchPlanHandler)
	mux.HandleFunc("/memory/", s.memoryHandler)
	mux.HandleFunc("/procrastination/assess", s.procrastinationHandler)
	mux.HandleFunc("/traces/", s.tracesHandler)
	mux.HandleFunc("/stats", s.statsHandler)
	mux.HandleFunc("/health", s.healthHandler)
	return mux
}

// Start runs recovery, launches the retraining worker, and serves HTTP
// until the context is canceled.
func (s *Server) Start(ctx context.Context) error {
	s.retrain.Start(ctx)

	mgr := recovery.NewManager()
	mgr.Register(recovery.NewMemorySweeper(s.st))
	mgr.Register(recovery.NewRetrainScheduler(s.sched, s.retrain))
	mgr.Register(recovery.NewEnergyCheckpointer(s.sched, s.profiles, s.st))
	if err := mgr.RecoverAll(ctx); err != nil {
		// Recovery problems are survivable; the server still serves.
		slog.Error("Server.Start: recovery incomplete", "error", err)
	}

	timeout := time.Duration(util.ParseIntEnv("FOCUSLOOP_REQUEST_TIMEOUT_SECONDS", int(DefaultRequestTimeout.Seconds()))) * time.Second
	s.httpSrv = &http.Server{
		Addr:         s.addr,
		Handler:      s.routes(),
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Start: FocusLoop API listening", "addr", s.addr)
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	}
}

func (s *Server) shutdown() error {
	slog.Info("Server.shutdown: shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()

	var firstErr error
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		firstErr = fmt.Errorf("http shutdown failed: %w", err)
	}
	s.sched.Stop()
	if err := s.retrain.Stop(); err != nil {
		slog.Error("Server.shutdown: retrain worker stop failed", "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	if err := s.st.Close(); err != nil {
		slog.Error("Server.shutdown: store close failed", "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Run builds the store and GenAI client from options, wires the server, and
// serves until the context is canceled. A missing DSN falls back to the
// in-memory store; a missing API key disables GenAI replies.
func Run(ctx context.Context, storeOpts []store.Option, genaiOpts []genai.Option, apiOpts []Option) error {
	var storeCfg store.Opts
	for _, opt := range storeOpts {
		opt(&storeCfg)
	}

	var st store.Store
	var err error
	switch {
	case storeCfg.DSN == "":
		slog.Info("Run: no DSN configured, using in-memory store")
		st = store.NewInMemoryStore()
	case store.DetectDSNType(storeCfg.DSN) == "postgres":
		st, err = store.NewPostgresStore(storeOpts...)
	default:
		st, err = store.NewSQLiteStore(storeOpts...)
	}
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}

	var generator genai.Generator
	client, err := genai.NewClient(genaiOpts...)
	if err != nil {
		slog.Warn("Run: GenAI disabled", "reason", err)
	} else {
		generator = client
	}

	srv, err := NewServer(st, generator, apiOpts...)
	if err != nil {
		return err
	}
	return srv.Start(ctx)
}
