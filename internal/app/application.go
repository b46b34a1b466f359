// Package app assembles the configured components into a runnable service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"speakersentiment/internal/api"
	"speakersentiment/internal/config"
	"speakersentiment/internal/performance"
	"speakersentiment/internal/pipeline"
	"speakersentiment/internal/sentiment"
	"speakersentiment/internal/store"
	"speakersentiment/internal/transcriber"
	"speakersentiment/internal/transcript"
)

const (
	shutdownTimeout   = 10 * time.Second
	heartbeatInterval = 30 * time.Second
)

// Application holds the wired components of the analysis service
type Application struct {
	config             *config.Configuration
	zapLogger          *zap.Logger
	performanceMonitor *performance.PerformanceMonitor
	pipeline           *pipeline.Pipeline
	store              store.Repository
	router             *api.Router
}

// LoadConfiguration reads settings from configPath, from the file named by
// CONFIG_PATH, or from environment variables, in that order of preference
func LoadConfiguration(configPath string) (*config.Configuration, error) {
	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}

	var cfg *config.Configuration
	var err error
	if configPath != "" {
		cfg, err = config.NewConfigurationFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file %s: %w", configPath, err)
		}
	} else {
		cfg, err = config.NewConfigurationFromEnv()
		if err != nil {
			return nil, fmt.Errorf("failed to load config from environment: %w", err)
		}
	}

	return cfg, nil
}

// NewApplicationWithConfig wires the components from cfg. A nil model means
// the transcriber named by transcriber.backend.
func NewApplicationWithConfig(cfg *config.Configuration, model transcriber.Model, zapLogger *zap.Logger) (*Application, error) {
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	scorer, err := NewScorer(cfg, zapLogger)
	if err != nil {
		return nil, err
	}

	if model == nil {
		model, err = NewTranscriptionModel(cfg, zapLogger.Named("transcriber"))
		if err != nil {
			return nil, err
		}
	}

	monitor := performance.NewPerformanceMonitorWithBenchmark(zapLogger.Named("performance"), cfg.GetLogLevel() == "debug")
	engine := transcriber.NewTranscriptionEngineWithLogger(model, monitor, zapLogger.Named("transcriber"))
	parser := transcript.NewParserWithLogger(zapLogger.Named("parser"), transcript.Options{StrictTiming: cfg.GetStrictTiming()})

	policy := sentiment.FailFast
	if cfg.GetSentimentTolerant() {
		policy = sentiment.Tolerant
	}
	annotator := sentiment.NewAnnotatorWithLogger(scorer, policy, zapLogger.Named("sentiment"))

	p := pipeline.NewPipelineWithLogger(engine, parser, annotator, monitor, zapLogger.Named("pipeline"))
	analyses, err := NewRepository(cfg, zapLogger.Named("store"))
	if err != nil {
		return nil, err
	}

	return &Application{
		config:             cfg,
		zapLogger:          zapLogger,
		performanceMonitor: monitor,
		pipeline:           p,
		store:              analyses,
		router:             api.NewRouter(p, analyses, cfg, zapLogger),
	}, nil
}

// NewTranscriptionModel builds the transcriber named by transcriber.backend.
// The static backend replays transcriber.transcript_file for every recording.
func NewTranscriptionModel(cfg *config.Configuration, zapLogger *zap.Logger) (transcriber.Model, error) {
	switch cfg.GetTranscriberBackend() {
	case config.TranscriberHTTP:
		return transcriber.NewHTTPModel(transcriber.HTTPConfig{
			URL:     cfg.GetTranscriberURL(),
			Model:   cfg.GetTranscriberModel(),
			Timeout: cfg.GetTranscriberTimeout(),
		}, zapLogger), nil
	case config.TranscriberStatic:
		text, err := os.ReadFile(cfg.GetTranscriptFile())
		if err != nil {
			return nil, fmt.Errorf("failed to read transcript file: %w", err)
		}
		zapLogger.Info("replaying transcript for every recording", zap.String("transcript_file", cfg.GetTranscriptFile()))
		return transcriber.NewStaticModel(string(text)), nil
	default:
		return nil, fmt.Errorf("unsupported transcriber backend %q", cfg.GetTranscriberBackend())
	}
}

// NewScorer builds the sentiment backend named by sentiment.backend
func NewScorer(cfg *config.Configuration, zapLogger *zap.Logger) (sentiment.Scorer, error) {
	switch cfg.GetSentimentBackend() {
	case config.BackendLexicon:
		return sentiment.NewLexiconAnalyzer(), nil
	case config.BackendOpenAI:
		scorer, err := sentiment.NewOpenAIScorer(sentiment.OpenAIConfig{
			APIKey: cfg.GetOpenAIAPIKey(),
			Model:  cfg.GetSentimentModel(),
		}, zapLogger.Named("openai"))
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI scorer: %w", err)
		}
		return scorer, nil
	default:
		return nil, fmt.Errorf("unsupported sentiment backend %q", cfg.GetSentimentBackend())
	}
}

// NewRepository opens the analysis store named by store.backend
func NewRepository(cfg *config.Configuration, zapLogger *zap.Logger) (store.Repository, error) {
	switch cfg.GetStoreBackend() {
	case config.StoreMemory:
		return store.NewMemoryStore(cfg.GetStoreCapacity(), zapLogger), nil
	case config.StoreSQLite:
		repository, err := store.NewSQLiteStore(cfg.GetStorePath(), cfg.GetStoreCapacity(), zapLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to open analysis store: %w", err)
		}
		return repository, nil
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.GetStoreBackend())
	}
}

// Pipeline returns the analysis pipeline
func (app *Application) Pipeline() *pipeline.Pipeline {
	return app.pipeline
}

// Handler returns the HTTP API
func (app *Application) Handler() http.Handler {
	return app.router.Routes()
}

// Run serves the HTTP API on the configured address until ctx is cancelled
func (app *Application) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", app.config.GetServerAddr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", app.config.GetServerAddr(), err)
	}
	return app.Serve(ctx, listener)
}

// Serve serves the HTTP API on listener until ctx is cancelled
func (app *Application) Serve(ctx context.Context, listener net.Listener) error {
	server := &http.Server{
		Handler:           app.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	app.zapLogger.Info("starting speaker sentiment service",
		zap.String("addr", listener.Addr().String()),
		zap.String("sentiment_backend", app.config.GetSentimentBackend()),
		zap.String("transcriber_backend", app.config.GetTranscriberBackend()),
		zap.String("transcriber_url", app.config.GetTranscriberURL()))

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(listener)
	}()

	go app.startHeartbeat(ctx)

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	app.zapLogger.Info("shutdown signal received, stopping service")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}

// startHeartbeat periodically logs analysis metrics
func (app *Application) startHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			app.performanceMonitor.LogCurrentMetrics()
			app.zapLogger.Debug("service heartbeat", zap.Int("stored_analyses", app.store.Len()))
		}
	}
}

// Shutdown releases the transcription model and analysis store and flushes logs
func (app *Application) Shutdown() error {
	app.zapLogger.Info("shutting down application")
	app.performanceMonitor.LogCurrentMetrics()

	if err := app.pipeline.Close(); err != nil {
		return fmt.Errorf("failed to close pipeline: %w", err)
	}
	if err := app.store.Close(); err != nil {
		return fmt.Errorf("failed to close analysis store: %w", err)
	}

	// Sync errors on stderr/stdout are expected on some platforms
	_ = app.zapLogger.Sync()
	return nil
}
