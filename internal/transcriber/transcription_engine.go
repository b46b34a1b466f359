package transcriber

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"speakersentiment/internal/performance"
)

// TranscriptionEngine owns a Model, loads it on first use and keeps it loaded
// for later requests
type TranscriptionEngine struct {
	logger             *zap.Logger
	model              Model
	performanceMonitor *performance.PerformanceMonitor

	mu     sync.Mutex
	loaded bool
}

// NewTranscriptionEngine creates a new TranscriptionEngine instance
func NewTranscriptionEngine(model Model) *TranscriptionEngine {
	return NewTranscriptionEngineWithLogger(model, nil, zap.NewNop())
}

// NewTranscriptionEngineWithLogger creates a TranscriptionEngine that reports
// timings to monitor. A nil monitor gets a private one.
func NewTranscriptionEngineWithLogger(model Model, monitor *performance.PerformanceMonitor, logger *zap.Logger) *TranscriptionEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if monitor == nil {
		monitor = performance.NewPerformanceMonitor(logger)
	}
	return &TranscriptionEngine{
		logger:             logger,
		model:              model,
		performanceMonitor: monitor,
	}
}

// LoadModel loads the model once. A failed load is retried on the next call.
func (te *TranscriptionEngine) LoadModel(ctx context.Context) error {
	te.mu.Lock()
	defer te.mu.Unlock()

	if te.loaded {
		return nil
	}
	if te.model == nil {
		return fmt.Errorf("%w: transcription model not initialized", ErrModelLoad)
	}

	te.logger.Info("loading transcription model")
	timer := te.performanceMonitor.Start(performance.StageModelLoad, 0)
	err := te.model.Load(ctx)
	te.performanceMonitor.End(timer, err)
	if err != nil {
		te.logger.Error("failed to load transcription model", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrModelLoad, err)
	}

	te.loaded = true
	te.logger.Info("transcription model loaded successfully", zap.Duration("load_time", timer.ProcessingTime))
	return nil
}

// Transcribe validates req, makes sure the model is loaded and returns the
// diarized transcript text. An empty language means DefaultLanguage.
func (te *TranscriptionEngine) Transcribe(ctx context.Context, req Request) (string, error) {
	if req.Language == "" {
		req.Language = DefaultLanguage
	}
	if err := req.Validate(); err != nil {
		return "", err
	}
	if err := te.LoadModel(ctx); err != nil {
		return "", err
	}

	counter := &countingReader{reader: req.Audio}
	req.Audio = counter

	te.logger.Info("starting transcription",
		zap.String("file_name", req.FileName),
		zap.String("language", req.Language),
		zap.Int("num_speakers", req.NumSpeakers))

	timer := te.performanceMonitor.Start(performance.StageTranscription, 0)
	text, err := te.model.Transcribe(ctx, req)
	timer.Bytes = counter.n
	te.performanceMonitor.End(timer, err)
	if err != nil {
		te.logger.Error("transcription failed", zap.Error(err), zap.String("file_name", req.FileName))
		return "", fmt.Errorf("%w: %w", ErrTranscription, err)
	}

	te.logger.Info("transcription completed",
		zap.Int64("audio_bytes", counter.n),
		zap.Int("lines", strings.Count(text, "\n")+1),
		zap.Duration("processing_time", timer.ProcessingTime))
	return text, nil
}

// Close cleans up resources and closes the model
func (te *TranscriptionEngine) Close() error {
	te.mu.Lock()
	defer te.mu.Unlock()

	te.logger.Info("closing transcription engine")

	if te.model != nil && te.loaded {
		if err := te.model.Close(); err != nil {
			te.logger.Error("failed to close transcription model", zap.Error(err))
			return fmt.Errorf("failed to close transcription model: %w", err)
		}
	}
	te.loaded = false

	te.logger.Info("transcription engine closed successfully")
	return nil
}

type countingReader struct {
	reader io.Reader
	n      int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.reader.Read(p)
	c.n += int64(n)
	return n, err
}
