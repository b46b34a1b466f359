// Package pipeline wires transcription, parsing, scoring and aggregation into
// a single analysis of one conversation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"speakersentiment/internal/performance"
	"speakersentiment/internal/report"
	"speakersentiment/internal/sentiment"
	"speakersentiment/internal/transcriber"
	"speakersentiment/internal/transcript"
)

// Result is the outcome of one analysis
type Result struct {
	Transcript      string                       `json:"-"`
	Utterances      []transcript.Utterance       `json:"utterances"`
	Scored          []transcript.ScoredUtterance `json:"scored"`
	Summary         []report.SpeakerSummary      `json:"summary"`
	Skipped         int                          `json:"skipped_lines"`
	ScoringFailures int                          `json:"scoring_failures"`
	CompletedAt     time.Time                    `json:"completed_at"`
}

// Pipeline runs the analysis stages in order
type Pipeline struct {
	logger             *zap.Logger
	engine             *transcriber.TranscriptionEngine
	parser             *transcript.Parser
	annotator          *sentiment.Annotator
	performanceMonitor *performance.PerformanceMonitor
}

// NewPipeline creates a Pipeline with default parsing and a no-op logger.
// engine may be nil when only transcripts are analyzed.
func NewPipeline(engine *transcriber.TranscriptionEngine, annotator *sentiment.Annotator) *Pipeline {
	return NewPipelineWithLogger(engine, transcript.NewParser(), annotator, nil, zap.NewNop())
}

// NewPipelineWithLogger creates a fully configured Pipeline
func NewPipelineWithLogger(engine *transcriber.TranscriptionEngine, parser *transcript.Parser, annotator *sentiment.Annotator, monitor *performance.PerformanceMonitor, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if parser == nil {
		parser = transcript.NewParserWithLogger(logger, transcript.Options{})
	}
	if monitor == nil {
		monitor = performance.NewPerformanceMonitor(logger)
	}
	return &Pipeline{
		logger:             logger,
		engine:             engine,
		parser:             parser,
		annotator:          annotator,
		performanceMonitor: monitor,
	}
}

// AnalyzeAudio transcribes the recording and analyzes the transcript
func (p *Pipeline) AnalyzeAudio(ctx context.Context, req transcriber.Request) (*Result, error) {
	if p.engine == nil {
		return nil, fmt.Errorf("%w: no transcription engine configured", transcriber.ErrModelLoad)
	}

	text, err := p.engine.Transcribe(ctx, req)
	if err != nil {
		return nil, err
	}

	return p.AnalyzeTranscript(ctx, text)
}

// AnalyzeTranscript parses, scores and summarizes diarized transcript text.
// A transcript with no utterance lines yields an empty result, not an error.
func (p *Pipeline) AnalyzeTranscript(ctx context.Context, text string) (*Result, error) {
	if p.annotator == nil {
		return nil, fmt.Errorf("%w: no sentiment scorer configured", sentiment.ErrScoring)
	}

	timer := p.performanceMonitor.Start(performance.StageParse, int64(len(text)))
	parsed := p.parser.Parse(text)
	p.performanceMonitor.End(timer, nil)

	timer = p.performanceMonitor.Start(performance.StageScoring, 0)
	annotation, err := p.annotator.Annotate(ctx, parsed.Utterances)
	p.performanceMonitor.End(timer, err)
	if err != nil {
		return nil, err
	}

	timer = p.performanceMonitor.Start(performance.StageSummary, 0)
	summary := report.SummarizeBySpeaker(annotation.Rows)
	p.performanceMonitor.End(timer, nil)

	p.performanceMonitor.RecordAnalysis(len(parsed.Utterances), parsed.Skipped, annotation.Failures)

	p.logger.Info("analysis completed",
		zap.Int("utterances", len(parsed.Utterances)),
		zap.Int("skipped_lines", parsed.Skipped),
		zap.Strings("speakers", parsed.Speakers()),
		zap.Int("scoring_failures", annotation.Failures))

	return &Result{
		Transcript:      text,
		Utterances:      parsed.Utterances,
		Scored:          annotation.Rows,
		Summary:         summary,
		Skipped:         parsed.Skipped,
		ScoringFailures: annotation.Failures,
		CompletedAt:     time.Now().UTC(),
	}, nil
}

// GetPerformanceSummary returns a formatted summary of stage timings
func (p *Pipeline) GetPerformanceSummary() string {
	return p.performanceMonitor.GetPerformanceSummary()
}

// Close releases the transcription model
func (p *Pipeline) Close() error {
	if p.engine == nil {
		return nil
	}
	return p.engine.Close()
}

// WriteCSV exports the scored table
func (r *Result) WriteCSV(w io.Writer) error {
	return report.NewCSVExporter(nil).Write(w, r.Scored)
}

// WriteChart renders the per-speaker chart as SVG
func (r *Result) WriteChart(w io.Writer, opts report.ChartOptions) error {
	return report.RenderChartSVG(w, r.Summary, opts)
}

// OverallMean returns the mean score over all scored utterances
func (r *Result) OverallMean() float64 {
	return report.OverallMean(r.Scored)
}

// Describe turns a pipeline error into a message for end users that says
// which step failed
func Describe(err error) string {
	if err == nil {
		return ""
	}

	var scoringErr *sentiment.ScoringError
	switch {
	case errors.Is(err, transcriber.ErrInvalidRequest):
		return "Invalid request: " + strings.TrimPrefix(err.Error(), transcriber.ErrInvalidRequest.Error()+": ")
	case errors.Is(err, transcriber.ErrModelLoad):
		return "Could not load the transcription model. Please try again later."
	case errors.Is(err, transcriber.ErrTranscription):
		return "Could not transcribe this audio. Check that the file is a readable WAV recording."
	case errors.As(err, &scoringErr):
		return fmt.Sprintf("Could not score sentiment for utterance %d (%s).", scoringErr.Index+1, scoringErr.Speaker)
	case errors.Is(err, sentiment.ErrScoring):
		return "Could not score sentiment."
	case errors.Is(err, context.DeadlineExceeded):
		return "The analysis timed out."
	case errors.Is(err, context.Canceled):
		return "The analysis was cancelled."
	default:
		return "Analysis failed: " + err.Error()
	}
}
