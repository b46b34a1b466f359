package performance

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Stage names one timed step of an analysis
type Stage string

// Analysis stages
const (
	StageModelLoad     Stage = "model_load"
	StageTranscription Stage = "transcription"
	StageParse         Stage = "parse"
	StageScoring       Stage = "scoring"
	StageSummary       Stage = "summary"
)

// StageMetrics tracks timings for one stage
type StageMetrics struct {
	Count    int64
	Failures int64
	Bytes    int64
	Total    time.Duration
	Min      time.Duration
	Max      time.Duration
	Avg      time.Duration
	Last     time.Duration
}

// PerformanceMetrics aggregates stage timings and analysis counters
type PerformanceMetrics struct {
	Stages        map[Stage]StageMetrics
	Analyses      int64
	Utterances    int64
	SkippedLines  int64
	ScoreFailures int64
	LastTimestamp time.Time
}

// StageTimer tracks timing for one stage run
type StageTimer struct {
	Stage          Stage
	StartTime      time.Time
	Bytes          int64
	ProcessingTime time.Duration
}

// PerformanceMonitor handles performance tracking and reporting
type PerformanceMonitor struct {
	logger    *zap.Logger
	metrics   PerformanceMetrics
	mu        sync.RWMutex
	benchmark bool
}

func newMetrics() PerformanceMetrics {
	return PerformanceMetrics{
		Stages:        make(map[Stage]StageMetrics),
		LastTimestamp: time.Now(),
	}
}

// NewPerformanceMonitor creates a new performance monitor
func NewPerformanceMonitor(logger *zap.Logger) *PerformanceMonitor {
	return NewPerformanceMonitorWithBenchmark(logger, false)
}

// NewPerformanceMonitorWithBenchmark creates a performance monitor with benchmarking enabled
func NewPerformanceMonitorWithBenchmark(logger *zap.Logger, benchmark bool) *PerformanceMonitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PerformanceMonitor{
		logger:    logger,
		metrics:   newMetrics(),
		benchmark: benchmark,
	}
}

// Start begins timing a stage. bytes is the input size when known.
func (pm *PerformanceMonitor) Start(stage Stage, bytes int64) *StageTimer {
	return &StageTimer{
		Stage:     stage,
		StartTime: time.Now(),
		Bytes:     bytes,
	}
}

// End completes timing and updates metrics. A non-nil err counts as a failure.
func (pm *PerformanceMonitor) End(timer *StageTimer, err error) {
	timer.ProcessingTime = time.Since(timer.StartTime)

	pm.mu.Lock()
	defer pm.mu.Unlock()

	m := pm.metrics.Stages[timer.Stage]
	m.Count++
	if err != nil {
		m.Failures++
	}
	m.Bytes += timer.Bytes
	m.Total += timer.ProcessingTime
	m.Last = timer.ProcessingTime
	if m.Count == 1 || timer.ProcessingTime < m.Min {
		m.Min = timer.ProcessingTime
	}
	if timer.ProcessingTime > m.Max {
		m.Max = timer.ProcessingTime
	}
	m.Avg = time.Duration(int64(m.Total) / m.Count)
	pm.metrics.Stages[timer.Stage] = m
	pm.metrics.LastTimestamp = time.Now()

	if pm.benchmark {
		pm.logger.Info("stage performance",
			zap.String("stage", string(timer.Stage)),
			zap.Int64("bytes", timer.Bytes),
			zap.Duration("processing_time", timer.ProcessingTime),
			zap.Bool("failed", err != nil),
		)
	}
}

// RecordAnalysis counts a finished analysis
func (pm *PerformanceMonitor) RecordAnalysis(utterances, skipped, scoreFailures int) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.metrics.Analyses++
	pm.metrics.Utterances += int64(utterances)
	pm.metrics.SkippedLines += int64(skipped)
	pm.metrics.ScoreFailures += int64(scoreFailures)
	pm.metrics.LastTimestamp = time.Now()
}

// GetMetrics returns a copy of current metrics
func (pm *PerformanceMonitor) GetMetrics() PerformanceMetrics {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	out := pm.metrics
	out.Stages = make(map[Stage]StageMetrics, len(pm.metrics.Stages))
	for stage, m := range pm.metrics.Stages {
		out.Stages[stage] = m
	}
	return out
}

// GetPerformanceSummary returns a formatted summary of performance metrics
func (pm *PerformanceMonitor) GetPerformanceSummary() string {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	if pm.metrics.Analyses == 0 && len(pm.metrics.Stages) == 0 {
		return "No analysis metrics available"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Performance Summary:\n"+
		"  Analyses: %d\n"+
		"  Utterances: %d\n"+
		"  Skipped Lines: %d\n"+
		"  Scoring Failures: %d\n",
		pm.metrics.Analyses,
		pm.metrics.Utterances,
		pm.metrics.SkippedLines,
		pm.metrics.ScoreFailures,
	)

	stages := make([]string, 0, len(pm.metrics.Stages))
	for stage := range pm.metrics.Stages {
		stages = append(stages, string(stage))
	}
	sort.Strings(stages)

	for _, name := range stages {
		m := pm.metrics.Stages[Stage(name)]
		fmt.Fprintf(&b, "  %s: %d runs, %d failed, avg %v, min/max %v / %v\n",
			name, m.Count, m.Failures, m.Avg, m.Min, m.Max)
	}

	return b.String()
}

// LogCurrentMetrics logs the current performance metrics
func (pm *PerformanceMonitor) LogCurrentMetrics() {
	metrics := pm.GetMetrics()

	fields := []zap.Field{
		zap.Int64("analyses", metrics.Analyses),
		zap.Int64("utterances", metrics.Utterances),
		zap.Int64("skipped_lines", metrics.SkippedLines),
		zap.Int64("score_failures", metrics.ScoreFailures),
	}
	for stage, m := range metrics.Stages {
		fields = append(fields, zap.Duration(string(stage)+"_avg", m.Avg))
	}

	pm.logger.Info("current performance metrics", fields...)
}
