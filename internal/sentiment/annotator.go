package sentiment

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"speakersentiment/internal/transcript"
)

// Policy decides what happens when a single utterance cannot be scored
type Policy int

const (
	// FailFast aborts the whole annotation on the first scoring failure
	FailFast Policy = iota
	// Tolerant records NaN for the failing row and continues
	Tolerant
)

// String returns the configuration name of the policy
func (p Policy) String() string {
	switch p {
	case FailFast:
		return "fail_fast"
	case Tolerant:
		return "tolerant"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// Annotation is the scored table produced by an Annotator
type Annotation struct {
	Rows     []transcript.ScoredUtterance `json:"rows"`
	Failures int                          `json:"scoring_failures"`
}

// Annotator applies a Scorer row by row to parsed utterances
type Annotator struct {
	scorer Scorer
	policy Policy
	logger *zap.Logger
}

// NewAnnotator creates a fail-fast Annotator around the given scorer
func NewAnnotator(scorer Scorer) *Annotator {
	return NewAnnotatorWithLogger(scorer, FailFast, nil)
}

// NewAnnotatorWithLogger creates an Annotator with an explicit policy and logger
func NewAnnotatorWithLogger(scorer Scorer, policy Policy, logger *zap.Logger) *Annotator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Annotator{
		scorer: scorer,
		policy: policy,
		logger: logger,
	}
}

// Policy returns the failure policy in effect
func (a *Annotator) Policy() Policy {
	return a.policy
}

// Annotate scores every utterance independently. The output has exactly one
// row per input row, in input order.
func (a *Annotator) Annotate(ctx context.Context, utterances []transcript.Utterance) (Annotation, error) {
	if a.scorer == nil {
		return Annotation{}, fmt.Errorf("%w: no scorer configured", ErrScoring)
	}

	annotation := Annotation{Rows: make([]transcript.ScoredUtterance, 0, len(utterances))}

	for i, utterance := range utterances {
		if err := ctx.Err(); err != nil {
			return Annotation{}, fmt.Errorf("annotation cancelled at row %d: %w", i, err)
		}

		score, err := a.scoreOne(ctx, utterance.Text)
		if err != nil {
			if a.policy != Tolerant {
				a.logger.Error("sentiment scoring failed",
					zap.Error(err),
					zap.Int("row", i),
					zap.String("speaker", utterance.Speaker))
				return Annotation{}, &ScoringError{Index: i, Speaker: utterance.Speaker, Err: err}
			}

			a.logger.Warn("sentiment scoring failed, recording NaN",
				zap.Error(err),
				zap.Int("row", i),
				zap.String("speaker", utterance.Speaker))
			annotation.Failures++
			score = math.NaN()
		}

		annotation.Rows = append(annotation.Rows, transcript.ScoredUtterance{
			Utterance:      utterance,
			SentimentScore: score,
		})
	}

	a.logger.Info("sentiment annotation completed",
		zap.Int("rows", len(annotation.Rows)),
		zap.Int("failures", annotation.Failures),
		zap.Stringer("policy", a.policy))

	return annotation, nil
}

func (a *Annotator) scoreOne(ctx context.Context, text string) (float64, error) {
	score, err := a.scorer.Score(ctx, text)
	if err != nil {
		return 0, err
	}

	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, fmt.Errorf("scorer returned non-finite score %v", score)
	}

	if score < -1 || score > 1 {
		a.logger.Debug("clamping out of range score", zap.Float64("score", score))
		score = math.Max(-1, math.Min(1, score))
	}

	return score, nil
}
