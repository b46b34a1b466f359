// Package sentiment scores utterance text with a pluggable compound-score
// capability and annotates parsed transcripts with the result.
package sentiment

import (
	"context"
	"errors"
	"fmt"
)

// ErrScoring marks any failure to score an utterance
var ErrScoring = errors.New("could not score sentiment")

// ErrUnsupportedText is returned by scorers for input they cannot read
var ErrUnsupportedText = errors.New("unsupported text encoding")

// Scorer maps a text span to a compound sentiment score in [-1, 1]
type Scorer interface {
	Score(ctx context.Context, text string) (float64, error)
}

// ScorerFunc adapts a plain function to the Scorer interface
type ScorerFunc func(ctx context.Context, text string) (float64, error)

// Score calls f(ctx, text)
func (f ScorerFunc) Score(ctx context.Context, text string) (float64, error) {
	return f(ctx, text)
}

// ScoringError reports which row failed during annotation
type ScoringError struct {
	Index   int
	Speaker string
	Err     error
}

func (e *ScoringError) Error() string {
	return fmt.Sprintf("%s: row %d (%s): %v", ErrScoring, e.Index, e.Speaker, e.Err)
}

// Unwrap exposes both ErrScoring and the underlying scorer error
func (e *ScoringError) Unwrap() []error {
	return []error{ErrScoring, e.Err}
}
