package sentiment

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jonreiter/govader"
)

// LexiconAnalyzer scores text with the VADER lexicon and rule set and returns
// its normalized compound score in [-1, 1]
type LexiconAnalyzer struct {
	analyzer *govader.SentimentIntensityAnalyzer
}

// NewLexiconAnalyzer creates an analyzer over the full VADER lexicon
func NewLexiconAnalyzer() *LexiconAnalyzer {
	return &LexiconAnalyzer{analyzer: govader.NewSentimentIntensityAnalyzer()}
}

// Score implements Scorer
func (la *LexiconAnalyzer) Score(_ context.Context, text string) (float64, error) {
	if !utf8.ValidString(text) {
		return 0, fmt.Errorf("lexicon analyzer: %w", ErrUnsupportedText)
	}
	if strings.TrimSpace(text) == "" {
		return 0, nil
	}
	return la.analyzer.PolarityScores(text).Compound, nil
}
