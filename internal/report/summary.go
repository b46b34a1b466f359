// Package report aggregates scored utterances per speaker and renders the
// results as CSV and charts.
package report

import (
	"math"
	"sort"

	"speakersentiment/internal/transcript"
)

// SpeakerSummary holds the mean sentiment of one speaker
type SpeakerSummary struct {
	Speaker            string  `json:"speaker"`
	MeanSentimentScore float64 `json:"mean_sentiment_score"`
	Utterances         int     `json:"utterances"`
	Scored             int     `json:"scored"`
}

// SummarizeBySpeaker groups rows by speaker, averages their scores and sorts
// the result ascending by mean. Ties keep first-appearance order. NaN scores
// are left out of the mean; a speaker with no finite score sorts last.
func SummarizeBySpeaker(rows []transcript.ScoredUtterance) []SpeakerSummary {
	summaries := []SpeakerSummary{}
	sums := []float64{}
	index := make(map[string]int)

	for _, row := range rows {
		i, ok := index[row.Speaker]
		if !ok {
			i = len(summaries)
			index[row.Speaker] = i
			summaries = append(summaries, SpeakerSummary{Speaker: row.Speaker})
			sums = append(sums, 0)
		}

		summaries[i].Utterances++
		if math.IsNaN(row.SentimentScore) {
			continue
		}
		summaries[i].Scored++
		sums[i] += row.SentimentScore
	}

	for i := range summaries {
		if summaries[i].Scored == 0 {
			summaries[i].MeanSentimentScore = math.NaN()
			continue
		}
		summaries[i].MeanSentimentScore = sums[i] / float64(summaries[i].Scored)
	}

	sort.SliceStable(summaries, func(a, b int) bool {
		left, right := summaries[a].MeanSentimentScore, summaries[b].MeanSentimentScore
		if math.IsNaN(left) || math.IsNaN(right) {
			return !math.IsNaN(left) && math.IsNaN(right)
		}
		return left < right
	})

	return summaries
}

// OverallMean returns the mean of all finite scores, or NaN for none
func OverallMean(rows []transcript.ScoredUtterance) float64 {
	sum, n := 0.0, 0
	for _, row := range rows {
		if math.IsNaN(row.SentimentScore) {
			continue
		}
		sum += row.SentimentScore
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}
