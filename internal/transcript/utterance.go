package transcript

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Utterance represents a single speaker turn parsed from a diarized transcript
type Utterance struct {
	Speaker   string `json:"speaker"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Text      string `json:"text"`
}

// ScoredUtterance is an Utterance annotated with a compound sentiment score
type ScoredUtterance struct {
	Utterance
	SentimentScore float64 `json:"sentiment_score"`
}

// Validate checks if the Utterance has valid values
func (u *Utterance) Validate() error {
	if u.Speaker == "" {
		return fmt.Errorf("speaker cannot be empty")
	}

	if strings.TrimSpace(u.Text) == "" {
		return fmt.Errorf("text cannot be empty")
	}

	if _, err := ParseClock(u.StartTime); err != nil {
		return fmt.Errorf("invalid start_time: %w", err)
	}

	if _, err := ParseClock(u.EndTime); err != nil {
		return fmt.Errorf("invalid end_time: %w", err)
	}

	return nil
}

// Duration returns end minus start. It is negative for reversed timestamps.
func (u *Utterance) Duration() time.Duration {
	start, err := ParseClock(u.StartTime)
	if err != nil {
		return 0
	}
	end, err := ParseClock(u.EndTime)
	if err != nil {
		return 0
	}
	return end - start
}

// ParseClock converts an HH:MM:SS clock string into an offset from 00:00:00
func ParseClock(clock string) (time.Duration, error) {
	parts := strings.Split(clock, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("clock %q must be HH:MM:SS", clock)
	}

	var values [3]int
	for i, part := range parts {
		if len(part) != 2 {
			return 0, fmt.Errorf("clock %q must use two digits per field", clock)
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("clock %q has non-numeric field %q", clock, part)
		}
		values[i] = n
	}

	if values[1] > 59 || values[2] > 59 {
		return 0, fmt.Errorf("clock %q has minutes or seconds out of range", clock)
	}

	return time.Duration(values[0])*time.Hour +
		time.Duration(values[1])*time.Minute +
		time.Duration(values[2])*time.Second, nil
}
