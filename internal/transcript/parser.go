package transcript

import (
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// linePattern matches `SPEAKER_<n> (HH:MM:SS ; HH:MM:SS): <text>`
const linePattern = `^(SPEAKER_\d+)\s+\((\d{2}:\d{2}:\d{2})\s+;\s+(\d{2}:\d{2}:\d{2})\):\s*(.*)$`

// Options tunes how strictly transcript lines are accepted
type Options struct {
	// StrictTiming rejects lines whose end time precedes their start time
	StrictTiming bool
}

// ParseResult holds the utterances recovered from a transcript and the number
// of lines that did not match the grammar
type ParseResult struct {
	Utterances []Utterance `json:"utterances"`
	Skipped    int         `json:"skipped_lines"`
}

// Parser converts speaker-tagged transcript text into utterances
type Parser struct {
	logger    *zap.Logger
	options   Options
	lineRegex *regexp.Regexp
}

// NewParser creates a new Parser with default options
func NewParser() *Parser {
	return NewParserWithLogger(nil, Options{})
}

// NewParserWithLogger creates a new Parser with the given logger and options
func NewParserWithLogger(logger *zap.Logger, options Options) *Parser {
	if logger == nil {
		logger = zap.NewNop() // Use no-op logger if nil is passed
	}
	return &Parser{
		logger:    logger,
		options:   options,
		lineRegex: regexp.MustCompile(linePattern),
	}
}

// ParseLine matches one transcript line against the speaker grammar.
// Lines that do not match are reported with ok == false rather than an error.
func (p *Parser) ParseLine(line string) (utterance Utterance, ok bool) {
	matches := p.lineRegex.FindStringSubmatch(line)
	if matches == nil {
		p.logger.Debug("line does not match transcript grammar",
			zap.String("line", line))
		return Utterance{}, false
	}

	utterance = Utterance{
		Speaker:   matches[1],
		StartTime: matches[2],
		EndTime:   matches[3],
		Text:      strings.TrimSpace(matches[4]),
	}

	if utterance.Text == "" {
		p.logger.Debug("line matched grammar but carries no text",
			zap.String("speaker", utterance.Speaker),
			zap.String("start_time", utterance.StartTime))
		return Utterance{}, false
	}

	if p.options.StrictTiming && utterance.Duration() < 0 {
		p.logger.Debug("line rejected - end time precedes start time",
			zap.String("speaker", utterance.Speaker),
			zap.String("start_time", utterance.StartTime),
			zap.String("end_time", utterance.EndTime))
		return Utterance{}, false
	}

	return utterance, true
}

// Parse applies ParseLine to every line of the transcript, keeping matches in
// source order and counting the lines it dropped
func (p *Parser) Parse(text string) ParseResult {
	result := ParseResult{Utterances: []Utterance{}}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		p.logger.Debug("empty transcript, nothing to parse")
		return result
	}

	for _, line := range strings.Split(trimmed, "\n") {
		utterance, ok := p.ParseLine(strings.TrimRight(line, "\r"))
		if !ok {
			result.Skipped++
			continue
		}
		result.Utterances = append(result.Utterances, utterance)
	}

	p.logger.Info("transcript parsed",
		zap.Int("utterances", len(result.Utterances)),
		zap.Int("skipped_lines", result.Skipped))

	return result
}

// Speakers returns the distinct speakers in order of first appearance
func (r ParseResult) Speakers() []string {
	seen := make(map[string]struct{}, len(r.Utterances))
	var speakers []string
	for _, u := range r.Utterances {
		if _, ok := seen[u.Speaker]; ok {
			continue
		}
		seen[u.Speaker] = struct{}{}
		speakers = append(speakers, u.Speaker)
	}
	return speakers
}
