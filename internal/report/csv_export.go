package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"go.uber.org/zap"

	"speakersentiment/internal/transcript"
)

// DefaultCSVFileName is the download name offered for a CSV export
const DefaultCSVFileName = "transcription_results.csv"

// CSVHeader lists the exported columns in order
var CSVHeader = []string{"speaker", "start_time", "end_time", "text", "sentiment_score"}

// CSVExporter writes scored utterances as comma-separated values
type CSVExporter struct {
	logger *zap.Logger
}

// NewCSVExporter creates a new CSVExporter instance
func NewCSVExporter(logger *zap.Logger) *CSVExporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CSVExporter{logger: logger}
}

// Write serializes rows in table order under a header row
func (ce *CSVExporter) Write(w io.Writer, rows []transcript.ScoredUtterance) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(CSVHeader); err != nil {
		ce.logger.Error("failed to write CSV header", zap.Error(err))
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for i, row := range rows {
		record := []string{
			row.Speaker,
			row.StartTime,
			row.EndTime,
			row.Text,
			FormatScore(row.SentimentScore),
		}
		if err := writer.Write(record); err != nil {
			ce.logger.Error("failed to write CSV row", zap.Error(err), zap.Int("row", i))
			return fmt.Errorf("failed to write CSV row %d: %w", i, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		ce.logger.Error("failed to flush CSV output", zap.Error(err))
		return fmt.Errorf("failed to flush CSV output: %w", err)
	}

	ce.logger.Debug("wrote CSV export", zap.Int("rows", len(rows)))
	return nil
}

// ReadCSV parses output produced by CSVExporter.Write back into rows
func ReadCSV(r io.Reader) ([]transcript.ScoredUtterance, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(CSVHeader)

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("failed to read CSV: missing header")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	for i, name := range CSVHeader {
		if header[i] != name {
			return nil, fmt.Errorf("unexpected CSV column %d: got %q, want %q", i, header[i], name)
		}
	}

	rows := []transcript.ScoredUtterance{}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row %d: %w", len(rows), err)
		}

		score, err := ParseScore(record[4])
		if err != nil {
			return nil, fmt.Errorf("invalid sentiment_score in row %d: %w", len(rows), err)
		}

		rows = append(rows, transcript.ScoredUtterance{
			Utterance: transcript.Utterance{
				Speaker:   record[0],
				StartTime: record[1],
				EndTime:   record[2],
				Text:      record[3],
			},
			SentimentScore: score,
		})
	}

	return rows, nil
}

// FormatScore renders a score with the shortest lossless representation.
// NaN becomes an empty field.
func FormatScore(score float64) string {
	if math.IsNaN(score) {
		return ""
	}
	return strconv.FormatFloat(score, 'f', -1, 64)
}

// ParseScore reverses FormatScore
func ParseScore(field string) (float64, error) {
	if field == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(field, 64)
}
