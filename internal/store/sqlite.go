package store

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"speakersentiment/internal/pipeline"
	"speakersentiment/internal/report"
	"speakersentiment/internal/transcript"
)

// timeLayout is fixed width so stored timestamps sort as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore is a Repository backed by a SQLite database file. Scores are
// stored per utterance and speaker summaries are recomputed on load.
type SQLiteStore struct {
	db       *sql.DB
	logger   *zap.Logger
	capacity int
}

// NewSQLiteStore opens or creates the database at path. A non-positive
// capacity keeps every analysis.
func NewSQLiteStore(path string, capacity int, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}
	// SQLite allows a single writer
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:       db,
		logger:   logger,
		capacity: capacity,
	}
	if err := s.initDB(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("opened analysis database", zap.String("path", path), zap.Int("capacity", capacity))
	return s, nil
}

// initDB creates the tables on first use
func (s *SQLiteStore) initDB() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS analyses (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			language TEXT NOT NULL DEFAULT '',
			num_speakers INTEGER NOT NULL DEFAULT 0,
			skipped_lines INTEGER NOT NULL DEFAULT 0,
			scoring_failures INTEGER NOT NULL DEFAULT 0,
			completed_at TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS utterances (
			analysis_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			speaker TEXT NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			text TEXT NOT NULL,
			sentiment_score REAL,
			PRIMARY KEY (analysis_id, position)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_analyses_created_at ON analyses(created_at)`,
	}

	for _, statement := range statements {
		if _, err := s.db.Exec(statement); err != nil {
			return fmt.Errorf("failed to initialize analysis database: %w", err)
		}
	}
	return nil
}

// Save assigns an ID to the analysis and stores it with its scored utterances
func (s *SQLiteStore) Save(analysis *Analysis) (string, error) {
	prepare(analysis)

	result := analysis.Result
	if result == nil {
		result = &pipeline.Result{}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO analyses
		(id, source, language, num_speakers, skipped_lines, scoring_failures, completed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		analysis.ID,
		analysis.Source,
		analysis.Language,
		analysis.NumSpeakers,
		result.Skipped,
		result.ScoringFailures,
		formatTime(result.CompletedAt),
		formatTime(analysis.CreatedAt),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert analysis: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO utterances
		(analysis_id, position, speaker, start_time, end_time, text, sentiment_score)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare utterance insert: %w", err)
	}
	defer stmt.Close()

	for i, row := range result.Scored {
		score := sql.NullFloat64{Float64: row.SentimentScore, Valid: !math.IsNaN(row.SentimentScore)}
		if _, err := stmt.Exec(analysis.ID, i, row.Speaker, row.StartTime, row.EndTime, row.Text, score); err != nil {
			return "", fmt.Errorf("failed to insert utterance %d: %w", i, err)
		}
	}

	if err := s.evict(tx); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit analysis: %w", err)
	}

	s.logger.Info("stored analysis",
		zap.String("id", analysis.ID),
		zap.String("source", analysis.Source),
		zap.Int("utterances", len(result.Scored)))
	return analysis.ID, nil
}

// evict drops the oldest analyses beyond capacity
func (s *SQLiteStore) evict(tx *sql.Tx) error {
	if s.capacity <= 0 {
		return nil
	}

	res, err := tx.Exec(
		`DELETE FROM analyses WHERE id IN (
			SELECT id FROM analyses ORDER BY created_at DESC, rowid DESC LIMIT -1 OFFSET ?
		)`, s.capacity)
	if err != nil {
		return fmt.Errorf("failed to evict analyses: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.Debug("evicted analyses", zap.Int64("count", n))
		if _, err := tx.Exec(`DELETE FROM utterances WHERE analysis_id NOT IN (SELECT id FROM analyses)`); err != nil {
			return fmt.Errorf("failed to evict utterances: %w", err)
		}
	}
	return nil
}

// Get returns the analysis with the given ID
func (s *SQLiteStore) Get(id string) (*Analysis, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}

	row := s.db.QueryRow(
		`SELECT id, source, language, num_speakers, skipped_lines, scoring_failures, completed_at, created_at
		FROM analyses WHERE id = ?`, id)
	analysis, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis: %w", err)
	}

	if err := s.loadUtterances(analysis); err != nil {
		return nil, err
	}
	return analysis, nil
}

// Delete removes an analysis and its utterances
func (s *SQLiteStore) Delete(id string) error {
	if !validID(id) {
		return ErrNotFound
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM analyses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete analysis: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to delete analysis: %w", err)
	} else if n == 0 {
		return ErrNotFound
	}

	if _, err := tx.Exec(`DELETE FROM utterances WHERE analysis_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete utterances: %w", err)
	}
	return tx.Commit()
}

// List returns stored analyses, newest first
func (s *SQLiteStore) List() ([]*Analysis, error) {
	rows, err := s.db.Query(
		`SELECT id, source, language, num_speakers, skipped_lines, scoring_failures, completed_at, created_at
		FROM analyses ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}

	var analyses []*Analysis
	for rows.Next() {
		analysis, err := scanAnalysis(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		analyses = append(analyses, analysis)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	// Release the only connection before loading utterances
	rows.Close()

	for _, analysis := range analyses {
		if err := s.loadUtterances(analysis); err != nil {
			return nil, err
		}
	}
	return analyses, nil
}

// Len returns the number of stored analyses, or 0 if the count fails
func (s *SQLiteStore) Len() int {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM analyses`).Scan(&n); err != nil {
		s.logger.Error("failed to count analyses", zap.Error(err))
		return 0
	}
	return n
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row scanner) (*Analysis, error) {
	var analysis Analysis
	var result pipeline.Result
	var completedAt, createdAt string

	if err := row.Scan(
		&analysis.ID,
		&analysis.Source,
		&analysis.Language,
		&analysis.NumSpeakers,
		&result.Skipped,
		&result.ScoringFailures,
		&completedAt,
		&createdAt,
	); err != nil {
		return nil, err
	}

	var err error
	if analysis.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
	}
	if result.CompletedAt, err = parseTime(completedAt); err != nil {
		return nil, fmt.Errorf("invalid completed_at %q: %w", completedAt, err)
	}

	analysis.Result = &result
	return &analysis, nil
}

// loadUtterances fills the scored table and rebuilds the speaker summary
func (s *SQLiteStore) loadUtterances(analysis *Analysis) error {
	rows, err := s.db.Query(
		`SELECT speaker, start_time, end_time, text, sentiment_score
		FROM utterances WHERE analysis_id = ? ORDER BY position`, analysis.ID)
	if err != nil {
		return fmt.Errorf("failed to query utterances: %w", err)
	}
	defer rows.Close()

	result := analysis.Result
	for rows.Next() {
		var row transcript.ScoredUtterance
		var score sql.NullFloat64
		if err := rows.Scan(&row.Speaker, &row.StartTime, &row.EndTime, &row.Text, &score); err != nil {
			return fmt.Errorf("failed to scan utterance: %w", err)
		}
		row.SentimentScore = math.NaN()
		if score.Valid {
			row.SentimentScore = score.Float64
		}
		result.Scored = append(result.Scored, row)
		result.Utterances = append(result.Utterances, row.Utterance)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read utterances: %w", err)
	}

	result.Summary = report.SummarizeBySpeaker(result.Scored)
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, value)
}
