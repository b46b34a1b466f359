// Package store keeps finished analyses so they can be fetched and exported
// after the request that produced them.
package store

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"speakersentiment/internal/pipeline"
)

// ErrNotFound is returned for unknown analysis IDs
var ErrNotFound = errors.New("analysis not found")

// Analysis is a stored pipeline result
type Analysis struct {
	ID          string           `json:"id"`
	Source      string           `json:"source"`
	Language    string           `json:"language,omitempty"`
	NumSpeakers int              `json:"num_speakers,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	Result      *pipeline.Result `json:"result"`
}

// Repository stores analyses by ID. Implementations are safe for concurrent use.
type Repository interface {
	// Save assigns a new ID to analysis, stores it and returns the ID
	Save(analysis *Analysis) (string, error)
	Get(id string) (*Analysis, error)
	Delete(id string) error
	// List returns stored analyses, newest first
	List() ([]*Analysis, error)
	Len() int
	Close() error
}

// prepare assigns the ID and creation time of a new analysis
func prepare(analysis *Analysis) {
	analysis.ID = uuid.NewString()
	if analysis.CreatedAt.IsZero() {
		analysis.CreatedAt = time.Now().UTC()
	}
}

// validID rejects IDs that Save could not have produced
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
