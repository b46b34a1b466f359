package transcriber

import (
	"context"
	"io"
	"sync"
)

// StaticModel returns a fixed transcript for any audio. The static
// transcriber backend uses it to replay a transcript captured earlier.
type StaticModel struct {
	Transcript    string
	LoadErr       error
	TranscribeErr error

	mu     sync.Mutex
	Loads  int
	Calls  int
	Closed bool
	// Languages records the language of every transcribed request
	Languages []string
}

// NewStaticModel creates a StaticModel answering with transcript
func NewStaticModel(transcript string) *StaticModel {
	return &StaticModel{Transcript: transcript}
}

// Load returns LoadErr
func (m *StaticModel) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Loads++
	return m.LoadErr
}

// Transcribe drains the audio and returns Transcript or TranscribeErr
func (m *StaticModel) Transcribe(ctx context.Context, req Request) (string, error) {
	m.mu.Lock()
	m.Calls++
	m.Languages = append(m.Languages, req.Language)
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if req.Audio != nil {
		if _, err := io.Copy(io.Discard, req.Audio); err != nil {
			return "", err
		}
	}
	if m.TranscribeErr != nil {
		return "", m.TranscribeErr
	}
	return m.Transcript, nil
}

// Close marks the model closed
func (m *StaticModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}
