package transcriber

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequest_Validate(t *testing.T) {
	t.Run("should accept a complete request", func(t *testing.T) {
		// Arrange
		req := Request{Audio: strings.NewReader("RIFF"), FileName: "call.wav", Language: "english", NumSpeakers: 2}

		// Act
		err := req.Validate()

		// Assert
		assert.NoError(t, err)
	})

	t.Run("should reject an unspecified language", func(t *testing.T) {
		req := Request{Audio: strings.NewReader(""), NumSpeakers: 1}

		err := req.Validate()

		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidRequest))
		assert.Contains(t, err.Error(), "language: must be one of english, spanish, french, german, italian")
	})

	t.Run("should accept ten speakers", func(t *testing.T) {
		req := Request{Audio: strings.NewReader(""), Language: "italian", NumSpeakers: 10}

		assert.NoError(t, req.Validate())
	})

	tests := []struct {
		name    string
		req     Request
		message string
	}{
		{"should require audio", Request{NumSpeakers: 2}, "audio: is required"},
		{"should reject zero speakers", Request{Audio: strings.NewReader(""), NumSpeakers: 0}, "num_speakers: must be at least 1"},
		{"should reject eleven speakers", Request{Audio: strings.NewReader(""), NumSpeakers: 11}, "num_speakers: must be at most 10"},
		{"should reject unsupported language", Request{Audio: strings.NewReader(""), Language: "en", NumSpeakers: 2}, "language: must be one of english, spanish, french, german, italian"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()

			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRequest))
			assert.Contains(t, err.Error(), tt.message)
		})
	}

	t.Run("should report every invalid field", func(t *testing.T) {
		req := Request{Language: "klingon", NumSpeakers: 0}

		err := req.Validate()

		require.Error(t, err)
		assert.Contains(t, err.Error(), "audio: is required")
		assert.Contains(t, err.Error(), "language:")
		assert.Contains(t, err.Error(), "num_speakers:")
	})
}
