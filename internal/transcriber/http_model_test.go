package transcriber

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type capturedUpload struct {
	fileName    string
	audio       string
	language    string
	numSpeakers string
	model       string
}

func newTranscribeServer(t *testing.T, respond func(w http.ResponseWriter), captured *capturedUpload) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/transcribe":
			assert.Equal(t, http.MethodPost, r.Method)
			if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			file, header, err := r.FormFile("file")
			if assert.NoError(t, err) {
				data, _ := io.ReadAll(file)
				file.Close()
				captured.fileName = header.Filename
				captured.audio = string(data)
			}
			captured.language = r.FormValue("language")
			captured.numSpeakers = r.FormValue("num_speakers")
			captured.model = r.FormValue("model")
			respond(w)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestHTTPModel_Transcribe(t *testing.T) {
	t.Run("should upload audio and fields and decode a JSON transcript", func(t *testing.T) {
		// Arrange
		var captured capturedUpload
		server := newTranscribeServer(t, func(w http.ResponseWriter) {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			_, _ = io.WriteString(w, `{"transcript":"SPEAKER_0 (00:00:00 ; 00:00:01): hi"}`)
		}, &captured)
		model := NewHTTPModel(HTTPConfig{URL: server.URL + "/", Model: "large-v3"}, zaptest.NewLogger(t))

		// Act
		text, err := model.Transcribe(context.Background(), Request{
			Audio: strings.NewReader("RIFFDATA"), FileName: "meeting.wav", Language: "spanish", NumSpeakers: 3,
		})

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "SPEAKER_0 (00:00:00 ; 00:00:01): hi", text)
		assert.Equal(t, "meeting.wav", captured.fileName)
		assert.Equal(t, "RIFFDATA", captured.audio)
		assert.Equal(t, "spanish", captured.language)
		assert.Equal(t, "3", captured.numSpeakers)
		assert.Equal(t, "large-v3", captured.model)
	})

	t.Run("should fall back to the text field of a JSON response", func(t *testing.T) {
		var captured capturedUpload
		server := newTranscribeServer(t, func(w http.ResponseWriter) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"text":"SPEAKER_1 (00:00:00 ; 00:00:01): ok"}`)
		}, &captured)
		model := NewHTTPModel(HTTPConfig{URL: server.URL}, nil)

		text, err := model.Transcribe(context.Background(), Request{Audio: strings.NewReader("a"), NumSpeakers: 2})

		require.NoError(t, err)
		assert.Equal(t, "SPEAKER_1 (00:00:00 ; 00:00:01): ok", text)
		assert.Equal(t, "audio.wav", captured.fileName)
		assert.Equal(t, "", captured.language)
		assert.Equal(t, defaultServiceModel, captured.model)
	})

	t.Run("should accept a plain text transcript", func(t *testing.T) {
		var captured capturedUpload
		server := newTranscribeServer(t, func(w http.ResponseWriter) {
			w.Header().Set("Content-Type", "text/plain")
			_, _ = io.WriteString(w, "SPEAKER_0 (00:00:00 ; 00:00:01): plain\n")
		}, &captured)
		model := NewHTTPModel(HTTPConfig{URL: server.URL}, nil)

		text, err := model.Transcribe(context.Background(), Request{Audio: strings.NewReader("a"), NumSpeakers: 1})

		require.NoError(t, err)
		assert.Equal(t, "SPEAKER_0 (00:00:00 ; 00:00:01): plain\n", text)
	})

	t.Run("should return the service error body", func(t *testing.T) {
		var captured capturedUpload
		server := newTranscribeServer(t, func(w http.ResponseWriter) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, "CUDA out of memory")
		}, &captured)
		model := NewHTTPModel(HTTPConfig{URL: server.URL}, nil)

		_, err := model.Transcribe(context.Background(), Request{Audio: strings.NewReader("a"), NumSpeakers: 1})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 500")
		assert.Contains(t, err.Error(), "CUDA out of memory")
	})

	t.Run("should reject malformed JSON", func(t *testing.T) {
		var captured capturedUpload
		server := newTranscribeServer(t, func(w http.ResponseWriter) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"transcript":`)
		}, &captured)
		model := NewHTTPModel(HTTPConfig{URL: server.URL}, nil)

		_, err := model.Transcribe(context.Background(), Request{Audio: strings.NewReader("a"), NumSpeakers: 1})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to decode transcription response")
	})
}

func TestHTTPModel_Load(t *testing.T) {
	t.Run("should succeed when the service is healthy", func(t *testing.T) {
		var captured capturedUpload
		server := newTranscribeServer(t, func(w http.ResponseWriter) {}, &captured)
		model := NewHTTPModel(HTTPConfig{URL: server.URL}, nil)

		assert.NoError(t, model.Load(context.Background()))
		assert.NoError(t, model.Close())
	})

	t.Run("should fail when the service is not ready", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, "loading model")
		}))
		defer server.Close()
		model := NewHTTPModel(HTTPConfig{URL: server.URL}, nil)

		err := model.Load(context.Background())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 503")
		assert.Contains(t, err.Error(), "loading model")
	})

	t.Run("should fail when the service is unreachable", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()
		model := NewHTTPModel(HTTPConfig{URL: url, Timeout: time.Second}, nil)

		err := model.Load(context.Background())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "unreachable")
	})
}

func TestNewHTTPModel_Defaults(t *testing.T) {
	model := NewHTTPModel(HTTPConfig{}, nil)

	assert.Equal(t, defaultServiceURL, model.cfg.URL)
	assert.Equal(t, defaultServiceModel, model.cfg.Model)
	assert.Equal(t, defaultTimeout, model.client.Timeout)
}
