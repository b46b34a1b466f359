package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"speakersentiment/internal/config"
	"speakersentiment/internal/pipeline"
	"speakersentiment/internal/report"
	"speakersentiment/internal/sentiment"
	"speakersentiment/internal/store"
	"speakersentiment/internal/transcriber"
	"speakersentiment/internal/transcript"
)

const exampleTranscript = "SPEAKER_0 (00:00:00 ; 00:00:02): I love this!\nSPEAKER_1 (00:00:03 ; 00:00:05): I hate this.\n"

type testServer struct {
	handler http.Handler
	model   *transcriber.StaticModel
	store   *store.MemoryStore
}

func newTestServer(t *testing.T, scorer sentiment.Scorer, policy sentiment.Policy) *testServer {
	t.Helper()
	logger := zaptest.NewLogger(t)
	model := transcriber.NewStaticModel(exampleTranscript)
	engine := transcriber.NewTranscriptionEngineWithLogger(model, nil, logger)
	annotator := sentiment.NewAnnotatorWithLogger(scorer, policy, logger)
	p := pipeline.NewPipelineWithLogger(engine, transcript.NewParserWithLogger(logger, transcript.Options{}), annotator, nil, logger)
	analyses := store.NewMemoryStore(10, logger)
	cfg := config.NewConfiguration()
	cfg.Set("server.max_upload_mb", 1)

	return &testServer{
		handler: NewRouter(p, analyses, cfg, logger).Routes(),
		model:   model,
		store:   analyses,
	}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, fields map[string]string, withFile bool) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if withFile {
		part, err := writer.CreateFormFile("file", "call.wav")
		require.NoError(t, err)
		_, err = part.Write([]byte("RIFF....WAVE"))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func decodeAnalysis(t *testing.T, rec *httptest.ResponseRecorder) analysisResponse {
	t.Helper()
	var resp analysisResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestCreateAudioAnalysis(t *testing.T) {
	t.Run("should transcribe the upload and return the summary", func(t *testing.T) {
		// Arrange
		server := newTestServer(t, sentiment.NewLexiconAnalyzer(), sentiment.FailFast)
		req := uploadRequest(t, map[string]string{"language": "english", "num_speakers": "2"}, true)

		// Act
		rec := server.do(req)

		// Assert
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		resp := decodeAnalysis(t, rec)
		assert.NotEmpty(t, resp.ID)
		assert.Equal(t, "call.wav", resp.Source)
		assert.Equal(t, "english", resp.Language)
		assert.Equal(t, 2, resp.NumSpeakers)
		require.Len(t, resp.Utterances, 2)
		require.Len(t, resp.Summary, 2)
		assert.Equal(t, "SPEAKER_1", resp.Summary[0].Speaker)
		assert.Equal(t, "SPEAKER_0", resp.Summary[1].Speaker)
		assert.Equal(t, "/api/v1/analyses/"+resp.ID+"/csv", resp.Links["csv"])
		assert.Equal(t, 1, server.store.Len())
		assert.Equal(t, 1, server.model.Calls)
	})

	t.Run("should apply configured defaults for missing fields", func(t *testing.T) {
		server := newTestServer(t, sentiment.NewLexiconAnalyzer(), sentiment.FailFast)

		rec := server.do(uploadRequest(t, nil, true))

		require.Equal(t, http.StatusCreated, rec.Code)
		resp := decodeAnalysis(t, rec)
		assert.Equal(t, "english", resp.Language)
		assert.Equal(t, 2, resp.NumSpeakers)
	})

	t.Run("should reject a request without a file", func(t *testing.T) {
		server := newTestServer(t, sentiment.NewLexiconAnalyzer(), sentiment.FailFast)

		rec := server.do(uploadRequest(t, map[string]string{"language": "english"}, false))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Invalid request: file: is required", decodeError(t, rec))
	})

	t.Run("should answer 413 for an upload over the size limit", func(t *testing.T) {
		// Arrange
		server := newTestServer(t, sentiment.NewLexiconAnalyzer(), sentiment.FailFast)
		var body bytes.Buffer
		writer := multipart.NewWriter(&body)
		part, err := writer.CreateFormFile("file", "long.wav")
		require.NoError(t, err)
		_, err = part.Write(bytes.Repeat([]byte{0}, 2<<20))
		require.NoError(t, err)
		require.NoError(t, writer.Close())
		req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses", &body)
		req.Header.Set("Content-Type", writer.FormDataContentType())

		// Act
		rec := server.do(req)

		// Assert
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Equal(t, "Request body exceeds the 1 MB limit.", decodeError(t, rec))
		assert.Equal(t, 0, server.model.Calls)
	})

	t.Run("should reject out of range speaker counts", func(t *testing.T) {
		server := newTestServer(t, sentiment.NewLexiconAnalyzer(), sentiment.FailFast)

		rec := server.do(uploadRequest(t, map[string]string{"num_speakers": "11"}, true))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decodeError(t, rec), "num_speakers: must be at most 10")
		assert.Equal(t, 0, server.model.Calls)
	})

	t.Run("should reject a non-numeric speaker count", func(t *testing.T) {
		server := newTestServer(t, sentiment.NewLexiconAnalyzer(), sentiment.FailFast)

		rec := server.do(uploadRequest(t, map[string]string{"num_speakers": "two"}, true))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("should reject an unsupported language", func(t *testing.T) {
		server := newTestServer(t, sentiment.NewLexiconAnalyzer(), sentiment.FailFast)

		rec := server.do(uploadRequest(t, map[string]string{"language": "latin"}, true))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decodeError(t, rec), "language: must be one of")
	})

	t.Run("should answer 503 when the model cannot load", func(t *testing.T) {
		server := newTestServer(t, sentiment.NewLexiconAnalyzer(), sentiment.FailFast)
		server.model.LoadErr = errors.New("no weights")

		rec := server.do(uploadRequest(t, nil, true))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, decodeError(t, rec), "Could not load the transcription model")
		assert.Equal(t, 0, server.store.Len())
	})

	t.Run("should answer 502 when the audio cannot be transcribed", func(t *testing.T) {
		server := newTestServer(t, sentiment.NewLexiconAnalyzer(), sentiment.FailFast)
		server.model.TranscribeErr = errors.New("bad wav")

		rec := server.do(uploadRequest(t, nil, true))

		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Contains(t, decodeError(t, rec), "Could not transcribe this audio")
	})
}

func TestCreateTranscriptAnalysis(t *testing.T) {
	t.Run("should analyze a posted transcript", func(t *testing.T) {
		server := newTestServer(t, sentiment.NewLexiconAnalyzer(), sentiment.FailFast)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses/transcript", strings.NewReader(exampleTranscript))

		rec := server.do(req)

		require.Equal(t, http.StatusCreated, rec.Code)
		resp := decodeAnalysis(t, rec)
		assert.Equal(t, "transcript", resp.Source)
		assert.Len(t, resp.Utterances, 2)
		assert.Equal(t, 0, server.model.Calls)
	})

	t.Run("should accept an empty transcript", func(t *testing.T) {
		server := newTestServer(t, sentiment.NewLexiconAnalyzer(), sentiment.FailFast)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses/transcript", strings.NewReader("no utterances here"))

		rec := server.do(req)

		require.Equal(t, http.StatusCreated, rec.Code)
		resp := decodeAnalysis(t, rec)
		assert.Empty(t, resp.Utterances)
		assert.Empty(t, resp.Summary)
		assert.Nil(t, resp.OverallMean)
		assert.Equal(t, 1, resp.SkippedLines)
	})

	t.Run("should answer 500 with a scoring message when scoring fails", func(t *testing.T) {
		failing := sentiment.ScorerFunc(func(ctx context.Context, text string) (float64, error) {
			return 0, errors.New("analyzer offline")
		})
		server := newTestServer(t, failing, sentiment.FailFast)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses/transcript", strings.NewReader(exampleTranscript))

		rec := server.do(req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Could not score sentiment for utterance 1 (SPEAKER_0).", decodeError(t, rec))
	})

	t.Run("should encode missing scores as null in tolerant mode", func(t *testing.T) {
		failing := sentiment.ScorerFunc(func(ctx context.Context, text string) (float64, error) {
			return 0, errors.New("analyzer offline")
		})
		server := newTestServer(t, failing, sentiment.Tolerant)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses/transcript", strings.NewReader(exampleTranscript))

		rec := server.do(req)

		require.Equal(t, http.StatusCreated, rec.Code)
		resp := decodeAnalysis(t, rec)
		assert.Equal(t, 2, resp.ScoringFailures)
		assert.Nil(t, resp.Utterances[0].SentimentScore)
		assert.Nil(t, resp.Summary[0].MeanSentimentScore)
	})
}

func TestAnalysisResources(t *testing.T) {
	server := newTestServer(t, sentiment.NewLexiconAnalyzer(), sentiment.FailFast)
	created := server.do(httptest.NewRequest(http.MethodPost, "/api/v1/analyses/transcript", strings.NewReader(exampleTranscript)))
	require.Equal(t, http.StatusCreated, created.Code)
	id := decodeAnalysis(t, created).ID

	t.Run("should fetch a stored analysis", func(t *testing.T) {
		rec := server.do(httptest.NewRequest(http.MethodGet, "/api/v1/analyses/"+id, nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, id, decodeAnalysis(t, rec).ID)
	})

	t.Run("should list stored analyses", func(t *testing.T) {
		rec := server.do(httptest.NewRequest(http.MethodGet, "/api/v1/analyses", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var items []analysisListItem
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
		require.Len(t, items, 1)
		assert.Equal(t, 2, items[0].Speakers)
	})

	t.Run("should download the CSV as an attachment", func(t *testing.T) {
		rec := server.do(httptest.NewRequest(http.MethodGet, "/api/v1/analyses/"+id+"/csv", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.Equal(t, `attachment; filename="transcription_results.csv"`, rec.Header().Get("Content-Disposition"))
		rows, err := report.ReadCSV(rec.Body)
		require.NoError(t, err)
		assert.Len(t, rows, 2)
	})

	t.Run("should render the chart", func(t *testing.T) {
		rec := server.do(httptest.NewRequest(http.MethodGet, "/api/v1/analyses/"+id+"/chart.svg", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Body.String(), "Overall Sentiment by Speaker")
	})

	t.Run("should answer 404 for unknown analyses", func(t *testing.T) {
		for _, path := range []string{
			"/api/v1/analyses/00000000-0000-0000-0000-000000000000",
			"/api/v1/analyses/not-a-uuid/csv",
			"/api/v1/analyses/00000000-0000-0000-0000-000000000000/chart.svg",
		} {
			rec := server.do(httptest.NewRequest(http.MethodGet, path, nil))

			assert.Equal(t, http.StatusNotFound, rec.Code, path)
			assert.Equal(t, "Analysis not found.", decodeError(t, rec), path)
		}
	})

	t.Run("should delete an analysis", func(t *testing.T) {
		rec := server.do(httptest.NewRequest(http.MethodDelete, "/api/v1/analyses/"+id, nil))
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = server.do(httptest.NewRequest(http.MethodGet, "/api/v1/analyses/"+id, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestGetHealth(t *testing.T) {
	server := newTestServer(t, sentiment.NewLexiconAnalyzer(), sentiment.FailFast)

	rec := server.do(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(0), body["analyses"])
}

func TestCORS(t *testing.T) {
	server := newTestServer(t, sentiment.NewLexiconAnalyzer(), sentiment.FailFast)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/analyses", nil)
	req.Header.Set("Origin", "http://localhost:3000")

	rec := server.do(req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(transcriber.ErrInvalidRequest))
	assert.Equal(t, http.StatusNotFound, statusFor(store.ErrNotFound))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(transcriber.ErrModelLoad))
	assert.Equal(t, http.StatusBadGateway, statusFor(transcriber.ErrTranscription))
	assert.Equal(t, http.StatusInternalServerError, statusFor(sentiment.ErrScoring))
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(context.DeadlineExceeded))
	assert.Equal(t, http.StatusRequestEntityTooLarge, statusFor(fmt.Errorf("%w: could not read upload: %w", transcriber.ErrInvalidRequest, &http.MaxBytesError{Limit: 1 << 20})))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("other")))
}

func TestMiddlewareRecoversPanics(t *testing.T) {
	m := NewMiddleware(zap.NewNop())
	handler := m.RequestID(m.Logger(m.Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
