package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"speakersentiment/internal/config"
	"speakersentiment/internal/pipeline"
	"speakersentiment/internal/report"
	"speakersentiment/internal/sentiment"
	"speakersentiment/internal/store"
	"speakersentiment/internal/transcriber"
)

const maxTranscriptBytes = 8 << 20

// Handler contains the HTTP handlers for the API
type Handler struct {
	pipeline *pipeline.Pipeline
	store    store.Repository
	config   *config.Configuration
	logger   *zap.Logger
}

// NewHandler creates a new API handler
func NewHandler(p *pipeline.Pipeline, analyses store.Repository, cfg *config.Configuration, logger *zap.Logger) *Handler {
	return &Handler{
		pipeline: p,
		store:    analyses,
		config:   cfg,
		logger:   logger.Named("api-handler"),
	}
}

type scoredRow struct {
	Speaker        string   `json:"speaker"`
	StartTime      string   `json:"start_time"`
	EndTime        string   `json:"end_time"`
	Text           string   `json:"text"`
	SentimentScore *float64 `json:"sentiment_score"`
}

type speakerRow struct {
	Speaker            string   `json:"speaker"`
	MeanSentimentScore *float64 `json:"mean_sentiment_score"`
	Utterances         int      `json:"utterances"`
	Scored             int      `json:"scored"`
}

type analysisResponse struct {
	ID              string            `json:"id"`
	Source          string            `json:"source"`
	Language        string            `json:"language,omitempty"`
	NumSpeakers     int               `json:"num_speakers,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	Utterances      []scoredRow       `json:"utterances"`
	Summary         []speakerRow      `json:"summary"`
	OverallMean     *float64          `json:"overall_mean"`
	SkippedLines    int               `json:"skipped_lines"`
	ScoringFailures int               `json:"scoring_failures"`
	Links           map[string]string `json:"links"`
}

type analysisListItem struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"created_at"`
	Utterances int       `json:"utterances"`
	Speakers   int       `json:"speakers"`
}

// finite maps NaN to JSON null
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func newAnalysisResponse(a *store.Analysis) analysisResponse {
	result := a.Result
	resp := analysisResponse{
		ID:              a.ID,
		Source:          a.Source,
		Language:        a.Language,
		NumSpeakers:     a.NumSpeakers,
		CreatedAt:       a.CreatedAt,
		Utterances:      make([]scoredRow, 0, len(result.Scored)),
		Summary:         make([]speakerRow, 0, len(result.Summary)),
		OverallMean:     finite(result.OverallMean()),
		SkippedLines:    result.Skipped,
		ScoringFailures: result.ScoringFailures,
		Links: map[string]string{
			"self":  "/api/v1/analyses/" + a.ID,
			"csv":   "/api/v1/analyses/" + a.ID + "/csv",
			"chart": "/api/v1/analyses/" + a.ID + "/chart.svg",
		},
	}

	for _, row := range result.Scored {
		resp.Utterances = append(resp.Utterances, scoredRow{
			Speaker:        row.Speaker,
			StartTime:      row.StartTime,
			EndTime:        row.EndTime,
			Text:           row.Text,
			SentimentScore: finite(row.SentimentScore),
		})
	}
	for _, s := range result.Summary {
		resp.Summary = append(resp.Summary, speakerRow{
			Speaker:            s.Speaker,
			MeanSentimentScore: finite(s.MeanSentimentScore),
			Utterances:         s.Utterances,
			Scored:             s.Scored,
		})
	}

	return resp
}

// GetHealth reports service status and analysis counters
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"analyses":    h.store.Len(),
		"performance": h.pipeline.GetPerformanceSummary(),
	})
}

// ListAnalyses returns stored analyses, newest first
func (h *Handler) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	analyses, err := h.store.List()
	if err != nil {
		h.writeError(w, err)
		return
	}
	items := make([]analysisListItem, 0, len(analyses))
	for _, a := range analyses {
		items = append(items, analysisListItem{
			ID:         a.ID,
			Source:     a.Source,
			CreatedAt:  a.CreatedAt,
			Utterances: len(a.Result.Scored),
			Speakers:   len(a.Result.Summary),
		})
	}
	h.writeJSON(w, http.StatusOK, items)
}

// CreateAudioAnalysis transcribes an uploaded recording and analyzes it.
// Form fields: file (required), language, num_speakers.
func (h *Handler) CreateAudioAnalysis(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.config.GetMaxUploadBytes())
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		h.writeError(w, fmt.Errorf("%w: could not read upload: %w", transcriber.ErrInvalidRequest, err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, fmt.Errorf("%w: file: is required", transcriber.ErrInvalidRequest))
		return
	}
	defer file.Close()

	language := r.FormValue("language")
	if language == "" {
		language = h.config.GetLanguage()
	}

	numSpeakers := h.config.GetNumSpeakers()
	if raw := r.FormValue("num_speakers"); raw != "" {
		numSpeakers, err = strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, fmt.Errorf("%w: num_speakers: must be an integer", transcriber.ErrInvalidRequest))
			return
		}
	}

	req := transcriber.Request{
		Audio:       file,
		FileName:    header.Filename,
		Language:    language,
		NumSpeakers: numSpeakers,
	}

	result, err := h.pipeline.AnalyzeAudio(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	analysis := &store.Analysis{
		Source:      header.Filename,
		Language:    language,
		NumSpeakers: numSpeakers,
		Result:      result,
	}
	if _, err := h.store.Save(analysis); err != nil {
		h.writeError(w, fmt.Errorf("failed to store analysis: %w", err))
		return
	}
	h.writeJSON(w, http.StatusCreated, newAnalysisResponse(analysis))
}

// CreateTranscriptAnalysis analyzes a diarized transcript sent as the body
func (h *Handler) CreateTranscriptAnalysis(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTranscriptBytes))
	if err != nil {
		h.writeError(w, fmt.Errorf("%w: could not read transcript: %w", transcriber.ErrInvalidRequest, err))
		return
	}

	result, err := h.pipeline.AnalyzeTranscript(r.Context(), string(body))
	if err != nil {
		h.writeError(w, err)
		return
	}

	analysis := &store.Analysis{Source: "transcript", Result: result}
	if _, err := h.store.Save(analysis); err != nil {
		h.writeError(w, fmt.Errorf("failed to store analysis: %w", err))
		return
	}
	h.writeJSON(w, http.StatusCreated, newAnalysisResponse(analysis))
}

// GetAnalysis returns one stored analysis
func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	analysis, err := h.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newAnalysisResponse(analysis))
}

// DeleteAnalysis removes a stored analysis
func (h *Handler) DeleteAnalysis(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetAnalysisCSV downloads the scored table as CSV
func (h *Handler) GetAnalysisCSV(w http.ResponseWriter, r *http.Request) {
	analysis, err := h.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := analysis.Result.WriteCSV(&buf); err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.DefaultCSVFileName))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// GetAnalysisChart renders the per-speaker chart as SVG
func (h *Handler) GetAnalysisChart(w http.ResponseWriter, r *http.Request) {
	analysis, err := h.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := analysis.Result.WriteChart(&buf, report.DefaultChartOptions()); err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/svg+xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// statusFor maps pipeline and store errors to HTTP status codes
func statusFor(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, transcriber.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, transcriber.ErrModelLoad):
		return http.StatusServiceUnavailable
	case errors.Is(err, transcriber.ErrTranscription):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, sentiment.ErrScoring):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	message := pipeline.Describe(err)
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, store.ErrNotFound):
		message = "Analysis not found."
	case errors.As(err, &maxErr):
		message = fmt.Sprintf("Request body exceeds the %d MB limit.", maxErr.Limit>>20)
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err), zap.Int("status", status))
	} else {
		h.logger.Debug("request rejected", zap.Error(err), zap.Int("status", status))
	}

	h.writeJSON(w, status, map[string]string{"error": message})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}
