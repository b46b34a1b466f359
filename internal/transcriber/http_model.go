package transcriber

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultServiceURL   = "http://localhost:8387"
	defaultServiceModel = "large-v2"
	defaultTimeout      = 300 * time.Second
	maxErrorBody        = 4 << 10
)

// HTTPConfig holds configuration for the diarizing transcription service
type HTTPConfig struct {
	URL     string
	Model   string
	Timeout time.Duration
}

// HTTPModel implements Model against a diarizing Whisper sidecar that
// accepts multipart uploads on /transcribe and answers /health
type HTTPModel struct {
	cfg    HTTPConfig
	client *http.Client
	logger *zap.Logger
}

type transcribeResponse struct {
	Transcript string `json:"transcript"`
	Text       string `json:"text"`
}

// NewHTTPModel creates a new HTTPModel instance
func NewHTTPModel(cfg HTTPConfig, logger *zap.Logger) *HTTPModel {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.URL == "" {
		cfg.URL = defaultServiceURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultServiceModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")

	return &HTTPModel{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Load checks that the service is up and has its model ready
func (m *HTTPModel) Load(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.cfg.URL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("transcription service unreachable at %s: %w", m.cfg.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("transcription service not ready (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	m.logger.Debug("transcription service healthy", zap.String("url", m.cfg.URL), zap.String("model", m.cfg.Model))
	return nil
}

// Transcribe streams the audio to the service and returns its transcript
func (m *HTTPModel) Transcribe(ctx context.Context, req Request) (string, error) {
	body, contentType := m.encodeRequest(req)
	defer body.Close()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.URL+"/transcribe", body)
	if err != nil {
		return "", fmt.Errorf("failed to create transcription request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json, text/plain")

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("transcription service error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read transcription response: %w", err)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		return string(raw), nil
	}

	var decoded transcribeResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("failed to decode transcription response: %w", err)
	}
	if decoded.Transcript != "" {
		return decoded.Transcript, nil
	}
	return decoded.Text, nil
}

// encodeRequest builds the multipart body in a goroutine so large recordings
// are streamed rather than buffered
func (m *HTTPModel) encodeRequest(req Request) (io.ReadCloser, string) {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	fileName := req.FileName
	if fileName == "" {
		fileName = "audio.wav"
	}

	go func() {
		err := func() error {
			part, err := writer.CreateFormFile("file", fileName)
			if err != nil {
				return fmt.Errorf("failed to create form file: %w", err)
			}
			if _, err := io.Copy(part, req.Audio); err != nil {
				return fmt.Errorf("failed to write audio data: %w", err)
			}
			if err := writer.WriteField("language", req.Language); err != nil {
				return err
			}
			if err := writer.WriteField("num_speakers", strconv.Itoa(req.NumSpeakers)); err != nil {
				return err
			}
			if err := writer.WriteField("model", m.cfg.Model); err != nil {
				return err
			}
			return writer.Close()
		}()
		pw.CloseWithError(err)
	}()

	return pr, writer.FormDataContentType()
}

// Close releases idle connections to the service
func (m *HTTPModel) Close() error {
	m.client.CloseIdleConnections()
	return nil
}
