package sentiment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"go.uber.org/zap"
)

const defaultOpenAIModel = "gpt-4o-mini"

const openAIScorerInstructions = `You rate the sentiment of one utterance from a conversation transcript.
Return a compound score between -1 (most negative) and 1 (most positive); 0 is neutral.
Judge only the utterance text. Do not explain.`

// compoundResponse is the structured output requested from the model
type compoundResponse struct {
	Compound float64 `json:"compound" jsonschema:"minimum=-1,maximum=1"`
	Label    string  `json:"label" jsonschema:"enum=negative,enum=neutral,enum=positive"`
}

var compoundSchema = generateSchema[compoundResponse]()

// OpenAIConfig configures the OpenAI-backed scorer
type OpenAIConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	MaxRetries int
	RetryWait  time.Duration
}

// OpenAIScorer asks an OpenAI model for a compound score through the
// Responses API with a strict JSON schema
type OpenAIScorer struct {
	client     openai.Client
	model      string
	maxRetries int
	retryWait  time.Duration
	logger     *zap.Logger
}

// NewOpenAIScorer creates a scorer from the given configuration
func NewOpenAIScorer(cfg OpenAIConfig, logger *zap.Logger) (*OpenAIScorer, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai scorer: missing API key")
	}
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIScorer{
		client:     openai.NewClient(opts...),
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
		retryWait:  cfg.RetryWait,
		logger:     logger,
	}, nil
}

// Score implements Scorer
func (s *OpenAIScorer) Score(ctx context.Context, text string) (float64, error) {
	if strings.TrimSpace(text) == "" {
		return 0, nil
	}

	format := responses.ResponseFormatTextConfigUnionParam{
		OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
			Name:        "UtteranceSentiment",
			Schema:      compoundSchema,
			Strict:      openai.Bool(true),
			Description: openai.String("Compound sentiment of one utterance"),
			Type:        "json_schema",
		},
	}

	params := responses.ResponseNewParams{
		Model:           s.model,
		MaxOutputTokens: openai.Int(100),
		Instructions:    openai.String(openAIScorerInstructions),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(text, responses.EasyInputMessageRoleUser),
			},
		},
		Text: responses.ResponseTextConfigParam{
			Format: format,
		},
	}

	resp, err := s.callWithRetry(ctx, params)
	if err != nil {
		return 0, fmt.Errorf("openai scorer: %w", err)
	}

	var out compoundResponse
	if err := decodeModelJSON(resp.OutputText(), &out); err != nil {
		return 0, fmt.Errorf("openai scorer: unmarshal compound: %w", err)
	}

	s.logger.Debug("openai sentiment scored",
		zap.String("model", s.model),
		zap.Float64("compound", out.Compound),
		zap.String("label", out.Label))

	return out.Compound, nil
}

func (s *OpenAIScorer) callWithRetry(ctx context.Context, params responses.ResponseNewParams) (*responses.Response, error) {
	var lastErr error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		resp, err := s.client.Responses.New(ctx, params)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !isRetryable(err) || attempt == s.maxRetries-1 {
			break
		}

		wait := s.retryWait * time.Duration(attempt+1)
		s.logger.Warn("openai request failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, lastErr
}

// isRetryable reports whether a failed call is worth repeating: rate limits,
// server errors and transport failures are, other API errors are not
func isRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= http.StatusInternalServerError
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// decodeModelJSON tolerates whitespace or stray prose around the JSON object
func decodeModelJSON(outputText string, v any) error {
	s := strings.TrimSpace(outputText)
	if s == "" {
		return errors.New("empty model output")
	}
	if err := json.Unmarshal([]byte(s), v); err == nil {
		return nil
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON object in model output %q", s)
	}
	return json.Unmarshal([]byte(s[start:end+1]), v)
}

func generateSchema[T any]() map[string]interface{} {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	schema := reflector.Reflect(v)

	b, err := schema.MarshalJSON()
	if err != nil {
		panic(err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		panic(err)
	}

	// strict mode wants every property required and no extras
	m["additionalProperties"] = false
	if properties, ok := m["properties"].(map[string]interface{}); ok {
		required := make([]string, 0, len(properties))
		for name := range properties {
			required = append(required, name)
		}
		m["required"] = required
	}
	return m
}
