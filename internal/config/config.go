package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Supported values for sentiment.backend
const (
	BackendLexicon = "lexicon"
	BackendOpenAI  = "openai"
)

// Supported values for transcriber.backend
const (
	TranscriberHTTP   = "http"
	TranscriberStatic = "static"
)

// Supported values for store.backend
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Languages offered for transcription, matching the analysis UI choices
var Languages = []string{"english", "spanish", "french", "german", "italian"}

// Bounds for analysis.num_speakers
const (
	MinSpeakers = 1
	MaxSpeakers = 10
)

// Configuration provides type-safe access to application settings
type Configuration struct {
	viper *viper.Viper
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("transcriber.backend", TranscriberHTTP)
	v.SetDefault("transcriber.transcript_file", "")
	v.SetDefault("transcriber.url", "http://localhost:8387")
	v.SetDefault("transcriber.timeout_sec", 300)
	v.SetDefault("transcriber.model", "large-v2")
	v.SetDefault("analysis.language", "english")
	v.SetDefault("analysis.num_speakers", 2)
	v.SetDefault("analysis.strict_timing", false)
	v.SetDefault("sentiment.backend", BackendLexicon)
	v.SetDefault("sentiment.model", "gpt-4o-mini")
	v.SetDefault("sentiment.tolerant", false)
	v.SetDefault("openai.api_key", "")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.max_upload_mb", 100)
	v.SetDefault("server.cors_allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("output.dir", ".")
	v.SetDefault("store.backend", StoreMemory)
	v.SetDefault("store.path", "analyses.db")
	v.SetDefault("store.capacity", 500)
}

// NewConfiguration creates a new Configuration instance with default settings
func NewConfiguration() *Configuration {
	v := viper.New()
	setDefaults(v)
	return &Configuration{viper: v}
}

// NewConfigurationFromFile creates a Configuration instance from a config file
func NewConfigurationFromFile(configFile string) (*Configuration, error) {
	v := viper.New()
	v.SetConfigFile(configFile)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	return &Configuration{viper: v}, nil
}

// NewConfigurationFromEnv creates a Configuration instance that reads from environment variables
func NewConfigurationFromEnv() (*Configuration, error) {
	v := viper.New()
	setDefaults(v)

	// SENTIMENT_ANALYSIS_LANGUAGE -> analysis.language
	v.SetEnvPrefix("SENTIMENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unprefixed names commonly set by deployments
	bindings := map[string]string{
		"transcriber.url": "TRANSCRIBER_URL",
		"openai.api_key":  "OPENAI_API_KEY",
		"server.addr":     "SERVER_ADDR",
		"log.level":       "LOG_LEVEL",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, "SENTIMENT_"+env, env); err != nil {
			return nil, fmt.Errorf("failed to bind environment variable %s: %w", env, err)
		}
	}

	return &Configuration{viper: v}, nil
}

// Set overrides a setting, typically from a command-line flag
func (c *Configuration) Set(key string, value any) {
	c.viper.Set(key, value)
}

// Validate checks that the settings describe a runnable configuration
func (c *Configuration) Validate() error {
	language := c.GetLanguage()
	if !IsSupportedLanguage(language) {
		return fmt.Errorf("unsupported analysis.language %q: must be one of %s", language, strings.Join(Languages, ", "))
	}

	speakers := c.GetNumSpeakers()
	if speakers < MinSpeakers || speakers > MaxSpeakers {
		return fmt.Errorf("analysis.num_speakers must be between %d and %d, got %d", MinSpeakers, MaxSpeakers, speakers)
	}

	switch c.GetSentimentBackend() {
	case BackendLexicon:
	case BackendOpenAI:
		if c.GetOpenAIAPIKey() == "" {
			return fmt.Errorf("openai.api_key is required when sentiment.backend is %s", BackendOpenAI)
		}
	default:
		return fmt.Errorf("unsupported sentiment.backend %q", c.GetSentimentBackend())
	}

	switch c.GetTranscriberBackend() {
	case TranscriberHTTP:
	case TranscriberStatic:
		if c.GetTranscriptFile() == "" {
			return fmt.Errorf("transcriber.transcript_file is required when transcriber.backend is %s", TranscriberStatic)
		}
	default:
		return fmt.Errorf("unsupported transcriber.backend %q", c.GetTranscriberBackend())
	}

	switch c.GetStoreBackend() {
	case StoreMemory:
	case StoreSQLite:
		if c.GetStorePath() == "" {
			return fmt.Errorf("store.path is required when store.backend is %s", StoreSQLite)
		}
	default:
		return fmt.Errorf("unsupported store.backend %q", c.GetStoreBackend())
	}

	if c.GetTranscriberTimeout() <= 0 {
		return fmt.Errorf("transcriber.timeout_sec must be positive")
	}
	if c.GetMaxUploadBytes() <= 0 {
		return fmt.Errorf("server.max_upload_mb must be positive")
	}

	return nil
}

// IsSupportedLanguage reports whether language is one of Languages
func IsSupportedLanguage(language string) bool {
	for _, l := range Languages {
		if l == language {
			return true
		}
	}
	return false
}

// GetTranscriberBackend returns http or static
func (c *Configuration) GetTranscriberBackend() string {
	return strings.ToLower(c.viper.GetString("transcriber.backend"))
}

// GetTranscriptFile returns the diarized transcript replayed by the static backend
func (c *Configuration) GetTranscriptFile() string {
	return c.viper.GetString("transcriber.transcript_file")
}

// GetTranscriberURL returns the base URL of the diarizing transcription service
func (c *Configuration) GetTranscriberURL() string {
	return c.viper.GetString("transcriber.url")
}

// GetTranscriberTimeout returns the per-request transcription timeout
func (c *Configuration) GetTranscriberTimeout() time.Duration {
	return time.Duration(c.viper.GetInt("transcriber.timeout_sec")) * time.Second
}

// GetTranscriberModel returns the transcription model name sent to the service
func (c *Configuration) GetTranscriberModel() string {
	return c.viper.GetString("transcriber.model")
}

// GetLanguage returns the default transcription language
func (c *Configuration) GetLanguage() string {
	return strings.ToLower(c.viper.GetString("analysis.language"))
}

// GetNumSpeakers returns the default expected speaker count
func (c *Configuration) GetNumSpeakers() int {
	return c.viper.GetInt("analysis.num_speakers")
}

// GetStrictTiming reports whether lines with end before start are rejected
func (c *Configuration) GetStrictTiming() bool {
	return c.viper.GetBool("analysis.strict_timing")
}

// GetSentimentBackend returns lexicon or openai
func (c *Configuration) GetSentimentBackend() string {
	return strings.ToLower(c.viper.GetString("sentiment.backend"))
}

// GetSentimentModel returns the OpenAI model used by the openai backend
func (c *Configuration) GetSentimentModel() string {
	return c.viper.GetString("sentiment.model")
}

// GetSentimentTolerant reports whether scoring failures become missing scores
func (c *Configuration) GetSentimentTolerant() bool {
	return c.viper.GetBool("sentiment.tolerant")
}

// GetOpenAIAPIKey returns the OpenAI API key
func (c *Configuration) GetOpenAIAPIKey() string {
	return c.viper.GetString("openai.api_key")
}

// GetServerAddr returns the HTTP listen address
func (c *Configuration) GetServerAddr() string {
	return c.viper.GetString("server.addr")
}

// GetMaxUploadBytes returns the upload limit for audio files
func (c *Configuration) GetMaxUploadBytes() int64 {
	return c.viper.GetInt64("server.max_upload_mb") << 20
}

// GetCORSAllowedOrigins returns the origins allowed by the HTTP API
func (c *Configuration) GetCORSAllowedOrigins() []string {
	return c.viper.GetStringSlice("server.cors_allowed_origins")
}

// GetLogLevel returns the configured log level
func (c *Configuration) GetLogLevel() string {
	return c.viper.GetString("log.level")
}

// GetLogFormat returns json or console
func (c *Configuration) GetLogFormat() string {
	return c.viper.GetString("log.format")
}

// GetOutputDir returns where the CLI writes CSV and chart files
func (c *Configuration) GetOutputDir() string {
	return c.viper.GetString("output.dir")
}

// GetStoreBackend returns memory or sqlite
func (c *Configuration) GetStoreBackend() string {
	return strings.ToLower(c.viper.GetString("store.backend"))
}

// GetStorePath returns the SQLite database file
func (c *Configuration) GetStorePath() string {
	return c.viper.GetString("store.path")
}

// GetStoreCapacity returns how many analyses are kept. Zero or less keeps all.
func (c *Configuration) GetStoreCapacity() int {
	return c.viper.GetInt("store.capacity")
}
