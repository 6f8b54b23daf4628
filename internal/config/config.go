package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"cuentos/internal/ai"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Config holds resolved configuration values after merging file, env, and flags.
type Config struct {
	Addr     string `json:"addr,omitempty" toml:"addr"`
	LogLevel string `json:"logLevel,omitempty" toml:"log_level"`

	TextProvider string  `json:"textProvider,omitempty" toml:"text_provider"`
	TextModel    string  `json:"textModel,omitempty" toml:"text_model"`
	TextBaseURL  string  `json:"textBaseUrl,omitempty" toml:"text_base_url"`
	Temperature  float64 `json:"temperature" toml:"temperature"`

	Voice           string  `json:"voice,omitempty" toml:"voice"`
	TTSModel        string  `json:"ttsModel,omitempty" toml:"tts_model"`
	OutputFormat    string  `json:"outputFormat,omitempty" toml:"output_format"`
	Stability       float64 `json:"stability" toml:"stability"`
	SimilarityBoost float64 `json:"similarityBoost" toml:"similarity_boost"`
	Style           float64 `json:"style" toml:"style"`
	SpeakerBoost    bool    `json:"speakerBoost" toml:"speaker_boost"`

	TextTimeoutSeconds   int `json:"textTimeoutSeconds,omitempty" toml:"text_timeout_seconds"`
	SpeechTimeoutSeconds int `json:"speechTimeoutSeconds,omitempty" toml:"speech_timeout_seconds"`
	QueueTimeoutSeconds  int `json:"queueTimeoutSeconds,omitempty" toml:"queue_timeout_seconds"`
	MaxConcurrent        int `json:"maxConcurrent,omitempty" toml:"max_concurrent"`
	MaxRetries           int `json:"maxRetries" toml:"max_retries"`
	RetryBaseDelayMillis int `json:"retryBaseDelayMillis,omitempty" toml:"retry_base_delay_millis"`

	Overwrite bool `json:"overwrite,omitempty" toml:"overwrite"`

	// Not persisted to file; sourced from env only.
	TextAPIKey       string `json:"-" toml:"-"`
	ElevenLabsAPIKey string `json:"-" toml:"-"`
}

// Overrides represents optional overrides from env or flags.
// Only non-nil pointers are applied during merge.
type Overrides struct {
	Addr          *string
	LogLevel      *string
	TextProvider  *string
	TextModel     *string
	TextBaseURL   *string
	Temperature   *float64
	Voice         *string
	TTSModel      *string
	MaxConcurrent *int
	MaxRetries    *int
	Overwrite     *bool
}

// Secrets are the provider keys read from the environment.
type Secrets struct {
	GeminiAPIKey     string
	OpenAIAPIKey     string
	ElevenLabsAPIKey string
}

func Default() Config {
	return Config{
		Addr:                 ":8080",
		LogLevel:             "info",
		TextProvider:         ProviderGemini,
		TextModel:            "gemini-3-flash",
		Temperature:          1.0,
		Voice:                "pqHfZKP75CvOlQylNhV4",
		TTSModel:             "eleven_turbo_v2_5",
		OutputFormat:         "mp3_44100_128",
		Stability:            0.45,
		SimilarityBoost:      0.8,
		Style:                0.0,
		SpeakerBoost:         true,
		TextTimeoutSeconds:   60,
		SpeechTimeoutSeconds: 120,
		QueueTimeoutSeconds:  30,
		MaxConcurrent:        8,
		MaxRetries:           2,
		RetryBaseDelayMillis: 500,
	}
}

// LoadFile reads a JSON or TOML config, chosen by extension. If the file is
// not found, returns defaults and no error.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}
	return cfg, nil
}

// LoadDotEnv populates the process environment from a .env file without
// overriding variables that are already set. A missing file is ignored.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// FromEnv reads env vars and returns overrides and the provider keys.
func FromEnv() (Overrides, Secrets) {
	var ov Overrides
	var sec Secrets

	if v, ok := os.LookupEnv("CUENTOS_ADDR"); ok {
		ov.Addr = &[]string{v}[0]
	}
	if v, ok := os.LookupEnv("CUENTOS_LOG_LEVEL"); ok {
		ov.LogLevel = &[]string{v}[0]
	}
	if v, ok := os.LookupEnv("CUENTOS_TEXT_PROVIDER"); ok {
		ov.TextProvider = &[]string{v}[0]
	}
	if v, ok := os.LookupEnv("CUENTOS_TEXT_MODEL"); ok {
		ov.TextModel = &[]string{v}[0]
	}
	if v, ok := os.LookupEnv("CUENTOS_TEXT_BASE_URL"); ok {
		ov.TextBaseURL = &[]string{v}[0]
	}
	if v, ok := os.LookupEnv("CUENTOS_TEMPERATURE"); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			ov.Temperature = &f
		}
	}
	if v, ok := os.LookupEnv("CUENTOS_VOICE"); ok {
		ov.Voice = &[]string{v}[0]
	}
	if v, ok := os.LookupEnv("CUENTOS_TTS_MODEL"); ok {
		ov.TTSModel = &[]string{v}[0]
	}
	if v, ok := os.LookupEnv("CUENTOS_MAX_CONCURRENT"); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			ov.MaxConcurrent = &n
		}
	}
	if v, ok := os.LookupEnv("CUENTOS_MAX_RETRIES"); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			ov.MaxRetries = &n
		}
	}
	if v, ok := os.LookupEnv("CUENTOS_OVERWRITE"); ok {
		if b, err := parseBool(v); err == nil {
			ov.Overwrite = &[]bool{b}[0]
		}
	}
	sec.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	sec.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	sec.ElevenLabsAPIKey = os.Getenv("ELEVENLABS_API_KEY")
	return ov, sec
}

func parseBool(s string) (bool, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return false, fmt.Errorf("empty bool")
	}
	if s == "1" || s == "t" || s == "true" || s == "y" || s == "yes" || s == "on" {
		return true, nil
	}
	if s == "0" || s == "f" || s == "false" || s == "n" || s == "no" || s == "off" {
		return false, nil
	}
	// try strconv
	return strconv.ParseBool(s)
}

// Merge applies overrides in order: file -> env -> flags, then picks the
// text key and base URL that match the resolved provider.
func Merge(fileCfg Config, env Overrides, flags Overrides, sec Secrets) Config {
	cfg := fileCfg

	apply := func(ov Overrides) {
		if ov.Addr != nil {
			cfg.Addr = *ov.Addr
		}
		if ov.LogLevel != nil {
			cfg.LogLevel = *ov.LogLevel
		}
		if ov.TextProvider != nil {
			cfg.TextProvider = *ov.TextProvider
		}
		if ov.TextModel != nil {
			cfg.TextModel = *ov.TextModel
		}
		if ov.TextBaseURL != nil {
			cfg.TextBaseURL = *ov.TextBaseURL
		}
		if ov.Temperature != nil {
			cfg.Temperature = *ov.Temperature
		}
		if ov.Voice != nil {
			cfg.Voice = *ov.Voice
		}
		if ov.TTSModel != nil {
			cfg.TTSModel = *ov.TTSModel
		}
		if ov.MaxConcurrent != nil {
			cfg.MaxConcurrent = *ov.MaxConcurrent
		}
		if ov.MaxRetries != nil {
			cfg.MaxRetries = *ov.MaxRetries
		}
		if ov.Overwrite != nil {
			cfg.Overwrite = *ov.Overwrite
		}
	}

	apply(env)
	apply(flags)

	cfg.TextProvider = strings.ToLower(strings.TrimSpace(cfg.TextProvider))
	switch cfg.TextProvider {
	case ProviderOpenAI:
		cfg.TextAPIKey = sec.OpenAIAPIKey
	default:
		cfg.TextAPIKey = sec.GeminiAPIKey
		if cfg.TextBaseURL == "" {
			cfg.TextBaseURL = ai.GeminiBaseURL
		}
	}
	cfg.ElevenLabsAPIKey = sec.ElevenLabsAPIKey
	return cfg
}

func (c Config) TextTimeout() time.Duration {
	return time.Duration(c.TextTimeoutSeconds) * time.Second
}

func (c Config) SpeechTimeout() time.Duration {
	return time.Duration(c.SpeechTimeoutSeconds) * time.Second
}

func (c Config) QueueTimeout() time.Duration {
	return time.Duration(c.QueueTimeoutSeconds) * time.Second
}

func (c Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMillis) * time.Millisecond
}

// Validation helpers
func ValidateForStory(cfg Config) error {
	switch cfg.TextProvider {
	case ProviderGemini:
		if cfg.TextAPIKey == "" {
			return errors.New("GEMINI_API_KEY is required for story generation")
		}
	case ProviderOpenAI:
		if cfg.TextAPIKey == "" {
			return errors.New("OPENAI_API_KEY is required for story generation")
		}
	default:
		return fmt.Errorf("unsupported text provider: %s", cfg.TextProvider)
	}
	if cfg.ElevenLabsAPIKey == "" {
		return errors.New("ELEVENLABS_API_KEY is required for narration")
	}
	if cfg.TextModel == "" {
		return errors.New("text model is required")
	}
	if cfg.TTSModel == "" {
		return errors.New("tts model is required")
	}
	if cfg.Voice == "" {
		return errors.New("voice is required")
	}
	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		return fmt.Errorf("temperature %.2f out of range 0-2", cfg.Temperature)
	}
	for name, v := range map[string]float64{
		"stability":       cfg.Stability,
		"similarityBoost": cfg.SimilarityBoost,
		"style":           cfg.Style,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s %.2f out of range 0-1", name, v)
		}
	}
	if cfg.MaxRetries < 0 {
		return errors.New("maxRetries cannot be negative")
	}
	return nil
}

func ValidateForServe(cfg Config) error {
	if err := ValidateForStory(cfg); err != nil {
		return err
	}
	if cfg.Addr == "" {
		return errors.New("listen address is required")
	}
	if cfg.MaxConcurrent < 1 {
		return errors.New("maxConcurrent must be at least 1")
	}
	return nil
}
