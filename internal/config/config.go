package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Speech provider selection modes.
const (
	ProviderAuto   = "auto"
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// Config contains all runtime settings for the speech console service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	ConsoleInactivityTimeout time.Duration
	MetricsNamespace         string

	AllowAnyOrigin bool

	SpeechProvider string

	OpenAIAPIKey    string
	OpenAISTTModel  string
	OpenAITTSModel  string
	OpenAITTSVoice  string
	OpenAITTSFormat string

	RecognitionLanguage       string
	RecognitionContinuous     bool
	RecognitionInterimResults bool
}

// Load reads environment variables and applies safe defaults. A .env file in
// the working directory is merged in first when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "vibalert"),
		AllowAnyOrigin:   false,
		SpeechProvider:   envOrDefault("SPEECH_PROVIDER", ProviderAuto),
		OpenAIAPIKey:     stringsTrimSpace("OPENAI_API_KEY"),
		OpenAISTTModel:   envOrDefault("OPENAI_STT_MODEL", "whisper-1"),
		OpenAITTSModel:   envOrDefault("OPENAI_TTS_MODEL", "tts-1"),
		OpenAITTSVoice:   envOrDefault("OPENAI_TTS_VOICE", "alloy"),
		// wav plays directly in a browser; a pcm override is wrapped as WAV
		// by the preview endpoint.
		OpenAITTSFormat:           envOrDefault("OPENAI_TTS_FORMAT", "wav"),
		RecognitionLanguage:       envOrDefault("RECOGNITION_LANGUAGE", "en-US"),
		RecognitionContinuous:     true,
		RecognitionInterimResults: true,
		ShutdownTimeout:           15 * time.Second,
		ConsoleInactivityTimeout:  2 * time.Minute,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ConsoleInactivityTimeout, err = durationFromEnv("APP_CONSOLE_INACTIVITY_TIMEOUT", cfg.ConsoleInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.RecognitionContinuous, err = boolFromEnv("RECOGNITION_CONTINUOUS", cfg.RecognitionContinuous)
	if err != nil {
		return Config{}, err
	}
	cfg.RecognitionInterimResults, err = boolFromEnv("RECOGNITION_INTERIM_RESULTS", cfg.RecognitionInterimResults)
	if err != nil {
		return Config{}, err
	}

	if cfg.ConsoleInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_CONSOLE_INACTIVITY_TIMEOUT must be at least 5s")
	}
	switch cfg.SpeechProvider {
	case ProviderAuto, ProviderOpenAI, ProviderMock:
	default:
		return Config{}, fmt.Errorf("SPEECH_PROVIDER must be one of auto, openai, mock")
	}
	if cfg.SpeechProvider == ProviderOpenAI && cfg.OpenAIAPIKey == "" {
		return Config{}, fmt.Errorf("SPEECH_PROVIDER=openai requires OPENAI_API_KEY")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
