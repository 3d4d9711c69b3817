package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BindAddr != ":9090" {
		t.Fatalf("BindAddr = %q, want :9090", cfg.BindAddr)
	}
	if cfg.SpeechProvider != ProviderAuto {
		t.Fatalf("SpeechProvider = %q, want auto", cfg.SpeechProvider)
	}
	if cfg.MetricsNamespace != "vibalert" {
		t.Fatalf("MetricsNamespace = %q, want vibalert", cfg.MetricsNamespace)
	}
	if cfg.RecognitionLanguage != "en-US" {
		t.Fatalf("RecognitionLanguage = %q, want en-US", cfg.RecognitionLanguage)
	}
	if !cfg.RecognitionContinuous || !cfg.RecognitionInterimResults {
		t.Fatalf("recognition flags should default to true")
	}
	if cfg.ConsoleInactivityTimeout != 2*time.Minute {
		t.Fatalf("ConsoleInactivityTimeout = %v, want 2m", cfg.ConsoleInactivityTimeout)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_CONSOLE_INACTIVITY_TIMEOUT", "30s")
	t.Setenv("APP_ALLOW_ANY_ORIGIN", "yes")
	t.Setenv("RECOGNITION_INTERIM_RESULTS", "off")
	t.Setenv("SPEECH_PROVIDER", "mock")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ConsoleInactivityTimeout != 30*time.Second {
		t.Fatalf("ConsoleInactivityTimeout = %v, want 30s", cfg.ConsoleInactivityTimeout)
	}
	if !cfg.AllowAnyOrigin {
		t.Fatalf("AllowAnyOrigin should parse yes as true")
	}
	if cfg.RecognitionInterimResults {
		t.Fatalf("RecognitionInterimResults should parse off as false")
	}
	if cfg.SpeechProvider != ProviderMock {
		t.Fatalf("SpeechProvider = %q, want mock", cfg.SpeechProvider)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string][2]string{
		"tiny inactivity": {"APP_CONSOLE_INACTIVITY_TIMEOUT", "1s"},
		"bad duration":    {"APP_SHUTDOWN_TIMEOUT", "soon"},
		"bad bool":        {"APP_ALLOW_ANY_ORIGIN", "maybe"},
		"bad provider":    {"SPEECH_PROVIDER", "whisper"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(kv[0], kv[1])
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", kv[0], kv[1])
			}
		})
	}
}

func TestLoadOpenAIProviderRequiresKey(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("SPEECH_PROVIDER", "openai")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error when openai provider has no API key")
	}

	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.OpenAISTTModel != "whisper-1" || cfg.OpenAITTSModel != "tts-1" {
		t.Fatalf("unexpected model defaults: %+v", cfg)
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_CONSOLE_INACTIVITY_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"SPEECH_PROVIDER",
		"OPENAI_API_KEY",
		"OPENAI_STT_MODEL",
		"OPENAI_TTS_MODEL",
		"OPENAI_TTS_VOICE",
		"OPENAI_TTS_FORMAT",
		"RECOGNITION_LANGUAGE",
		"RECOGNITION_CONTINUOUS",
		"RECOGNITION_INTERIM_RESULTS",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
