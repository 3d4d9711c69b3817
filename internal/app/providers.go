package app

import (
	"fmt"
	"strings"

	"github.com/evanladignon16-afk/VIBALERT-TTS-STT/internal/config"
	"github.com/evanladignon16-afk/VIBALERT-TTS-STT/internal/speech"
)

type speechSetup struct {
	recognizer       speech.RecognitionProvider
	synthesizer      speech.SynthesisProvider
	resolvedProvider string
	detail           string
}

// resolveSpeechProviders picks the recognition and synthesis backends for the
// configured mode. Auto prefers OpenAI when a key is present and keeps the
// mock as a fallback so a transient API failure degrades instead of dying.
func resolveSpeechProviders(cfg config.Config) (speechSetup, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.SpeechProvider))
	if mode == "" {
		mode = config.ProviderAuto
	}

	newOpenAI := func() *speech.OpenAIProvider {
		return speech.NewOpenAIProvider(speech.OpenAIConfig{
			APIKey:   cfg.OpenAIAPIKey,
			STTModel: cfg.OpenAISTTModel,
			TTSModel: cfg.OpenAITTSModel,
		})
	}

	switch mode {
	case config.ProviderOpenAI:
		p := newOpenAI()
		if !p.Available() {
			return speechSetup{}, fmt.Errorf("SPEECH_PROVIDER=openai but OPENAI_API_KEY is not set")
		}
		return speechSetup{
			recognizer:       p,
			synthesizer:      p,
			resolvedProvider: config.ProviderOpenAI,
			detail:           "openai " + cfg.OpenAISTTModel,
		}, nil
	case config.ProviderMock:
		p := speech.NewMockProvider()
		return speechSetup{
			recognizer:       p,
			synthesizer:      p,
			resolvedProvider: config.ProviderMock,
			detail:           "mock",
		}, nil
	case config.ProviderAuto:
		mock := speech.NewMockProvider()
		primary := newOpenAI()
		if !primary.Available() {
			return speechSetup{
				recognizer:       mock,
				synthesizer:      mock,
				resolvedProvider: config.ProviderMock,
				detail:           "mock (no OpenAI key)",
			}, nil
		}
		rec, synth := speech.NewFailoverProviderPair(primary, primary, mock, mock)
		return speechSetup{
			recognizer:       rec,
			synthesizer:      synth,
			resolvedProvider: config.ProviderAuto,
			detail:           "openai with mock fallback",
		}, nil
	default:
		return speechSetup{}, fmt.Errorf("unknown speech provider %q", mode)
	}
}
