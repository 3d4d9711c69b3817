package app

import (
	"go.uber.org/zap"

	"github.com/evanladignon16-afk/VIBALERT-TTS-STT/internal/config"
	"github.com/evanladignon16-afk/VIBALERT-TTS-STT/internal/console"
	"github.com/evanladignon16-afk/VIBALERT-TTS-STT/internal/httpapi"
	"github.com/evanladignon16-afk/VIBALERT-TTS-STT/internal/observability"
	"github.com/evanladignon16-afk/VIBALERT-TTS-STT/internal/speech"
)

type SpeechInfo struct {
	Provider string
	Detail   string
}

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Consoles *console.Manager
	Binder   *console.Binder
	Metrics  *observability.Metrics
	Speech   SpeechInfo
}

func Build(cfg config.Config, log *zap.Logger) (*BuildResult, error) {
	if log == nil {
		log = zap.NewNop()
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	setup, err := resolveSpeechProviders(cfg)
	if err != nil {
		return nil, err
	}

	consoles := console.NewManager(cfg.ConsoleInactivityTimeout)

	binder := console.NewBinder(
		setup.recognizer,
		setup.synthesizer,
		speech.StreamConfig{
			Continuous:     cfg.RecognitionContinuous,
			InterimResults: cfg.RecognitionInterimResults,
			Language:       cfg.RecognitionLanguage,
		},
		cfg.OpenAITTSVoice,
		cfg.OpenAITTSFormat,
		consoles,
		metrics,
		log,
	)

	// An expired console severs its live connection, which force-stops any
	// active recognition session on the way out.
	consoles.SetExpireHook(func(c *console.Console) {
		metrics.ConsoleEvents.WithLabelValues("expired").Inc()
		log.Info("console expired", zap.String("console_id", c.ID))
		binder.CancelConsole(c.ID)
	})

	api := httpapi.New(cfg, consoles, binder, setup.synthesizer, metrics, log)

	return &BuildResult{
		Config:   cfg,
		API:      api,
		Consoles: consoles,
		Binder:   binder,
		Metrics:  metrics,
		Speech: SpeechInfo{
			Provider: setup.resolvedProvider,
			Detail:   setup.detail,
		},
	}, nil
}
