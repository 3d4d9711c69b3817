package synthesis

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/evanladignon16-afk/VIBALERT-TTS-STT/internal/speech"
)

// ErrSynthesisUnavailable is returned by Speak when no synthesis backend is
// configured in the current runtime.
var ErrSynthesisUnavailable = errors.New("speech synthesis unavailable")

// State is the speaking toggle: exactly speaking or not speaking.
type State string

const (
	StateIdle     State = "idle"
	StateSpeaking State = "speaking"
)

// EventSink receives utterance lifecycle callbacks bound for the UI surface.
type EventSink interface {
	SpeakStarted(id string)
	SpeakAudio(id string, audio []byte, format string)
	SpeakDone(id string)
	SpeakStopped(id string)
	SpeakError(id string, detail string)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) SpeakStarted(string)               {}
func (NopSink) SpeakAudio(string, []byte, string) {}
func (NopSink) SpeakDone(string)                  {}
func (NopSink) SpeakStopped(string)               {}
func (NopSink) SpeakError(string, string)         {}

// Speaker is a thin pass-through to the synthesis provider. One utterance is
// active at a time; a new Speak cancels the previous one, and Stop cancels
// without replacement. The speaking state is toggled by the done, stopped,
// and error outcomes.
type Speaker struct {
	provider speech.SynthesisProvider
	sink     EventSink
	log      *zap.Logger
	voice    string
	format   string

	mu      sync.Mutex
	state   State
	cancel  context.CancelFunc
	current string
}

func NewSpeaker(provider speech.SynthesisProvider, voice, format string, sink EventSink, log *zap.Logger) *Speaker {
	if sink == nil {
		sink = NopSink{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Speaker{
		provider: provider,
		sink:     sink,
		log:      log,
		voice:    voice,
		format:   format,
		state:    StateIdle,
	}
}

// Speak sanitizes text and synthesizes it asynchronously, returning the
// utterance ID. Completion is reported through the sink.
func (s *Speaker) Speak(ctx context.Context, text string) (string, error) {
	text = SanitizeText(text)
	if text == "" {
		return "", speech.ErrEmptyUtterance
	}
	if s.provider == nil || !s.provider.Available() {
		return "", ErrSynthesisUnavailable
	}

	id := uuid.NewString()
	utteranceCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.current = id
	s.state = StateSpeaking
	s.mu.Unlock()

	s.sink.SpeakStarted(id)
	go s.run(utteranceCtx, id, text)
	return id, nil
}

func (s *Speaker) run(ctx context.Context, id, text string) {
	audio, format, err := s.provider.Synthesize(ctx, speech.SynthesisRequest{
		Text:   text,
		Voice:  s.voice,
		Format: s.format,
	})

	s.mu.Lock()
	isCurrent := s.current == id
	if isCurrent {
		s.state = StateIdle
		s.cancel = nil
		s.current = ""
	}
	s.mu.Unlock()

	switch {
	case err == nil:
		if !isCurrent {
			// Superseded by a newer utterance; drop the late audio.
			return
		}
		s.sink.SpeakAudio(id, audio, format)
		s.sink.SpeakDone(id)
	case errors.Is(err, context.Canceled):
		s.sink.SpeakStopped(id)
	default:
		s.log.Warn("synthesis failed", zap.String("utterance_id", id), zap.Error(err))
		s.sink.SpeakError(id, err.Error())
	}
}

// Stop cancels the active utterance, if any. The stopped callback follows
// asynchronously.
func (s *Speaker) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// State reports whether the speaker is currently speaking.
func (s *Speaker) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
