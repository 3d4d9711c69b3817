package console

import (
	"context"
	"encoding/base64"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/evanladignon16-afk/VIBALERT-TTS-STT/internal/observability"
	"github.com/evanladignon16-afk/VIBALERT-TTS-STT/internal/protocol"
	"github.com/evanladignon16-afk/VIBALERT-TTS-STT/internal/recognition"
	"github.com/evanladignon16-afk/VIBALERT-TTS-STT/internal/speech"
	"github.com/evanladignon16-afk/VIBALERT-TTS-STT/internal/synthesis"
)

// Binder wires one console connection to a fresh recognition controller and
// speaker. Everything the pair emits is translated into protocol messages on
// the outbound channel.
type Binder struct {
	recognizer  speech.RecognitionProvider
	synthesizer speech.SynthesisProvider
	streamCfg   speech.StreamConfig
	voice       string
	format      string
	manager     *Manager
	metrics     *observability.Metrics
	log         *zap.Logger

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

func NewBinder(
	recognizer speech.RecognitionProvider,
	synthesizer speech.SynthesisProvider,
	streamCfg speech.StreamConfig,
	voice, format string,
	manager *Manager,
	metrics *observability.Metrics,
	log *zap.Logger,
) *Binder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Binder{
		recognizer:  recognizer,
		synthesizer: synthesizer,
		streamCfg:   streamCfg,
		voice:       voice,
		format:      format,
		manager:     manager,
		metrics:     metrics,
		log:         log,
		active:      make(map[string]context.CancelFunc),
	}
}

// CancelConsole severs the connection attached to a console, if any. The
// connection's own teardown path then force-stops the recognition session.
func (b *Binder) CancelConsole(id string) {
	b.mu.Lock()
	cancel := b.active[id]
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// RunConnection services one attached console until the inbound channel
// closes or the context is cancelled. The controller is always torn down on
// the way out so no capture session outlives the connection.
func (b *Binder) RunConnection(ctx context.Context, c *Console, inbound <-chan any, outbound chan<- any) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	b.mu.Lock()
	b.active[c.ID] = cancel
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.active, c.ID)
		b.mu.Unlock()
	}()

	log := b.log.With(zap.String("console_id", c.ID))
	sink := newOutboundSink(c.ID, outbound, b.metrics, log)

	cfg := b.streamCfg
	if c.Language != "" {
		cfg.Language = c.Language
	}
	voice := b.voice
	if c.Voice != "" {
		voice = c.Voice
	}

	ctrl := recognition.NewController(b.recognizer, cfg, sink, log)
	speaker := synthesis.NewSpeaker(b.synthesizer, voice, b.format, sink, log)

	b.metrics.ActiveConsoles.Inc()
	b.metrics.ConsoleEvents.WithLabelValues("attached").Inc()
	defer func() {
		speaker.Stop()
		ctrl.Teardown()
		b.metrics.ActiveConsoles.Dec()
		b.metrics.ConsoleEvents.WithLabelValues("detached").Inc()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-inbound:
			if !ok {
				return
			}
			if err := b.manager.Touch(c.ID); err != nil {
				log.Debug("touch failed", zap.Error(err))
			}
			b.dispatch(ctx, ctrl, speaker, sink, msg)
		}
	}
}

func (b *Binder) dispatch(ctx context.Context, ctrl *recognition.Controller, speaker *synthesis.Speaker, sink *outboundSink, msg any) {
	switch m := msg.(type) {
	case protocol.ClientControl:
		switch m.Action {
		case protocol.ActionStart:
			b.metrics.RecognitionEvents.WithLabelValues("start_requested").Inc()
			// Unsupported and provider failures surface through the sink.
			_ = ctrl.Start(ctx)
		case protocol.ActionStop:
			b.metrics.RecognitionEvents.WithLabelValues("stop_requested").Inc()
			ctrl.Stop(ctx)
		case protocol.ActionClear:
			b.metrics.RecognitionEvents.WithLabelValues("clear_requested").Inc()
			ctrl.Clear()
		}
	case protocol.ClientAudioChunk:
		pcm, err := base64.StdEncoding.DecodeString(m.PCM16Base64)
		if err != nil {
			b.log.Debug("bad audio chunk", zap.Int("seq", m.Seq), zap.Error(err))
			return
		}
		ctrl.ForwardAudio(ctx, pcm, m.SampleRate, m.Commit)
	case protocol.SpeakRequest:
		if _, err := speaker.Speak(ctx, m.Text); err != nil {
			sink.SpeakError("", err.Error())
		}
	case protocol.SpeakStop:
		speaker.Stop()
	}
}

// outboundSink fans controller and speaker events into the connection's
// outbound channel. Sends never block: when the writer cannot keep up the
// message is dropped and counted, because a stalled client must not stall
// the recognition pump.
type outboundSink struct {
	consoleID string
	outbound  chan<- any
	metrics   *observability.Metrics
	log       *zap.Logger

	mu               sync.Mutex
	listeningSince   time.Time
	firstPartialSeen bool
}

func newOutboundSink(consoleID string, outbound chan<- any, metrics *observability.Metrics, log *zap.Logger) *outboundSink {
	return &outboundSink{
		consoleID: consoleID,
		outbound:  outbound,
		metrics:   metrics,
		log:       log,
	}
}

func (s *outboundSink) send(msg any) {
	msgType, _ := protocol.MessageTypeOf(msg)
	select {
	case s.outbound <- msg:
		s.metrics.ObserveOutboundMessage(string(msgType), "queued")
	default:
		s.metrics.ObserveOutboundMessage(string(msgType), "dropped")
		s.log.Warn("outbound queue full, dropping message", zap.String("type", string(msgType)))
	}
}

func (s *outboundSink) StateChanged(state recognition.SessionState, reason recognition.StateReason) {
	s.mu.Lock()
	if state == recognition.StateListening {
		s.listeningSince = time.Now()
		s.firstPartialSeen = false
	} else {
		s.listeningSince = time.Time{}
	}
	s.mu.Unlock()

	s.metrics.RecognitionEvents.WithLabelValues(string(reason)).Inc()
	s.send(protocol.StateChanged{
		Type:      protocol.TypeStateChanged,
		ConsoleID: s.consoleID,
		State:     string(state),
		Reason:    string(reason),
	})
}

func (s *outboundSink) PartialTranscript(text string) {
	s.mu.Lock()
	if text != "" && !s.firstPartialSeen && !s.listeningSince.IsZero() {
		s.firstPartialSeen = true
		s.metrics.ObserveFirstPartialLatency(time.Since(s.listeningSince))
	}
	s.mu.Unlock()

	s.send(protocol.TranscriptPartial{
		Type:      protocol.TypeTranscriptPartial,
		ConsoleID: s.consoleID,
		Text:      text,
	})
}

func (s *outboundSink) CommittedTranscript(fragment, full string) {
	s.send(protocol.TranscriptCommitted{
		Type:      protocol.TypeTranscriptCommitted,
		ConsoleID: s.consoleID,
		Fragment:  fragment,
		FullText:  full,
	})
}

func (s *outboundSink) RecognitionError(record recognition.ErrorRecord) {
	s.metrics.ProviderErrors.WithLabelValues(string(record.Kind), record.Code).Inc()
	s.send(protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		ConsoleID: s.consoleID,
		Kind:      string(record.Kind),
		Code:      record.Code,
		Message:   record.Message,
	})
}

func (s *outboundSink) SpeakStarted(id string) {
	s.send(protocol.SpeakStarted{
		Type:        protocol.TypeSpeakStarted,
		ConsoleID:   s.consoleID,
		UtteranceID: id,
	})
}

func (s *outboundSink) SpeakAudio(id string, audio []byte, format string) {
	s.send(protocol.SpeakAudio{
		Type:        protocol.TypeSpeakAudio,
		ConsoleID:   s.consoleID,
		UtteranceID: id,
		Format:      format,
		AudioBase64: base64.StdEncoding.EncodeToString(audio),
	})
}

func (s *outboundSink) SpeakDone(id string) {
	s.send(protocol.SpeakDone{
		Type:        protocol.TypeSpeakDone,
		ConsoleID:   s.consoleID,
		UtteranceID: id,
	})
}

func (s *outboundSink) SpeakStopped(id string) {
	s.send(protocol.SpeakStopped{
		Type:        protocol.TypeSpeakStopped,
		ConsoleID:   s.consoleID,
		UtteranceID: id,
	})
}

func (s *outboundSink) SpeakError(id, detail string) {
	s.send(protocol.SpeakError{
		Type:        protocol.TypeSpeakError,
		ConsoleID:   s.consoleID,
		UtteranceID: id,
		Detail:      detail,
	})
}
