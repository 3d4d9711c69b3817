package recognition

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/evanladignon16-afk/VIBALERT-TTS-STT/internal/speech"
)

// SessionState models the recognition lifecycle. An errored session is
// reported as idle with a populated ErrorRecord; listening is known to have
// stopped either way.
type SessionState string

const (
	StateIdle      SessionState = "idle"
	StateListening SessionState = "listening"
)

// StateReason provides a structured reason for state transitions.
type StateReason string

const (
	ReasonListeningStarted StateReason = "listening_started"
	ReasonStartFailed      StateReason = "start_failed"
	ReasonSessionEnded     StateReason = "session_ended"
	ReasonRecognitionError StateReason = "recognition_error"
	ReasonTornDown         StateReason = "torn_down"
)

// EventSink receives controller output bound for the UI surface.
type EventSink interface {
	StateChanged(state SessionState, reason StateReason)
	PartialTranscript(text string)
	CommittedTranscript(fragment string, full string)
	RecognitionError(record ErrorRecord)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) StateChanged(SessionState, StateReason) {}
func (NopSink) PartialTranscript(string)               {}
func (NopSink) CommittedTranscript(string, string)     {}
func (NopSink) RecognitionError(ErrorRecord)           {}

// Status is a point-in-time snapshot of the controller.
type Status struct {
	State     SessionState `json:"state"`
	Committed string       `json:"committed"`
	Pending   string       `json:"pending"`
	Full      string       `json:"full_transcript"`
	Error     *ErrorRecord `json:"error,omitempty"`
	Supported bool         `json:"supported"`
}

// Controller owns the lifecycle of one streaming recognition session: start,
// incremental result accumulation, error classification, stop and reset. It
// never touches raw audio; the provider owns the capture device.
type Controller struct {
	provider speech.RecognitionProvider
	cfg      speech.StreamConfig
	sink     EventSink
	log      *zap.Logger

	// Capability is probed once at construction. When false the controller
	// is permanently disabled and Start always fails with Unsupported.
	supported bool

	mu         sync.Mutex
	state      SessionState
	transcript transcript
	record     *ErrorRecord
	stream     speech.RecognitionStream
	pumpDone   chan struct{}
	closed     bool
}

// NewController probes provider availability once and returns a controller in
// the idle state. A nil sink or logger is replaced with a no-op.
func NewController(provider speech.RecognitionProvider, cfg speech.StreamConfig, sink EventSink, log *zap.Logger) *Controller {
	if sink == nil {
		sink = NopSink{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}
	return &Controller{
		provider:  provider,
		cfg:       cfg,
		sink:      sink,
		log:       log,
		supported: provider != nil && provider.Available(),
		state:     StateIdle,
	}
}

// Start begins a new recognition session. The state flips to listening
// optimistically, before the provider confirms; a later end or error event
// reverts it. Calling Start while already listening is a no-op. Provider
// start failures are swallowed back into idle and never returned.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrControllerClosed
	}
	if !c.supported {
		rec := unsupportedRecord()
		c.record = &rec
		c.mu.Unlock()
		c.sink.RecognitionError(rec)
		return ErrUnsupported
	}
	if c.state == StateListening {
		c.mu.Unlock()
		return nil
	}
	c.record = nil
	c.transcript.reset()
	c.state = StateListening
	c.mu.Unlock()

	c.sink.StateChanged(StateListening, ReasonListeningStarted)

	stream, err := c.provider.StartStream(ctx, c.cfg)
	if err != nil {
		c.log.Warn("recognition start failed", zap.Error(err))
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()
		c.sink.StateChanged(StateIdle, ReasonStartFailed)
		return nil
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.stream = stream
	c.pumpDone = done
	c.mu.Unlock()

	go c.pump(stream, done)
	return nil
}

// pump consumes the stream's FIFO event channel. One pump per session keeps
// event processing serial and in delivery order. Every handler carries the
// stream that produced the event: once the controller has moved on (error,
// teardown, restart), late events from a superseded stream are discarded
// instead of clobbering the current session.
func (c *Controller) pump(stream speech.RecognitionStream, done chan struct{}) {
	defer close(done)
	ended := false
	for ev := range stream.Events() {
		switch ev.Type {
		case speech.EventStart:
			// Already listening; confirmation needs no second state.
		case speech.EventResult:
			c.handleResult(stream, ev)
		case speech.EventError:
			c.handleError(stream, ev.Code)
		case speech.EventEnd:
			ended = true
			c.handleEnd(stream, ReasonSessionEnded)
		}
	}
	if !ended {
		// Channel closed without an explicit end; treat it as one.
		c.handleEnd(stream, ReasonSessionEnded)
	}
}

func (c *Controller) handleResult(stream speech.RecognitionStream, ev speech.Event) {
	c.mu.Lock()
	if c.stream != stream || c.state != StateListening {
		c.mu.Unlock()
		return
	}
	var finals, interims strings.Builder
	for _, seg := range ev.Segments {
		if seg.IsFinal {
			finals.WriteString(seg.Text)
		} else {
			interims.WriteString(seg.Text)
		}
	}
	committed := finals.String()
	pending := interims.String()
	c.transcript.appendCommitted(committed)
	c.transcript.replacePending(pending)
	full := c.transcript.full()
	c.mu.Unlock()

	if committed != "" {
		c.sink.CommittedTranscript(committed, full)
	}
	c.sink.PartialTranscript(pending)
}

func (c *Controller) handleError(stream speech.RecognitionStream, code string) {
	rec := ClassifyProviderError(code)

	c.mu.Lock()
	if c.stream != stream {
		c.mu.Unlock()
		return
	}
	c.record = &rec
	c.state = StateIdle
	c.transcript.clearPending()
	c.stream = nil
	c.mu.Unlock()

	c.sink.RecognitionError(rec)
	c.sink.StateChanged(StateIdle, ReasonRecognitionError)
}

// handleEnd is idempotent within a session: an end from a stream that is no
// longer current changes nothing.
func (c *Controller) handleEnd(stream speech.RecognitionStream, reason StateReason) {
	c.mu.Lock()
	if c.stream != stream {
		c.mu.Unlock()
		return
	}
	wasListening := c.state == StateListening
	hadPending := c.transcript.clearPending()
	c.state = StateIdle
	c.stream = nil
	c.mu.Unlock()

	if wasListening || hadPending {
		c.sink.StateChanged(StateIdle, reason)
	}
}

// Stop requests a graceful provider stop. Completion is observed via the end
// event; the committed transcript is preserved for the caller to read. Not
// listening is a silent no-op, and provider stop failures are swallowed.
func (c *Controller) Stop(context.Context) {
	c.mu.Lock()
	stream := c.stream
	listening := c.state == StateListening
	c.mu.Unlock()

	if !listening || stream == nil {
		return
	}
	if err := stream.Stop(); err != nil {
		c.log.Debug("recognition stop failed", zap.Error(err))
	}
}

// Clear resets the transcript and error record regardless of state. It does
// not stop a live session, so a result event arriving afterwards repopulates
// the transcript; callers wanting a clean slate stop first.
func (c *Controller) Clear() {
	c.mu.Lock()
	c.transcript.reset()
	c.record = nil
	c.mu.Unlock()
}

// ForwardAudio passes an opaque client audio chunk through to the active
// stream when the backend consumes audio. Chunks arriving while idle are
// dropped.
func (c *Controller) ForwardAudio(ctx context.Context, pcm []byte, sampleRate int, commit bool) {
	c.mu.Lock()
	stream := c.stream
	listening := c.state == StateListening
	c.mu.Unlock()

	if !listening || stream == nil {
		return
	}
	sink, ok := stream.(speech.AudioSink)
	if !ok {
		return
	}
	if err := sink.SendAudio(ctx, pcm, sampleRate, commit); err != nil {
		c.log.Debug("audio forward failed", zap.Error(err))
	}
}

// Teardown force-stops the provider stream regardless of state so no
// background capture outlives the controller's owner. It is fire and forget:
// the pump drains on its own once the stream closes. Idempotent.
func (c *Controller) Teardown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	stream := c.stream
	c.stream = nil
	c.state = StateIdle
	c.transcript.clearPending()
	c.mu.Unlock()

	if stream != nil {
		if err := stream.Close(); err != nil {
			c.log.Debug("recognition teardown close failed", zap.Error(err))
		}
	}
}

// State returns the current session state.
func (c *Controller) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Committed returns the concatenation, in delivery order, of every final
// segment received since the last Start.
func (c *Controller) Committed() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript.committedText()
}

// Pending returns the interim fragment from the most recent result event.
func (c *Controller) Pending() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript.pending
}

// FullTranscript returns committed + pending.
func (c *Controller) FullTranscript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript.full()
}

// ErrorRecord returns a copy of the current error record, or nil.
func (c *Controller) ErrorRecord() *ErrorRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.record == nil {
		return nil
	}
	rec := *c.record
	return &rec
}

// Snapshot returns the full observable surface in one locked read.
func (c *Controller) Snapshot() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{
		State:     c.state,
		Committed: c.transcript.committedText(),
		Pending:   c.transcript.pending,
		Full:      c.transcript.full(),
		Supported: c.supported,
	}
	if c.record != nil {
		rec := *c.record
		st.Error = &rec
	}
	return st
}
