package speech

import (
	"context"
	"errors"
)

// ErrEmptyUtterance is returned by synthesis when the text reduces to nothing.
var ErrEmptyUtterance = errors.New("empty utterance text")

// EventType identifies recognition stream event variants.
type EventType string

const (
	EventStart  EventType = "start"
	EventResult EventType = "result"
	EventError  EventType = "error"
	EventEnd    EventType = "end"
)

// Segment is one recognized fragment. Interim segments may be revised by
// later events; final segments will not change.
type Segment struct {
	Text    string
	IsFinal bool
}

// Event is a single message from a recognition stream. Result events carry
// the segments recognized so far starting at ResultIndex; error events carry
// a provider error code; end events mark session termination for any reason.
type Event struct {
	Type        EventType
	Segments    []Segment
	ResultIndex int
	Code        string
	Detail      string
}

// StreamConfig describes provider-agnostic recognition settings.
type StreamConfig struct {
	Continuous     bool
	InterimResults bool
	Language       string
}

// RecognitionStream is an active recognition session. Stop requests a
// graceful shutdown; the stream acknowledges by emitting an end event and
// closing its event channel. Close force-terminates without ceremony.
type RecognitionStream interface {
	Stop() error
	Close() error
	Events() <-chan Event
}

// AudioSink is implemented by streams that consume client-supplied audio.
// commit marks the end of an utterance and asks for a final segment.
type AudioSink interface {
	SendAudio(ctx context.Context, pcm []byte, sampleRate int, commit bool) error
}

// RecognitionProvider starts streaming recognition sessions.
type RecognitionProvider interface {
	Available() bool
	StartStream(ctx context.Context, cfg StreamConfig) (RecognitionStream, error)
}

// SynthesisRequest describes one text-to-speech utterance.
type SynthesisRequest struct {
	Text   string
	Voice  string
	Format string
}

// SynthesisProvider converts text to audio in a single call.
type SynthesisProvider interface {
	Available() bool
	Synthesize(ctx context.Context, req SynthesisRequest) (audio []byte, format string, err error)
}
