package console

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/evanladignon16-afk/VIBALERT-TTS-STT/internal/observability"
	"github.com/evanladignon16-afk/VIBALERT-TTS-STT/internal/protocol"
	"github.com/evanladignon16-afk/VIBALERT-TTS-STT/internal/speech"
)

type fakeStream struct {
	events chan speech.Event

	mu        sync.Mutex
	sent      [][]byte
	stopCalls int
	closed    bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{events: make(chan speech.Event, 16)}
}

func (f *fakeStream) push(ev speech.Event) { f.events <- ev }

func (f *fakeStream) Events() <-chan speech.Event { return f.events }

func (f *fakeStream) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	if !f.closed {
		f.closed = true
		f.events <- speech.Event{Type: speech.EventEnd}
		close(f.events)
	}
	return nil
}

func (f *fakeStream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
	return nil
}

func (f *fakeStream) SendAudio(_ context.Context, pcm []byte, _ int, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, pcm)
	return nil
}

func (f *fakeStream) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeStream) sentChunks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeRecognizer struct {
	stream *fakeStream
}

func (f *fakeRecognizer) Available() bool { return true }

func (f *fakeRecognizer) StartStream(context.Context, speech.StreamConfig) (speech.RecognitionStream, error) {
	return f.stream, nil
}

type fakeSynthesizer struct {
	audio []byte
}

func (f *fakeSynthesizer) Available() bool { return true }

func (f *fakeSynthesizer) Synthesize(context.Context, speech.SynthesisRequest) ([]byte, string, error) {
	return f.audio, "wav", nil
}

// collectUntil drains outbound until a message of the wanted type arrives.
func collectUntil(t *testing.T, outbound <-chan any, want protocol.MessageType) any {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-outbound:
			if got, ok := protocol.MessageTypeOf(msg); ok && got == want {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q message", want)
			return nil
		}
	}
}

func newTestBinder(namespace string, rec speech.RecognitionProvider, synth speech.SynthesisProvider) (*Binder, *Manager) {
	m := NewManager(time.Minute)
	metrics := observability.NewMetrics(namespace)
	return NewBinder(rec, synth, speech.StreamConfig{Continuous: true, InterimResults: true}, "alloy", "wav", m, metrics, nil), m
}

func TestBinderRecognitionFlow(t *testing.T) {
	t.Parallel()

	stream := newFakeStream()
	b, m := newTestBinder("binder_flow_test", &fakeRecognizer{stream: stream}, &fakeSynthesizer{})
	c := m.Create("en-US", "")

	inbound := make(chan any)
	outbound := make(chan any, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.RunConnection(context.Background(), c, inbound, outbound)
	}()

	inbound <- protocol.ClientControl{Type: protocol.TypeClientControl, ConsoleID: c.ID, Action: protocol.ActionStart}
	state := collectUntil(t, outbound, protocol.TypeStateChanged).(protocol.StateChanged)
	if state.State != "listening" || state.ConsoleID != c.ID {
		t.Fatalf("unexpected state message: %+v", state)
	}

	stream.push(speech.Event{Type: speech.EventResult, Segments: []speech.Segment{{Text: "hello ", IsFinal: true}}})
	committed := collectUntil(t, outbound, protocol.TypeTranscriptCommitted).(protocol.TranscriptCommitted)
	if committed.Fragment != "hello " || committed.FullText != "hello " {
		t.Fatalf("unexpected committed message: %+v", committed)
	}

	stream.push(speech.Event{Type: speech.EventResult, Segments: []speech.Segment{{Text: "wor", IsFinal: false}}})
	partial := collectUntil(t, outbound, protocol.TypeTranscriptPartial).(protocol.TranscriptPartial)
	if partial.Text != "wor" {
		t.Fatalf("partial text = %q, want wor", partial.Text)
	}

	close(inbound)
	<-done
	if !stream.isClosed() {
		t.Fatalf("stream not closed after connection ended")
	}
}

func TestBinderForwardsAudioChunks(t *testing.T) {
	t.Parallel()

	stream := newFakeStream()
	b, m := newTestBinder("binder_audio_test", &fakeRecognizer{stream: stream}, &fakeSynthesizer{})
	c := m.Create("en-US", "")

	inbound := make(chan any)
	outbound := make(chan any, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.RunConnection(context.Background(), c, inbound, outbound)
	}()

	inbound <- protocol.ClientControl{Type: protocol.TypeClientControl, ConsoleID: c.ID, Action: protocol.ActionStart}
	collectUntil(t, outbound, protocol.TypeStateChanged)

	pcm := []byte{1, 2, 3, 4}
	inbound <- protocol.ClientAudioChunk{
		Type:        protocol.TypeClientAudioChunk,
		ConsoleID:   c.ID,
		Seq:         1,
		PCM16Base64: base64.StdEncoding.EncodeToString(pcm),
		SampleRate:  16000,
	}
	// Malformed base64 is dropped without killing the connection.
	inbound <- protocol.ClientAudioChunk{
		Type:        protocol.TypeClientAudioChunk,
		ConsoleID:   c.ID,
		Seq:         2,
		PCM16Base64: "!!!not-base64!!!",
		SampleRate:  16000,
	}
	inbound <- protocol.ClientControl{Type: protocol.TypeClientControl, ConsoleID: c.ID, Action: protocol.ActionStop}
	collectUntil(t, outbound, protocol.TypeStateChanged)

	if stream.sentChunks() != 1 {
		t.Fatalf("forwarded chunks = %d, want 1", stream.sentChunks())
	}

	close(inbound)
	<-done
}

func TestBinderSpeakRoundTrip(t *testing.T) {
	t.Parallel()

	audio := []byte{9, 8, 7}
	b, m := newTestBinder("binder_speak_test", &fakeRecognizer{stream: newFakeStream()}, &fakeSynthesizer{audio: audio})
	c := m.Create("en-US", "")

	inbound := make(chan any)
	outbound := make(chan any, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.RunConnection(context.Background(), c, inbound, outbound)
	}()

	inbound <- protocol.SpeakRequest{Type: protocol.TypeSpeakRequest, ConsoleID: c.ID, Text: "hello there"}

	started := collectUntil(t, outbound, protocol.TypeSpeakStarted).(protocol.SpeakStarted)
	if started.UtteranceID == "" {
		t.Fatalf("missing utterance ID")
	}
	got := collectUntil(t, outbound, protocol.TypeSpeakAudio).(protocol.SpeakAudio)
	if got.AudioBase64 != base64.StdEncoding.EncodeToString(audio) {
		t.Fatalf("unexpected audio payload")
	}
	if got.Format != "wav" {
		t.Fatalf("format = %q, want wav", got.Format)
	}
	collectUntil(t, outbound, protocol.TypeSpeakDone)

	close(inbound)
	<-done
}

func TestBinderReportsSpeakFailure(t *testing.T) {
	t.Parallel()

	b, m := newTestBinder("binder_speak_err_test", &fakeRecognizer{stream: newFakeStream()}, &fakeSynthesizer{})
	c := m.Create("en-US", "")

	inbound := make(chan any)
	outbound := make(chan any, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.RunConnection(context.Background(), c, inbound, outbound)
	}()

	// Sanitizes to nothing, so Speak rejects it synchronously.
	inbound <- protocol.SpeakRequest{Type: protocol.TypeSpeakRequest, ConsoleID: c.ID, Text: "```code only```"}
	msg := collectUntil(t, outbound, protocol.TypeSpeakError).(protocol.SpeakError)
	if msg.Detail == "" {
		t.Fatalf("expected error detail")
	}

	close(inbound)
	<-done
}

func TestBinderCancelConsoleTearsDown(t *testing.T) {
	t.Parallel()

	stream := newFakeStream()
	b, m := newTestBinder("binder_cancel_test", &fakeRecognizer{stream: stream}, &fakeSynthesizer{})
	c := m.Create("en-US", "")

	inbound := make(chan any)
	outbound := make(chan any, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.RunConnection(context.Background(), c, inbound, outbound)
	}()

	inbound <- protocol.ClientControl{Type: protocol.TypeClientControl, ConsoleID: c.ID, Action: protocol.ActionStart}
	collectUntil(t, outbound, protocol.TypeStateChanged)

	b.CancelConsole(c.ID)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("connection did not end after cancel")
	}
	if !stream.isClosed() {
		t.Fatalf("stream not force-closed after cancel")
	}

	// Cancelling an unknown or already-detached console is a no-op.
	b.CancelConsole(c.ID)
	b.CancelConsole("missing")
}

func TestOutboundSinkDropsWhenFull(t *testing.T) {
	t.Parallel()

	metrics := observability.NewMetrics("binder_drop_test")
	outbound := make(chan any, 1)
	sink := newOutboundSink("c1", outbound, metrics, zap.NewNop())

	sink.PartialTranscript("one")
	doneBy := make(chan struct{})
	go func() {
		sink.PartialTranscript("two")
		close(doneBy)
	}()
	select {
	case <-doneBy:
	case <-time.After(time.Second):
		t.Fatalf("send blocked on a full outbound channel")
	}

	if got := (<-outbound).(protocol.TranscriptPartial); got.Text != "one" {
		t.Fatalf("queued message = %q, want one", got.Text)
	}
}
