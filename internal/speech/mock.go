package speech

import (
	"context"
	"strings"
	"sync"

	"github.com/evanladignon16-afk/VIBALERT-TTS-STT/internal/audio"
)

// MockProvider is a local fallback for both capabilities, used when no real
// speech backend is configured.
type MockProvider struct{}

func NewMockProvider() *MockProvider { return &MockProvider{} }

func (p *MockProvider) Available() bool { return true }

func (p *MockProvider) StartStream(_ context.Context, _ StreamConfig) (RecognitionStream, error) {
	s := &mockRecognitionStream{events: make(chan Event, 64)}
	s.events <- Event{Type: EventStart}
	return s, nil
}

// Synthesize returns silence sized to the input text, WAV-wrapped so callers
// exercise the same decode path as a real backend.
func (p *MockProvider) Synthesize(_ context.Context, req SynthesisRequest) ([]byte, string, error) {
	n := len(strings.TrimSpace(req.Text))
	if n == 0 {
		return nil, "", ErrEmptyUtterance
	}
	pcm := make([]byte, n*64)
	wav, err := audio.EncodeWAVPCM16LE(pcm, 16000)
	if err != nil {
		return nil, "", err
	}
	return wav, "wav", nil
}

type mockRecognitionStream struct {
	mu     sync.Mutex
	events chan Event
	chunks int
	heard  bool
	closed bool
}

func (s *mockRecognitionStream) SendAudio(_ context.Context, pcm []byte, _ int, commit bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.chunks++
	if len(pcm) > 0 {
		s.heard = true
		s.events <- Event{Type: EventResult, Segments: []Segment{{Text: "..."}}}
	}
	if commit || s.chunks%8 == 0 {
		text := "simulated voice input"
		if !s.heard {
			text = ""
		}
		s.events <- Event{Type: EventResult, Segments: []Segment{{Text: text, IsFinal: true}}}
	}
	return nil
}

func (s *mockRecognitionStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.events <- Event{Type: EventEnd}
	close(s.events)
	return nil
}

func (s *mockRecognitionStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.events)
	return nil
}

func (s *mockRecognitionStream) Events() <-chan Event { return s.events }
