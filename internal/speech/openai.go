package speech

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/evanladignon16-afk/VIBALERT-TTS-STT/internal/audio"
	"github.com/evanladignon16-afk/VIBALERT-TTS-STT/internal/reliability"
)

// OpenAIConfig configures the OpenAI-backed speech provider.
type OpenAIConfig struct {
	APIKey   string
	STTModel string
	TTSModel string
}

// OpenAIProvider implements recognition via chunked Whisper transcription and
// synthesis via the speech endpoint. Whisper has no realtime stream, so the
// recognition stream buffers PCM windows and re-transcribes: each window
// yields an interim segment and an utterance commit yields a final one.
type OpenAIProvider struct {
	client *openai.Client
	cfg    OpenAIConfig
}

func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	if cfg.STTModel == "" {
		cfg.STTModel = openai.Whisper1
	}
	if cfg.TTSModel == "" {
		cfg.TTSModel = string(openai.TTSModel1)
	}
	var client *openai.Client
	if strings.TrimSpace(cfg.APIKey) != "" {
		client = openai.NewClient(cfg.APIKey)
	}
	return &OpenAIProvider{client: client, cfg: cfg}
}

func (p *OpenAIProvider) Available() bool { return p.client != nil }

func (p *OpenAIProvider) StartStream(ctx context.Context, cfg StreamConfig) (RecognitionStream, error) {
	if p.client == nil {
		return nil, errors.New("openai: api key not configured")
	}
	streamCtx, cancel := context.WithCancel(ctx)
	s := &openaiRecognitionStream{
		client:   p.client,
		model:    p.cfg.STTModel,
		language: primaryLanguageTag(cfg.Language),
		ctx:      streamCtx,
		cancel:   cancel,
		events:   make(chan Event, 64),
		jobs:     make(chan transcribeJob, 8),
	}
	s.events <- Event{Type: EventStart}
	go s.worker()
	return s, nil
}

func (p *OpenAIProvider) Synthesize(ctx context.Context, req SynthesisRequest) ([]byte, string, error) {
	if p.client == nil {
		return nil, "", errors.New("openai: api key not configured")
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, "", ErrEmptyUtterance
	}
	voice := req.Voice
	if voice == "" {
		voice = string(openai.VoiceAlloy)
	}
	format := req.Format
	if format == "" {
		format = string(openai.SpeechResponseFormatMp3)
	}

	resp, err := p.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(p.cfg.TTSModel),
		Input:          text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormat(format),
	})
	if err != nil {
		return nil, "", err
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, "", err
	}
	return data, format, nil
}

type transcribeJob struct {
	pcm        []byte
	sampleRate int
	commit     bool
}

type openaiRecognitionStream struct {
	client   *openai.Client
	model    string
	language string
	ctx      context.Context
	cancel   context.CancelFunc
	events   chan Event
	jobs     chan transcribeJob

	mu        sync.Mutex
	buf       []byte
	lastJobAt int
	closed    bool
	graceful  bool
}

func (s *openaiRecognitionStream) SendAudio(_ context.Context, pcm []byte, sampleRate int, commit bool) error {
	if sampleRate <= 0 {
		sampleRate = 16000
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.buf = append(s.buf, pcm...)

	var job *transcribeJob
	if commit {
		job = &transcribeJob{pcm: snapshot(s.buf), sampleRate: sampleRate, commit: true}
		s.buf = nil
		s.lastJobAt = 0
	} else {
		// One interim window per ~500ms of new audio once at least a second
		// is buffered; whisper returns garbage on shorter slices.
		window := sampleRate * 2
		step := sampleRate
		if len(s.buf) >= window && len(s.buf)-s.lastJobAt >= step {
			job = &transcribeJob{pcm: snapshot(s.buf), sampleRate: sampleRate}
			s.lastJobAt = len(s.buf)
		}
	}
	if job == nil {
		return nil
	}

	// Shutdown closes the jobs channel under this same mutex, so the send
	// must stay inside the critical section. Non-blocking: the worker never
	// takes the mutex while draining, and a behind worker means this window
	// is skipped rather than queueing stale audio.
	select {
	case s.jobs <- *job:
	default:
	}
	return nil
}

func (s *openaiRecognitionStream) Stop() error  { return s.shutdown(true) }
func (s *openaiRecognitionStream) Close() error { return s.shutdown(false) }

func (s *openaiRecognitionStream) shutdown(graceful bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.graceful = graceful
	close(s.jobs)
	s.mu.Unlock()

	if !graceful {
		s.cancel()
	}
	return nil
}

func (s *openaiRecognitionStream) Events() <-chan Event { return s.events }

// worker serializes transcription calls and is the sole writer (and closer)
// of the events channel.
func (s *openaiRecognitionStream) worker() {
	defer close(s.events)
	defer s.cancel()

	for job := range s.jobs {
		if s.ctx.Err() != nil {
			return
		}
		text, err := s.transcribe(job)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.events <- Event{Type: EventError, Code: classifyOpenAIError(err), Detail: err.Error()}
			return
		}
		if text == "" {
			continue
		}
		s.events <- Event{Type: EventResult, Segments: []Segment{{Text: text, IsFinal: job.commit}}}
	}

	s.mu.Lock()
	graceful := s.graceful
	s.mu.Unlock()
	if graceful {
		s.events <- Event{Type: EventEnd}
	}
}

const maxTranscribeAttempts = 3

func (s *openaiRecognitionStream) transcribe(job transcribeJob) (string, error) {
	wav, err := audio.EncodeWAVPCM16LE(job.pcm, job.sampleRate)
	if err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 0; attempt < maxTranscribeAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-s.ctx.Done():
				return "", s.ctx.Err()
			case <-time.After(reliability.ExponentialBackoff(attempt, 200*time.Millisecond, 2*time.Second)):
			}
		}
		resp, err := s.client.CreateTranscription(s.ctx, openai.AudioRequest{
			Model:    s.model,
			FilePath: "utterance.wav",
			Reader:   bytes.NewReader(wav),
			Language: s.language,
		})
		if err == nil {
			return strings.TrimSpace(resp.Text), nil
		}
		lastErr = err
		var apiErr *openai.APIError
		if !errors.As(err, &apiErr) || !reliability.IsRetryableHTTPStatus(apiErr.HTTPStatusCode) {
			return "", err
		}
	}
	return "", lastErr
}

func classifyOpenAIError(err error) string {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 401, 403:
			return "service-not-allowed"
		default:
			return "network"
		}
	}
	return "network"
}

func snapshot(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// primaryLanguageTag reduces a BCP-47 tag like "en-US" to the bare language
// code whisper expects.
func primaryLanguageTag(tag string) string {
	tag = strings.TrimSpace(tag)
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		tag = tag[:i]
	}
	return strings.ToLower(tag)
}
