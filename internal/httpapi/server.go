package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/evanladignon16-afk/VIBALERT-TTS-STT/internal/audio"
	"github.com/evanladignon16-afk/VIBALERT-TTS-STT/internal/config"
	"github.com/evanladignon16-afk/VIBALERT-TTS-STT/internal/console"
	"github.com/evanladignon16-afk/VIBALERT-TTS-STT/internal/observability"
	"github.com/evanladignon16-afk/VIBALERT-TTS-STT/internal/protocol"
	"github.com/evanladignon16-afk/VIBALERT-TTS-STT/internal/speech"
	"github.com/evanladignon16-afk/VIBALERT-TTS-STT/internal/synthesis"
)

// ConnectionRunner services one attached console over channel pairs; the
// server owns the websocket framing on either side.
type ConnectionRunner interface {
	RunConnection(ctx context.Context, c *console.Console, inbound <-chan any, outbound chan<- any)
}

type Server struct {
	cfg         config.Config
	consoles    *console.Manager
	runner      ConnectionRunner
	synthesizer speech.SynthesisProvider
	metrics     *observability.Metrics
	log         *zap.Logger
	upgrader    websocket.Upgrader
}

func New(cfg config.Config, consoles *console.Manager, runner ConnectionRunner, synthesizer speech.SynthesisProvider, metrics *observability.Metrics, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		cfg:         cfg,
		consoles:    consoles,
		runner:      runner,
		synthesizer: synthesizer,
		metrics:     metrics,
		log:         log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only allow browser websocket connections from the same
				// origin, so another site cannot drive the user's mic session
				// if the service is ever exposed beyond localhost.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/consoles", s.handleCreateConsole)
	r.Post("/v1/consoles/{id}/end", s.handleEndConsole)
	r.Get("/v1/consoles/ws", s.handleConsoleWS)
	r.Post("/v1/speech/preview", s.handleSpeechPreview)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "ready",
		"synthesis": s.synthesizer != nil && s.synthesizer.Available(),
	})
}

type createConsoleRequest struct {
	Language string `json:"language"`
	Voice    string `json:"voice"`
}

type createConsoleResponse struct {
	*console.Console
	InactivityTTLMS int64 `json:"inactivity_ttl_ms"`
}

func (s *Server) handleCreateConsole(w http.ResponseWriter, r *http.Request) {
	var req createConsoleRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Language) == "" {
		req.Language = s.cfg.RecognitionLanguage
	}

	c := s.consoles.Create(req.Language, strings.TrimSpace(req.Voice))
	s.metrics.ConsoleEvents.WithLabelValues("created").Inc()

	respondJSON(w, http.StatusCreated, createConsoleResponse{
		Console:         c,
		InactivityTTLMS: s.cfg.ConsoleInactivityTimeout.Milliseconds(),
	})
}

func (s *Server) handleEndConsole(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_console_id", "missing console id")
		return
	}

	c, err := s.consoles.End(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "console_not_found", err.Error())
		return
	}
	s.metrics.ConsoleEvents.WithLabelValues("ended").Inc()
	respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleConsoleWS(w http.ResponseWriter, r *http.Request) {
	consoleID := strings.TrimSpace(r.URL.Query().Get("console_id"))
	if consoleID == "" {
		respondError(w, http.StatusBadRequest, "missing_console_id", "query parameter console_id is required")
		return
	}
	if s.runner == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "connection runner not configured")
		return
	}

	c, err := s.consoles.Get(consoleID)
	if err != nil {
		respondError(w, http.StatusNotFound, "console_not_found", err.Error())
		return
	}
	if c.Status != console.StatusActive {
		respondError(w, http.StatusConflict, "console_ended", "console is no longer active")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.ConsoleEvents.WithLabelValues("ws_connected").Inc()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan any, 256)
	outbound := make(chan any, 256)
	runDone := make(chan struct{})

	go func() {
		defer close(runDone)
		s.runner.RunConnection(ctx, c, inbound, outbound)
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
				if t, ok := protocol.MessageTypeOf(msg); ok {
					s.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
				}
			}
		}
	}()

	conn.SetReadLimit(2 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			errEvent := protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				ConsoleID: consoleID,
				Kind:      "invalid_client_message",
				Message:   err.Error(),
			}
			select {
			case outbound <- errEvent:
				s.metrics.ObserveOutboundMessage(string(protocol.TypeErrorEvent), "queued")
			default:
				// Keep websocket writes single-threaded; drop if the
				// outbound queue is saturated.
				s.metrics.ObserveOutboundMessage(string(protocol.TypeErrorEvent), "dropped")
			}
			continue
		}

		if t, ok := protocol.MessageTypeOf(parsed); ok {
			s.metrics.WSMessages.WithLabelValues("inbound", string(t)).Inc()
		}
		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- parsed:
		}
	}

	cancel()
	close(inbound)
	<-runDone
	<-writerDone
	s.metrics.ConsoleEvents.WithLabelValues("ws_disconnected").Inc()
}

type speechPreviewRequest struct {
	Text   string `json:"text"`
	Voice  string `json:"voice"`
	Format string `json:"format"`
}

// handleSpeechPreview synthesizes a single utterance and returns the audio
// bytes directly, without a console or websocket attached.
func (s *Server) handleSpeechPreview(w http.ResponseWriter, r *http.Request) {
	var req speechPreviewRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "body with text is required")
		return
	}
	text := synthesis.SanitizeText(req.Text)
	if text == "" {
		respondError(w, http.StatusBadRequest, "empty_text", "text has no speakable content")
		return
	}
	if s.synthesizer == nil || !s.synthesizer.Available() {
		respondError(w, http.StatusServiceUnavailable, "synthesis_unavailable", "no synthesis backend configured")
		return
	}

	voice := strings.TrimSpace(req.Voice)
	if voice == "" {
		voice = s.cfg.OpenAITTSVoice
	}
	format := strings.TrimSpace(req.Format)
	if format == "" {
		format = s.cfg.OpenAITTSFormat
	}

	out, gotFormat, err := s.synthesizer.Synthesize(r.Context(), speech.SynthesisRequest{
		Text:   text,
		Voice:  voice,
		Format: format,
	})
	if err != nil {
		s.log.Warn("speech preview failed", zap.Error(err))
		respondError(w, http.StatusBadGateway, "synthesis_failed", err.Error())
		return
	}

	// Raw PCM is wrapped as WAV so the response plays directly in a browser.
	if gotFormat == "pcm" || gotFormat == "pcm16" {
		wav, err := audio.EncodeWAVPCM16LE(out, 16000)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "encode_failed", err.Error())
			return
		}
		out = wav
		gotFormat = "wav"
	}

	w.Header().Set("Content-Type", contentTypeForFormat(gotFormat))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func contentTypeForFormat(format string) string {
	switch format {
	case "wav":
		return "audio/wav"
	case "mp3":
		return "audio/mpeg"
	case "opus":
		return "audio/opus"
	case "aac":
		return "audio/aac"
	case "flac":
		return "audio/flac"
	default:
		return "application/octet-stream"
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
