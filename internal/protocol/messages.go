package protocol

import (
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientControl    MessageType = "client_control"
	TypeClientAudioChunk MessageType = "client_audio_chunk"
	TypeSpeakRequest     MessageType = "speak_request"
	TypeSpeakStop        MessageType = "speak_stop"

	TypeStateChanged        MessageType = "state_changed"
	TypeTranscriptPartial   MessageType = "transcript_partial"
	TypeTranscriptCommitted MessageType = "transcript_committed"
	TypeErrorEvent          MessageType = "error_event"
	TypeSpeakStarted        MessageType = "speak_started"
	TypeSpeakAudio          MessageType = "speak_audio"
	TypeSpeakDone           MessageType = "speak_done"
	TypeSpeakStopped        MessageType = "speak_stopped"
	TypeSpeakError          MessageType = "speak_error"
)

// Control actions accepted from the client.
const (
	ActionStart = "start"
	ActionStop  = "stop"
	ActionClear = "clear"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ClientControl drives the recognition controller: start, stop, or clear.
type ClientControl struct {
	Type      MessageType `json:"type"`
	ConsoleID string      `json:"console_id"`
	Action    string      `json:"action"`
}

// ClientAudioChunk carries microphone audio for backends that consume it.
type ClientAudioChunk struct {
	Type        MessageType `json:"type"`
	ConsoleID   string      `json:"console_id"`
	Seq         int         `json:"seq"`
	PCM16Base64 string      `json:"pcm16_base64"`
	SampleRate  int         `json:"sample_rate"`
	Commit      bool        `json:"commit,omitempty"`
}

// SpeakRequest asks the synthesis collaborator to speak text aloud.
type SpeakRequest struct {
	Type      MessageType `json:"type"`
	ConsoleID string      `json:"console_id"`
	Text      string      `json:"text"`
}

// SpeakStop cancels the active utterance.
type SpeakStop struct {
	Type      MessageType `json:"type"`
	ConsoleID string      `json:"console_id"`
}

type StateChanged struct {
	Type      MessageType `json:"type"`
	ConsoleID string      `json:"console_id"`
	State     string      `json:"state"`
	Reason    string      `json:"reason"`
}

type TranscriptPartial struct {
	Type      MessageType `json:"type"`
	ConsoleID string      `json:"console_id"`
	Text      string      `json:"text"`
}

type TranscriptCommitted struct {
	Type      MessageType `json:"type"`
	ConsoleID string      `json:"console_id"`
	Fragment  string      `json:"fragment"`
	FullText  string      `json:"full_text"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	ConsoleID string      `json:"console_id"`
	Kind      string      `json:"kind"`
	Code      string      `json:"code,omitempty"`
	Message   string      `json:"message"`
}

type SpeakStarted struct {
	Type        MessageType `json:"type"`
	ConsoleID   string      `json:"console_id"`
	UtteranceID string      `json:"utterance_id"`
}

type SpeakAudio struct {
	Type        MessageType `json:"type"`
	ConsoleID   string      `json:"console_id"`
	UtteranceID string      `json:"utterance_id"`
	Format      string      `json:"format"`
	AudioBase64 string      `json:"audio_base64"`
}

type SpeakDone struct {
	Type        MessageType `json:"type"`
	ConsoleID   string      `json:"console_id"`
	UtteranceID string      `json:"utterance_id"`
}

type SpeakStopped struct {
	Type        MessageType `json:"type"`
	ConsoleID   string      `json:"console_id"`
	UtteranceID string      `json:"utterance_id"`
}

type SpeakError struct {
	Type        MessageType `json:"type"`
	ConsoleID   string      `json:"console_id"`
	UtteranceID string      `json:"utterance_id"`
	Detail      string      `json:"detail"`
}

// ParseClientMessage decodes and validates an inbound client payload.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.ConsoleID == "" {
			return nil, errors.New("client_control: missing console_id")
		}
		switch msg.Action {
		case ActionStart, ActionStop, ActionClear:
		default:
			return nil, fmt.Errorf("client_control: unknown action %q", msg.Action)
		}
		return msg, nil
	case TypeClientAudioChunk:
		var msg ClientAudioChunk
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.ConsoleID == "" || msg.SampleRate <= 0 {
			return nil, errors.New("invalid client_audio_chunk")
		}
		return msg, nil
	case TypeSpeakRequest:
		var msg SpeakRequest
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.ConsoleID == "" || msg.Text == "" {
			return nil, errors.New("invalid speak_request")
		}
		return msg, nil
	case TypeSpeakStop:
		var msg SpeakStop
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.ConsoleID == "" {
			return nil, errors.New("speak_stop: missing console_id")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}

// MessageTypeOf extracts the type tag from any inbound or outbound message.
func MessageTypeOf(msg any) (MessageType, bool) {
	switch m := msg.(type) {
	case ClientControl:
		return m.Type, true
	case ClientAudioChunk:
		return m.Type, true
	case SpeakRequest:
		return m.Type, true
	case SpeakStop:
		return m.Type, true
	case StateChanged:
		return m.Type, true
	case TranscriptPartial:
		return m.Type, true
	case TranscriptCommitted:
		return m.Type, true
	case ErrorEvent:
		return m.Type, true
	case SpeakStarted:
		return m.Type, true
	case SpeakAudio:
		return m.Type, true
	case SpeakDone:
		return m.Type, true
	case SpeakStopped:
		return m.Type, true
	case SpeakError:
		return m.Type, true
	default:
		return "", false
	}
}
