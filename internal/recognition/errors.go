package recognition

import (
	"errors"
	"fmt"
)

// ErrUnsupported is returned by Start when the runtime has no recognition
// capability. All other provider failures are captured in the ErrorRecord
// instead of being returned.
var ErrUnsupported = errors.New("speech recognition unsupported in this environment")

// ErrControllerClosed is returned by Start after Teardown.
var ErrControllerClosed = errors.New("recognition controller closed")

// ErrorKind classifies recognition failures.
type ErrorKind string

const (
	KindUnsupported      ErrorKind = "unsupported"
	KindPermissionDenied ErrorKind = "permission_denied"
	KindNoSpeechDetected ErrorKind = "no_speech_detected"
	KindNoMicrophone     ErrorKind = "no_microphone"
	KindNetworkFailure   ErrorKind = "network_failure"
	KindOther            ErrorKind = "other"
)

// ErrorRecord holds the classified kind, the raw provider code, and the
// message shown to the user. Exactly one record is surfaced at a time; the
// next successful Start clears it.
type ErrorRecord struct {
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code,omitempty"`
	Message string    `json:"message"`
}

// ClassifyProviderError maps a provider error code to a record with a fixed
// user-facing message.
func ClassifyProviderError(code string) ErrorRecord {
	switch code {
	case "not-allowed", "service-not-allowed":
		return ErrorRecord{
			Kind:    KindPermissionDenied,
			Code:    code,
			Message: "Microphone access denied. Please allow microphone permissions.",
		}
	case "no-speech":
		return ErrorRecord{
			Kind:    KindNoSpeechDetected,
			Code:    code,
			Message: "No speech detected. Please try again.",
		}
	case "audio-capture":
		return ErrorRecord{
			Kind:    KindNoMicrophone,
			Code:    code,
			Message: "No microphone found. Please check your microphone.",
		}
	case "network":
		return ErrorRecord{
			Kind:    KindNetworkFailure,
			Code:    code,
			Message: "Network error. Please check your connection.",
		}
	default:
		return ErrorRecord{
			Kind:    KindOther,
			Code:    code,
			Message: fmt.Sprintf("Speech recognition error: %s", code),
		}
	}
}

func unsupportedRecord() ErrorRecord {
	return ErrorRecord{
		Kind:    KindUnsupported,
		Message: "Speech recognition is not supported in this environment. Please switch to a browser or device that provides it.",
	}
}
