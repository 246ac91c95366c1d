package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a domain failure so callers can branch on it without
// string matching.
type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindValidation         Kind = "validation"
	KindInvalidSender      Kind = "invalid_sender"
	KindCreationFailed     Kind = "creation_failed"
	KindUpdateFailed       Kind = "update_failed"
	KindDeletionFailed     Kind = "deletion_failed"
	KindUnsupportedMedia   Kind = "unsupported_media"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindQuotaExceeded      Kind = "quota_exceeded"
	KindRequestTimeout     Kind = "request_timeout"
	KindAPIError           Kind = "api_error"
	KindEmptyCompletion    Kind = "empty_completion"
	KindCompletionFailed   Kind = "completion_failed"
	KindSpeechToText       Kind = "speech_to_text_failed"
	KindTextToSpeech       Kind = "text_to_speech_failed"
	KindAudioMetadata      Kind = "audio_metadata_failed"
	KindVoiceProcessing    Kind = "voice_processing_failed"
	KindInternal           Kind = "internal"
)

// Error is the single error type crossing service boundaries. Code is the
// machine-readable identifier surfaced in HTTP responses; Details carries
// structured diagnostics.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs an Error with the given kind, code and message.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap attaches a cause. Returns e for chaining.
func (e *Error) Wrap(cause error) *Error {
	e.cause = cause
	return e
}

// With attaches one detail entry. Returns e for chaining.
func (e *Error) With(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Status maps the error kind to an HTTP status code.
func (e *Error) Status() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation, KindInvalidSender:
		return http.StatusBadRequest
	case KindUnsupportedMedia:
		return http.StatusUnsupportedMediaType
	case KindInvalidCredentials:
		return http.StatusUnauthorized
	case KindQuotaExceeded:
		return http.StatusTooManyRequests
	case KindRequestTimeout:
		return http.StatusGatewayTimeout
	case KindAPIError, KindEmptyCompletion, KindCompletionFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// KindOf extracts the kind of err, or KindInternal for unrecognized errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// As returns err as an *Error when it is one.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// AgentNotFound reports a missing agent record.
func AgentNotFound(agentID uint) *Error {
	return New(KindNotFound, "AGENT_NOT_FOUND", fmt.Sprintf("agent %d not found", agentID)).
		With("agent_id", agentID)
}

// SessionNotFound reports a missing chat session record.
func SessionNotFound(sessionID uint) *Error {
	return New(KindNotFound, "SESSION_NOT_FOUND", fmt.Sprintf("session %d not found", sessionID)).
		With("session_id", sessionID)
}

// MessageNotFound reports a missing message record.
func MessageNotFound(messageID uint) *Error {
	return New(KindNotFound, "MESSAGE_NOT_FOUND", fmt.Sprintf("message %d not found", messageID)).
		With("message_id", messageID)
}

// InvalidSender reports a sender value outside the recognized set.
func InvalidSender(sender string) *Error {
	return New(KindInvalidSender, "INVALID_SENDER",
		fmt.Sprintf("invalid sender %q: must be 'user' or 'agent'", sender)).
		With("sender", sender)
}

// UnsupportedMedia reports an audio upload with a disallowed extension.
func UnsupportedMedia(extension string) *Error {
	return New(KindUnsupportedMedia, "UNSUPPORTED_AUDIO_FORMAT",
		fmt.Sprintf("unsupported audio format %q", extension)).
		With("extension", extension)
}
