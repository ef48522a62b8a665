package voice

import (
	"errors"
	"fmt"
)

const (
	ErrBotNotReady       = "BOT_NOT_READY"
	ErrAlreadyRunning    = "ALREADY_RUNNING"
	ErrStartFailed       = "BOT_START_FAILED"
	ErrJoinFailed        = "VOICE_JOIN_FAILED"
	ErrNoVoiceConnection = "NO_VOICE_CONNECTION"
	ErrTTSNotConfigured  = "TTS_NOT_CONFIGURED"
	ErrSpeechFailed      = "SPEECH_FAILED"
)

type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf returns the voice error code carried by err, or "".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
