package constants

import (
	"errors"
	"fmt"
)

var (
	// ErrAudioDecode buffer could not be decoded after every fallback
	ErrAudioDecode = errors.New("audio could not be decoded")
	// ErrAudioTooShort below the byte floor or minimum recording length
	ErrAudioTooShort = errors.New("audio too short")
	// ErrModelUnavailable STT or TTS engine not ready
	ErrModelUnavailable = errors.New("model not available")
	ErrTranscription    = errors.New("transcription failed")
	ErrSynthesis        = errors.New("synthesis failed")
	ErrReasoning        = errors.New("reasoning failed")
	// ErrPipelineBusy overlapping trigger, dropped
	ErrPipelineBusy = errors.New("pipeline busy")
	// ErrSessionClosed is returned by sends after the session stopped
	ErrSessionClosed = errors.New("session closed")
	// ErrConversationNotFound unknown id or owned by another user
	ErrConversationNotFound = errors.New("conversation not found")
)

// PipelineError tags a failure with the phase it happened in.
type PipelineError struct {
	Kind error
	Err  error
}

func (e *PipelineError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *PipelineError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Wrap returns a PipelineError of the given kind.
func Wrap(kind, err error) error {
	return &PipelineError{Kind: kind, Err: err}
}

// CodeOf maps an error to its wire code, "" when there is none.
func CodeOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAudioTooShort):
		return CodeAudioTooShort
	case errors.Is(err, ErrAudioDecode):
		return CodeAudioDecodeFailed
	case errors.Is(err, ErrModelUnavailable):
		return CodeModelUnavailable
	case errors.Is(err, ErrTranscription):
		return CodeTranscriptionFailed
	case errors.Is(err, ErrSynthesis):
		return CodeSynthesisFailed
	case errors.Is(err, ErrReasoning):
		return CodeReasoningFailed
	}
	return ""
}
