package pipeline

import (
	"context"
	"fmt"

	"github.com/code-100-precent/LingVoice/pkg/voice/constants"
	"github.com/code-100-precent/LingVoice/pkg/voice/sessions"
)

// decodeFunc finishes preparing an utterance on the run goroutine.
type decodeFunc func(ctx context.Context) ([]byte, error)

type sourceEnv struct {
	normalizer        sessions.Normalizer
	minRecordingBytes int
}

// UtteranceSource is where a turn's audio comes from. Both sources end in
// the same normalised WAV utterance.
type UtteranceSource interface {
	take(env sourceEnv) (decodeFunc, error)
}

type bufferSource struct {
	buf *sessions.VADBuffer
}

// FromBuffer extracts the session's VAD buffer. The buffer is detached
// when the turn is accepted, so new audio lands in a fresh buffer.
func FromBuffer(buf *sessions.VADBuffer) UtteranceSource {
	return bufferSource{buf: buf}
}

func (b bufferSource) take(sourceEnv) (decodeFunc, error) {
	blob, err := b.buf.Take()
	if err != nil {
		return nil, err
	}
	if blob == nil {
		return nil, constants.Wrap(constants.ErrAudioTooShort, fmt.Errorf("empty buffer"))
	}
	return func(ctx context.Context) ([]byte, error) {
		return b.buf.Normalize(ctx, blob)
	}, nil
}

type recordingSource struct {
	data []byte
}

// FromRecording a complete client recording that bypasses VAD.
func FromRecording(data []byte) UtteranceSource {
	return recordingSource{data: data}
}

func (r recordingSource) take(env sourceEnv) (decodeFunc, error) {
	if len(r.data) < env.minRecordingBytes {
		return nil, constants.Wrap(constants.ErrAudioTooShort,
			fmt.Errorf("%d bytes, need %d", len(r.data), env.minRecordingBytes))
	}
	data := r.data
	return func(ctx context.Context) ([]byte, error) {
		return env.normalizer.Normalize(ctx, data)
	}, nil
}
