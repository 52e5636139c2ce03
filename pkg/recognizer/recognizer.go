package recognizer

import (
	"context"
)

const DefaultSampleRate = 16000

// Transcript STT 识别结果
type Transcript struct {
	Text     string
	Language string
}

// TranscribeService turns one 16 kHz mono WAV utterance into text. It is
// called from worker goroutines and must be safe for concurrent use.
type TranscribeService interface {
	Transcribe(ctx context.Context, wav []byte) (Transcript, error)
	Vendor() string
}
