package sessions

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/code-100-precent/LingVoice/pkg/voice/audio"
	"github.com/code-100-precent/LingVoice/pkg/voice/constants"
	"go.uber.org/zap"
)

// VADConfig VAD 缓冲配置
type VADConfig struct {
	SilenceThreshold time.Duration
	MaxDuration      time.Duration
	RMSThreshold     float64 // normalised, 0..1
	BytesPerSecond   int     // duration estimate for compressed input
	MinAudioBytes    int
}

func DefaultVADConfig() VADConfig {
	return VADConfig{
		SilenceThreshold: 1000 * time.Millisecond,
		MaxDuration:      6 * time.Second,
		RMSThreshold:     0.01,
		BytesPerSecond:   3200,
		MinAudioBytes:    100,
	}
}

// Normalizer converts a raw client blob into a WAV utterance.
type Normalizer interface {
	Normalize(ctx context.Context, raw []byte) ([]byte, error)
}

// VADBuffer accumulates client audio fragments and decides when the user
// has stopped speaking. After every extraction the buffer is empty.
type VADBuffer struct {
	mu           sync.Mutex
	config       VADConfig
	normalizer   Normalizer
	now          func() time.Time
	logger       *zap.Logger
	fragments    [][]byte
	totalBytes   int
	silenceStart time.Time
	hasSpeech    bool
}

type VADOption func(*VADBuffer)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) VADOption {
	return func(b *VADBuffer) { b.now = now }
}

func NewVADBuffer(config VADConfig, normalizer Normalizer, logger *zap.Logger, opts ...VADOption) *VADBuffer {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultVADConfig()
	if config.SilenceThreshold <= 0 {
		config.SilenceThreshold = def.SilenceThreshold
	}
	if config.MaxDuration <= 0 {
		config.MaxDuration = def.MaxDuration
	}
	if config.RMSThreshold <= 0 {
		config.RMSThreshold = def.RMSThreshold
	}
	if config.BytesPerSecond <= 0 {
		config.BytesPerSecond = def.BytesPerSecond
	}
	if config.MinAudioBytes <= 0 {
		config.MinAudioBytes = def.MinAudioBytes
	}
	b := &VADBuffer{config: config, normalizer: normalizer, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// AddChunk appends a fragment and updates the silence tracking.
// Returns whether the fragment counted as silence.
func (b *VADBuffer) AddChunk(chunk []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.fragments = append(b.fragments, chunk)
	b.totalBytes += len(chunk)

	silent := len(chunk) < 2 || audio.RMS(chunk) < b.config.RMSThreshold
	if silent {
		if b.silenceStart.IsZero() {
			b.silenceStart = b.now()
		}
	} else {
		b.silenceStart = time.Time{}
		b.hasSpeech = true
	}
	return silent
}

// ShouldTrigger 有语音，且静音超过阈值或总时长超过上限
func (b *VADBuffer) ShouldTrigger() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.hasSpeech {
		return false
	}
	if !b.silenceStart.IsZero() && b.now().Sub(b.silenceStart) >= b.config.SilenceThreshold {
		return true
	}
	return b.durationLocked() >= b.config.MaxDuration.Seconds()
}

// Take detaches the buffered bytes and clears the buffer. An empty buffer
// yields nil, a blob under MinAudioBytes yields ErrAudioTooShort.
func (b *VADBuffer) Take() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.fragments) == 0 {
		return nil, nil
	}
	blob := bytes.Join(b.fragments, nil)
	b.clearLocked()
	if len(blob) < b.config.MinAudioBytes {
		b.logger.Debug("[VAD] --- buffer below byte floor", zap.Int("bytes", len(blob)))
		return nil, constants.Wrap(constants.ErrAudioTooShort, nil)
	}
	return blob, nil
}

// Normalize decodes a blob obtained from Take.
func (b *VADBuffer) Normalize(ctx context.Context, blob []byte) ([]byte, error) {
	return b.normalizer.Normalize(ctx, blob)
}

// GetAudioAndReset extracts the utterance as WAV. The buffer is cleared
// whether or not decoding succeeds.
func (b *VADBuffer) GetAudioAndReset(ctx context.Context) ([]byte, error) {
	blob, err := b.Take()
	if err != nil || blob == nil {
		return nil, err
	}
	return b.Normalize(ctx, blob)
}

func (b *VADBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clearLocked()
}

func (b *VADBuffer) clearLocked() {
	b.fragments = nil
	b.totalBytes = 0
	b.silenceStart = time.Time{}
	b.hasSpeech = false
}

// Duration estimated seconds of buffered audio
func (b *VADBuffer) Duration() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.durationLocked()
}

func (b *VADBuffer) durationLocked() float64 {
	return audio.EstimateDuration(b.totalBytes, b.config.BytesPerSecond)
}

func (b *VADBuffer) ChunkCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.fragments)
}

func (b *VADBuffer) IsEmpty() bool {
	return b.ChunkCount() == 0
}

func (b *VADBuffer) HasSpeech() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hasSpeech
}
