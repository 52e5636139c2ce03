package audio

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/code-100-precent/LingVoice/pkg/voice/constants"
	"go.uber.org/zap"
)

// Processor normalises client audio into the utterance format:
// 16 kHz mono s16le PCM in a WAV container.
type Processor struct {
	decoder    Decoder
	container  string
	sampleRate int
	logger     *zap.Logger
}

func NewProcessor(decoder Decoder, container string, sampleRate int, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &Processor{decoder: decoder, container: container, sampleRate: sampleRate, logger: logger}
}

// Normalize tries, in order: a canonical WAV passthrough, the known
// container from memory, probing from memory, and a temp file (known
// container then probing). Total failure wraps ErrAudioDecode.
func (p *Processor) Normalize(ctx context.Context, raw []byte) ([]byte, error) {
	if IsWAVFile(raw) {
		if pcm, f, err := DecodeWAV(raw); err == nil && f.Channels == 1 && f.SampleRate == p.sampleRate {
			return EncodeWAV(pcm, p.sampleRate)
		}
	}

	type attempt struct {
		name string
		run  func() ([]byte, error)
	}
	attempts := []attempt{
		{"memory:" + p.container, func() ([]byte, error) { return p.decoder.Decode(ctx, raw, p.container) }},
		{"memory:auto", func() ([]byte, error) { return p.decoder.Decode(ctx, raw, "") }},
		{"tempfile", func() ([]byte, error) { return p.decodeViaTempFile(ctx, raw) }},
	}
	var errs []error
	for _, a := range attempts {
		pcm, err := a.run()
		if err == nil && len(pcm) > 0 {
			return EncodeWAV(pcm, p.sampleRate)
		}
		if err == nil {
			err = errors.New("empty output")
		}
		p.logger.Debug("[Audio] --- decode attempt failed", zap.String("attempt", a.name), zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", a.name, err))
	}
	return nil, constants.Wrap(constants.ErrAudioDecode, errors.Join(errs...))
}

func (p *Processor) decodeViaTempFile(ctx context.Context, raw []byte) ([]byte, error) {
	ext := p.container
	if ext == "" {
		ext = "bin"
	}
	f, err := os.CreateTemp("", "voice-*."+ext)
	if err != nil {
		return nil, err
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(raw); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	pcm, err := p.decoder.DecodeFile(ctx, path, p.container)
	if err == nil && len(pcm) > 0 {
		return pcm, nil
	}
	return p.decoder.DecodeFile(ctx, path, "")
}
