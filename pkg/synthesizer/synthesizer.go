package synthesizer

import (
	"context"
	"fmt"
	"strings"
)

// TTSProvider 语音合成提供商
type TTSProvider string

const (
	ProviderOpenAI TTSProvider = "openai"
	ProviderLocal  TTSProvider = "local"
	// ProviderNone text-only replies
	ProviderNone TTSProvider = "none"
)

// SynthesisService renders text to a complete WAV file. Safe for
// concurrent use from worker goroutines.
type SynthesisService interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
	Provider() TTSProvider
}

// Options TTS 配置
type Options struct {
	Provider TTSProvider
	APIKey   string
	BaseURL  string
	Model    string
	Voice    string
	Command  string // local provider binary
	Language string
}

// NewSynthesisService builds the configured engine. ProviderNone yields a
// nil service and no error.
func NewSynthesisService(opt Options) (SynthesisService, error) {
	switch TTSProvider(strings.ToLower(string(opt.Provider))) {
	case ProviderOpenAI, "":
		return NewOpenAITTS(opt)
	case ProviderLocal:
		cfg := NewLocalSpeechConfig(opt.Command)
		if opt.Language != "" {
			cfg.Language = opt.Language
		}
		return NewLocalSpeechService(cfg)
	case ProviderNone:
		return nil, nil
	}
	return nil, fmt.Errorf("不支持的TTS提供商: %s", opt.Provider)
}
