package recognizer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// WhisperOption OpenAI 兼容的转写接口配置
type WhisperOption struct {
	APIKey   string
	BaseURL  string
	Model    string
	Language string // empty lets the service detect it
}

type WhisperASR struct {
	client *openai.Client
	opt    WhisperOption
}

func NewWhisperASR(opt WhisperOption) (*WhisperASR, error) {
	if opt.APIKey == "" {
		return nil, errors.New("whisper api key is required")
	}
	if opt.Model == "" {
		opt.Model = openai.Whisper1
	}
	cfg := openai.DefaultConfig(opt.APIKey)
	if opt.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opt.BaseURL, "/")
	}
	return &WhisperASR{client: openai.NewClientWithConfig(cfg), opt: opt}, nil
}

func (w *WhisperASR) Vendor() string { return string(VendorWhisper) }

func (w *WhisperASR) Transcribe(ctx context.Context, wav []byte) (Transcript, error) {
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.opt.Model,
		FilePath: "utterance.wav",
		Reader:   bytes.NewReader(wav),
		Language: w.opt.Language,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return Transcript{}, fmt.Errorf("whisper transcription: %w", err)
	}
	lang := w.opt.Language
	if lang == "" {
		lang = languageCode(resp.Language)
	}
	return Transcript{Text: strings.TrimSpace(resp.Text), Language: lang}, nil
}

// verbose_json reports the language by name
var languageNames = map[string]string{
	"english":    "en",
	"chinese":    "zh",
	"spanish":    "es",
	"french":     "fr",
	"german":     "de",
	"japanese":   "ja",
	"korean":     "ko",
	"portuguese": "pt",
	"russian":    "ru",
	"italian":    "it",
}

func languageCode(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if code, ok := languageNames[name]; ok {
		return code
	}
	return name
}
