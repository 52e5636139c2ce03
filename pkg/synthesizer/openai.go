package synthesizer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"
)

type OpenAITTS struct {
	client *openai.Client
	model  string
	voice  string
}

func NewOpenAITTS(opt Options) (*OpenAITTS, error) {
	if opt.APIKey == "" {
		return nil, errors.New("tts api key is required")
	}
	if opt.Model == "" {
		opt.Model = string(openai.TTSModel1)
	}
	if opt.Voice == "" {
		opt.Voice = string(openai.VoiceAlloy)
	}
	cfg := openai.DefaultConfig(opt.APIKey)
	if opt.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opt.BaseURL, "/")
	}
	return &OpenAITTS{client: openai.NewClientWithConfig(cfg), model: opt.Model, voice: opt.Voice}, nil
}

func (t *OpenAITTS) Provider() TTSProvider { return ProviderOpenAI }

func (t *OpenAITTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("文本不能为空")
	}
	resp, err := t.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(t.model),
		Input:          text,
		Voice:          openai.SpeechVoice(t.voice),
		ResponseFormat: openai.SpeechResponseFormatWav,
	})
	if err != nil {
		return nil, fmt.Errorf("openai speech: %w", err)
	}
	defer resp.Close()
	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read speech body: %w", err)
	}
	return data, nil
}
