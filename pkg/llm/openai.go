package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIEngine chat completion backed reasoning engine
type OpenAIEngine struct {
	client       *openai.Client
	model        string
	systemPrompt string
	history      *History
	logger       *zap.Logger
}

func NewOpenAIEngine(opt Options) (*OpenAIEngine, error) {
	if opt.APIKey == "" {
		return nil, errors.New("llm api key is required")
	}
	if opt.Model == "" {
		opt.Model = openai.GPT4oMini
	}
	cfg := openai.DefaultConfig(opt.APIKey)
	cfg.BaseURL = strings.TrimRight(opt.BaseURL, "/")
	if opt.Logger == nil {
		opt.Logger = zap.L()
	}
	return &OpenAIEngine{
		client:       openai.NewClientWithConfig(cfg),
		model:        opt.Model,
		systemPrompt: opt.SystemPrompt,
		history:      NewHistory(opt.HistoryUsers),
		logger:       opt.Logger,
	}, nil
}

func (e *OpenAIEngine) messages(req Request) []openai.ChatCompletionMessage {
	prompt := e.systemPrompt
	if req.VoiceMode {
		prompt += voiceModeInstruction
	}
	var msgs []openai.ChatCompletionMessage
	if strings.TrimSpace(prompt) != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: prompt})
	}
	for _, turn := range e.history.Recent(req.UserID, req.MemoryLimit) {
		msgs = append(msgs,
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: turn.User},
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: turn.Assistant},
		)
	}
	return append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Text})
}

func (e *OpenAIEngine) ProcessMessage(ctx context.Context, req Request) (*Result, error) {
	msgs := e.messages(req)
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    e.model,
		Messages: msgs,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completion returned no choices")
	}
	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	result := &Result{
		Response: reply,
		Reasoning: map[string]any{
			"model":             resp.Model,
			"finish_reason":     string(resp.Choices[0].FinishReason),
			"prompt_tokens":     resp.Usage.PromptTokens,
			"completion_tokens": resp.Usage.CompletionTokens,
			"context_messages":  len(msgs),
		},
	}
	if reply != "" {
		e.history.Append(req.UserID, Turn{User: req.Text, Assistant: reply})
		result.MemoryActions = []MemoryAction{{Type: "stm", Content: req.Text, Importance: 0.8}}
	}
	e.logger.Debug("[LLM] --- reply generated",
		zap.String("user_id", req.UserID), zap.Int("prompt_tokens", resp.Usage.PromptTokens))
	return result, nil
}
