package llm

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ProviderType LLM 提供者类型
type ProviderType string

const (
	ProviderTypeOpenAI ProviderType = "openai" // OpenAI 兼容的 API
	ProviderTypeHTTP   ProviderType = "http"   // 外部推理服务
)

type Options struct {
	Provider     string
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	Timeout      time.Duration
	HistoryUsers int // users kept in the short-term history
	Logger       *zap.Logger
}

// NewReasoningEngine 根据配置创建推理引擎
func NewReasoningEngine(opt Options) (ReasoningEngine, error) {
	if opt.Logger == nil {
		opt.Logger = zap.L()
	}
	if opt.Timeout <= 0 {
		opt.Timeout = 30 * time.Second
	}
	providerType := ProviderType(strings.ToLower(strings.TrimSpace(opt.Provider)))
	switch providerType {
	case ProviderTypeHTTP:
		return NewHTTPEngine(opt)
	case ProviderTypeOpenAI, "":
		if opt.BaseURL == "" {
			opt.BaseURL = "https://api.openai.com/v1"
		}
		return NewOpenAIEngine(opt)
	}
	return nil, fmt.Errorf("unsupported llm provider %q", opt.Provider)
}
