package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// processPath is the reasoning service endpoint.
const processPath = "/process"

// HTTPEngine 调用外部推理服务
type HTTPEngine struct {
	client *resty.Client
	logger *zap.Logger
}

func NewHTTPEngine(opt Options) (*HTTPEngine, error) {
	if opt.BaseURL == "" {
		return nil, errors.New("llm base url is required for the http provider")
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(opt.BaseURL, "/")).
		SetTimeout(opt.Timeout).
		SetHeader("Content-Type", "application/json").
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)
	if opt.APIKey != "" {
		client.SetAuthToken(opt.APIKey)
	}
	logger := opt.Logger
	if logger == nil {
		logger = zap.L()
	}
	return &HTTPEngine{client: client, logger: logger}, nil
}

func (e *HTTPEngine) ProcessMessage(ctx context.Context, req Request) (*Result, error) {
	var result Result
	resp, err := e.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		Post(processPath)
	if err != nil {
		return nil, fmt.Errorf("reasoning request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("reasoning service returned %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	e.logger.Debug("[LLM] --- reasoning service replied",
		zap.String("user_id", req.UserID), zap.Duration("latency", resp.Time()))
	return &result, nil
}
