package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/code-100-precent/LingVoice/pkg/events"
	"github.com/code-100-precent/LingVoice/pkg/metrics"
	"github.com/code-100-precent/LingVoice/pkg/voice/pipeline"
	"github.com/code-100-precent/LingVoice/pkg/voice/protocol"
	"github.com/code-100-precent/LingVoice/pkg/voice/sessions"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	DefaultTokenHeader     = "Authorization"
	DefaultReadBufferSize  = 32 * 1024
	DefaultWriteBufferSize = 64 * 1024
)

// Authenticator resolves a connection token to a user id.
type Authenticator func(ctx context.Context, token string) (userID string, err error)

type VoiceOptions struct {
	Models      *pipeline.Models
	Pipeline    protocol.Pipeline
	Auth        Authenticator
	Normalizer  sessions.Normalizer
	VAD         sessions.VADConfig
	TokenHeader string
	Registry    *Registry
	Events      events.Publisher
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
	Upgrader    *websocket.Upgrader
	Now         func() time.Time
}

func (o *VoiceOptions) loadConfigs() *VoiceOptions {
	if o.Logger == nil {
		o.Logger = zap.L()
	}
	if o.TokenHeader == "" {
		o.TokenHeader = DefaultTokenHeader
	}
	if o.VAD == (sessions.VADConfig{}) {
		o.VAD = sessions.DefaultVADConfig()
	}
	if o.Registry == nil {
		o.Registry = NewRegistry(o.Metrics, o.Logger)
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Upgrader == nil {
		o.Upgrader = &websocket.Upgrader{
			ReadBufferSize:  DefaultReadBufferSize,
			WriteBufferSize: DefaultWriteBufferSize,
			// origin is enforced by the CORS allow list on the HTTP side
			CheckOrigin: func(r *http.Request) bool { return true },
		}
	}
	return o
}
