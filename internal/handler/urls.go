package handlers

import (
	"github.com/code-100-precent/LingVoice/internal/models"
	"github.com/code-100-precent/LingVoice/pkg/config"
	"github.com/code-100-precent/LingVoice/pkg/logger"
	"github.com/code-100-precent/LingVoice/pkg/metrics"
	"github.com/code-100-precent/LingVoice/pkg/middleware"
	voicehandler "github.com/code-100-precent/LingVoice/pkg/voice/handler"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Handlers struct {
	db          *gorm.DB
	cfg         *config.Config
	voice       *voicehandler.VoiceHandler // nil when voice is disabled
	metrics     *metrics.Metrics
	middlewares *middleware.MiddlewareManager
}

func NewHandlers(db *gorm.DB, cfg *config.Config, voice *voicehandler.VoiceHandler,
	m *metrics.Metrics, mgr *middleware.MiddlewareManager) *Handlers {
	return &Handlers{
		db:          db,
		cfg:         cfg,
		voice:       voice,
		metrics:     m,
		middlewares: mgr,
	}
}

func (h *Handlers) Register(engine *gin.Engine) {
	if h.middlewares != nil {
		h.middlewares.ApplyMiddlewares(engine)
	}
	if h.metrics != nil && h.cfg.Server.MonitorPrefix != "" {
		engine.GET(h.cfg.Server.MonitorPrefix, gin.WrapH(h.metrics.Handler()))
	}

	limited := []gin.HandlerFunc{middleware.WithGormDB(h.db)}
	if h.middlewares != nil {
		limited = append(limited, h.middlewares.RateLimiter().Middleware())
	}

	ws := engine.Group("/ws", limited...)
	ws.GET("/voice", h.handleVoiceWebsocket)

	r := engine.Group(h.cfg.Server.APIPrefix, limited...)
	h.registerSystemRoutes(r)
	h.registerVoiceRoutes(r)

	logger.Info("Routes registered",
		zap.String("apiPrefix", h.cfg.Server.APIPrefix),
		zap.Bool("voiceEnabled", h.voice != nil))
}

// registerSystemRoutes System Module
func (h *Handlers) registerSystemRoutes(r *gin.RouterGroup) {
	r.GET("/health", h.HealthCheck)
}

// registerVoiceRoutes Voice Module
func (h *Handlers) registerVoiceRoutes(r *gin.RouterGroup) {
	voice := r.Group("voice")
	{
		voice.GET("info", models.AuthRequired(h.cfg.Auth.Header), h.handleVoiceInfo)
	}
}
