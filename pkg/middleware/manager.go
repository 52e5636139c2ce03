package middleware

import (
	"github.com/code-100-precent/LingVoice/pkg/config"
	"github.com/code-100-precent/LingVoice/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MiddlewareManager 中间件管理器
type MiddlewareManager struct {
	config      config.MiddlewareConfig
	rateLimiter *RateLimiter
	logger      *zap.Logger
}

// NewMiddlewareManager 创建中间件管理器
func NewMiddlewareManager(cfg config.MiddlewareConfig, lg *zap.Logger) (*MiddlewareManager, error) {
	if lg == nil {
		lg = zap.L()
	}
	rl, err := NewRateLimiter(cfg.RateLimit)
	if err != nil {
		return nil, err
	}
	rate := rl.Rate()
	logger.Info("Rate limiter initialized",
		zap.Int64("limit", rate.Limit),
		zap.Duration("period", rate.Period))
	return &MiddlewareManager{config: cfg, rateLimiter: rl, logger: lg}, nil
}

func (mgr *MiddlewareManager) RateLimiter() *RateLimiter {
	return mgr.rateLimiter
}

// ApplyMiddlewares 应用全局中间件: CORS, 请求日志, 恢复
func (mgr *MiddlewareManager) ApplyMiddlewares(r gin.IRoutes) {
	logger.Info("Applying middlewares",
		zap.Bool("cors", mgr.config.EnableCORS),
		zap.Strings("allowedOrigins", mgr.config.AllowedOrigins))
	if mgr.config.EnableCORS {
		r.Use(CorsMiddleware(mgr.config.AllowedOrigins))
	}
	r.Use(LoggerMiddleware(mgr.logger))
	r.Use(gin.Recovery())
}
