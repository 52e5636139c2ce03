package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/code-100-precent/LingVoice/internal/models"
	"github.com/code-100-precent/LingVoice/pkg/logger"
	"github.com/code-100-precent/LingVoice/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"
)

// DefaultRate 每个客户端每分钟请求数
const DefaultRate = "60-M"

var ErrTooManyRequests = errors.New("too many requests")

// RateLimiter per-client limiter, keyed by user when authenticated and by
// client IP otherwise.
type RateLimiter struct {
	rate     limiter.Rate
	instance *limiter.Limiter
}

// NewRateLimiter parses a ulule formatted rate such as "60-M" or "10-S".
// An empty rate falls back to DefaultRate.
func NewRateLimiter(formatted string) (*RateLimiter, error) {
	if formatted == "" {
		formatted = DefaultRate
	}
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, fmt.Errorf("parse rate limit %q: %w", formatted, err)
	}
	store := memory.NewStoreWithOptions(limiter.StoreOptions{
		Prefix:          "lingvoice_limiter",
		CleanUpInterval: limiter.DefaultCleanUpInterval,
	})
	return &RateLimiter{
		rate:     rate,
		instance: limiter.New(store, rate),
	}, nil
}

func (rl *RateLimiter) Rate() limiter.Rate {
	return rl.rate
}

// Key user:<id> for authenticated requests, ip:<addr> otherwise
func (rl *RateLimiter) Key(c *gin.Context) string {
	if user := models.CurrentUser(c); user != nil {
		return "user:" + user.VoiceID()
	}
	return "ip:" + c.ClientIP()
}

// Middleware rejects with 429 once the key has used its quota.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return mgin.NewMiddleware(rl.instance,
		mgin.WithKeyGetter(rl.Key),
		mgin.WithLimitReachedHandler(func(c *gin.Context) {
			logger.Warn("Rate limit exceeded",
				zap.String("key", rl.Key(c)),
				zap.String("path", c.Request.URL.Path))
			response.AbortWithStatusJSON(c, http.StatusTooManyRequests, ErrTooManyRequests)
		}),
		mgin.WithErrorHandler(func(c *gin.Context, err error) {
			// 限流存储异常时放行
			logger.Error("rate limiter store failed", zap.Error(err))
			c.Next()
		}),
	)
}
