package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/code-100-precent/LingVoice/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRateLimiter(t *testing.T) {
	rl, err := NewRateLimiter("10-S")
	require.NoError(t, err)
	assert.Equal(t, int64(10), rl.Rate().Limit)
	assert.Equal(t, time.Second, rl.Rate().Period)

	rl, err = NewRateLimiter("")
	require.NoError(t, err)
	assert.Equal(t, int64(60), rl.Rate().Limit)
	assert.Equal(t, time.Minute, rl.Rate().Period)

	_, err = NewRateLimiter("sixty")
	assert.Error(t, err)
}

func newLimitedRouter(t *testing.T, rate string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	rl, err := NewRateLimiter(rate)
	require.NoError(t, err)
	r := gin.New()
	r.Use(rl.Middleware())
	r.GET("/ws/voice", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func doGet(r *gin.Engine, ip string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ws/voice", nil)
	req.Header.Set("X-Forwarded-For", ip)
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimiter_RejectsOverQuota(t *testing.T) {
	r := newLimitedRouter(t, "2-M")

	assert.Equal(t, http.StatusOK, doGet(r, "203.0.113.1").Code)
	assert.Equal(t, http.StatusOK, doGet(r, "203.0.113.1").Code)

	w := doGet(r, "203.0.113.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "RATE_LIMITED")
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	// 其他IP不受影响
	assert.Equal(t, http.StatusOK, doGet(r, "203.0.113.2").Code)
}

func TestRateLimiter_KeyPrefersUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl, err := NewRateLimiter("1-M")
	require.NoError(t, err)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.Header.Set("X-Forwarded-For", "198.51.100.7")
	assert.Equal(t, "ip:198.51.100.7", rl.Key(c))

	user := &models.User{}
	user.ID = 42
	c.Set(models.UserField, user)
	assert.Equal(t, "user:42", rl.Key(c))
}

func TestCorsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CorsMiddleware([]string{"https://app.example.com"}))
	r.GET("/api/voice/info", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/voice/info", nil)
	req.Header.Set("Origin", "https://app.example.com")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodOptions, "/api/voice/info", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
