package response

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Response JSON envelope for every REST reply
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"msg"`
	Data    interface{} `json:"data"`
	Error   string      `json:"error,omitempty"` // machine readable, failures only
}

// errorKind maps a known error text to a friendly reply.
type errorKind struct {
	match   string
	code    int
	message string
	error   string
}

// 按顺序匹配
var errorKinds = []errorKind{
	{"authorization required", http.StatusUnauthorized, "需要登录", "AUTH_REQUIRED"},
	{"token expired", http.StatusUnauthorized, "登录已过期，请重新登录", "TOKEN_EXPIRED"},
	{"bad token", http.StatusUnauthorized, "无效的令牌", "INVALID_TOKEN"},
	{"user not allow login", http.StatusForbidden, "用户已被禁用", "USER_DISABLED"},
	{"voice service disabled", http.StatusServiceUnavailable, "语音服务未启用", "VOICE_DISABLED"},
	{"too many requests", http.StatusTooManyRequests, "请求过于频繁，请稍后再试", "RATE_LIMITED"},
}

const unknownError = "UNKNOWN_ERROR"

func Success(c *gin.Context, msg string, data interface{}) {
	c.JSON(http.StatusOK, Response{Code: http.StatusOK, Message: msg, Data: data})
}

// Fail replies 200 with an application level error code.
func Fail(c *gin.Context, msg string, data interface{}) {
	c.JSON(http.StatusOK, Response{Code: http.StatusInternalServerError, Message: msg, Data: data, Error: unknownError})
}

// FromError builds the envelope for err. Known errors get a fixed code and
// message, anything else keeps httpStatus and its own text.
func FromError(httpStatus int, err error) Response {
	text := err.Error()
	for _, kind := range errorKinds {
		if strings.Contains(text, kind.match) {
			return Response{Code: kind.code, Message: kind.message, Error: kind.error}
		}
	}
	return Response{Code: httpStatus, Message: text, Error: unknownError}
}

func AbortWithStatusJSON(c *gin.Context, httpStatus int, err error) {
	c.AbortWithStatusJSON(httpStatus, FromError(httpStatus, err))
}
