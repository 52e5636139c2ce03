package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/code-100-precent/LingVoice/internal/models"
	"github.com/code-100-precent/LingVoice/pkg/response"
	voicehandler "github.com/code-100-precent/LingVoice/pkg/voice/handler"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

var ErrVoiceDisabled = errors.New("voice service disabled")

// SupportedLanguages advertised in /api/voice/info
var SupportedLanguages = []string{"en", "zh", "es", "fr", "de", "ja", "ko"}

// TokenAuthenticator checks connection tokens against the user table.
func TokenAuthenticator(db *gorm.DB) voicehandler.Authenticator {
	return func(ctx context.Context, token string) (string, error) {
		user, err := models.AuthenticateToken(db.WithContext(ctx), token)
		if err != nil {
			return "", err
		}
		return user.VoiceID(), nil
	}
}

func (h *Handlers) handleVoiceWebsocket(c *gin.Context) {
	if h.voice == nil {
		response.AbortWithStatusJSON(c, http.StatusServiceUnavailable, ErrVoiceDisabled)
		return
	}
	h.voice.ServeWS(c)
}

// handleVoiceInfo active sessions and model capabilities
func (h *Handlers) handleVoiceInfo(c *gin.Context) {
	if h.voice == nil {
		response.Success(c, "voice info", gin.H{"enabled": false, "active_sessions": 0})
		return
	}
	response.Success(c, "voice info", h.voice.Info(true, SupportedLanguages))
}
