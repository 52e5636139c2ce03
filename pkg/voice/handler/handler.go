package handler

import (
	"fmt"
	"strings"
	"time"

	"github.com/code-100-precent/LingVoice/pkg/events"
	"github.com/code-100-precent/LingVoice/pkg/voice/constants"
	"github.com/code-100-precent/LingVoice/pkg/voice/pipeline"
	"github.com/code-100-precent/LingVoice/pkg/voice/protocol"
	"github.com/code-100-precent/LingVoice/pkg/voice/sessions"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// VoiceHandler accepts /ws/voice connections and runs one session per socket.
type VoiceHandler struct {
	opts *VoiceOptions
}

func NewVoiceHandler(opts *VoiceOptions) *VoiceHandler {
	return &VoiceHandler{opts: opts.loadConfigs()}
}

func (h *VoiceHandler) Registry() *Registry { return h.opts.Registry }

func (h *VoiceHandler) Models() *pipeline.Models { return h.opts.Models }

// ServeWS upgrades first and authenticates after, so a rejected client sees
// close code 1008 instead of an HTTP error.
func (h *VoiceHandler) ServeWS(c *gin.Context) {
	logger := h.opts.Logger
	conn, err := h.opts.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("[Handler] --- websocket upgrade failed", zap.Error(err))
		return
	}

	ctx := c.Request.Context()
	token := c.Query("token")
	if token == "" {
		token = c.GetHeader(h.opts.TokenHeader)
	}
	if strings.TrimSpace(token) == "" || h.opts.Auth == nil {
		h.reject(conn, constants.CloseAuthFailed, "authentication required")
		return
	}
	userID, err := h.opts.Auth(ctx, token)
	if err != nil || userID == "" {
		logger.Info("[Handler] --- token rejected", zap.Error(err))
		h.reject(conn, constants.CloseAuthFailed, "invalid token")
		return
	}
	if !h.opts.Models.Ready() || h.opts.Pipeline == nil {
		logger.Error("[Handler] --- voice models not ready", zap.String("user_id", userID))
		h.reject(conn, constants.CloseInternalError, "voice service unavailable")
		return
	}

	now := h.opts.Now()
	vad := sessions.NewVADBuffer(h.opts.VAD, h.opts.Normalizer, logger)
	session, err := h.opts.Registry.Create(ctx, &protocol.SessionOption{
		Conn:           conn,
		ID:             fmt.Sprintf("%s_%d", userID, now.Unix()),
		UserID:         userID,
		ConversationID: c.Query("conversation_id"),
		VAD:            vad,
		Pipeline:       h.opts.Pipeline,
		Logger:         logger,
		Now:            h.opts.Now,
	})
	if err != nil {
		logger.Error("[Handler] --- 创建会话失败", zap.Error(err))
		h.reject(conn, constants.CloseInternalError, "session error")
		return
	}
	h.publish(events.VoiceSessionOpened, session, nil)

	code, reason := constants.CloseNormal, ""
	if err := session.Run(); err != nil {
		code, reason = constants.CloseInternalError, "session error"
	}
	session.Close(code, reason)
	h.opts.Registry.Remove(session.ID())

	snap := session.Stats().Snapshot(h.opts.Now())
	logger.Info("[Handler] --- 会话结束",
		zap.String("session_id", session.ID()),
		zap.Int64("sent", snap.MessagesSent),
		zap.Int64("received", snap.MessagesReceived),
		zap.Int("turns", snap.Turns),
		zap.Int64("errors", snap.Errors))
	h.publish(events.VoiceSessionClosed, session, &snap)
}

func (h *VoiceHandler) publish(eventType string, s *protocol.Session, snap *sessions.StatsSnapshot) {
	if h.opts.Events == nil {
		return
	}
	data := map[string]interface{}{
		"session_id":      s.ID(),
		"user_id":         s.UserID(),
		"conversation_id": s.ConversationID(),
	}
	if snap != nil {
		data["stats"] = *snap
	}
	h.opts.Events.Publish(events.Event{
		Type:      eventType,
		Timestamp: h.opts.Now(),
		Data:      data,
		Source:    constants.VoiceSessionSourceName,
	})
}

// reject closes a socket that never became a session.
func (h *VoiceHandler) reject(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		h.opts.Logger.Debug("[Handler] --- 发送WebSocket关闭消息失败", zap.Error(err))
	}
	_ = conn.Close()
}

// Info payload of GET /api/voice/info
func (h *VoiceHandler) Info(enabled bool, languages []string) gin.H {
	registry := h.opts.Registry
	return gin.H{
		"enabled":         enabled,
		"models":          h.opts.Models.Info(),
		"active_sessions": registry.Count(),
		"session_ids":     registry.IDs(),
		"capabilities": gin.H{
			"streaming":     true,
			"complete_mode": true,
			"audio_format":  "wav",
			"languages":     languages,
			"tts":           h.opts.Models.TTSAvailable(),
		},
	}
}
