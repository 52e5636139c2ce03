package listeners

import (
	"context"
	"fmt"

	"github.com/code-100-precent/LingVoice/internal/models"
	"github.com/code-100-precent/LingVoice/pkg/cache"
	"github.com/code-100-precent/LingVoice/pkg/events"
	"github.com/code-100-precent/LingVoice/pkg/logger"
	"github.com/code-100-precent/LingVoice/pkg/voice/sessions"
	"github.com/spf13/cast"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Event data keys shared with the voice handler
const (
	KeySessionID      = "session_id"
	KeyUserID         = "user_id"
	KeyConversationID = "conversation_id"
	KeyStats          = "stats"
)

// InitVoiceListeners wires voice session events to persistence and cache
// cleanup. c may be nil.
func InitVoiceListeners(bus *events.EventBus, db *gorm.DB, c cache.Cache) {
	logger.Info("Initializing voice listeners...")

	bus.Subscribe(events.VoiceSessionOpened, func(e events.Event) error {
		logger.Info("Voice session opened",
			zap.String("sessionId", cast.ToString(e.Data[KeySessionID])),
			zap.String("userId", cast.ToString(e.Data[KeyUserID])))
		return nil
	})

	bus.Subscribe(events.VoiceSessionClosed, func(e events.Event) error {
		return onVoiceSessionClosed(db, c, e)
	})

	bus.Subscribe(events.VoiceTurnCompleted, func(e events.Event) error {
		logger.Debug("Voice turn completed",
			zap.String("sessionId", cast.ToString(e.Data[KeySessionID])),
			zap.String("outcome", cast.ToString(e.Data["outcome"])),
			zap.Int64("latencyMs", cast.ToInt64(e.Data["latency_ms"])))
		return nil
	})

	logger.Info("Voice module listeners initialized successfully")
}

func onVoiceSessionClosed(db *gorm.DB, c cache.Cache, e events.Event) error {
	sessionID := cast.ToString(e.Data[KeySessionID])
	userID := cast.ToString(e.Data[KeyUserID])
	if sessionID == "" || userID == "" {
		return fmt.Errorf("voice session closed event without ids")
	}

	if c != nil {
		// best effort, the key also expires on its own
		if err := c.Delete(context.Background(), cache.LastReplyKey(userID)); err != nil {
			logger.Debug("clear last reply failed", zap.String("userId", userID), zap.Error(err))
		}
	}

	snap, ok := e.Data[KeyStats].(sessions.StatsSnapshot)
	if !ok {
		logger.Warn("Voice session closed without stats", zap.String("sessionId", sessionID))
		return nil
	}
	log := models.NewVoiceSessionLog(sessionID, userID, cast.ToString(e.Data[KeyConversationID]), snap)
	if err := models.SaveVoiceSessionLog(db, log); err != nil {
		return fmt.Errorf("save voice session log: %w", err)
	}
	logger.Info("Voice session closed",
		zap.String("sessionId", sessionID),
		zap.Int("turns", snap.Turns),
		zap.Int64("durationMs", log.DurationMs))
	return nil
}
