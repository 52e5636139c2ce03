package models

import (
	"time"

	"github.com/code-100-precent/LingVoice/pkg/voice/sessions"
	"gorm.io/gorm"
)

// VoiceSessionLog one row per closed voice session
type VoiceSessionLog struct {
	BaseModel
	SessionID        string    `json:"sessionId" gorm:"size:128;index"`
	UserID           string    `json:"userId" gorm:"size:64;index"`
	ConversationID   string    `json:"conversationId" gorm:"size:36"`
	StartedAt        time.Time `json:"startedAt"`
	DurationMs       int64     `json:"durationMs"`
	MessagesSent     int64     `json:"messagesSent"`
	MessagesReceived int64     `json:"messagesReceived"`
	Transcriptions   int64     `json:"transcriptions"`
	Syntheses        int64     `json:"syntheses"`
	Errors           int64     `json:"errors"`
	Turns            int       `json:"turns"`
	AvgLatencyMs     int64     `json:"avgLatencyMs"`
	MaxLatencyMs     int64     `json:"maxLatencyMs"`
}

func (VoiceSessionLog) TableName() string {
	return VOICE_SESSION_LOG_TABLE_NAME
}

func NewVoiceSessionLog(sessionID, userID, conversationID string, snap sessions.StatsSnapshot) *VoiceSessionLog {
	return &VoiceSessionLog{
		SessionID:        sessionID,
		UserID:           userID,
		ConversationID:   conversationID,
		StartedAt:        snap.StartTime,
		DurationMs:       snap.Duration.Milliseconds(),
		MessagesSent:     snap.MessagesSent,
		MessagesReceived: snap.MessagesReceived,
		Transcriptions:   snap.Transcriptions,
		Syntheses:        snap.Syntheses,
		Errors:           snap.Errors,
		Turns:            snap.Turns,
		AvgLatencyMs:     snap.AvgLatency.Milliseconds(),
		MaxLatencyMs:     snap.MaxLatency.Milliseconds(),
	}
}

func SaveVoiceSessionLog(db *gorm.DB, log *VoiceSessionLog) error {
	return db.Create(log).Error
}

// ListVoiceSessionLogs newest first
func ListVoiceSessionLogs(db *gorm.DB, userID string, limit int) ([]VoiceSessionLog, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []VoiceSessionLog
	err := db.Where("user_id = ?", userID).Order("id DESC").Limit(limit).Find(&out).Error
	return out, err
}

// AllModels tables created by migrations
func AllModels() []any {
	return []any{&User{}, &Conversation{}, &Message{}, &VoiceSessionLog{}}
}
