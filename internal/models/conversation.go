package models

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bytedance/sonic"
	"github.com/code-100-precent/LingVoice/pkg/voice/constants"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TitleMaxChars title length before truncation
const TitleMaxChars = 50

var ErrConversationNotFound = constants.ErrConversationNotFound

type Conversation struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	UserID    string    `json:"userId" gorm:"size:64;index"`
	Title     string    `json:"title" gorm:"size:255"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"index"`
}

func (Conversation) TableName() string {
	return CONVERSATION_TABLE_NAME
}

type Message struct {
	ID             string    `json:"id" gorm:"primaryKey;size:36"`
	ConversationID string    `json:"conversationId" gorm:"size:36;index:idx_conversation_ts"`
	UserID         string    `json:"userId" gorm:"size:64;index"`
	Role           string    `json:"role" gorm:"size:16"`
	Content        string    `json:"content" gorm:"type:text"`
	Timestamp      time.Time `json:"timestamp" gorm:"index:idx_conversation_ts"`
	Metadata       string    `json:"metadata" gorm:"type:text"`
}

func (Message) TableName() string {
	return MESSAGE_TABLE_NAME
}

// ConversationStore persists voice turns with gorm.
type ConversationStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewConversationStore(db *gorm.DB) *ConversationStore {
	return &ConversationStore{db: db, now: time.Now}
}

func (s *ConversationStore) CreateConversation(ctx context.Context, userID string) (string, error) {
	now := s.now()
	conv := Conversation{ID: uuid.NewString(), UserID: userID, CreatedAt: now, UpdatedAt: now}
	if err := s.db.WithContext(ctx).Create(&conv).Error; err != nil {
		return "", err
	}
	return conv.ID, nil
}

// UpdateTimestamp touches a conversation owned by userID.
func (s *ConversationStore) UpdateTimestamp(ctx context.Context, conversationID, userID string) error {
	return s.update(ctx, map[string]any{"updated_at": s.now()}, "id = ? AND user_id = ?", conversationID, userID)
}

func (s *ConversationStore) UpdateTitle(ctx context.Context, conversationID, title string) error {
	return s.update(ctx, map[string]any{"title": title}, "id = ?", conversationID)
}

func (s *ConversationStore) update(ctx context.Context, vals map[string]any, query string, args ...any) error {
	result := s.db.WithContext(ctx).Model(&Conversation{}).Where(query, args...).Updates(vals)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// GenerateTitle first TitleMaxChars characters of the text, cut at a word
// boundary when possible, with "..." when truncated.
func (s *ConversationStore) GenerateTitle(text string) string {
	return GenerateTitle(text)
}

func GenerateTitle(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= TitleMaxChars {
		return text
	}
	runes := []rune(text)
	cut := string(runes[:TitleMaxChars])
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:") + "..."
}

func (s *ConversationStore) AddMessage(ctx context.Context, conversationID, userID, role, text string, ts time.Time, metadata map[string]any) (string, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	meta, err := sonic.MarshalString(metadata)
	if err != nil {
		return "", err
	}
	msg := Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		UserID:         userID,
		Role:           role,
		Content:        text,
		Timestamp:      ts,
		Metadata:       meta,
	}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return "", err
	}
	return msg.ID, nil
}

// GetConversation scoped to the owner
func (s *ConversationStore) GetConversation(ctx context.Context, conversationID, userID string) (*Conversation, error) {
	var conv Conversation
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", conversationID, userID).Take(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// Messages in timestamp order
func (s *ConversationStore) Messages(ctx context.Context, conversationID string, limit, offset int) ([]Message, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("timestamp ASC").
		Limit(limit).Offset(offset).
		Find(&out).Error
	return out, err
}

// MetadataMap decodes the stored metadata JSON.
func (m *Message) MetadataMap() (map[string]any, error) {
	out := map[string]any{}
	if m.Metadata == "" {
		return out, nil
	}
	err := sonic.UnmarshalString(m.Metadata, &out)
	return out, err
}
