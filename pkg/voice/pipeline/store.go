package pipeline

import (
	"context"
	"time"
)

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationStore is the conversation manager and message store the
// pipeline writes each turn to.
type ConversationStore interface {
	CreateConversation(ctx context.Context, userID string) (string, error)
	// UpdateTimestamp returns constants.ErrConversationNotFound when the
	// conversation does not exist or belongs to someone else.
	UpdateTimestamp(ctx context.Context, conversationID, userID string) error
	UpdateTitle(ctx context.Context, conversationID, title string) error
	GenerateTitle(text string) string
	AddMessage(ctx context.Context, conversationID, userID, role, text string, ts time.Time, metadata map[string]any) (string, error)
}
