package models

import (
	"time"

	"gorm.io/gorm"
)

// gin context keys
const (
	DbField   = "_lingvoice_db"
	UserField = "_lingvoice_user"
)

const (
	USER_TABLE_NAME              = "users"
	CONVERSATION_TABLE_NAME      = "conversations"
	MESSAGE_TABLE_NAME           = "messages"
	VOICE_SESSION_LOG_TABLE_NAME = "voice_session_logs"
	AUTHORIZATION_PREFIX         = "Bearer "
)

const (
	SoftDeleteStatusActive  int8 = 0 // Not deleted
	SoftDeleteStatusDeleted int8 = 1 // Deleted
)

type BaseModel struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime;comment:Creation time"`
	UpdatedAt time.Time `json:"updatedAt,omitempty" gorm:"autoUpdateTime;comment:Update time"`
	IsDeleted int8      `json:"isDeleted,omitempty" gorm:"default:0;index;comment:Soft delete flag (0:not deleted, 1:deleted)"`
}

// BeforeCreate GORM hook: fill timestamps
func (m *BaseModel) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = now
	}
	return nil
}

func (m *BaseModel) BeforeUpdate(tx *gorm.DB) error {
	m.UpdatedAt = time.Now()
	return nil
}

func (m *BaseModel) IsSoftDeleted() bool {
	return m.IsDeleted == SoftDeleteStatusDeleted
}

// SoftDelete marks the row, callers still have to save it
func (m *BaseModel) SoftDelete() {
	m.IsDeleted = SoftDeleteStatusDeleted
	m.UpdatedAt = time.Now()
}
