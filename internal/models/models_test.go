package models

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/code-100-precent/LingVoice/pkg/voice/constants"
	"github.com/code-100-precent/LingVoice/pkg/voice/sessions"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	// 内存库每个连接各自独立
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(AllModels()...)
	require.NoError(t, err)

	return db
}

func TestUser_TokenRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	user, err := CreateUser(db, " Alice@Example.com ", "secret", "Alice")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.True(t, CheckPassword(user, "secret"))
	assert.False(t, CheckPassword(user, "wrong"))

	token := BuildAuthToken(user, time.Hour)
	got, err := AuthenticateToken(db, AUTHORIZATION_PREFIX+token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, user.VoiceID(), got.VoiceID())
}

func TestUser_TokenFailures(t *testing.T) {
	db := setupTestDB(t)
	user, err := CreateUser(db, "bob@example.com", "secret", "Bob")
	require.NoError(t, err)

	_, err = AuthenticateToken(db, "")
	assert.ErrorIs(t, err, ErrAuthRequired)

	_, err = AuthenticateToken(db, "garbage")
	assert.ErrorIs(t, err, ErrBadToken)

	expired := EncodeHashToken(user, time.Now().Add(-time.Minute).Unix())
	_, err = AuthenticateToken(db, expired)
	assert.ErrorIs(t, err, ErrTokenExpired)

	// 修改密码后旧令牌失效
	token := BuildAuthToken(user, time.Hour)
	require.NoError(t, db.Model(user).Update("password", HashPassword("changed")).Error)
	_, err = AuthenticateToken(db, token)
	assert.ErrorIs(t, err, ErrBadToken)

	require.NoError(t, db.Model(user).Update("enabled", false).Error)
	user.Password = HashPassword("changed")
	_, err = AuthenticateToken(db, BuildAuthToken(user, time.Hour))
	assert.ErrorIs(t, err, ErrUserDisabled)
}

func TestAuthRequired(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := setupTestDB(t)
	user, err := CreateUser(db, "carol@example.com", "secret", "Carol")
	require.NoError(t, err)

	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(DbField, db) })
	r.GET("/me", AuthRequired("Authorization"), func(c *gin.Context) {
		c.String(http.StatusOK, CurrentUser(c).Email)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "AUTH_REQUIRED")

	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+BuildAuthToken(user, time.Hour))
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "carol@example.com", rr.Body.String())

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/me?token="+BuildAuthToken(user, time.Hour), nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestConversationStore_Lifecycle(t *testing.T) {
	db := setupTestDB(t)
	store := NewConversationStore(db)
	ctx := context.Background()

	id, err := store.CreateConversation(ctx, "42")
	require.NoError(t, err)
	assert.Len(t, id, 36)

	require.NoError(t, store.UpdateTitle(ctx, id, "Voice chat"))
	before, err := store.GetConversation(ctx, id, "42")
	require.NoError(t, err)
	assert.Equal(t, "Voice chat", before.Title)

	store.now = func() time.Time { return before.UpdatedAt.Add(time.Minute) }
	require.NoError(t, store.UpdateTimestamp(ctx, id, "42"))
	after, err := store.GetConversation(ctx, id, "42")
	require.NoError(t, err)
	assert.True(t, after.UpdatedAt.After(before.UpdatedAt))

	_, err = store.GetConversation(ctx, id, "other-user")
	assert.ErrorIs(t, err, ErrConversationNotFound)
	assert.ErrorIs(t, store.UpdateTimestamp(ctx, "missing", "42"), ErrConversationNotFound)
}

func TestConversationStore_UpdateTimestampScopedToOwner(t *testing.T) {
	db := setupTestDB(t)
	store := NewConversationStore(db)
	ctx := context.Background()

	id, err := store.CreateConversation(ctx, "alice")
	require.NoError(t, err)
	before, err := store.GetConversation(ctx, id, "alice")
	require.NoError(t, err)

	store.now = func() time.Time { return before.UpdatedAt.Add(time.Hour) }
	err = store.UpdateTimestamp(ctx, id, "mallory")
	assert.ErrorIs(t, err, constants.ErrConversationNotFound)

	after, err := store.GetConversation(ctx, id, "alice")
	require.NoError(t, err)
	assert.True(t, after.UpdatedAt.Equal(before.UpdatedAt))
}

func TestConversationStore_MessagesInOrder(t *testing.T) {
	db := setupTestDB(t)
	store := NewConversationStore(db)
	ctx := context.Background()
	id, err := store.CreateConversation(ctx, "42")
	require.NoError(t, err)

	at := time.Unix(1700000000, 0)
	_, err = store.AddMessage(ctx, id, "42", "assistant", "hi, how can I help", at.Add(time.Millisecond),
		map[string]any{"mode": "voice", "reasoning": map[string]any{"model": "gpt"}})
	require.NoError(t, err)
	_, err = store.AddMessage(ctx, id, "42", "user", "hello", at, map[string]any{"mode": "voice"})
	require.NoError(t, err)

	msgs, err := store.Messages(ctx, id, 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "assistant", msgs[1].Role)

	meta, err := msgs[1].MetadataMap()
	require.NoError(t, err)
	assert.Equal(t, "voice", meta["mode"])
	assert.Equal(t, map[string]any{"model": "gpt"}, meta["reasoning"])
}

func TestGenerateTitle(t *testing.T) {
	assert.Equal(t, "What is the weather", GenerateTitle("  What is   the weather "))

	long := "Could you please tell me about the history of the Roman empire and its fall"
	title := GenerateTitle(long)
	assert.True(t, strings.HasSuffix(title, "..."))
	assert.Equal(t, "Could you please tell me about the history of the...", title)
	assert.LessOrEqual(t, len([]rune(title)), TitleMaxChars+3)

	// 中文没有空格时按字符截断
	zh := strings.Repeat("语", 60)
	assert.Equal(t, strings.Repeat("语", 50)+"...", GenerateTitle(zh))
}

func TestVoiceSessionLog(t *testing.T) {
	db := setupTestDB(t)
	start := time.Unix(1700000000, 0)
	snap := sessions.StatsSnapshot{
		StartTime:      start,
		Duration:       90 * time.Second,
		MessagesSent:   12,
		Transcriptions: 3,
		Turns:          3,
		AvgLatency:     1500 * time.Millisecond,
		MaxLatency:     2 * time.Second,
	}
	require.NoError(t, SaveVoiceSessionLog(db, NewVoiceSessionLog("42_1700000000", "42", "conv", snap)))
	require.NoError(t, SaveVoiceSessionLog(db, NewVoiceSessionLog("42_1700000100", "42", "", sessions.StatsSnapshot{})))

	logs, err := ListVoiceSessionLogs(db, "42", 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "42_1700000100", logs[0].SessionID)
	assert.Equal(t, int64(90000), logs[1].DurationMs)
	assert.Equal(t, int64(1500), logs[1].AvgLatencyMs)
}
