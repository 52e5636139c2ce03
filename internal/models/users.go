package models

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/code-100-precent/LingVoice/pkg/logger"
	"github.com/code-100-precent/LingVoice/pkg/response"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 角色常量
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

var (
	ErrBadToken     = errors.New("bad token")
	ErrTokenExpired = errors.New("token expired")
	ErrUserDisabled = errors.New("user not allow login")
	ErrAuthRequired = errors.New("authorization required")
)

type User struct {
	BaseModel
	Email       string     `json:"email" gorm:"size:128;uniqueIndex"`
	Password    string     `json:"-" gorm:"size:128"`
	DisplayName string     `json:"displayName,omitempty" gorm:"size:128"`
	Enabled     bool       `json:"-"`
	LastLogin   *time.Time `json:"lastLogin,omitempty"`
	Role        string     `json:"role,omitempty" gorm:"size:50;default:'user'"`
}

func (u *User) TableName() string {
	return USER_TABLE_NAME
}

// VoiceID is the user id the voice pipeline and the conversation tables use.
func (u *User) VoiceID() string {
	return strconv.FormatUint(uint64(u.ID), 10)
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

func HashPassword(password string) string {
	if password == "" {
		return ""
	}
	hashVal := sha256.Sum256([]byte(password))
	return fmt.Sprintf("sha256$%x", hashVal)
}

func CheckPassword(user *User, password string) bool {
	if user.Password == "" {
		return false
	}
	return user.Password == HashPassword(password)
}

func CreateUser(db *gorm.DB, email, password, displayName string) (*User, error) {
	user := User{
		Email:       strings.ToLower(strings.TrimSpace(email)),
		Password:    HashPassword(password),
		DisplayName: displayName,
		Enabled:     true,
		Role:        RoleUser,
	}
	if err := db.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func GetUserByUID(db *gorm.DB, userID uint) (*User, error) {
	var user User
	if err := db.Where("id = ? AND is_deleted = ?", userID, SoftDeleteStatusActive).Take(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func GetUserByEmail(db *gorm.DB, email string) (*User, error) {
	var user User
	err := db.Where("email = ? AND is_deleted = ?", strings.ToLower(email), SoftDeleteStatusActive).Take(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func CheckUserAllowLogin(user *User) error {
	if !user.Enabled {
		return ErrUserDisabled
	}
	return nil
}

// EncodeHashToken token format: base64(email$expire)-sha256(password+email$expire)
func EncodeHashToken(user *User, timestamp int64) string {
	t := fmt.Sprintf("%s$%d", user.Email, timestamp)
	hashVal := sha256.Sum256([]byte(user.Password + t))
	return base64.RawStdEncoding.EncodeToString([]byte(t)) + "-" + fmt.Sprintf("%x", hashVal)
}

// BuildAuthToken a token valid for the given duration
func BuildAuthToken(user *User, expired time.Duration) string {
	return EncodeHashToken(user, time.Now().Add(expired).Unix())
}

func DecodeHashToken(db *gorm.DB, hash string) (*User, error) {
	vals := strings.Split(hash, "-")
	if len(vals) != 2 {
		return nil, ErrBadToken
	}
	data, err := base64.RawStdEncoding.DecodeString(vals[0])
	if err != nil {
		return nil, ErrBadToken
	}

	// email 中可能有 $，按最后一个分隔
	raw := string(data)
	idx := strings.LastIndex(raw, "$")
	if idx <= 0 {
		return nil, ErrBadToken
	}
	ts, err := strconv.ParseInt(raw[idx+1:], 10, 64)
	if err != nil {
		return nil, ErrBadToken
	}
	if time.Now().Unix() > ts {
		return nil, ErrTokenExpired
	}

	user, err := GetUserByEmail(db, raw[:idx])
	if err != nil {
		return nil, ErrBadToken
	}
	if EncodeHashToken(user, ts) != hash {
		return nil, ErrBadToken
	}
	return user, nil
}

// AuthenticateToken resolves a raw header or query token to an enabled user.
func AuthenticateToken(db *gorm.DB, token string) (*User, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, AUTHORIZATION_PREFIX))
	if token == "" {
		return nil, ErrAuthRequired
	}
	user, err := DecodeHashToken(db, token)
	if err != nil {
		return nil, err
	}
	if err := CheckUserAllowLogin(user); err != nil {
		return nil, err
	}
	return user, nil
}

// AuthRequired gin middleware, the token comes from header or ?token=
func AuthRequired(header string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentUser(c) != nil {
			c.Next()
			return
		}
		token := c.GetHeader(header)
		if token == "" {
			token = c.Query("token")
		}
		db := c.MustGet(DbField).(*gorm.DB)
		user, err := AuthenticateToken(db, token)
		if err != nil {
			logger.Debug("user.auth", zap.Error(err))
			status := http.StatusUnauthorized
			if errors.Is(err, ErrUserDisabled) {
				status = http.StatusForbidden
			}
			response.AbortWithStatusJSON(c, status, err)
			return
		}
		c.Set(UserField, user)
		c.Next()
	}
}

func CurrentUser(c *gin.Context) *User {
	if cachedObj, exists := c.Get(UserField); exists && cachedObj != nil {
		return cachedObj.(*User)
	}
	return nil
}

func SetLastLogin(db *gorm.DB, user *User) error {
	now := time.Now()
	user.LastLogin = &now
	return db.Model(user).UpdateColumn("last_login", &now).Error
}
