package cache

import (
	"context"
	"strings"
	"time"
)

// Cache is the user-scoped transient store. Values are opaque strings.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)

	// Set stores value; expiration <= 0 uses the backend default.
	Set(ctx context.Context, key string, value string, expiration time.Duration) error

	Delete(ctx context.Context, key string) error

	Exists(ctx context.Context, key string) bool

	// GetWithTTL retrieves value with remaining TTL
	GetWithTTL(ctx context.Context, key string) (string, time.Duration, bool)

	Close() error
}

// Config defines cache configuration
type Config struct {
	// local, gocache or redis
	Type  string      `json:"type" yaml:"type" env:"CACHE_TYPE" default:"local"`
	Redis RedisConfig `json:"redis" yaml:"redis"`
	Local LocalConfig `json:"local" yaml:"local"`
}

// RedisConfig defines Redis configuration
type RedisConfig struct {
	Addr         string        `json:"addr" yaml:"addr" env:"REDIS_ADDR" default:"localhost:6379"`
	Password     string        `json:"password" yaml:"password" env:"REDIS_PASSWORD"`
	DB           int           `json:"db" yaml:"db" env:"REDIS_DB" default:"0"`
	PoolSize     int           `json:"pool_size" yaml:"pool_size" env:"REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `json:"min_idle_conns" yaml:"min_idle_conns" env:"REDIS_MIN_IDLE_CONNS" default:"5"`
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout" env:"REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout" env:"REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" env:"REDIS_WRITE_TIMEOUT" default:"3s"`
	IdleTimeout  time.Duration `json:"idle_timeout" yaml:"idle_timeout" env:"REDIS_IDLE_TIMEOUT" default:"5m"`
}

// LocalConfig defines local cache configuration
type LocalConfig struct {
	MaxSize           int           `json:"max_size" yaml:"max_size" env:"LOCAL_CACHE_MAX_SIZE" default:"1000"`
	DefaultExpiration time.Duration `json:"default_expiration" yaml:"default_expiration" env:"LOCAL_CACHE_DEFAULT_EXPIRATION" default:"5m"`
	CleanupInterval   time.Duration `json:"cleanup_interval" yaml:"cleanup_interval" env:"LOCAL_CACHE_CLEANUP_INTERVAL" default:"10m"`
}

// UserKey builds the per-user key `voice:<userID>:<name>`.
func UserKey(userID, name string) string {
	return strings.Join([]string{"voice", userID, name}, ":")
}

// LastReplyKey holds the most recent synthesized reply of a user.
func LastReplyKey(userID string) string {
	return UserKey(userID, "last_reply")
}
