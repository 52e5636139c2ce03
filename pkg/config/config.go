package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/code-100-precent/LingVoice/pkg/cache"
	"github.com/code-100-precent/LingVoice/pkg/logger"
	"github.com/code-100-precent/LingVoice/pkg/utils"
)

// Config main configuration structure
type Config struct {
	MachineID  int64            `env:"MACHINE_ID"`
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Log        logger.LogConfig `mapstructure:"log"`
	Cache      cache.Config     `mapstructure:"cache"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Voice      VoiceConfig      `mapstructure:"voice"`
	Services   ServicesConfig   `mapstructure:"services"`
	Middleware MiddlewareConfig `mapstructure:"middleware"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Name          string `env:"SERVER_NAME"`
	Desc          string `env:"SERVER_DESC"`
	Addr          string `env:"ADDR"`
	Mode          string `env:"MODE"`
	APIPrefix     string `env:"API_PREFIX"`
	MonitorPrefix string `env:"MONITOR_PREFIX"`
	BannerFile    string `env:"BANNER_FILE"`
}

// DatabaseConfig database configuration
type DatabaseConfig struct {
	Driver string `env:"DB_DRIVER"`
	DSN    string `env:"DSN"`
}

// AuthConfig authentication configuration
type AuthConfig struct {
	Header           string `env:"AUTH_HEADER"`
	SessionSecret    string `env:"SESSION_SECRET"`
	TokenExpireHours int    `env:"TOKEN_EXPIRE_HOURS"`
}

// VoiceConfig tunes the realtime voice pipeline.
type VoiceConfig struct {
	Enabled             bool          `env:"VOICE_ENABLED"`
	SilenceThresholdMs  int           `env:"VOICE_SILENCE_THRESHOLD_MS"`
	MaxDurationSeconds  float64       `env:"VOICE_MAX_DURATION_SECONDS"`
	RMSThreshold        float64       `env:"VOICE_RMS_THRESHOLD"`
	BytesPerSecond      int           `env:"VOICE_BYTES_PER_SECOND"`
	MinAudioBytes       int           `env:"VOICE_MIN_AUDIO_BYTES"`
	MinRecordingSeconds float64       `env:"VOICE_MIN_RECORDING_SECONDS"`
	ContainerFormat     string        `env:"VOICE_CONTAINER_FORMAT"`
	TargetSampleRate    int           `env:"VOICE_TARGET_SAMPLE_RATE"`
	WorkerPoolSize      int           `env:"VOICE_WORKER_POOL_SIZE"`
	JobTimeout          time.Duration `env:"VOICE_JOB_TIMEOUT"`
	MaxSpokenWords      int           `env:"VOICE_MAX_SPOKEN_WORDS"`
	MemoryLimit         int           `env:"VOICE_MEMORY_LIMIT"`
	LastReplyTTL        time.Duration `env:"VOICE_LAST_REPLY_TTL"`
	FFmpegPath          string        `env:"FFMPEG_PATH"`
}

// ServicesConfig external engines used by the voice pipeline
type ServicesConfig struct {
	LLM LLMConfig `mapstructure:"llm"`
	STT STTConfig `mapstructure:"stt"`
	TTS TTSConfig `mapstructure:"tts"`
}

// LLMConfig LLM service configuration
type LLMConfig struct {
	Provider     string        `env:"LLM_PROVIDER"`
	APIKey       string        `env:"LLM_API_KEY"`
	BaseURL      string        `env:"LLM_BASE_URL"`
	Model        string        `env:"LLM_MODEL"`
	SystemPrompt string        `env:"LLM_SYSTEM_PROMPT"`
	Timeout      time.Duration `env:"LLM_TIMEOUT"`
}

// STTConfig speech recognition configuration
type STTConfig struct {
	Vendor   string `env:"STT_VENDOR"`
	APIKey   string `env:"STT_API_KEY"`
	BaseURL  string `env:"STT_BASE_URL"`
	Model    string `env:"STT_MODEL"`
	Language string `env:"STT_LANGUAGE"`
	// local vendor: whisper.cpp style command and model file
	LocalCommand string `env:"STT_LOCAL_COMMAND"`
	ModelPath    string `env:"STT_MODEL_PATH"`
}

// TTSConfig speech synthesis configuration
type TTSConfig struct {
	Vendor       string `env:"TTS_VENDOR"`
	APIKey       string `env:"TTS_API_KEY"`
	BaseURL      string `env:"TTS_BASE_URL"`
	Model        string `env:"TTS_MODEL"`
	Voice        string `env:"TTS_VOICE"`
	LocalCommand string `env:"TTS_LOCAL_COMMAND"`
}

// MiddlewareConfig middleware configuration
type MiddlewareConfig struct {
	RateLimit      string   `env:"RATE_LIMIT"`
	EnableCORS     bool     `env:"ENABLE_CORS"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS"`
}

var GlobalConfig *Config

func Load() error {
	// .env 不存在时只打印提示，使用默认值
	env := os.Getenv("APP_ENV")
	if err := utils.LoadEnv(env); err != nil {
		log.Printf("Note: .env file not found or failed to load: %v (using default values)", err)
	}

	GlobalConfig = &Config{
		MachineID: utils.GetIntEnv("MACHINE_ID"),
		Server: ServerConfig{
			Name:          getStringOrDefault("SERVER_NAME", "LingVoice"),
			Desc:          getStringOrDefault("SERVER_DESC", "Realtime voice conversation backend"),
			Addr:          getStringOrDefault("ADDR", ":7072"),
			Mode:          getStringOrDefault("MODE", "development"),
			APIPrefix:     getStringOrDefault("API_PREFIX", "/api"),
			MonitorPrefix: getStringOrDefault("MONITOR_PREFIX", "/metrics"),
			BannerFile:    getStringOrDefault("BANNER_FILE", "./banner.txt"),
		},
		Database: DatabaseConfig{
			Driver: getStringOrDefault("DB_DRIVER", "sqlite"),
			DSN:    getStringOrDefault("DSN", "./lingvoice.db"),
		},
		Log: logger.LogConfig{
			Level:      getStringOrDefault("LOG_LEVEL", "info"),
			Filename:   getStringOrDefault("LOG_FILENAME", "./logs/app.log"),
			MaxSize:    getIntOrDefault("LOG_MAX_SIZE", 100),
			MaxAge:     getIntOrDefault("LOG_MAX_AGE", 30),
			MaxBackups: getIntOrDefault("LOG_MAX_BACKUPS", 5),
			Daily:      getBoolOrDefault("LOG_DAILY", true),
		},
		Cache: loadCacheConfig(),
		Auth: AuthConfig{
			Header:           getStringOrDefault("AUTH_HEADER", "Authorization"),
			SessionSecret:    generateDefaultSessionSecret(),
			TokenExpireHours: getIntOrDefault("TOKEN_EXPIRE_HOURS", 24*7),
		},
		Voice: loadVoiceConfig(),
		Services: ServicesConfig{
			LLM: LLMConfig{
				Provider:     getStringOrDefault("LLM_PROVIDER", "openai"),
				APIKey:       utils.GetEnv("LLM_API_KEY"),
				BaseURL:      getStringOrDefault("LLM_BASE_URL", "https://api.openai.com/v1"),
				Model:        getStringOrDefault("LLM_MODEL", "gpt-4o-mini"),
				SystemPrompt: getStringOrDefault("LLM_SYSTEM_PROMPT", defaultSystemPrompt),
				Timeout:      parseDuration(utils.GetEnv("LLM_TIMEOUT"), 30*time.Second),
			},
			STT: STTConfig{
				Vendor:   getStringOrDefault("STT_VENDOR", "whisper"),
				APIKey:   getStringOrDefault("STT_API_KEY", utils.GetEnv("LLM_API_KEY")),
				BaseURL:  getStringOrDefault("STT_BASE_URL", "https://api.openai.com/v1"),
				Model:    getStringOrDefault("STT_MODEL", "whisper-1"),
				Language: utils.GetEnv("STT_LANGUAGE"),

				LocalCommand: getStringOrDefault("STT_LOCAL_COMMAND", "whisper-cli"),
				ModelPath:    utils.GetEnv("STT_MODEL_PATH"),
			},
			TTS: TTSConfig{
				Vendor:       getStringOrDefault("TTS_VENDOR", "openai"),
				APIKey:       getStringOrDefault("TTS_API_KEY", utils.GetEnv("LLM_API_KEY")),
				BaseURL:      getStringOrDefault("TTS_BASE_URL", "https://api.openai.com/v1"),
				Model:        getStringOrDefault("TTS_MODEL", "tts-1"),
				Voice:        getStringOrDefault("TTS_VOICE", "alloy"),
				LocalCommand: getStringOrDefault("TTS_LOCAL_COMMAND", "espeak"),
			},
		},
		Middleware: loadMiddlewareConfig(),
	}
	return nil
}

const defaultSystemPrompt = "You are a helpful personal assistant. Keep answers short and conversational. " +
	"Do not use markdown, lists, emoji or code blocks, the reply is read aloud."

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return errors.New("database DSN is required")
	}
	if c.Server.Addr == "" {
		return errors.New("server address is required")
	}
	v := c.Voice
	if v.RMSThreshold <= 0 || v.RMSThreshold >= 1 {
		return fmt.Errorf("voice rms threshold must be in (0,1), got %v", v.RMSThreshold)
	}
	if v.SilenceThresholdMs <= 0 || v.MaxDurationSeconds <= 0 || v.BytesPerSecond <= 0 {
		return errors.New("voice silence threshold, max duration and bytes per second must be positive")
	}
	if v.WorkerPoolSize < 1 {
		return fmt.Errorf("voice worker pool size must be at least 1, got %d", v.WorkerPoolSize)
	}
	switch c.Services.STT.Vendor {
	case "whisper", "local":
	default:
		return fmt.Errorf("unsupported stt vendor %q", c.Services.STT.Vendor)
	}
	switch c.Services.TTS.Vendor {
	case "openai", "local", "none":
	default:
		return fmt.Errorf("unsupported tts vendor %q", c.Services.TTS.Vendor)
	}
	return nil
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Mode == "production" || c.Server.Mode == "release"
}

// getStringOrDefault gets environment variable value, returns default if empty
func getStringOrDefault(key, defaultValue string) string {
	value := utils.GetEnv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if utils.GetEnv(key) == "" {
		return defaultValue
	}
	return utils.GetBoolEnv(key)
}

// getIntOrDefault treats 0 as unset
func getIntOrDefault(key string, defaultValue int) int {
	value := utils.GetIntEnv(key)
	if value == 0 {
		return defaultValue
	}
	return int(value)
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	value := utils.GetEnv(key)
	if value == "" {
		return defaultValue
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return defaultValue
}

// parseDuration parses duration string with default fallback
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// generateDefaultSessionSecret 仅用于开发环境
func generateDefaultSessionSecret() string {
	if secret := utils.GetEnv("SESSION_SECRET"); secret != "" {
		return secret
	}
	return "lingvoice-dev-secret-" + utils.RandText(16)
}

func loadVoiceConfig() VoiceConfig {
	return VoiceConfig{
		Enabled:             getBoolOrDefault("VOICE_ENABLED", true),
		SilenceThresholdMs:  getIntOrDefault("VOICE_SILENCE_THRESHOLD_MS", 1000),
		MaxDurationSeconds:  getFloatOrDefault("VOICE_MAX_DURATION_SECONDS", 6.0),
		RMSThreshold:        getFloatOrDefault("VOICE_RMS_THRESHOLD", 0.01),
		BytesPerSecond:      getIntOrDefault("VOICE_BYTES_PER_SECOND", 3200),
		MinAudioBytes:       getIntOrDefault("VOICE_MIN_AUDIO_BYTES", 100),
		MinRecordingSeconds: getFloatOrDefault("VOICE_MIN_RECORDING_SECONDS", 0.5),
		ContainerFormat:     getStringOrDefault("VOICE_CONTAINER_FORMAT", "webm"),
		TargetSampleRate:    getIntOrDefault("VOICE_TARGET_SAMPLE_RATE", 16000),
		WorkerPoolSize:      getIntOrDefault("VOICE_WORKER_POOL_SIZE", 2),
		JobTimeout:          parseDuration(utils.GetEnv("VOICE_JOB_TIMEOUT"), 30*time.Second),
		MaxSpokenWords:      getIntOrDefault("VOICE_MAX_SPOKEN_WORDS", 50),
		MemoryLimit:         getIntOrDefault("VOICE_MEMORY_LIMIT", 2),
		LastReplyTTL:        parseDuration(utils.GetEnv("VOICE_LAST_REPLY_TTL"), 10*time.Minute),
		FFmpegPath:          getStringOrDefault("FFMPEG_PATH", "ffmpeg"),
	}
}

// loadCacheConfig loads cache configuration with all default values
func loadCacheConfig() cache.Config {
	return cache.Config{
		Type: getStringOrDefault("CACHE_TYPE", cache.KindLocal),
		Redis: cache.RedisConfig{
			Addr:         getStringOrDefault("REDIS_ADDR", "localhost:6379"),
			Password:     utils.GetEnv("REDIS_PASSWORD"),
			DB:           int(utils.GetIntEnv("REDIS_DB")),
			PoolSize:     getIntOrDefault("REDIS_POOL_SIZE", 10),
			MinIdleConns: getIntOrDefault("REDIS_MIN_IDLE_CONNS", 5),
			DialTimeout:  parseDuration(utils.GetEnv("REDIS_DIAL_TIMEOUT"), 5*time.Second),
			ReadTimeout:  parseDuration(utils.GetEnv("REDIS_READ_TIMEOUT"), 3*time.Second),
			WriteTimeout: parseDuration(utils.GetEnv("REDIS_WRITE_TIMEOUT"), 3*time.Second),
			IdleTimeout:  parseDuration(utils.GetEnv("REDIS_IDLE_TIMEOUT"), 5*time.Minute),
		},
		Local: cache.LocalConfig{
			MaxSize:           getIntOrDefault("LOCAL_CACHE_MAX_SIZE", 1000),
			DefaultExpiration: parseDuration(utils.GetEnv("LOCAL_CACHE_DEFAULT_EXPIRATION"), 5*time.Minute),
			CleanupInterval:   parseDuration(utils.GetEnv("LOCAL_CACHE_CLEANUP_INTERVAL"), 10*time.Minute),
		},
	}
}

func loadMiddlewareConfig() MiddlewareConfig {
	mode := getStringOrDefault("MODE", "development")
	origins := []string{"*"}
	if mode == "production" {
		origins = nil
	}
	if raw := utils.GetEnv("ALLOWED_ORIGINS"); raw != "" {
		origins = splitAndTrim(raw)
	}
	return MiddlewareConfig{
		RateLimit:      getStringOrDefault("RATE_LIMIT", "60-M"),
		EnableCORS:     getBoolOrDefault("ENABLE_CORS", true),
		AllowedOrigins: origins,
	}
}

func splitAndTrim(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
