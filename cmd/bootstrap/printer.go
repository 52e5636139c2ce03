package bootstrap

import (
	"fmt"
	"os"
	"strings"

	"github.com/code-100-precent/LingVoice/pkg/config"
	"github.com/code-100-precent/LingVoice/pkg/logger"
	"go.uber.org/zap"
)

// LogConfigInfo Print global configuration information. Secrets are masked.
func LogConfigInfo() {
	cfg := config.GlobalConfig
	if cfg == nil {
		logger.Warn("config not loaded")
		return
	}
	logger.Info("system config load finished")
	logger.Info("global config",
		zap.String("server_name", cfg.Server.Name),
		zap.String("server_desc", cfg.Server.Desc),
		zap.String("mode", cfg.Server.Mode),
	)

	logger.Info("base config",
		zap.Int64("machine_id", cfg.MachineID),
		zap.String("addr", cfg.Server.Addr),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("monitor_prefix", cfg.Server.MonitorPrefix),
		zap.String("api_prefix", cfg.Server.APIPrefix),
		zap.String("cache_type", cfg.Cache.Type),
	)

	logger.Info("log config",
		zap.String("log_level", cfg.Log.Level),
		zap.String("log_filename", cfg.Log.Filename),
		zap.Int("log_max_size", cfg.Log.MaxSize),
		zap.Int("log_max_age", cfg.Log.MaxAge),
		zap.Int("log_max_backups", cfg.Log.MaxBackups),
	)

	v := cfg.Voice
	logger.Info("voice config",
		zap.Bool("enabled", v.Enabled),
		zap.Int("silence_threshold_ms", v.SilenceThresholdMs),
		zap.Float64("max_duration_seconds", v.MaxDurationSeconds),
		zap.Float64("rms_threshold", v.RMSThreshold),
		zap.Int("bytes_per_second", v.BytesPerSecond),
		zap.String("container_format", v.ContainerFormat),
		zap.Int("worker_pool_size", v.WorkerPoolSize),
		zap.Duration("job_timeout", v.JobTimeout),
		zap.Int("max_spoken_words", v.MaxSpokenWords),
	)

	s := cfg.Services
	logger.Info("services config",
		zap.String("llm_provider", s.LLM.Provider),
		zap.String("llm_model", s.LLM.Model),
		zap.String("llm_api_key", maskSecret(s.LLM.APIKey)),
		zap.String("stt_vendor", s.STT.Vendor),
		zap.String("stt_model", s.STT.Model),
		zap.String("tts_vendor", s.TTS.Vendor),
		zap.String("tts_voice", s.TTS.Voice),
	)

	logger.Info("middleware config",
		zap.String("rate_limit", cfg.Middleware.RateLimit),
		zap.Bool("cors", cfg.Middleware.EnableCORS),
	)
}

func maskSecret(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}

// PrintBannerFromFile Read file and print
func PrintBannerFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	lines := strings.Split(string(data), "\n")

	colors := []string{
		"\x1b[38;5;39m",
		"\x1b[38;5;45m",
		"\x1b[38;5;51m",
		"\x1b[38;5;87m",
		"\x1b[38;5;123m",
		"\x1b[38;5;159m",
	}

	for i, line := range lines {
		color := colors[i%len(colors)]
		fmt.Println(color + line + "\x1b[0m")
	}
	return nil
}
