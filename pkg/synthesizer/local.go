package synthesizer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// LocalSpeechConfig 本地TTS配置
type LocalSpeechConfig struct {
	Command   string        `json:"command"`   // espeak or espeak-ng
	Language  string        `json:"language"`  // 语言代码
	Speed     float32       `json:"speed"`     // 语速
	Pitch     float32       `json:"pitch"`     // 音调
	Volume    float32       `json:"volume"`    // 音量
	OutputDir string        `json:"outputDir"` // 输出目录
	Timeout   time.Duration `json:"timeout"`
	Logger    *zap.Logger   `json:"-"`
}

func NewLocalSpeechConfig(command string) *LocalSpeechConfig {
	if command == "" {
		command = "espeak"
	}
	return &LocalSpeechConfig{
		Command:   command,
		Language:  "en",
		Speed:     1.0,
		Pitch:     1.0,
		Volume:    1.0,
		OutputDir: os.TempDir(),
		Timeout:   30 * time.Second,
	}
}

// LocalSpeechService espeak 本地合成
type LocalSpeechService struct {
	config *LocalSpeechConfig
	logger *zap.Logger
}

func NewLocalSpeechService(config *LocalSpeechConfig) (*LocalSpeechService, error) {
	if config == nil {
		return nil, errors.New("配置不能为空")
	}
	if _, err := exec.LookPath(config.Command); err != nil {
		return nil, fmt.Errorf("TTS命令 '%s' 不可用: %w", config.Command, err)
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.L()
	}
	return &LocalSpeechService{config: config, logger: logger}, nil
}

func (s *LocalSpeechService) Provider() TTSProvider { return ProviderLocal }

func (s *LocalSpeechService) args(output, text string) []string {
	args := []string{
		"-w", output,
		"-s", fmt.Sprintf("%.0f", s.config.Speed*175), // espeak 默认速度是 175 wpm
		"-p", fmt.Sprintf("%.0f", s.config.Pitch*50), // espeak 音调范围 0-99
		"-a", fmt.Sprintf("%.0f", s.config.Volume*100),
	}
	if s.config.Language != "" {
		args = append(args, "-v", convertLanguageCode(s.config.Language))
	}
	return append(args, "--", text)
}

func (s *LocalSpeechService) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("文本不能为空")
	}
	output := filepath.Join(s.config.OutputDir, fmt.Sprintf("tts_%d.wav", time.Now().UnixNano()))
	defer os.Remove(output)

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()
	start := time.Now()
	if out, err := exec.CommandContext(ctx, s.config.Command, s.args(output, text)...).CombinedOutput(); err != nil {
		return nil, fmt.Errorf("espeak 执行失败: %w: %s", err, strings.TrimSpace(string(out)))
	}
	data, err := os.ReadFile(output)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("[TTS] --- 本地TTS合成完成",
		zap.Int("chars", len(text)), zap.Int("size", len(data)), zap.Duration("duration", time.Since(start)))
	return data, nil
}

// convertLanguageCode maps BCP 47 tags to espeak voice names.
func convertLanguageCode(lang string) string {
	switch strings.ToLower(lang) {
	case "zh", "zh-cn":
		return "cmn"
	case "en-us":
		return "en-us"
	case "en-gb":
		return "en-gb"
	}
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		return strings.ToLower(lang[:i])
	}
	return strings.ToLower(lang)
}
