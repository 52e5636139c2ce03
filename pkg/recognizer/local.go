package recognizer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// LocalASRConfig 本地 whisper.cpp 配置
type LocalASRConfig struct {
	Command   string        `json:"command"`   // whisper-cli or compatible
	ModelPath string        `json:"modelPath"` // ggml model file
	Language  string        `json:"language"`  // 语言代码，空为自动
	Timeout   time.Duration `json:"timeout"`
	Logger    *zap.Logger   `json:"-"`
}

type LocalASRService struct {
	config *LocalASRConfig
	logger *zap.Logger
}

func NewLocalASRService(config *LocalASRConfig) (*LocalASRService, error) {
	if config == nil {
		return nil, errors.New("配置不能为空")
	}
	if config.ModelPath == "" {
		return nil, errors.New("模型路径不能为空")
	}
	if config.Command == "" {
		config.Command = "whisper-cli"
	}
	if config.Timeout <= 0 {
		config.Timeout = time.Minute
	}
	if _, err := exec.LookPath(config.Command); err != nil {
		return nil, fmt.Errorf("ASR命令 '%s' 不可用: %w", config.Command, err)
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.L()
	}
	return &LocalASRService{config: config, logger: logger}, nil
}

func (s *LocalASRService) Vendor() string { return string(VendorLocal) }

func (s *LocalASRService) args(input string) []string {
	args := []string{"-m", s.config.ModelPath, "-f", input, "-nt", "-np"}
	lang := s.config.Language
	if lang == "" {
		lang = "auto"
	}
	return append(args, "-l", lang)
}

func (s *LocalASRService) Transcribe(ctx context.Context, wav []byte) (Transcript, error) {
	tmp, err := os.CreateTemp("", "asr-*.wav")
	if err != nil {
		return Transcript{}, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(wav); err != nil {
		tmp.Close()
		return Transcript{}, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Transcript{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()
	start := time.Now()
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.config.Command, s.args(tmp.Name())...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return Transcript{}, fmt.Errorf("本地ASR识别失败: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	s.logger.Debug("[ASR] --- local transcription done", zap.Duration("duration", time.Since(start)))
	return Transcript{Text: joinLines(stdout.String()), Language: s.config.Language}, nil
}

func joinLines(out string) string {
	var parts []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, " ")
}
