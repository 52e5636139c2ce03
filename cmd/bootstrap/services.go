package bootstrap

import (
	"fmt"
	"time"

	"github.com/code-100-precent/LingVoice/pkg/config"
	"github.com/code-100-precent/LingVoice/pkg/llm"
	"github.com/code-100-precent/LingVoice/pkg/recognizer"
	"github.com/code-100-precent/LingVoice/pkg/synthesizer"
	"github.com/code-100-precent/LingVoice/pkg/voice/audio"
	"github.com/code-100-precent/LingVoice/pkg/voice/pipeline"
	"github.com/code-100-precent/LingVoice/pkg/voice/sessions"
	"go.uber.org/zap"
)

// BuildModels loads the speech engines once at startup. Any failure is
// fatal for the caller, a "none" TTS vendor is not a failure.
func BuildModels(cfg *config.Config, lg *zap.Logger) (*pipeline.Models, error) {
	stt := cfg.Services.STT
	var sttConfig recognizer.TranscriberConfig
	switch recognizer.Vendor(stt.Vendor) {
	case recognizer.VendorLocal:
		sttConfig = &recognizer.LocalASRConfig{
			Command:   stt.LocalCommand,
			ModelPath: stt.ModelPath,
			Language:  stt.Language,
			Logger:    lg,
		}
	default:
		sttConfig = &recognizer.WhisperOption{
			APIKey:   stt.APIKey,
			BaseURL:  stt.BaseURL,
			Model:    stt.Model,
			Language: stt.Language,
		}
	}
	transcriber, err := recognizer.GetGlobalFactory().CreateTranscriber(sttConfig)
	if err != nil {
		return nil, fmt.Errorf("init stt %s: %w", stt.Vendor, err)
	}

	tts := cfg.Services.TTS
	synth, err := synthesizer.NewSynthesisService(synthesizer.Options{
		Provider: synthesizer.TTSProvider(tts.Vendor),
		APIKey:   tts.APIKey,
		BaseURL:  tts.BaseURL,
		Model:    tts.Model,
		Voice:    tts.Voice,
		Command:  tts.LocalCommand,
	})
	if err != nil {
		return nil, fmt.Errorf("init tts %s: %w", tts.Vendor, err)
	}
	models := &pipeline.Models{STT: transcriber, TTS: synth}
	info := models.Info()
	lg.Info("voice models loaded",
		zap.String("stt", info.STTVendor),
		zap.String("tts", info.TTSVendor),
		zap.Bool("ttsLoaded", info.TTSLoaded))
	return models, nil
}

func BuildEngine(cfg *config.Config, lg *zap.Logger) (llm.ReasoningEngine, error) {
	l := cfg.Services.LLM
	engine, err := llm.NewReasoningEngine(llm.Options{
		Provider:     l.Provider,
		APIKey:       l.APIKey,
		BaseURL:      l.BaseURL,
		Model:        l.Model,
		SystemPrompt: l.SystemPrompt,
		Timeout:      l.Timeout,
		Logger:       lg,
	})
	if err != nil {
		return nil, fmt.Errorf("init llm %s: %w", l.Provider, err)
	}
	return engine, nil
}

// BuildNormalizer the ffmpeg decode chain, it fails when ffmpeg is missing.
func BuildNormalizer(cfg *config.Config, lg *zap.Logger) (*audio.Processor, error) {
	v := cfg.Voice
	decoder := audio.NewFFmpegDecoder(v.FFmpegPath, v.TargetSampleRate)
	if !decoder.Available() {
		return nil, fmt.Errorf("ffmpeg not found at %q", decoder.Path)
	}
	return audio.NewProcessor(decoder, v.ContainerFormat, v.TargetSampleRate, lg), nil
}

func VADConfig(cfg *config.Config) sessions.VADConfig {
	v := cfg.Voice
	return sessions.VADConfig{
		SilenceThreshold: time.Duration(v.SilenceThresholdMs) * time.Millisecond,
		MaxDuration:      time.Duration(v.MaxDurationSeconds * float64(time.Second)),
		RMSThreshold:     v.RMSThreshold,
		BytesPerSecond:   v.BytesPerSecond,
		MinAudioBytes:    v.MinAudioBytes,
	}
}

func PipelineConfig(cfg *config.Config) pipeline.Config {
	v := cfg.Voice
	return pipeline.Config{
		MemoryLimit:         v.MemoryLimit,
		MaxSpokenWords:      v.MaxSpokenWords,
		MinRecordingSeconds: v.MinRecordingSeconds,
		BytesPerSecond:      v.BytesPerSecond,
		LastReplyTTL:        v.LastReplyTTL,
	}
}
