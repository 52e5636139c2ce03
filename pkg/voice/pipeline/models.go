package pipeline

import (
	"github.com/code-100-precent/LingVoice/pkg/recognizer"
	"github.com/code-100-precent/LingVoice/pkg/synthesizer"
)

// Models holds the engines loaded at startup. A nil TTS means text-only.
type Models struct {
	STT recognizer.TranscribeService
	TTS synthesizer.SynthesisService
}

// Ready reports whether turns can run at all.
func (m *Models) Ready() bool {
	return m != nil && m.STT != nil
}

func (m *Models) TTSAvailable() bool {
	return m != nil && m.TTS != nil
}

// ModelInfo 模型状态
type ModelInfo struct {
	STTVendor string `json:"stt_vendor"`
	TTSVendor string `json:"tts_vendor"`
	STTLoaded bool   `json:"stt_loaded"`
	TTSLoaded bool   `json:"tts_loaded"`
}

func (m *Models) Info() ModelInfo {
	info := ModelInfo{TTSVendor: string(synthesizer.ProviderNone)}
	if m.Ready() {
		info.STTVendor = m.STT.Vendor()
		info.STTLoaded = true
	}
	if m.TTSAvailable() {
		info.TTSVendor = string(m.TTS.Provider())
		info.TTSLoaded = true
	}
	return info
}
