package constants

// Wire error codes
const (
	CodeAudioDecodeFailed   = "audio_decode_failed"
	CodeAudioTooShort       = "audio_too_short"
	CodeModelUnavailable    = "model_unavailable"
	CodeTranscriptionFailed = "transcription_failed"
	CodeSynthesisFailed     = "synthesis_failed"
	CodeReasoningFailed     = "reasoning_failed"
	CodePersistFailed       = "persist_failed"
	CodeBadMessage          = "bad_message"
)

// Websocket close codes
const (
	CloseNormal        = 1000
	CloseGoingAway     = 1001
	CloseAuthFailed    = 1008
	CloseInternalError = 1011
)

// Status messages sent alongside state changes
const (
	StatusConnected        = "Voice session connected"
	StatusReceiving        = "Receiving audio"
	StatusTranscribing     = "Transcribing audio"
	StatusTooShort         = "Audio too short, please speak longer"
	StatusNotDecodable     = "Could not decode audio"
	StatusNoSpeech         = "No speech detected"
	StatusGenerating       = "Generating response"
	StatusSynthesizing     = "Synthesizing speech"
	StatusReadyForNext     = "Ready for next message"
	StatusReady            = "Ready"
	ErrorNoAudioData       = "No audio data provided"
	ErrorSTTUnavailable    = "STT model not available"
	ErrorTTSUnavailable    = "TTS model not available"
	ErrorNoResponse        = "Failed to generate response"
	ErrorPersistFailed     = "Failed to save conversation"
	ErrorSynthesisFailed   = "Failed to synthesize speech"
	ErrorTranscribeFailed  = "Failed to transcribe audio"
	ErrorMalformedMessage  = "Malformed message"
	DefaultLanguage        = "en"
	MessageOriginVoice     = "voice"
	VoiceSessionSourceName = "voice"
)
