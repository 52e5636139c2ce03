package llm

import (
	"context"
)

// Request one user utterance for the reasoning engine
type Request struct {
	Text        string `json:"text"`
	UserID      string `json:"user_id"`
	MemoryLimit int    `json:"memory_limit"` // past exchanges to recall
	VoiceMode   bool   `json:"voice_mode"`
}

// MemoryAction 记忆更新动作
type MemoryAction struct {
	Type       string  `json:"type"` // stm or ltm
	Content    string  `json:"content"`
	Importance float64 `json:"importance,omitempty"`
	MemoryType string  `json:"memory_type,omitempty"`
}

type Result struct {
	Response      string         `json:"response"`
	MemoryActions []MemoryAction `json:"memory_actions"`
	Reasoning     map[string]any `json:"reasoning"`
}

// ReasoningEngine produces the assistant reply for a transcript.
type ReasoningEngine interface {
	ProcessMessage(ctx context.Context, req Request) (*Result, error)
}

// voiceModeInstruction is appended to the system prompt for spoken replies.
const voiceModeInstruction = "\n\nYou are replying in a voice conversation. Answer in one to three short sentences of plain spoken language without lists, code or markdown."
