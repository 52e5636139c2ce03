package protocol

import (
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/code-100-precent/LingVoice/pkg/voice/audio"
	"github.com/code-100-precent/LingVoice/pkg/voice/sessions"
)

// Client message types
const (
	MessageTypeAudio = "audio"
	MessageTypeStop  = "stop"
	MessageTypePing  = "ping"
)

// Server message types
const (
	MessageTypeStatus             = "status"
	MessageTypeTranscript         = "transcript"
	MessageTypeResponse           = "response"
	MessageTypeConversationUpdate = "conversation_update"
	MessageTypeError              = "error"
	MessageTypePong               = "pong"
)

// AudioFormatWAV is the only format the server sends.
const AudioFormatWAV = "wav"

// ErrBadMessage malformed JSON or payload
var ErrBadMessage = errors.New("bad message")

// ServerMessage is a message the server writes to the client.
type ServerMessage interface {
	serverMessage()
}

type StatusMessage struct {
	Type      string  `json:"type"`
	State     string  `json:"state"`
	Message   *string `json:"message"`
	Timestamp float64 `json:"timestamp"`
}

type TranscriptMessage struct {
	Type      string  `json:"type"`
	Text      string  `json:"text"`
	Language  string  `json:"language"`
	Timestamp float64 `json:"timestamp"`
}

// ResponseMessage carries the raw reasoning reply, before sanitizing.
type ResponseMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type AudioMessage struct {
	Type      string  `json:"type"`
	Data      string  `json:"data"`
	Format    string  `json:"format"`
	Timestamp float64 `json:"timestamp"`
}

type ConversationUpdateMessage struct {
	Type           string  `json:"type"`
	ConversationID string  `json:"conversation_id"`
	Title          *string `json:"title"`
	Timestamp      float64 `json:"timestamp"`
}

type ErrorMessage struct {
	Type      string  `json:"type"`
	Message   string  `json:"message"`
	Code      *string `json:"code"`
	Timestamp float64 `json:"timestamp"`
}

type PongMessage struct {
	Type      string  `json:"type"`
	Timestamp float64 `json:"timestamp"`
}

func (StatusMessage) serverMessage()             {}
func (TranscriptMessage) serverMessage()         {}
func (ResponseMessage) serverMessage()           {}
func (AudioMessage) serverMessage()              {}
func (ConversationUpdateMessage) serverMessage() {}
func (ErrorMessage) serverMessage()              {}
func (PongMessage) serverMessage()               {}

// Timestamp float seconds since the epoch
func Timestamp(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func NewStatus(state sessions.State, message string, at time.Time) StatusMessage {
	return StatusMessage{Type: MessageTypeStatus, State: string(state), Message: optional(message), Timestamp: Timestamp(at)}
}

func NewTranscript(text, language string, at time.Time) TranscriptMessage {
	return TranscriptMessage{Type: MessageTypeTranscript, Text: text, Language: language, Timestamp: Timestamp(at)}
}

func NewResponse(text string) ResponseMessage {
	return ResponseMessage{Type: MessageTypeResponse, Text: text}
}

// NewAudio base64-encodes a WAV payload.
func NewAudio(wav []byte, at time.Time) AudioMessage {
	return AudioMessage{Type: MessageTypeAudio, Data: audio.EncodeBase64(wav), Format: AudioFormatWAV, Timestamp: Timestamp(at)}
}

func NewConversationUpdate(conversationID, title string, at time.Time) ConversationUpdateMessage {
	return ConversationUpdateMessage{
		Type:           MessageTypeConversationUpdate,
		ConversationID: conversationID,
		Title:          optional(title),
		Timestamp:      Timestamp(at),
	}
}

// NewError code may be empty, it is sent as null then.
func NewError(message, code string, at time.Time) ErrorMessage {
	return ErrorMessage{Type: MessageTypeError, Message: message, Code: optional(code), Timestamp: Timestamp(at)}
}

func NewPong(at time.Time) PongMessage {
	return PongMessage{Type: MessageTypePong, Timestamp: Timestamp(at)}
}

// Encode serializes a server message.
func Encode(msg ServerMessage) ([]byte, error) {
	return sonic.Marshal(msg)
}

// ClientMessage is a decoded client frame.
type ClientMessage interface {
	clientMessage()
}

// AudioFrame Data is nil when the frame carried no payload.
type AudioFrame struct {
	Data     []byte
	Complete bool
}

type StopRequest struct{}

type PingRequest struct{}

// UnknownMessage any other type tag
type UnknownMessage struct {
	Type string
}

func (AudioFrame) clientMessage()     {}
func (StopRequest) clientMessage()    {}
func (PingRequest) clientMessage()    {}
func (UnknownMessage) clientMessage() {}

type clientEnvelope struct {
	Type     string `json:"type"`
	Data     string `json:"data"`
	Complete bool   `json:"complete"`
}

// DecodeClientMessage parses a text frame. Malformed JSON or base64 yields
// an error wrapping ErrBadMessage.
func DecodeClientMessage(raw []byte) (ClientMessage, error) {
	var env clientEnvelope
	if err := sonic.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMessage, err)
	}
	switch env.Type {
	case MessageTypeAudio:
		if env.Data == "" {
			return AudioFrame{Complete: env.Complete}, nil
		}
		data, err := audio.DecodeBase64(env.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid audio payload: %v", ErrBadMessage, err)
		}
		return AudioFrame{Data: data, Complete: env.Complete}, nil
	case MessageTypeStop:
		return StopRequest{}, nil
	case MessageTypePing:
		return PingRequest{}, nil
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrBadMessage)
	}
	return UnknownMessage{Type: env.Type}, nil
}
