package protocol

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/code-100-precent/LingVoice/pkg/voice/constants"
	"github.com/code-100-precent/LingVoice/pkg/voice/sessions"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Pipeline runs turns for a session. Submits return ErrPipelineBusy when a
// run is already in flight, otherwise the turn continues in the background.
type Pipeline interface {
	SubmitBuffer(ctx context.Context, s *Session) error
	SubmitRecording(ctx context.Context, s *Session, data []byte) error
}

type SessionOption struct {
	Conn           Conn
	Sender         Sender // defaults to a Writer on Conn
	ID             string
	UserID         string
	ConversationID string
	VAD            *sessions.VADBuffer
	Pipeline       Pipeline
	Logger         *zap.Logger
	Now            func() time.Time
}

// Session one connected voice client
type Session struct {
	id     string
	userID string

	mu             sync.RWMutex
	conversationID string

	conn     Conn
	sender   Sender
	vad      *sessions.VADBuffer
	machine  *sessions.StateMachine
	stats    *sessions.Stats
	pipeline Pipeline
	guard    sync.Mutex

	ctx       context.Context
	cancel    context.CancelFunc
	logger    *zap.Logger
	now       func() time.Time
	closeOnce sync.Once
}

func NewSession(ctx context.Context, opt *SessionOption) *Session {
	if opt.Logger == nil {
		opt.Logger = zap.L()
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	sessionCtx, cancel := context.WithCancel(ctx)
	logger := opt.Logger.With(zap.String("session_id", opt.ID), zap.String("user_id", opt.UserID))
	sender := opt.Sender
	if sender == nil {
		sender = NewWriter(sessionCtx, opt.Conn, logger)
	}
	s := &Session{
		id:             opt.ID,
		userID:         opt.UserID,
		conversationID: opt.ConversationID,
		conn:           opt.Conn,
		sender:         sender,
		vad:            opt.VAD,
		stats:          sessions.NewStats(opt.Now()),
		pipeline:       opt.Pipeline,
		ctx:            sessionCtx,
		cancel:         cancel,
		logger:         logger,
		now:            opt.Now,
	}
	s.machine = sessions.NewStateMachine(func(state sessions.State, message string) {
		_ = s.send(NewStatus(state, message, s.now()))
	}, logger)
	return s
}

func (s *Session) ID() string { return s.id }
func (s *Session) UserID() string { return s.userID }

func (s *Session) ConversationID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conversationID
}

func (s *Session) SetConversationID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversationID = id
}

func (s *Session) VAD() *sessions.VADBuffer { return s.vad }
func (s *Session) Stats() *sessions.Stats { return s.stats }
func (s *Session) State() sessions.State { return s.machine.Current() }
func (s *Session) Context() context.Context { return s.ctx }
func (s *Session) Logger() *zap.Logger { return s.logger }
func (s *Session) Now() time.Time { return s.now() }

func (s *Session) Transition(to sessions.State, message string) error {
	return s.machine.Transition(to, message)
}

// Reset returns to idle with a status.
func (s *Session) Reset(message string) { s.machine.Reset(message) }

// TryAcquire takes the processing guard without waiting.
func (s *Session) TryAcquire() bool { return s.guard.TryLock() }

func (s *Session) Release() { s.guard.Unlock() }

// Busy reports whether a run holds the guard.
func (s *Session) Busy() bool {
	if s.guard.TryLock() {
		s.guard.Unlock()
		return false
	}
	return true
}

func (s *Session) send(msg ServerMessage) error {
	if err := s.sender.Send(msg); err != nil {
		s.logger.Debug("[Session] --- send failed", zap.Error(err))
		return err
	}
	s.stats.MessageSent()
	return nil
}

func (s *Session) SendTranscript(text, language string) error {
	return s.send(NewTranscript(text, language, s.now()))
}

func (s *Session) SendResponse(text string) error {
	return s.send(NewResponse(text))
}

func (s *Session) SendAudio(wav []byte) error {
	return s.send(NewAudio(wav, s.now()))
}

func (s *Session) SendConversationUpdate(conversationID, title string) error {
	return s.send(NewConversationUpdate(conversationID, title, s.now()))
}

// SendError reports a failure to the client, code may be empty.
func (s *Session) SendError(message, code string) error {
	s.stats.ErrorOccurred()
	return s.send(NewError(message, code, s.now()))
}

// Run reads frames until the connection ends. It sends the connected
// status first and returns nil on a normal close.
func (s *Session) Run() error {
	s.logger.Info("[Session] --- 会话启动")
	s.machine.Reset(constants.StatusConnected)
	for {
		messageType, message, err := s.conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() != nil ||
				websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				s.logger.Info("[Session] --- WebSocket 连接正常关闭", zap.Error(err))
				return nil
			}
			s.logger.Warn("[Session] --- 读取 WebSocket 消息失败", zap.Error(err))
			return err
		}
		s.stats.MessageReceived()
		switch messageType {
		case websocket.BinaryMessage:
			s.handleAudio(AudioFrame{Data: message})
		case websocket.TextMessage:
			s.handleText(message)
		}
	}
}

func (s *Session) handleText(data []byte) {
	msg, err := DecodeClientMessage(data)
	if err != nil {
		s.logger.Warn("[Session] --- 解析文本消息失败", zap.Error(err))
		_ = s.SendError(constants.ErrorMalformedMessage, constants.CodeBadMessage)
		return
	}
	switch m := msg.(type) {
	case AudioFrame:
		s.handleAudio(m)
	case StopRequest:
		s.handleStop()
	case PingRequest:
		_ = s.send(NewPong(s.now()))
	case UnknownMessage:
		s.logger.Warn("[Session] --- unknown message type", zap.String("type", m.Type))
	}
}

func (s *Session) handleAudio(frame AudioFrame) {
	// a run in flight keeps its state, the frame is still buffered
	if err := s.machine.Transition(sessions.StateListening, constants.StatusReceiving); err != nil {
		s.logger.Debug("[Session] --- audio while busy", zap.Error(err))
	}
	if len(frame.Data) == 0 {
		s.logger.Warn("[Session] --- no audio data in message")
		_ = s.SendError(constants.ErrorNoAudioData, "")
		return
	}
	if frame.Complete {
		s.submit(func() error { return s.pipeline.SubmitRecording(s.ctx, s, frame.Data) })
		return
	}
	s.vad.AddChunk(frame.Data)
	if s.vad.ShouldTrigger() {
		s.logger.Debug("[Session] --- buffer ready",
			zap.Int("chunks", s.vad.ChunkCount()), zap.Float64("seconds", s.vad.Duration()))
		s.submit(func() error { return s.pipeline.SubmitBuffer(s.ctx, s) })
	}
}

// handleStop forces extraction, it never aborts a running turn.
func (s *Session) handleStop() {
	if s.vad.IsEmpty() {
		if s.Busy() {
			s.logger.Debug("[Session] --- stop with empty buffer during a run")
			return
		}
		s.machine.Reset(constants.StatusReady)
		return
	}
	s.logger.Info("[Session] --- stop received, processing buffered audio",
		zap.Int("chunks", s.vad.ChunkCount()))
	s.submit(func() error { return s.pipeline.SubmitBuffer(s.ctx, s) })
}

func (s *Session) submit(fn func() error) {
	err := fn()
	switch {
	case err == nil:
	case errors.Is(err, constants.ErrPipelineBusy):
		s.logger.Debug("[Session] --- trigger dropped, pipeline busy")
	default:
		s.logger.Warn("[Session] --- submit failed", zap.Error(err))
	}
}

// Close ends the session with the given close code. Safe to call twice.
func (s *Session) Close(code int, reason string) {
	s.closeOnce.Do(func() {
		s.machine.Close()
		s.cancel()
		if err := s.sender.Close(); err != nil {
			s.logger.Debug("[Session] --- writer close", zap.Error(err))
		}
		if s.conn == nil {
			return
		}
		msg := websocket.FormatCloseMessage(code, reason)
		if err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
			s.logger.Debug("[Session] --- 发送WebSocket关闭消息失败", zap.Error(err))
		}
		if err := s.conn.Close(); err != nil {
			s.logger.Debug("[Session] --- 关闭WebSocket连接时出错", zap.Error(err))
		}
	})
}
