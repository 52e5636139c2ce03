package protocol

import (
	"context"
	"sync"
	"time"

	"github.com/code-100-precent/LingVoice/pkg/voice/constants"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// WriterBufferSize 消息写入器缓冲区大小
	WriterBufferSize = 200
)

// Conn is the part of *websocket.Conn a session uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// Sender delivers server messages to one client.
type Sender interface {
	Send(msg ServerMessage) error
	Close() error
}

// Writer serialises socket writes through one goroutine.
type Writer struct {
	conn      Conn
	logger    *zap.Logger
	mu        sync.Mutex
	msgChan   chan []byte
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewWriter(ctx context.Context, conn Conn, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.L()
	}
	ctx, cancel := context.WithCancel(ctx)
	w := &Writer{
		conn:    conn,
		logger:  logger,
		msgChan: make(chan []byte, WriterBufferSize),
		ctx:     ctx,
		cancel:  cancel,
	}
	w.wg.Add(1)
	go w.writeLoop()
	return w
}

func (w *Writer) writeLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			w.drain()
			return
		case msg := <-w.msgChan:
			if err := w.write(msg); err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
					w.logger.Debug("[Writer] --- connection closed, stop writing", zap.Error(err))
				} else {
					w.logger.Error("[Writer] --- 写入WebSocket消息失败", zap.Error(err))
				}
				w.cancel()
				return
			}
		}
	}
}

// drain flushes what was queued before Close.
func (w *Writer) drain() {
	for {
		select {
		case msg := <-w.msgChan:
			if err := w.write(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (w *Writer) write(msg []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteMessage(websocket.TextMessage, msg)
}

// Send encodes and queues a message. It blocks while the queue is full.
func (w *Writer) Send(msg ServerMessage) error {
	data, err := Encode(msg)
	if err != nil {
		w.logger.Error("[Writer] --- 序列化消息失败", zap.Error(err))
		return err
	}
	if w.ctx.Err() != nil {
		return constants.ErrSessionClosed
	}
	select {
	case <-w.ctx.Done():
		return constants.ErrSessionClosed
	case w.msgChan <- data:
		return nil
	}
}

// Done is closed once the writer stops accepting messages.
func (w *Writer) Done() <-chan struct{} {
	return w.ctx.Done()
}

// Close stops the write loop after flushing queued messages.
func (w *Writer) Close() error {
	w.closeOnce.Do(func() {
		w.cancel()
		w.wg.Wait()
	})
	return nil
}
