package events

import (
	"sync"
	"time"

	"github.com/code-100-precent/LingVoice/pkg/logger"
	"go.uber.org/zap"
)

// Voice lifecycle event types
const (
	VoiceSessionOpened = "voice.session.opened"
	VoiceSessionClosed = "voice.session.closed"
	VoiceTurnCompleted = "voice.turn.completed"
)

// Event system event
type Event struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Source    string                 `json:"source"`
}

// EventHandler event handler function
type EventHandler func(event Event) error

// Publisher is what producers depend on.
type Publisher interface {
	Publish(event Event)
}

// EventBus event bus
type EventBus struct {
	handlers map[string][]EventHandler
	mu       sync.RWMutex
	inflight sync.WaitGroup
}

var globalEventBus *EventBus
var once sync.Once

// GetEventBus gets global event bus instance
func GetEventBus() *EventBus {
	once.Do(func() {
		globalEventBus = NewEventBus()
	})
	return globalEventBus
}

func NewEventBus() *EventBus {
	return &EventBus{handlers: make(map[string][]EventHandler)}
}

// Subscribe subscribes to events, "*" receives everything
func (bus *EventBus) Subscribe(eventType string, handler EventHandler) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.handlers[eventType] = append(bus.handlers[eventType], handler)
	logger.Debug("Event handler subscribed", zap.String("eventType", eventType))
}

// Unsubscribe removes all handlers for the type
func (bus *EventBus) Unsubscribe(eventType string) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	delete(bus.handlers, eventType)
}

func (bus *EventBus) matching(eventType string) []EventHandler {
	bus.mu.RLock()
	defer bus.mu.RUnlock()
	out := make([]EventHandler, 0, len(bus.handlers[eventType])+len(bus.handlers["*"]))
	out = append(out, bus.handlers[eventType]...)
	return append(out, bus.handlers["*"]...)
}

// Publish runs every matching handler on its own goroutine.
func (bus *EventBus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	handlers := bus.matching(event.Type)
	if len(handlers) == 0 {
		logger.Debug("No handlers for event", zap.String("eventType", event.Type))
		return
	}
	for _, handler := range handlers {
		bus.inflight.Add(1)
		go func(h EventHandler) {
			defer bus.inflight.Done()
			if err := h(event); err != nil {
				logger.Error("Event handler failed",
					zap.String("eventType", event.Type),
					zap.Error(err))
			}
		}(handler)
	}
}

// Wait blocks until every handler started by Publish has returned.
func (bus *EventBus) Wait() {
	bus.inflight.Wait()
}

// PublishEvent convenience method: publish event on the global bus
func PublishEvent(eventType string, data map[string]interface{}, source string) {
	GetEventBus().Publish(Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
		Source:    source,
	})
}
