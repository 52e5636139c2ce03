package sessions

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

type State string

const (
	StateIdle       State = "idle"
	StateListening  State = "listening"
	StateProcessing State = "processing"
	StateSpeaking   State = "speaking"
)

var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrMachineClosed     = errors.New("state machine closed")
)

// every state may fall back to idle
var transitions = map[State]map[State]bool{
	StateIdle:       {StateIdle: true, StateListening: true, StateProcessing: true},
	StateListening:  {StateIdle: true, StateListening: true, StateProcessing: true},
	StateProcessing: {StateIdle: true, StateProcessing: true, StateSpeaking: true},
	StateSpeaking:   {StateIdle: true},
}

// StatusNotifier receives every accepted transition, in order.
type StatusNotifier func(state State, message string)

// StateMachine 会话状态机，每次状态变化都会通知客户端
type StateMachine struct {
	mu     sync.Mutex
	state  State
	closed bool
	notify StatusNotifier
	logger *zap.Logger
}

func NewStateMachine(notify StatusNotifier, logger *zap.Logger) *StateMachine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notify == nil {
		notify = func(State, string) {}
	}
	return &StateMachine{state: StateIdle, notify: notify, logger: logger}
}

func (m *StateMachine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Transition moves to the next state and emits a status. The notifier runs
// under the lock so statuses leave in transition order.
func (m *StateMachine) Transition(to State, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrMachineClosed
	}
	if !transitions[m.state][to] {
		m.logger.Debug("[State] --- rejected transition",
			zap.String("from", string(m.state)), zap.String("to", string(to)))
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.state, to)
	}
	m.state = to
	m.notify(to, message)
	return nil
}

// Reset forces idle from any state.
func (m *StateMachine) Reset(message string) {
	_ = m.Transition(StateIdle, message)
}

// Close is terminal, later transitions fail with ErrMachineClosed.
func (m *StateMachine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}
