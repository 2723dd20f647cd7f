package agent

import (
	"errors"
	"fmt"
	"sync"
)

// State is the lifecycle phase of a session.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateActive
	StateEnding
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateEnding:
		return "ending"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Mode says which side owns the audio path while Active.
type Mode int

const (
	// ModeCapture: microphone audio flows to the pipeline.
	ModeCapture Mode = iota
	// ModePlayback: agent speech is playing and capture is held back.
	ModePlayback
)

func (m Mode) String() string {
	if m == ModePlayback {
		return "playback"
	}
	return "capture"
}

// ErrInvalidTransition is returned for a transition the lifecycle forbids.
var ErrInvalidTransition = errors.New("invalid state transition")

var transitions = map[State][]State{
	StateIdle:       {StateConnecting, StateClosed},
	StateConnecting: {StateActive, StateClosed},
	StateActive:     {StateEnding},
	StateEnding:     {StateClosed},
}

// StateMachine is the single authority for session state and audio mode.
type StateMachine struct {
	mu    sync.Mutex
	state State
	mode  Mode

	// OnChange runs after every successful transition, outside the lock.
	OnChange func(from, to State)
}

// NewStateMachine starts in StateIdle with capture authoritative.
func NewStateMachine() *StateMachine {
	return &StateMachine{state: StateIdle, mode: ModeCapture}
}

// State returns the current state.
func (m *StateMachine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Transition moves to next or returns ErrInvalidTransition.
func (m *StateMachine) Transition(next State) error {
	m.mu.Lock()
	from := m.state
	allowed := false
	for _, s := range transitions[from] {
		if s == next {
			allowed = true
			break
		}
	}
	if !allowed {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, next)
	}
	m.state = next
	if next != StateActive {
		m.mode = ModeCapture
	}
	m.mu.Unlock()
	if m.OnChange != nil {
		m.OnChange(from, next)
	}
	return nil
}

// Mode returns which side owns the audio path.
func (m *StateMachine) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// SetMode switches audio authority. It is ignored outside StateActive.
func (m *StateMachine) SetMode(mode Mode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateActive {
		return
	}
	m.mode = mode
}

// CanSendAudio reports whether microphone audio may go out right now.
func (m *StateMachine) CanSendAudio() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateActive && m.mode == ModeCapture
}
