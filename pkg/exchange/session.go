package exchange

import "sync"

type SessionState int8

const (
	SessionClosedState SessionState = iota
	SessionOpenState
)

func (s SessionState) String() string {
	switch s {
	case SessionClosedState:
		return "closed"
	case SessionOpenState:
		return "open"
	default:
		return "unknown"
	}
}

// SessionGate is the Closed -> Open -> Closed state machine controlling
// order admission. Transitions are externally driven; the gate holds no
// timers and supports repeated open/close cycles.
type SessionGate struct {
	mu    sync.Mutex
	state SessionState
}

func NewSessionGate() *SessionGate {
	return &SessionGate{state: SessionClosedState}
}

// Open transitions to the open state. Returns false if already open.
func (g *SessionGate) Open() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == SessionOpenState {
		return false
	}
	g.state = SessionOpenState
	return true
}

// Close transitions to the closed state. Returns false if already closed.
func (g *SessionGate) Close() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == SessionClosedState {
		return false
	}
	g.state = SessionClosedState
	return true
}

func (g *SessionGate) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state == SessionOpenState
}

func (g *SessionGate) State() SessionState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}
