// Package lifecycle implements the initialize/initialized/shutdown/exit
// state machine shared by both peer roles and the gate rules that decide
// whether a given inbound method is allowed in the current state.
package lifecycle

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is a point in the connection lifecycle. Monotonically
// non-reversing except that Exited is terminal.
type State int

const (
	Disconnected State = iota
	Connecting        // client only: transport attach begins
	Listening         // server only: transport open, awaiting initialize
	Initializing
	Initialized
	ShuttingDown
	Exited
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Listening:
		return "listening"
	case Initializing:
		return "initializing"
	case Initialized:
		return "initialized"
	case ShuttingDown:
		return "shuttingDown"
	case Exited:
		return "exited"
	default:
		return "unknown"
	}
}

// Role distinguishes which mirror of the state machine applies: the
// client's Disconnected->Connecting->Initializing->... path, or the
// server's Disconnected->Listening->Initializing->... path.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

// StateChangeEvent is emitted on every transition.
type StateChangeEvent struct {
	Previous  State
	Current   State
	Timestamp time.Time
	Reason    string
}

// Error reports an operation forbidden in the current lifecycle state.
type Error struct {
	Operation string
	Current   State
}

func (e *Error) Error() string {
	return fmt.Sprintf("lifecycle: %s not permitted in state %s", e.Operation, e.Current)
}

// Machine tracks lifecycle state for one peer and notifies subscribers of
// transitions. It does not itself decide *when* to transition — callers
// (the dispatcher, the peer facade) call Transition as protocol events
// occur; Machine only enforces monotonicity and notifies.
type Machine struct {
	role   Role
	logger *zap.Logger

	mu      sync.Mutex
	current State

	subsMu sync.Mutex
	subs   []func(StateChangeEvent)
}

// New creates a Machine starting at Disconnected.
func New(role Role, logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{role: role, logger: logger, current: Disconnected}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Subscribe registers fn to be called on every transition, in registration
// order. Returns a disposer.
func (m *Machine) Subscribe(fn func(StateChangeEvent)) func() {
	m.subsMu.Lock()
	idx := len(m.subs)
	m.subs = append(m.subs, fn)
	m.subsMu.Unlock()

	var disposed bool
	return func() {
		if disposed {
			return
		}
		disposed = true
		m.subsMu.Lock()
		m.subs[idx] = nil
		m.subsMu.Unlock()
	}
}

// Transition moves to next if that's a legal move from the current state
// (see validTransitions), emitting a StateChangeEvent to subscribers.
// Exited is terminal: no further transitions are accepted once reached.
func (m *Machine) Transition(next State, reason string) error {
	m.mu.Lock()
	prev := m.current
	if prev == Exited {
		m.mu.Unlock()
		return &Error{Operation: fmt.Sprintf("transition to %s", next), Current: prev}
	}
	if !validTransitions[prev][next] {
		m.mu.Unlock()
		return &Error{Operation: fmt.Sprintf("transition to %s", next), Current: prev}
	}
	m.current = next
	m.mu.Unlock()

	evt := StateChangeEvent{Previous: prev, Current: next, Timestamp: time.Now(), Reason: reason}
	m.logger.Debug("lifecycle transition",
		zap.String("previous", prev.String()), zap.String("current", next.String()), zap.String("reason", reason))

	m.subsMu.Lock()
	subs := append([]func(StateChangeEvent){}, m.subs...)
	m.subsMu.Unlock()
	for _, fn := range subs {
		if fn != nil {
			fn(evt)
		}
	}
	return nil
}

// CompareAndTransition moves from exactly `from` to `to`, failing (without
// mutating state) if the machine isn't currently in `from`. Mirrors the
// teacher's atomic.Value CompareAndSwap idiom for the handleShutdown /
// handleInitialized transitions, which must happen exactly once.
func (m *Machine) CompareAndTransition(from, to State, reason string) bool {
	m.mu.Lock()
	if m.current != from {
		m.mu.Unlock()
		return false
	}
	if !validTransitions[from][to] {
		m.mu.Unlock()
		return false
	}
	m.current = to
	m.mu.Unlock()

	evt := StateChangeEvent{Previous: from, Current: to, Timestamp: time.Now(), Reason: reason}
	m.subsMu.Lock()
	subs := append([]func(StateChangeEvent){}, m.subs...)
	m.subsMu.Unlock()
	for _, fn := range subs {
		if fn != nil {
			fn(evt)
		}
	}
	return true
}

var validTransitions = map[State]map[State]bool{
	Disconnected: {Connecting: true, Listening: true},
	Connecting:   {Initializing: true, Disconnected: true},
	Listening:    {Initializing: true, Disconnected: true},
	Initializing: {Initialized: true, ShuttingDown: true, Disconnected: true},
	Initialized:  {ShuttingDown: true, Disconnected: true},
	ShuttingDown: {Exited: true, Disconnected: true},
	Exited:       {},
}

// AllowsInbound reports whether an inbound message for method is permitted
// in the current state, per the gate rules: before Initialized, only
// initialize/initialized/$/cancelRequest/$/progress are accepted; a
// server may additionally answer `initialize` while Initializing and must
// answer `shutdown` while Initialized; after shutdown is answered, only
// `exit` survives as a notification.
func (m *Machine) AllowsInbound(method string, isServerInitializeAnswer bool) bool {
	state := m.Current()
	switch state {
	case Initialized:
		return true
	case ShuttingDown:
		return method == "exit"
	case Exited:
		return false
	default: // Disconnected, Connecting, Listening, Initializing
		if isEarlyMethod(method) {
			return true
		}
		if state == Initializing && method == "initialize" {
			return isServerInitializeAnswer
		}
		return false
	}
}

// AllowsOutbound reports whether a request this side wants to *send* is
// permitted in the current state: once Initialized, anything goes; before
// that, only `initialize` itself may go out (sent while Initializing, since
// the client transitions there before the call per its Initialize sequence);
// ShuttingDown and Exited reject every outbound request. Unlike
// AllowsInbound, notifications never go through this gate — Notify doesn't
// call it — since $/cancelRequest and $/progress must reach the peer
// regardless of local state.
func (m *Machine) AllowsOutbound(method string) bool {
	state := m.Current()
	switch state {
	case Initialized:
		return true
	case ShuttingDown, Exited:
		return false
	default: // Disconnected, Connecting, Listening, Initializing
		return method == "initialize"
	}
}

func isEarlyMethod(method string) bool {
	switch method {
	case "initialize", "initialized", "$/cancelRequest", "$/progress":
		return true
	default:
		return false
	}
}
