package server

import (
	"sync"

	"github.com/google/uuid"

	"github.com/brandalign/engine/internal/session"
)

// SessionState tracks the lifecycle of a server session.
type SessionState int

const (
	StateUninitialized SessionState = iota
	StateInitialized
	StateShuttingDown
)

// Session holds per-connection lifecycle state, usage counters, and the
// key/value store shared by the plan and auth handlers.
type Session struct {
	mu                sync.Mutex
	id                string
	state             SessionState
	sessionsCompleted int64
	assetsEvaluated   int64
	store             session.State
}

// NewSession creates a fresh uninitialized session with an empty state store.
func NewSession() *Session {
	return &Session{
		id:    uuid.NewString(),
		store: session.NewMemoryState(),
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState transitions the session to a new lifecycle state.
func (s *Session) SetState(state SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// Store returns the session's key/value state.
func (s *Session) Store() session.State { return s.store }

// IncrementAssets adds n to the evaluated-asset counter.
func (s *Session) IncrementAssets(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assetsEvaluated += int64(n)
}
