package session

import (
	"context"
	"time"
)

// Backoff tuning exported for tests.
const (
	BackoffFloor  = backoffFloor
	BackoffFactor = backoffFactor
	BackoffCap    = backoffCap
)

// SetSleep replaces the backoff sleep so tests observe delays without waiting.
func (s *Session) SetSleep(fn func(context.Context, time.Duration)) {
	s.sleep = fn
}

// ReconnectDelay returns the current backoff delay.
func (s *Session) ReconnectDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnectDelay
}

// ConnectionAttempts returns the consecutive-failure counter.
func (s *Session) ConnectionAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectionAttempts
}
