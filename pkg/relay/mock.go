package relay

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MockOutput records relay transitions for tests.
type MockOutput struct {
	mu          sync.Mutex
	connected   bool
	Transitions []bool
	Resets      int
	FailWrites  bool
	// FailuresLeft makes the next N writes fail, then writes succeed.
	FailuresLeft int
	closed       bool
}

var _ Output = &MockOutput{}

// NewMockOutput returns a mock starting in the given state.
func NewMockOutput(connected bool) *MockOutput {
	return &MockOutput{connected: connected}
}

func (m *MockOutput) SetConnected(_ context.Context, connected bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return errors.New("relay write failed")
	}
	if m.FailuresLeft > 0 {
		m.FailuresLeft--
		return errors.New("relay write failed")
	}
	if connected != m.connected {
		m.Transitions = append(m.Transitions, connected)
	}
	m.connected = connected
	return nil
}

func (m *MockOutput) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockOutput) ResetInverter(_ context.Context, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Resets++
	return nil
}

func (m *MockOutput) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockOutput) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// TransitionCount returns the number of recorded state changes.
func (m *MockOutput) TransitionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Transitions)
}
