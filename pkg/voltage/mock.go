package voltage

import (
	"context"
	"sync"
)

// MockSource replays queued readings for tests. When the queue empties it
// keeps returning the final entry.
type MockSource struct {
	mu       sync.Mutex
	readings []float64
	errs     []error
	i        int
	closed   bool
}

var _ Source = &MockSource{}

// NewMockSource returns a source replaying the given readings in order.
func NewMockSource(readings ...float64) *MockSource {
	return &MockSource{readings: readings}
}

// PushError queues an error to be returned in sequence with readings. An
// error entry consumes one Read call.
func (m *MockSource) PushError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, err)
}

// Push appends readings to the replay queue.
func (m *MockSource) Push(readings ...float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings = append(m.readings, readings...)
}

func (m *MockSource) Read(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return 0, err
	}
	if len(m.readings) == 0 {
		return 0, context.Canceled
	}
	v := m.readings[m.i]
	if m.i < len(m.readings)-1 {
		m.i++
	}
	return v, nil
}

func (m *MockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockSource) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
