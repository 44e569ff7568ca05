package storage

import (
	"context"
	"errors"
	"sync"
)

// MockLog records rows for tests.
type MockLog struct {
	mu     sync.Mutex
	Fail   bool
	Rows   []Row
	closed bool
}

var _ PersistentLog = &MockLog{}

func (m *MockLog) AppendRow(_ context.Context, row Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return errors.New("append failed")
	}
	m.Rows = append(m.Rows, row)
	return nil
}

func (m *MockLog) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Count returns the number of recorded rows.
func (m *MockLog) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Rows)
}

// Last returns the most recent row, or false if none.
func (m *MockLog) Last() (Row, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Rows) == 0 {
		return Row{}, false
	}
	return m.Rows[len(m.Rows)-1], true
}
