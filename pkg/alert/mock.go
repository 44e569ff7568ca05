package alert

import (
	"context"
	"errors"
	"sync"
)

// SentMessage is one delivery recorded by MockSink.
type SentMessage struct {
	Subject  string
	Body     string
	Critical bool
}

// MockSink records deliveries for tests. Set Fail to make Send error.
type MockSink struct {
	mu   sync.Mutex
	Fail bool
	Sent []SentMessage
}

var _ Sink = &MockSink{}

func (m *MockSink) Send(_ context.Context, subject, body string, critical bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return errors.New("send failed")
	}
	m.Sent = append(m.Sent, SentMessage{Subject: subject, Body: body, Critical: critical})
	return nil
}

// Count returns the number of recorded deliveries.
func (m *MockSink) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

// Last returns the most recent delivery, or false if none.
func (m *MockSink) Last() (SentMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Sent) == 0 {
		return SentMessage{}, false
	}
	return m.Sent[len(m.Sent)-1], true
}
