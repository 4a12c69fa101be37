package messaging

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrMockSendFailed is returned by MockService for recipients marked as failing.
var ErrMockSendFailed = errors.New("mock send failed")

// SentMessage records one delivered message.
type SentMessage struct {
	To   string
	Body string
}

// MockService records messages and calls; it implements Sender and Caller for tests.
type MockService struct {
	mu       sync.Mutex
	Sent     []SentMessage
	Calls    []SentMessage
	attempts map[string]int
	failN    map[string]int // remaining failures per recipient; <0 fails forever
	delay    time.Duration
}

// NewMockService creates an empty MockService.
func NewMockService() *MockService {
	return &MockService{attempts: map[string]int{}, failN: map[string]int{}}
}

// FailAlways makes every send to recipient fail.
func (m *MockService) FailAlways(recipient string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failN[recipient] = -1
}

// FailTimes makes the next n sends to recipient fail.
func (m *MockService) FailTimes(recipient string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failN[recipient] = n
}

// SetDelay makes every send block for d or until its context is done.
func (m *MockService) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// SendMessage records the message or fails as configured.
func (m *MockService) SendMessage(ctx context.Context, to string, body string) error {
	if err := m.wait(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[to]++
	if n := m.failN[to]; n != 0 {
		if n > 0 {
			m.failN[to] = n - 1
		}
		return ErrMockSendFailed
	}
	m.Sent = append(m.Sent, SentMessage{To: to, Body: body})
	return nil
}

// PlaceCall records the call.
func (m *MockService) PlaceCall(ctx context.Context, to string, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, SentMessage{To: to, Body: message})
	return nil
}

// Attempts returns the number of send attempts made to recipient.
func (m *MockService) Attempts(recipient string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts[recipient]
}

// Messages returns a copy of the delivered messages.
func (m *MockService) Messages() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.Sent...)
}

func (m *MockService) wait(ctx context.Context) error {
	m.mu.Lock()
	d := m.delay
	m.mu.Unlock()
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
