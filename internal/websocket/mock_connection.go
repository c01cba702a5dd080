package websocket

import (
	"errors"
	"sync"
	"time"
)

// ErrMockClosed is returned by a closed MockConnection
var ErrMockClosed = errors.New("connection closed")

// MockConnection is an in-memory Connection for tests.
// Reads block until a message is queued or the connection is closed.
type MockConnection struct {
	mu sync.Mutex

	// WriteMessageFunc overrides the default recording behaviour
	WriteMessageFunc func(messageType int, data []byte) error
	WrittenMessages  []MockMessage

	ReadDeadline  time.Time
	WriteDeadline time.Time
	ReadLimit     int64
	PongHandler   func(string) error
	RemoteAddress string

	inbound chan MockMessage
	closed  chan struct{}
	once    sync.Once
	written chan struct{}
}

// MockMessage represents a message for mocking
type MockMessage struct {
	Type int
	Data []byte
	Err  error
}

// NewMockConnection creates a new mock connection
func NewMockConnection() *MockConnection {
	return &MockConnection{
		RemoteAddress: "127.0.0.1:8080",
		inbound:       make(chan MockMessage, 64),
		closed:        make(chan struct{}),
		written:       make(chan struct{}, 1),
	}
}

// WriteMessage records the message
func (m *MockConnection) WriteMessage(messageType int, data []byte) error {
	if m.IsClosed() {
		return ErrMockClosed
	}

	m.mu.Lock()
	if m.WriteMessageFunc != nil {
		fn := m.WriteMessageFunc
		m.mu.Unlock()
		return fn(messageType, data)
	}
	m.WrittenMessages = append(m.WrittenMessages, MockMessage{Type: messageType, Data: data})
	m.mu.Unlock()

	select {
	case m.written <- struct{}{}:
	default:
	}
	return nil
}

// ReadMessage returns the next queued message, blocking until one arrives or the connection closes
func (m *MockConnection) ReadMessage() (messageType int, p []byte, err error) {
	select {
	case msg := <-m.inbound:
		return msg.Type, msg.Data, msg.Err
	case <-m.closed:
		return 0, nil, ErrMockClosed
	}
}

// Close closes the connection; later calls are no-ops
func (m *MockConnection) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}

// IsClosed reports whether Close was called
func (m *MockConnection) IsClosed() bool {
	select {
	case <-m.closed:
		return true
	default:
		return false
	}
}

// SetReadDeadline implements Connection
func (m *MockConnection) SetReadDeadline(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReadDeadline = t
	return nil
}

// SetWriteDeadline implements Connection
func (m *MockConnection) SetWriteDeadline(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WriteDeadline = t
	return nil
}

// SetReadLimit implements Connection
func (m *MockConnection) SetReadLimit(limit int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReadLimit = limit
}

// SetPongHandler implements Connection
func (m *MockConnection) SetPongHandler(h func(string) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PongHandler = h
}

// RemoteAddr implements Connection
func (m *MockConnection) RemoteAddr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.RemoteAddress
}

// AddReadMessage queues a message for ReadMessage
func (m *MockConnection) AddReadMessage(messageType int, data []byte, err error) {
	m.inbound <- MockMessage{Type: messageType, Data: data, Err: err}
}

// GetWrittenMessages returns all messages written to the connection
func (m *MockConnection) GetWrittenMessages() []MockMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]MockMessage, len(m.WrittenMessages))
	copy(result, m.WrittenMessages)
	return result
}

// Written is signalled after each recorded write
func (m *MockConnection) Written() <-chan struct{} {
	return m.written
}
