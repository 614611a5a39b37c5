package vehicle

import (
	"sync"
)

// MockTransport records frames instead of sending them
type MockTransport struct {
	mu      sync.Mutex
	frames  [][]byte
	healthy bool
	err     error
	closed  bool
}

// NewMockTransport creates a healthy mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{healthy: true}
}

// Write records a copy of the frame
func (m *MockTransport) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrNotConnected
	}
	if m.err != nil {
		return 0, m.err
	}

	m.frames = append(m.frames, append([]byte(nil), p...))
	return len(p), nil
}

// Close marks the transport closed
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Healthy returns the configured health
func (m *MockTransport) Healthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthy && !m.closed
}

// Name returns the transport type name
func (m *MockTransport) Name() string {
	return TransportMock
}

// SetError makes subsequent writes fail with err (nil to recover)
func (m *MockTransport) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	m.healthy = err == nil
}

// Frames returns a copy of the recorded frames
func (m *MockTransport) Frames() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([][]byte, len(m.frames))
	copy(out, m.frames)
	return out
}
