package framereader

import (
	"context"
	"io"
	"sync"
	"time"
)

// MockTransport implements Transport for testing. It serves canned bytes
// chunk by chunk and can be scripted to fail or delay.
type MockTransport struct {
	mu sync.Mutex

	// Data is consumed by successive ReadChunk calls.
	Data []byte

	// WaitError and ReadError are returned by the respective methods
	// when set.
	WaitError error
	ReadError error

	// WaitDelay is slept inside WaitReady, to simulate the sensor pacing
	// its frames.
	WaitDelay time.Duration

	// ReadDelay is slept inside ReadChunk, to simulate slow transfers in
	// overrun tests.
	ReadDelay time.Duration

	WaitCalls int
	ReadCalls int
	Closed    bool
}

// NewMockTransport returns a MockTransport preloaded with data.
func NewMockTransport(data []byte) *MockTransport {
	return &MockTransport{Data: data}
}

func (m *MockTransport) WaitReady(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WaitCalls++
	if m.WaitError != nil {
		return m.WaitError
	}
	if m.WaitDelay > 0 {
		time.Sleep(m.WaitDelay)
	}
	return ctx.Err()
}

func (m *MockTransport) ReadChunk(ctx context.Context, buf []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReadCalls++
	if m.ReadError != nil {
		return m.ReadError
	}
	if m.ReadDelay > 0 {
		time.Sleep(m.ReadDelay)
	}
	if len(m.Data) < len(buf) {
		return io.ErrUnexpectedEOF
	}
	copy(buf, m.Data)
	m.Data = m.Data[len(buf):]
	return nil
}

func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}
