package notify

import (
	"fmt"
	"log/slog"
	"sync"
)

// Memory is an in-process peripheral. It keeps the last value and counts
// notifications; Connect and Disconnect simulate link events.
type Memory struct {
	link

	mu         sync.Mutex
	value      []byte
	advertised bool
	notified   int
	closed     bool
}

// NewMemory creates an in-process peripheral.
func NewMemory(name string, log *slog.Logger) *Memory {
	m := &Memory{}
	m.setup(name, log)
	return m
}

// PublishAdvertisement marks the peripheral as advertised.
func (m *Memory) PublishAdvertisement() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.advertised = true
	m.log.Info("advertising", "device_name", m.name)
	return nil
}

// SetValue stores a copy of payload.
func (m *Memory) SetValue(payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("%w: closed", ErrNotify)
	}
	m.value = append(m.value[:0], payload...)
	return nil
}

// Notify counts one notification of the current value.
func (m *Memory) Notify() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("%w: closed", ErrNotify)
	}
	m.notified++
	return nil
}

// Connect simulates a client connecting.
func (m *Memory) Connect() { m.setConnected(true) }

// Disconnect simulates the client leaving.
func (m *Memory) Disconnect() { m.setConnected(false) }

// Value returns a copy of the current value.
func (m *Memory) Value() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.value...)
}

// Notifications returns the number of successful Notify calls.
func (m *Memory) Notifications() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.notified
}

// Advertised reports whether PublishAdvertisement was called.
func (m *Memory) Advertised() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.advertised
}

// Close marks the peripheral closed; further values fail with ErrNotify.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
