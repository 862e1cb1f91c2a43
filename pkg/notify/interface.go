// Package notify implements notification sinks that publish encoded samples to a
// connected client and report link events.
package notify

import (
	"errors"
	"log/slog"
	"sync"
)

// ErrNotify wraps every failure to push a value to the client.
var ErrNotify = errors.New("notify: failed to push value")

// Peripheral is a notification sink with link events.
type Peripheral interface {
	PublishAdvertisement() error
	SetValue(payload []byte) error
	Notify() error
	OnConnect(fn func())
	OnDisconnect(fn func())
	Close() error
}

// Ensure implementations satisfy Peripheral.
var (
	_ Peripheral = (*Serial)(nil)
	_ Peripheral = (*Memory)(nil)
)

// link tracks connection state and dispatches link callbacks.
type link struct {
	name string
	log  *slog.Logger

	mu           sync.RWMutex
	connected    bool
	onConnect    []func()
	onDisconnect []func()
}

func (l *link) setup(name string, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	l.name = name
	l.log = log.With("component", "notify")
}

// OnConnect registers a callback for client connections.
func (l *link) OnConnect(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onConnect = append(l.onConnect, fn)
}

// OnDisconnect registers a callback for client disconnections.
func (l *link) OnDisconnect(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onDisconnect = append(l.onDisconnect, fn)
}

// IsConnected reports whether a client is connected.
func (l *link) IsConnected() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.connected
}

// setConnected updates the link state and runs callbacks outside the lock.
// Repeated events for the same state are ignored.
func (l *link) setConnected(connected bool) {
	l.mu.Lock()
	if l.connected == connected {
		l.mu.Unlock()
		return
	}
	l.connected = connected
	callbacks := l.onDisconnect
	if connected {
		callbacks = l.onConnect
	}
	l.mu.Unlock()

	l.log.Info("connection status",
		"type", "connection_status",
		"connected", connected,
		"device_name", l.name,
	)
	for _, fn := range callbacks {
		fn()
	}
}
