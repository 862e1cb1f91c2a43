package notify

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the factory rate of HM-10 class modules.
	DefaultBaudRate = 9600

	eventConnected    = "OK+CONN"
	eventDisconnected = "OK+LOST"
	eventSize         = len(eventConnected)
)

// Serial drives a BLE-UART bridge module attached to a serial port. The module
// advertises under the configured name, forwards bytes written while a client is
// connected as notifications and reports link changes in-band.
type Serial struct {
	link

	port     string
	baudRate int

	wmu    sync.Mutex
	conn   io.ReadWriteCloser
	value  []byte
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSerial creates a bridge on the named port. Call Open before use.
func NewSerial(port string, baudRate int, name string, log *slog.Logger) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	s := &Serial{port: port, baudRate: baudRate}
	s.setup(name, log)
	return s
}

// NewSerialWithPort attaches a bridge to an already open stream.
func NewSerialWithPort(conn io.ReadWriteCloser, name string, log *slog.Logger) *Serial {
	s := &Serial{}
	s.setup(name, log)
	s.attach(conn)
	return s
}

// Open opens the serial port and starts watching for link events.
func (s *Serial) Open() error {
	s.wmu.Lock()
	if s.conn != nil {
		s.wmu.Unlock()
		return fmt.Errorf("notify: %s already open", s.port)
	}
	s.wmu.Unlock()

	port, err := serial.Open(s.port, &serial.Mode{BaudRate: s.baudRate})
	if err != nil {
		return fmt.Errorf("notify: failed to open serial port %s: %w", s.port, err)
	}
	s.attach(port)
	return nil
}

func (s *Serial) attach(conn io.ReadWriteCloser) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	s.conn = conn
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.done = make(chan struct{})
	go s.watch(conn)
}

// PublishAdvertisement sets the advertised name.
func (s *Serial) PublishAdvertisement() error {
	if err := s.write([]byte("AT+NAME" + s.name)); err != nil {
		return fmt.Errorf("notify: advertise %q: %w", s.name, err)
	}
	s.log.Info("advertising", "device_name", s.name)
	return nil
}

// SetValue stores the payload sent by the next Notify.
func (s *Serial) SetValue(payload []byte) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: closed", ErrNotify)
	}
	s.value = append(s.value[:0], payload...)
	return nil
}

// Notify sends the current value to the connected client. Without a client the
// module is in command mode, so nothing is written.
func (s *Serial) Notify() error {
	if !s.IsConnected() {
		return nil
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if err := s.writeLocked(s.value); err != nil {
		return fmt.Errorf("%w: %w", ErrNotify, err)
	}
	return nil
}

// Close stops the event watcher and closes the port. Safe to call repeatedly,
// but not from a link callback.
func (s *Serial) Close() error {
	s.wmu.Lock()
	if s.closed || s.conn == nil {
		s.closed = true
		s.wmu.Unlock()
		return nil
	}
	s.closed = true
	s.cancel()
	err := s.conn.Close()
	done := s.done
	s.wmu.Unlock()

	<-done
	if err != nil {
		return fmt.Errorf("notify: failed to close %s: %w", s.port, err)
	}
	return nil
}

func (s *Serial) write(p []byte) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.writeLocked(p)
}

func (s *Serial) writeLocked(p []byte) error {
	if s.closed || s.conn == nil {
		return errors.New("port closed")
	}
	_, err := s.conn.Write(p)
	return err
}

// watch reads link events until the port is closed.
func (s *Serial) watch(conn io.Reader) {
	defer close(s.done)
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in link watcher", "panic", r)
		}
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Split(splitLinkEvents)
	for scanner.Scan() {
		switch scanner.Text() {
		case eventConnected:
			s.setConnected(true)
		case eventDisconnected:
			s.setConnected(false)
		}
	}
	if err := scanner.Err(); err != nil && s.ctx.Err() == nil {
		s.log.Warn("link watcher stopped", "error", err)
	}
}

// splitLinkEvents tokenizes the module output into link events. The module emits
// them without terminators; any other bytes are discarded.
func splitLinkEvents(data []byte, atEOF bool) (advance int, token []byte, err error) {
	conn := bytes.Index(data, []byte(eventConnected))
	lost := bytes.Index(data, []byte(eventDisconnected))

	i := conn
	if i < 0 || (lost >= 0 && lost < i) {
		i = lost
	}
	if i >= 0 {
		return i + eventSize, data[i : i+eventSize], nil
	}
	if atEOF {
		return len(data), nil, nil
	}
	// keep a possible partial event at the tail
	if keep := eventSize - 1; len(data) > keep {
		return len(data) - keep, nil, nil
	}
	return 0, nil, nil
}
