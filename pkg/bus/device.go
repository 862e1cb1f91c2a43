package bus

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"
)

// ErrTimeout is returned when a transfer does not complete within the device timeout.
var ErrTimeout = errors.New("bus: transfer timeout")

// Conn is a full-duplex connection to one device.
type Conn interface {
	Tx(w, r []byte) error
}

// Device addresses one converter through the shared multiplexer.
// It implements ads1299.Transport.
type Device struct {
	name     string
	conn     Conn
	mux      *Mux
	selected bool
	timeout  time.Duration
	closer   io.Closer

	inflight atomic.Bool // a timed out transfer has not returned yet
}

// Direct returns a device on its own hardware select line. Its transfers still
// take the bus lock so they never overlap a selected transfer.
func Direct(name string, conn Conn, mux *Mux, timeout time.Duration) *Device {
	return &Device{name: name, conn: conn, mux: mux, timeout: timeout}
}

// Selected returns a device addressed through the multiplexer's chip-select line.
func Selected(name string, conn Conn, mux *Mux, timeout time.Duration) *Device {
	return &Device{name: name, conn: conn, mux: mux, selected: true, timeout: timeout}
}

// WithCloser attaches the resource released by Close.
func (d *Device) WithCloser(c io.Closer) *Device {
	d.closer = c
	return d
}

// Name returns the device name.
func (d *Device) Name() string {
	return d.name
}

// Tx performs one transfer.
func (d *Device) Tx(w, r []byte) error {
	if d.timeout <= 0 {
		return d.tx(w, r)
	}

	// The bus lock stays held by the transfer goroutine until the driver returns,
	// so a timed out transfer still never overlaps the next one. Until it returns
	// further transfers fail immediately instead of queueing on the lock.
	if !d.inflight.CompareAndSwap(false, true) {
		return fmt.Errorf("%s: %w: previous transfer still outstanding", d.name, ErrTimeout)
	}
	done := make(chan error, 1)
	go func() {
		err := d.tx(w, r)
		d.inflight.Store(false)
		done <- err
	}()

	timer := time.NewTimer(d.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("%s: %w after %v", d.name, ErrTimeout, d.timeout)
	}
}

func (d *Device) tx(w, r []byte) error {
	op := func() error { return d.conn.Tx(w, r) }
	switch {
	case d.mux == nil:
		return op()
	case d.selected:
		return d.mux.WithSelected(op)
	default:
		return d.mux.Exclusive(op)
	}
}

// Close releases the underlying port.
func (d *Device) Close() error {
	if d.closer == nil {
		return nil
	}
	err := d.closer.Close()
	d.closer = nil
	return err
}
