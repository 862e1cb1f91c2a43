// Package bus serializes access to converter devices that share one SPI bus
// and one software chip-select line.
package bus

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
)

// Line is a digital output driving a chip-select signal.
type Line interface {
	Out(l gpio.Level) error
}

// Mux owns the shared chip-select line. At most one bus operation runs at a time
// and the line is high whenever no selected operation is in progress.
type Mux struct {
	mu sync.Mutex
	cs Line
}

// NewMux deselects the line and returns a multiplexer guarding it.
func NewMux(cs Line) (*Mux, error) {
	if cs == nil {
		return nil, errors.New("bus: chip-select line required")
	}
	if err := cs.Out(gpio.High); err != nil {
		return nil, fmt.Errorf("bus: deselect: %w", err)
	}
	return &Mux{cs: cs}, nil
}

// WithSelected drives the line low, runs body and drives it high again on every exit path.
func (m *Mux) WithSelected(body func() error) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.cs.Out(gpio.Low); err != nil {
		// Best effort: never leave the line asserted.
		_ = m.cs.Out(gpio.High)
		return fmt.Errorf("bus: select: %w", err)
	}
	defer func() {
		if derr := m.cs.Out(gpio.High); derr != nil {
			err = errors.Join(err, fmt.Errorf("bus: deselect: %w", derr))
		}
	}()

	return body()
}

// Exclusive runs body under the bus lock without touching the line.
// Used for the primary device whose own select line is always asserted.
func (m *Mux) Exclusive(body func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return body()
}
