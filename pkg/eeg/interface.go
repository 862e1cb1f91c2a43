package eeg

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/itohio/goeeg/pkg/ads1299"
)

const (
	// Channels is the number of channels in a merged sample.
	Channels = 2 * ads1299.NumChannels
)

var (
	// ErrFraming reports a frame of unexpected size.
	ErrFraming = errors.New("eeg: framing error")
	// ErrClosed is returned when reading from a closed source.
	ErrClosed = fmt.Errorf("%w: source closed", ads1299.ErrTransport)
)

// Sample is one merged reading: primary channels 1..8 followed by secondary channels 1..8, in uV.
type Sample struct {
	Timestamp time.Time
	Channels  [Channels]float64
	Degraded  bool // zeroed because a frame carried an unexpected status word
}

// Source produces one sample per ReadCycle call.
type Source interface {
	Open() error
	ReadCycle() (Sample, error)
	Close() error
	IsOpen() bool
}

// Device is one addressed converter.
type Device interface {
	ads1299.Transport
	io.Closer
}

// Ensure Reader implements Source.
var _ Source = (*Reader)(nil)
