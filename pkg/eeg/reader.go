package eeg

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/itohio/goeeg/pkg/ads1299"
)

// ReaderOptions tunes a Reader.
type ReaderOptions struct {
	// Strict validates both status words and degrades to a zeroed sample on mismatch.
	Strict bool
	Init   ads1299.InitOptions
	Logger *slog.Logger
	Now    func() time.Time
}

// Reader acquires merged samples from a primary and a secondary converter.
type Reader struct {
	primary   Device
	secondary Device
	opts      ReaderOptions
	log       *slog.Logger

	mu     sync.Mutex
	open   bool
	closed bool

	degraded atomic.Uint64
}

// NewReader creates a reader over two addressed devices. The secondary is expected
// to select itself through the bus multiplexer on every transfer.
func NewReader(primary, secondary Device, opts ReaderOptions) *Reader {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{
		primary:   primary,
		secondary: secondary,
		opts:      opts,
		log:       logger.With("component", "reader"),
	}
}

// Open configures both converters and starts continuous conversion.
// A configuration failure closes both devices; nothing streams half-configured.
func (r *Reader) Open() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if r.open {
		return errors.New("eeg: already open")
	}

	if err := ads1299.Init(r.primary, r.opts.Init); err != nil {
		r.closeDevices()
		return fmt.Errorf("primary: %w", err)
	}
	if err := ads1299.Init(r.secondary, r.opts.Init); err != nil {
		r.closeDevices()
		return fmt.Errorf("secondary: %w", err)
	}

	r.open = true
	r.log.Info("converters streaming", "strict", r.opts.Strict)
	return nil
}

// ReadCycle reads one frame from each device and merges them into a sample.
func (r *Reader) ReadCycle() (Sample, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.open {
		return Sample{}, ErrClosed
	}

	a, err := ads1299.ReadFrame(r.primary)
	if err != nil {
		return Sample{}, fmt.Errorf("primary: %w", err)
	}
	b, err := ads1299.ReadFrame(r.secondary)
	if err != nil {
		return Sample{}, fmt.Errorf("secondary: %w", err)
	}

	s, err := Merge(a[:], b[:], r.opts.Strict)
	if err != nil {
		return Sample{}, err
	}
	s.Timestamp = r.opts.Now()
	if s.Degraded {
		n := r.degraded.Add(1)
		r.log.Debug("unexpected status word, sample zeroed",
			"primary", fmt.Sprintf("% X", a.Status()),
			"secondary", fmt.Sprintf("% X", b.Status()),
			"degraded_total", n)
	}
	return s, nil
}

// Degraded returns the number of cycles zeroed by the status check.
func (r *Reader) Degraded() uint64 {
	return r.degraded.Load()
}

// Close stops the converters and releases both devices. Waits for an in-flight cycle.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	if r.open {
		// Leave the converters idle; a failure here does not prevent releasing the ports.
		for _, d := range []Device{r.primary, r.secondary} {
			if err := ads1299.SendCommand(d, ads1299.CmdSDATAC); err != nil {
				errs = append(errs, err)
			}
			if err := ads1299.SendCommand(d, ads1299.CmdStop); err != nil {
				errs = append(errs, err)
			}
		}
	}
	r.open = false
	errs = append(errs, r.closeDevices())
	if err := errors.Join(errs...); err != nil {
		r.log.Warn("close", "error", err)
		return err
	}
	return nil
}

// IsOpen returns whether the reader is streaming.
func (r *Reader) IsOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open
}

func (r *Reader) closeDevices() error {
	return errors.Join(r.primary.Close(), r.secondary.Close())
}

// Merge decodes a primary and a secondary frame into one sample.
// With strict set, a frame not starting with the streaming status marker yields
// a zeroed, degraded sample rather than an error.
func Merge(primary, secondary []byte, strict bool) (Sample, error) {
	var s Sample

	var frames [2]ads1299.Frame
	for i, raw := range [][]byte{primary, secondary} {
		if len(raw) != ads1299.FrameSize {
			return s, fmt.Errorf("%w: frame %d has %d bytes, want %d", ErrFraming, i, len(raw), ads1299.FrameSize)
		}
		copy(frames[i][:], raw)
	}

	if strict && !(frames[0].Valid() && frames[1].Valid()) {
		s.Degraded = true
		return s, nil
	}

	a := frames[0].Channels()
	b := frames[1].Channels()
	copy(s.Channels[:ads1299.NumChannels], a[:])
	copy(s.Channels[ads1299.NumChannels:], b[:])
	return s, nil
}
