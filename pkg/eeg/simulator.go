package eeg

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/itohio/goeeg/pkg/ads1299"
	"github.com/itohio/goeeg/pkg/config"
)

// Simulator emulates one converter on the bus for testing and development.
// It tracks the command state machine and answers frame reads with a synthetic
// EEG-like signal once the device is configured and converting.
type Simulator struct {
	cfg   *config.MockConfig
	phase float64 // per-device phase offset (rad)

	mu        sync.Mutex
	closed    bool
	awake     bool
	config    bool // SDATAC: register writes accepted
	streaming bool // RDATAC
	started   bool // START issued
	registers map[byte]byte
	commands  []byte
	reads     int
	n         int // frames produced
}

// Ensure Simulator implements Device.
var _ Device = (*Simulator)(nil)

// NewSimulator creates a simulated converter.
func NewSimulator(cfg *config.MockConfig, phase float64) *Simulator {
	if cfg == nil {
		cfg = &config.MockConfig{
			Amplitude:  50.0,
			Frequency:  10.0,
			NoiseLevel: 5.0,
			SampleRate: 4 * time.Millisecond,
		}
	}

	return &Simulator{
		cfg:       cfg,
		phase:     phase,
		registers: make(map[byte]byte),
	}
}

// Tx decodes commands, register writes and frame reads.
func (s *Simulator) Tx(w, r []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("simulator: closed")
	}

	switch {
	case len(w) == ads1299.FrameSize:
		return s.readFrame(r)
	case len(w) == 1:
		s.command(w[0])
		return nil
	case len(w) == 3 && w[0]&0xE0 == ads1299.WriteRegisterPrefix:
		if !s.config {
			return fmt.Errorf("simulator: register 0x%02X written outside configuration mode", w[0]&0x1F)
		}
		s.registers[w[0]&0x1F] = w[2]
		return nil
	default:
		return fmt.Errorf("simulator: unexpected %d byte transfer", len(w))
	}
}

func (s *Simulator) command(op byte) {
	s.commands = append(s.commands, op)
	switch op {
	case ads1299.CmdWakeup:
		s.awake = true
	case ads1299.CmdStop:
		s.started = false
	case ads1299.CmdReset:
		clear(s.registers)
		s.config, s.streaming, s.started = false, false, false
	case ads1299.CmdSDATAC:
		s.config, s.streaming = true, false
	case ads1299.CmdRDATAC:
		s.config, s.streaming = false, true
	case ads1299.CmdStart:
		s.started = true
	}
}

func (s *Simulator) readFrame(r []byte) error {
	s.reads++
	if s.cfg.FailEvery > 0 && s.reads%s.cfg.FailEvery == 0 {
		return fmt.Errorf("simulator: injected fault on read %d", s.reads)
	}
	if len(r) == 0 {
		return nil
	}

	clear(r)
	if !(s.awake && s.streaming && s.started) {
		// An idle device clocks out zeros, including the status word.
		return nil
	}

	copy(r, ads1299.StatusMarker[:])
	t := float64(s.n) * s.cfg.SampleRate.Seconds()
	for ch := range ads1299.NumChannels {
		uv := s.signal(t, ch)
		code := encodeCode(uv)
		i := ads1299.StatusSize + ch*ads1299.BytesPerChannel
		r[i] = byte(code >> 16)
		r[i+1] = byte(code >> 8)
		r[i+2] = byte(code)
	}
	s.n++
	return nil
}

// signal generates an alpha-like oscillation with deterministic pseudo noise.
func (s *Simulator) signal(t float64, ch int) float64 {
	omega := 2 * math.Pi * s.cfg.Frequency
	chPhase := s.phase + float64(ch)*math.Pi/8
	v := s.cfg.Amplitude * math.Sin(omega*t+chPhase)

	noise := (math.Sin(t*1000*0.37+float64(ch)) + math.Cos(t*1000*0.53-float64(ch))) *
		s.cfg.NoiseLevel * 0.5
	return v + noise
}

// encodeCode is the inverse of ads1299.DecodeChannel for the simulated range.
func encodeCode(uv float64) uint32 {
	code := int64(math.Round(uv * 16777215 / 4.5e6))
	if code < 0 {
		code += 16777214
	}
	return uint32(code) & 0xFFFFFF
}

// Register returns the last value written to reg.
func (s *Simulator) Register(reg byte) (byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.registers[reg]
	return v, ok
}

// Commands returns a copy of all opcodes received.
func (s *Simulator) Commands() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.commands...)
}

// Streaming reports whether the device is converting in continuous-read mode.
func (s *Simulator) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.awake && s.streaming && s.started
}

// Close marks the simulator closed; further transfers fail.
func (s *Simulator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
