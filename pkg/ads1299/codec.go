package ads1299

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrTransport reports a bus I/O failure.
	ErrTransport = errors.New("ads1299: transport error")
	// ErrConfiguration reports a failure while configuring a device.
	ErrConfiguration = errors.New("ads1299: configuration error")
)

const (
	signProbe = 0x7FFFFF
	signCheck = 0xFFFFFF

	// negativeBias is subtracted from codes whose sign bit is set.
	// NOTE: one less than 2^24 - 1; kept for calibration compatibility with deployed clients.
	negativeBias = 16777214

	fullScale = 16777215
	vRef      = 4.5
)

// Transport is a full-duplex transfer with one converter device.
// len(r) is either zero or equal to len(w).
type Transport interface {
	Tx(w, r []byte) error
}

// Frame is one continuous-read data burst: status word followed by 8 channels.
type Frame [FrameSize]byte

// Status returns the 3-byte status prefix.
func (f Frame) Status() [StatusSize]byte {
	return [StatusSize]byte{f[0], f[1], f[2]}
}

// Valid reports whether the status prefix matches StatusMarker.
func (f Frame) Valid() bool {
	return f.Status() == StatusMarker
}

// Code returns the raw 24-bit code of channel ch (0-based).
func (f Frame) Code(ch int) uint32 {
	i := StatusSize + ch*BytesPerChannel
	return Code(f[i], f[i+1], f[i+2])
}

// Channels decodes the eight channel values in microvolts.
func (f Frame) Channels() [NumChannels]float64 {
	var out [NumChannels]float64
	for ch := range NumChannels {
		out[ch] = DecodeChannel(f.Code(ch))
	}
	return out
}

// Code assembles a big-endian 24-bit code.
func Code(b0, b1, b2 byte) uint32 {
	return uint32(b0)<<16 | uint32(b1)<<8 | uint32(b2)
}

// DecodeChannel converts a raw 24-bit code into microvolts rounded to 2 decimals.
// Gain is fixed at 1 with a 4.5 V reference.
func DecodeChannel(raw uint32) float64 {
	raw &= signCheck
	code := int64(raw)
	if raw|signProbe == signCheck {
		code -= negativeBias
	}
	uv := 1_000_000 * vRef * float64(code) / fullScale
	return math.Round(uv*100) / 100
}

// SendCommand writes a single opcode byte.
func SendCommand(t Transport, opcode byte) error {
	if err := t.Tx([]byte{opcode}, nil); err != nil {
		return fmt.Errorf("%w: command 0x%02X: %w", ErrTransport, opcode, err)
	}
	return nil
}

// WriteRegister writes value into register. The device must be in configuration mode (SDATAC).
func WriteRegister(t Transport, register, value byte) error {
	if err := t.Tx([]byte{WriteRegisterPrefix | register, 0x00, value}, nil); err != nil {
		return fmt.Errorf("%w: write register 0x%02X: %w", ErrTransport, register, err)
	}
	return nil
}

// ReadFrame clocks out one frame from a device in continuous-read mode.
func ReadFrame(t Transport) (Frame, error) {
	var f Frame
	w := make([]byte, FrameSize)
	r := make([]byte, FrameSize)
	if err := t.Tx(w, r); err != nil {
		return f, fmt.Errorf("%w: read frame: %w", ErrTransport, err)
	}
	copy(f[:], r)
	return f, nil
}
