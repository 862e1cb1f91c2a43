// Package sample serializes merged EEG samples for outbound notification
// and derives classifier feature vectors from them.
package sample

import (
	"errors"
	"fmt"

	"github.com/itohio/goeeg/pkg/eeg"
)

const (
	// BytesPerValue is the width of one encoded channel value.
	BytesPerValue = 3
	// WireSize is the size of one binary-encoded sample.
	WireSize = eeg.Channels * BytesPerValue

	bias     = 1 << 24
	maxValue = 1<<23 - 1
	minValue = -(1 << 23)
)

// ErrRange reports a channel value that does not fit into 24 bits.
var ErrRange = errors.New("sample: value out of 24-bit range")

// EncodeBinary packs the 16 channel values as 3-byte big-endian integers.
// Values are truncated toward zero; negative values are biased by 2^24.
func EncodeBinary(s eeg.Sample) ([]byte, error) {
	out := make([]byte, 0, WireSize)
	for ch, uv := range s.Channels {
		v := int64(uv)
		if v > maxValue || v < minValue {
			return nil, fmt.Errorf("%w: channel %d = %v", ErrRange, ch+1, uv)
		}
		if v < 0 {
			v += bias
		}
		out = append(out, byte(v>>16), byte(v>>8), byte(v))
	}
	return out, nil
}

// DecodeBinary reverses EncodeBinary into signed integer channel codes.
func DecodeBinary(b []byte) ([eeg.Channels]int32, error) {
	var out [eeg.Channels]int32
	if len(b) != WireSize {
		return out, fmt.Errorf("sample: wire payload has %d bytes, want %d", len(b), WireSize)
	}
	for ch := range out {
		i := ch * BytesPerValue
		v := int32(b[i])<<16 | int32(b[i+1])<<8 | int32(b[i+2])
		if v > maxValue {
			v -= bias
		}
		out[ch] = v
	}
	return out, nil
}
