package sample

import (
	"fmt"

	"github.com/itohio/goeeg/pkg/eeg"
)

// Encoder serializes a sample into an outbound payload.
type Encoder func(eeg.Sample) ([]byte, error)

// EncoderByName resolves "binary" or "json".
func EncoderByName(name string) (Encoder, error) {
	switch name {
	case "", "binary":
		return EncodeBinary, nil
	case "json":
		return EncodeJSON, nil
	default:
		return nil, fmt.Errorf("sample: unknown encoding %q", name)
	}
}

// Features returns the classifier input vector, each channel multiplied by scale.
func Features(s eeg.Sample, scale float32) []float32 {
	out := make([]float32, eeg.Channels)
	for i, v := range s.Channels {
		out[i] = float32(v) * scale
	}
	return out
}
