package sample

import (
	"encoding/json"
	"fmt"

	"github.com/itohio/goeeg/pkg/eeg"
)

// Record is the textual sample representation.
type Record struct {
	EEGData   []float64 `json:"eeg_data"`
	Timestamp float64   `json:"timestamp"` // unix seconds
}

// NewRecord converts a sample into its textual representation.
func NewRecord(s eeg.Sample) Record {
	var ts float64
	if !s.Timestamp.IsZero() {
		ts = float64(s.Timestamp.UnixNano()) / 1e9
	}
	return Record{
		EEGData:   append([]float64(nil), s.Channels[:]...),
		Timestamp: ts,
	}
}

// EncodeJSON encodes a sample as a JSON record.
func EncodeJSON(s eeg.Sample) ([]byte, error) {
	data, err := json.Marshal(NewRecord(s))
	if err != nil {
		return nil, fmt.Errorf("sample: encode json: %w", err)
	}
	return data, nil
}
