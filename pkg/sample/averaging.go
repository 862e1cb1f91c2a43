package sample

import (
	"log/slog"

	"github.com/itohio/goeeg/pkg/eeg"
)

// Converter transforms a sample stream. The output is closed when the input is.
type Converter func(in <-chan eeg.Sample) <-chan eeg.Sample

// NewAveragingConverter emits, for every input sample, the per-channel mean of the
// last windowSize valid samples. Degraded samples are passed through untouched and
// do not enter the window. Outputs are dropped when the consumer falls behind.
func NewAveragingConverter(windowSize, bufSize int, log *slog.Logger) Converter {
	if windowSize <= 0 {
		windowSize = 1
	}
	if bufSize <= 0 {
		bufSize = 100
	}
	if log == nil {
		log = slog.Default()
	}

	return func(in <-chan eeg.Sample) <-chan eeg.Sample {
		out := make(chan eeg.Sample, bufSize)

		go func() {
			defer close(out)

			avg := newMovingAverage(windowSize)
			for s := range in {
				if !s.Degraded {
					s.Channels = avg.push(s.Channels)
				}

				select {
				case out <- s:
				default:
					log.Warn("averaging converter output channel full, dropping sample")
				}
			}
		}()

		return out
	}
}

// movingAverage keeps running channel sums over a fixed window.
type movingAverage struct {
	window [][eeg.Channels]float64
	next   int
	n      int
	sum    [eeg.Channels]float64
}

func newMovingAverage(size int) *movingAverage {
	return &movingAverage{window: make([][eeg.Channels]float64, size)}
}

func (m *movingAverage) push(v [eeg.Channels]float64) [eeg.Channels]float64 {
	if m.n == len(m.window) {
		old := m.window[m.next]
		for i := range m.sum {
			m.sum[i] -= old[i]
		}
	} else {
		m.n++
	}
	m.window[m.next] = v
	m.next = (m.next + 1) % len(m.window)

	var out [eeg.Channels]float64
	for i := range m.sum {
		m.sum[i] += v[i]
		out[i] = m.sum[i] / float64(m.n)
	}
	return out
}
