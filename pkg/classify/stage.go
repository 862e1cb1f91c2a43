package classify

import (
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/itohio/goeeg/pkg/eeg"
	"github.com/itohio/goeeg/pkg/sample"
	"github.com/itohio/goeeg/pkg/smoother"
)

// DefaultBufferSize is the default size of the verdict channel.
const DefaultBufferSize = 16

// ErrDegraded is returned for samples zeroed by the reader; they are not classified.
var ErrDegraded = errors.New("classify: degraded sample")

// Result pairs a verdict with the sample time.
type Result struct {
	Timestamp time.Time
	Verdict   smoother.Verdict
}

// StageOptions configures a Stage.
type StageOptions struct {
	Scale      float32 // feature scale, 0 means 1
	BufferSize int
	Logger     *slog.Logger
}

// Stage classifies samples and smooths the positive-class probability.
type Stage struct {
	clf     Classifier
	sm      *smoother.Smoother
	scale   float32
	bufSize int
	log     *slog.Logger

	skipped atomic.Uint64
	dropped atomic.Uint64
}

// NewStage creates a classification stage.
func NewStage(clf Classifier, sm *smoother.Smoother, opts StageOptions) *Stage {
	if opts.Scale == 0 {
		opts.Scale = 1
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Stage{
		clf:     clf,
		sm:      sm,
		scale:   opts.Scale,
		bufSize: opts.BufferSize,
		log:     log.With("component", "classify"),
	}
}

// Process classifies one sample and returns the updated verdict.
func (s *Stage) Process(smp eeg.Sample) (Result, error) {
	if smp.Degraded {
		return Result{}, ErrDegraded
	}
	probs, err := s.clf.Predict(sample.Features(smp, s.scale))
	if err != nil {
		return Result{}, err
	}
	p, err := Positive(probs)
	if err != nil {
		return Result{}, err
	}
	v, err := s.sm.Observe(p)
	if err != nil {
		return Result{}, err
	}
	return Result{Timestamp: smp.Timestamp, Verdict: v}, nil
}

// Run consumes samples until in is closed, then closes the returned channel.
// Results are dropped when the consumer falls behind.
func (s *Stage) Run(in <-chan eeg.Sample) <-chan Result {
	out := make(chan Result, s.bufSize)

	go func() {
		defer close(out)

		for smp := range in {
			res, err := s.Process(smp)
			if err != nil {
				s.skipped.Add(1)
				if errors.Is(err, ErrDegraded) {
					s.log.Debug("skipping degraded sample")
				} else {
					s.log.Warn("classification failed", "error", err)
				}
				continue
			}

			select {
			case out <- res:
			default:
				s.dropped.Add(1)
				s.log.Warn("verdict channel full, dropping verdict")
			}
		}
	}()

	return out
}

// Skipped returns the number of samples that produced no verdict.
func (s *Stage) Skipped() uint64 { return s.skipped.Load() }

// Dropped returns the number of verdicts dropped on a full channel.
func (s *Stage) Dropped() uint64 { return s.dropped.Load() }
