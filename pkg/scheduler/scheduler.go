// Package scheduler drives periodic acquisition: each tick reads one merged sample,
// encodes it and pushes it to a notification sink.
//
// Ticks never overlap. The next tick is armed one interval after the previous tick
// started; a tick that overruns its interval is followed immediately by the next one.
// Failures inside a tick are logged and counted but never stop the loop.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/itohio/goeeg/pkg/eeg"
	"github.com/itohio/goeeg/pkg/sample"
)

// DefaultInterval is used when Config.Interval is not positive.
const DefaultInterval = 200 * time.Millisecond

// State of the scheduler. Stopped is terminal.
type State int32

const (
	Idle State = iota
	Armed
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Source produces samples. Close releases the underlying devices.
type Source interface {
	ReadCycle() (eeg.Sample, error)
	Close() error
}

// Sink receives encoded samples.
type Sink interface {
	SetValue(payload []byte) error
	Notify() error
}

// Config contains scheduler parameters.
type Config struct {
	Interval time.Duration
	Encoder  sample.Encoder // nil selects the 48-byte binary format
	Logger   *slog.Logger
}

// Stats are cumulative tick counters.
type Stats struct {
	Ticks          uint64
	Failures       uint64 // reader errors and recovered panics
	NotifyFailures uint64 // encode and sink errors
	Overruns       uint64 // ticks that took longer than the interval
}

// Scheduler is the periodic acquisition loop.
type Scheduler struct {
	cfg    Config
	source Source
	sink   Sink
	log    *slog.Logger

	mu        sync.Mutex
	state     State
	cancel    context.CancelFunc
	observers []func(eeg.Sample)

	done      chan struct{}
	doneOnce  sync.Once
	closeOnce sync.Once
	closeErr  error

	ticks          atomic.Uint64
	failures       atomic.Uint64
	notifyFailures atomic.Uint64
	overruns       atomic.Uint64
}

// New creates an idle scheduler.
func New(cfg Config, source Source, sink Sink) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Encoder == nil {
		cfg.Encoder = sample.EncodeBinary
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		cfg:    cfg,
		source: source,
		sink:   sink,
		log:    log.With("component", "scheduler"),
		done:   make(chan struct{}),
	}
}

// OnSample registers a callback invoked after every successful read.
// Callbacks run on the tick goroutine and must not block.
func (s *Scheduler) OnSample(fn func(eeg.Sample)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Start arms the first tick. It is only valid from Idle.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Idle {
		return fmt.Errorf("scheduler: cannot start from state %s", s.state)
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.state = Armed
	go s.run(ctx)

	s.log.Info("scheduler started", "interval", s.cfg.Interval)
	return nil
}

// Stop cancels the pending tick and releases the source. It is safe to call from
// any goroutine, including observers and link callbacks, and any number of times.
// A tick in flight may finish or fail against the closed source.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	prev := s.state
	s.state = Stopped
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	if prev == Idle {
		s.doneOnce.Do(func() { close(s.done) })
	}
	s.closeOnce.Do(func() {
		s.closeErr = s.source.Close()
		if s.closeErr != nil {
			s.log.Error("failed to release source", "error", s.closeErr)
		}
		s.log.Info("scheduler stopped", "from", prev.String())
	})
	return s.closeErr
}

// State returns the current state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed when the loop has exited.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the loop has exited or ctx is cancelled.
func (s *Scheduler) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot of the tick counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Ticks:          s.ticks.Load(),
		Failures:       s.failures.Load(),
		NotifyFailures: s.notifyFailures.Load(),
		Overruns:       s.overruns.Load(),
	}
}

func (s *Scheduler) run(ctx context.Context) {
	defer func() {
		// parent context cancellation also ends in Stopped
		_ = s.Stop()
		s.doneOnce.Do(func() { close(s.done) })
	}()

	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if ctx.Err() != nil {
			return
		}

		started := time.Now()
		s.tick(ctx)

		next := s.cfg.Interval - time.Since(started)
		if next <= 0 {
			s.overruns.Add(1)
			next = 0
		}
		timer.Reset(next)
	}
}

// tick performs one read, encode and notify cycle.
func (s *Scheduler) tick(ctx context.Context) {
	n := s.ticks.Add(1)
	defer func() {
		if r := recover(); r != nil {
			s.failures.Add(1)
			s.log.Error("tick panicked", "tick", n, "panic", r)
		}
	}()

	smp, err := s.source.ReadCycle()
	if err != nil {
		if ctx.Err() != nil {
			s.log.Debug("read interrupted by stop", "tick", n, "error", err)
			return
		}
		s.failures.Add(1)
		s.log.Warn("tick failed", "tick", n, "error", err)
		return
	}

	if err := s.publish(smp); err != nil {
		s.notifyFailures.Add(1)
		s.log.Warn("notify failed", "tick", n, "error", err)
	}

	s.mu.Lock()
	observers := s.observers
	s.mu.Unlock()
	for _, fn := range observers {
		fn(smp)
	}
}

func (s *Scheduler) publish(smp eeg.Sample) error {
	payload, err := s.cfg.Encoder(smp)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if err := s.sink.SetValue(payload); err != nil {
		return err
	}
	return s.sink.Notify()
}
