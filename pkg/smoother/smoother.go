// Package smoother turns noisy per-sample class probabilities into a stable verdict
// using a running probability average, a majority vote over recent decisions and
// a repeat counter acting as hysteresis.
package smoother

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

const (
	DefaultWindowSize    = 15
	DefaultThreshold     = 0.5
	DefaultStableRepeats = 5
)

// ErrEmptyWindow is returned when a verdict is requested before any observation.
var ErrEmptyWindow = errors.New("smoother: no observations")

// Config contains smoothing parameters. Zero values select the defaults.
type Config struct {
	WindowSize    int
	Threshold     float64
	StableRepeats int
}

// Verdict is the outcome of one observation.
type Verdict struct {
	Probability float64 // observed positive-class probability
	Average     float64 // mean of the probability window
	Decision    int     // 1 if Average > threshold
	Final       int     // majority of the decision window, ties resolve to 0
	Confidence  float64 // share of the decision window agreeing with Final
	Positives   int
	Window      int // decisions currently in the window
	Repeats     int // consecutive observations with the same Final
	Stable      bool
}

// Smoother keeps the probability and decision windows. Safe for concurrent use.
type Smoother struct {
	cfg Config

	mu        sync.Mutex
	probs     *ring[float64]
	decisions *ring[int]
	last      Verdict
	observed  bool
}

// New creates a smoother.
func New(cfg Config) *Smoother {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.StableRepeats <= 0 {
		cfg.StableRepeats = DefaultStableRepeats
	}
	return &Smoother{
		cfg:       cfg,
		probs:     newRing[float64](cfg.WindowSize),
		decisions: newRing[int](cfg.WindowSize),
	}
}

// Config returns the effective configuration.
func (s *Smoother) Config() Config {
	return s.cfg
}

// Observe pushes one probability and returns the updated verdict.
func (s *Smoother) Observe(p float64) (Verdict, error) {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return Verdict{}, fmt.Errorf("smoother: probability %v outside [0,1]", p)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.probs.push(p)
	avg := mean(s.probs)

	decision := 0
	if avg > s.cfg.Threshold {
		decision = 1
	}
	s.decisions.push(decision)

	n := s.decisions.len()
	positives := 0
	s.decisions.each(func(d int) { positives += d })
	final, confidence := majority(positives, n)

	repeats := 0
	if s.observed && final == s.last.Final {
		repeats = s.last.Repeats + 1
	}

	v := Verdict{
		Probability: p,
		Average:     avg,
		Decision:    decision,
		Final:       final,
		Confidence:  confidence,
		Positives:   positives,
		Window:      n,
		Repeats:     repeats,
		Stable:      repeats >= s.cfg.StableRepeats || n < s.cfg.WindowSize/2,
	}
	s.last = v
	s.observed = true
	return v, nil
}

// Current returns the last verdict.
func (s *Smoother) Current() (Verdict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.observed {
		return Verdict{}, ErrEmptyWindow
	}
	return s.last, nil
}

// Probabilities returns the probability window, oldest first.
func (s *Smoother) Probabilities() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.probs.values()
}

// Decisions returns the decision window, oldest first.
func (s *Smoother) Decisions() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decisions.values()
}

// Reset clears both windows and the hysteresis state.
func (s *Smoother) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probs.reset()
	s.decisions.reset()
	s.last = Verdict{}
	s.observed = false
}

func mean(r *ring[float64]) float64 {
	var sum float64
	r.each(func(v float64) { sum += v })
	return sum / float64(r.len())
}

// majority returns 1 only when positives strictly outnumber negatives.
func majority(positives, n int) (final int, confidence float64) {
	negatives := n - positives
	if positives > negatives {
		return 1, float64(positives) / float64(n)
	}
	return 0, float64(negatives) / float64(n)
}
