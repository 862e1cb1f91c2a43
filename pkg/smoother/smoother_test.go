package smoother

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func observeAll(t *testing.T, s *Smoother, probs ...float64) []Verdict {
	t.Helper()
	out := make([]Verdict, 0, len(probs))
	for _, p := range probs {
		v, err := s.Observe(p)
		require.NoError(t, err)
		out = append(out, v)
	}
	return out
}

func TestNew_Defaults(t *testing.T) {
	s := New(Config{})
	assert.Equal(t, Config{WindowSize: 15, Threshold: 0.5, StableRepeats: 5}, s.Config())
}

func TestObserve_RunningAverages(t *testing.T) {
	s := New(Config{WindowSize: 5, Threshold: 0.5})
	verdicts := observeAll(t, s, 0.9, 0.9, 0.9, 0.1, 0.1)

	wantAvg := []float64{0.9, 0.9, 0.9, 0.7, 0.58}
	for i, v := range verdicts {
		assert.InDelta(t, wantAvg[i], v.Average, 1e-9, "step %d", i)
		assert.Equal(t, 1, v.Decision, "step %d", i)
		assert.Equal(t, 1, v.Final, "step %d", i)
	}
	assert.Equal(t, []int{1, 1, 1, 1, 1}, s.Decisions())
	assert.Equal(t, 1.0, verdicts[4].Confidence)
}

func TestObserve_WindowEvictsOldest(t *testing.T) {
	s := New(Config{WindowSize: 3, Threshold: 0.5})
	verdicts := observeAll(t, s, 1, 1, 1, 0, 0, 0)

	assert.Equal(t, []float64{0, 0, 0}, s.Probabilities())
	assert.InDelta(t, 0.0, verdicts[5].Average, 1e-12)
	assert.Equal(t, 3, verdicts[5].Window)
	// decisions: 1,1,1,1(avg .67),0(avg .33),0
	assert.Equal(t, []int{1, 0, 0}, s.Decisions())
	assert.Equal(t, 0, verdicts[5].Final)
}

func TestObserve_TieResolvesToZero(t *testing.T) {
	s := New(Config{WindowSize: 4, Threshold: 0.5})
	verdicts := observeAll(t, s, 0.9, 0.0, 0.9, 0.0)

	require.Equal(t, []int{1, 0, 1, 0}, s.Decisions())
	last := verdicts[3]
	assert.Equal(t, 0, last.Final)
	assert.Equal(t, 0.5, last.Confidence)
	assert.Equal(t, 2, last.Positives)
}

func TestMajority(t *testing.T) {
	tests := []struct {
		positives, n int
		final        int
		confidence   float64
	}{
		{positives: 2, n: 4, final: 0, confidence: 0.5},
		{positives: 3, n: 4, final: 1, confidence: 0.75},
		{positives: 0, n: 1, final: 0, confidence: 1},
		{positives: 1, n: 1, final: 1, confidence: 1},
		{positives: 1, n: 3, final: 0, confidence: 2.0 / 3},
	}
	for _, tt := range tests {
		final, conf := majority(tt.positives, tt.n)
		assert.Equal(t, tt.final, final)
		assert.InDelta(t, tt.confidence, conf, 1e-12)
	}
}

func TestObserve_Hysteresis(t *testing.T) {
	s := New(Config{WindowSize: 1, Threshold: 0.5, StableRepeats: 5})
	verdicts := observeAll(t, s, 0.9, 0.9, 0.9, 0.9, 0.9, 0.9)

	for i, v := range verdicts[:5] {
		assert.Equal(t, i, v.Repeats)
		assert.False(t, v.Stable, "step %d", i)
		assert.Equal(t, 1, v.Final)
	}
	assert.Equal(t, 5, verdicts[5].Repeats)
	assert.True(t, verdicts[5].Stable)

	v, err := s.Observe(0.1)
	require.NoError(t, err)
	assert.Equal(t, 0, v.Final)
	assert.Equal(t, 0, v.Repeats)
	assert.False(t, v.Stable)
	assert.Equal(t, 1.0, v.Confidence, "tentative verdict stays available")
}

func TestObserve_EarlyStableBypass(t *testing.T) {
	s := New(Config{WindowSize: 10, Threshold: 0.5, StableRepeats: 5})
	verdicts := observeAll(t, s, 0.9, 0.1, 0.9, 0.1, 0.9, 0.1)

	// window below half capacity reports stable regardless of repeats
	for i := range 4 {
		assert.True(t, verdicts[i].Stable, "step %d", i)
	}
	assert.False(t, verdicts[5].Stable)
}

func TestObserve_RejectsInvalidProbability(t *testing.T) {
	s := New(Config{})
	for _, p := range []float64{-0.1, 1.1, math.NaN()} {
		_, err := s.Observe(p)
		assert.Error(t, err)
	}
	_, err := s.Current()
	assert.ErrorIs(t, err, ErrEmptyWindow)
}

func TestCurrentAndReset(t *testing.T) {
	s := New(Config{WindowSize: 4})
	_, err := s.Current()
	assert.ErrorIs(t, err, ErrEmptyWindow)

	want, err := s.Observe(0.8)
	require.NoError(t, err)
	got, err := s.Current()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	s.Reset()
	_, err = s.Current()
	assert.ErrorIs(t, err, ErrEmptyWindow)
	assert.Empty(t, s.Probabilities())
	assert.Empty(t, s.Decisions())
}

func TestRing(t *testing.T) {
	r := newRing[int](3)
	assert.Empty(t, r.values())
	for i := 1; i <= 5; i++ {
		r.push(i)
	}
	assert.Equal(t, []int{3, 4, 5}, r.values())
	assert.Equal(t, 3, r.len())
	r.reset()
	assert.Equal(t, 0, r.len())
}
