package bus

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
)

type fakeLine struct {
	mu      sync.Mutex
	level   gpio.Level
	history []gpio.Level
	failLow bool
}

func (l *fakeLine) Out(level gpio.Level) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level == gpio.Low && l.failLow {
		return errors.New("gpio fault")
	}
	l.level = level
	l.history = append(l.history, level)
	return nil
}

func (l *fakeLine) Level() gpio.Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// fakeConn captures the chip-select level seen during each transfer.
type fakeConn struct {
	line    *fakeLine
	seen    []gpio.Level
	err     error
	block   chan struct{}
	started chan struct{}
}

func (c *fakeConn) Tx(w, r []byte) error {
	if c.started != nil {
		close(c.started)
	}
	if c.block != nil {
		<-c.block
	}
	if c.line != nil {
		c.seen = append(c.seen, c.line.Level())
	}
	for i := range r {
		r[i] = 0xAA
	}
	return c.err
}

func TestNewMux_Deselects(t *testing.T) {
	line := &fakeLine{level: gpio.Low}
	_, err := NewMux(line)
	require.NoError(t, err)
	assert.Equal(t, gpio.High, line.Level())

	_, err = NewMux(nil)
	assert.Error(t, err)
}

func TestMux_WithSelected(t *testing.T) {
	line := &fakeLine{}
	mux, err := NewMux(line)
	require.NoError(t, err)

	var during gpio.Level
	require.NoError(t, mux.WithSelected(func() error {
		during = line.Level()
		return nil
	}))
	assert.Equal(t, gpio.Low, during)
	assert.Equal(t, gpio.High, line.Level())
}

func TestMux_WithSelected_ReleasesOnError(t *testing.T) {
	line := &fakeLine{}
	mux, err := NewMux(line)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = mux.WithSelected(func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, gpio.High, line.Level())
}

func TestMux_WithSelected_ReleasesOnPanic(t *testing.T) {
	line := &fakeLine{}
	mux, err := NewMux(line)
	require.NoError(t, err)

	assert.Panics(t, func() {
		_ = mux.WithSelected(func() error { panic("driver") })
	})
	assert.Equal(t, gpio.High, line.Level())

	// lock must have been released too
	assert.NoError(t, mux.Exclusive(func() error { return nil }))
}

func TestMux_SelectFailure(t *testing.T) {
	line := &fakeLine{}
	mux, err := NewMux(line)
	require.NoError(t, err)
	line.failLow = true

	called := false
	err = mux.WithSelected(func() error { called = true; return nil })
	assert.Error(t, err)
	assert.False(t, called)
	assert.Equal(t, gpio.High, line.Level())
}

func TestDevice_SelectedVsDirect(t *testing.T) {
	line := &fakeLine{}
	mux, err := NewMux(line)
	require.NoError(t, err)

	primaryConn := &fakeConn{line: line}
	secondaryConn := &fakeConn{line: line}
	primary := Direct("primary", primaryConn, mux, 0)
	secondary := Selected("secondary", secondaryConn, mux, 0)

	r := make([]byte, 3)
	require.NoError(t, primary.Tx(make([]byte, 3), r))
	require.NoError(t, secondary.Tx(make([]byte, 3), r))
	require.NoError(t, primary.Tx(make([]byte, 3), r))

	assert.Equal(t, []gpio.Level{gpio.High, gpio.High}, primaryConn.seen)
	assert.Equal(t, []gpio.Level{gpio.Low}, secondaryConn.seen)
	assert.Equal(t, []byte{0xAA, 0xAA, 0xAA}, r)
	assert.Equal(t, gpio.High, line.Level())
	assert.Equal(t, "secondary", secondary.Name())
}

func TestDevice_Timeout(t *testing.T) {
	line := &fakeLine{}
	mux, err := NewMux(line)
	require.NoError(t, err)

	conn := &fakeConn{line: line, block: make(chan struct{})}
	dev := Selected("secondary", conn, mux, 20*time.Millisecond)

	err = dev.Tx(make([]byte, 1), make([]byte, 1))
	assert.ErrorIs(t, err, ErrTimeout)

	close(conn.block)
	// the stuck transfer finishes and releases the line and lock
	require.Eventually(t, func() bool {
		return mux.Exclusive(func() error { return nil }) == nil && line.Level() == gpio.High
	}, time.Second, 5*time.Millisecond)
}

func TestDevice_TimeoutFailsFastWhileOutstanding(t *testing.T) {
	mux, err := NewMux(&fakeLine{})
	require.NoError(t, err)

	conn := &countingConn{block: make(chan struct{})}
	dev := Direct("primary", conn, mux, 10*time.Millisecond)

	err = dev.Tx(make([]byte, 1), make([]byte, 1))
	require.ErrorIs(t, err, ErrTimeout)

	for range 5 {
		start := time.Now()
		err = dev.Tx(make([]byte, 1), make([]byte, 1))
		assert.ErrorIs(t, err, ErrTimeout)
		assert.Less(t, time.Since(start), 10*time.Millisecond)
	}
	assert.Equal(t, int32(1), conn.calls.Load(), "no transfer queued behind the stuck one")

	close(conn.block)
	require.Eventually(t, func() bool {
		return dev.Tx(make([]byte, 1), make([]byte, 1)) == nil
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), conn.calls.Load())
}

func TestDevice_PropagatesError(t *testing.T) {
	boom := errors.New("spi")
	dev := Direct("primary", &fakeConn{err: boom}, nil, 0)
	assert.ErrorIs(t, dev.Tx([]byte{1}, nil), boom)
}

// countingConn blocks until released and counts driver calls.
type countingConn struct {
	calls atomic.Int32
	block chan struct{}
}

func (c *countingConn) Tx(w, r []byte) error {
	c.calls.Add(1)
	<-c.block
	return nil
}

type countingCloser struct{ n int }

func (c *countingCloser) Close() error { c.n++; return nil }

func TestDevice_Close(t *testing.T) {
	c := &countingCloser{}
	dev := Direct("primary", &fakeConn{}, nil, 0).WithCloser(c)
	require.NoError(t, dev.Close())
	require.NoError(t, dev.Close())
	assert.Equal(t, 1, c.n)
}
