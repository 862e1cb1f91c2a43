package notify

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePort feeds module output from a pipe and records writes.
type fakePort struct {
	*io.PipeReader
	out *io.PipeWriter

	mu       sync.Mutex
	written  [][]byte
	failNext error
}

func newFakePort() *fakePort {
	r, w := io.Pipe()
	return &fakePort{PipeReader: r, out: w}
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failNext != nil {
		err := p.failNext
		p.failNext = nil
		return 0, err
	}
	p.written = append(p.written, append([]byte(nil), b...))
	return len(b), nil
}

func (p *fakePort) Writes() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.written...)
}

func (p *fakePort) emit(t *testing.T, s string) {
	t.Helper()
	_, err := p.out.Write([]byte(s))
	require.NoError(t, err)
}

func TestSplitLinkEvents(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{name: "single connect", input: []string{"OK+CONN"}, want: []string{"OK+CONN"}},
		{name: "connect then lost", input: []string{"OK+CONNOK+LOST"}, want: []string{"OK+CONN", "OK+LOST"}},
		{name: "noise around events", input: []string{"xxOK+SetOK+CONN\r\nabcOK+LOST"}, want: []string{"OK+CONN", "OK+LOST"}},
		{name: "event split across reads", input: []string{"garbageOK+C", "ONN"}, want: []string{"OK+CONN"}},
		{name: "no events", input: []string{"OK+Set:EEGPi"}, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, w := io.Pipe()
			go func() {
				for _, chunk := range tt.input {
					_, _ = w.Write([]byte(chunk))
				}
				w.Close()
			}()

			scanner := bufio.NewScanner(r)
			scanner.Split(splitLinkEvents)
			var got []string
			for scanner.Scan() {
				got = append(got, scanner.Text())
			}
			require.NoError(t, scanner.Err())
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSerial_AdvertiseWritesName(t *testing.T) {
	port := newFakePort()
	s := NewSerialWithPort(port, "EEGPi", nil)
	defer s.Close()

	require.NoError(t, s.PublishAdvertisement())
	assert.Equal(t, [][]byte{[]byte("AT+NAMEEEGPi")}, port.Writes())
}

func TestSerial_NotifyOnlyWhileConnected(t *testing.T) {
	port := newFakePort()
	s := NewSerialWithPort(port, "EEGPi", nil)
	defer s.Close()

	var connects, disconnects atomic.Int32
	s.OnConnect(func() { connects.Add(1) })
	s.OnDisconnect(func() { disconnects.Add(1) })

	payload := bytes.Repeat([]byte{0xAB}, 48)
	require.NoError(t, s.SetValue(payload))
	require.NoError(t, s.Notify())
	assert.Empty(t, port.Writes(), "nothing is sent in command mode")

	port.emit(t, "OK+CONN")
	require.Eventually(t, s.IsConnected, time.Second, time.Millisecond)
	assert.Equal(t, int32(1), connects.Load())

	require.NoError(t, s.Notify())
	assert.Equal(t, [][]byte{payload}, port.Writes())

	port.emit(t, "OK+LOST")
	require.Eventually(t, func() bool { return !s.IsConnected() }, time.Second, time.Millisecond)
	assert.Equal(t, int32(1), disconnects.Load())
}

func TestSerial_NotifyError(t *testing.T) {
	port := newFakePort()
	s := NewSerialWithPort(port, "EEGPi", nil)
	defer s.Close()

	port.emit(t, "OK+CONN")
	require.Eventually(t, s.IsConnected, time.Second, time.Millisecond)

	port.mu.Lock()
	port.failNext = errors.New("uart overrun")
	port.mu.Unlock()

	require.NoError(t, s.SetValue([]byte{1, 2, 3}))
	err := s.Notify()
	assert.ErrorIs(t, err, ErrNotify)
	assert.Contains(t, err.Error(), "uart overrun")
}

func TestSerial_CloseIdempotent(t *testing.T) {
	port := newFakePort()
	s := NewSerialWithPort(port, "EEGPi", nil)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.SetValue([]byte{1}), ErrNotify)
	assert.Error(t, s.PublishAdvertisement())
}

func TestNewSerial_Defaults(t *testing.T) {
	s := NewSerial("/dev/null-port", 0, "EEGPi", nil)
	assert.Equal(t, DefaultBaudRate, s.baudRate)
	assert.NoError(t, s.Close(), "closing an unopened port is a no-op")
}

func TestMemory(t *testing.T) {
	m := NewMemory("EEGPi", nil)

	var events []string
	m.OnConnect(func() { events = append(events, "connect") })
	m.OnDisconnect(func() { events = append(events, "disconnect") })

	require.NoError(t, m.PublishAdvertisement())
	assert.True(t, m.Advertised())

	require.NoError(t, m.SetValue([]byte("abc")))
	require.NoError(t, m.Notify())
	require.NoError(t, m.Notify())
	assert.Equal(t, []byte("abc"), m.Value())
	assert.Equal(t, 2, m.Notifications())

	m.Connect()
	m.Connect()
	m.Disconnect()
	assert.Equal(t, []string{"connect", "disconnect"}, events)

	require.NoError(t, m.Close())
	assert.ErrorIs(t, m.Notify(), ErrNotify)
	assert.True(t, strings.Contains(m.SetValue(nil).Error(), "closed"))
}
