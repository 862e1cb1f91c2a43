// Package record stores samples and verdicts in InfluxDB.
package record

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/itohio/goeeg/pkg/config"
	"github.com/itohio/goeeg/pkg/eeg"
	"github.com/itohio/goeeg/pkg/smoother"
)

const (
	// DefaultQueueSize is the number of points buffered before dropping.
	DefaultQueueSize = 256
	// DefaultWriteTimeout bounds a single write.
	DefaultWriteTimeout = 5 * time.Second

	MeasurementSample  = "eeg"
	MeasurementVerdict = "verdict"
)

// PointWriter writes points synchronously. api.WriteAPIBlocking satisfies it.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Options configures a Recorder.
type Options struct {
	Device       string
	QueueSize    int
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// Stats are cumulative recorder counters.
type Stats struct {
	Written uint64
	Failed  uint64
	Dropped uint64
}

// Recorder queues points and writes them from a single goroutine.
type Recorder struct {
	w       PointWriter
	device  string
	timeout time.Duration
	log     *slog.Logger
	closer  func()

	mu     sync.RWMutex
	closed bool
	queue  chan *write.Point
	done   chan struct{}

	written atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

// New creates a recorder writing through w.
func New(w PointWriter, opts Options) *Recorder {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	r := &Recorder{
		w:       w,
		device:  opts.Device,
		timeout: opts.WriteTimeout,
		log:     log.With("component", "record"),
		queue:   make(chan *write.Point, opts.QueueSize),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// NewInflux connects a recorder to the InfluxDB server in cfg.
func NewInflux(cfg config.RecordConfig, log *slog.Logger) (*Recorder, error) {
	if cfg.URL == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("record: url and bucket are required")
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	r := New(client.WriteAPIBlocking(cfg.Org, cfg.Bucket), Options{
		Device:    cfg.Device,
		QueueSize: cfg.QueueSize,
		Logger:    log,
	})
	r.closer = client.Close
	r.log.Info("recording enabled", "url", cfg.URL, "org", cfg.Org, "bucket", cfg.Bucket)
	return r, nil
}

// Sample queues one sample as measurement "eeg" with fields ch01..ch16.
func (r *Recorder) Sample(s eeg.Sample) {
	fields := make(map[string]interface{}, eeg.Channels+1)
	for i, v := range s.Channels {
		fields[fmt.Sprintf("ch%02d", i+1)] = v
	}
	fields["degraded"] = s.Degraded
	r.enqueue(influxdb2.NewPoint(MeasurementSample, r.tags(), fields, s.Timestamp))
}

// Verdict queues one smoother verdict.
func (r *Recorder) Verdict(ts time.Time, v smoother.Verdict) {
	fields := map[string]interface{}{
		"probability": v.Probability,
		"average":     v.Average,
		"decision":    v.Decision,
		"final":       v.Final,
		"confidence":  v.Confidence,
		"repeats":     v.Repeats,
		"stable":      v.Stable,
	}
	r.enqueue(influxdb2.NewPoint(MeasurementVerdict, r.tags(), fields, ts))
}

// Stats returns a snapshot of the counters.
func (r *Recorder) Stats() Stats {
	return Stats{
		Written: r.written.Load(),
		Failed:  r.failed.Load(),
		Dropped: r.dropped.Load(),
	}
}

// Close flushes queued points and releases the client. Safe to call repeatedly.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	<-r.done
	if r.closer != nil {
		r.closer()
	}
	return nil
}

func (r *Recorder) tags() map[string]string {
	if r.device == "" {
		return nil
	}
	return map[string]string{"device": r.device}
}

func (r *Recorder) enqueue(p *write.Point) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.dropped.Add(1)
		return
	}
	select {
	case r.queue <- p:
	default:
		r.dropped.Add(1)
		r.log.Warn("record queue full, dropping point", "measurement", p.Name())
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for p := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		err := r.w.WritePoint(ctx, p)
		cancel()
		if err != nil {
			r.failed.Add(1)
			r.log.Warn("failed to write point", "measurement", p.Name(), "error", err)
			continue
		}
		r.written.Add(1)
	}
}
