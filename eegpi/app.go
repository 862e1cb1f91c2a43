package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/itohio/goeeg/pkg/ads1299"
	"github.com/itohio/goeeg/pkg/bus"
	"github.com/itohio/goeeg/pkg/classify"
	"github.com/itohio/goeeg/pkg/command"
	"github.com/itohio/goeeg/pkg/config"
	"github.com/itohio/goeeg/pkg/eeg"
	"github.com/itohio/goeeg/pkg/notify"
	"github.com/itohio/goeeg/pkg/record"
	"github.com/itohio/goeeg/pkg/sample"
	"github.com/itohio/goeeg/pkg/scheduler"
	"github.com/itohio/goeeg/pkg/smoother"
)

// app holds the wired acquisition chain.
type app struct {
	cfg *config.Config
	log *slog.Logger

	reader *eeg.Reader
	periph notify.Peripheral
	sched  *scheduler.Scheduler
	ctrl   *command.Controller
	stage  *classify.Stage
	policy *command.Policy
	rec    *record.Recorder
}

// newApp opens and configures the converters, then builds the rest of the chain.
// Converter configuration failures are fatal.
func newApp(cfg *config.Config, mock bool, log *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}
	if err := a.build(mock); err != nil {
		a.release()
		return nil, err
	}
	return a, nil
}

func (a *app) build(mock bool) error {
	cfg, log := a.cfg, a.log

	var err error
	a.reader, err = newReader(cfg, mock, log)
	if err != nil {
		return err
	}
	if err := a.reader.Open(); err != nil {
		return fmt.Errorf("failed to configure converters: %w", err)
	}

	a.periph, err = newPeripheral(cfg.Notify, log)
	if err != nil {
		return err
	}

	enc, err := sample.EncoderByName(cfg.Scheduler.Encoding)
	if err != nil {
		return err
	}
	a.sched = scheduler.New(scheduler.Config{
		Interval: cfg.Scheduler.Interval,
		Encoder:  enc,
		Logger:   log,
	}, a.reader, a.periph)

	if cfg.Scheduler.StopOnConnect {
		a.periph.OnConnect(func() {
			log.Info("client connected, stopping acquisition")
			_ = a.sched.Stop()
		})
	}

	a.ctrl = command.NewController(cfg.Command.Initial)
	a.ctrl.OnChange(func(prev, next string) {
		log.Info("current command", "previous", prev, "command", next)
	})

	if cfg.Record.Enabled {
		a.rec, err = record.NewInflux(cfg.Record, log)
		if err != nil {
			return err
		}
		a.sched.OnSample(a.rec.Sample)
	}

	if cfg.Classifier.Enabled {
		clf, err := newClassifier(cfg.Classifier)
		if err != nil {
			return err
		}
		sm := smoother.New(smoother.Config{
			WindowSize:    cfg.Classifier.WindowSize,
			Threshold:     cfg.Classifier.Threshold,
			StableRepeats: cfg.Classifier.StableRepeats,
		})
		a.stage = classify.NewStage(clf, sm, classify.StageOptions{Scale: cfg.Classifier.Scale, Logger: log})
		a.policy = command.NewPolicy(a.ctrl, cfg.Command.OnPositive, cfg.Command.OnNegative, log)
	}

	return nil
}

// Run advertises, starts acquisition and blocks until ctx is cancelled or the
// scheduler stops on its own.
func (a *app) Run(ctx context.Context) error {
	defer a.release()

	if err := a.periph.PublishAdvertisement(); err != nil {
		_ = a.sched.Stop()
		return err
	}

	stopPipeline := a.startPipeline()
	if err := a.sched.Start(ctx); err != nil {
		stopPipeline()
		return err
	}

	select {
	case <-ctx.Done():
		a.log.Info("shutting down")
	case <-a.sched.Done():
		a.log.Info("acquisition stopped")
	}
	_ = a.sched.Stop()
	<-a.sched.Done()
	stopPipeline()

	st := a.sched.Stats()
	a.log.Info("acquisition summary",
		"ticks", st.Ticks,
		"failures", st.Failures,
		"notify_failures", st.NotifyFailures,
		"overruns", st.Overruns,
		"degraded", a.reader.Degraded(),
		"command", a.ctrl.Current(),
	)
	return nil
}

// startPipeline feeds scheduler samples to the classifier stage. The returned
// function closes the input and waits for the stage to drain; call it only when
// no tick is running.
func (a *app) startPipeline() func() {
	if a.stage == nil {
		return func() {}
	}

	samples := make(chan eeg.Sample, classify.DefaultBufferSize)
	a.sched.OnSample(func(s eeg.Sample) {
		select {
		case samples <- s:
		default:
			a.log.Debug("classifier busy, dropping sample")
		}
	})

	var in <-chan eeg.Sample = samples
	if n := a.cfg.Classifier.AverageSamples; n > 1 {
		in = sample.NewAveragingConverter(n, classify.DefaultBufferSize, a.log)(samples)
	}
	done := make(chan struct{})
	go a.consume(a.stage.Run(in), done)

	return func() {
		close(samples)
		<-done
	}
}

func (a *app) consume(results <-chan classify.Result, done chan<- struct{}) {
	defer close(done)
	for res := range results {
		a.policy.Apply(res.Verdict)
		if a.rec != nil {
			a.rec.Verdict(res.Timestamp, res.Verdict)
		}
	}
}

// release closes everything that was opened. Safe to call more than once.
func (a *app) release() {
	var errs []error
	if a.sched != nil {
		errs = append(errs, a.sched.Stop())
	} else if a.reader != nil {
		errs = append(errs, a.reader.Close())
	}
	if a.periph != nil {
		errs = append(errs, a.periph.Close())
	}
	if a.rec != nil {
		errs = append(errs, a.rec.Close())
	}
	if err := errors.Join(errs...); err != nil {
		a.log.Warn("error releasing resources", "error", err)
	}
}

func newReader(cfg *config.Config, mock bool, log *slog.Logger) (*eeg.Reader, error) {
	opts := eeg.ReaderOptions{
		Strict: cfg.ADC.StrictStatus,
		Init:   ads1299.InitOptions{ResetDelay: cfg.ADC.ResetDelay},
		Logger: log,
	}
	if mock {
		return eeg.NewReader(eeg.NewSimulator(&cfg.Mock, 0), eeg.NewSimulator(&cfg.Mock, math.Pi/2), opts), nil
	}

	primary, secondary, err := openConverters(cfg.SPI)
	if err != nil {
		return nil, err
	}
	return eeg.NewReader(primary, secondary, opts), nil
}

// openConverters opens both SPI ports and the secondary chip-select line.
func openConverters(c config.SPIConfig) (eeg.Device, eeg.Device, error) {
	if err := bus.Init(); err != nil {
		return nil, nil, err
	}
	cs, err := bus.OpenLine(c.ChipSelect)
	if err != nil {
		return nil, nil, err
	}
	mux, err := bus.NewMux(cs)
	if err != nil {
		return nil, nil, err
	}

	p0, err := bus.OpenSPI(c.Primary, c.SpeedHz, c.Mode)
	if err != nil {
		return nil, nil, err
	}
	p1, err := bus.OpenSPI(c.Secondary, c.SpeedHz, c.Mode)
	if err != nil {
		p0.Close()
		return nil, nil, err
	}

	primary := bus.Direct("primary", p0, mux, c.Timeout).WithCloser(p0)
	secondary := bus.Selected("secondary", p1, mux, c.Timeout).WithCloser(p1)
	return primary, secondary, nil
}

func newPeripheral(c config.NotifyConfig, log *slog.Logger) (notify.Peripheral, error) {
	switch c.Backend {
	case "memory":
		return notify.NewMemory(c.DeviceName, log), nil
	case "serial":
		s := notify.NewSerial(c.Port, c.BaudRate, c.DeviceName, log)
		if err := s.Open(); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown notify backend %q", c.Backend)
	}
}

func newClassifier(c config.ClassifierConfig) (classify.Classifier, error) {
	if len(c.Weights) == 0 {
		return nil, errors.New("classifier enabled without weights")
	}
	return classify.NewLinear(c.Weights, c.Bias)
}
