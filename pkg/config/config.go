package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	SPI        SPIConfig        `yaml:"spi"`
	ADC        ADCConfig        `yaml:"adc"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Notify     NotifyConfig     `yaml:"notify"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Command    CommandConfig    `yaml:"command"`
	Record     RecordConfig     `yaml:"record"`
	Log        LogConfig        `yaml:"log"`
	Mock       MockConfig       `yaml:"mock"`
}

// SPIConfig describes the shared bus both converters sit on.
type SPIConfig struct {
	Primary    string        `yaml:"primary"`     // periph port name of the primary converter
	Secondary  string        `yaml:"secondary"`   // periph port name of the secondary converter
	ChipSelect string        `yaml:"chip_select"` // GPIO driving the secondary chip-select
	SpeedHz    int64         `yaml:"speed_hz"`
	Mode       int           `yaml:"mode"`
	Timeout    time.Duration `yaml:"timeout"` // per-transfer bound, 0 disables
}

// ADCConfig contains converter options.
type ADCConfig struct {
	StrictStatus bool          `yaml:"strict_status"` // degrade frames whose status word is not the streaming marker
	ResetDelay   time.Duration `yaml:"reset_delay"`
}

// SchedulerConfig contains acquisition loop parameters.
type SchedulerConfig struct {
	Interval      time.Duration `yaml:"interval"`
	Encoding      string        `yaml:"encoding"` // "binary" or "json"
	StopOnConnect bool          `yaml:"stop_on_connect"`
}

// NotifyConfig selects the outbound notification peripheral.
type NotifyConfig struct {
	Backend    string `yaml:"backend"` // "serial" or "memory"
	DeviceName string `yaml:"device_name"`
	Port       string `yaml:"port"`
	BaudRate   int    `yaml:"baud_rate"`
}

// ClassifierConfig contains the classifier and smoothing parameters.
type ClassifierConfig struct {
	Enabled       bool        `yaml:"enabled"`
	WindowSize    int         `yaml:"window_size"`
	Threshold     float64     `yaml:"threshold"`
	StableRepeats int         `yaml:"stable_repeats"`
	Weights       [][]float32 `yaml:"weights"` // 2 rows x 16 features
	Bias          []float32   `yaml:"bias"`    // 2 values
	Scale         float32     `yaml:"scale"`   // multiplied into each feature before inference
	// AverageSamples smooths each channel over N samples before inference, 0 or 1 disables.
	AverageSamples int `yaml:"average_samples"`
}

// CommandConfig maps stable verdicts to controller commands.
type CommandConfig struct {
	Initial    string `yaml:"initial"`
	OnPositive string `yaml:"on_positive"`
	OnNegative string `yaml:"on_negative"`
}

// RecordConfig contains InfluxDB recording parameters.
type RecordConfig struct {
	Enabled   bool   `yaml:"enabled"`
	URL       string `yaml:"url"`
	Token     string `yaml:"token"`
	Org       string `yaml:"org"`
	Bucket    string `yaml:"bucket"`
	Device    string `yaml:"device"`
	QueueSize int    `yaml:"queue_size"`
}

// LogConfig contains logging parameters.
type LogConfig struct {
	Level      string `yaml:"level"` // DEBUG, INFO, WARN, ERROR
	File       string `yaml:"file"`  // empty logs to stderr
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// MockConfig contains simulated converter configuration.
type MockConfig struct {
	Amplitude  float64       `yaml:"amplitude"`   // Signal amplitude (uV)
	Frequency  float64       `yaml:"frequency"`   // Signal frequency (Hz)
	NoiseLevel float64       `yaml:"noise_level"` // Noise amplitude (uV)
	SampleRate time.Duration `yaml:"sample_rate"` // Time advanced per frame
	FailEvery  int           `yaml:"fail_every"`  // Inject a transport fault every N reads, 0 disables
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		SPI: SPIConfig{
			Primary:    "SPI0.0",
			Secondary:  "SPI0.1",
			ChipSelect: "GPIO19",
			SpeedHz:    4_000_000,
			Mode:       1,
			Timeout:    100 * time.Millisecond,
		},
		ADC: ADCConfig{
			StrictStatus: true,
			ResetDelay:   100 * time.Millisecond,
		},
		Scheduler: SchedulerConfig{
			Interval:      200 * time.Millisecond,
			Encoding:      "binary",
			StopOnConnect: true,
		},
		Notify: NotifyConfig{
			Backend:    "serial",
			DeviceName: "EEGPi",
			Port:       "/dev/ttyS0",
			BaudRate:   9600,
		},
		Classifier: ClassifierConfig{
			Enabled:       false,
			WindowSize:    15,
			Threshold:     0.5,
			StableRepeats: 5,
			Scale:         1,
		},
		Command: CommandConfig{
			Initial:    "freeze",
			OnPositive: "freeze",
			OnNegative: "follow",
		},
		Record: RecordConfig{
			Enabled:   false,
			URL:       "http://localhost:8086",
			Org:       "eeg",
			Bucket:    "eeg",
			Device:    "EEGPi",
			QueueSize: 256,
		},
		Log: LogConfig{
			Level:      "INFO",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Mock: MockConfig{
			Amplitude:  50.0,
			Frequency:  10.0, // alpha band
			NoiseLevel: 5.0,
			SampleRate: 4 * time.Millisecond, // 250 SPS
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, return defaults
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Ensure minimum required fields are set (use defaults if missing)
	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks configuration correctness. It does not mutate the configuration.
func (c *Config) Validate() error {
	var errs []error

	if c.Scheduler.Interval <= 0 {
		errs = append(errs, errors.New("scheduler.interval must be > 0"))
	}
	switch c.Scheduler.Encoding {
	case "binary", "json":
	default:
		errs = append(errs, fmt.Errorf("scheduler.encoding: unknown encoding %q", c.Scheduler.Encoding))
	}
	switch c.Notify.Backend {
	case "serial", "memory":
	default:
		errs = append(errs, fmt.Errorf("notify.backend: unknown backend %q", c.Notify.Backend))
	}
	if c.SPI.Mode < 0 || c.SPI.Mode > 3 {
		errs = append(errs, fmt.Errorf("spi.mode must be 0..3, got %d", c.SPI.Mode))
	}
	if c.Classifier.WindowSize <= 0 {
		errs = append(errs, errors.New("classifier.window_size must be > 0"))
	}
	if c.Classifier.Threshold <= 0 || c.Classifier.Threshold > 1 {
		errs = append(errs, fmt.Errorf("classifier.threshold must be within (0,1], got %v", c.Classifier.Threshold))
	}
	if len(c.Classifier.Weights) != 0 && len(c.Classifier.Weights) != 2 {
		errs = append(errs, fmt.Errorf("classifier.weights: expected 2 rows, got %d", len(c.Classifier.Weights)))
	}
	for i, row := range c.Classifier.Weights {
		if len(row) != 16 {
			errs = append(errs, fmt.Errorf("classifier.weights[%d]: expected 16 values, got %d", i, len(row)))
		}
	}
	if c.Classifier.AverageSamples < 0 {
		errs = append(errs, fmt.Errorf("classifier.average_samples must be >= 0, got %d", c.Classifier.AverageSamples))
	}
	if len(c.Classifier.Bias) != 0 && len(c.Classifier.Bias) != 2 {
		errs = append(errs, fmt.Errorf("classifier.bias: expected 2 values, got %d", len(c.Classifier.Bias)))
	}
	if c.Record.Enabled && (c.Record.URL == "" || c.Record.Bucket == "") {
		errs = append(errs, errors.New("record: url and bucket required when enabled"))
	}

	return errors.Join(errs...)
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.SPI.Primary == "" {
		c.SPI.Primary = def.SPI.Primary
	}
	if c.SPI.Secondary == "" {
		c.SPI.Secondary = def.SPI.Secondary
	}
	if c.SPI.ChipSelect == "" {
		c.SPI.ChipSelect = def.SPI.ChipSelect
	}
	if c.SPI.SpeedHz == 0 {
		c.SPI.SpeedHz = def.SPI.SpeedHz
	}

	if c.ADC.ResetDelay == 0 {
		c.ADC.ResetDelay = def.ADC.ResetDelay
	}

	if c.Scheduler.Interval == 0 {
		c.Scheduler.Interval = def.Scheduler.Interval
	}
	if c.Scheduler.Encoding == "" {
		c.Scheduler.Encoding = def.Scheduler.Encoding
	}

	if c.Notify.Backend == "" {
		c.Notify.Backend = def.Notify.Backend
	}
	if c.Notify.DeviceName == "" {
		c.Notify.DeviceName = def.Notify.DeviceName
	}
	if c.Notify.Port == "" {
		c.Notify.Port = def.Notify.Port
	}
	if c.Notify.BaudRate == 0 {
		c.Notify.BaudRate = def.Notify.BaudRate
	}

	if c.Classifier.WindowSize == 0 {
		c.Classifier.WindowSize = def.Classifier.WindowSize
	}
	if c.Classifier.StableRepeats == 0 {
		c.Classifier.StableRepeats = def.Classifier.StableRepeats
	}
	if c.Classifier.Scale == 0 {
		c.Classifier.Scale = def.Classifier.Scale
	}

	if c.Command.Initial == "" {
		c.Command.Initial = def.Command.Initial
	}
	if c.Command.OnPositive == "" {
		c.Command.OnPositive = def.Command.OnPositive
	}
	if c.Command.OnNegative == "" {
		c.Command.OnNegative = def.Command.OnNegative
	}

	if c.Record.Device == "" {
		c.Record.Device = def.Record.Device
	}
	if c.Record.QueueSize == 0 {
		c.Record.QueueSize = def.Record.QueueSize
	}

	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}

	if c.Mock.SampleRate == 0 {
		c.Mock.SampleRate = def.Mock.SampleRate
	}
	if c.Mock.Frequency == 0 {
		c.Mock.Frequency = def.Mock.Frequency
	}
	if c.Mock.Amplitude == 0 {
		c.Mock.Amplitude = def.Mock.Amplitude
	}
}
