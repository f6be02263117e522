package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the config file name looked up in the working
// directory when no -config flag is given.
const DefaultConfigFile = "config.yml"

// Duration wraps time.Duration so that yaml values like "100ms" or "50us"
// decode directly.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// Defaults matching the IWRL6432BOOST demo firmware and the C232HM-DDHSL-0
// cable (FT232H). The busy pin is ADBUS4, the grey wire of the cable.
const (
	DefaultSPIDevice    = "ft232h"
	DefaultBusyPin      = "ft232h.D4"
	DefaultSPIFrequency = 30_000_000
	DefaultMaxChunkSize = 65024
)

// RadarConfig describes the dimensions of the radar cube as configured in
// the sensor firmware. The frame length on the wire is fully derived from
// these values, so they must match the MCU side exactly.
type RadarConfig struct {
	TxAntennas     int `yaml:"TxAntennas"`
	RxAntennas     int `yaml:"RxAntennas"`
	RangeBins      int `yaml:"RangeBins"`
	ChirpsPerFrame int `yaml:"ChirpsPerFrame"`
}

// SPIConfig describes the FTDI USB-SPI bridge connection.
type SPIConfig struct {
	// Device is the periph.io SPI port name (registry name, e.g. "ft232h",
	// or a device path like "/dev/spidev0.0").
	Device       string `yaml:"Device"`
	FrequencyHz  int64  `yaml:"FrequencyHz"`
	Mode         int    `yaml:"Mode"`
	MaxChunkSize int    `yaml:"MaxChunkSize"`
	// BusyPin is the periph.io GPIO pin name of the SPI_BUSY line
	// (DCA_LP_HOST_INTR_1 on the IWRL6432). Low means data ready.
	BusyPin string `yaml:"BusyPin"`
	// BusyPollInterval is the sleep between polls of the busy pin.
	BusyPollInterval Duration `yaml:"BusyPollInterval"`
}

// CaptureConfig controls the capture loop of cmd/mmwave-capture.
type CaptureConfig struct {
	// DatabasePath enables SQLite recording when non-empty.
	DatabasePath string `yaml:"DatabasePath"`
	// FrameLimit stops the capture after this many frames, 0 = unlimited.
	FrameLimit int `yaml:"FrameLimit"`
	// FramePeriod is the frame periodicity configured in the sensor.
	// Frames that take longer than this to transfer are counted as
	// overruns. 0 disables overrun accounting.
	FramePeriod Duration `yaml:"FramePeriod"`
}

// MonitorConfig controls the live TUI monitor.
type MonitorConfig struct {
	Enabled     bool     `yaml:"Enabled"`
	UpdateEvery Duration `yaml:"UpdateEvery"`
	HistorySize int      `yaml:"HistorySize"`
}

// LogConfig holds the logging setup.
type LogConfig struct {
	Level  string `yaml:"Level"`
	Format string `yaml:"Format"`
	File   string `yaml:"File"`
}

type Config struct {
	Radar   RadarConfig   `yaml:"Radar"`
	SPI     SPIConfig     `yaml:"SPI"`
	Capture CaptureConfig `yaml:"Capture"`
	Monitor MonitorConfig `yaml:"Monitor"`
	Logging LogConfig     `yaml:"Logging"`

	// Configfile remembers where this config was loaded from, for the
	// fsnotify watcher.
	Configfile string `yaml:"-"`
}

// NewDefaultConfig returns a config pre-filled with the package defaults.
// Radar dimensions have no sensible defaults and stay zero.
func NewDefaultConfig() *Config {
	return &Config{
		SPI: SPIConfig{
			Device:           DefaultSPIDevice,
			FrequencyHz:      DefaultSPIFrequency,
			Mode:             0,
			MaxChunkSize:     DefaultMaxChunkSize,
			BusyPin:          DefaultBusyPin,
			BusyPollInterval: Duration(50 * time.Microsecond),
		},
		Monitor: MonitorConfig{
			UpdateEvery: Duration(250 * time.Millisecond),
			HistorySize: 500,
		},
		Logging: LogConfig{
			Level:  "INFO",
			Format: "text",
		},
	}
}

// LoadConfig reads and validates the config file at cfile.
func LoadConfig(cfile string) (*Config, error) {
	f, err := os.Open(cfile)
	if err != nil {
		return nil, fmt.Errorf("can't open config file %s: %w", cfile, err)
	}
	defer f.Close()

	conf := NewDefaultConfig()
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(conf); err != nil {
		return nil, fmt.Errorf("can't decode config file %s: %w", cfile, err)
	}
	conf.Configfile = cfile

	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// Validate checks the config for consistency. The divisibility rules come
// from the SPI wire format: transactions move 32-bit words, and one cube
// sample (cmplx16ImRe_t) is 4 bytes.
func (c *Config) Validate() error {
	r := c.Radar
	if r.TxAntennas <= 0 || r.RxAntennas <= 0 || r.RangeBins <= 0 || r.ChirpsPerFrame <= 0 {
		return fmt.Errorf("radar dimensions must all be positive, got Tx=%d Rx=%d RangeBins=%d ChirpsPerFrame=%d",
			r.TxAntennas, r.RxAntennas, r.RangeBins, r.ChirpsPerFrame)
	}
	if r.ChirpsPerFrame%r.TxAntennas != 0 {
		return fmt.Errorf("ChirpsPerFrame (%d) must be divisible by TxAntennas (%d)", r.ChirpsPerFrame, r.TxAntennas)
	}
	if r.RangeBins%4 != 0 {
		return fmt.Errorf("RangeBins (%d) must be divisible by 4", r.RangeBins)
	}

	if c.SPI.Device == "" {
		return fmt.Errorf("SPI.Device must not be empty")
	}
	if c.SPI.FrequencyHz <= 0 {
		return fmt.Errorf("SPI.FrequencyHz must be positive, got %d", c.SPI.FrequencyHz)
	}
	if c.SPI.Mode < 0 || c.SPI.Mode > 3 {
		return fmt.Errorf("SPI.Mode must be 0..3, got %d", c.SPI.Mode)
	}
	if c.SPI.MaxChunkSize <= 0 || c.SPI.MaxChunkSize%4 != 0 {
		return fmt.Errorf("SPI.MaxChunkSize must be positive and divisible by 4, got %d", c.SPI.MaxChunkSize)
	}
	if c.SPI.BusyPin == "" {
		return fmt.Errorf("SPI.BusyPin must not be empty")
	}
	if c.SPI.BusyPollInterval < 0 {
		return fmt.Errorf("SPI.BusyPollInterval must not be negative")
	}

	if c.Capture.FrameLimit < 0 {
		return fmt.Errorf("Capture.FrameLimit must not be negative, got %d", c.Capture.FrameLimit)
	}
	if c.Capture.FramePeriod < 0 {
		return fmt.Errorf("Capture.FramePeriod must not be negative")
	}

	if c.Monitor.Enabled {
		if c.Monitor.UpdateEvery <= 0 {
			return fmt.Errorf("Monitor.UpdateEvery must be positive when the monitor is enabled")
		}
		if c.Monitor.HistorySize <= 0 {
			return fmt.Errorf("Monitor.HistorySize must be positive when the monitor is enabled")
		}
	}

	return nil
}
