// Package config loads the xmodem CLI configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arloliu/go-xmodem/internal/serialport"
	"github.com/arloliu/go-xmodem/logger"
	"github.com/arloliu/go-xmodem/xmodem"
)

// Config holds the CLI settings. Command-line flags override file values.
type Config struct {
	// Serial line
	Port        string        `yaml:"port"`
	Baud        int           `yaml:"baud"`
	DataBits    int           `yaml:"data_bits"`
	Parity      string        `yaml:"parity"`
	StopBits    string        `yaml:"stop_bits"`
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// Address of a TCP serial server (host:port), used instead of Port.
	Address string `yaml:"address"`

	// Protocol
	RetryLimit         int    `yaml:"retry_limit"`
	Mode               string `yaml:"mode"`
	BlockSize          int    `yaml:"block_size"`
	PadByte            int    `yaml:"pad_byte"`
	DuplicateDetection bool   `yaml:"duplicate_detection"`
	CancelOnFailure    bool   `yaml:"cancel_on_failure"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // json, text, console; empty picks by ENV
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Baud:        115200,
		DataBits:    8,
		Parity:      "none",
		StopBits:    "1",
		ReadTimeout: xmodem.DefaultReadTimeout,
		RetryLimit:  xmodem.DefaultRetryLimit,
		Mode:        xmodem.DefaultMode.String(),
		BlockSize:   xmodem.DefaultBlockSize,
		PadByte:     int(xmodem.DefaultPadByte),
		LogLevel:    "info",
	}
}

// DefaultPath returns the default config file path: ~/.xmodem/config.yaml
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".xmodem", "config.yaml")
	}

	return filepath.Join(home, ".xmodem", "config.yaml")
}

// Load reads the configuration from the given YAML file path.
// If the file does not exist, it returns the defaults with no error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}

		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the protocol settings.
func (c *Config) Validate() error {
	if c.RetryLimit < xmodem.MinRetryLimit || c.RetryLimit > xmodem.MaxRetryLimit {
		return fmt.Errorf("retry_limit must be between %d and %d, got %d",
			xmodem.MinRetryLimit, xmodem.MaxRetryLimit, c.RetryLimit)
	}

	if _, err := xmodem.ParseMode(c.Mode); err != nil {
		return err
	}

	if c.BlockSize != xmodem.BlockSize128 && c.BlockSize != xmodem.BlockSize1K {
		return fmt.Errorf("%w: %d", xmodem.ErrInvalidBlockSize, c.BlockSize)
	}

	if c.PadByte < 0 || c.PadByte > 0xFF {
		return fmt.Errorf("pad_byte must fit in a byte, got %d", c.PadByte)
	}

	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}

	if _, err := logger.ParseFormat(c.LogFormat); err != nil {
		return err
	}

	return nil
}

// EngineOptions converts the protocol settings to xmodem options.
func (c *Config) EngineOptions() ([]xmodem.Option, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	mode, _ := xmodem.ParseMode(c.Mode)

	return []xmodem.Option{
		xmodem.WithRetryLimit(c.RetryLimit),
		xmodem.WithMode(mode),
		xmodem.WithBlockSize(c.BlockSize),
		xmodem.WithPadByte(byte(c.PadByte)),
		xmodem.WithDuplicateDetection(c.DuplicateDetection),
		xmodem.WithCancelOnFailure(c.CancelOnFailure),
	}, nil
}

// SerialConfig returns the serial line settings for the given device name.
func (c *Config) SerialConfig(name string) serialport.Config {
	return serialport.Config{
		Name:        name,
		BaudRate:    c.Baud,
		DataBits:    c.DataBits,
		Parity:      c.Parity,
		StopBits:    c.StopBits,
		ReadTimeout: c.ReadTimeout,
	}
}
