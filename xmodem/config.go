package xmodem

import (
	"errors"
	"fmt"

	"github.com/arloliu/go-xmodem/logger"
)

// Default engine settings.
const (
	DefaultRetryLimit = 16 // max failed attempts per phase
	DefaultPadByte    = SUB
	DefaultBlockSize  = BlockSize128
	DefaultMode       = ModeCRC16

	MinRetryLimit = 1
	MaxRetryLimit = 255
)

// Config holds the settings shared by the sender and receiver engines.
// A Config is immutable once built and may be reused for any number of transfers.
type Config struct {
	// retryLimit is the number of failed attempts tolerated per phase.
	retryLimit int

	// padByte fills a short final block up to the block size.
	padByte byte

	// mode is the error-detection scheme the receiver requests.
	// The sender ignores it and follows the receiver's handshake.
	mode Mode

	// blockSize is the payload size used by the sender (128 or 1024).
	blockSize int

	// duplicateDetection makes the receiver ACK and discard a repeated block
	// carrying the previous sequence number.
	duplicateDetection bool

	// cancelOnFailure makes either role emit CAN CAN on a terminal failure.
	cancelOnFailure bool

	logger   logger.Logger
	metrics  *TransferMetrics
	progress ProgressFunc
}

// NewConfig creates an engine configuration.
// opts are functional options applied in order; see With* functions.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		retryLimit: DefaultRetryLimit,
		padByte:    DefaultPadByte,
		mode:       DefaultMode,
		blockSize:  DefaultBlockSize,
		logger:     logger.GetLogger(),
		metrics:    &TransferMetrics{},
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// --- Getters ---

// RetryLimit returns the number of failed attempts tolerated per phase.
func (cfg *Config) RetryLimit() int { return cfg.retryLimit }

// PadByte returns the byte used to pad a short final block.
func (cfg *Config) PadByte() byte { return cfg.padByte }

// Mode returns the error-detection mode requested by a receiver.
func (cfg *Config) Mode() Mode { return cfg.mode }

// BlockSize returns the payload size used by a sender.
func (cfg *Config) BlockSize() int { return cfg.blockSize }

// DuplicateDetection returns whether the receiver tolerates repeated blocks.
func (cfg *Config) DuplicateDetection() bool { return cfg.duplicateDetection }

// CancelOnFailure returns whether terminal failures are signalled to the peer with CAN.
func (cfg *Config) CancelOnFailure() bool { return cfg.cancelOnFailure }

// GetLogger returns the configured logger.
func (cfg *Config) GetLogger() logger.Logger { return cfg.logger }

// Metrics returns the metrics collector updated by every transfer using this Config.
func (cfg *Config) Metrics() *TransferMetrics { return cfg.metrics }

// --- Option ---

// Option is a functional option for configuring a Config.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithRetryLimit sets the number of failed attempts tolerated per phase.
// Must be in [MinRetryLimit, MaxRetryLimit].
func WithRetryLimit(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < MinRetryLimit || n > MaxRetryLimit {
			return fmt.Errorf("xmodem: retry limit %d out of range [%d, %d]", n, MinRetryLimit, MaxRetryLimit)
		}
		cfg.retryLimit = n

		return nil
	})
}

// WithPadByte sets the byte used to pad a short final block. Defaults to SUB (0x1A).
func WithPadByte(b byte) Option {
	return optFunc(func(cfg *Config) error {
		cfg.padByte = b
		return nil
	})
}

// WithMode sets the error-detection mode a receiver requests in its handshake.
func WithMode(m Mode) Option {
	return optFunc(func(cfg *Config) error {
		if !m.valid() {
			return fmt.Errorf("%w: %d", ErrInvalidMode, m)
		}
		cfg.mode = m

		return nil
	})
}

// WithBlockSize sets the sender payload size: BlockSize128 (SOH blocks) or
// BlockSize1K (STX blocks, XMODEM-1K). The size is fixed for the whole session.
func WithBlockSize(size int) Option {
	return optFunc(func(cfg *Config) error {
		if _, err := headerFor(size); err != nil {
			return err
		}
		cfg.blockSize = size

		return nil
	})
}

// WithDuplicateDetection enables or disables acceptance of a repeated block.
//
// When enabled, a receiver that gets an intact block carrying the previous
// sequence number (the sender missed an ACK) answers ACK and discards it.
// Disabled by default: any unexpected sequence number is NAKed.
func WithDuplicateDetection(enabled bool) Option {
	return optFunc(func(cfg *Config) error {
		cfg.duplicateDetection = enabled
		return nil
	})
}

// WithCancelOnFailure makes the engine send CAN CAN to the peer when it gives up
// (retries exhausted or I/O failure). Disabled by default, in which case a
// receiver fails locally and the sender eventually times out.
func WithCancelOnFailure(enabled bool) Option {
	return optFunc(func(cfg *Config) error {
		cfg.cancelOnFailure = enabled
		return nil
	})
}

// WithLogger sets the logger for the engine.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("xmodem: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}

// WithMetrics sets the metrics collector. Sharing one collector between several
// Configs aggregates their transfers.
func WithMetrics(m *TransferMetrics) Option {
	return optFunc(func(cfg *Config) error {
		if m == nil {
			return errors.New("xmodem: metrics must not be nil")
		}
		cfg.metrics = m

		return nil
	})
}

// WithProgress sets a callback invoked synchronously after every completed block
// and once when the transfer succeeds.
func WithProgress(fn ProgressFunc) Option {
	return optFunc(func(cfg *Config) error {
		cfg.progress = fn
		return nil
	})
}
