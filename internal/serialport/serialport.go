// Package serialport adapts a local serial device to xmodem.Transport.
package serialport

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/arloliu/go-xmodem/xmodem"
)

// Default line settings.
const (
	DefaultBaudRate    = 115200
	DefaultDataBits    = 8
	DefaultReadTimeout = time.Second
)

// Config describes how to open a serial device.
type Config struct {
	Name        string
	BaudRate    int
	DataBits    int
	Parity      string // none, odd, even, mark, space
	StopBits    string // 1, 1.5, 2
	ReadTimeout time.Duration
}

// device is the subset of serial.Port the transport needs.
type device interface {
	io.ReadWriteCloser
	ResetInputBuffer() error
}

// Port is an xmodem.Transport over a serial device.
//
// Reads return zero bytes with a nil error when the read timeout expires,
// which the engine counts as a timeout. The driver's receive queue length is
// not observable, so Buffered always reports zero.
type Port struct {
	name string
	dev  device
}

var _ xmodem.Transport = (*Port)(nil)

// List returns the names of the serial devices present on the system.
func List() ([]string, error) {
	return serial.GetPortsList()
}

// Open opens and configures the serial device described by cfg.
func Open(cfg Config) (*Port, error) {
	mode, err := cfg.mode()
	if err != nil {
		return nil, err
	}

	p, err := serial.Open(cfg.Name, mode)
	if err != nil {
		return nil, fmt.Errorf("serialport: open %s: %w", cfg.Name, err)
	}

	timeout := cfg.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	if err := p.SetReadTimeout(timeout); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("serialport: set read timeout on %s: %w", cfg.Name, err)
	}

	return &Port{name: cfg.Name, dev: p}, nil
}

// Name returns the device name.
func (p *Port) Name() string { return p.name }

func (p *Port) Read(b []byte) (int, error) { return p.dev.Read(b) }

func (p *Port) Write(b []byte) (int, error) { return p.dev.Write(b) }

// ClearInput discards the driver's receive queue.
func (p *Port) ClearInput() error { return p.dev.ResetInputBuffer() }

// Buffered always returns 0; see Port.
func (p *Port) Buffered() int { return 0 }

// Close closes the device.
func (p *Port) Close() error { return p.dev.Close() }

func (cfg Config) mode() (*serial.Mode, error) {
	if cfg.Name == "" {
		return nil, errors.New("serialport: device name is empty")
	}

	baud := cfg.BaudRate
	if baud == 0 {
		baud = DefaultBaudRate
	}
	if baud < 0 {
		return nil, fmt.Errorf("serialport: invalid baud rate %d", baud)
	}

	dataBits := cfg.DataBits
	if dataBits == 0 {
		dataBits = DefaultDataBits
	}
	if dataBits < 5 || dataBits > 8 {
		return nil, fmt.Errorf("serialport: data bits %d out of range [5, 8]", dataBits)
	}

	parity, err := parseParity(cfg.Parity)
	if err != nil {
		return nil, err
	}

	stopBits, err := parseStopBits(cfg.StopBits)
	if err != nil {
		return nil, err
	}

	return &serial.Mode{
		BaudRate: baud,
		DataBits: dataBits,
		Parity:   parity,
		StopBits: stopBits,
	}, nil
}

func parseParity(s string) (serial.Parity, error) {
	switch strings.ToLower(s) {
	case "", "none", "n":
		return serial.NoParity, nil
	case "odd", "o":
		return serial.OddParity, nil
	case "even", "e":
		return serial.EvenParity, nil
	case "mark", "m":
		return serial.MarkParity, nil
	case "space", "s":
		return serial.SpaceParity, nil
	default:
		return serial.NoParity, fmt.Errorf("serialport: unknown parity %q", s)
	}
}

func parseStopBits(s string) (serial.StopBits, error) {
	switch s {
	case "", "1":
		return serial.OneStopBit, nil
	case "1.5":
		return serial.OnePointFiveStopBits, nil
	case "2":
		return serial.TwoStopBits, nil
	default:
		return serial.OneStopBit, fmt.Errorf("serialport: unknown stop bits %q", s)
	}
}
