package cli

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/arloliu/go-xmodem/internal/serialport"
	"github.com/arloliu/go-xmodem/xmodem"
)

const dialTimeout = 5 * time.Second

// line is a transport the command owns and must close.
type line interface {
	xmodem.Transport
	io.Closer
}

// target names one peer: a local serial device or a TCP serial server.
type target struct {
	name string
	tcp  bool
}

func (t target) String() string {
	if t.tcp {
		return "tcp://" + t.name
	}

	return t.name
}

// collectTargets merges the --port and --address values, keeping their order.
func collectTargets(ports, addresses []string) ([]target, error) {
	targets := make([]target, 0, len(ports)+len(addresses))
	seen := make(map[target]struct{}, cap(targets))

	add := func(t target) error {
		if t.name == "" {
			return errors.New("empty port or address")
		}
		if _, dup := seen[t]; dup {
			return fmt.Errorf("%s given more than once", t)
		}
		seen[t] = struct{}{}
		targets = append(targets, t)

		return nil
	}

	for _, p := range ports {
		if err := add(target{name: p}); err != nil {
			return nil, err
		}
	}
	for _, addr := range addresses {
		if err := add(target{name: addr, tcp: true}); err != nil {
			return nil, err
		}
	}

	if len(targets) == 0 {
		return nil, errors.New("at least one --port or --address is required")
	}

	return targets, nil
}

// withConfigured falls back to the port and address from the config file
// when neither flag was given.
func (a *app) withConfigured(ports, addresses []string) ([]string, []string) {
	if len(ports) > 0 || len(addresses) > 0 {
		return ports, addresses
	}

	if a.cfg.Port != "" {
		ports = []string{a.cfg.Port}
	}
	if a.cfg.Address != "" {
		addresses = []string{a.cfg.Address}
	}

	return ports, addresses
}

// open connects to t with the configured line settings.
func (a *app) open(t target) (line, error) {
	if t.tcp {
		conn, err := net.DialTimeout("tcp", t.name, dialTimeout)
		if err != nil {
			return nil, err
		}

		return xmodem.NewConnTransport(conn, xmodem.WithReadTimeout(a.cfg.ReadTimeout)), nil
	}

	port, err := serialport.Open(a.cfg.SerialConfig(t.name))
	if err != nil {
		return nil, err
	}

	return port, nil
}
