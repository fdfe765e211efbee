package xmodem

import (
	"bytes"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-xmodem/logger"
)

// fakeTransport is a scripted, single-goroutine Transport.
//
// Reads drain inbound first, then return queued readErrs, then ErrTimeout forever.
// Every write is recorded and, when respond is set, handed to it so the test can
// play the peer by pushing bytes back into inbound.
type fakeTransport struct {
	inbound  []byte
	readErrs []error
	writeErr error

	writes  [][]byte
	clears  int
	reads   int
	respond func(ft *fakeTransport, p []byte)
}

var _ Transport = (*fakeTransport)(nil)

func newFakeTransport(inbound ...byte) *fakeTransport {
	return &fakeTransport{inbound: inbound}
}

func (f *fakeTransport) Read(p []byte) (int, error) {
	f.reads++

	if len(f.inbound) > 0 {
		n := copy(p, f.inbound)
		f.inbound = f.inbound[n:]

		return n, nil
	}

	if len(f.readErrs) > 0 {
		err := f.readErrs[0]
		f.readErrs = f.readErrs[1:]

		return 0, err
	}

	return 0, ErrTimeout
}

func (f *fakeTransport) Write(p []byte) (int, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}

	cp := make([]byte, len(p))
	copy(cp, p)
	f.writes = append(f.writes, cp)

	if f.respond != nil {
		f.respond(f, cp)
	}

	return len(p), nil
}

func (f *fakeTransport) ClearInput() error {
	f.clears++
	f.inbound = nil

	return nil
}

func (f *fakeTransport) Buffered() int {
	return len(f.inbound)
}

func (f *fakeTransport) push(b ...byte) {
	f.inbound = append(f.inbound, b...)
}

// packets returns the multi-byte writes (data blocks).
func (f *fakeTransport) packets() [][]byte {
	var out [][]byte
	for _, w := range f.writes {
		if len(w) > 1 {
			out = append(out, w)
		}
	}

	return out
}

// controls returns the single-byte writes in order.
func (f *fakeTransport) controls() []byte {
	var out []byte
	for _, w := range f.writes {
		if len(w) == 1 {
			out = append(out, w[0])
		}
	}

	return out
}

// countWrites returns how many single-byte writes equal b.
func (f *fakeTransport) countWrites(b byte) int {
	return bytes.Count(f.controls(), []byte{b})
}

// ackAll plays a receiver that acknowledges every block and EOT.
func ackAll(ft *fakeTransport, _ []byte) {
	ft.push(ACK)
}

// replay plays a sender: every control byte written by the receiver (sync, ACK
// or NAK) is answered with the next frame, in order. An empty frame sends nothing.
func replay(frames ...[]byte) func(*fakeTransport, []byte) {
	next := 0

	return func(ft *fakeTransport, p []byte) {
		if len(p) != 1 || next >= len(frames) {
			return
		}

		ft.push(frames[next]...)
		next++
	}
}

// quietLogger returns a logger that discards everything.
func quietLogger() logger.Logger {
	return logger.NewSlogTo(io.Discard, logger.ErrorLevel, false)
}

// newTestConfig creates a Config with a discarding logger and a small retry limit.
func newTestConfig(t *testing.T, opts ...Option) *Config {
	t.Helper()

	defaults := []Option{
		WithRetryLimit(3),
		WithLogger(quietLogger()),
	}

	cfg, err := NewConfig(append(defaults, opts...)...)
	require.NoError(t, err)

	return cfg
}

// makePayload returns a block-sized payload filled with a recognizable pattern.
func makePayload(size int, seed byte) []byte {
	p := make([]byte, size)
	for i := range p {
		p[i] = seed + byte(i)
	}

	return p
}

// mustEncode encodes a block, failing the test on error.
func mustEncode(t *testing.T, seq byte, payload []byte, mode Mode) []byte {
	t.Helper()

	wire, err := Encode(seq, payload, mode)
	require.NoError(t, err)

	return wire
}

// newPipeTransports creates two ConnTransports over a net.Pipe and registers cleanup.
func newPipeTransports(t *testing.T, opts ...TransportOption) (*ConnTransport, *ConnTransport) {
	t.Helper()

	local, remote := net.Pipe()
	t.Cleanup(func() {
		_ = local.Close()
		_ = remote.Close()
	})

	return NewConnTransport(local, opts...), NewConnTransport(remote, opts...)
}
