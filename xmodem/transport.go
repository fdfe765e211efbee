package xmodem

import (
	"bufio"
	"errors"
	"io"
	"net"
	"os"
	"time"
)

// Transport is the byte channel a transfer runs over.
//
// Read must block for at most the transport's own timeout. A read that expires
// returns an error (for example [ErrTimeout] or os.ErrDeadlineExceeded) or zero
// bytes with a nil error; both are treated as retryable. io.EOF and closed-pipe
// errors end the transfer with [ErrIO].
//
// The transport is owned by the running transfer for its entire duration and is
// never used from more than one goroutine by the engine.
type Transport interface {
	io.Reader
	io.Writer

	// ClearInput discards inbound bytes that have not been read yet.
	ClearInput() error

	// Buffered returns the number of inbound bytes that can be read without blocking.
	Buffered() int
}

// Default ConnTransport timeouts.
const (
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
	DefaultDrainTimeout = 10 * time.Millisecond
)

// ConnTransport adapts a net.Conn (a TCP serial server, a net.Pipe, ...) to [Transport].
//
// This type is NOT goroutine-safe, consistent with the half-duplex protocol.
type ConnTransport struct {
	conn   net.Conn
	reader *bufio.Reader

	readTimeout  time.Duration
	writeTimeout time.Duration
	drainTimeout time.Duration
}

var _ Transport = (*ConnTransport)(nil)

// TransportOption is a functional option for configuring a ConnTransport.
type TransportOption func(*ConnTransport)

// WithReadTimeout sets the deadline applied to every read call.
func WithReadTimeout(d time.Duration) TransportOption {
	return func(t *ConnTransport) {
		if d > 0 {
			t.readTimeout = d
		}
	}
}

// WithWriteTimeout sets the deadline applied to every write call. Zero disables it.
func WithWriteTimeout(d time.Duration) TransportOption {
	return func(t *ConnTransport) {
		t.writeTimeout = d
	}
}

// WithDrainTimeout sets how long the line must stay silent for ClearInput to
// consider the inbound side empty.
func WithDrainTimeout(d time.Duration) TransportOption {
	return func(t *ConnTransport) {
		if d > 0 {
			t.drainTimeout = d
		}
	}
}

// NewConnTransport creates a Transport for the given connection.
func NewConnTransport(conn net.Conn, opts ...TransportOption) *ConnTransport {
	t := &ConnTransport{
		conn:         conn,
		reader:       bufio.NewReader(conn),
		readTimeout:  DefaultReadTimeout,
		writeTimeout: DefaultWriteTimeout,
		drainTimeout: DefaultDrainTimeout,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Read reads up to len(p) bytes, waiting at most the read timeout for the first one.
func (t *ConnTransport) Read(p []byte) (int, error) {
	if t.reader.Buffered() == 0 {
		if err := t.conn.SetReadDeadline(time.Now().Add(t.readTimeout)); err != nil {
			return 0, err
		}
	}

	return t.reader.Read(p)
}

// Write writes all of p to the connection.
func (t *ConnTransport) Write(p []byte) (int, error) {
	if t.writeTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
			return 0, err
		}
	}

	written := 0
	for written < len(p) {
		n, err := t.conn.Write(p[written:])
		written += n

		if err != nil {
			return written, err
		}
	}

	return written, nil
}

// ClearInput discards buffered bytes, then reads and discards until the line
// is silent for the drain timeout. A line that never goes silent is drained
// for at most the read timeout.
func (t *ConnTransport) ClearInput() error {
	t.discardBuffered()

	limit := time.Now().Add(t.readTimeout)
	buf := make([]byte, 256)
	for {
		deadline := time.Now().Add(t.drainTimeout)
		if deadline.After(limit) {
			deadline = limit
		}
		if err := t.conn.SetReadDeadline(deadline); err != nil {
			return err
		}

		_, err := t.reader.Read(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				t.discardBuffered()
				return nil // silent, or drained for as long as allowed
			}

			return err
		}
	}
}

func (t *ConnTransport) discardBuffered() {
	if n := t.reader.Buffered(); n > 0 {
		_, _ = t.reader.Discard(n)
	}
}

// Buffered returns the number of bytes already read from the connection but not
// yet consumed.
func (t *ConnTransport) Buffered() int {
	return t.reader.Buffered()
}

// Close closes the underlying connection.
func (t *ConnTransport) Close() error {
	return t.conn.Close()
}
