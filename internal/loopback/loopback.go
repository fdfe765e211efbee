// Package loopback provides an in-memory serial line: two endpoints joined by
// buffered byte queues with timeout-bounded reads.
//
// Unlike net.Pipe, writes never block and unread bytes stay queued on the
// receiving side, the way they do in a UART input buffer, so ClearInput and
// Buffered behave as they would on a real port.
package loopback

import (
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-xmodem/internal/pool"
)

// DefaultTimeout is the read timeout used when New is given a non-positive value.
const DefaultTimeout = 500 * time.Millisecond

// NoiseFunc may rewrite bytes as they are written to the line.
// It receives a private copy and returns the bytes to deliver.
type NoiseFunc func(p []byte) []byte

// line is one direction of the link.
type line struct {
	mu     sync.Mutex
	buf    []byte
	closed bool

	// ready holds at most one wake-up token; readers re-check buf after every wake-up.
	ready chan struct{}
}

func newLine() *line {
	return &line{ready: make(chan struct{}, 1)}
}

func (l *line) signal() {
	select {
	case l.ready <- struct{}{}:
	default:
	}
}

func (l *line) put(p []byte) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return io.ErrClosedPipe
	}
	l.buf = append(l.buf, p...)
	l.mu.Unlock()

	l.signal()

	return nil
}

func (l *line) take(p []byte) (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := copy(p, l.buf)
	l.buf = l.buf[n:]

	return n, l.closed
}

func (l *line) reset() {
	l.mu.Lock()
	l.buf = nil
	l.mu.Unlock()
}

func (l *line) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.buf)
}

func (l *line) close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	l.signal()
}

// Endpoint is one end of the line. It satisfies xmodem.Transport.
//
// An Endpoint may be used by one reader and one writer goroutine at a time.
type Endpoint struct {
	rx      *line
	tx      *line
	timeout time.Duration

	noise atomic.Pointer[NoiseFunc]
}

// New creates a connected pair of endpoints with the given read timeout.
func New(timeout time.Duration) (*Endpoint, *Endpoint) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ab, ba := newLine(), newLine()

	return &Endpoint{rx: ba, tx: ab, timeout: timeout},
		&Endpoint{rx: ab, tx: ba, timeout: timeout}
}

// Read reads queued bytes, waiting up to the read timeout for the first one.
// It returns os.ErrDeadlineExceeded on timeout and io.EOF once the line is closed
// and drained.
func (e *Endpoint) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	timer := pool.GetTimer(e.timeout)
	defer pool.PutTimer(timer)

	for {
		n, closed := e.rx.take(p)
		if n > 0 {
			return n, nil
		}
		if closed {
			return 0, io.EOF
		}

		select {
		case <-e.rx.ready:
		case <-timer.C:
			return 0, os.ErrDeadlineExceeded
		}
	}
}

// Write queues p for the peer. It never blocks.
func (e *Endpoint) Write(p []byte) (int, error) {
	data := make([]byte, len(p))
	copy(data, p)

	if fn := e.noise.Load(); fn != nil {
		data = (*fn)(data)
	}

	if err := e.tx.put(data); err != nil {
		return 0, err
	}

	return len(p), nil
}

// ClearInput discards every byte queued for this endpoint.
func (e *Endpoint) ClearInput() error {
	e.rx.reset()
	return nil
}

// Buffered returns the number of bytes queued for this endpoint.
func (e *Endpoint) Buffered() int {
	return e.rx.len()
}

// SetNoise installs fn on this endpoint's outbound direction. A nil fn removes it.
func (e *Endpoint) SetNoise(fn NoiseFunc) {
	if fn == nil {
		e.noise.Store(nil)
		return
	}
	e.noise.Store(&fn)
}

// Close closes both directions. Pending bytes can still be read by the peer.
func (e *Endpoint) Close() error {
	e.tx.close()
	e.rx.close()

	return nil
}

// CorruptEvery returns a NoiseFunc that flips the bits of one byte in every n-th
// multi-byte write, leaving single control bytes intact. n <= 0 disables it.
func CorruptEvery(n int) NoiseFunc {
	var count atomic.Int64

	return func(p []byte) []byte {
		if n <= 0 || len(p) < 2 {
			return p
		}

		if count.Add(1)%int64(n) == 0 {
			p[len(p)/2] ^= 0xFF
		}

		return p
	}
}
