package xmodem

import (
	"fmt"

	"github.com/arloliu/go-xmodem/logger"
)

// session holds the state shared by both roles for a single transfer.
// It is created at the start of Send or Receive and discarded when it returns.
type session struct {
	t       Transport
	cfg     *Config
	logger  logger.Logger
	metrics *TransferMetrics

	role    Role
	mode    Mode
	cancel  cancelDetector
	blocks  int
	bytes   int64
	retries int
}

func newSession(t Transport, cfg *Config, role Role) session {
	return session{
		t:       t,
		cfg:     cfg,
		logger:  cfg.logger.With("role", role.String()),
		metrics: cfg.metrics,
		role:    role,
	}
}

// --- Low-level I/O helpers ---

// readByte reads a single byte, bounded by the transport timeout.
func (s *session) readByte() (byte, error) {
	var buf [1]byte

	n, err := s.t.Read(buf[:])
	if n == 1 {
		return buf[0], nil
	}
	if err == nil {
		err = ErrTimeout
	}

	return 0, err
}

// readFull reads exactly len(buf) bytes. Every read call is bounded by the
// transport timeout; a read that returns nothing counts as a timeout.
func (s *session) readFull(buf []byte) error {
	for read := 0; read < len(buf); {
		n, err := s.t.Read(buf[read:])
		read += n

		if err != nil {
			return err
		}
		if n == 0 {
			return ErrTimeout
		}
	}

	return nil
}

// writeAll writes data, surfacing any failure to the caller.
func (s *session) writeAll(data []byte) error {
	for written := 0; written < len(data); {
		n, err := s.t.Write(data[written:])
		written += n

		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("xmodem: short write: %d of %d bytes", written, len(data))
		}
	}

	return nil
}

// writeControl sends a single control byte. Control bytes are best-effort: if
// the write fails the peer times out and the retry policy recovers.
func (s *session) writeControl(b byte) {
	if _, err := s.t.Write([]byte{b}); err != nil {
		s.logger.Debug("xmodem: failed to write control byte", "byte", fmt.Sprintf("0x%02X", b), "error", err)
	}
}

// clearInput discards stale inbound bytes: before a transmission attempt, or
// the remainder of a packet the receiver has given up on.
func (s *session) clearInput() {
	if err := s.t.ClearInput(); err != nil {
		s.logger.Debug("xmodem: failed to clear input", "error", err)
	}

	if n := s.t.Buffered(); n > 0 {
		s.logger.Debug("xmodem: stale input remains after clear", "bytes", n)
	}
}

// --- Retry / cancel bookkeeping ---

// retry records a failed attempt on counter c and reports whether c is exhausted.
func (s *session) retry(c *retryCounter, reason error) bool {
	s.retries++
	s.metrics.incBlockRetryCount()

	exhausted := c.fail()
	s.logger.Debug("xmodem: retry",
		"retry", c.count,
		"maxRetry", c.limit,
		"block", s.blocks+1,
		"error", reason,
	)

	return exhausted
}

// observeCancel feeds a received byte to the CAN detector and returns a
// cancellation error when it completes a CAN pair.
func (s *session) observeCancel(b byte) error {
	if !s.cancel.observe(b) {
		if b == CAN {
			s.logger.Debug("xmodem: received CAN, waiting for confirmation")
		}

		return nil
	}

	return fmt.Errorf("%w: received CAN CAN", ErrCancelled)
}

// --- Outcome reporting ---

func (s *session) reportProgress(done bool) {
	if s.cfg.progress == nil {
		return
	}

	s.cfg.progress(Progress{
		Role:    s.role,
		Mode:    s.mode,
		Blocks:  s.blocks,
		Bytes:   s.bytes,
		Retries: s.retries,
		Done:    done,
	})
}

func (s *session) succeed() {
	s.metrics.incTransferCount()
	s.reportProgress(true)
	s.logger.Info("xmodem: transfer complete",
		"mode", s.mode.String(),
		"blocks", s.blocks,
		"bytes", s.bytes,
		"retries", s.retries,
	)
}

// fail logs a terminal error, optionally signals the peer, and returns err.
func (s *session) fail(err error) error {
	s.metrics.incTransferErrCount()

	if isCancelled(err) {
		s.metrics.incCancelCount()
		s.logger.Warn("xmodem: transfer cancelled by peer", "blocks", s.blocks, "error", err)

		return err
	}

	s.logger.Error("xmodem: transfer failed", "blocks", s.blocks, "bytes", s.bytes, "error", err)

	if s.cfg.cancelOnFailure {
		s.writeControl(CAN)
		s.writeControl(CAN)
	}

	return err
}
