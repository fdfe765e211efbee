package xmodem

import (
	"errors"
	"fmt"
	"io"

	"github.com/arloliu/go-xmodem/internal/util"
)

// Sender transmits a byte source to an XMODEM receiver.
type Sender struct {
	t   Transport
	cfg *Config
}

// NewSender creates a Sender over t. A nil cfg uses the defaults.
func NewSender(t Transport, cfg *Config) *Sender {
	if cfg == nil {
		cfg, _ = NewConfig()
	}

	return &Sender{t: t, cfg: cfg}
}

// Send is a shortcut for NewSender with a Config built from opts.
func Send(t Transport, src io.Reader, opts ...Option) (int64, error) {
	cfg, err := NewConfig(opts...)
	if err != nil {
		return 0, err
	}

	return NewSender(t, cfg).Send(src)
}

// Send runs one complete transfer of src and returns the number of source bytes
// acknowledged by the receiver (padding excluded).
//
// The transfer proceeds through:
//
//  1. Handshake: wait for NAK (checksum) or 'C' (CRC-16) from the receiver.
//  2. Transmission: send src in fixed-size blocks, each resent until ACK'd.
//  3. End of transmission: send EOT until ACK'd.
//
// On failure the returned error wraps one of ErrSyncTimeout, ErrTransferAborted,
// ErrEOTTimeout, ErrCancelled or ErrIO, and the count reflects the bytes
// acknowledged before the failure.
func (s *Sender) Send(src io.Reader) (int64, error) {
	ss := &sendSession{session: newSession(s.t, s.cfg, RoleSender)}

	if err := ss.awaitHandshake(); err != nil {
		return 0, ss.fail(err)
	}

	if err := ss.transmit(src); err != nil {
		return ss.bytes, ss.fail(err)
	}

	if err := ss.awaitFinalAck(); err != nil {
		return ss.bytes, ss.fail(err)
	}

	ss.succeed()

	return ss.bytes, nil
}

// sendResult classifies the outcome of a single reply wait so the retry loop can
// decide whether to proceed, retry, or abort.
type sendResult int

const (
	sendOK    sendResult = iota // ACK received.
	sendRetry                   // Retryable failure (timeout, NAK, unexpected byte).
	sendAbort                   // Non-retryable failure (cancelled, line closed).
)

var errNAK = errors.New("xmodem: received NAK")

type sendSession struct {
	session

	seq byte
}

// awaitHandshake waits for the receiver to request a transfer mode.
//
//   - NAK selects checksum mode, 'C' selects CRC-16 mode.
//   - EOT from the receiver cancels the transfer.
//   - A first CAN is remembered, a second consecutive CAN cancels.
//   - Anything else, or a read timeout, consumes one retry.
func (s *sendSession) awaitHandshake() error {
	retry := newRetryCounter(s.cfg.retryLimit)

	for {
		b, err := s.readByte()
		if err != nil {
			if isFatal(err) {
				return fmt.Errorf("%w: waiting for handshake: %w", ErrIO, err)
			}
			if s.retry(&retry, err) {
				return fmt.Errorf("%w: waiting for handshake: %w", ErrSyncTimeout, err)
			}

			continue
		}

		if err := s.observeCancel(b); err != nil {
			return err
		}

		switch b {
		case NAK:
			s.mode = ModeChecksum
		case CRC:
			s.mode = ModeCRC16
		case EOT:
			return fmt.Errorf("%w: received EOT during handshake", ErrCancelled)
		case CAN:
			continue
		default:
			if s.retry(&retry, fmt.Errorf("xmodem: unexpected handshake byte 0x%02X", b)) {
				return fmt.Errorf("%w: last byte 0x%02X", ErrSyncTimeout, b)
			}

			continue
		}

		s.logger.Info("xmodem: handshake complete", "mode", s.mode.String(), "blockSize", s.cfg.blockSize)

		return nil
	}
}

// transmit sends src block by block until it is exhausted.
func (s *sendSession) transmit(src io.Reader) error {
	size := s.cfg.blockSize
	buf := make([]byte, size)
	s.seq = 1

	for {
		n, err := io.ReadFull(src, buf)
		switch {
		case errors.Is(err, io.EOF):
			return nil // end of input
		case errors.Is(err, io.ErrUnexpectedEOF):
			util.Fill(buf, n, s.cfg.padByte)
		case err != nil:
			return fmt.Errorf("%w: reading source: %w", ErrIO, err)
		}

		wire, err := Encode(s.seq, buf, s.mode)
		if err != nil {
			return err
		}

		if err := s.sendPacket(wire); err != nil {
			return err
		}

		s.blocks++
		s.bytes += int64(n)
		s.metrics.incBlockSendCount()
		s.metrics.addByteCount(n)
		s.reportProgress(false)

		s.seq++ // wraps 255 → 0
	}
}

// sendPacket transmits one encoded block and retries the identical bytes until
// it is acknowledged or the per-block retry limit is exceeded.
func (s *sendSession) sendPacket(wire []byte) error {
	retry := newRetryCounter(s.cfg.retryLimit)

	for {
		s.clearInput()

		if err := s.writeAll(wire); err != nil {
			return fmt.Errorf("%w: sending block %d: %w", ErrIO, s.seq, err)
		}

		result, err := s.awaitReply()
		switch result {
		case sendOK:
			return nil

		case sendRetry:
			if s.retry(&retry, err) {
				return fmt.Errorf("%w: block %d: %w", ErrTransferAborted, s.seq, err)
			}

		case sendAbort:
			return err
		}
	}
}

// awaitFinalAck sends EOT until the receiver acknowledges it.
func (s *sendSession) awaitFinalAck() error {
	retry := newRetryCounter(s.cfg.retryLimit)

	for {
		s.clearInput()
		s.writeControl(EOT)

		result, err := s.awaitReply()
		switch result {
		case sendOK:
			return nil

		case sendRetry:
			if s.retry(&retry, err) {
				return fmt.Errorf("%w: %w", ErrEOTTimeout, err)
			}

		case sendAbort:
			return err
		}
	}
}

// awaitReply reads the receiver's answer to a block or EOT.
//
// A first CAN does not end the wait: the next byte is read immediately without
// resending, so a CAN pair is always seen as consecutive.
func (s *sendSession) awaitReply() (sendResult, error) {
	for {
		b, err := s.readByte()
		if err != nil {
			if isFatal(err) {
				return sendAbort, fmt.Errorf("%w: waiting for ACK: %w", ErrIO, err)
			}

			return sendRetry, err
		}

		if err := s.observeCancel(b); err != nil {
			return sendAbort, err
		}

		switch b {
		case ACK:
			return sendOK, nil
		case NAK:
			s.metrics.incNAKRecvCount()
			return sendRetry, errNAK
		case CAN:
			continue
		default:
			return sendRetry, fmt.Errorf("xmodem: expected ACK (0x%02X), got 0x%02X", ACK, b)
		}
	}
}
