package xmodem

import (
	"errors"
	"fmt"
	"io"

	"github.com/arloliu/go-xmodem/internal/pool"
)

// Receiver accepts an XMODEM transfer into a byte sink.
type Receiver struct {
	t   Transport
	cfg *Config
}

// NewReceiver creates a Receiver over t. A nil cfg uses the defaults.
func NewReceiver(t Transport, cfg *Config) *Receiver {
	if cfg == nil {
		cfg, _ = NewConfig()
	}

	return &Receiver{t: t, cfg: cfg}
}

// Receive is a shortcut for NewReceiver with a Config built from opts.
func Receive(t Transport, dst io.Writer, opts ...Option) (int64, error) {
	cfg, err := NewConfig(opts...)
	if err != nil {
		return 0, err
	}

	return NewReceiver(t, cfg).Receive(dst)
}

// Receive runs one complete transfer into dst and returns the number of bytes
// written, which is always a whole number of blocks: a short final block
// arrives with its pad bytes.
//
// The receiver requests the configured mode with one sync byte per attempt,
// then accepts SOH and STX blocks, writes each validated payload to dst and
// answers ACK, until the sender ends the transfer with EOT.
//
// On failure the returned error wraps one of ErrSyncTimeout, ErrTransferAborted,
// ErrCancelled or ErrIO, and the count reflects the bytes already written.
func (r *Receiver) Receive(dst io.Writer) (int64, error) {
	rs := &recvSession{session: newSession(r.t, r.cfg, RoleReceiver)}
	rs.mode = r.cfg.mode
	rs.expected = 1

	if err := rs.run(dst); err != nil {
		return rs.bytes, rs.fail(err)
	}

	rs.succeed()

	return rs.bytes, nil
}

type recvSession struct {
	session

	expected byte // next sequence number, wraps 255 → 0
}

// bodyResult classifies a block body exchange.
type bodyResult int

const (
	bodyAccepted  bodyResult = iota // Payload written and ACK'd.
	bodyDuplicate                   // Repeated previous block ACK'd and discarded.
	bodyRejected                    // NAK sent, block must be resent.
)

// run is the receiver state machine: negotiate, then alternate between reading
// a block header and its body until EOT.
func (r *recvSession) run(dst io.Writer) error {
	sync := r.mode.SyncByte()
	retry := newRetryCounter(r.cfg.retryLimit)
	started := false // a block header has arrived; timeouts are answered with NAK

	r.logger.Debug("xmodem: requesting transfer", "mode", r.mode.String())
	r.writeControl(sync)

	for {
		header, err := r.readByte()
		if err != nil {
			if isFatal(err) {
				return fmt.Errorf("%w: waiting for block header: %w", ErrIO, err)
			}

			if !started {
				if r.retry(&retry, err) {
					return fmt.Errorf("%w: no response to handshake: %w", ErrSyncTimeout, err)
				}
				r.writeControl(sync)
			} else {
				if r.retry(&retry, err) {
					return fmt.Errorf("%w: waiting for block %d: %w", ErrTransferAborted, r.expected, err)
				}
				r.sendNAK()
			}

			continue
		}

		if err := r.observeCancel(header); err != nil {
			return err
		}

		size, ok := blockSizeFor(header)
		switch {
		case ok:
		case header == EOT:
			r.writeControl(ACK)
			return nil
		case header == CAN:
			continue
		default:
			// The rest of a packet with a damaged header is still arriving.
			r.clearInput()
			r.writeControl(sync)
			if r.retry(&retry, fmt.Errorf("%w: 0x%02X", ErrInvalidHeader, header)) {
				return fmt.Errorf("%w: last header byte 0x%02X", ErrSyncTimeout, header)
			}

			continue
		}

		started = true

		result, err := r.receiveBody(header, size, dst)
		if err != nil {
			return err
		}

		switch result {
		case bodyAccepted, bodyDuplicate:
			retry.reset()

		case bodyRejected:
			if r.retry(&retry, fmt.Errorf("xmodem: block %d rejected", r.expected)) {
				return fmt.Errorf("%w: block %d", ErrTransferAborted, r.expected)
			}
		}
	}
}

// receiveBody reads the rest of a block after its header byte, validates it
// against the expected sequence number and answers ACK or NAK.
//
// Only sink write failures are returned as errors; every protocol-level
// problem is reported as bodyRejected.
func (r *recvSession) receiveBody(header byte, size int, dst io.Writer) (bodyResult, error) {
	buf := pool.GetPacket(PacketLen(size, r.mode))
	defer pool.PutPacket(buf)

	raw := *buf
	raw[0] = header

	if err := r.readFull(raw[1:]); err != nil {
		if isFatal(err) {
			return bodyRejected, fmt.Errorf("%w: reading block %d: %w", ErrIO, r.expected, err)
		}

		// Partial block: whatever is still arriving belongs to it.
		r.logger.Debug("xmodem: incomplete block", "block", r.expected, "error", err)
		r.clearInput()
		r.sendNAK()

		return bodyRejected, nil
	}

	payload, err := Decode(raw, r.expected, r.mode)
	if err != nil {
		if errors.Is(err, ErrSequenceMismatch) && r.isDuplicate(raw[1]) {
			r.metrics.incDuplicateCount()
			r.logger.Debug("xmodem: duplicate block discarded", "seq", raw[1])
			r.writeControl(ACK)

			return bodyDuplicate, nil
		}

		r.logger.Debug("xmodem: invalid block", "block", r.expected, "error", err)
		r.sendNAK()

		return bodyRejected, nil
	}

	if _, err := dst.Write(payload); err != nil {
		return bodyRejected, fmt.Errorf("%w: writing block %d: %w", ErrIO, r.expected, err)
	}

	r.writeControl(ACK)

	r.blocks++
	r.bytes += int64(len(payload))
	r.expected++
	r.metrics.incBlockRecvCount()
	r.metrics.addByteCount(len(payload))
	r.reportProgress(false)

	return bodyAccepted, nil
}

// isDuplicate reports whether seq repeats the last accepted block.
func (r *recvSession) isDuplicate(seq byte) bool {
	return r.cfg.duplicateDetection && r.blocks > 0 && seq == r.expected-1
}

func (r *recvSession) sendNAK() {
	r.metrics.incNAKSendCount()
	r.writeControl(NAK)
}
