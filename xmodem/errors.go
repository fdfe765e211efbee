package xmodem

import (
	"errors"
	"io"
	"net"
)

// Terminal transfer errors. Every failed Send or Receive wraps exactly one of these.
var (
	// ErrSyncTimeout is returned when the handshake could not be established
	// within the retry limit.
	ErrSyncTimeout = errors.New("xmodem: synchronization failed, retries exhausted")

	// ErrTransferAborted is returned when a data block could not be sent or
	// received correctly within the retry limit.
	ErrTransferAborted = errors.New("xmodem: block transfer failed, retries exhausted")

	// ErrEOTTimeout is returned when the end of transmission was not
	// acknowledged within the retry limit.
	ErrEOTTimeout = errors.New("xmodem: end of transmission not acknowledged, retries exhausted")

	// ErrCancelled is returned when the peer sent two consecutive CAN bytes,
	// or when the receiver answered the sender's handshake with EOT.
	ErrCancelled = errors.New("xmodem: transfer cancelled by peer")

	// ErrIO wraps a transport or stream failure that is not a retryable timeout.
	ErrIO = errors.New("xmodem: i/o failure")
)

// ErrTimeout may be returned by a [Transport] read that expired without data.
// The engine treats it, like any non-fatal read error, as a retryable condition.
var ErrTimeout = errors.New("xmodem: read timeout")

// Frame codec errors.
var (
	ErrInvalidMode        = errors.New("xmodem: invalid error-detection mode")
	ErrInvalidBlockSize   = errors.New("xmodem: invalid block size")
	ErrInvalidHeader      = errors.New("xmodem: invalid block header")
	ErrShortPacket        = errors.New("xmodem: packet length mismatch")
	ErrSequenceComplement = errors.New("xmodem: sequence complement mismatch")
	ErrSequenceMismatch   = errors.New("xmodem: unexpected sequence number")
	ErrChecksumMismatch   = errors.New("xmodem: checksum mismatch")
)

// isFatal reports whether a transport read error means the line is gone for good.
// Anything else (deadline expiry, serial timeouts, transient driver errors) is retried.
func isFatal(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed)
}

func isCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
