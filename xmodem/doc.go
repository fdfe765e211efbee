// Package xmodem provides an implementation of the XMODEM file-transfer protocol
// running over any blocking, timeout-bounded, byte-oriented duplex channel.
//
// XMODEM is a half-duplex, packet-acknowledged protocol designed for narrow and
// noisy serial links. The receiver drives the exchange: it requests a transfer
// mode, and the sender answers with numbered blocks that are individually
// acknowledged before the next one is sent.
//
// # Protocol Overview
//
// Control characters exchanged on the wire:
//
//   - SOH (0x01): header of a 128-byte block
//   - STX (0x02): header of a 1024-byte block
//   - EOT (0x04): end of transmission
//   - ACK (0x06): block received correctly
//   - NAK (0x15): block rejected, or checksum mode requested
//   - CAN (0x18): cancel; two consecutive CANs abort the transfer
//   - 'C' (0x43): CRC-16 mode requested
//
// A block on the wire is:
//
//	[header(1)][seq(1)][0xFF-seq(1)][payload(128|1024)][trailer(1|2)]
//
// The trailer is either an 8-bit arithmetic checksum or a CRC-16 (XMODEM
// variant, big-endian), fixed for the whole session by the handshake.
// Sequence numbers start at 1 and wrap from 255 to 0.
//
// # Roles
//
// [Sender] reads a byte source in fixed-size blocks and transmits them;
// [Receiver] writes validated payloads to a byte sink. Each call to
// [Sender.Send] or [Receiver.Receive] is one self-contained session with its
// own counters and sequence state, so two transfers never share state unless
// they share a [Transport].
//
// # Retries and Cancellation
//
// Every protocol phase (handshake, each data block, end of transmission) has a
// bounded retry counter configured by [WithRetryLimit]. Read timeouts, NAKs and
// unexpected bytes consume one retry. Cancellation is purely protocol-level:
// there is no context or external abort, a transfer ends only on completion,
// two consecutive CAN bytes, retry exhaustion, or an I/O failure.
//
// The receiver always writes whole blocks, so a source that is not a multiple of
// the block size arrives with trailing pad bytes. Trimming is left to the caller.
package xmodem
