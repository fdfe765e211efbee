package xmodem

import (
	"encoding/binary"
	"fmt"

	"github.com/arloliu/go-xmodem/internal/util"
)

// XMODEM control characters.
// These single-byte characters are exchanged on the wire to frame blocks and
// coordinate the transfer.
const (
	// SOH starts a block carrying a 128-byte payload.
	SOH byte = 0x01

	// STX starts a block carrying a 1024-byte payload.
	STX byte = 0x02

	// EOT (End of Transmission) is sent by the sender after the last block.
	EOT byte = 0x04

	// ACK acknowledges a correctly received block or EOT.
	ACK byte = 0x06

	// NAK rejects a block. As a handshake byte it requests checksum mode.
	NAK byte = 0x15

	// CAN cancels the transfer when received twice in a row.
	CAN byte = 0x18

	// SUB is the default pad byte used to complete a short final block.
	SUB byte = 0x1A

	// CRC ('C') is the handshake byte requesting CRC-16 mode.
	CRC byte = 0x43
)

// Payload sizes carried by SOH and STX blocks.
const (
	BlockSize128 = 128
	BlockSize1K  = 1024
)

// blockHeaderSize is header byte + sequence number + sequence complement.
const blockHeaderSize = 3

// Mode is the error-detection scheme used for block trailers.
// It is chosen by the receiver during the handshake and fixed for the session.
type Mode uint8

const (
	// ModeChecksum uses a 1-byte arithmetic sum, requested with NAK.
	ModeChecksum Mode = iota
	// ModeCRC16 uses a 2-byte CRC-16/XMODEM, requested with 'C'.
	ModeCRC16
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeChecksum:
		return "checksum"
	case ModeCRC16:
		return "crc16"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// TrailerLen returns the number of trailer bytes appended to each block.
func (m Mode) TrailerLen() int {
	if m == ModeCRC16 {
		return 2
	}

	return 1
}

// SyncByte returns the handshake byte a receiver sends to request this mode.
func (m Mode) SyncByte() byte {
	if m == ModeCRC16 {
		return CRC
	}

	return NAK
}

func (m Mode) valid() bool {
	return m == ModeChecksum || m == ModeCRC16
}

// ParseMode converts a mode name ("checksum" or "crc16"/"crc") to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "checksum", "sum":
		return ModeChecksum, nil
	case "crc16", "crc":
		return ModeCRC16, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Checksum returns the arithmetic sum of payload modulo 256.
func Checksum(payload []byte) byte {
	var sum byte
	for _, v := range payload {
		sum += v
	}

	return sum
}

// CRC16 returns the CRC-16/XMODEM of payload: polynomial 0x1021, initial value 0,
// MSB-first, no reflection and no final XOR.
func CRC16(payload []byte) uint16 {
	var crc uint16
	for _, v := range payload {
		crc ^= uint16(v) << 8
		for range 8 {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}

	return crc
}

// headerFor returns the block header byte for a payload size.
func headerFor(size int) (byte, error) {
	switch size {
	case BlockSize128:
		return SOH, nil
	case BlockSize1K:
		return STX, nil
	default:
		return 0, fmt.Errorf("%w: got %d, want %d or %d", ErrInvalidBlockSize, size, BlockSize128, BlockSize1K)
	}
}

// blockSizeFor returns the payload size announced by a header byte.
func blockSizeFor(header byte) (int, bool) {
	switch header {
	case SOH:
		return BlockSize128, true
	case STX:
		return BlockSize1K, true
	default:
		return 0, false
	}
}

// PacketLen returns the on-wire length of a block with the given payload size.
func PacketLen(size int, mode Mode) int {
	return blockHeaderSize + size + mode.TrailerLen()
}

// Packet is a single XMODEM data block.
type Packet struct {
	Seq     byte   // sequence number, 1 for the first block, wrapping 255→0
	Payload []byte // exactly 128 or 1024 bytes
}

// Pack serializes the packet to its wire format:
//
//	[SOH|STX][Seq][0xFF-Seq][Payload][Checksum | CRC_Hi CRC_Lo]
func (p *Packet) Pack(mode Mode) ([]byte, error) {
	if !mode.valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMode, mode)
	}

	header, err := headerFor(len(p.Payload))
	if err != nil {
		return nil, err
	}

	size := len(p.Payload)
	buf := make([]byte, PacketLen(size, mode))
	buf[0] = header
	buf[1] = p.Seq
	buf[2] = 0xFF - p.Seq
	copy(buf[blockHeaderSize:], p.Payload)

	trailer := buf[blockHeaderSize+size:]
	if mode == ModeCRC16 {
		binary.BigEndian.PutUint16(trailer, CRC16(p.Payload))
	} else {
		trailer[0] = Checksum(p.Payload)
	}

	return buf, nil
}

// Encode builds the wire form of a block with sequence number seq.
// payload must be exactly 128 or 1024 bytes.
func Encode(seq byte, payload []byte, mode Mode) ([]byte, error) {
	p := Packet{Seq: seq, Payload: payload}

	return p.Pack(mode)
}

// ParsePacket deserializes a complete wire block, header byte included.
//
// ParsePacket validates:
//   - The header byte is SOH or STX and raw has the matching length.
//   - The sequence number and its complement add up to 0xFF.
//   - The checksum or CRC trailer matches the payload.
//
// The returned payload is a copy and does not alias raw.
func ParsePacket(raw []byte, mode Mode) (*Packet, error) {
	if !mode.valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMode, mode)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty packet", ErrShortPacket)
	}

	size, ok := blockSizeFor(raw[0])
	if !ok {
		return nil, fmt.Errorf("%w: 0x%02X", ErrInvalidHeader, raw[0])
	}

	if want := PacketLen(size, mode); len(raw) != want {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrShortPacket, len(raw), want)
	}

	seq, cmpl := raw[1], raw[2]
	if seq+cmpl != 0xFF {
		return nil, fmt.Errorf("%w: seq=0x%02X, complement=0x%02X", ErrSequenceComplement, seq, cmpl)
	}

	payload := raw[blockHeaderSize : blockHeaderSize+size]
	trailer := raw[blockHeaderSize+size:]

	if mode == ModeCRC16 {
		wire := binary.BigEndian.Uint16(trailer)
		if calc := CRC16(payload); wire != calc {
			return nil, fmt.Errorf("%w: wire=0x%04X, computed=0x%04X", ErrChecksumMismatch, wire, calc)
		}
	} else {
		if calc := Checksum(payload); trailer[0] != calc {
			return nil, fmt.Errorf("%w: wire=0x%02X, computed=0x%02X", ErrChecksumMismatch, trailer[0], calc)
		}
	}

	return &Packet{Seq: seq, Payload: util.CloneSlice(payload)}, nil
}

// Decode validates a complete wire block against the expected sequence number
// and returns its payload.
//
// Integrity is checked before the sequence number, so an error wrapping
// [ErrSequenceMismatch] always refers to an otherwise intact block.
func Decode(raw []byte, expectedSeq byte, mode Mode) ([]byte, error) {
	p, err := ParsePacket(raw, mode)
	if err != nil {
		return nil, err
	}

	if p.Seq != expectedSeq {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrSequenceMismatch, p.Seq, expectedSeq)
	}

	return p.Payload, nil
}
