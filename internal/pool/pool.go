// Package pool recycles the short-lived objects of a transfer: read timers and
// packet buffers.
package pool

import (
	"sync"
	"time"
)

// MaxPacketLen is the length of the largest packet: STX header, sequence pair,
// 1024-byte payload and CRC-16 trailer.
const MaxPacketLen = 3 + 1024 + 2

var (
	timerPool  sync.Pool
	packetPool = sync.Pool{New: func() any {
		b := make([]byte, MaxPacketLen)
		return &b
	}}
)

// GetTimer returns a stopped-and-drained timer reset to d.
//
// Return the timer with PutTimer once the wait is over.
func GetTimer(d time.Duration) *time.Timer {
	t, _ := timerPool.Get().(*time.Timer)
	if t == nil {
		return time.NewTimer(d)
	}

	if t.Reset(d) {
		select {
		case <-t.C:
		default:
		}
	}

	return t
}

// PutTimer stops t and returns it to the pool. t must not be used afterwards.
func PutTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	timerPool.Put(t)
}

// GetPacket returns a buffer of length n for one packet. Buffers longer than
// MaxPacketLen are allocated and never pooled.
func GetPacket(n int) *[]byte {
	if n > MaxPacketLen {
		b := make([]byte, n)
		return &b
	}

	b, _ := packetPool.Get().(*[]byte)
	*b = (*b)[:n]

	return b
}

// PutPacket returns a buffer obtained from GetPacket. b must not be used afterwards.
func PutPacket(b *[]byte) {
	if cap(*b) != MaxPacketLen {
		return
	}
	packetPool.Put(b)
}
