package xmodem

import (
	"sync/atomic"
)

// TransferMetrics contains atomic metrics for XMODEM transfers.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type TransferMetrics struct {
	// BlockSendCount indicates the number of blocks sent and ACK'd.
	BlockSendCount atomic.Uint64
	// BlockRecvCount indicates the number of blocks received and accepted.
	BlockRecvCount atomic.Uint64
	// BlockRetryCount indicates the total number of failed attempts in any phase.
	BlockRetryCount atomic.Uint64
	// NAKSendCount indicates the number of NAKs sent by a receiver.
	NAKSendCount atomic.Uint64
	// NAKRecvCount indicates the number of NAKs received by a sender.
	NAKRecvCount atomic.Uint64
	// DuplicateCount indicates the number of repeated blocks discarded by a receiver.
	DuplicateCount atomic.Uint64
	// ByteCount indicates the number of payload bytes sent or received.
	ByteCount atomic.Uint64

	// TransferCount indicates the number of completed transfers.
	TransferCount atomic.Uint64
	// TransferErrCount indicates the number of failed transfers.
	TransferErrCount atomic.Uint64
	// CancelCount indicates the number of transfers cancelled by the peer.
	CancelCount atomic.Uint64
}

func (m *TransferMetrics) incBlockSendCount() {
	m.BlockSendCount.Add(1)
}

func (m *TransferMetrics) incBlockRecvCount() {
	m.BlockRecvCount.Add(1)
}

func (m *TransferMetrics) incBlockRetryCount() {
	m.BlockRetryCount.Add(1)
}

func (m *TransferMetrics) incNAKSendCount() {
	m.NAKSendCount.Add(1)
}

func (m *TransferMetrics) incNAKRecvCount() {
	m.NAKRecvCount.Add(1)
}

func (m *TransferMetrics) incDuplicateCount() {
	m.DuplicateCount.Add(1)
}

func (m *TransferMetrics) addByteCount(n int) {
	m.ByteCount.Add(uint64(n)) //nolint:gosec // n is a block payload length
}

func (m *TransferMetrics) incTransferCount() {
	m.TransferCount.Add(1)
}

func (m *TransferMetrics) incTransferErrCount() {
	m.TransferErrCount.Add(1)
}

func (m *TransferMetrics) incCancelCount() {
	m.CancelCount.Add(1)
}
