package xmodem

import (
	"bytes"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnTransport_Defaults(t *testing.T) {
	local, _ := newPipeTransports(t)

	assert.Equal(t, DefaultReadTimeout, local.readTimeout)
	assert.Equal(t, DefaultWriteTimeout, local.writeTimeout)
	assert.Equal(t, DefaultDrainTimeout, local.drainTimeout)
}

func TestConnTransport_Options(t *testing.T) {
	local, _ := newPipeTransports(t,
		WithReadTimeout(time.Second),
		WithWriteTimeout(0),
		WithDrainTimeout(time.Millisecond),
		WithReadTimeout(-1), // ignored
	)

	assert.Equal(t, time.Second, local.readTimeout)
	assert.Zero(t, local.writeTimeout)
	assert.Equal(t, time.Millisecond, local.drainTimeout)
}

func TestConnTransport_ReadTimeout(t *testing.T) {
	local, _ := newPipeTransports(t, WithReadTimeout(20*time.Millisecond))

	start := time.Now()
	n, err := local.Read(make([]byte, 1))

	assert.Zero(t, n)
	assert.True(t, errors.Is(err, os.ErrDeadlineExceeded))
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, isFatal(err), "a read timeout is retryable")
}

func TestConnTransport_ReadWrite(t *testing.T) {
	local, remote := newPipeTransports(t, WithReadTimeout(time.Second))

	go func() {
		_, _ = remote.Write([]byte{1, 2, 3})
	}()

	buf := make([]byte, 3)
	n, err := local.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, buf[:n])
}

func TestConnTransport_ClearInput(t *testing.T) {
	local, remote := newPipeTransports(t, WithReadTimeout(50*time.Millisecond), WithDrainTimeout(5*time.Millisecond))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = remote.Write([]byte{ACK, NAK, CAN})
	}()

	b := make([]byte, 1)
	_, err := local.Read(b)
	require.NoError(t, err)
	assert.Equal(t, ACK, b[0])
	<-done
	assert.Equal(t, 2, local.Buffered())

	require.NoError(t, local.ClearInput())
	assert.Zero(t, local.Buffered())

	_, err = local.Read(b)
	assert.True(t, errors.Is(err, os.ErrDeadlineExceeded), "nothing is left after clearing")
}

func TestConnTransport_ClearInputChatteringPeer(t *testing.T) {
	local, remote := newPipeTransports(t, WithReadTimeout(50*time.Millisecond), WithDrainTimeout(20*time.Millisecond))

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			case <-time.After(2 * time.Millisecond):
				_, _ = remote.Write([]byte{0x55})
			}
		}
	}()

	start := time.Now()
	require.NoError(t, local.ClearInput())
	assert.Less(t, time.Since(start), time.Second, "draining stops after the read timeout")

	close(stop)
	_ = local.Close()
	<-done
}

func TestConnTransport_WriteTimeout(t *testing.T) {
	local, _ := newPipeTransports(t, WithWriteTimeout(20*time.Millisecond))

	// Nobody reads the other end of the pipe.
	_, err := local.Write([]byte{SOH})
	assert.True(t, errors.Is(err, os.ErrDeadlineExceeded))
}

func TestConnTransport_ClosedPeer(t *testing.T) {
	local, remote := newPipeTransports(t)
	require.NoError(t, remote.Close())

	_, err := local.Read(make([]byte, 1))
	assert.True(t, isFatal(err), "reading from a closed pipe ends the transfer")
}

func TestConnTransport_Transfer(t *testing.T) {
	for _, mode := range []Mode{ModeChecksum, ModeCRC16} {
		t.Run(mode.String(), func(t *testing.T) {
			txT, rxT := newPipeTransports(t, WithReadTimeout(time.Second), WithDrainTimeout(2*time.Millisecond))
			src := makePayload(1000, 3)

			type result struct {
				n   int64
				err error
			}
			sent := make(chan result, 1)

			go func() {
				n, err := NewSender(txT, newTestConfig(t)).Send(bytes.NewReader(src))
				sent <- result{n, err}
			}()

			var dst bytes.Buffer
			n, err := NewReceiver(rxT, newTestConfig(t, WithMode(mode))).Receive(&dst)
			require.NoError(t, err)

			res := <-sent
			require.NoError(t, res.err)
			assert.Equal(t, int64(1000), res.n)

			assert.Equal(t, int64(1024), n)
			assert.Equal(t, src, dst.Bytes()[:1000])
			assert.Equal(t, bytes.Repeat([]byte{SUB}, 24), dst.Bytes()[1000:])
		})
	}
}
