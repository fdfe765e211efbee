package cli

import (
	"bytes"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-xmodem/logger"
	"github.com/arloliu/go-xmodem/xmodem"
)

// executeCommand runs the CLI with an empty config and returns its stdout.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	out := new(bytes.Buffer)
	root := NewRootCmd()
	root.SetOut(out)
	root.SetErr(new(bytes.Buffer))
	root.SetArgs(append([]string{
		"--config", filepath.Join(t.TempDir(), "config.yaml"),
		"--log-level", "error",
	}, args...))

	err := root.Execute()

	return out.String(), err
}

func writeFile(t *testing.T, data []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "payload.bin")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	return path
}

func payload(size int) []byte {
	p := make([]byte, size)
	for i := range p {
		p[i] = byte(i*13 + 1)
	}

	return p
}

func quietOption() xmodem.Option {
	return xmodem.WithLogger(logger.NewSlogTo(new(bytes.Buffer), logger.ErrorLevel, false))
}

// listen starts a TCP endpoint that runs fn on the first accepted connection.
func listen(t *testing.T, fn func(*xmodem.ConnTransport)) (string, <-chan struct{}) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	done := make(chan struct{})
	go func() {
		defer close(done)

		conn, err := ln.Accept()
		if err != nil {
			return
		}
		tr := xmodem.NewConnTransport(conn)
		defer tr.Close()

		fn(tr)
	}()

	return ln.Addr().String(), done
}

// ===========================================================================
// version / ports
// ===========================================================================

func TestVersionCommand(t *testing.T) {
	out, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "xmodem version "+version)
}

func TestPortsCommand(t *testing.T) {
	orig := listPorts
	t.Cleanup(func() { listPorts = orig })

	listPorts = func() ([]string, error) { return []string{"/dev/ttyS0", "/dev/ttyUSB0"}, nil }
	out, err := executeCommand(t, "ports")
	require.NoError(t, err)
	assert.Contains(t, out, "/dev/ttyS0")
	assert.Contains(t, out, "/dev/ttyUSB0")

	listPorts = func() ([]string, error) { return nil, nil }
	out, err = executeCommand(t, "ports")
	require.NoError(t, err)
	assert.Contains(t, out, "no serial ports found")

	listPorts = func() ([]string, error) { return nil, errors.New("no permission") }
	_, err = executeCommand(t, "ports")
	assert.ErrorContains(t, err, "no permission")
}

// ===========================================================================
// Configuration
// ===========================================================================

func TestInvalidConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retry_limit: 0\n"), 0o600))

	root := NewRootCmd()
	root.SetOut(new(bytes.Buffer))
	root.SetArgs([]string{"--config", path, "version"})

	err := root.Execute()
	assert.ErrorContains(t, err, "failed to load config")
}

func TestInvalidFlagOverride(t *testing.T) {
	_, err := executeCommand(t, "--mode", "ymodem", "selftest")
	assert.ErrorIs(t, err, xmodem.ErrInvalidMode)

	_, err = executeCommand(t, "--block-size", "256", "selftest")
	assert.ErrorIs(t, err, xmodem.ErrInvalidBlockSize)
}

// ===========================================================================
// selftest
// ===========================================================================

func TestSelftestCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"crc16", []string{"selftest", "--size", "1000"}},
		{"checksum 1K", []string{"--mode", "checksum", "--block-size", "1024", "selftest", "--size", "5000"}},
		{"noisy line", []string{"selftest", "--size", "4096", "--noise", "3"}},
		{"empty", []string{"selftest", "--size", "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := executeCommand(t, tt.args...)
			require.NoError(t, err, out)
			assert.Contains(t, out, "verified")
			assert.Contains(t, out, "sender")
			assert.Contains(t, out, "receiver")
			assert.NotContains(t, out, "FAIL")
		})
	}
}

// ===========================================================================
// send / receive over TCP
// ===========================================================================

func TestSendCommand_TCP(t *testing.T) {
	data := payload(1000)
	path := writeFile(t, data)

	var received bytes.Buffer
	var recvErr error
	addr, done := listen(t, func(tr *xmodem.ConnTransport) {
		_, recvErr = xmodem.Receive(tr, &received, quietOption())
	})

	out, err := executeCommand(t, "send", path, "--address", addr)
	require.NoError(t, err, out)
	<-done

	require.NoError(t, recvErr)
	assert.Equal(t, data, received.Bytes()[:1000])
	assert.Contains(t, out, "tcp://"+addr)
	assert.Contains(t, out, "sent 1000 bytes")
}

func TestSendCommand_FanOut(t *testing.T) {
	data := payload(3000)
	path := writeFile(t, data)

	var bufA, bufB bytes.Buffer
	addrA, doneA := listen(t, func(tr *xmodem.ConnTransport) {
		_, _ = xmodem.Receive(tr, &bufA, quietOption())
	})
	addrB, doneB := listen(t, func(tr *xmodem.ConnTransport) {
		_, _ = xmodem.Receive(tr, &bufB, quietOption(), xmodem.WithMode(xmodem.ModeChecksum))
	})

	out, err := executeCommand(t, "--block-size", "1024", "send", path, "--address", addrA, "--address", addrB)
	require.NoError(t, err, out)
	<-doneA
	<-doneB

	assert.Equal(t, data, bufA.Bytes()[:3000])
	assert.Equal(t, data, bufB.Bytes()[:3000])
	assert.Equal(t, 3*xmodem.BlockSize1K, bufA.Len())
}

func TestSendCommand_PartialFailure(t *testing.T) {
	path := writeFile(t, payload(10))

	addr, done := listen(t, func(tr *xmodem.ConnTransport) {
		_, _ = xmodem.Receive(tr, new(bytes.Buffer), quietOption())
	})

	// Nothing listens on the second address once its listener is closed.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	dead := ln.Addr().String()
	require.NoError(t, ln.Close())

	out, err := executeCommand(t, "send", path, "--address", addr, "--address", dead)
	<-done

	assert.ErrorContains(t, err, "1 of 2 transfers failed")
	assert.Contains(t, out, "FAIL")
	assert.Contains(t, out, "OK")
}

func TestSendCommand_Errors(t *testing.T) {
	path := writeFile(t, payload(10))

	_, err := executeCommand(t, "send", path)
	assert.ErrorContains(t, err, "at least one --port or --address")

	_, err = executeCommand(t, "send", path, "--address", "127.0.0.1:1", "--address", "127.0.0.1:1")
	assert.ErrorContains(t, err, "more than once")

	_, err = executeCommand(t, "send", filepath.Join(t.TempDir(), "missing.bin"), "--address", "127.0.0.1:1")
	assert.Error(t, err)

	_, err = executeCommand(t, "send", t.TempDir(), "--address", "127.0.0.1:1")
	assert.ErrorContains(t, err, "is a directory")
}

func TestReceiveCommand_TCP(t *testing.T) {
	data := payload(300)

	var sendErr error
	addr, done := listen(t, func(tr *xmodem.ConnTransport) {
		_, sendErr = xmodem.Send(tr, bytes.NewReader(data), quietOption())
	})

	path := filepath.Join(t.TempDir(), "out.bin")
	out, err := executeCommand(t, "receive", path, "--address", addr, "--size", "300")
	require.NoError(t, err, out)
	<-done
	require.NoError(t, sendErr)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, got, "padding beyond --size is removed")
	assert.Contains(t, out, "received 300 bytes")
}

func TestReceiveCommand_KeepsPadding(t *testing.T) {
	data := payload(300)

	addr, done := listen(t, func(tr *xmodem.ConnTransport) {
		_, _ = xmodem.Send(tr, bytes.NewReader(data), quietOption())
	})

	path := filepath.Join(t.TempDir(), "out.bin")
	_, err := executeCommand(t, "--mode", "checksum", "receive", path, "--address", addr)
	require.NoError(t, err)
	<-done

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, got, 384)
	assert.Equal(t, data, got[:300])
	assert.Equal(t, bytes.Repeat([]byte{xmodem.SUB}, 84), got[300:])
}

func TestReceiveCommand_Errors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bin")

	_, err := executeCommand(t, "receive", path)
	assert.ErrorContains(t, err, "at least one --port or --address")

	_, err = executeCommand(t, "receive", path, "--port", "/dev/null0", "--address", "127.0.0.1:1")
	assert.ErrorContains(t, err, "not both")

	_, err = executeCommand(t, "receive", path, "--address", "127.0.0.1:1", "--size", "-1")
	assert.ErrorContains(t, err, "invalid --size")
}

// ===========================================================================
// Helpers
// ===========================================================================

func TestCollectTargets(t *testing.T) {
	targets, err := collectTargets([]string{"/dev/ttyUSB0"}, []string{"host:4001"})
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, "/dev/ttyUSB0", targets[0].String())
	assert.Equal(t, "tcp://host:4001", targets[1].String())

	// The same name as a device and as an address are distinct targets.
	_, err = collectTargets([]string{"x"}, []string{"x"})
	require.NoError(t, err)

	_, err = collectTargets([]string{""}, nil)
	assert.Error(t, err)
}

func TestVerifyPayload(t *testing.T) {
	src := []byte{1, 2, 3}

	assert.NoError(t, verifyPayload(src, []byte{1, 2, 3, xmodem.SUB}, xmodem.SUB))
	assert.ErrorContains(t, verifyPayload(src, []byte{1, 2}, xmodem.SUB), "want at least 3")
	assert.ErrorContains(t, verifyPayload(src, []byte{1, 9, 3}, xmodem.SUB), "offset 1")
	assert.ErrorContains(t, verifyPayload(src, []byte{1, 2, 3, 0}, xmodem.SUB), "padding byte at offset 3")
}

func TestProgressModel(t *testing.T) {
	m := newProgressModel("sending", []string{"a", "b"}, 1000)

	next, cmd := m.Update(progressMsg{name: "a", progress: xmodem.Progress{Blocks: 4, Bytes: 512, Retries: 1}})
	assert.Nil(t, cmd)
	view := next.View()
	assert.Contains(t, view, "sending")
	assert.Contains(t, view, "4 blocks  512 bytes  1 retries")

	next, _ = next.Update(finishedMsg{name: "a"})
	next, _ = next.Update(finishedMsg{name: "b", err: errors.New("boom")})
	view = next.View()
	assert.Contains(t, view, "done")
	assert.Contains(t, view, "failed")

	// Unknown names are ignored.
	_, cmd = next.Update(progressMsg{name: "zzz"})
	assert.Nil(t, cmd)

	_, cmd = next.Update(allDoneMsg{})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestProgressModel_Bar(t *testing.T) {
	m := newProgressModel("x", nil, 100)
	assert.Equal(t, barWidth, len([]rune(stripANSI(m.bar(50)))))

	unknown := newProgressModel("x", nil, 0)
	assert.NotContains(t, stripANSI(unknown.bar(50)), "█")
}

// stripANSI removes SGR escape sequences.
func stripANSI(s string) string {
	var b bytes.Buffer
	inEsc := false
	for _, r := range s {
		switch {
		case r == 0x1b:
			inEsc = true
		case inEsc && r == 'm':
			inEsc = false
		case !inEsc:
			b.WriteRune(r)
		}
	}

	return b.String()
}

func TestTrack_Quiet(t *testing.T) {
	called := false
	err := track(new(bytes.Buffer), false, "t", []string{"a"}, 0, func(tr tracker) {
		called = true
		assert.Nil(t, tr.progress("a"))
		tr.finish("a", nil)
	})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestSendCommand_ConfiguredAddress(t *testing.T) {
	data := payload(200)
	path := writeFile(t, data)

	var received bytes.Buffer
	addr, done := listen(t, func(tr *xmodem.ConnTransport) {
		_, _ = xmodem.Receive(tr, &received, quietOption())
	})

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("address: "+addr+"\nlog_level: error\nlog_format: text\n"), 0o600))

	out := new(bytes.Buffer)
	root := NewRootCmd()
	root.SetOut(out)
	root.SetErr(new(bytes.Buffer))
	root.SetArgs([]string{"--config", cfgPath, "send", path})

	require.NoError(t, root.Execute(), out.String())
	<-done
	assert.Equal(t, data, received.Bytes()[:200])
}

func TestInvalidLogFormat(t *testing.T) {
	_, err := executeCommand(t, "--log-format", "xml", "version")
	assert.ErrorContains(t, err, "unknown format")
}
