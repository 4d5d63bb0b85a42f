package lifecycle_test

import (
	"log/slog"
	"net"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vestkit/vestd/internal/lifecycle"
)

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

// listen opens a loopback listener and returns its port.
func listen(t *testing.T) (net.Listener, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	return ln, ln.Addr().(*net.TCPAddr).Port
}

func TestAcquireWritesOwnPID(t *testing.T) {
	_, port := listen(t)

	g, err := lifecycle.Acquire("127.0.0.1", port, discard())
	require.NoError(t, err)
	defer g.Release()

	pid, err := lifecycle.ReadPID(port)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestAcquireRefusesLiveDaemon(t *testing.T) {
	// A live process (ourselves) plus a reachable port looks like a
	// running daemon.
	_, port := listen(t)
	path := lifecycle.PIDFilePath(port)
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644))
	t.Cleanup(func() { _ = os.Remove(path) })

	_, err := lifecycle.Acquire("127.0.0.1", port, discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")

	pid, ok := lifecycle.Running("127.0.0.1", port)
	assert.True(t, ok)
	assert.Equal(t, os.Getpid(), pid)
}

func TestAcquireReplacesStalePIDFile(t *testing.T) {
	ln, port := listen(t)

	// Dead process: nothing plausibly has this PID.
	path := lifecycle.PIDFilePath(port)
	require.NoError(t, os.WriteFile(path, []byte("999999999"), 0o644))

	g, err := lifecycle.Acquire("127.0.0.1", port, discard())
	require.NoError(t, err)
	defer g.Release()

	pid, err := lifecycle.ReadPID(port)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	// Live PID but closed port is stale too.
	require.NoError(t, ln.Close())
	_, ok := lifecycle.Running("127.0.0.1", port)
	assert.False(t, ok)
}

func TestAcquireToleratesMalformedPIDFile(t *testing.T) {
	_, port := listen(t)
	path := lifecycle.PIDFilePath(port)
	require.NoError(t, os.WriteFile(path, []byte("not-a-pid"), 0o644))

	g, err := lifecycle.Acquire("127.0.0.1", port, discard())
	require.NoError(t, err)
	defer g.Release()
}

func TestReleaseRemovesFileAndIsIdempotent(t *testing.T) {
	_, port := listen(t)

	g, err := lifecycle.Acquire("127.0.0.1", port, discard())
	require.NoError(t, err)

	g.Release()
	_, err = lifecycle.ReadPID(port)
	assert.Error(t, err)
	g.Release()
}

func TestPortOpen(t *testing.T) {
	ln, port := listen(t)
	assert.True(t, lifecycle.PortOpen("127.0.0.1", port))
	require.NoError(t, ln.Close())
	assert.False(t, lifecycle.PortOpen("127.0.0.1", port))
}
