// Package lifecycle enforces at-most-one daemon per port via a PID file
// combined with a port probe. Neither check alone is enough: PID files go
// stale, and a reachable port alone could belong to an unrelated process.
package lifecycle

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/shirou/gopsutil/v3/process"
)

const probeTimeout = 500 * time.Millisecond

// PIDFilePath returns the per-port PID file location.
func PIDFilePath(port int) string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("vest-daemon-%d.pid", port))
}

// Guard is a held lifecycle lock. Release on shutdown.
type Guard struct {
	path   string
	logger *slog.Logger
}

// Acquire claims the per-port PID file. It refuses when the file names a
// live process and the port answers; a stale file (dead process or closed
// port) is removed and the claim proceeds.
func Acquire(host string, port int, logger *slog.Logger) (*Guard, error) {
	path := PIDFilePath(port)
	if pid, err := ReadPID(port); err == nil {
		if pidAlive(pid) && PortOpen(host, port) {
			return nil, fmt.Errorf("daemon already running (pid %d) on port %d", pid, port)
		}
		logger.Info("removing stale pid file", "path", path, "pid", pid)
		_ = os.Remove(path)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return nil, fmt.Errorf("write pid file: %w", err)
	}
	logger.Debug("pid file written", "path", path, "pid", os.Getpid())
	return &Guard{path: path, logger: logger}, nil
}

// Release deletes the PID file. Safe to call more than once.
func (g *Guard) Release() {
	if err := os.Remove(g.path); err != nil && !os.IsNotExist(err) {
		g.logger.Warn("pid file removal failed", "path", g.path, "error", err)
	}
}

// ReadPID parses the PID file for a port.
func ReadPID(port int) (int, error) {
	data, err := os.ReadFile(PIDFilePath(port))
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("malformed pid file: %w", err)
	}
	return pid, nil
}

// Running reports whether a daemon appears to be serving the port: PID
// file present, process alive, port reachable.
func Running(host string, port int) (int, bool) {
	pid, err := ReadPID(port)
	if err != nil {
		return 0, false
	}
	if !pidAlive(pid) || !PortOpen(host, port) {
		return pid, false
	}
	return pid, true
}

// Kill force-terminates the process named by the port's PID file and
// removes the file. Used by `daemon stop --force`.
func Kill(port int) error {
	pid, err := ReadPID(port)
	if err != nil {
		return fmt.Errorf("no pid file for port %d: %w", port, err)
	}
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		_ = os.Remove(PIDFilePath(port))
		return fmt.Errorf("process %d not found: %w", pid, err)
	}
	if err := proc.Kill(); err != nil {
		return fmt.Errorf("kill %d: %w", pid, err)
	}
	_ = os.Remove(PIDFilePath(port))
	return nil
}

// PortOpen probes the daemon port with a short-lived TCP dial.
func PortOpen(host string, port int) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), probeTimeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

func pidAlive(pid int) bool {
	alive, err := process.PidExists(int32(pid))
	return err == nil && alive
}
