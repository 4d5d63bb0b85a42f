package logtail

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/vestkit/vestd/apitypes"
	"github.com/vestkit/vestd/internal/integration"
)

// defaultPollInterval gives the ~20 Hz poll rate of the reference design.
const defaultPollInterval = 50 * time.Millisecond

// Config is the start payload of a tailer.
type Config struct {
	LogPath        string `json:"log_path"`
	PollIntervalMS int    `json:"poll_interval_ms,omitempty"`
}

// Manager tails one log file on its own goroutine. Transient read errors
// are logged and retried on the next tick; the worker only exits on Stop.
type Manager struct {
	integration.BaseState

	profile Profile
	sink    integration.Sink
	logger  *slog.Logger

	cfg  Config
	stop chan struct{}
	done chan struct{}
}

// New creates a tailer for the given profile.
func New(profile Profile, sink integration.Sink, logger *slog.Logger) *Manager {
	return &Manager{
		profile: profile,
		sink:    sink,
		logger:  logger.With("integration", profile.Game),
	}
}

func (m *Manager) Name() string { return m.profile.Game }

// Start opens the configured log file and begins polling. The file must
// exist; tailing starts at end-of-file so only new lines are seen.
func (m *Manager) Start(raw json.RawMessage) error {
	var cfg Config
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return fmt.Errorf("invalid %s_start parameters: %w", m.profile.Game, err)
		}
	}
	if cfg.LogPath == "" {
		return fmt.Errorf("log_path is required")
	}
	if _, err := os.Stat(cfg.LogPath); err != nil {
		return fmt.Errorf("log file: %w", err)
	}
	if !m.MarkStarted() {
		return nil
	}
	m.cfg = cfg
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.worker()
	m.logger.Info("log tailer started", "path", cfg.LogPath)
	return nil
}

// Stop halts the polling worker. Idempotent.
func (m *Manager) Stop() error {
	if !m.MarkStopped() {
		return nil
	}
	close(m.stop)
	<-m.done
	m.logger.Info("log tailer stopped")
	return nil
}

func (m *Manager) Status() apitypes.IntegrationStatus {
	extra := map[string]any{}
	if m.cfg.LogPath != "" {
		extra["log_path"] = m.cfg.LogPath
	}
	return m.Snapshot(m.profile.Game, extra)
}

// HandleEvent is unsupported; the tailer is fed by its own worker.
func (m *Manager) HandleEvent(raw json.RawMessage) error {
	return fmt.Errorf("%s does not accept direct events", m.profile.Game)
}

func (m *Manager) worker() {
	defer close(m.done)

	interval := defaultPollInterval
	if m.cfg.PollIntervalMS > 0 {
		interval = time.Duration(m.cfg.PollIntervalMS) * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pos int64
	if fi, err := os.Stat(m.cfg.LogPath); err == nil {
		pos = fi.Size()
	}
	var partial string

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			pos, partial = m.poll(pos, partial)
		}
	}
}

// poll reads whatever was appended since pos. On truncation or rotation
// (current size below pos) it restarts from offset zero.
func (m *Manager) poll(pos int64, partial string) (int64, string) {
	fi, err := os.Stat(m.cfg.LogPath)
	if err != nil {
		m.logger.Warn("log stat failed, retrying", "error", err)
		return pos, partial
	}
	size := fi.Size()
	if size < pos {
		m.logger.Info("log truncated or rotated, restarting from start", "size", size)
		pos = 0
		partial = ""
	}
	if size == pos {
		return pos, partial
	}

	f, err := os.Open(m.cfg.LogPath)
	if err != nil {
		m.logger.Warn("log open failed, retrying", "error", err)
		return pos, partial
	}
	defer f.Close()
	if _, err := f.Seek(pos, io.SeekStart); err != nil {
		m.logger.Warn("log seek failed, retrying", "error", err)
		return pos, partial
	}
	data, err := io.ReadAll(f)
	if err != nil && len(data) == 0 {
		m.logger.Warn("log read failed, retrying", "error", err)
		return pos, partial
	}
	pos += int64(len(data))

	chunk := partial + string(data)
	lines := strings.Split(chunk, "\n")
	partial = lines[len(lines)-1] // tail without newline stays buffered
	for _, line := range lines[:len(lines)-1] {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		m.handleLine(line)
	}
	return pos, partial
}

func (m *Manager) handleLine(line string) {
	event, ok := m.profile.Parse(line)
	if !ok {
		return
	}
	if !m.Running() {
		m.logger.Warn("event while not running, discarded", "type", event.Type)
		return
	}
	m.RecordEvent(event.Type)
	m.sink.OnGameEvent(event.Type, event.Params)
	for _, cell := range event.Cells {
		m.sink.Trigger(cell, event.Speed)
	}
}
