package controller

import (
	"log/slog"

	"github.com/vestkit/vestd/internal/vestdrv"
)

// ringCap bounds the mock's recorded trigger history.
const ringCap = 100

// MockTrigger is one recorded call. StopAll records the sentinel
// {Cell: -1, Speed: 0}.
type MockTrigger struct {
	Cell  int
	Speed int
}

// Mock is an API-identical stand-in for a hardware controller. It is
// permanently connected, logs every trigger and keeps the most recent
// triggers in a bounded ring for inspection.
type Mock struct {
	logger *slog.Logger
	status Status
	ring   []MockTrigger
}

// NewMock creates a mock controller with the given identity.
func NewMock(serial string, logger *slog.Logger) *Mock {
	return &Mock{
		logger: logger,
		status: Status{Connected: true, Serial: serial},
	}
}

func (m *Mock) ConnectToDevice(sel vestdrv.Selector) Status { return m.status }

func (m *Mock) Trigger(cell, speed int) error {
	if err := vestdrv.ValidateCell(cell); err != nil {
		return err
	}
	if err := vestdrv.ValidateSpeed(speed); err != nil {
		return err
	}
	m.record(MockTrigger{Cell: cell, Speed: speed})
	m.logger.Info("mock trigger", "serial", m.status.Serial, "cell", cell, "speed", speed)
	return nil
}

func (m *Mock) StopAll() {
	m.record(MockTrigger{Cell: -1, Speed: 0})
	m.logger.Info("mock stop all", "serial", m.status.Serial)
}

// Disconnect is a no-op; a mock stays connected for its lifetime.
func (m *Mock) Disconnect() {}

func (m *Mock) Status() Status { return m.status }

// Triggers returns a copy of the recorded history, oldest first.
func (m *Mock) Triggers() []MockTrigger {
	out := make([]MockTrigger, len(m.ring))
	copy(out, m.ring)
	return out
}

func (m *Mock) record(t MockTrigger) {
	m.ring = append(m.ring, t)
	if len(m.ring) > ringCap {
		m.ring = m.ring[len(m.ring)-ringCap:]
	}
}
