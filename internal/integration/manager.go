// Package integration defines the contract every game-event ingester
// satisfies and the shared state bookkeeping they embed. Concrete managers
// live in subpackages (logtail, cs2, screenwatch); the daemon owns their
// lifecycle and registers <game>_start / <game>_stop / <game>_status /
// <game>_event commands for each.
package integration

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/vestkit/vestd/apitypes"
)

// Sink is how a manager's background worker reaches the rest of the
// daemon. Implementations post the calls onto the broker loop, so both
// methods are safe to call from any goroutine.
type Sink interface {
	// OnGameEvent reports a normalized game event; the daemon broadcasts
	// it as <game>_game_event.
	OnGameEvent(eventType string, params map[string]any)
	// Trigger drives one actuator cell on the device resolved for this
	// integration: the daemon routes through the integration's game-map
	// slot 1, falling back to the main device when that slot is unmapped.
	Trigger(cell, speed int)
}

// Manager is one game integration. Start and Stop are idempotent; Start
// receives the raw command line so each manager decodes its own
// parameters. A manager that is not running discards inbound events.
type Manager interface {
	Name() string
	Start(raw json.RawMessage) error
	Stop() error
	Status() apitypes.IntegrationStatus
	// HandleEvent ingests one event delivered through the dispatcher
	// (<game>_event commands). Managers fed purely by their own worker
	// return an error here.
	HandleEvent(raw json.RawMessage) error
}

// BaseState carries the counters and flags common to all managers. It is
// internally locked because workers update it from their own goroutines
// while status snapshots come from the broker loop.
type BaseState struct {
	mu             sync.Mutex
	running        bool
	eventsReceived int
	lastEventTS    float64
	lastEventType  string
}

// MarkStarted flips the running flag. Returns false if already running.
func (b *BaseState) MarkStarted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return false
	}
	b.running = true
	return true
}

// MarkStopped clears the running flag. Returns false if already stopped.
func (b *BaseState) MarkStopped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return false
	}
	b.running = false
	return true
}

// Running reports the current lifecycle state.
func (b *BaseState) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// RecordEvent bumps the event counters. Call once per accepted event.
func (b *BaseState) RecordEvent(eventType string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.eventsReceived++
	b.lastEventTS = float64(time.Now().UnixNano()) / 1e9
	b.lastEventType = eventType
}

// Snapshot renders the common status fields. Managers add their specific
// fields to Extra before returning it.
func (b *BaseState) Snapshot(name string, extra map[string]any) apitypes.IntegrationStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return apitypes.IntegrationStatus{
		Name:           name,
		Enabled:        true,
		Running:        b.running,
		EventsReceived: b.eventsReceived,
		LastEventTS:    b.lastEventTS,
		LastEventType:  b.lastEventType,
		Extra:          extra,
	}
}

// ClampSpeed maps any intensity to the accepted 1..10 range; used by the
// per-manager damage scaling helpers so a nonzero hit always actuates.
func ClampSpeed(speed int) int {
	if speed < 1 {
		return 1
	}
	if speed > 10 {
		return 10
	}
	return speed
}
