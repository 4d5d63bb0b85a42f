package effects

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Callbacks route a playing effect's output back to the broker loop.
// Trigger drives one actuator cell on the device the effect was started
// against; Broadcast fans an event out to every client. Both must be safe
// to call from the sequencer's goroutines (the daemon posts them onto the
// broker loop).
type Callbacks struct {
	Trigger   func(cell, speed int)
	Broadcast func(event string, payload map[string]any)
}

// Sequencer plays effects from a library as background tasks. Multiple
// effects may run concurrently and are not serialized against each other.
//
// Stopping is deliberately non-preempting: stop_effect zeroes all cells
// but does not cancel in-flight tasks; their remaining steps fire into
// already-zeroed cells and re-zero them afterwards.
type Sequencer struct {
	lib    *Library
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewSequencer creates a sequencer over the given library.
func NewSequencer(lib *Library, logger *slog.Logger) *Sequencer {
	return &Sequencer{lib: lib, logger: logger}
}

// Play starts the named effect in the background. The effect_started
// event is broadcast synchronously so it precedes the caller's response;
// per-step effect_triggered events and the final effect_completed follow
// from the task.
func (s *Sequencer) Play(name string, cb Callbacks) error {
	effect, ok := s.lib.Get(name)
	if !ok {
		return fmt.Errorf("unknown effect: %s", name)
	}

	cb.Broadcast("effect_started", map[string]any{"name": effect.Name})
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(effect, cb)
	}()
	return nil
}

func (s *Sequencer) run(effect Effect, cb Callbacks) {
	for _, step := range effect.Steps {
		for _, cell := range step.Cells {
			cb.Trigger(cell, step.Speed)
			cb.Broadcast("effect_triggered", map[string]any{"cell": cell, "speed": step.Speed})
		}
		time.Sleep(time.Duration(step.DurationMS) * time.Millisecond)
		for _, cell := range step.Cells {
			cb.Trigger(cell, 0)
		}
		if step.DelayMS > 0 {
			time.Sleep(time.Duration(step.DelayMS) * time.Millisecond)
		}
	}
	cb.Broadcast("effect_completed", map[string]any{"name": effect.Name})
	s.logger.Debug("effect completed", "name", effect.Name)
}

// Wait blocks until all running effect tasks finish; used by tests and
// shutdown.
func (s *Sequencer) Wait() { s.wg.Wait() }
