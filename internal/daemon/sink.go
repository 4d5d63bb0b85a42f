package daemon

import (
	"github.com/vestkit/vestd/internal/integration"
	"github.com/vestkit/vestd/internal/resolve"
)

// sink routes integration worker output onto the broker loop. This is the
// only cross-thread handoff in the daemon: workers never touch the
// registry or broadcast directly.
type sink struct {
	d    *Daemon
	game string
}

func (d *Daemon) sinkFor(game string) integration.Sink {
	return &sink{d: d, game: game}
}

// OnGameEvent broadcasts the normalized event as <game>_game_event.
func (s *sink) OnGameEvent(eventType string, params map[string]any) {
	payload := map[string]any{"event_type": eventType}
	for k, v := range params {
		payload[k] = v
	}
	s.d.broker.Post(func() {
		s.d.broker.Broadcast(s.game+"_game_event", payload)
	})
}

// Trigger drives a cell on the device mapped for this game's first player
// slot, falling back to the main device.
func (s *sink) Trigger(cell, speed int) {
	s.d.broker.Post(func() {
		slot := 1
		id := resolve.DeviceID(resolve.Request{GameID: s.game, PlayerNum: &slot}, s.d.broker)
		if id == "" {
			return
		}
		if ctl := s.d.registry.Controller(id); ctl != nil {
			_ = ctl.Trigger(cell, speed)
		}
	})
}
