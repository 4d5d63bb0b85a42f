package handler

import (
	"fmt"
	"log/slog"

	"github.com/vestkit/vestd/apitypes"
	"github.com/vestkit/vestd/internal/broker"
	"github.com/vestkit/vestd/internal/effects"
	"github.com/vestkit/vestd/internal/resolve"
)

// PlayEffect starts a predefined effect against the resolved device. The
// effect_started broadcast happens synchronously inside Play (still on
// the broker loop), so it reaches every client before this command's
// response; the per-step events come from the effect task and are posted
// back onto the loop.
func PlayEffect(b *broker.Broker) broker.HandlerFunc {
	return func(req *broker.Request, res *apitypes.Response, logger *slog.Logger) error {
		var params apitypes.PlayEffectRequest
		if err := req.Decode(&params); err != nil {
			return err
		}
		if params.Name == "" {
			return fmt.Errorf("name is required")
		}
		id := resolveTarget(b, resolve.Request{DeviceID: params.DeviceID})
		if id == "" {
			return fmt.Errorf("no device available")
		}
		if b.Registry().Controller(id) == nil {
			return fmt.Errorf("unknown device: %s", id)
		}

		cb := effects.Callbacks{
			Trigger: func(cell, speed int) {
				b.Post(func() {
					if ctl := b.Registry().Controller(id); ctl != nil {
						_ = ctl.Trigger(cell, speed)
					}
				})
			},
			Broadcast: func(event string, payload map[string]any) {
				// effect_started is the one synchronous callback; it
				// fires inside Play on the loop. Everything else comes
				// from the effect task and must be posted.
				if event == "effect_started" {
					b.Broadcast(event, payload)
					return
				}
				b.Post(func() { b.Broadcast(event, payload) })
			},
		}
		if err := b.Effects().Play(params.Name, cb); err != nil {
			return err
		}
		res.OK = boolp(true)
		res.Payload = map[string]any{"name": params.Name, "device_id": id}
		return nil
	}
}

// ListEffects returns the effect library's summaries.
func ListEffects(lib *effects.Library) broker.HandlerFunc {
	return func(req *broker.Request, res *apitypes.Response, logger *slog.Logger) error {
		res.Response = apitypes.CmdListEffects
		res.Payload = map[string]any{"effects": lib.List()}
		return nil
	}
}

// StopEffect zeroes all cells on the resolved device. Running effect
// tasks are not cancelled; their remaining steps fire into cells that
// were already zeroed between steps.
func StopEffect(b *broker.Broker) broker.HandlerFunc {
	return func(req *broker.Request, res *apitypes.Response, logger *slog.Logger) error {
		var params apitypes.PlayEffectRequest
		if err := req.Decode(&params); err != nil {
			return err
		}
		id := resolveTarget(b, resolve.Request{DeviceID: params.DeviceID})
		if id == "" {
			return fmt.Errorf("no device available")
		}
		ctl := b.Registry().Controller(id)
		if ctl == nil {
			return fmt.Errorf("unknown device: %s", id)
		}
		ctl.StopAll()
		b.Broadcast("all_stopped", map[string]any{"device_id": id})
		res.OK = boolp(true)
		return nil
	}
}
