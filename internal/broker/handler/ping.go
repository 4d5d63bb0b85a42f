// Package handler contains one handler factory per dispatcher command.
// Factories close over the broker (and whatever else they need) and
// return broker.HandlerFunc values; error logging is centralized in the
// dispatcher, handlers only return errors.
package handler

import (
	"log/slog"

	"github.com/vestkit/vestd/apitypes"
	"github.com/vestkit/vestd/internal/broker"
)

func boolp(v bool) *bool { return &v }

// Ping reports daemon liveness and a summary of the connection state.
func Ping(b *broker.Broker) broker.HandlerFunc {
	return func(req *broker.Request, res *apitypes.Response, logger *slog.Logger) error {
		connected := false
		if ctl := b.Registry().Controller(""); ctl != nil {
			connected = ctl.Status().Connected
		}
		payload := apitypes.PingPayload{
			Alive:             true,
			Connected:         connected,
			HasDeviceSelected: b.Registry().MainID() != "",
			ClientCount:       b.ClientCount(),
		}
		res.Response = apitypes.CmdPing
		res.Payload = map[string]any{
			"alive":               payload.Alive,
			"connected":           payload.Connected,
			"has_device_selected": payload.HasDeviceSelected,
			"client_count":        payload.ClientCount,
		}
		return nil
	}
}
