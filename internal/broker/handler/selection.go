package handler

import (
	"fmt"
	"log/slog"

	"github.com/vestkit/vestd/apitypes"
	"github.com/vestkit/vestd/internal/broker"
	"github.com/vestkit/vestd/internal/vestdrv"
)

// SelectDevice registers a vest (by serial, or by bus+address) and makes
// it the main device. Selecting an already-registered vest is idempotent:
// no second registry entry, no second device_connected event.
func SelectDevice(b *broker.Broker) broker.HandlerFunc {
	return func(req *broker.Request, res *apitypes.Response, logger *slog.Logger) error {
		var params apitypes.SelectDeviceRequest
		if err := req.Decode(&params); err != nil {
			return err
		}
		if params.Serial == "" && (params.Bus == nil || params.Address == nil) {
			return fmt.Errorf("select_device requires serial or bus+address")
		}

		info := vestdrv.DeviceDesc{Serial: params.Serial}
		if params.Bus != nil {
			info.Bus = *params.Bus
		}
		if params.Address != nil {
			info.Address = *params.Address
		}

		before := b.Registry().Count()
		id, _, err := b.Registry().AddDevice("", info)
		if err != nil {
			return err
		}
		isNew := b.Registry().Count() > before

		if err := b.Registry().SetMainDevice(id); err != nil {
			return err
		}

		if isNew {
			b.Broadcast("device_connected", map[string]any{"device_id": id})
			b.Broadcast("devices_changed", map[string]any{"count": b.Registry().Count()})
		}
		b.Broadcast("device_selected", map[string]any{"device_id": id})

		res.OK = boolp(true)
		res.Payload = map[string]any{"device_id": id}
		return nil
	}
}

// ClearDevice removes the main device from the registry.
func ClearDevice(b *broker.Broker) broker.HandlerFunc {
	return func(req *broker.Request, res *apitypes.Response, logger *slog.Logger) error {
		mainID := b.Registry().MainID()
		if mainID == "" {
			return fmt.Errorf("no device selected")
		}
		if err := b.Registry().RemoveDevice(mainID); err != nil {
			return err
		}
		b.Players().UnbindDevice(mainID)
		b.Games().UnbindDevice(mainID)

		b.Broadcast("device_cleared", map[string]any{"device_id": mainID})
		b.Broadcast("devices_changed", map[string]any{"count": b.Registry().Count()})

		res.OK = boolp(true)
		res.Payload = map[string]any{"device_id": mainID}
		return nil
	}
}
