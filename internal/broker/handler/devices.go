package handler

import (
	"fmt"
	"log/slog"

	"github.com/vestkit/vestd/apitypes"
	"github.com/vestkit/vestd/internal/broker"
)

// SetMainDevice designates the default target device.
func SetMainDevice(b *broker.Broker) broker.HandlerFunc {
	return func(req *broker.Request, res *apitypes.Response, logger *slog.Logger) error {
		var params apitypes.DeviceRequest
		if err := req.Decode(&params); err != nil {
			return err
		}
		if params.DeviceID == "" {
			return fmt.Errorf("device_id is required")
		}
		if err := b.Registry().SetMainDevice(params.DeviceID); err != nil {
			return err
		}
		b.Broadcast("main_device_changed", map[string]any{"device_id": params.DeviceID})
		res.OK = boolp(true)
		return nil
	}
}

// DisconnectDevice removes a device from the registry and drops any
// player or game-map bindings pointing at it.
func DisconnectDevice(b *broker.Broker) broker.HandlerFunc {
	return func(req *broker.Request, res *apitypes.Response, logger *slog.Logger) error {
		var params apitypes.DeviceRequest
		if err := req.Decode(&params); err != nil {
			return err
		}
		if params.DeviceID == "" {
			return fmt.Errorf("device_id is required")
		}
		if err := b.Registry().RemoveDevice(params.DeviceID); err != nil {
			return err
		}
		b.Players().UnbindDevice(params.DeviceID)
		b.Games().UnbindDevice(params.DeviceID)

		b.Broadcast("device_disconnected", map[string]any{"device_id": params.DeviceID})
		b.Broadcast("devices_changed", map[string]any{"count": b.Registry().Count()})

		res.OK = boolp(true)
		return nil
	}
}

// CreateMockDevice registers a simulated vest.
func CreateMockDevice(b *broker.Broker) broker.HandlerFunc {
	return func(req *broker.Request, res *apitypes.Response, logger *slog.Logger) error {
		id, m, err := b.Registry().AddMockDevice()
		if err != nil {
			return err
		}
		serial := m.Status().Serial
		b.Broadcast("mock_device_created", map[string]any{"device_id": id, "serial_number": serial})
		b.Broadcast("devices_changed", map[string]any{"count": b.Registry().Count()})

		res.OK = boolp(true)
		res.Payload = map[string]any{"device_id": id, "serial_number": serial}
		return nil
	}
}

// RemoveMockDevice drops a mock device; refuses on real device ids.
func RemoveMockDevice(b *broker.Broker) broker.HandlerFunc {
	return func(req *broker.Request, res *apitypes.Response, logger *slog.Logger) error {
		var params apitypes.DeviceRequest
		if err := req.Decode(&params); err != nil {
			return err
		}
		if !b.Registry().Has(params.DeviceID) {
			return fmt.Errorf("unknown device: %s", params.DeviceID)
		}
		if !b.Registry().IsMock(params.DeviceID) {
			return fmt.Errorf("not a mock device: %s", params.DeviceID)
		}
		if err := b.Registry().RemoveDevice(params.DeviceID); err != nil {
			return err
		}
		b.Players().UnbindDevice(params.DeviceID)
		b.Games().UnbindDevice(params.DeviceID)

		b.Broadcast("mock_device_removed", map[string]any{"device_id": params.DeviceID})
		b.Broadcast("devices_changed", map[string]any{"count": b.Registry().Count()})

		res.OK = boolp(true)
		return nil
	}
}
