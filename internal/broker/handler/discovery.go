package handler

import (
	"fmt"
	"log/slog"

	"github.com/vestkit/vestd/apitypes"
	"github.com/vestkit/vestd/internal/broker"
	"github.com/vestkit/vestd/internal/vestdrv"
)

// List enumerates vests visible on the bus plus registered mock devices.
func List(b *broker.Broker, driver vestdrv.Driver) broker.HandlerFunc {
	return func(req *broker.Request, res *apitypes.Response, logger *slog.Logger) error {
		descs, err := driver.Enumerate()
		if err != nil {
			logger.Warn("enumerate failed", "error", err)
			descs = nil
		}
		devices := make([]apitypes.DeviceInfo, 0, len(descs))
		for _, d := range descs {
			devices = append(devices, apitypes.DeviceInfo{
				VendorID:     apitypes.FormatHexID(d.VendorID),
				ProductID:    apitypes.FormatHexID(d.ProductID),
				Bus:          d.Bus,
				Address:      d.Address,
				SerialNumber: d.Serial,
			})
		}
		// Mocks never show up on the bus; surface the registered ones.
		for _, info := range b.Registry().List() {
			if info.IsMock {
				devices = append(devices, info)
			}
		}
		res.Response = apitypes.CmdList
		res.Payload = map[string]any{"devices": devices}
		return nil
	}
}

// ListConnectedDevices lists every registered device.
func ListConnectedDevices(b *broker.Broker) broker.HandlerFunc {
	return func(req *broker.Request, res *apitypes.Response, logger *slog.Logger) error {
		res.Response = apitypes.CmdListConnectedDevices
		res.Payload = map[string]any{
			"devices":        b.Registry().List(),
			"main_device_id": b.Registry().MainID(),
		}
		return nil
	}
}

// GetSelectedDevice returns the main device's descriptor.
func GetSelectedDevice(b *broker.Broker) broker.HandlerFunc {
	return func(req *broker.Request, res *apitypes.Response, logger *slog.Logger) error {
		mainID := b.Registry().MainID()
		if mainID == "" {
			return fmt.Errorf("no device selected")
		}
		for _, info := range b.Registry().List() {
			if info.DeviceID == mainID {
				res.Response = apitypes.CmdGetSelectedDevice
				res.Payload = map[string]any{"device": info}
				return nil
			}
		}
		return fmt.Errorf("unknown device: %s", mainID)
	}
}
