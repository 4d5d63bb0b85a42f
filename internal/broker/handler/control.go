package handler

import (
	"fmt"
	"log/slog"

	"github.com/vestkit/vestd/apitypes"
	"github.com/vestkit/vestd/internal/broker"
	"github.com/vestkit/vestd/internal/resolve"
	"github.com/vestkit/vestd/internal/vestdrv"
)

// resolveTarget picks the device for a control command via the fallback
// chain and returns its id. Empty means no device at all.
func resolveTarget(b *broker.Broker, r resolve.Request) string {
	return resolve.DeviceID(r, b)
}

// Connect (re)opens the USB session of a registered device; with no
// device_id it targets the main device. select_device must have run
// first.
func Connect(b *broker.Broker) broker.HandlerFunc {
	return func(req *broker.Request, res *apitypes.Response, logger *slog.Logger) error {
		var params apitypes.StatusRequest
		if err := req.Decode(&params); err != nil {
			return err
		}
		id := params.DeviceID
		if id == "" {
			id = b.Registry().MainID()
		}
		if id == "" {
			return fmt.Errorf("no device selected")
		}
		ctl := b.Registry().Controller(id)
		if ctl == nil {
			return fmt.Errorf("unknown device: %s", id)
		}
		desc, _ := b.Registry().Desc(id)

		var st apitypes.Status
		if desc.Mock {
			st = ctl.Status().ToAPI()
		} else {
			sel := vestdrv.Any()
			if desc.Serial != "" {
				sel = vestdrv.BySerial(desc.Serial)
			} else if desc.Bus != 0 || desc.Address != 0 {
				sel = vestdrv.ByBusAddress(desc.Bus, desc.Address)
			}
			st = ctl.ConnectToDevice(sel).ToAPI()
		}

		if st.Connected {
			b.Broadcast("connected", map[string]any{"device_id": id})
		}
		res.Success = boolp(st.Connected)
		res.Message = st.LastError
		res.Payload = map[string]any{"device_id": id, "status": st}
		return nil
	}
}

// Disconnect closes a device's USB session without removing it from the
// registry.
func Disconnect(b *broker.Broker) broker.HandlerFunc {
	return func(req *broker.Request, res *apitypes.Response, logger *slog.Logger) error {
		var params apitypes.StatusRequest
		if err := req.Decode(&params); err != nil {
			return err
		}
		id := params.DeviceID
		if id == "" {
			id = b.Registry().MainID()
		}
		if id == "" {
			return fmt.Errorf("no device selected")
		}
		ctl := b.Registry().Controller(id)
		if ctl == nil {
			return fmt.Errorf("unknown device: %s", id)
		}
		ctl.Disconnect()
		b.Broadcast("disconnected", map[string]any{"device_id": id})
		res.OK = boolp(true)
		return nil
	}
}

// Trigger fires one actuator cell on the resolved device. Out-of-range
// cell or speed is rejected, never clamped.
func Trigger(b *broker.Broker) broker.HandlerFunc {
	return func(req *broker.Request, res *apitypes.Response, logger *slog.Logger) error {
		var params apitypes.TriggerRequest
		if err := req.Decode(&params); err != nil {
			return err
		}
		if err := vestdrv.ValidateCell(params.Cell); err != nil {
			return err
		}
		if err := vestdrv.ValidateSpeed(params.Speed); err != nil {
			return err
		}

		id := resolveTarget(b, resolve.Request{
			DeviceID:  params.DeviceID,
			GameID:    params.GameID,
			PlayerNum: params.PlayerNum,
			PlayerID:  params.PlayerID,
		})
		if id == "" {
			return fmt.Errorf("no device available")
		}
		ctl := b.Registry().Controller(id)
		if ctl == nil {
			return fmt.Errorf("unknown device: %s", id)
		}

		if err := ctl.Trigger(params.Cell, params.Speed); err != nil {
			res.Success = boolp(false)
			res.Message = err.Error()
			return nil
		}
		b.Broadcast("effect_triggered", map[string]any{
			"cell":      params.Cell,
			"speed":     params.Speed,
			"device_id": id,
		})
		res.OK = boolp(true)
		res.Payload = map[string]any{"device_id": id}
		return nil
	}
}

// Stop zeroes every cell on the resolved device.
func Stop(b *broker.Broker) broker.HandlerFunc {
	return func(req *broker.Request, res *apitypes.Response, logger *slog.Logger) error {
		var params apitypes.StopRequest
		if err := req.Decode(&params); err != nil {
			return err
		}
		id := resolveTarget(b, resolve.Request{
			DeviceID:  params.DeviceID,
			GameID:    params.GameID,
			PlayerNum: params.PlayerNum,
			PlayerID:  params.PlayerID,
		})
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

// Status snapshots a device's controller state.
func Status(b *broker.Broker) broker.HandlerFunc {
	return func(req *broker.Request, res *apitypes.Response, logger *slog.Logger) error {
		var params apitypes.StatusRequest
		if err := req.Decode(&params); err != nil {
			return err
		}
		id := params.DeviceID
		if id == "" {
			id = b.Registry().MainID()
		}
		if id == "" {
			return fmt.Errorf("no device selected")
		}
		ctl := b.Registry().Controller(id)
		if ctl == nil {
			return fmt.Errorf("unknown device: %s", id)
		}
		res.Response = apitypes.CmdStatus
		res.Payload = map[string]any{"device_id": id, "status": ctl.Status().ToAPI()}
		return nil
	}
}
