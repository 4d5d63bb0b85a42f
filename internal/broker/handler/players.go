package handler

import (
	"fmt"
	"log/slog"

	"github.com/vestkit/vestd/apitypes"
	"github.com/vestkit/vestd/internal/broker"
)

// CreatePlayer registers a player. Idempotent; re-creating only updates
// the display name.
func CreatePlayer(b *broker.Broker) broker.HandlerFunc {
	return func(req *broker.Request, res *apitypes.Response, logger *slog.Logger) error {
		var params apitypes.CreatePlayerRequest
		if err := req.Decode(&params); err != nil {
			return err
		}
		if params.PlayerID == "" {
			return fmt.Errorf("player_id is required")
		}
		b.Players().Create(params.PlayerID, params.Name)
		res.OK = boolp(true)
		res.Payload = map[string]any{"player_id": params.PlayerID}
		return nil
	}
}

// AssignPlayer binds a player to a registered device.
func AssignPlayer(b *broker.Broker) broker.HandlerFunc {
	return func(req *broker.Request, res *apitypes.Response, logger *slog.Logger) error {
		var params apitypes.AssignPlayerRequest
		if err := req.Decode(&params); err != nil {
			return err
		}
		if params.PlayerID == "" || params.DeviceID == "" {
			return fmt.Errorf("player_id and device_id are required")
		}
		if !b.Registry().Has(params.DeviceID) {
			return fmt.Errorf("unknown device: %s", params.DeviceID)
		}
		if err := b.Players().Assign(params.PlayerID, params.DeviceID); err != nil {
			return err
		}
		b.Broadcast("player_assigned", map[string]any{
			"player_id": params.PlayerID,
			"device_id": params.DeviceID,
		})
		res.OK = boolp(true)
		return nil
	}
}

// UnassignPlayer clears a player's device binding.
func UnassignPlayer(b *broker.Broker) broker.HandlerFunc {
	return func(req *broker.Request, res *apitypes.Response, logger *slog.Logger) error {
		var params apitypes.PlayerRequest
		if err := req.Decode(&params); err != nil {
			return err
		}
		if err := b.Players().Unassign(params.PlayerID); err != nil {
			return err
		}
		b.Broadcast("player_unassigned", map[string]any{"player_id": params.PlayerID})
		res.OK = boolp(true)
		return nil
	}
}

// ListPlayers returns the player table.
func ListPlayers(b *broker.Broker) broker.HandlerFunc {
	return func(req *broker.Request, res *apitypes.Response, logger *slog.Logger) error {
		res.Response = apitypes.CmdListPlayers
		res.Payload = map[string]any{"players": b.Players().List()}
		return nil
	}
}

// GetPlayerDevice returns the device a player is bound to.
func GetPlayerDevice(b *broker.Broker) broker.HandlerFunc {
	return func(req *broker.Request, res *apitypes.Response, logger *slog.Logger) error {
		var params apitypes.PlayerRequest
		if err := req.Decode(&params); err != nil {
			return err
		}
		deviceID, ok := b.Players().DeviceFor(params.PlayerID)
		if !ok {
			return fmt.Errorf("unknown player: %s", params.PlayerID)
		}
		res.Response = apitypes.CmdGetPlayerDevice
		res.Payload = map[string]any{"player_id": params.PlayerID, "device_id": deviceID}
		return nil
	}
}
