package handler

import (
	"fmt"
	"log/slog"

	"github.com/vestkit/vestd/apitypes"
	"github.com/vestkit/vestd/internal/broker"
)

// SetGamePlayerMapping binds a (game, player slot) pair to a device.
func SetGamePlayerMapping(b *broker.Broker) broker.HandlerFunc {
	return func(req *broker.Request, res *apitypes.Response, logger *slog.Logger) error {
		var params apitypes.SetGamePlayerMappingRequest
		if err := req.Decode(&params); err != nil {
			return err
		}
		if params.GameID == "" || params.DeviceID == "" {
			return fmt.Errorf("game_id and device_id are required")
		}
		if !b.Registry().Has(params.DeviceID) {
			return fmt.Errorf("unknown device: %s", params.DeviceID)
		}
		b.Games().Set(params.GameID, params.PlayerNum, params.DeviceID)
		b.Broadcast("game_player_mapping_changed", map[string]any{
			"game_id":    params.GameID,
			"player_num": params.PlayerNum,
			"device_id":  params.DeviceID,
		})
		res.OK = boolp(true)
		return nil
	}
}

// ClearGamePlayerMapping clears one slot, or the whole game when
// player_num is omitted.
func ClearGamePlayerMapping(b *broker.Broker) broker.HandlerFunc {
	return func(req *broker.Request, res *apitypes.Response, logger *slog.Logger) error {
		var params apitypes.ClearGamePlayerMappingRequest
		if err := req.Decode(&params); err != nil {
			return err
		}
		if params.GameID == "" {
			return fmt.Errorf("game_id is required")
		}
		payload := map[string]any{"game_id": params.GameID, "cleared": true}
		if params.PlayerNum != nil {
			b.Games().Clear(params.GameID, *params.PlayerNum)
			payload["player_num"] = *params.PlayerNum
		} else {
			b.Games().ClearGame(params.GameID)
		}
		b.Broadcast("game_player_mapping_changed", payload)
		res.OK = boolp(true)
		return nil
	}
}

// ListGamePlayerMappings lists bindings, optionally narrowed to one game.
func ListGamePlayerMappings(b *broker.Broker) broker.HandlerFunc {
	return func(req *broker.Request, res *apitypes.Response, logger *slog.Logger) error {
		var params apitypes.ListGamePlayerMappingsRequest
		if err := req.Decode(&params); err != nil {
			return err
		}
		mappings := b.Games().List(params.GameID)
		if mappings == nil {
			mappings = []apitypes.GamePlayerMapping{}
		}
		res.Response = apitypes.CmdListGamePlayerMappings
		res.Payload = map[string]any{"mappings": mappings}
		return nil
	}
}
