// Package resolve picks the target device for a request using the fixed
// fallback chain: direct device id, game-player mapping, player
// assignment, main device. It is a pure function over the addressing
// tables so the chain can be tested without a broker.
package resolve

// Request carries the optional addressing hints of a command. PlayerNum
// is only meaningful together with GameID.
type Request struct {
	DeviceID  string
	GameID    string
	PlayerNum *int
	PlayerID  string
}

// Tables is the read-only view of the addressing state the resolver
// consults. The registry, player manager and game map satisfy it.
type Tables interface {
	GameDevice(gameID string, playerNum int) (string, bool)
	PlayerDevice(playerID string) (string, bool)
	MainDevice() string
}

// DeviceID resolves a request to a device id, or "" when nothing matches.
// Priority, stopping at the first hit:
//
//  1. the request's explicit device id
//  2. (game id, player num) in the game-player mapping
//  3. the player's assigned device (skipped when unassigned)
//  4. the main device
func DeviceID(req Request, t Tables) string {
	if req.DeviceID != "" {
		return req.DeviceID
	}
	if req.GameID != "" && req.PlayerNum != nil {
		if id, ok := t.GameDevice(req.GameID, *req.PlayerNum); ok {
			return id
		}
	}
	if req.PlayerID != "" {
		if id, ok := t.PlayerDevice(req.PlayerID); ok && id != "" {
			return id
		}
	}
	return t.MainDevice()
}
