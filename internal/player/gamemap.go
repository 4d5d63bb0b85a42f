package player

import (
	"sort"

	"github.com/vestkit/vestd/apitypes"
)

// GameMap binds (game id, player slot) pairs to devices. Slots are small
// positive integers assigned by the game integration.
type GameMap struct {
	games map[string]map[int]string
}

// NewGameMap creates an empty mapping.
func NewGameMap() *GameMap {
	return &GameMap{games: make(map[string]map[int]string)}
}

// Set binds a slot, overwriting any previous binding.
func (g *GameMap) Set(gameID string, playerNum int, deviceID string) {
	slots, ok := g.games[gameID]
	if !ok {
		slots = make(map[int]string)
		g.games[gameID] = slots
	}
	slots[playerNum] = deviceID
}

// Clear removes one slot binding. Removing the last slot drops the game key.
func (g *GameMap) Clear(gameID string, playerNum int) {
	slots, ok := g.games[gameID]
	if !ok {
		return
	}
	delete(slots, playerNum)
	if len(slots) == 0 {
		delete(g.games, gameID)
	}
}

// ClearGame removes every binding for a game.
func (g *GameMap) ClearGame(gameID string) {
	delete(g.games, gameID)
}

// Lookup returns the device bound to (gameID, playerNum), if any.
func (g *GameMap) Lookup(gameID string, playerNum int) (string, bool) {
	slots, ok := g.games[gameID]
	if !ok {
		return "", false
	}
	id, ok := slots[playerNum]
	return id, ok
}

// List returns bindings, optionally narrowed to one game, sorted by
// (game id, slot).
func (g *GameMap) List(gameID string) []apitypes.GamePlayerMapping {
	var out []apitypes.GamePlayerMapping
	for gid, slots := range g.games {
		if gameID != "" && gid != gameID {
			continue
		}
		for num, dev := range slots {
			out = append(out, apitypes.GamePlayerMapping{GameID: gid, PlayerNum: num, DeviceID: dev})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GameID != out[j].GameID {
			return out[i].GameID < out[j].GameID
		}
		return out[i].PlayerNum < out[j].PlayerNum
	})
	return out
}

// UnbindDevice removes every slot pointing at deviceID; used when a device
// is removed from the registry.
func (g *GameMap) UnbindDevice(deviceID string) {
	for gid, slots := range g.games {
		for num, dev := range slots {
			if dev == deviceID {
				delete(slots, num)
			}
		}
		if len(slots) == 0 {
			delete(g.games, gid)
		}
	}
}
