// Package player holds the two logical addressing tables: player -> device
// and (game, player slot) -> device. Both are plain in-memory maps with
// idempotent setters, mutated only from the broker loop.
package player

import (
	"fmt"
	"sort"

	"github.com/vestkit/vestd/apitypes"
)

// Manager is the player table. An unassigned player (empty device id)
// resolves to the main device downstream.
type Manager struct {
	players map[string]*entry
}

type entry struct {
	deviceID string
	name     string
}

// NewManager creates an empty player table.
func NewManager() *Manager {
	return &Manager{players: make(map[string]*entry)}
}

// Create registers a player. Re-creating an existing player only updates
// the display name.
func (m *Manager) Create(playerID, name string) {
	if e, ok := m.players[playerID]; ok {
		if name != "" {
			e.name = name
		}
		return
	}
	m.players[playerID] = &entry{name: name}
}

// Assign binds a player to a device, overwriting any previous binding.
func (m *Manager) Assign(playerID, deviceID string) error {
	e, ok := m.players[playerID]
	if !ok {
		return fmt.Errorf("unknown player: %s", playerID)
	}
	e.deviceID = deviceID
	return nil
}

// Unassign clears a player's device binding. The player stays registered.
func (m *Manager) Unassign(playerID string) error {
	e, ok := m.players[playerID]
	if !ok {
		return fmt.Errorf("unknown player: %s", playerID)
	}
	e.deviceID = ""
	return nil
}

// DeviceFor returns the device bound to a player. ok is false for unknown
// players; a known but unassigned player yields ("", true).
func (m *Manager) DeviceFor(playerID string) (string, bool) {
	e, ok := m.players[playerID]
	if !ok {
		return "", false
	}
	return e.deviceID, true
}

// Has reports whether the player is registered.
func (m *Manager) Has(playerID string) bool {
	_, ok := m.players[playerID]
	return ok
}

// List returns all players sorted by id.
func (m *Manager) List() []apitypes.PlayerInfo {
	out := make([]apitypes.PlayerInfo, 0, len(m.players))
	for id, e := range m.players {
		out = append(out, apitypes.PlayerInfo{PlayerID: id, DeviceID: e.deviceID, Name: e.name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out
}

// UnbindDevice clears every player binding that points at deviceID; used
// when a device is removed from the registry.
func (m *Manager) UnbindDevice(deviceID string) {
	for _, e := range m.players {
		if e.deviceID == deviceID {
			e.deviceID = ""
		}
	}
}
