package apitypes

// Command tags form a closed set; the dispatcher rejects anything else.
// Integration commands follow the <game>_start / <game>_stop /
// <game>_status / <game>_event pattern and are registered per manager.
const (
	CmdPing = "ping"

	CmdList                 = "list"
	CmdListConnectedDevices = "list_connected_devices"
	CmdGetSelectedDevice    = "get_selected_device"

	CmdSelectDevice = "select_device"
	CmdClearDevice  = "clear_device"

	CmdSetMainDevice    = "set_main_device"
	CmdDisconnectDevice = "disconnect_device"
	CmdCreateMockDevice = "create_mock_device"
	CmdRemoveMockDevice = "remove_mock_device"

	CmdCreatePlayer    = "create_player"
	CmdAssignPlayer    = "assign_player"
	CmdUnassignPlayer  = "unassign_player"
	CmdListPlayers     = "list_players"
	CmdGetPlayerDevice = "get_player_device"

	CmdSetGamePlayerMapping   = "set_game_player_mapping"
	CmdClearGamePlayerMapping = "clear_game_player_mapping"
	CmdListGamePlayerMappings = "list_game_player_mappings"

	CmdConnect    = "connect"
	CmdDisconnect = "disconnect"
	CmdTrigger    = "trigger"
	CmdStop       = "stop"

	CmdStatus = "status"

	CmdPlayEffect  = "play_effect"
	CmdListEffects = "list_effects"
	CmdStopEffect  = "stop_effect"

	CmdListIntegrations = "list_integrations"

	CmdShutdown = "shutdown"
)

// SelectDeviceRequest selects a device by serial number or by bus+address.
type SelectDeviceRequest struct {
	Serial  string `json:"serial,omitempty"`
	Bus     *int   `json:"bus,omitempty"`
	Address *int   `json:"address,omitempty"`
}

// DeviceRequest addresses a single registered device.
type DeviceRequest struct {
	DeviceID string `json:"device_id"`
}

// TriggerRequest fires one actuator cell. DeviceID, GameID/PlayerNum and
// PlayerID are optional addressing hints consumed by the resolver in that
// priority order; when all are absent the main device is targeted.
type TriggerRequest struct {
	Cell      int    `json:"cell"`
	Speed     int    `json:"speed"`
	DeviceID  string `json:"device_id,omitempty"`
	PlayerID  string `json:"player_id,omitempty"`
	GameID    string `json:"game_id,omitempty"`
	PlayerNum *int   `json:"player_num,omitempty"`
}

// StopRequest zeroes all cells on the addressed device (same resolution
// rules as TriggerRequest).
type StopRequest struct {
	DeviceID  string `json:"device_id,omitempty"`
	PlayerID  string `json:"player_id,omitempty"`
	GameID    string `json:"game_id,omitempty"`
	PlayerNum *int   `json:"player_num,omitempty"`
}

// StatusRequest snapshots a device; empty DeviceID means the main device.
type StatusRequest struct {
	DeviceID string `json:"device_id,omitempty"`
}

// CreatePlayerRequest registers a player, optionally with a display name.
type CreatePlayerRequest struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name,omitempty"`
}

// AssignPlayerRequest binds a player to a device.
type AssignPlayerRequest struct {
	PlayerID string `json:"player_id"`
	DeviceID string `json:"device_id"`
}

// PlayerRequest addresses a single player.
type PlayerRequest struct {
	PlayerID string `json:"player_id"`
}

// SetGamePlayerMappingRequest binds a (game, player slot) to a device.
type SetGamePlayerMappingRequest struct {
	GameID    string `json:"game_id"`
	PlayerNum int    `json:"player_num"`
	DeviceID  string `json:"device_id"`
}

// ClearGamePlayerMappingRequest clears one slot, or every slot of the game
// when PlayerNum is omitted.
type ClearGamePlayerMappingRequest struct {
	GameID    string `json:"game_id"`
	PlayerNum *int   `json:"player_num,omitempty"`
}

// ListGamePlayerMappingsRequest narrows the listing to one game when set.
type ListGamePlayerMappingsRequest struct {
	GameID string `json:"game_id,omitempty"`
}

// PlayEffectRequest starts a predefined effect sequence by name.
type PlayEffectRequest struct {
	Name     string `json:"name"`
	DeviceID string `json:"device_id,omitempty"`
}
