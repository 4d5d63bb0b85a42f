package apitypes

// Canonical event tags. Integration managers additionally emit
// <game>_started, <game>_stopped and <game>_game_event.
const (
	EventDeviceSelected     = "device_selected"
	EventDeviceCleared      = "device_cleared"
	EventDevicesChanged     = "devices_changed"
	EventDeviceConnected    = "device_connected"
	EventDeviceDisconnected = "device_disconnected"
	EventMainDeviceChanged  = "main_device_changed"
	EventMockDeviceCreated  = "mock_device_created"
	EventMockDeviceRemoved  = "mock_device_removed"

	EventConnected    = "connected"
	EventDisconnected = "disconnected"

	EventEffectTriggered = "effect_triggered"
	EventAllStopped      = "all_stopped"
	EventEffectStarted   = "effect_started"
	EventEffectCompleted = "effect_completed"

	EventClientConnected    = "client_connected"
	EventClientDisconnected = "client_disconnected"

	EventError = "error"

	EventPlayerAssigned           = "player_assigned"
	EventPlayerUnassigned         = "player_unassigned"
	EventGamePlayerMappingChanged = "game_player_mapping_changed"
)
