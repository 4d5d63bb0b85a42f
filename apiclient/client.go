package apiclient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vestkit/vestd/apitypes"
)

// Client provides a typed interface to the vestd control protocol over a
// persistent Transport connection.
type Client struct{ transport *Transport }

// New connects a high-level client to the daemon at addr (host:port).
func New(addr string) (*Client, error) {
	t, err := Dial(addr)
	if err != nil {
		return nil, err
	}
	return &Client{transport: t}, nil
}

// NewWithConfig connects with custom transport timeouts.
func NewWithConfig(addr string, cfg *Config) (*Client, error) {
	t, err := DialWithConfig(addr, cfg)
	if err != nil {
		return nil, err
	}
	return &Client{transport: t}, nil
}

// WithTransport wraps an existing Transport; useful for tests.
func WithTransport(t *Transport) *Client { return &Client{transport: t} }

// Close shuts the underlying connection down.
func (c *Client) Close() error { return c.transport.Close() }

// Events returns the broadcast stream of this connection.
func (c *Client) Events() <-chan apitypes.Event { return c.transport.Events() }

// do sends a command and converts error responses into Go errors.
func (c *Client) do(ctx context.Context, cmd string, params any) (*apitypes.Response, error) {
	res, err := c.transport.DoCtx(ctx, cmd, params)
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// payloadAs decodes one payload field into a typed value.
func payloadAs[T any](res *apitypes.Response, key string) (T, error) {
	var out T
	v, ok := res.Payload[key]
	if !ok {
		return out, fmt.Errorf("response missing %s field", key)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode %s: %w", key, err)
	}
	return out, nil
}

// Ping checks daemon liveness.
func (c *Client) Ping() (*apitypes.PingPayload, error) {
	return c.PingCtx(context.Background())
}

// PingCtx is the context-aware version of Ping.
func (c *Client) PingCtx(ctx context.Context) (*apitypes.PingPayload, error) {
	res, err := c.do(ctx, apitypes.CmdPing, nil)
	if err != nil {
		return nil, err
	}
	var out apitypes.PingPayload
	raw, err := json.Marshal(res.Payload)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SelectDevice registers a vest and makes it the main device. Returns the
// device id.
func (c *Client) SelectDevice(req apitypes.SelectDeviceRequest) (string, error) {
	res, err := c.do(context.Background(), apitypes.CmdSelectDevice, req)
	if err != nil {
		return "", err
	}
	return payloadAs[string](res, "device_id")
}

// ClearDevice removes the main device from the registry.
func (c *Client) ClearDevice() error {
	_, err := c.do(context.Background(), apitypes.CmdClearDevice, nil)
	return err
}

// List enumerates vests visible on the bus plus registered mocks.
func (c *Client) List() ([]apitypes.DeviceInfo, error) {
	res, err := c.do(context.Background(), apitypes.CmdList, nil)
	if err != nil {
		return nil, err
	}
	return payloadAs[[]apitypes.DeviceInfo](res, "devices")
}

// ListConnectedDevices lists every registered device.
func (c *Client) ListConnectedDevices() ([]apitypes.DeviceInfo, error) {
	res, err := c.do(context.Background(), apitypes.CmdListConnectedDevices, nil)
	if err != nil {
		return nil, err
	}
	return payloadAs[[]apitypes.DeviceInfo](res, "devices")
}

// GetSelectedDevice returns the main device's descriptor.
func (c *Client) GetSelectedDevice() (*apitypes.DeviceInfo, error) {
	res, err := c.do(context.Background(), apitypes.CmdGetSelectedDevice, nil)
	if err != nil {
		return nil, err
	}
	info, err := payloadAs[apitypes.DeviceInfo](res, "device")
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// SetMainDevice designates the default target device.
func (c *Client) SetMainDevice(deviceID string) error {
	_, err := c.do(context.Background(), apitypes.CmdSetMainDevice,
		apitypes.DeviceRequest{DeviceID: deviceID})
	return err
}

// DisconnectDevice removes a device from the registry.
func (c *Client) DisconnectDevice(deviceID string) error {
	_, err := c.do(context.Background(), apitypes.CmdDisconnectDevice,
		apitypes.DeviceRequest{DeviceID: deviceID})
	return err
}

// CreateMockDevice registers a simulated vest and returns its id.
func (c *Client) CreateMockDevice() (string, error) {
	res, err := c.do(context.Background(), apitypes.CmdCreateMockDevice, nil)
	if err != nil {
		return "", err
	}
	return payloadAs[string](res, "device_id")
}

// RemoveMockDevice drops a mock device.
func (c *Client) RemoveMockDevice(deviceID string) error {
	_, err := c.do(context.Background(), apitypes.CmdRemoveMockDevice,
		apitypes.DeviceRequest{DeviceID: deviceID})
	return err
}

// CreatePlayer registers a player.
func (c *Client) CreatePlayer(playerID, name string) error {
	_, err := c.do(context.Background(), apitypes.CmdCreatePlayer,
		apitypes.CreatePlayerRequest{PlayerID: playerID, Name: name})
	return err
}

// AssignPlayer binds a player to a device.
func (c *Client) AssignPlayer(playerID, deviceID string) error {
	_, err := c.do(context.Background(), apitypes.CmdAssignPlayer,
		apitypes.AssignPlayerRequest{PlayerID: playerID, DeviceID: deviceID})
	return err
}

// UnassignPlayer clears a player's device binding.
func (c *Client) UnassignPlayer(playerID string) error {
	_, err := c.do(context.Background(), apitypes.CmdUnassignPlayer,
		apitypes.PlayerRequest{PlayerID: playerID})
	return err
}

// ListPlayers returns the player table.
func (c *Client) ListPlayers() ([]apitypes.PlayerInfo, error) {
	res, err := c.do(context.Background(), apitypes.CmdListPlayers, nil)
	if err != nil {
		return nil, err
	}
	return payloadAs[[]apitypes.PlayerInfo](res, "players")
}

// GetPlayerDevice returns the device a player is bound to.
func (c *Client) GetPlayerDevice(playerID string) (string, error) {
	res, err := c.do(context.Background(), apitypes.CmdGetPlayerDevice,
		apitypes.PlayerRequest{PlayerID: playerID})
	if err != nil {
		return "", err
	}
	return payloadAs[string](res, "device_id")
}

// SetGamePlayerMapping binds a (game, player slot) pair to a device.
func (c *Client) SetGamePlayerMapping(gameID string, playerNum int, deviceID string) error {
	_, err := c.do(context.Background(), apitypes.CmdSetGamePlayerMapping,
		apitypes.SetGamePlayerMappingRequest{GameID: gameID, PlayerNum: playerNum, DeviceID: deviceID})
	return err
}

// ClearGamePlayerMapping clears one slot, or the whole game when
// playerNum is nil.
func (c *Client) ClearGamePlayerMapping(gameID string, playerNum *int) error {
	_, err := c.do(context.Background(), apitypes.CmdClearGamePlayerMapping,
		apitypes.ClearGamePlayerMappingRequest{GameID: gameID, PlayerNum: playerNum})
	return err
}

// ListGamePlayerMappings lists bindings, optionally narrowed to one game.
func (c *Client) ListGamePlayerMappings(gameID string) ([]apitypes.GamePlayerMapping, error) {
	res, err := c.do(context.Background(), apitypes.CmdListGamePlayerMappings,
		apitypes.ListGamePlayerMappingsRequest{GameID: gameID})
	if err != nil {
		return nil, err
	}
	return payloadAs[[]apitypes.GamePlayerMapping](res, "mappings")
}

// Connect (re)opens the USB session of a device; empty id means main.
func (c *Client) Connect(deviceID string) (*apitypes.Status, error) {
	res, err := c.do(context.Background(), apitypes.CmdConnect,
		apitypes.StatusRequest{DeviceID: deviceID})
	if err != nil {
		return nil, err
	}
	st, err := payloadAs[apitypes.Status](res, "status")
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// Disconnect closes a device's USB session.
func (c *Client) Disconnect(deviceID string) error {
	_, err := c.do(context.Background(), apitypes.CmdDisconnect,
		apitypes.StatusRequest{DeviceID: deviceID})
	return err
}

// Trigger fires one actuator cell on the resolved device.
func (c *Client) Trigger(req apitypes.TriggerRequest) (*apitypes.Response, error) {
	return c.do(context.Background(), apitypes.CmdTrigger, req)
}

// Stop zeroes every cell on the resolved device.
func (c *Client) Stop(req apitypes.StopRequest) error {
	_, err := c.do(context.Background(), apitypes.CmdStop, req)
	return err
}

// Status snapshots a device's controller state; empty id means main.
func (c *Client) Status(deviceID string) (*apitypes.Status, error) {
	res, err := c.do(context.Background(), apitypes.CmdStatus,
		apitypes.StatusRequest{DeviceID: deviceID})
	if err != nil {
		return nil, err
	}
	st, err := payloadAs[apitypes.Status](res, "status")
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// PlayEffect starts a predefined effect by name.
func (c *Client) PlayEffect(name, deviceID string) error {
	_, err := c.do(context.Background(), apitypes.CmdPlayEffect,
		apitypes.PlayEffectRequest{Name: name, DeviceID: deviceID})
	return err
}

// ListEffects returns the effect library's summaries.
func (c *Client) ListEffects() ([]apitypes.EffectInfo, error) {
	res, err := c.do(context.Background(), apitypes.CmdListEffects, nil)
	if err != nil {
		return nil, err
	}
	return payloadAs[[]apitypes.EffectInfo](res, "effects")
}

// StopEffect zeroes all cells; running effect tasks are not cancelled.
func (c *Client) StopEffect(deviceID string) error {
	_, err := c.do(context.Background(), apitypes.CmdStopEffect,
		apitypes.PlayEffectRequest{DeviceID: deviceID})
	return err
}

// StartIntegration sends <game>_start with manager-specific parameters.
func (c *Client) StartIntegration(game string, params any) (*apitypes.Response, error) {
	return c.do(context.Background(), game+"_start", params)
}

// StopIntegration sends <game>_stop.
func (c *Client) StopIntegration(game string) error {
	_, err := c.do(context.Background(), game+"_stop", nil)
	return err
}

// IntegrationStatus sends <game>_status.
func (c *Client) IntegrationStatus(game string) (*apitypes.IntegrationStatus, error) {
	res, err := c.do(context.Background(), game+"_status", nil)
	if err != nil {
		return nil, err
	}
	st, err := payloadAs[apitypes.IntegrationStatus](res, "status")
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// SendIntegrationEvent sends <game>_event with an inline payload.
func (c *Client) SendIntegrationEvent(game string, params any) error {
	_, err := c.do(context.Background(), game+"_event", params)
	return err
}

// ListIntegrations returns the status of every registered manager.
func (c *Client) ListIntegrations() ([]apitypes.IntegrationStatus, error) {
	res, err := c.do(context.Background(), apitypes.CmdListIntegrations, nil)
	if err != nil {
		return nil, err
	}
	return payloadAs[[]apitypes.IntegrationStatus](res, "integrations")
}

// Shutdown asks the daemon to stop.
func (c *Client) Shutdown() error {
	_, err := c.do(context.Background(), apitypes.CmdShutdown, nil)
	return err
}
