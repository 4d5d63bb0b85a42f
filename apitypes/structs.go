// Package apitypes defines the wire schema of the vestd control protocol:
// line-delimited JSON commands, responses and events exchanged over the
// daemon's loopback TCP socket. The daemon and the apiclient package both
// depend on it; it has no other dependencies.
package apitypes

import (
	"encoding/json"
	"fmt"
)

// Command is the envelope of a client request. Command-specific parameters
// live beside cmd/req_id in the same JSON object; handlers decode them from
// the raw line into their own request structs. Unknown fields are ignored.
type Command struct {
	Cmd   string `json:"cmd"`
	ReqID string `json:"req_id,omitempty"`
}

// Response is a per-request reply. Response mirrors the command tag ("ok"
// for generic acknowledgements, "error" for failures). ReqID is echoed iff
// the command carried one. Payload fields are flattened into the top-level
// object on the wire.
type Response struct {
	Response string         `json:"response"`
	ReqID    string         `json:"req_id,omitempty"`
	OK       *bool          `json:"ok,omitempty"`
	Success  *bool          `json:"success,omitempty"`
	Message  string         `json:"message,omitempty"`
	Payload  map[string]any `json:"-"`
}

// MarshalJSON flattens Payload into the top-level response object.
func (r Response) MarshalJSON() ([]byte, error) {
	out := map[string]any{"response": r.Response}
	for k, v := range r.Payload {
		out[k] = v
	}
	if r.ReqID != "" {
		out["req_id"] = r.ReqID
	}
	if r.OK != nil {
		out["ok"] = *r.OK
	}
	if r.Success != nil {
		out["success"] = *r.Success
	}
	if r.Message != "" {
		out["message"] = r.Message
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits the envelope fields back out of the flat object.
func (r *Response) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	name, _ := raw["response"].(string)
	if name == "" {
		return fmt.Errorf("missing response field")
	}
	r.Response = name
	delete(raw, "response")
	if v, ok := raw["req_id"].(string); ok {
		r.ReqID = v
		delete(raw, "req_id")
	}
	if v, ok := raw["ok"].(bool); ok {
		b := v
		r.OK = &b
		delete(raw, "ok")
	}
	if v, ok := raw["success"].(bool); ok {
		b := v
		r.Success = &b
		delete(raw, "success")
	}
	if v, ok := raw["message"].(string); ok {
		r.Message = v
		delete(raw, "message")
	}
	r.Payload = raw
	return nil
}

// IsError reports whether the response is the generic error response.
func (r *Response) IsError() bool { return r.Response == "error" }

// Err converts an error response into a Go error, nil otherwise.
func (r *Response) Err() error {
	if !r.IsError() {
		return nil
	}
	if r.Message != "" {
		return fmt.Errorf("%s", r.Message)
	}
	return fmt.Errorf("request failed")
}

// Event is a broadcast state-change notification. TS is unix seconds with
// fractional precision. Payload fields are flattened on the wire like
// Response payloads.
type Event struct {
	Event   string         `json:"event"`
	TS      float64        `json:"ts"`
	Payload map[string]any `json:"-"`
}

// MarshalJSON flattens Payload into the top-level event object.
func (e Event) MarshalJSON() ([]byte, error) {
	out := map[string]any{"event": e.Event, "ts": e.TS}
	for k, v := range e.Payload {
		out[k] = v
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits the envelope fields back out of the flat object.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	name, _ := raw["event"].(string)
	if name == "" {
		return fmt.Errorf("missing event field")
	}
	e.Event = name
	delete(raw, "event")
	if v, ok := raw["ts"].(float64); ok {
		e.TS = v
		delete(raw, "ts")
	}
	e.Payload = raw
	return nil
}

// DeviceInfo is the wire form of a device descriptor. VendorID and
// ProductID are formatted as "0xHHHH" strings.
type DeviceInfo struct {
	DeviceID     string `json:"device_id,omitempty"`
	VendorID     string `json:"vendor_id"`
	ProductID    string `json:"product_id"`
	Bus          int    `json:"bus"`
	Address      int    `json:"address"`
	SerialNumber string `json:"serial_number,omitempty"`
	IsMock       bool   `json:"is_mock,omitempty"`
	IsMain       bool   `json:"is_main,omitempty"`
}

// Status is a controller status snapshot as carried by status responses.
type Status struct {
	Connected bool   `json:"connected"`
	VendorID  string `json:"vendor_id,omitempty"`
	ProductID string `json:"product_id,omitempty"`
	Bus       int    `json:"bus,omitempty"`
	Address   int    `json:"address,omitempty"`
	Serial    string `json:"serial,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

// PlayerInfo describes one entry of the player table.
type PlayerInfo struct {
	PlayerID string `json:"player_id"`
	DeviceID string `json:"device_id,omitempty"`
	Name     string `json:"name,omitempty"`
}

// GamePlayerMapping is one (game, player slot) -> device binding.
type GamePlayerMapping struct {
	GameID    string `json:"game_id"`
	PlayerNum int    `json:"player_num"`
	DeviceID  string `json:"device_id"`
}

// EffectInfo describes one predefined effect without its step data.
type EffectInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Category    string `json:"category"`
	Steps       int    `json:"steps"`
}

// IntegrationStatus is the common part of every integration manager's
// status payload. Manager-specific fields ride in Extra.
type IntegrationStatus struct {
	Name           string         `json:"name"`
	Enabled        bool           `json:"enabled"`
	Running        bool           `json:"running"`
	EventsReceived int            `json:"events_received"`
	LastEventTS    float64        `json:"last_event_ts,omitempty"`
	LastEventType  string         `json:"last_event_type,omitempty"`
	Extra          map[string]any `json:"extra,omitempty"`
}

// PingPayload is the payload of a ping response.
type PingPayload struct {
	Alive             bool `json:"alive"`
	Connected         bool `json:"connected"`
	HasDeviceSelected bool `json:"has_device_selected"`
	ClientCount       int  `json:"client_count"`
}

// FormatHexID renders a numeric USB id in the canonical "0xHHHH" wire form.
func FormatHexID(id uint16) string { return fmt.Sprintf("0x%04x", id) }
