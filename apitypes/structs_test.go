package apitypes_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vestkit/vestd/apitypes"
)

func TestResponsePayloadFlattening(t *testing.T) {
	ok := true
	r := apitypes.Response{
		Response: "ok",
		ReqID:    "r1",
		OK:       &ok,
		Payload:  map[string]any{"device_id": "device_abc"},
	}
	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"response":"ok","req_id":"r1","ok":true,"device_id":"device_abc"}`, string(b))

	var back apitypes.Response
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, "ok", back.Response)
	assert.Equal(t, "r1", back.ReqID)
	require.NotNil(t, back.OK)
	assert.True(t, *back.OK)
	assert.Equal(t, "device_abc", back.Payload["device_id"])
}

func TestResponseErr(t *testing.T) {
	var r apitypes.Response
	require.NoError(t, json.Unmarshal([]byte(`{"response":"error","message":"unknown device: x"}`), &r))
	require.Error(t, r.Err())
	assert.Contains(t, r.Err().Error(), "unknown device")

	require.NoError(t, json.Unmarshal([]byte(`{"response":"ok"}`), &r))
	assert.NoError(t, r.Err())
}

func TestEventRoundTrip(t *testing.T) {
	e := apitypes.Event{
		Event:   apitypes.EventEffectTriggered,
		TS:      1724505600.25,
		Payload: map[string]any{"cell": 2, "speed": 5},
	}
	b, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"effect_triggered","ts":1724505600.25,"cell":2,"speed":5}`, string(b))

	var back apitypes.Event
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, apitypes.EventEffectTriggered, back.Event)
	assert.Equal(t, 1724505600.25, back.TS)
	assert.Equal(t, float64(2), back.Payload["cell"])
}

func TestFormatHexID(t *testing.T) {
	assert.Equal(t, "0x045e", apitypes.FormatHexID(0x045e))
	assert.Equal(t, "0x0001", apitypes.FormatHexID(1))
}
