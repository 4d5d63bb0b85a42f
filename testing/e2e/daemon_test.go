package e2e_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vestkit/vestd/apiclient"
	"github.com/vestkit/vestd/apitypes"
	"github.com/vestkit/vestd/internal/daemon"
	"github.com/vestkit/vestd/internal/vestdrv"
)

func discardLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

// startDaemon boots a daemon on an ephemeral port with no PID file.
func startDaemon(t *testing.T, opts daemon.Options) (*daemon.Daemon, string) {
	t.Helper()
	opts.Host = "127.0.0.1"
	opts.Port = 0
	opts.NoPIDFile = true
	if opts.Driver == nil {
		opts.Driver = vestdrv.NewStub()
	}
	d := daemon.New(opts, discardLogger())
	require.NoError(t, d.Start())
	t.Cleanup(d.Stop)
	return d, fmt.Sprintf("127.0.0.1:%d", d.Port())
}

func dialClient(t *testing.T, addr string) *apiclient.Client {
	t.Helper()
	c, err := apiclient.New(addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// waitEvent reads events until one with the given tag arrives.
func waitEvent(t *testing.T, ch <-chan apitypes.Event, name string) apitypes.Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("event channel closed while waiting for %s", name)
			}
			if ev.Event == name {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", name)
		}
	}
}

// waitFor polls cond until it holds.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func stubVest(serial string, bus, addr int) vestdrv.DeviceDesc {
	return vestdrv.DeviceDesc{VendorID: 0x16c0, ProductID: 0x27d9, Bus: bus, Address: addr, Serial: serial}
}

func TestSelectTriggerStatus(t *testing.T) {
	drv := vestdrv.NewStub(stubVest("TSV-A", 1, 4))
	_, addr := startDaemon(t, daemon.Options{Driver: drv})
	c := dialClient(t, addr)
	events := c.Events()

	id, err := c.SelectDevice(apitypes.SelectDeviceRequest{Serial: "TSV-A"})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	ev := waitEvent(t, events, apitypes.EventDeviceSelected)
	assert.Equal(t, id, ev.Payload["device_id"])

	res, err := c.Trigger(apitypes.TriggerRequest{Cell: 2, Speed: 5})
	require.NoError(t, err)
	require.NotNil(t, res.OK)
	assert.True(t, *res.OK)
	ev = waitEvent(t, events, apitypes.EventEffectTriggered)
	assert.EqualValues(t, 2, ev.Payload["cell"])
	assert.EqualValues(t, 5, ev.Payload["speed"])

	sends := drv.Sends()
	require.NotEmpty(t, sends)
	assert.Equal(t, vestdrv.StubSend{Serial: "TSV-A", Cell: 2, Speed: 5}, sends[len(sends)-1])

	st, err := c.Status("")
	require.NoError(t, err)
	assert.True(t, st.Connected)
	assert.Equal(t, "TSV-A", st.Serial)
}

func TestSelectDeviceIdempotent(t *testing.T) {
	drv := vestdrv.NewStub(stubVest("TSV-A", 1, 4))
	_, addr := startDaemon(t, daemon.Options{Driver: drv})
	c := dialClient(t, addr)
	events := c.Events()

	first, err := c.SelectDevice(apitypes.SelectDeviceRequest{Serial: "TSV-A"})
	require.NoError(t, err)
	waitEvent(t, events, apitypes.EventDeviceSelected)

	second, err := c.SelectDevice(apitypes.SelectDeviceRequest{Serial: "TSV-A"})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	waitEvent(t, events, apitypes.EventDeviceSelected)

	devices, err := c.ListConnectedDevices()
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.True(t, devices[0].IsMain)

	// Re-selecting must not announce the device a second time.
	connected := 0
	for {
		select {
		case ev := <-events:
			if ev.Event == apitypes.EventDeviceConnected {
				connected++
			}
			continue
		case <-time.After(200 * time.Millisecond):
		}
		break
	}
	assert.LessOrEqual(t, connected, 1)
}

func TestTriggerResolutionOrder(t *testing.T) {
	drv := vestdrv.NewStub(stubVest("TSV-A", 1, 4), stubVest("TSV-B", 1, 5))
	_, addr := startDaemon(t, daemon.Options{Driver: drv})
	c := dialClient(t, addr)

	idA, err := c.SelectDevice(apitypes.SelectDeviceRequest{Serial: "TSV-A"})
	require.NoError(t, err)
	idB, err := c.SelectDevice(apitypes.SelectDeviceRequest{Serial: "TSV-B"})
	require.NoError(t, err)
	require.NoError(t, c.SetMainDevice(idA))

	require.NoError(t, c.CreatePlayer("p1", "Player One"))
	require.NoError(t, c.AssignPlayer("p1", idB))
	require.NoError(t, c.SetGamePlayerMapping("arena", 2, idB))

	lastSerial := func() string {
		sends := drv.Sends()
		require.NotEmpty(t, sends)
		return sends[len(sends)-1].Serial
	}

	// No hints: main device.
	_, err = c.Trigger(apitypes.TriggerRequest{Cell: 0, Speed: 1})
	require.NoError(t, err)
	assert.Equal(t, "TSV-A", lastSerial())

	// Player binding.
	_, err = c.Trigger(apitypes.TriggerRequest{Cell: 0, Speed: 2, PlayerID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, "TSV-B", lastSerial())

	// Game slot binding.
	slot := 2
	_, err = c.Trigger(apitypes.TriggerRequest{Cell: 0, Speed: 3, GameID: "arena", PlayerNum: &slot})
	require.NoError(t, err)
	assert.Equal(t, "TSV-B", lastSerial())

	// Explicit device id beats every other hint.
	_, err = c.Trigger(apitypes.TriggerRequest{Cell: 0, Speed: 4, DeviceID: idA, PlayerID: "p1", GameID: "arena", PlayerNum: &slot})
	require.NoError(t, err)
	assert.Equal(t, "TSV-A", lastSerial())

	// Unmapped game slot falls back to main.
	other := 7
	_, err = c.Trigger(apitypes.TriggerRequest{Cell: 0, Speed: 5, GameID: "arena", PlayerNum: &other})
	require.NoError(t, err)
	assert.Equal(t, "TSV-A", lastSerial())
}

func TestTriggerRejectsOutOfRange(t *testing.T) {
	drv := vestdrv.NewStub(stubVest("TSV-A", 1, 4))
	_, addr := startDaemon(t, daemon.Options{Driver: drv})
	c := dialClient(t, addr)

	_, err := c.SelectDevice(apitypes.SelectDeviceRequest{Serial: "TSV-A"})
	require.NoError(t, err)

	_, err = c.Trigger(apitypes.TriggerRequest{Cell: 9, Speed: 5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cell")

	_, err = c.Trigger(apitypes.TriggerRequest{Cell: 0, Speed: 11})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "speed")

	assert.Empty(t, drv.Sends())
}

func TestStopZeroesAllCells(t *testing.T) {
	drv := vestdrv.NewStub(stubVest("TSV-A", 1, 4))
	_, addr := startDaemon(t, daemon.Options{Driver: drv})
	c := dialClient(t, addr)
	events := c.Events()

	_, err := c.SelectDevice(apitypes.SelectDeviceRequest{Serial: "TSV-A"})
	require.NoError(t, err)

	require.NoError(t, c.Stop(apitypes.StopRequest{}))
	waitEvent(t, events, apitypes.EventAllStopped)

	sends := drv.Sends()
	require.Len(t, sends, vestdrv.Cells)
	for i, s := range sends {
		assert.Equal(t, i, s.Cell)
		assert.Equal(t, 0, s.Speed)
	}
}

func TestMockDeviceCap(t *testing.T) {
	_, addr := startDaemon(t, daemon.Options{MockDevices: 19})
	c := dialClient(t, addr)

	id, err := c.CreateMockDevice()
	require.NoError(t, err)
	require.NotEmpty(t, id)

	_, err = c.CreateMockDevice()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limit")

	require.NoError(t, c.RemoveMockDevice(id))
	_, err = c.CreateMockDevice()
	require.NoError(t, err)
}

func TestEventTimestampsStrictlyIncrease(t *testing.T) {
	_, addr := startDaemon(t, daemon.Options{})
	c := dialClient(t, addr)
	events := c.Events()

	for i := 0; i < 5; i++ {
		_, err := c.CreateMockDevice()
		require.NoError(t, err)
	}

	var stamps []float64
	deadline := time.After(2 * time.Second)
	for len(stamps) < 10 {
		select {
		case ev := <-events:
			stamps = append(stamps, ev.TS)
		case <-deadline:
			t.Fatalf("only %d events arrived", len(stamps))
		}
	}
	for i := 1; i < len(stamps); i++ {
		assert.Greater(t, stamps[i], stamps[i-1])
	}
}

func TestPlayEffectEventOrdering(t *testing.T) {
	_, addr := startDaemon(t, daemon.Options{MockDevices: 1})

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	_, err = conn.Write([]byte(`{"cmd":"play_effect","name":"heartbeat","req_id":"42"}` + "\n"))
	require.NoError(t, err)

	// The effect_started broadcast must precede the command's response.
	var seen []string
	sawStarted := false
	for scanner.Scan() {
		var probe struct {
			Event    string `json:"event"`
			Response string `json:"response"`
			ReqID    string `json:"req_id"`
		}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &probe))
		if probe.Event != "" {
			seen = append(seen, probe.Event)
			if probe.Event == apitypes.EventEffectStarted {
				sawStarted = true
			}
			continue
		}
		require.Equal(t, "42", probe.ReqID)
		break
	}
	require.NoError(t, scanner.Err())
	assert.True(t, sawStarted, "effect_started not seen before response, events: %v", seen)

	// The sequencer then reports steps and completion.
	sawCompleted := false
	for !sawCompleted && scanner.Scan() {
		var probe struct {
			Event string `json:"event"`
		}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &probe))
		if probe.Event == apitypes.EventEffectCompleted {
			sawCompleted = true
		}
	}
	assert.True(t, sawCompleted, "effect_completed never arrived")
}

func TestMalformedJSONKeepsConnectionOpen(t *testing.T) {
	_, addr := startDaemon(t, daemon.Options{})

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	scanner := bufio.NewScanner(conn)
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	readResponse := func() map[string]any {
		for scanner.Scan() {
			var obj map[string]any
			require.NoError(t, json.Unmarshal(scanner.Bytes(), &obj))
			if _, isEvent := obj["event"]; isEvent {
				continue
			}
			return obj
		}
		t.Fatalf("no response line: %v", scanner.Err())
		return nil
	}

	_, err = conn.Write([]byte("this is not json\n"))
	require.NoError(t, err)
	res := readResponse()
	assert.Equal(t, "error", res["response"])

	// Unknown command also errors without dropping the connection.
	_, err = conn.Write([]byte(`{"cmd":"warp_drive"}` + "\n"))
	require.NoError(t, err)
	res = readResponse()
	assert.Equal(t, "error", res["response"])

	// The connection still serves commands; req_id is echoed only when sent.
	_, err = conn.Write([]byte(`{"cmd":"ping","req_id":"abc"}` + "\n"))
	require.NoError(t, err)
	res = readResponse()
	assert.Equal(t, "ping", res["response"])
	assert.Equal(t, "abc", res["req_id"])

	_, err = conn.Write([]byte(`{"cmd":"ping"}` + "\n"))
	require.NoError(t, err)
	res = readResponse()
	assert.Equal(t, "ping", res["response"])
	_, hasReqID := res["req_id"]
	assert.False(t, hasReqID)
}

func TestOversizedLineClosesConnection(t *testing.T) {
	_, addr := startDaemon(t, daemon.Options{})

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	line := append(bytes.Repeat([]byte("a"), 1<<20+16), '\n')
	_, _ = conn.Write(line)

	// No response; the daemon closes without writing anything but possibly
	// the client_connected broadcast.
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		var obj map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &obj))
		_, isEvent := obj["event"]
		assert.True(t, isEvent, "unexpected non-event line: %s", scanner.Text())
	}
	// EOF (or reset) rather than a response.
	if err := scanner.Err(); err != nil {
		assert.False(t, strings.Contains(err.Error(), "timeout"), "connection was not closed: %v", err)
	}
}

func TestCS2IntegrationEndToEnd(t *testing.T) {
	drv := vestdrv.NewStub(stubVest("TSV-A", 1, 4))
	_, addr := startDaemon(t, daemon.Options{Driver: drv})
	c := dialClient(t, addr)
	events := c.Events()

	_, err := c.SelectDevice(apitypes.SelectDeviceRequest{Serial: "TSV-A"})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	gsiPort := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	res, err := c.StartIntegration("cs2", map[string]any{"gsi_port": gsiPort})
	require.NoError(t, err)
	require.NotNil(t, res.Success)
	require.True(t, *res.Success)
	waitEvent(t, events, "cs2_started")

	body := `{"player":{"state":{"health":80}},"previously":{"player":{"state":{"health":100}}}}`
	url := fmt.Sprintf("http://127.0.0.1:%d/", gsiPort)
	var resp *http.Response
	waitFor(t, func() bool {
		resp, err = http.Post(url, "application/json", strings.NewReader(body))
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, "GSI endpoint never accepted the payload")

	ev := waitEvent(t, events, "cs2_game_event")
	assert.Equal(t, "damage", ev.Payload["event_type"])
	assert.EqualValues(t, 20, ev.Payload["amount"])

	// 20 damage pulses the two front-upper cells.
	waitFor(t, func() bool { return len(drv.Sends()) >= 2 }, "damage never reached the vest")
	sends := drv.Sends()
	cells := []int{sends[0].Cell, sends[1].Cell}
	assert.ElementsMatch(t, []int{0, 1}, cells)

	st, err := c.IntegrationStatus("cs2")
	require.NoError(t, err)
	assert.True(t, st.Running)
	assert.Equal(t, 1, st.EventsReceived)

	require.NoError(t, c.StopIntegration("cs2"))
	waitEvent(t, events, "cs2_stopped")
}

func TestListEffectsAndIntegrations(t *testing.T) {
	_, addr := startDaemon(t, daemon.Options{})
	c := dialClient(t, addr)

	effects, err := c.ListEffects()
	require.NoError(t, err)
	names := make([]string, 0, len(effects))
	for _, e := range effects {
		names = append(names, e.Name)
	}
	assert.Contains(t, names, "heartbeat")
	assert.Contains(t, names, "impact_all")

	integrations, err := c.ListIntegrations()
	require.NoError(t, err)
	got := make([]string, 0, len(integrations))
	for _, st := range integrations {
		got = append(got, st.Name)
		assert.False(t, st.Running)
	}
	assert.Contains(t, got, "arena")
	assert.Contains(t, got, "cs2")
}

func TestPingAndClientCount(t *testing.T) {
	_, addr := startDaemon(t, daemon.Options{MockDevices: 1})
	c := dialClient(t, addr)

	p, err := c.Ping()
	require.NoError(t, err)
	assert.True(t, p.Alive)
	assert.True(t, p.HasDeviceSelected)
	assert.Equal(t, 1, p.ClientCount)

	c2 := dialClient(t, addr)
	waitFor(t, func() bool {
		p, err := c2.Ping()
		return err == nil && p.ClientCount == 2
	}, "second client never counted")
}

func TestShutdownCommand(t *testing.T) {
	d, addr := startDaemon(t, daemon.Options{})
	c := dialClient(t, addr)

	require.NoError(t, c.Shutdown())
	select {
	case <-d.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop after shutdown command")
	}

	_, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
	assert.Error(t, err)
}
