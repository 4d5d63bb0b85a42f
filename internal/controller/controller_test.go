package controller_test

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vestkit/vestd/internal/controller"
	"github.com/vestkit/vestd/internal/vestdrv"
)

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func oneVest() *vestdrv.StubDriver {
	return vestdrv.NewStub(vestdrv.DeviceDesc{
		VendorID: 0x16c0, ProductID: 0x27d9, Bus: 1, Address: 4, Serial: "TSV-A",
	})
}

func TestVestConnectAndTrigger(t *testing.T) {
	drv := oneVest()
	v := controller.NewVest(drv, discard())

	st := v.ConnectToDevice(vestdrv.BySerial("TSV-A"))
	require.True(t, st.Connected)
	assert.Equal(t, "TSV-A", st.Serial)

	require.NoError(t, v.Trigger(2, 5))
	sends := drv.Sends()
	require.Len(t, sends, 1)
	assert.Equal(t, vestdrv.StubSend{Serial: "TSV-A", Cell: 2, Speed: 5}, sends[0])
}

func TestVestImplicitConnectOnTrigger(t *testing.T) {
	drv := oneVest()
	v := controller.NewVest(drv, discard())

	require.NoError(t, v.Trigger(0, 3), "trigger on a fresh controller connects implicitly")
	assert.True(t, v.Status().Connected)

	drv.FailOpen(errors.New("device busy"))
	v.Disconnect()
	err := v.Trigger(0, 3)
	require.Error(t, err)
	assert.False(t, v.Status().Connected)
	assert.Contains(t, v.Status().LastError, "device busy")
}

func TestVestRejectsOutOfRange(t *testing.T) {
	v := controller.NewVest(oneVest(), discard())
	assert.Error(t, v.Trigger(8, 5))
	assert.Error(t, v.Trigger(-1, 5))
	assert.Error(t, v.Trigger(0, 11))
	assert.Error(t, v.Trigger(0, -1))
}

func TestVestConnectFailureSetsLastError(t *testing.T) {
	drv := oneVest()
	drv.FailOpen(errors.New("claim failed"))
	v := controller.NewVest(drv, discard())

	st := v.ConnectToDevice(vestdrv.Any())
	assert.False(t, st.Connected)
	assert.Contains(t, st.LastError, "claim failed")
}

func TestVestStopAllBestEffort(t *testing.T) {
	drv := oneVest()
	v := controller.NewVest(drv, discard())
	require.True(t, v.Connect().Connected)

	drv.FailSend(errors.New("pipe error"))
	v.StopAll() // must not panic, failures suppressed
	drv.FailSend(nil)

	v.StopAll()
	sends := drv.Sends()
	require.Len(t, sends, 8)
	for i, s := range sends {
		assert.Equal(t, i, s.Cell)
		assert.Equal(t, 0, s.Speed)
	}
}

func TestVestDisconnectIdempotent(t *testing.T) {
	v := controller.NewVest(oneVest(), discard())
	v.Disconnect()
	v.Disconnect()
	require.True(t, v.Connect().Connected)
	v.Disconnect()
	v.Disconnect()
	assert.False(t, v.Status().Connected)
}

func TestMockRingAndSentinel(t *testing.T) {
	m := controller.NewMock("MOCK-001", discard())
	assert.True(t, m.Status().Connected)

	require.NoError(t, m.Trigger(1, 4))
	m.StopAll()
	trigs := m.Triggers()
	require.Len(t, trigs, 2)
	assert.Equal(t, controller.MockTrigger{Cell: 1, Speed: 4}, trigs[0])
	assert.Equal(t, controller.MockTrigger{Cell: -1, Speed: 0}, trigs[1])

	assert.Error(t, m.Trigger(9, 1))
}

func TestMockRingBounded(t *testing.T) {
	m := controller.NewMock("MOCK-001", discard())
	for i := 0; i < 150; i++ {
		require.NoError(t, m.Trigger(i%8, i%11))
	}
	trigs := m.Triggers()
	assert.Len(t, trigs, 100)
	// Oldest surviving entry is call #50.
	assert.Equal(t, controller.MockTrigger{Cell: 50 % 8, Speed: 50 % 11}, trigs[0])
}

func TestStatusToAPI(t *testing.T) {
	st := controller.Status{Connected: true, VendorID: 0x16c0, ProductID: 0x27d9, Bus: 1, Address: 4, Serial: "TSV-A"}
	api := st.ToAPI()
	assert.Equal(t, "0x16c0", api.VendorID)
	assert.Equal(t, "0x27d9", api.ProductID)
	assert.True(t, api.Connected)
}
