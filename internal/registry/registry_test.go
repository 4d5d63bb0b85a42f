package registry_test

import (
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vestkit/vestd/internal/registry"
	"github.com/vestkit/vestd/internal/vestdrv"
)

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

func twoVests() *vestdrv.StubDriver {
	return vestdrv.NewStub(
		vestdrv.DeviceDesc{VendorID: 0x16c0, ProductID: 0x27d9, Bus: 1, Address: 4, Serial: "TSV-A"},
		vestdrv.DeviceDesc{VendorID: 0x16c0, ProductID: 0x27d9, Bus: 1, Address: 5, Serial: "TSV-B"},
	)
}

func TestAddDeviceAssignsIDAndMain(t *testing.T) {
	r := registry.New(twoVests(), discard())

	id, ctl, err := r.AddDevice("", vestdrv.DeviceDesc{Serial: "TSV-A"})
	require.NoError(t, err)
	require.NotNil(t, ctl)
	assert.True(t, strings.HasPrefix(id, "device_"))
	assert.Len(t, strings.TrimPrefix(id, "device_"), 8)
	assert.Equal(t, id, r.MainID(), "first device becomes main")
	assert.True(t, ctl.Status().Connected)
}

func TestAddDeviceDedup(t *testing.T) {
	r := registry.New(twoVests(), discard())

	idA, _, err := r.AddDevice("", vestdrv.DeviceDesc{Serial: "TSV-A"})
	require.NoError(t, err)

	again, _, err := r.AddDevice("", vestdrv.DeviceDesc{Serial: "TSV-A"})
	require.NoError(t, err)
	assert.Equal(t, idA, again, "dedup by serial returns existing entry")
	assert.Equal(t, 1, r.Count())

	// Serial-less devices dedup by (bus, address).
	drv := vestdrv.NewStub(vestdrv.DeviceDesc{Bus: 2, Address: 7})
	r2 := registry.New(drv, discard())
	id1, _, err := r2.AddDevice("", vestdrv.DeviceDesc{Bus: 2, Address: 7})
	require.NoError(t, err)
	id2, _, err := r2.AddDevice("", vestdrv.DeviceDesc{Bus: 2, Address: 7})
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
	assert.Equal(t, 1, r2.Count())
}

func TestAddDeviceStoresEnumeratedDescriptor(t *testing.T) {
	r := registry.New(twoVests(), discard())

	id, _, err := r.AddDevice("", vestdrv.DeviceDesc{Serial: "TSV-A"})
	require.NoError(t, err)

	desc, ok := r.Desc(id)
	require.True(t, ok)
	assert.Equal(t, uint16(0x16c0), desc.VendorID)
	assert.Equal(t, uint16(0x27d9), desc.ProductID)
	assert.Equal(t, 1, desc.Bus)
	assert.Equal(t, 4, desc.Address)
	assert.Equal(t, "TSV-A", desc.Serial)

	list := r.List()
	require.Len(t, list, 1)
	assert.Equal(t, "0x16c0", list[0].VendorID)
	assert.Equal(t, "0x27d9", list[0].ProductID)
	assert.Equal(t, 1, list[0].Bus)
	assert.Equal(t, 4, list[0].Address)
}

func TestAddDeviceDedupAcrossSelectors(t *testing.T) {
	r := registry.New(twoVests(), discard())

	idA, _, err := r.AddDevice("", vestdrv.DeviceDesc{Serial: "TSV-A"})
	require.NoError(t, err)

	again, _, err := r.AddDevice("", vestdrv.DeviceDesc{Bus: 1, Address: 4})
	require.NoError(t, err)
	assert.Equal(t, idA, again, "bus+address select of a serial-registered vest matches the existing entry")
	assert.Equal(t, 1, r.Count())
}

func TestAddDeviceConnectFailureDiscards(t *testing.T) {
	drv := twoVests()
	drv.FailOpen(fmt.Errorf("busy"))
	r := registry.New(drv, discard())

	_, _, err := r.AddDevice("", vestdrv.DeviceDesc{Serial: "TSV-A"})
	require.Error(t, err)
	assert.Equal(t, 0, r.Count())
	assert.Equal(t, "", r.MainID())
}

func TestRemoveDeviceReassignsMain(t *testing.T) {
	r := registry.New(twoVests(), discard())
	idA, _, err := r.AddDevice("", vestdrv.DeviceDesc{Serial: "TSV-A"})
	require.NoError(t, err)
	idB, _, err := r.AddDevice("", vestdrv.DeviceDesc{Serial: "TSV-B"})
	require.NoError(t, err)
	require.Equal(t, idA, r.MainID())

	require.NoError(t, r.RemoveDevice(idA))
	assert.Equal(t, idB, r.MainID(), "main reassigned deterministically")

	require.NoError(t, r.RemoveDevice(idB))
	assert.Equal(t, "", r.MainID(), "main nil iff registry empty")
	assert.Error(t, r.RemoveDevice(idB))
}

func TestSetMainDevice(t *testing.T) {
	r := registry.New(twoVests(), discard())
	_, _, err := r.AddDevice("", vestdrv.DeviceDesc{Serial: "TSV-A"})
	require.NoError(t, err)
	idB, _, err := r.AddDevice("", vestdrv.DeviceDesc{Serial: "TSV-B"})
	require.NoError(t, err)

	require.NoError(t, r.SetMainDevice(idB))
	assert.Equal(t, idB, r.MainID())
	assert.Error(t, r.SetMainDevice("device_ffffffff"))
}

func TestControllerLookup(t *testing.T) {
	r := registry.New(twoVests(), discard())
	assert.Nil(t, r.Controller(""), "empty registry resolves to nil controller")

	id, ctl, err := r.AddDevice("", vestdrv.DeviceDesc{Serial: "TSV-A"})
	require.NoError(t, err)
	assert.Same(t, ctl, r.Controller(""))
	assert.Same(t, ctl, r.Controller(id))
	assert.Nil(t, r.Controller("device_ffffffff"))
}

func TestMockDevices(t *testing.T) {
	r := registry.New(twoVests(), discard())

	id, m, err := r.AddMockDevice()
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.True(t, strings.HasPrefix(id, "mock_"))
	assert.Equal(t, "MOCK-001", m.Status().Serial)
	assert.True(t, r.IsMock(id))
	assert.Equal(t, id, r.MainID(), "mock can be main when first")

	for i := 0; i < registry.MaxMockDevices-1; i++ {
		_, _, err := r.AddMockDevice()
		require.NoError(t, err)
	}
	_, _, err = r.AddMockDevice()
	require.Error(t, err, "21st mock rejected")
	assert.Contains(t, err.Error(), "limit")
	assert.Equal(t, registry.MaxMockDevices, r.MockCount())
}

func TestListAttachesMainAndIDs(t *testing.T) {
	r := registry.New(twoVests(), discard())
	idA, _, err := r.AddDevice("", vestdrv.DeviceDesc{VendorID: 0x16c0, ProductID: 0x27d9, Bus: 1, Address: 4, Serial: "TSV-A"})
	require.NoError(t, err)
	_, _, err = r.AddMockDevice()
	require.NoError(t, err)

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, idA, list[0].DeviceID)
	assert.True(t, list[0].IsMain)
	assert.Equal(t, "0x16c0", list[0].VendorID)
	assert.True(t, list[1].IsMock)
	assert.False(t, list[1].IsMain)
}

func TestUniqueIDs(t *testing.T) {
	r := registry.New(twoVests(), discard())
	idA, _, err := r.AddDevice("", vestdrv.DeviceDesc{Serial: "TSV-A"})
	require.NoError(t, err)
	idB, _, err := r.AddDevice("", vestdrv.DeviceDesc{Serial: "TSV-B"})
	require.NoError(t, err)
	assert.NotEqual(t, idA, idB)

	_, _, err = r.AddDevice(idA, vestdrv.DeviceDesc{Serial: "TSV-C"})
	assert.Error(t, err, "caller-supplied duplicate id rejected")
}
