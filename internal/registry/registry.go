// Package registry owns the daemon's vest controllers. It assigns stable
// opaque device ids, de-duplicates devices by serial or bus/address,
// maintains the main-device designation and hosts mock devices next to
// real ones behind the same controller interface.
//
// The registry is mutated only from the broker loop and carries no locks.
package registry

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/vestkit/vestd/apitypes"
	"github.com/vestkit/vestd/internal/controller"
	"github.com/vestkit/vestd/internal/vestdrv"
)

// MaxMockDevices caps how many mock vests may coexist.
const MaxMockDevices = 20

// Registry maps device ids to controllers and descriptors.
type Registry struct {
	driver vestdrv.Driver
	logger *slog.Logger

	controllers map[string]controller.Controller
	descs       map[string]vestdrv.DeviceDesc
	order       []string // insertion order, for deterministic main reassignment
	mainID      string
	mockCounter int
}

// New creates an empty registry backed by the given driver.
func New(driver vestdrv.Driver, logger *slog.Logger) *Registry {
	return &Registry{
		driver:      driver,
		logger:      logger,
		controllers: make(map[string]controller.Controller),
		descs:       make(map[string]vestdrv.DeviceDesc),
	}
}

func newID(prefix string) string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return prefix + hex.EncodeToString(b)
}

// findExisting returns the id of an already-registered device matching
// the request: by serial when the request carries one, else by
// (bus, address) against the stored enumerated descriptor, regardless
// of whether that entry also has a serial. Empty string means no match.
// This is the registry's dedup rule; keep it the only place the rule
// lives.
func (r *Registry) findExisting(info vestdrv.DeviceDesc) string {
	for _, id := range r.order {
		d := r.descs[id]
		if info.Serial != "" && d.Serial == info.Serial {
			return id
		}
		if info.Serial == "" && (info.Bus != 0 || info.Address != 0) &&
			d.Bus == info.Bus && d.Address == info.Address {
			return id
		}
	}
	return ""
}

// AddDevice registers a device for info, constructing and connecting a
// fresh controller. When an equivalent device is already registered the
// existing entry is returned instead. deviceID may be empty to let the
// registry allocate one. On connect failure nothing is registered.
func (r *Registry) AddDevice(deviceID string, info vestdrv.DeviceDesc) (string, controller.Controller, error) {
	if existing := r.findExisting(info); existing != "" {
		return existing, r.controllers[existing], nil
	}

	id := deviceID
	if id == "" {
		id = newID("device_")
	}
	if _, dup := r.controllers[id]; dup {
		return "", nil, fmt.Errorf("device id %s already registered", id)
	}

	ctl := controller.NewVest(r.driver, r.logger.With("device_id", id))
	sel := vestdrv.Any()
	if info.Serial != "" {
		sel = vestdrv.BySerial(info.Serial)
	} else if info.Bus != 0 || info.Address != 0 {
		sel = vestdrv.ByBusAddress(info.Bus, info.Address)
	}
	st := ctl.ConnectToDevice(sel)
	if !st.Connected {
		return "", nil, fmt.Errorf("connect %s: %s", info.String(), st.LastError)
	}

	// Store the enumerated descriptor, not the request's selector: a vest
	// selected by serial still lists its real vid/pid and bus/address, and
	// a later select by bus+address dedups against it.
	desc := vestdrv.DeviceDesc{
		VendorID:  st.VendorID,
		ProductID: st.ProductID,
		Bus:       st.Bus,
		Address:   st.Address,
		Serial:    st.Serial,
	}
	if desc.Serial == "" {
		desc.Serial = info.Serial
	}

	r.insert(id, ctl, desc)
	r.logger.Info("device registered", "device_id", id, "desc", desc.String())
	return id, ctl, nil
}

// AddMockDevice registers a simulated vest. Serial numbers are generated
// as MOCK-NNN; ids carry the mock_ prefix.
func (r *Registry) AddMockDevice() (string, *controller.Mock, error) {
	if r.MockCount() >= MaxMockDevices {
		return "", nil, fmt.Errorf("mock device limit reached (%d)", MaxMockDevices)
	}
	r.mockCounter++
	serial := fmt.Sprintf("MOCK-%03d", r.mockCounter)
	id := newID("mock_")
	m := controller.NewMock(serial, r.logger.With("device_id", id))
	r.insert(id, m, vestdrv.DeviceDesc{Serial: serial, Mock: true})
	r.logger.Info("mock device created", "device_id", id, "serial", serial)
	return id, m, nil
}

func (r *Registry) insert(id string, ctl controller.Controller, desc vestdrv.DeviceDesc) {
	r.controllers[id] = ctl
	r.descs[id] = desc
	r.order = append(r.order, id)
	if r.mainID == "" {
		r.mainID = id
	}
}

// RemoveDevice disconnects and drops a device. If it was main, main moves
// to the earliest remaining device, or clears when none remain.
func (r *Registry) RemoveDevice(deviceID string) error {
	ctl, ok := r.controllers[deviceID]
	if !ok {
		return fmt.Errorf("unknown device: %s", deviceID)
	}
	ctl.Disconnect()
	delete(r.controllers, deviceID)
	delete(r.descs, deviceID)
	for i, id := range r.order {
		if id == deviceID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if r.mainID == deviceID {
		r.mainID = ""
		if len(r.order) > 0 {
			r.mainID = r.order[0]
		}
	}
	r.logger.Info("device removed", "device_id", deviceID, "main", r.mainID)
	return nil
}

// SetMainDevice designates the default target device.
func (r *Registry) SetMainDevice(deviceID string) error {
	if _, ok := r.controllers[deviceID]; !ok {
		return fmt.Errorf("unknown device: %s", deviceID)
	}
	r.mainID = deviceID
	return nil
}

// MainID returns the main device id, or "" when the registry is empty.
func (r *Registry) MainID() string { return r.mainID }

// Controller resolves a device id to its controller. An empty id means
// the main device; with no main, nil is returned.
func (r *Registry) Controller(deviceID string) controller.Controller {
	if deviceID == "" {
		deviceID = r.mainID
	}
	if deviceID == "" {
		return nil
	}
	return r.controllers[deviceID]
}

// Desc returns the descriptor for a registered device.
func (r *Registry) Desc(deviceID string) (vestdrv.DeviceDesc, bool) {
	d, ok := r.descs[deviceID]
	return d, ok
}

// Has reports whether a device id is registered.
func (r *Registry) Has(deviceID string) bool {
	_, ok := r.controllers[deviceID]
	return ok
}

// IsMock reports whether the id names a mock device.
func (r *Registry) IsMock(deviceID string) bool {
	d, ok := r.descs[deviceID]
	return ok && d.Mock
}

// Count returns the number of registered devices.
func (r *Registry) Count() int { return len(r.order) }

// MockCount returns the number of registered mock devices.
func (r *Registry) MockCount() int {
	n := 0
	for _, d := range r.descs {
		if d.Mock {
			n++
		}
	}
	return n
}

// IDs returns the registered device ids in insertion order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// List returns wire descriptors for all registered devices with device_id
// and is_main attached, in insertion order.
func (r *Registry) List() []apitypes.DeviceInfo {
	out := make([]apitypes.DeviceInfo, 0, len(r.order))
	for _, id := range r.order {
		d := r.descs[id]
		out = append(out, apitypes.DeviceInfo{
			DeviceID:     id,
			VendorID:     apitypes.FormatHexID(d.VendorID),
			ProductID:    apitypes.FormatHexID(d.ProductID),
			Bus:          d.Bus,
			Address:      d.Address,
			SerialNumber: d.Serial,
			IsMock:       d.Mock,
			IsMain:       id == r.mainID,
		})
	}
	return out
}

// RemoveAll disconnects and drops every device; used on daemon shutdown.
func (r *Registry) RemoveAll() {
	for _, id := range r.IDs() {
		_ = r.RemoveDevice(id)
	}
}
