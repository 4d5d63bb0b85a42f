// Package controller wraps one vest driver session in a stateful
// controller: it owns at most one open handle, keeps the latest status
// snapshot and translates trigger calls into driver writes. Driver errors
// never escape a controller method; they are reflected in the status.
//
// Controllers are not internally synchronized. All calls funnel through
// the broker loop, which is the single owner of daemon state.
package controller

import (
	"fmt"
	"log/slog"

	"github.com/vestkit/vestd/apitypes"
	"github.com/vestkit/vestd/internal/vestdrv"
)

// Status is the controller's latest snapshot. Callers treat it as
// read-only; only the controller produces it.
type Status struct {
	Connected bool
	VendorID  uint16
	ProductID uint16
	Bus       int
	Address   int
	Serial    string
	LastError string
}

// ToAPI converts the snapshot to its wire form.
func (s Status) ToAPI() apitypes.Status {
	out := apitypes.Status{
		Connected: s.Connected,
		Bus:       s.Bus,
		Address:   s.Address,
		Serial:    s.Serial,
		LastError: s.LastError,
	}
	if s.VendorID != 0 || s.ProductID != 0 {
		out.VendorID = apitypes.FormatHexID(s.VendorID)
		out.ProductID = apitypes.FormatHexID(s.ProductID)
	}
	return out
}

// Controller is the surface the registry is polymorphic over; Vest (real
// hardware) and Mock both implement it.
type Controller interface {
	// ConnectToDevice closes any open session and attaches to the vest
	// picked by sel. On failure the controller is left disconnected with
	// LastError set.
	ConnectToDevice(sel vestdrv.Selector) Status
	// Trigger drives one cell. Out-of-range cell (0..7) or speed (0..10)
	// is rejected with an error, never clamped. A disconnected controller
	// first attempts an implicit connect to the first available vest.
	Trigger(cell, speed int) error
	// StopAll zeroes every cell, best-effort; individual failures are
	// suppressed.
	StopAll()
	// Disconnect closes the session. Idempotent; safe on a fresh controller.
	Disconnect()
	// Status returns the latest snapshot.
	Status() Status
}

// Vest is the hardware-backed controller.
type Vest struct {
	driver vestdrv.Driver
	logger *slog.Logger

	handle vestdrv.Handle
	status Status
}

// NewVest creates a controller over the given driver. No session is opened
// until Connect or ConnectToDevice is called.
func NewVest(driver vestdrv.Driver, logger *slog.Logger) *Vest {
	return &Vest{driver: driver, logger: logger}
}

// Connect attaches to the first available vest.
func (v *Vest) Connect() Status { return v.ConnectToDevice(vestdrv.Any()) }

func (v *Vest) ConnectToDevice(sel vestdrv.Selector) Status {
	v.Disconnect()
	h, err := v.driver.Open(sel)
	if err != nil {
		v.status = Status{Connected: false, LastError: err.Error()}
		v.logger.Warn("vest connect failed", "selector", sel.String(), "error", err)
		return v.status
	}
	v.handle = h
	d := h.Desc()
	v.status = Status{
		Connected: true,
		VendorID:  d.VendorID,
		ProductID: d.ProductID,
		Bus:       d.Bus,
		Address:   d.Address,
		Serial:    d.Serial,
	}
	v.logger.Info("vest connected", "desc", d.String())
	return v.status
}

func (v *Vest) Trigger(cell, speed int) error {
	if err := vestdrv.ValidateCell(cell); err != nil {
		return err
	}
	if err := vestdrv.ValidateSpeed(speed); err != nil {
		return err
	}
	if v.handle == nil {
		if st := v.Connect(); !st.Connected {
			return fmt.Errorf("not connected: %s", st.LastError)
		}
	}
	if err := v.handle.Send(cell, speed); err != nil {
		v.status.LastError = err.Error()
		v.logger.Warn("vest trigger failed", "cell", cell, "speed", speed, "error", err)
		return err
	}
	return nil
}

func (v *Vest) StopAll() {
	for cell := 0; cell < vestdrv.Cells; cell++ {
		_ = v.Trigger(cell, 0)
	}
}

func (v *Vest) Disconnect() {
	if v.handle == nil {
		return
	}
	if err := v.handle.Close(); err != nil {
		v.logger.Warn("vest disconnect", "error", err)
	}
	v.handle = nil
	v.status.Connected = false
}

func (v *Vest) Status() Status { return v.status }
