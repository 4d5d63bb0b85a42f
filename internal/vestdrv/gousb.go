package vestdrv

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/gousb"
)

// Vest USB identity and control protocol constants. The vest exposes a
// vendor interface; one control transfer sets one cell's motor speed.
const (
	vestVendorID  = 0x16c0
	vestProductID = 0x27d9

	reqSetCell   = 0x01
	controlIface = 0
)

// USBDriver drives real vests through libusb via gousb. A single shared
// gousb.Context backs all sessions; it is created lazily and lives for the
// driver's lifetime.
type USBDriver struct {
	logger *slog.Logger

	mu  sync.Mutex
	ctx *gousb.Context
}

// NewUSB creates a gousb-backed driver.
func NewUSB(logger *slog.Logger) *USBDriver {
	return &USBDriver{logger: logger}
}

func (d *USBDriver) context() *gousb.Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx == nil {
		d.ctx = gousb.NewContext()
	}
	return d.ctx
}

// Close releases the libusb context. Open handles must be closed first.
func (d *USBDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx != nil {
		err := d.ctx.Close()
		d.ctx = nil
		return err
	}
	return nil
}

func isVest(desc *gousb.DeviceDesc) bool {
	return desc.Vendor == gousb.ID(vestVendorID) && desc.Product == gousb.ID(vestProductID)
}

// Enumerate lists attached vests. Devices are opened briefly to read their
// serial numbers and closed again; a device that cannot be opened is still
// reported, without a serial.
func (d *USBDriver) Enumerate() ([]DeviceDesc, error) {
	ctx := d.context()
	devs, err := ctx.OpenDevices(isVest)
	var out []DeviceDesc
	for _, dev := range devs {
		if dev == nil {
			continue
		}
		desc := DeviceDesc{
			VendorID:  uint16(dev.Desc.Vendor),
			ProductID: uint16(dev.Desc.Product),
			Bus:       dev.Desc.Bus,
			Address:   dev.Desc.Address,
		}
		if serial, serr := dev.SerialNumber(); serr == nil {
			desc.Serial = serial
		}
		_ = dev.Close()
		out = append(out, desc)
	}
	if err != nil && len(devs) == 0 {
		return nil, fmt.Errorf("usb enumerate: %w", err)
	}
	return out, nil
}

// Open attaches to the vest picked by sel and claims its vendor interface.
func (d *USBDriver) Open(sel Selector) (Handle, error) {
	ctx := d.context()
	devs, err := ctx.OpenDevices(isVest)
	if err != nil && len(devs) == 0 {
		return nil, fmt.Errorf("usb open: %w", err)
	}
	if len(devs) == 0 {
		return nil, fmt.Errorf("no vest found (%04x:%04x)", vestVendorID, vestProductID)
	}

	var picked *gousb.Device
	var pickedDesc DeviceDesc
	for i, dev := range devs {
		desc := DeviceDesc{
			VendorID:  uint16(dev.Desc.Vendor),
			ProductID: uint16(dev.Desc.Product),
			Bus:       dev.Desc.Bus,
			Address:   dev.Desc.Address,
		}
		if serial, serr := dev.SerialNumber(); serr == nil {
			desc.Serial = serial
		}
		if picked == nil && sel.Matches(desc, i) {
			picked = dev
			pickedDesc = desc
			continue
		}
		_ = dev.Close()
	}
	if picked == nil {
		return nil, fmt.Errorf("no vest matches selector %s", sel)
	}

	// The vendor interface has no endpoints we use, but claiming it is
	// still required on some platforms before control transfers succeed.
	cfg, err := picked.Config(1)
	if err != nil {
		_ = picked.Close()
		return nil, fmt.Errorf("usb config: %w", err)
	}
	intf, err := cfg.Interface(controlIface, 0)
	if err != nil {
		_ = cfg.Close()
		_ = picked.Close()
		return nil, fmt.Errorf("usb claim interface: %w", err)
	}

	d.logger.Debug("opened vest", "desc", pickedDesc.String())
	return &usbHandle{dev: picked, cfg: cfg, intf: intf, desc: pickedDesc}, nil
}

type usbHandle struct {
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface
	desc DeviceDesc
}

func (h *usbHandle) Desc() DeviceDesc { return h.desc }

// Send sets one actuator cell to the given speed via a vendor control
// transfer: wValue carries the speed, wIndex the cell.
func (h *usbHandle) Send(cell, speed int) error {
	if err := ValidateCell(cell); err != nil {
		return err
	}
	if err := ValidateSpeed(speed); err != nil {
		return err
	}
	rType := gousb.ControlOut | gousb.ControlVendor | gousb.ControlInterface
	if _, err := h.dev.Control(rType, reqSetCell, uint16(speed), uint16(cell), nil); err != nil {
		return fmt.Errorf("usb control transfer: %w", err)
	}
	return nil
}

func (h *usbHandle) Close() error {
	if h.intf != nil {
		h.intf.Close()
		h.intf = nil
	}
	if h.cfg != nil {
		_ = h.cfg.Close()
		h.cfg = nil
	}
	if h.dev != nil {
		err := h.dev.Close()
		h.dev = nil
		return err
	}
	return nil
}
