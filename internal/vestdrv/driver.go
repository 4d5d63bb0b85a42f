// Package vestdrv is the USB boundary of the daemon. It exposes vest
// enumeration and per-device sessions behind small interfaces so that the
// controller layer never touches gousb directly and tests can substitute a
// stub driver.
package vestdrv

import "fmt"

// Cells is the number of addressable actuator cells on a vest.
const Cells = 8

// MaxSpeed is the highest accepted intensity value; 0 means off.
const MaxSpeed = 10

// DeviceDesc describes one enumerated vest. It is immutable once produced.
type DeviceDesc struct {
	VendorID  uint16
	ProductID uint16
	Bus       int
	Address   int
	Serial    string
	Mock      bool
}

func (d DeviceDesc) String() string {
	if d.Serial != "" {
		return fmt.Sprintf("vest %04x:%04x serial=%s", d.VendorID, d.ProductID, d.Serial)
	}
	return fmt.Sprintf("vest %04x:%04x bus=%d addr=%d", d.VendorID, d.ProductID, d.Bus, d.Address)
}

type selectorKind int

const (
	selAny selectorKind = iota
	selSerial
	selBusAddress
	selIndex
)

// Selector identifies which enumerated vest Open should attach to.
// The zero value selects the first available device.
type Selector struct {
	kind    selectorKind
	serial  string
	bus     int
	address int
	index   int
}

// Any selects the first available device.
func Any() Selector { return Selector{} }

// BySerial selects the device with the given serial number.
func BySerial(serial string) Selector { return Selector{kind: selSerial, serial: serial} }

// ByBusAddress selects the device at the given USB bus and address.
func ByBusAddress(bus, address int) Selector {
	return Selector{kind: selBusAddress, bus: bus, address: address}
}

// ByIndex selects the n-th enumerated device (0-based).
func ByIndex(n int) Selector { return Selector{kind: selIndex, index: n} }

// Matches reports whether the selector picks the given descriptor at the
// given enumeration position.
func (s Selector) Matches(d DeviceDesc, pos int) bool {
	switch s.kind {
	case selAny:
		return true
	case selSerial:
		return d.Serial != "" && d.Serial == s.serial
	case selBusAddress:
		return d.Bus == s.bus && d.Address == s.address
	case selIndex:
		return pos == s.index
	}
	return false
}

func (s Selector) String() string {
	switch s.kind {
	case selSerial:
		return "serial=" + s.serial
	case selBusAddress:
		return fmt.Sprintf("bus=%d addr=%d", s.bus, s.address)
	case selIndex:
		return fmt.Sprintf("index=%d", s.index)
	}
	return "any"
}

// Handle is one open vest session. Send writes a single actuator update;
// it is synchronous and short (one control transfer).
type Handle interface {
	Desc() DeviceDesc
	Send(cell, speed int) error
	Close() error
}

// Driver enumerates vests and opens sessions. Implementations: the gousb
// driver (real hardware) and the stub driver (tests, --mock setups).
type Driver interface {
	Enumerate() ([]DeviceDesc, error)
	Open(sel Selector) (Handle, error)
}

// ValidateCell returns an error for cell indexes outside 0..7.
func ValidateCell(cell int) error {
	if cell < 0 || cell >= Cells {
		return fmt.Errorf("cell %d out of range 0..%d", cell, Cells-1)
	}
	return nil
}

// ValidateSpeed returns an error for speeds outside 0..10.
func ValidateSpeed(speed int) error {
	if speed < 0 || speed > MaxSpeed {
		return fmt.Errorf("speed %d out of range 0..%d", speed, MaxSpeed)
	}
	return nil
}
