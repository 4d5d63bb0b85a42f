package vestdrv

import (
	"fmt"
	"sync"
)

// StubDriver is an in-memory Driver used by tests and hardware-free
// development setups. It enumerates a fixed set of descriptors and records
// every Send on its handles.
type StubDriver struct {
	mu      sync.Mutex
	descs   []DeviceDesc
	openErr error
	sendErr error
	sends   []StubSend
}

// StubSend is one recorded actuator write.
type StubSend struct {
	Serial string
	Cell   int
	Speed  int
}

// NewStub creates a stub driver enumerating the given descriptors.
func NewStub(descs ...DeviceDesc) *StubDriver {
	return &StubDriver{descs: descs}
}

// FailOpen makes subsequent Open calls return err (nil clears).
func (d *StubDriver) FailOpen(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openErr = err
}

// FailSend makes subsequent Send calls on all handles return err (nil clears).
func (d *StubDriver) FailSend(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sendErr = err
}

// Sends returns a copy of all recorded writes in order.
func (d *StubDriver) Sends() []StubSend {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]StubSend, len(d.sends))
	copy(out, d.sends)
	return out
}

func (d *StubDriver) Enumerate() ([]DeviceDesc, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DeviceDesc, len(d.descs))
	copy(out, d.descs)
	return out, nil
}

func (d *StubDriver) Open(sel Selector) (Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.openErr != nil {
		return nil, d.openErr
	}
	for i, desc := range d.descs {
		if sel.Matches(desc, i) {
			return &stubHandle{drv: d, desc: desc}, nil
		}
	}
	return nil, fmt.Errorf("no vest matches selector %s", sel)
}

type stubHandle struct {
	drv    *StubDriver
	desc   DeviceDesc
	closed bool
}

func (h *stubHandle) Desc() DeviceDesc { return h.desc }

func (h *stubHandle) Send(cell, speed int) error {
	if err := ValidateCell(cell); err != nil {
		return err
	}
	if err := ValidateSpeed(speed); err != nil {
		return err
	}
	h.drv.mu.Lock()
	defer h.drv.mu.Unlock()
	if h.closed {
		return fmt.Errorf("send on closed handle")
	}
	if h.drv.sendErr != nil {
		return h.drv.sendErr
	}
	h.drv.sends = append(h.drv.sends, StubSend{Serial: h.desc.Serial, Cell: cell, Speed: speed})
	return nil
}

func (h *stubHandle) Close() error {
	h.drv.mu.Lock()
	defer h.drv.mu.Unlock()
	h.closed = true
	return nil
}
