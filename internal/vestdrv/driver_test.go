package vestdrv_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vestkit/vestd/internal/vestdrv"
)

func descs() []vestdrv.DeviceDesc {
	return []vestdrv.DeviceDesc{
		{VendorID: 0x16c0, ProductID: 0x27d9, Bus: 1, Address: 4, Serial: "TSV-A"},
		{VendorID: 0x16c0, ProductID: 0x27d9, Bus: 1, Address: 5, Serial: "TSV-B"},
		{VendorID: 0x16c0, ProductID: 0x27d9, Bus: 2, Address: 2},
	}
}

func TestSelectorMatching(t *testing.T) {
	ds := descs()
	tests := []struct {
		name string
		sel  vestdrv.Selector
		want int // index into ds, -1 for no match
	}{
		{"any picks first", vestdrv.Any(), 0},
		{"by serial", vestdrv.BySerial("TSV-B"), 1},
		{"by missing serial", vestdrv.BySerial("TSV-Z"), -1},
		{"by bus address", vestdrv.ByBusAddress(2, 2), 2},
		{"by index", vestdrv.ByIndex(1), 1},
		{"serial never matches empty", vestdrv.BySerial(""), -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := -1
			for i, d := range ds {
				if tt.sel.Matches(d, i) {
					got = i
					break
				}
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStubDriverRecordsSends(t *testing.T) {
	drv := vestdrv.NewStub(descs()...)
	h, err := drv.Open(vestdrv.BySerial("TSV-A"))
	require.NoError(t, err)

	require.NoError(t, h.Send(2, 5))
	require.NoError(t, h.Send(7, 10))
	assert.Error(t, h.Send(8, 5), "cell out of range")
	assert.Error(t, h.Send(0, 11), "speed out of range")
	assert.Error(t, h.Send(-1, 0))

	sends := drv.Sends()
	require.Len(t, sends, 2)
	assert.Equal(t, vestdrv.StubSend{Serial: "TSV-A", Cell: 2, Speed: 5}, sends[0])

	require.NoError(t, h.Close())
	assert.Error(t, h.Send(0, 1), "closed handle rejects writes")
}
