package player_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vestkit/vestd/internal/player"
)

func TestPlayerLifecycle(t *testing.T) {
	m := player.NewManager()
	m.Create("p1", "Alice")
	m.Create("p1", "") // idempotent, keeps name

	require.True(t, m.Has("p1"))
	dev, ok := m.DeviceFor("p1")
	require.True(t, ok)
	assert.Equal(t, "", dev, "fresh player unassigned")

	require.NoError(t, m.Assign("p1", "device_a"))
	dev, _ = m.DeviceFor("p1")
	assert.Equal(t, "device_a", dev)

	require.NoError(t, m.Assign("p1", "device_b"), "reassignment overwrites")
	dev, _ = m.DeviceFor("p1")
	assert.Equal(t, "device_b", dev)

	require.NoError(t, m.Unassign("p1"))
	dev, _ = m.DeviceFor("p1")
	assert.Equal(t, "", dev)

	assert.Error(t, m.Assign("ghost", "device_a"))
	assert.Error(t, m.Unassign("ghost"))
	_, ok = m.DeviceFor("ghost")
	assert.False(t, ok)
}

func TestPlayerListSortedAndUnbind(t *testing.T) {
	m := player.NewManager()
	m.Create("p2", "")
	m.Create("p1", "Alice")
	require.NoError(t, m.Assign("p1", "device_a"))
	require.NoError(t, m.Assign("p2", "device_a"))

	list := m.List()
	require.Len(t, list, 2)
	assert.Equal(t, "p1", list[0].PlayerID)
	assert.Equal(t, "Alice", list[0].Name)

	m.UnbindDevice("device_a")
	for _, p := range m.List() {
		assert.Equal(t, "", p.DeviceID)
	}
}

func TestGameMap(t *testing.T) {
	g := player.NewGameMap()
	g.Set("cs2", 1, "device_c")
	g.Set("cs2", 2, "device_d")
	g.Set("cs2", 1, "device_e") // overwrite

	dev, ok := g.Lookup("cs2", 1)
	require.True(t, ok)
	assert.Equal(t, "device_e", dev)

	_, ok = g.Lookup("cs2", 3)
	assert.False(t, ok)
	_, ok = g.Lookup("dota", 1)
	assert.False(t, ok)

	list := g.List("cs2")
	require.Len(t, list, 2)
	assert.Equal(t, 1, list[0].PlayerNum)
	assert.Equal(t, 2, list[1].PlayerNum)
}

func TestGameMapClearSemantics(t *testing.T) {
	g := player.NewGameMap()
	g.Set("cs2", 1, "device_a")
	g.Set("cs2", 2, "device_b")

	g.Clear("cs2", 1)
	_, ok := g.Lookup("cs2", 1)
	assert.False(t, ok)

	g.Clear("cs2", 2)
	assert.Empty(t, g.List(""), "clearing last slot drops the game key")

	g.Set("cs2", 1, "device_a")
	g.Set("cs2", 2, "device_b")
	g.ClearGame("cs2")
	assert.Empty(t, g.List(""))

	g.Clear("ghost", 1) // no-op
}

func TestGameMapUnbindDevice(t *testing.T) {
	g := player.NewGameMap()
	g.Set("cs2", 1, "device_a")
	g.Set("cs2", 2, "device_b")
	g.Set("dota", 1, "device_a")

	g.UnbindDevice("device_a")
	list := g.List("")
	require.Len(t, list, 1)
	assert.Equal(t, "device_b", list[0].DeviceID)
}
