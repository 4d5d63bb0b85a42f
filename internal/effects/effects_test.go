package effects_test

import (
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vestkit/vestd/internal/effects"
)

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestBuiltinLibrary(t *testing.T) {
	lib := effects.Builtin()
	list := lib.List()
	require.NotEmpty(t, list)

	_, ok := lib.Get("heartbeat")
	assert.True(t, ok)
	_, ok = lib.Get("nonexistent")
	assert.False(t, ok)

	// Sorted by name.
	for i := 1; i < len(list); i++ {
		assert.Less(t, list[i-1].Name, list[i].Name)
	}
}

func TestMergeOverlay(t *testing.T) {
	lib := effects.Builtin()
	err := lib.Merge([]byte(`
effects:
  - name: double_tap
    display_name: Double Tap
    category: hit
    steps:
      - cells: [2, 3]
        speed: 8
        duration_ms: 80
        delay_ms: 60
      - cells: [2, 3]
        speed: 8
        duration_ms: 80
        delay_ms: 0
  - name: heartbeat
    display_name: Calm Heartbeat
    category: ambient
    steps:
      - cells: [0]
        speed: 3
        duration_ms: 100
        delay_ms: 900
`))
	require.NoError(t, err)

	e, ok := lib.Get("double_tap")
	require.True(t, ok)
	assert.Len(t, e.Steps, 2)

	hb, _ := lib.Get("heartbeat")
	assert.Equal(t, "Calm Heartbeat", hb.DisplayName, "overlay replaces builtin")
}

func TestMergeRejectsInvalid(t *testing.T) {
	lib := effects.Builtin()
	assert.Error(t, lib.Merge([]byte("effects:\n  - name: bad\n    steps:\n      - cells: [9]\n        speed: 5\n")))
	assert.Error(t, lib.Merge([]byte("effects:\n  - name: bad\n    steps:\n      - cells: [0]\n        speed: 11\n")))
	assert.Error(t, lib.Merge([]byte("effects:\n  - display_name: anon\n")))
	assert.Error(t, lib.Merge([]byte("{not yaml")))
}

type recorder struct {
	mu       sync.Mutex
	triggers [][2]int
	events   []string
}

func (r *recorder) callbacks() effects.Callbacks {
	return effects.Callbacks{
		Trigger: func(cell, speed int) {
			r.mu.Lock()
			r.triggers = append(r.triggers, [2]int{cell, speed})
			r.mu.Unlock()
		},
		Broadcast: func(event string, payload map[string]any) {
			r.mu.Lock()
			r.events = append(r.events, event)
			r.mu.Unlock()
		},
	}
}

func TestPlayEventOrdering(t *testing.T) {
	lib := effects.Builtin()
	require.NoError(t, lib.Merge([]byte(`
effects:
  - name: blip
    display_name: Blip
    category: test
    steps:
      - cells: [2]
        speed: 5
        duration_ms: 1
        delay_ms: 1
      - cells: [4]
        speed: 7
        duration_ms: 1
        delay_ms: 0
`)))
	seq := effects.NewSequencer(lib, discard())
	rec := &recorder{}

	require.NoError(t, seq.Play("blip", rec.callbacks()))
	seq.Wait()

	require.Equal(t, []string{"effect_started", "effect_triggered", "effect_triggered", "effect_completed"}, rec.events)
	// Per step: activate, then zero.
	require.Equal(t, [][2]int{{2, 5}, {2, 0}, {4, 7}, {4, 0}}, rec.triggers)
}

func TestPlayUnknownEffect(t *testing.T) {
	seq := effects.NewSequencer(effects.Builtin(), discard())
	err := seq.Play("nope", effects.Callbacks{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown effect")
}
