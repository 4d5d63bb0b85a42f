// Package logtail implements the file-tailing integration manager: it
// polls a game's log file for appended lines, pattern-matches them into
// normalized events and haptic triggers. Per-game knowledge is confined
// to a Profile so one tailer implementation serves every log-based game.
package logtail

import (
	"regexp"
	"strconv"

	"github.com/vestkit/vestd/internal/integration"
)

// Event is one parsed log event with its haptic consequence. Cells may be
// empty for events that only broadcast.
type Event struct {
	Type   string
	Params map[string]any
	Cells  []int
	Speed  int
}

// Profile is the per-game piece of a tailer: a game id plus a line
// parser. Parse returns ok=false for lines that carry no event.
type Profile struct {
	Game  string
	Parse func(line string) (Event, bool)
}

// DirectionCells maps a hit direction onto the actuator cells of the
// front/back x upper/lower x left/right layout.
func DirectionCells(direction string) []int {
	switch direction {
	case "front":
		return []int{0, 1, 2, 3}
	case "back":
		return []int{4, 5, 6, 7}
	case "left":
		return []int{0, 2, 4, 6}
	case "right":
		return []int{1, 3, 5, 7}
	}
	return []int{0, 1}
}

// DamageSpeed scales damage (roughly 0..100) onto intensity 1..10,
// monotone non-decreasing and clamped.
func DamageSpeed(damage int) int {
	if damage < 0 {
		damage = 0
	}
	return integration.ClampSpeed(1 + damage*9/100)
}

var (
	arenaHit   = regexp.MustCompile(`^HIT direction=(front|back|left|right) damage=(\d+)$`)
	arenaDeath = regexp.MustCompile(`^DEATH$`)
	arenaHeal  = regexp.MustCompile(`^HEAL amount=(\d+)$`)
)

// ArenaProfile is the reference profile used in tests and as the template
// for writing real per-game profiles.
func ArenaProfile() Profile {
	return Profile{
		Game: "arena",
		Parse: func(line string) (Event, bool) {
			if m := arenaHit.FindStringSubmatch(line); m != nil {
				damage, _ := strconv.Atoi(m[2])
				return Event{
					Type:   "hit",
					Params: map[string]any{"direction": m[1], "damage": damage},
					Cells:  DirectionCells(m[1]),
					Speed:  DamageSpeed(damage),
				}, true
			}
			if arenaDeath.MatchString(line) {
				return Event{
					Type:   "death",
					Params: map[string]any{},
					Cells:  []int{0, 1, 2, 3, 4, 5, 6, 7},
					Speed:  10,
				}, true
			}
			if m := arenaHeal.FindStringSubmatch(line); m != nil {
				amount, _ := strconv.Atoi(m[1])
				return Event{
					Type:   "heal",
					Params: map[string]any{"amount": amount},
				}, true
			}
			return Event{}, false
		},
	}
}
