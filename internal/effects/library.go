// Package effects holds the predefined haptic effect library and the
// sequencer that plays effects as timed background tasks. Effect data is
// loaded once at boot and never mutated afterwards.
package effects

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/vestkit/vestd/apitypes"
	"github.com/vestkit/vestd/internal/vestdrv"
)

// Step activates Cells at Speed for DurationMS, then rests DelayMS with
// the cells zeroed.
type Step struct {
	Cells      []int `yaml:"cells" json:"cells"`
	Speed      int   `yaml:"speed" json:"speed"`
	DurationMS int   `yaml:"duration_ms" json:"duration_ms"`
	DelayMS    int   `yaml:"delay_ms" json:"delay_ms"`
}

// Effect is one named sequence of steps.
type Effect struct {
	Name        string `yaml:"name" json:"name"`
	DisplayName string `yaml:"display_name" json:"display_name"`
	Category    string `yaml:"category" json:"category"`
	Steps       []Step `yaml:"steps" json:"steps"`
}

// Library is the immutable-after-boot effect set.
type Library struct {
	effects map[string]Effect
}

// Builtin returns the library preloaded with the stock effects.
func Builtin() *Library {
	l := &Library{effects: make(map[string]Effect)}
	for _, e := range builtinEffects {
		l.effects[e.Name] = e
	}
	return l
}

// MergeFile overlays user-defined effects from a YAML file. Entries with
// known names replace the built-in definition.
func (l *Library) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return l.Merge(data)
}

// Merge overlays effects parsed from YAML data.
func (l *Library) Merge(data []byte) error {
	var doc struct {
		Effects []Effect `yaml:"effects"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse effects file: %w", err)
	}
	for _, e := range doc.Effects {
		if e.Name == "" {
			return fmt.Errorf("effect without a name")
		}
		for _, s := range e.Steps {
			for _, c := range s.Cells {
				if err := vestdrv.ValidateCell(c); err != nil {
					return fmt.Errorf("effect %s: %w", e.Name, err)
				}
			}
			if err := vestdrv.ValidateSpeed(s.Speed); err != nil {
				return fmt.Errorf("effect %s: %w", e.Name, err)
			}
		}
		l.effects[e.Name] = e
	}
	return nil
}

// Get looks up an effect by name.
func (l *Library) Get(name string) (Effect, bool) {
	e, ok := l.effects[name]
	return e, ok
}

// List returns effect summaries sorted by name.
func (l *Library) List() []apitypes.EffectInfo {
	out := make([]apitypes.EffectInfo, 0, len(l.effects))
	for _, e := range l.effects {
		out = append(out, apitypes.EffectInfo{
			Name:        e.Name,
			DisplayName: e.DisplayName,
			Category:    e.Category,
			Steps:       len(e.Steps),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Cell layout: 0-3 front (upper L/R, lower L/R), 4-7 back mirrored.
var builtinEffects = []Effect{
	{
		Name: "heartbeat", DisplayName: "Heartbeat", Category: "ambient",
		Steps: []Step{
			{Cells: []int{0, 1}, Speed: 6, DurationMS: 120, DelayMS: 80},
			{Cells: []int{0, 1}, Speed: 4, DurationMS: 100, DelayMS: 600},
		},
	},
	{
		Name: "wave_front", DisplayName: "Front Wave", Category: "sweep",
		Steps: []Step{
			{Cells: []int{0}, Speed: 5, DurationMS: 90, DelayMS: 0},
			{Cells: []int{1}, Speed: 5, DurationMS: 90, DelayMS: 0},
			{Cells: []int{3}, Speed: 5, DurationMS: 90, DelayMS: 0},
			{Cells: []int{2}, Speed: 5, DurationMS: 90, DelayMS: 0},
		},
	},
	{
		Name: "wave_back", DisplayName: "Back Wave", Category: "sweep",
		Steps: []Step{
			{Cells: []int{4}, Speed: 5, DurationMS: 90, DelayMS: 0},
			{Cells: []int{5}, Speed: 5, DurationMS: 90, DelayMS: 0},
			{Cells: []int{7}, Speed: 5, DurationMS: 90, DelayMS: 0},
			{Cells: []int{6}, Speed: 5, DurationMS: 90, DelayMS: 0},
		},
	},
	{
		Name: "impact_all", DisplayName: "Full Impact", Category: "hit",
		Steps: []Step{
			{Cells: []int{0, 1, 2, 3, 4, 5, 6, 7}, Speed: 10, DurationMS: 180, DelayMS: 0},
		},
	},
	{
		Name: "rain", DisplayName: "Rain", Category: "ambient",
		Steps: []Step{
			{Cells: []int{0}, Speed: 2, DurationMS: 60, DelayMS: 40},
			{Cells: []int{5}, Speed: 2, DurationMS: 60, DelayMS: 40},
			{Cells: []int{3}, Speed: 2, DurationMS: 60, DelayMS: 40},
			{Cells: []int{6}, Speed: 2, DurationMS: 60, DelayMS: 40},
			{Cells: []int{1}, Speed: 2, DurationMS: 60, DelayMS: 40},
			{Cells: []int{4}, Speed: 2, DurationMS: 60, DelayMS: 40},
		},
	},
}
