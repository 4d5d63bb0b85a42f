package screenwatch

import (
	"encoding/json"
	"fmt"
	"image"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/vestkit/vestd/apitypes"
	"github.com/vestkit/vestd/internal/integration"
	"github.com/vestkit/vestd/internal/vestdrv"
)

const (
	defaultFPS        = 10
	defaultCooldown   = 500 * time.Millisecond
	healthEmitPeriod  = 500 * time.Millisecond
	healthEmitMinStep = 0.005
)

// FrameSource is the capture backend the watcher polls. Capture is called
// from the watcher's own goroutine, once per tick.
type FrameSource interface {
	Capture() (*image.RGBA, error)
}

// SourceFunc adapts a plain function to a FrameSource.
type SourceFunc func() (*image.RGBA, error)

func (f SourceFunc) Capture() (*image.RGBA, error) { return f() }

// RednessRegion configures one red-flash detector rectangle.
type RednessRegion struct {
	Name       string  `json:"name"`
	Direction  string  `json:"direction,omitempty"`
	ROI        ROI     `json:"roi"`
	Threshold  float64 `json:"threshold"`
	CooldownMS int     `json:"cooldown_ms,omitempty"`
}

// HealthBarConfig configures the colour-classified health bar detector.
type HealthBarConfig struct {
	ROI         ROI     `json:"roi"`
	Filled      RGB     `json:"filled_rgb"`
	Empty       RGB     `json:"empty_rgb"`
	Tolerance   int     `json:"tolerance"`
	RowFraction float64 `json:"row_fraction,omitempty"`
	MinDrop     float64 `json:"min_drop"`
	CooldownMS  int     `json:"cooldown_ms,omitempty"`
}

// OCRConfig configures the digit-template health number reader.
type OCRConfig struct {
	ROI         ROI   `json:"roi"`
	Digits      int   `json:"digits"`
	Threshold   uint8 `json:"gray_threshold"`
	Invert      bool  `json:"invert,omitempty"`
	HammingMax  int   `json:"hamming_max"`
	StableReads int   `json:"stable_reads"`
	MinDrop     int   `json:"min_drop"`
	CooldownMS  int   `json:"cooldown_ms,omitempty"`
}

// Config is the start payload: capture rate plus any combination of the
// three detector kinds.
type Config struct {
	FPS       int              `json:"fps,omitempty"`
	Redness   []RednessRegion  `json:"redness,omitempty"`
	HealthBar *HealthBarConfig `json:"health_bar,omitempty"`
	HealthOCR *OCRConfig       `json:"health_ocr,omitempty"`
}

// Manager runs the capture pump on its own goroutine and keeps the
// per-detector cooldown and smoothing state between frames.
type Manager struct {
	integration.BaseState

	source FrameSource
	sink   integration.Sink
	logger *slog.Logger

	cfg  Config
	stop chan struct{}
	done chan struct{}

	rednessLast map[string]time.Time

	healthPrev     float64
	healthLastEmit time.Time
	healthLastHit  time.Time

	ocrValue     int
	ocrCandidate int
	ocrStreak    int
	ocrLastHit   time.Time
}

// New creates the watcher over the given capture backend.
func New(source FrameSource, sink integration.Sink, logger *slog.Logger) *Manager {
	return &Manager{
		source: source,
		sink:   sink,
		logger: logger.With("integration", "screenwatch"),
	}
}

func (m *Manager) Name() string { return "screenwatch" }

// Start validates the detector configuration and begins the capture loop.
func (m *Manager) Start(raw json.RawMessage) error {
	var cfg Config
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return fmt.Errorf("invalid screenwatch_start parameters: %w", err)
		}
	}
	if len(cfg.Redness) == 0 && cfg.HealthBar == nil && cfg.HealthOCR == nil {
		return fmt.Errorf("at least one detector must be configured")
	}
	for i, r := range cfg.Redness {
		if r.Name == "" {
			return fmt.Errorf("redness region %d: name is required", i)
		}
		if r.Threshold <= 0 || r.Threshold > 1 {
			return fmt.Errorf("redness region %q: threshold must be in (0,1]", r.Name)
		}
	}
	if ocr := cfg.HealthOCR; ocr != nil {
		if ocr.Digits < 1 {
			return fmt.Errorf("health_ocr: digits must be at least 1")
		}
		if ocr.StableReads < 1 {
			ocr.StableReads = 1
		}
	}
	if !m.MarkStarted() {
		return nil
	}

	m.cfg = cfg
	m.rednessLast = make(map[string]time.Time)
	m.healthPrev = -1
	m.healthLastEmit = time.Time{}
	m.ocrValue = -1
	m.ocrCandidate = -1
	m.ocrStreak = 0
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.worker()
	m.logger.Info("screen watcher started",
		"fps", m.fps(), "redness_regions", len(cfg.Redness),
		"health_bar", cfg.HealthBar != nil, "health_ocr", cfg.HealthOCR != nil)
	return nil
}

// Stop halts the capture loop. Idempotent.
func (m *Manager) Stop() error {
	if !m.MarkStopped() {
		return nil
	}
	close(m.stop)
	<-m.done
	m.logger.Info("screen watcher stopped")
	return nil
}

func (m *Manager) Status() apitypes.IntegrationStatus {
	extra := map[string]any{
		"fps":             m.fps(),
		"redness_regions": len(m.cfg.Redness),
	}
	return m.Snapshot("screenwatch", extra)
}

// HandleEvent is unsupported; the watcher is fed by its capture loop.
func (m *Manager) HandleEvent(raw json.RawMessage) error {
	return fmt.Errorf("screenwatch does not accept direct events")
}

func (m *Manager) fps() int {
	if m.cfg.FPS > 0 {
		return m.cfg.FPS
	}
	return defaultFPS
}

func (m *Manager) worker() {
	defer close(m.done)

	ticker := time.NewTicker(time.Second / time.Duration(m.fps()))
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			frame, err := m.source.Capture()
			if err != nil {
				m.logger.Warn("frame capture failed, retrying", "error", err)
				continue
			}
			m.scan(frame, time.Now())
		}
	}
}

// scan runs every configured detector over one frame.
func (m *Manager) scan(frame *image.RGBA, now time.Time) {
	for _, region := range m.cfg.Redness {
		m.scanRedness(frame, region, now)
	}
	if m.cfg.HealthBar != nil {
		m.scanHealthBar(frame, *m.cfg.HealthBar, now)
	}
	if m.cfg.HealthOCR != nil {
		m.scanHealthOCR(frame, *m.cfg.HealthOCR, now)
	}
}

func cooldown(ms int) time.Duration {
	if ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultCooldown
}

func (m *Manager) scanRedness(frame *image.RGBA, region RednessRegion, now time.Time) {
	score := RednessScore(frame, region.ROI.Bounds(frame.Bounds()))
	if score < region.Threshold {
		return
	}
	if now.Sub(m.rednessLast[region.Name]) < cooldown(region.CooldownMS) {
		return
	}
	m.rednessLast[region.Name] = now
	m.emit("hit_recorded", map[string]any{
		"roi":       region.Name,
		"direction": region.Direction,
		"score":     score,
	})
	speed := integration.ClampSpeed(1 + int(score*9))
	m.sink.Trigger(rand.IntN(vestdrv.Cells), speed)
}

func (m *Manager) scanHealthBar(frame *image.RGBA, cfg HealthBarConfig, now time.Time) {
	rowFraction := cfg.RowFraction
	if rowFraction <= 0 {
		rowFraction = 0.5
	}
	fraction := HealthFraction(frame, cfg.ROI.Bounds(frame.Bounds()),
		cfg.Filled, cfg.Empty, cfg.Tolerance, rowFraction)

	prev := m.healthPrev
	changed := prev < 0 || fraction > prev+healthEmitMinStep || fraction < prev-healthEmitMinStep
	if changed || now.Sub(m.healthLastEmit) >= healthEmitPeriod {
		m.emit("health_percent", map[string]any{"percent": fraction * 100})
		m.healthLastEmit = now
	}
	if prev >= 0 && prev-fraction >= cfg.MinDrop &&
		now.Sub(m.healthLastHit) >= cooldown(cfg.CooldownMS) {
		m.healthLastHit = now
		drop := prev - fraction
		m.emit("hit_recorded", map[string]any{"source": "health_bar", "drop": drop * 100})
		speed := integration.ClampSpeed(1 + int(drop*9))
		m.sink.Trigger(0, speed)
		m.sink.Trigger(1, speed)
	}
	m.healthPrev = fraction
}

func (m *Manager) scanHealthOCR(frame *image.RGBA, cfg OCRConfig, now time.Time) {
	value, ok := ReadDigits(frame, cfg.ROI.Bounds(frame.Bounds()),
		cfg.Digits, cfg.Threshold, cfg.Invert, cfg.HammingMax)
	if !ok {
		m.ocrCandidate = -1
		m.ocrStreak = 0
		return
	}
	if value != m.ocrCandidate {
		m.ocrCandidate = value
		m.ocrStreak = 1
	} else {
		m.ocrStreak++
	}
	if m.ocrStreak < cfg.StableReads || value == m.ocrValue {
		return
	}

	prev := m.ocrValue
	m.ocrValue = value
	m.emit("health_value", map[string]any{"value": value})
	if prev >= 0 && prev-value >= cfg.MinDrop &&
		now.Sub(m.ocrLastHit) >= cooldown(cfg.CooldownMS) {
		m.ocrLastHit = now
		drop := prev - value
		m.emit("hit_recorded", map[string]any{"source": "health_ocr", "drop": drop})
		speed := integration.ClampSpeed(1 + drop*9/100)
		m.sink.Trigger(0, speed)
		m.sink.Trigger(1, speed)
	}
}

func (m *Manager) emit(eventType string, params map[string]any) {
	m.RecordEvent(eventType)
	m.sink.OnGameEvent(eventType, params)
}
