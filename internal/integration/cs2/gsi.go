// Package cs2 implements the Counter-Strike 2 integration. CS2's
// game-state-integration (GSI) feature POSTs JSON snapshots to a local
// HTTP endpoint; this manager runs that endpoint, derives damage deltas
// from consecutive player states and turns them into haptics.
package cs2

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vestkit/vestd/apitypes"
	"github.com/vestkit/vestd/internal/integration"
)

const shutdownTimeout = 2 * time.Second

// Config is the start payload: the loopback port CS2 is configured to
// POST game state to.
type Config struct {
	GSIPort int `json:"gsi_port"`
}

// Manager runs the GSI HTTP server on its own goroutine. Server lifetime
// is tied to the running flag.
type Manager struct {
	integration.BaseState

	sink   integration.Sink
	logger *slog.Logger

	cfg Config
	srv *http.Server
}

// New creates the CS2 manager.
func New(sink integration.Sink, logger *slog.Logger) *Manager {
	return &Manager{sink: sink, logger: logger.With("integration", "cs2")}
}

func (m *Manager) Name() string { return "cs2" }

// Start binds the GSI endpoint. A bind failure fails the start and leaves
// the manager stopped.
func (m *Manager) Start(raw json.RawMessage) error {
	var cfg Config
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return fmt.Errorf("invalid cs2_start parameters: %w", err)
		}
	}
	if cfg.GSIPort <= 0 {
		return fmt.Errorf("gsi_port is required")
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.GSIPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bind gsi port: %w", err)
	}
	if !m.MarkStarted() {
		_ = ln.Close()
		return nil
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.POST("/", m.handlePost)

	m.cfg = cfg
	m.srv = &http.Server{Handler: router}
	go func() {
		if err := m.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			m.logger.Error("gsi server", "error", err)
		}
	}()
	m.logger.Info("cs2 gsi listening", "addr", addr)
	return nil
}

// Stop shuts the GSI server down. Idempotent.
func (m *Manager) Stop() error {
	if !m.MarkStopped() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := m.srv.Shutdown(ctx); err != nil {
		m.logger.Warn("gsi shutdown", "error", err)
	}
	m.logger.Info("cs2 gsi stopped")
	return nil
}

func (m *Manager) Status() apitypes.IntegrationStatus {
	extra := map[string]any{}
	if m.cfg.GSIPort > 0 {
		extra["gsi_port"] = m.cfg.GSIPort
	}
	return m.Snapshot("cs2", extra)
}

// HandleEvent ingests one payload delivered through the dispatcher
// (cs2_event command); it accepts the same shapes as the HTTP endpoint.
func (m *Manager) HandleEvent(raw json.RawMessage) error {
	if !m.Running() {
		return fmt.Errorf("cs2 integration is not running")
	}
	return m.ingest(raw)
}

func (m *Manager) handlePost(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	if !m.Running() {
		m.logger.Warn("gsi payload while not running, discarded")
		c.JSON(http.StatusOK, gin.H{"accepted": false})
		return
	}
	if err := m.ingest(raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accepted": true})
}

// gsiPayload is the subset of a CS2 GSI snapshot the manager consumes.
type gsiPayload struct {
	// Direct form, used by cs2_event commands and tests.
	EventType string `json:"event_type,omitempty"`
	Amount    int    `json:"amount,omitempty"`

	Player *struct {
		State *struct {
			Health int `json:"health"`
			Armor  int `json:"armor"`
		} `json:"state"`
	} `json:"player"`
	Previously *struct {
		Player *struct {
			State *struct {
				Health int `json:"health"`
			} `json:"state"`
		} `json:"player"`
	} `json:"previously"`
}

func (m *Manager) ingest(raw []byte) error {
	var p gsiPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	if p.EventType != "" {
		m.emit(p.EventType, p.Amount)
		return nil
	}

	damage, ok := damageFromStates(p)
	if !ok {
		return nil // snapshot without a health drop; nothing to do
	}
	m.emit("damage", damage)
	return nil
}

func (m *Manager) emit(eventType string, amount int) {
	m.RecordEvent(eventType)
	params := map[string]any{}
	if amount != 0 {
		params["amount"] = amount
	}
	m.sink.OnGameEvent(eventType, params)
	if eventType == "damage" {
		speed := DamageSpeed(amount)
		for _, cell := range DamageCells(amount) {
			m.sink.Trigger(cell, speed)
		}
	}
}

// damageFromStates extracts the health drop between the previous and
// current player state of a GSI snapshot.
func damageFromStates(p gsiPayload) (int, bool) {
	if p.Player == nil || p.Player.State == nil ||
		p.Previously == nil || p.Previously.Player == nil || p.Previously.Player.State == nil {
		return 0, false
	}
	delta := p.Previously.Player.State.Health - p.Player.State.Health
	if delta <= 0 {
		return 0, false
	}
	return delta, true
}

// DamageCells picks the cells a damage event actuates: the upper front
// pair, widening to the whole front for heavy hits.
func DamageCells(amount int) []int {
	if amount >= 50 {
		return []int{0, 1, 2, 3}
	}
	return []int{0, 1}
}

// DamageSpeed scales a health drop onto intensity 1..10, monotone
// non-decreasing and clamped.
func DamageSpeed(amount int) int {
	if amount < 0 {
		amount = 0
	}
	return integration.ClampSpeed(1 + amount*9/100)
}
