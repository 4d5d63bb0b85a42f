// Package broker is the daemon's core: a loopback TCP listener speaking
// line-delimited JSON, a dispatcher over a closed command set, and the
// single goroutine that owns all mutable daemon state.
//
// Concurrency model: per-connection reader goroutines decode commands and
// enqueue them; integration workers enqueue callbacks via Post. The broker
// loop drains both queues and is the only goroutine that touches the
// registry, the addressing tables and the client set, so none of those
// carry locks. Commands are never dropped (readers block on a full
// queue); posted callbacks are haptic events that stale fast, so the post
// queue drops its oldest entry under back-pressure and counts the drops.
package broker

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vestkit/vestd/apitypes"
	"github.com/vestkit/vestd/internal/effects"
	"github.com/vestkit/vestd/internal/log"
	"github.com/vestkit/vestd/internal/player"
	"github.com/vestkit/vestd/internal/registry"
)

const (
	defaultMaxLineBytes = 1 << 20
	defaultQueueSize    = 256
)

// Config carries the broker's listener and queue settings.
type Config struct {
	Host string
	Port int
	// MaxLineBytes caps one wire line; a connection exceeding it is
	// closed with no response.
	MaxLineBytes int
	// QueueSize bounds the command and post queues.
	QueueSize int
}

func (c Config) maxLine() int {
	if c.MaxLineBytes > 0 {
		return c.MaxLineBytes
	}
	return defaultMaxLineBytes
}

func (c Config) queueSize() int {
	if c.QueueSize > 0 {
		return c.QueueSize
	}
	return defaultQueueSize
}

// Broker owns the daemon state and serves the control protocol.
type Broker struct {
	cfg    Config
	logger *slog.Logger
	wire   log.WireLogger

	registry *registry.Registry
	players  *player.Manager
	games    *player.GameMap
	effects  *effects.Sequencer

	handlers map[string]HandlerFunc
	clients  map[string]*Client

	cmds  chan func()
	posts chan func()
	quit  chan struct{}
	done  chan struct{}

	droppedPosts atomic.Int64

	server *server

	lastTS   float64
	stopOnce sync.Once
}

// New creates a broker over the given state. Handlers are registered with
// Handle before Start.
func New(cfg Config, reg *registry.Registry, players *player.Manager, games *player.GameMap,
	seq *effects.Sequencer, wire log.WireLogger, logger *slog.Logger) *Broker {
	return &Broker{
		cfg:      cfg,
		logger:   logger,
		wire:     wire,
		registry: reg,
		players:  players,
		games:    games,
		effects:  seq,
		handlers: make(map[string]HandlerFunc),
		clients:  make(map[string]*Client),
		cmds:     make(chan func(), cfg.queueSize()),
		posts:    make(chan func(), cfg.queueSize()),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Registry returns the device registry. Loop-goroutine only.
func (b *Broker) Registry() *registry.Registry { return b.registry }

// Players returns the player table. Loop-goroutine only.
func (b *Broker) Players() *player.Manager { return b.players }

// Games returns the game-player mapping. Loop-goroutine only.
func (b *Broker) Games() *player.GameMap { return b.games }

// Effects returns the effect sequencer.
func (b *Broker) Effects() *effects.Sequencer { return b.effects }

// ClientCount returns the number of connected clients. Loop-goroutine only.
func (b *Broker) ClientCount() int { return len(b.clients) }

// DroppedPosts returns how many posted callbacks were discarded under
// back-pressure.
func (b *Broker) DroppedPosts() int64 { return b.droppedPosts.Load() }

// Start binds the listener and runs the loop. Returns the bound address's
// actual port (useful with port 0 in tests).
func (b *Broker) Start() (int, error) {
	srv, err := newServer(b)
	if err != nil {
		return 0, err
	}
	b.server = srv
	go b.loop()
	go srv.serve()
	return srv.port(), nil
}

// Stop closes the listener, disconnects every client and halts the loop.
// Idempotent.
func (b *Broker) Stop() {
	b.stopOnce.Do(func() {
		if b.server != nil {
			b.server.close()
		}
		// The final sweep runs on the loop so it does not race handlers,
		// and the same job halts the loop: closing quit only after the
		// sweep guarantees the loop cannot exit without running it.
		b.run(func() {
			for _, id := range b.clientIDs() {
				b.removeClient(id)
			}
			close(b.quit)
		})
		<-b.done
	})
}

// clientIDs snapshots the client set so a sweep can mutate it while
// iterating. Loop-goroutine only.
func (b *Broker) clientIDs() []string {
	out := make([]string, 0, len(b.clients))
	for id := range b.clients {
		out = append(out, id)
	}
	return out
}

// Run enqueues a job onto the loop and blocks until it is accepted.
// Unlike Post, jobs are never dropped.
func (b *Broker) Run(job func()) { b.run(job) }

// run enqueues a job and blocks until there is room. Used for command
// handling, where dropping would lose a response.
func (b *Broker) run(job func()) {
	select {
	case b.cmds <- job:
	case <-b.quit:
	}
}

// Post schedules a callback onto the loop from another goroutine. Under
// back-pressure the oldest queued callback is dropped.
func (b *Broker) Post(job func()) {
	for {
		select {
		case b.posts <- job:
			return
		case <-b.quit:
			return
		default:
		}
		select {
		case <-b.posts:
			b.droppedPosts.Add(1)
			b.logger.Warn("post queue full, dropped oldest", "dropped", b.droppedPosts.Load())
		default:
		}
	}
}

func (b *Broker) loop() {
	defer close(b.done)
	for {
		select {
		case <-b.quit:
			return
		case job := <-b.cmds:
			job()
		case job := <-b.posts:
			job()
		}
	}
}

// eventTS produces a strictly increasing unix-seconds timestamp so event
// ordering is observable on the wire.
func (b *Broker) eventTS() float64 {
	ts := float64(time.Now().UnixNano()) / 1e9
	if ts <= b.lastTS {
		ts = b.lastTS + 1e-6
	}
	b.lastTS = ts
	return ts
}

// Broadcast fans an event out to every connected client, the originator
// included. Send failures mark the client for removal after the sweep so
// the set is not mutated mid-iteration. Loop-goroutine only.
func (b *Broker) Broadcast(event string, payload map[string]any) {
	line, err := json.Marshal(apitypes.Event{Event: event, TS: b.eventTS(), Payload: payload})
	if err != nil {
		b.logger.Error("event marshal", "event", event, "error", err)
		return
	}

	var toRemove []string
	for id, c := range b.clients {
		if err := c.writeLine(line); err != nil {
			toRemove = append(toRemove, id)
		}
	}
	for _, id := range toRemove {
		b.removeClient(id)
	}
}

// Tables implementation for the device resolver.

// GameDevice looks up a (game, slot) binding.
func (b *Broker) GameDevice(gameID string, playerNum int) (string, bool) {
	return b.games.Lookup(gameID, playerNum)
}

// PlayerDevice looks up a player's assigned device.
func (b *Broker) PlayerDevice(playerID string) (string, bool) {
	return b.players.DeviceFor(playerID)
}

// MainDevice returns the registry's main device id.
func (b *Broker) MainDevice() string { return b.registry.MainID() }
