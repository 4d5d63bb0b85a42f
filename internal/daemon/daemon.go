// Package daemon assembles the vest control daemon: driver, registry,
// addressing tables, effect sequencer, integration managers and the
// broker, wired together and torn down in the right order.
package daemon

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vestkit/vestd/apitypes"
	"github.com/vestkit/vestd/internal/broker"
	"github.com/vestkit/vestd/internal/broker/handler"
	"github.com/vestkit/vestd/internal/effects"
	"github.com/vestkit/vestd/internal/integration"
	"github.com/vestkit/vestd/internal/integration/cs2"
	"github.com/vestkit/vestd/internal/integration/logtail"
	"github.com/vestkit/vestd/internal/integration/screenwatch"
	"github.com/vestkit/vestd/internal/lifecycle"
	"github.com/vestkit/vestd/internal/log"
	"github.com/vestkit/vestd/internal/player"
	"github.com/vestkit/vestd/internal/registry"
	"github.com/vestkit/vestd/internal/vestdrv"
)

// integrationStopTimeout bounds each manager's Stop during shutdown.
const integrationStopTimeout = 2 * time.Second

// Options configure a daemon instance.
type Options struct {
	Host string
	Port int

	// MockDevices pre-registers this many mock vests at boot.
	MockDevices int
	// EffectsFile overlays user-defined effects onto the built-in library.
	EffectsFile string

	// Driver overrides the USB driver; nil selects real hardware. Tests
	// inject a stub here.
	Driver vestdrv.Driver
	// FrameSource enables the screenwatch integration when non-nil.
	FrameSource screenwatch.FrameSource
	// Wire receives raw protocol lines when non-nil.
	Wire log.WireLogger

	// NoPIDFile skips the lifecycle guard; tests binding port 0 use it.
	NoPIDFile bool
}

// Daemon is a running vest control daemon.
type Daemon struct {
	opts   Options
	logger *slog.Logger

	driver   vestdrv.Driver
	registry *registry.Registry
	library  *effects.Library
	seq      *effects.Sequencer
	broker   *broker.Broker
	guard    *lifecycle.Guard
	managers []integration.Manager

	port     int
	stopOnce sync.Once
	stopped  chan struct{}
}

// New creates an unstarted daemon.
func New(opts Options, logger *slog.Logger) *Daemon {
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	return &Daemon{opts: opts, logger: logger, stopped: make(chan struct{})}
}

// Start brings the daemon up: lifecycle guard, state, handlers, listener.
func (d *Daemon) Start() error {
	if !d.opts.NoPIDFile {
		guard, err := lifecycle.Acquire(d.opts.Host, d.opts.Port, d.logger)
		if err != nil {
			return err
		}
		d.guard = guard
	}

	d.driver = d.opts.Driver
	if d.driver == nil {
		d.driver = vestdrv.NewUSB(d.logger)
	}

	d.library = effects.Builtin()
	if d.opts.EffectsFile != "" {
		if err := d.library.MergeFile(d.opts.EffectsFile); err != nil {
			d.release()
			return fmt.Errorf("effects file: %w", err)
		}
		d.logger.Info("effects file merged", "path", d.opts.EffectsFile)
	}
	d.seq = effects.NewSequencer(d.library, d.logger)

	d.registry = registry.New(d.driver, d.logger)
	players := player.NewManager()
	games := player.NewGameMap()

	cfg := broker.Config{Host: d.opts.Host, Port: d.opts.Port}
	d.broker = broker.New(cfg, d.registry, players, games, d.seq, d.opts.Wire, d.logger)

	d.buildIntegrations()
	d.registerHandlers()

	// Pre-seeded mocks go in before the loop starts; after Start the
	// registry belongs to the broker loop.
	for i := 0; i < d.opts.MockDevices; i++ {
		if _, _, err := d.registry.AddMockDevice(); err != nil {
			d.release()
			return err
		}
	}

	port, err := d.broker.Start()
	if err != nil {
		d.release()
		return err
	}
	d.port = port
	d.logger.Info("daemon started", "host", d.opts.Host, "port", port,
		"mock_devices", d.opts.MockDevices, "integrations", len(d.managers))
	return nil
}

// Port returns the bound listener port.
func (d *Daemon) Port() int { return d.port }

// Broker exposes the broker; tests post onto the loop through it.
func (d *Daemon) Broker() *broker.Broker { return d.broker }

// Done is closed once the daemon has fully stopped (by signal or by the
// shutdown command).
func (d *Daemon) Done() <-chan struct{} { return d.stopped }

// Stop tears the daemon down: listener first, then integrations (each
// bounded), then devices, then the PID file. Idempotent.
func (d *Daemon) Stop() {
	d.stopOnce.Do(func() {
		d.broker.Stop()
		for _, m := range d.managers {
			d.stopManager(m)
		}
		d.registry.RemoveAll()
		d.release()
		d.logger.Info("daemon stopped")
		close(d.stopped)
	})
}

func (d *Daemon) release() {
	if d.guard != nil {
		d.guard.Release()
		d.guard = nil
	}
}

func (d *Daemon) stopManager(m integration.Manager) {
	done := make(chan error, 1)
	go func() { done <- m.Stop() }()
	select {
	case err := <-done:
		if err != nil {
			d.logger.Warn("integration stop", "integration", m.Name(), "error", err)
		}
	case <-time.After(integrationStopTimeout):
		d.logger.Warn("integration stop timed out", "integration", m.Name())
	}
}

func (d *Daemon) buildIntegrations() {
	d.managers = append(d.managers,
		logtail.New(logtail.ArenaProfile(), d.sinkFor("arena"), d.logger),
		cs2.New(d.sinkFor("cs2"), d.logger),
	)
	if d.opts.FrameSource != nil {
		d.managers = append(d.managers,
			screenwatch.New(d.opts.FrameSource, d.sinkFor("screenwatch"), d.logger))
	}
}

func (d *Daemon) registerHandlers() {
	b := d.broker
	b.Handle(apitypes.CmdPing, handler.Ping(b))

	b.Handle(apitypes.CmdList, handler.List(b, d.driver))
	b.Handle(apitypes.CmdListConnectedDevices, handler.ListConnectedDevices(b))
	b.Handle(apitypes.CmdGetSelectedDevice, handler.GetSelectedDevice(b))

	b.Handle(apitypes.CmdSelectDevice, handler.SelectDevice(b))
	b.Handle(apitypes.CmdClearDevice, handler.ClearDevice(b))

	b.Handle(apitypes.CmdSetMainDevice, handler.SetMainDevice(b))
	b.Handle(apitypes.CmdDisconnectDevice, handler.DisconnectDevice(b))
	b.Handle(apitypes.CmdCreateMockDevice, handler.CreateMockDevice(b))
	b.Handle(apitypes.CmdRemoveMockDevice, handler.RemoveMockDevice(b))

	b.Handle(apitypes.CmdCreatePlayer, handler.CreatePlayer(b))
	b.Handle(apitypes.CmdAssignPlayer, handler.AssignPlayer(b))
	b.Handle(apitypes.CmdUnassignPlayer, handler.UnassignPlayer(b))
	b.Handle(apitypes.CmdListPlayers, handler.ListPlayers(b))
	b.Handle(apitypes.CmdGetPlayerDevice, handler.GetPlayerDevice(b))

	b.Handle(apitypes.CmdSetGamePlayerMapping, handler.SetGamePlayerMapping(b))
	b.Handle(apitypes.CmdClearGamePlayerMapping, handler.ClearGamePlayerMapping(b))
	b.Handle(apitypes.CmdListGamePlayerMappings, handler.ListGamePlayerMappings(b))

	b.Handle(apitypes.CmdConnect, handler.Connect(b))
	b.Handle(apitypes.CmdDisconnect, handler.Disconnect(b))
	b.Handle(apitypes.CmdTrigger, handler.Trigger(b))
	b.Handle(apitypes.CmdStop, handler.Stop(b))

	b.Handle(apitypes.CmdStatus, handler.Status(b))

	b.Handle(apitypes.CmdPlayEffect, handler.PlayEffect(b))
	b.Handle(apitypes.CmdListEffects, handler.ListEffects(d.library))
	b.Handle(apitypes.CmdStopEffect, handler.StopEffect(b))

	b.Handle(apitypes.CmdShutdown, func(req *broker.Request, res *apitypes.Response, logger *slog.Logger) error {
		logger.Info("shutdown requested")
		ok := true
		res.OK = &ok
		// Stop runs off the loop; its client sweep is queued behind this
		// command, so the acknowledgement still goes out.
		go d.Stop()
		return nil
	})

	for _, m := range d.managers {
		b.Handle(m.Name()+"_start", handler.IntegrationStart(b, m))
		b.Handle(m.Name()+"_stop", handler.IntegrationStop(b, m))
		b.Handle(m.Name()+"_status", handler.IntegrationStatus(m))
		b.Handle(m.Name()+"_event", handler.IntegrationEvent(m))
	}
	b.Handle(apitypes.CmdListIntegrations, handler.ListIntegrations(d.managers))
}
