// Package cmd holds the kong command structs behind the vestd CLI.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/vestkit/vestd/apiclient"
	"github.com/vestkit/vestd/internal/daemon"
	"github.com/vestkit/vestd/internal/lifecycle"
	"github.com/vestkit/vestd/internal/log"
)

// DaemonCommand groups daemon lifecycle subcommands.
type DaemonCommand struct {
	Start  DaemonStart  `cmd:"" help:"Run the control daemon in the foreground"`
	Stop   DaemonStop   `cmd:"" help:"Stop a running daemon"`
	Status DaemonStatus `cmd:"" help:"Report whether a daemon is running"`
	Ping   DaemonPing   `cmd:"" help:"Round-trip a ping through a running daemon"`
}

// DaemonStart runs the daemon until interrupted or shut down over the wire.
type DaemonStart struct {
	Host        string `help:"Listen address" default:"127.0.0.1" env:"VESTD_HOST"`
	Port        int    `help:"Listen port" default:"5050" env:"VESTD_PORT"`
	MockDevices int    `help:"Pre-register this many mock vests at boot" default:"0"`
	EffectsFile string `help:"Effects file overlaid onto the built-in library"`
}

// Run is called by Kong when the daemon start command is executed.
func (s *DaemonStart) Run(logger *slog.Logger, wire log.WireLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := daemon.New(daemon.Options{
		Host:        s.Host,
		Port:        s.Port,
		MockDevices: s.MockDevices,
		EffectsFile: s.EffectsFile,
		Wire:        wire,
	}, logger)
	if err := d.Start(); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		d.Stop()
	case <-d.Done():
		// shutdown command arrived over the wire
	}
	return nil
}

// DaemonStop asks a running daemon to shut down.
type DaemonStop struct {
	Host  string `help:"Daemon address" default:"127.0.0.1" env:"VESTD_HOST"`
	Port  int    `help:"Daemon port" default:"5050" env:"VESTD_PORT"`
	Force bool   `help:"Kill the daemon process instead of asking it to stop"`
}

func (s *DaemonStop) Run(logger *slog.Logger) error {
	if s.Force {
		if err := lifecycle.Kill(s.Port); err != nil {
			return err
		}
		logger.Info("daemon killed", "port", s.Port)
		return nil
	}

	c, err := apiclient.New(net.JoinHostPort(s.Host, strconv.Itoa(s.Port)))
	if err != nil {
		return fmt.Errorf("daemon not reachable: %w", err)
	}
	defer func() { _ = c.Close() }()
	if err := c.Shutdown(); err != nil {
		return err
	}

	// The acknowledgement precedes teardown; wait for the port to close.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if !lifecycle.PortOpen(s.Host, s.Port) {
			logger.Info("daemon stopped", "port", s.Port)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon acknowledged shutdown but port %d is still open", s.Port)
}

// DaemonStatus reports whether a daemon is running on the given port.
type DaemonStatus struct {
	Host string `help:"Daemon address" default:"127.0.0.1" env:"VESTD_HOST"`
	Port int    `help:"Daemon port" default:"5050" env:"VESTD_PORT"`
}

func (s *DaemonStatus) Run() error {
	pid, ok := lifecycle.Running(s.Host, s.Port)
	if !ok {
		return fmt.Errorf("daemon not running on %s:%d", s.Host, s.Port)
	}
	fmt.Printf("daemon running (pid %d) on %s:%d\n", pid, s.Host, s.Port)

	c, err := apiclient.New(net.JoinHostPort(s.Host, strconv.Itoa(s.Port)))
	if err != nil {
		return nil
	}
	defer func() { _ = c.Close() }()
	if p, err := c.Ping(); err == nil {
		fmt.Printf("main device connected: %v  selected: %v  clients: %d\n",
			p.Connected, p.HasDeviceSelected, p.ClientCount)
	}
	return nil
}

// DaemonPing round-trips one ping command, tolerating interleaved events.
type DaemonPing struct {
	Host string `help:"Daemon address" default:"127.0.0.1" env:"VESTD_HOST"`
	Port int    `help:"Daemon port" default:"5050" env:"VESTD_PORT"`
}

func (p *DaemonPing) Run() error {
	c, err := apiclient.New(net.JoinHostPort(p.Host, strconv.Itoa(p.Port)))
	if err != nil {
		return fmt.Errorf("daemon not reachable: %w", err)
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	start := time.Now()
	res, err := c.PingCtx(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("pong in %s (alive: %v, connected: %v, clients: %d)\n",
		time.Since(start).Round(time.Microsecond), res.Alive, res.Connected, res.ClientCount)
	return nil
}
