// Package config declares the CLI surface parsed by kong.
package config

import "github.com/vestkit/vestd/internal/cmd"

// LogConfig holds the logging flags shared by every command.
type LogConfig struct {
	Level    string `help:"Log level (trace, debug, info, warn, error)" default:"info" env:"VESTD_LOG_LEVEL"`
	File     string `help:"Also write logs to this file" env:"VESTD_LOG_FILE"`
	WireFile string `help:"Write raw protocol lines to this file" env:"VESTD_LOG_WIRE_FILE"`
}

// CLI is the root command tree.
type CLI struct {
	Log    LogConfig `embed:"" prefix:"log."`
	Config string    `help:"Path to configuration file (JSON/YAML/TOML)" type:"path"`

	Daemon    cmd.DaemonCommand `cmd:"" help:"Control daemon lifecycle"`
	ConfigCmd cmd.ConfigCommand `cmd:"" name:"config" help:"Configuration helpers"`
}
