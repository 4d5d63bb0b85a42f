package main

import (
	"os"
	"strings"

	"github.com/vestkit/vestd/internal/config"
	"github.com/vestkit/vestd/internal/configpaths"
	"github.com/vestkit/vestd/internal/log"

	"github.com/alecthomas/kong"
	kongtoml "github.com/alecthomas/kong-toml"
	kongyaml "github.com/alecthomas/kong-yaml"
)

func main() {

	userCfg := findUserConfig(os.Args[1:])
	jsonPaths, yamlPaths, tomlPaths := configpaths.ConfigCandidatePaths(userCfg)

	var cli config.CLI
	ctx := kong.Parse(&cli,
		kong.Name("vestd"),
		kong.Description("Haptic vest control daemon"),
		kong.UsageOnError(),
		// Load configuration from JSON/YAML/TOML in priority order; flags/env override config values.
		kong.Configuration(kong.JSON, jsonPaths...),
		kong.Configuration(kongyaml.Loader, yamlPaths...),
		kong.Configuration(kongtoml.Loader, tomlPaths...),
	)

	logger, closeFiles, err := log.SetupLogger(cli.Log.Level, cli.Log.File)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
		os.Exit(2)
	}
	defer func() {
		for _, c := range closeFiles {
			_ = c.Close()
		}
	}()

	var wire log.WireLogger
	if cli.Log.WireFile != "" {
		f, err := os.OpenFile(cli.Log.WireFile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			logger.Error("failed to open wire log file", "file", cli.Log.WireFile, "error", err)
			wire = log.NewWire(nil)
		} else {
			wire = log.NewWire(f)
			closeFiles = append(closeFiles, f)
		}
	} else if log.IsTrace(cli.Log.Level) {
		wire = log.NewWire(os.Stdout)
	} else {
		wire = log.NewWire(nil)
	}

	ctx.Bind(logger)
	ctx.BindTo(wire, (*log.WireLogger)(nil))

	err = ctx.Run()
	ctx.FatalIfErrorf(err)
}

func findUserConfig(args []string) string {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if strings.HasPrefix(a, "--config=") {
			return a[len("--config="):]
		}
		if a == "--config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	if v := os.Getenv("VESTD_CONFIG"); v != "" {
		return v
	}
	return ""
}
