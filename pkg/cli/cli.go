// Package cli provides the command-line interface for tapresolver.
package cli

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/tapresolver/pkg/config"
	"github.com/devicelab-dev/tapresolver/pkg/logger"
)

// Version is set at build time.
var Version = "dev"

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "device",
		Aliases: []string{"s"},
		Usage:   "Device serial to connect to (auto-detected when empty)",
		EnvVars: []string{"TAPRESOLVER_DEVICE"},
	},
	&cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to config.yaml (defaults to <home>/config.yaml)",
		EnvVars: []string{"TAPRESOLVER_CONFIG"},
	},
	&cli.BoolFlag{
		Name:    "verbose",
		Usage:   "Enable verbose logging",
		EnvVars: []string{"TAPRESOLVER_VERBOSE"},
	},
}

// Execute runs the CLI.
func Execute() {
	app := &cli.App{
		Name:    "tapresolver",
		Usage:   "Resolve UI elements on a device and execute taps",
		Version: Version,
		Description: `Tapresolver finds the live on-screen element matching a recorded
fingerprint, normalizes it to a stable tap target, and taps it under a
selection policy.

Examples:
  tapresolver resolve --text "Follow" --policy first
  tapresolver resolve -f fingerprint.yaml --policy all --max-per-session 5
  tapresolver explain --desc "添加朋友"
  tapresolver paths -f fingerprint.yaml
  tapresolver devices`,
		Flags: GlobalFlags,
		Commands: []*cli.Command{
			resolveCommand,
			explainCommand,
			pathsCommand,
			devicesCommand,
			hierarchyCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config named by the flag, or the home config,
// falling back to defaults.
func loadConfig(c *cli.Context) (*config.Config, error) {
	if path := c.String("config"); path != "" {
		return config.Load(path)
	}
	return config.LoadFromDir(config.GetHome())
}

// initLogging configures the process logger from config and flags.
func initLogging(c *cli.Context, cfg *config.Config) error {
	if err := logger.Init(cfg.LogPath); err != nil {
		return err
	}
	if c.Bool("verbose") {
		logger.SetLevel("debug")
	} else {
		logger.SetLevel(cfg.LogLevel)
	}
	return nil
}
