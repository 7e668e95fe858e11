/*
Copyright © 2025 NVIDIA Corporation
SPDX-License-Identifier: Apache-2.0
*/
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/NVIDIA/fleet-probe/pkg/config"
	"github.com/NVIDIA/fleet-probe/pkg/inventory"
	"github.com/NVIDIA/fleet-probe/pkg/logging"
	"github.com/NVIDIA/fleet-probe/pkg/manager"
	"github.com/NVIDIA/fleet-probe/pkg/transport"
)

const (
	name           = "fleetprobe"
	versionDefault = "dev"
)

var (
	// overridden during build with ldflags
	version = versionDefault
	commit  = "unknown"
	date    = "unknown"
)

// Root builds the top-level command with all subcommands attached.
func Root() *cli.Command {
	return &cli.Command{
		Name:    name,
		Usage:   "Fleet diagnostic collection engine",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Run configuration file (YAML)",
				Sources: cli.EnvVars("FLEETPROBE_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("FLEETPROBE_LOG_LEVEL"),
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			logging.SetDefaultStructuredLoggerWithLevel(name, version, cmd.String("log-level"))
			slog.Debug("starting", "name", name, "version", version, "commit", commit, "date", date)
			return ctx, nil
		},
		Commands: []*cli.Command{
			collectCmd(),
			execCmd(),
			publishCmd(),
			versionCmd(),
		},
	}
}

// Execute runs the CLI with graceful shutdown on SIGINT/SIGTERM. It is
// called by main and exits the process on error.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := Root().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print version information",
		Action: func(_ context.Context, cmd *cli.Command) error {
			fmt.Fprintf(cmd.Root().Writer, "%s %s (commit %s, built %s)\n", name, version, commit, date)
			return nil
		},
	}
}

// inventoryFlags are shared by every command that discovers hosts.
func inventoryFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "inventory",
			Usage:   "Replay a pre-captured JSON inventory instead of querying Kubernetes",
			Sources: cli.EnvVars("FLEETPROBE_INVENTORY"),
		},
		&cli.StringFlag{
			Name:    "kubeconfig",
			Usage:   "Path to kubeconfig for the Kubernetes inventory source",
			Sources: cli.EnvVars("KUBECONFIG"),
		},
	}
}

// loadConfig reads the run configuration and applies command-line overrides.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}
	if v := cmd.String("outdir"); v != "" {
		cfg.OutDir = v
	}
	if v := cmd.String("actions-dir"); v != "" {
		cfg.ActionsDir = v
	}
	if v := cmd.String("actions-file"); v != "" {
		cfg.ActionsFile = v
	}
	if v := cmd.String("kubeconfig"); v != "" {
		cfg.Kubeconfig = v
	}
	if v := cmd.Int("parallel"); v > 0 {
		cfg.Parallel = v
	}
	if v := cmd.Int("timeout"); v > 0 {
		cfg.Timeout = v
	}
	if cmd.Bool("clean") {
		cfg.Clean = true
	}
	if cmd.Bool("dir-timestamp") {
		cfg.DirTimestamp = true
	}
	return cfg, nil
}

// buildSource picks the inventory source: a JSON file when given, otherwise
// the Kubernetes API.
func buildSource(cmd *cli.Command, cfg *config.Config) (inventory.Source, error) {
	if path := cmd.String("inventory"); path != "" {
		return inventory.NewFile(path), nil
	}
	return inventory.NewKubernetes(cfg.Kubeconfig, cfg.ClusterID)
}

// buildManager prepares a run from flags and configuration.
func buildManager(ctx context.Context, cmd *cli.Command) (*manager.Manager, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	src, err := buildSource(cmd, cfg)
	if err != nil {
		return nil, err
	}
	tr := transport.NewSSH(transport.SSHOptions{
		Opts:      cfg.SSHOpts,
		RateLimit: cfg.RateLimit,
	})
	return manager.New(ctx, cfg, src, tr, slog.Default())
}
