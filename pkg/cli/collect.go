/*
Copyright © 2025 NVIDIA Corporation
SPDX-License-Identifier: Apache-2.0
*/
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/NVIDIA/fleet-probe/pkg/manager"
	"github.com/NVIDIA/fleet-probe/pkg/server"
)

func collectCmd() *cli.Command {
	return &cli.Command{
		Name:                  "collect",
		EnableShellCompletion: true,
		Usage:                 "Run the diagnostic collection fan-out",
		Description: `Resolve the declarative action document against every host in the
inventory and execute the resulting commands and scripts concurrently
over SSH. Artifacts land under the output directory in a
cluster/node tree, and a run manifest is written next to them.

# Examples

Collect using the Kubernetes inventory:
  fleetprobe collect --config run.yaml

Replay a captured inventory and keep per-run output separate:
  fleetprobe collect --config run.yaml \
    --inventory nodes.json --dir-timestamp

Preview the resolved per-host actions without executing:
  fleetprobe collect --config run.yaml --dry-run

Publish the output tree after the run:
  fleetprobe collect --config run.yaml \
    --publish oci://ghcr.io/nvidia/fleet-probe`,
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    "outdir",
				Usage:   "Output directory root",
				Sources: cli.EnvVars("FLEETPROBE_OUTDIR"),
			},
			&cli.StringFlag{
				Name:  "actions-dir",
				Usage: "Directory holding bundled scripts",
			},
			&cli.StringFlag{
				Name:  "actions-file",
				Usage: "Action-first document merged into the configured actions",
			},
			&cli.IntFlag{
				Name:  "parallel",
				Usage: "Fan-out worker pool size",
			},
			&cli.IntFlag{
				Name:  "timeout",
				Usage: "Per-call timeout in seconds",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Resolve and print planned actions without executing",
			},
			&cli.BoolFlag{
				Name:  "clean",
				Usage: "Remove the output directory before the run",
			},
			&cli.BoolFlag{
				Name:  "dir-timestamp",
				Usage: "Append the run start timestamp to the output directory",
			},
			&cli.StringFlag{
				Name:  "publish",
				Usage: "Publish the output tree after the run (oci://registry/repo[:tag])",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Serve health and Prometheus metrics on this address (e.g., :9090)",
			},
		}, inventoryFlags()...),
		Action: runCollect,
	}
}

func runCollect(ctx context.Context, cmd *cli.Command) error {
	m, err := buildManager(ctx, cmd)
	if err != nil {
		return err
	}

	if cmd.Bool("dry-run") {
		m.DryRun()
		printPlan(cmd, m)
		return nil
	}

	if addr := cmd.String("metrics-addr"); addr != "" {
		srv := server.New(addr, slog.Default())
		srv.SetReady(true, map[string]string{"run": m.RunID})
		go func() {
			if err := srv.Start(ctx); err != nil {
				slog.Error("observability server failed", "error", err)
			}
		}()
	}

	report, err := m.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.Root().Writer, "run %s: %d nodes, %d failed, outputs in %s\n",
		report.RunID, len(report.Nodes), report.Failed(), report.OutDir)

	if target := cmd.String("publish"); target != "" {
		res, err := m.Publish(ctx, target)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.Root().Writer, "published %s (%s)\n", res.Reference, res.Digest)
	}
	return nil
}

// printPlan lists each host's resolved actions in execution order.
func printPlan(cmd *cli.Command, m *manager.Manager) {
	for _, n := range m.Nodes() {
		fmt.Fprintf(cmd.Root().Writer, "node %d (%s) roles=%s release=%s\n",
			n.ID, n.Addr, strings.Join(n.Roles, ","), n.Release)
		for _, c := range n.Commands {
			fmt.Fprintf(cmd.Root().Writer, "  cmd    %s: %s -> %s\n", c.Label, c.Run, n.CommandOutputs[c.Label])
		}
		for _, s := range n.Scripts {
			fmt.Fprintf(cmd.Root().Writer, "  script %s -> %s\n", s.Name, n.ScriptOutputs[s.Name])
		}
		for _, f := range n.Files {
			fmt.Fprintf(cmd.Root().Writer, "  file   %s\n", f)
		}
		for _, p := range n.Puts {
			fmt.Fprintf(cmd.Root().Writer, "  put    %s -> %s\n", p.Src, p.Dst)
		}
	}
}
