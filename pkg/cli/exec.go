/*
Copyright © 2025 NVIDIA Corporation
SPDX-License-Identifier: Apache-2.0
*/
package cli

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/urfave/cli/v3"
)

func execCmd() *cli.Command {
	return &cli.Command{
		Name:      "exec",
		Usage:     "Run one command on every filtered host",
		ArgsUsage: "COMMAND",
		Description: `Run a single shell command across the filtered inventory and print
each host's output. Useful for quick fleet-wide checks without a full
action document.

# Examples

Check uptime everywhere:
  fleetprobe exec --config run.yaml 'uptime'

Stream a local file to each host's stdin:
  fleetprobe exec --config run.yaml --input-file payload.txt 'cat > /tmp/payload'`,
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:  "input-file",
				Usage: "Local file streamed to each remote command's stdin",
			},
		}, inventoryFlags()...),
		Action: runExec,
	}
}

func runExec(ctx context.Context, cmd *cli.Command) error {
	command := cmd.Args().First()
	if command == "" {
		return fmt.Errorf("exec requires a command argument")
	}

	var input string
	if path := cmd.String("input-file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading input file: %w", err)
		}
		input = string(data)
	}

	m, err := buildManager(ctx, cmd)
	if err != nil {
		return err
	}

	results, err := m.ExecAdhoc(ctx, command, input)
	if err != nil {
		return err
	}

	ids := make([]int, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		res := results[id]
		fmt.Fprintf(cmd.Root().Writer, "--- node %d (exit %d)\n%s", id, res.ExitCode, res.Stdout)
	}
	return nil
}
