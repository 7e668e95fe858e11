/*
Copyright © 2025 NVIDIA Corporation
SPDX-License-Identifier: Apache-2.0
*/
package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/NVIDIA/fleet-probe/pkg/oci"
)

func publishCmd() *cli.Command {
	return &cli.Command{
		Name:      "publish",
		Usage:     "Push a previously collected output tree to an OCI registry",
		ArgsUsage: "OCI_REFERENCE",
		Description: `Pack an existing output directory into an OCI artifact and push it,
for runs collected earlier or on another machine.

# Examples

  fleetprobe publish --source /tmp/fleet-probe oci://ghcr.io/nvidia/fleet-probe:run-42`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "source",
				Usage:    "Output directory to publish",
				Required: true,
			},
		},
		Action: runPublish,
	}
}

func runPublish(ctx context.Context, cmd *cli.Command) error {
	target := cmd.Args().First()
	if target == "" {
		return fmt.Errorf("publish requires an oci:// reference argument")
	}

	ref, err := oci.ParseTarget(target)
	if err != nil {
		return err
	}
	if !ref.IsOCI {
		return fmt.Errorf("publish target must use the oci:// scheme")
	}
	if ref.Tag == "" {
		return fmt.Errorf("publish target must include a tag")
	}

	res, err := oci.Push(ctx, oci.PushOptions{
		SourceDir:  cmd.String("source"),
		Registry:   ref.Registry,
		Repository: ref.Repository,
		Tag:        ref.Tag,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.Root().Writer, "published %s (%s)\n", res.Reference, res.Digest)
	return nil
}
