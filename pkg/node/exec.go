// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package node

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/NVIDIA/fleet-probe/pkg/errors"
	"github.com/NVIDIA/fleet-probe/pkg/transport"
)

// OutputDir returns the directory this host's command artifacts land in.
func (n *Node) OutputDir() string {
	return filepath.Join(n.OutDir, "cmds",
		fmt.Sprintf("cluster-%d", n.Cluster),
		fmt.Sprintf("node-%d", n.ID))
}

// artifactPath names one output artifact. The name encodes host identity
// and the action label, plus the run timestamp when configured, so outputs
// from different hosts and runs never collide.
func (n *Node) artifactPath(label string) string {
	name := fmt.Sprintf("node-%d-%s-%s", n.ID, n.Addr, label)
	if n.OutputsTimestamp {
		name += n.TimestampSuffix
	}
	return filepath.Join(n.OutputDir(), name)
}

// ExecActions runs the host's resolved commands and scripts over the
// transport and writes each action's stdout to its artifact file. Commands
// run before scripts; within each group actions run in name order.
//
// A transport failure aborts the host and is returned; an unexpected exit
// code or a local write failure is logged and execution continues.
func (n *Node) ExecActions(ctx context.Context, tr transport.Transport, logger *slog.Logger) error {
	log := logger.With("node", n.ID, "addr", n.Addr)

	if err := os.MkdirAll(n.OutputDir(), 0o750); err != nil {
		return errors.Wrap(errors.ErrCodeExec, "creating output directory", err)
	}

	if n.CommandOutputs == nil {
		n.CommandOutputs = make(map[string]string)
	}
	if n.ScriptOutputs == nil {
		n.ScriptOutputs = make(map[string]string)
	}

	for _, c := range sortedCommands(n.Commands) {
		res, err := tr.Run(ctx, n.Addr, n.request(transport.Request{Command: c.Run}))
		if err != nil {
			return errors.Wrap(errors.ErrCodeExec,
				fmt.Sprintf("command %q on node %d", c.Label, n.ID), err)
		}
		n.checkCode(log, "command", c.Label, res)
		n.CommandOutputs[c.Label] = n.writeArtifact(log, c.Label, res.Stdout)
	}

	for _, s := range sortedScripts(n.Scripts) {
		req := n.request(transport.Request{ScriptPath: n.scriptPath(s.Name)})
		if len(s.Env) > 0 {
			req.Env = mergeEnv(n.EnvVars, s.Env)
		}
		res, err := tr.Run(ctx, n.Addr, req)
		if err != nil {
			return errors.Wrap(errors.ErrCodeExec,
				fmt.Sprintf("script %q on node %d", s.Name, n.ID), err)
		}
		n.checkCode(log, "script", s.Name, res)
		n.ScriptOutputs[s.Name] = n.writeArtifact(log, filepath.Base(s.Name), res.Stdout)
	}

	return nil
}

// PlanActions computes the artifact paths execution would produce without
// running anything or touching the filesystem.
func (n *Node) PlanActions() {
	if n.CommandOutputs == nil {
		n.CommandOutputs = make(map[string]string)
	}
	if n.ScriptOutputs == nil {
		n.ScriptOutputs = make(map[string]string)
	}
	for _, c := range n.Commands {
		n.CommandOutputs[c.Label] = n.artifactPath(c.Label)
	}
	for _, s := range n.Scripts {
		n.ScriptOutputs[s.Name] = n.artifactPath(filepath.Base(s.Name))
	}
}

// ExecSimple runs a one-off command on the host, optionally feeding input
// on stdin, without touching the output directory.
func (n *Node) ExecSimple(ctx context.Context, tr transport.Transport, cmd, input string) (*transport.Result, error) {
	req := n.request(transport.Request{Command: cmd, Input: input})
	res, err := tr.Run(ctx, n.Addr, req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeExec,
			fmt.Sprintf("command on node %d", n.ID), err)
	}
	return res, nil
}

// request fills in the host's execution options on a base request.
func (n *Node) request(base transport.Request) transport.Request {
	base.Env = n.EnvVars
	base.Prefix = n.Prefix
	base.Opts = n.SSHOpts
	if n.Timeout > 0 {
		base.Timeout = time.Duration(n.Timeout) * time.Second
	}
	return base
}

// scriptPath resolves a script reference: an explicit path is used as is,
// a bare name is looked up under the actions directory.
func (n *Node) scriptPath(name string) string {
	if strings.ContainsRune(name, os.PathSeparator) {
		return name
	}
	return filepath.Join(n.ActionsDir, "scripts", name)
}

func (n *Node) checkCode(log *slog.Logger, kind, label string, res *transport.Result) {
	if res.ExitCode == 0 {
		return
	}
	for _, ok := range n.OKCodes {
		if res.ExitCode == ok {
			return
		}
	}
	log.Warn("unexpected exit code", "kind", kind, "action", label,
		"code", res.ExitCode, "stderr", strings.TrimSpace(res.Stderr))
}

// writeArtifact persists one action's output and returns the artifact path.
// Write failures do not abort the host; the path is still recorded so the
// run manifest names what was attempted.
func (n *Node) writeArtifact(log *slog.Logger, label, output string) string {
	path := n.artifactPath(label)
	if err := os.WriteFile(path, []byte(output), 0o640); err != nil {
		log.Error("failed to write artifact", "path", path, "error", err)
	}
	return path
}

func sortedCommands(in []Command) []Command {
	out := make([]Command, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

func sortedScripts(in []Script) []Script {
	out := make([]Script, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func mergeEnv(base, override map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}
