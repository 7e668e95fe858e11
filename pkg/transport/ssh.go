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

package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"

	"golang.org/x/time/rate"
)

// DefaultSSHBin is the client binary used when none is configured.
const DefaultSSHBin = "ssh"

// SSHOptions configures the SSH transport.
type SSHOptions struct {
	// Bin overrides the ssh binary path.
	Bin string
	// Opts are base client options applied to every call, before any
	// per-request options.
	Opts []string
	// RateLimit caps invocations per second across all hosts. Zero
	// disables limiting.
	RateLimit float64
}

// SSH executes requests by shelling out to the ssh client binary. Script
// mode streams the script body over stdin to the remote shell, so nothing
// is uploaded to the target host.
type SSH struct {
	bin     string
	opts    []string
	limiter *rate.Limiter
}

// NewSSH creates an SSH transport.
func NewSSH(o SSHOptions) *SSH {
	s := &SSH{bin: o.Bin, opts: o.Opts}
	if s.bin == "" {
		s.bin = DefaultSSHBin
	}
	if o.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(o.RateLimit), 1)
	}
	return s
}

// Run implements Transport.
func (s *SSH) Run(ctx context.Context, addr string, req Request) (*Result, error) {
	if req.Command == "" && req.ScriptPath == "" {
		return nil, fmt.Errorf("transport: empty request for %s", addr)
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, s.bin, s.args(addr, req)...)

	var script *os.File
	switch {
	case req.ScriptPath != "":
		f, err := os.Open(req.ScriptPath)
		if err != nil {
			return nil, fmt.Errorf("transport: opening script: %w", err)
		}
		script = f
		cmd.Stdin = f
	case req.Input != "":
		cmd.Stdin = strings.NewReader(req.Input)
	}
	if script != nil {
		defer func() { _ = script.Close() }()
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := &Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return nil, fmt.Errorf("transport: %s: %w", addr, err)
	}
	return res, nil
}

// args builds the client argv: base options, per-request options, target
// address, then the remote command line.
func (s *SSH) args(addr string, req Request) []string {
	args := make([]string, 0, len(s.opts)+len(req.Opts)+2)
	args = append(args, s.opts...)
	args = append(args, req.Opts...)
	args = append(args, addr)
	args = append(args, remoteCommand(req))
	return args
}

// remoteCommand assembles the remote command line: env assignments, the
// configured prefix, then the command itself or the stdin-fed interpreter.
func remoteCommand(req Request) string {
	var parts []string
	if prefix := envPrefix(req.Env); prefix != "" {
		parts = append(parts, prefix)
	}
	if req.Prefix != "" {
		parts = append(parts, req.Prefix)
	}
	if req.ScriptPath != "" {
		parts = append(parts, "bash -s")
	} else {
		parts = append(parts, req.Command)
	}
	return strings.Join(parts, " ")
}

// envPrefix renders env overrides as a deterministic "env K=V ..." prefix.
func envPrefix(env map[string]string) string {
	if len(env) == 0 {
		return ""
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(env)+1)
	parts = append(parts, "env")
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", k, env[k]))
	}
	return strings.Join(parts, " ")
}
