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
	"context"
	"time"
)

// Request describes one remote invocation. Exactly one of Command or
// ScriptPath must be set: Command runs a literal shell command, ScriptPath
// streams a local script to the remote interpreter.
type Request struct {
	// Command is a literal command line to run remotely.
	Command string
	// ScriptPath is a local script streamed to the remote shell.
	ScriptPath string
	// Env is exported on the remote side before the command runs.
	Env map[string]string
	// Input is injected on stdin for one-off commands. Ignored in script
	// mode, where stdin carries the script body.
	Input string
	// Prefix is prepended to the remote command line (niceness control).
	Prefix string
	// Opts are additional transport options for this call.
	Opts []string
	// Timeout bounds the whole invocation. Zero means no bound.
	Timeout time.Duration
}

// Result is the outcome of a completed remote invocation. A non-zero
// ExitCode is not an error at this layer; callers decide what codes mean.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Transport executes requests against a remote host address.
//
// Implementations return an error only when the invocation could not be
// carried out at all (spawn failure, context cancellation); remote command
// failure is reported through Result.ExitCode.
type Transport interface {
	Run(ctx context.Context, addr string, req Request) (*Result, error)
}
