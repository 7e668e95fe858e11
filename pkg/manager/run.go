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

package manager

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/NVIDIA/fleet-probe/pkg/errors"
	"github.com/NVIDIA/fleet-probe/pkg/oci"
	"github.com/NVIDIA/fleet-probe/pkg/transport"
)

// NodeReport is the per-host outcome of a run.
type NodeReport struct {
	ID       int               `json:"id"`
	Addr     string            `json:"addr"`
	Commands map[string]string `json:"commands,omitempty"`
	Scripts  map[string]string `json:"scripts,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// Report is the run manifest, persisted next to the artifacts.
type Report struct {
	RunID    string       `json:"run_id"`
	Started  time.Time    `json:"started"`
	Finished time.Time    `json:"finished"`
	OutDir   string       `json:"outdir"`
	Nodes    []NodeReport `json:"nodes"`
}

// Failed reports how many hosts ended in error.
func (r *Report) Failed() int {
	count := 0
	for _, n := range r.Nodes {
		if n.Error != "" {
			count++
		}
	}
	return count
}

// Run fans action execution out over the prepared hosts with bounded
// parallelism. One host's failure is recorded in the report and does not
// abort the others; only context cancellation stops the run early. A second
// concurrent Run on the same Manager fails with RUN_IN_PROGRESS.
func (m *Manager) Run(ctx context.Context) (*Report, error) {
	if !m.runMu.TryLock() {
		return nil, errors.New(errors.ErrCodeConflict, "a run is already in progress")
	}
	defer m.runMu.Unlock()

	started := time.Now()
	defer func() {
		runDuration.Observe(time.Since(started).Seconds())
	}()
	runNodes.Set(float64(len(m.nodes)))

	var mu sync.Mutex
	failures := make(map[int]error)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Parallel)

	for _, n := range m.nodes {
		g.Go(func() error {
			execStart := time.Now()
			err := n.ExecActions(gctx, m.transport, m.logger)
			nodeExecDuration.Observe(time.Since(execStart).Seconds())
			if err != nil {
				if gctx.Err() != nil {
					return err
				}
				nodeExecTotal.WithLabelValues("error").Inc()
				m.logger.Error("node execution failed", "node", n.ID, "addr", n.Addr, "error", err)
				mu.Lock()
				failures[n.ID] = err
				mu.Unlock()
				return nil
			}
			nodeExecTotal.WithLabelValues("success").Inc()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeExec, "run aborted", err)
	}

	report := &Report{
		RunID:    m.RunID,
		Started:  started,
		Finished: time.Now(),
		OutDir:   m.OutDir,
	}
	for _, n := range m.nodes {
		nr := NodeReport{
			ID:       n.ID,
			Addr:     n.Addr,
			Commands: n.CommandOutputs,
			Scripts:  n.ScriptOutputs,
		}
		if err := failures[n.ID]; err != nil {
			nr.Error = err.Error()
		}
		report.Nodes = append(report.Nodes, nr)
	}
	m.writeManifest(report)

	m.logger.Info("run complete", "run", m.RunID,
		"nodes", len(report.Nodes), "failed", report.Failed())
	return report, nil
}

// DryRun computes what Run would do: the report carries the artifact path
// every action would write, but nothing executes and nothing is written.
func (m *Manager) DryRun() *Report {
	report := &Report{
		RunID:  m.RunID,
		OutDir: m.OutDir,
	}
	for _, n := range m.nodes {
		n.PlanActions()
		report.Nodes = append(report.Nodes, NodeReport{
			ID:       n.ID,
			Addr:     n.Addr,
			Commands: n.CommandOutputs,
			Scripts:  n.ScriptOutputs,
		})
	}
	return report
}

// writeManifest persists the run manifest. Failure to write it is logged
// and does not fail the run; the artifacts themselves are already on disk.
func (m *Manager) writeManifest(report *Report) {
	path := filepath.Join(m.OutDir, "run-"+m.RunID+".json")
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		m.logger.Error("failed to encode run manifest", "error", err)
		return
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		m.logger.Error("failed to write run manifest", "path", path, "error", err)
	}
}

// ExecAdhoc runs one command on every prepared host, optionally feeding
// input on stdin, and returns results keyed by host id. Adhoc execution
// shares the run lock so it cannot interleave with a fan-out run.
func (m *Manager) ExecAdhoc(ctx context.Context, command, input string) (map[int]*transport.Result, error) {
	if !m.runMu.TryLock() {
		return nil, errors.New(errors.ErrCodeConflict, "a run is already in progress")
	}
	defer m.runMu.Unlock()

	var mu sync.Mutex
	results := make(map[int]*transport.Result, len(m.nodes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Parallel)

	for _, n := range m.nodes {
		g.Go(func() error {
			res, err := n.ExecSimple(gctx, m.transport, command, input)
			if err != nil {
				if gctx.Err() != nil {
					return err
				}
				m.logger.Error("adhoc execution failed", "node", n.ID, "error", err)
				return nil
			}
			mu.Lock()
			results[n.ID] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeExec, "adhoc run aborted", err)
	}
	return results, nil
}

// Publish pushes the run's output tree to an OCI registry. The target must
// use the oci:// scheme; an untagged reference is tagged with the run id.
func (m *Manager) Publish(ctx context.Context, target string) (*oci.PushResult, error) {
	ref, err := oci.ParseTarget(target)
	if err != nil {
		return nil, err
	}
	if !ref.IsOCI {
		return nil, errors.New(errors.ErrCodePublish,
			"publish target must be an oci:// reference")
	}
	tag := ref.Tag
	if tag == "" {
		tag = m.RunID
	}

	res, err := oci.Push(ctx, oci.PushOptions{
		SourceDir:  m.OutDir,
		Registry:   ref.Registry,
		Repository: ref.Repository,
		Tag:        tag,
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info("artifacts published", "reference", res.Reference, "digest", res.Digest)
	return res, nil
}
