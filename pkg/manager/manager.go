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
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/NVIDIA/fleet-probe/pkg/config"
	"github.com/NVIDIA/fleet-probe/pkg/errors"
	"github.com/NVIDIA/fleet-probe/pkg/inventory"
	"github.com/NVIDIA/fleet-probe/pkg/node"
	"github.com/NVIDIA/fleet-probe/pkg/transport"
)

// Manager owns one collection run: it discovers the inventory, filters it,
// resolves the action document per host, and fans execution out over the
// transport. A Manager is built fully prepared; Run only executes.
type Manager struct {
	cfg       *config.Config
	transport transport.Transport
	resolver  *node.Resolver
	logger    *slog.Logger

	// RunID uniquely names this run and tags its published artifacts.
	RunID string
	// OutDir is the effective output root, with the run timestamp applied
	// when configured.
	OutDir string

	suffix string
	nodes  []*node.Node
	runMu  sync.Mutex
}

// New prepares a run: loads the action document, discovers and filters the
// inventory, resolves every host, and hands out once-assignments. Returned
// errors carry codes: CONFIG and INVENTORY failures are fatal, ALL_FILTERED
// means the filters excluded every host.
func New(ctx context.Context, cfg *config.Config, src inventory.Source, tr transport.Transport, logger *slog.Logger) (*Manager, error) {
	m := &Manager{
		cfg:       cfg,
		transport: tr,
		resolver:  &node.Resolver{Resettable: cfg.Resettable()},
		logger:    logger,
		RunID:     uuid.NewString(),
		suffix:    time.Now().Format(config.TimestampLayout),
	}

	m.OutDir = cfg.OutDir
	if cfg.DirTimestamp {
		m.OutDir += m.suffix
	}
	if cfg.Clean {
		if err := os.RemoveAll(m.OutDir); err != nil {
			return nil, errors.Wrap(errors.ErrCodeConfig, "cleaning output directory", err)
		}
	}
	if err := os.MkdirAll(m.OutDir, 0o750); err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfig, "creating output directory", err)
	}

	if cfg.ActionsDir != "" {
		info, err := os.Stat(cfg.ActionsDir)
		if err != nil || !info.IsDir() {
			return nil, errors.New(errors.ErrCodeConfig,
				fmt.Sprintf("actions directory %s does not exist", cfg.ActionsDir))
		}
	}

	doc, rules, err := cfg.LoadActions()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfig, "loading action document", err)
	}

	spec, err := node.ParseFilterSpec(cfg.Filters)
	if err != nil {
		return nil, err
	}
	if spec.CheckMaster && cfg.ControlPlaneAddr == "" {
		return nil, errors.New(errors.ErrCodeConfig,
			"control plane address is required when check_master is set")
	}

	nodes, err := m.discover(ctx, src)
	if err != nil {
		return nil, err
	}

	discovered := len(nodes)
	nodes, err = spec.Apply(nodes, logger)
	if err != nil {
		return nil, err
	}
	filteredNodes.Set(float64(discovered - len(nodes)))

	if spec.CheckMaster {
		nodes = append([]*node.Node{m.controlPlaneNode(ctx, src)}, nodes...)
	}

	for _, n := range nodes {
		m.seed(n)
		if err := m.resolver.Resolve(n, doc, true); err != nil {
			return nil, errors.Wrap(errors.ErrCodeConfig,
				fmt.Sprintf("resolving node %d", n.ID), err)
		}
	}

	if err := node.NewOnceAssigner(m.resolver, logger).Assign(nodes, rules); err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfig, "assigning once rules", err)
	}

	m.nodes = nodes
	logger.Info("run prepared", "run", m.RunID, "nodes", len(nodes), "outdir", m.OutDir)
	return m, nil
}

// Nodes returns the prepared host set in id order.
func (m *Manager) Nodes() []*node.Node {
	return m.nodes
}

// discover turns the inventory into the initial host set.
func (m *Manager) discover(ctx context.Context, src inventory.Source) ([]*node.Node, error) {
	records, err := src.Records(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInventory, "listing inventory", err)
	}

	releases, err := src.ReleaseMap(ctx)
	if err != nil {
		m.logger.Warn("release lookup failed, using unknown release", "error", err)
		releases = nil
	}

	nodes := make([]*node.Node, 0, len(records))
	for _, rec := range records {
		release, ok := releases[rec.Cluster]
		if !ok {
			release = inventory.UnknownRelease
		}
		nodes = append(nodes, node.NewFromRecord(rec, release))
	}
	return nodes, nil
}

// controlPlaneNode synthesizes the pseudo host for the cluster control
// plane. It joins the run after filtration, so attribute clauses never
// exclude it.
func (m *Manager) controlPlaneNode(ctx context.Context, src inventory.Source) *node.Node {
	release, err := src.ControlPlaneRelease(ctx)
	if err != nil {
		m.logger.Warn("control plane release lookup failed", "error", err)
		release = inventory.UnknownRelease
	}
	return &node.Node{
		ID:      0,
		Cluster: m.cfg.ClusterID,
		Addr:    m.cfg.ControlPlaneAddr,
		Name:    "control-plane",
		Roles:   []string{"control-plane"},
		Online:  true,
		Release: release,
	}
}

// seed applies run-level execution defaults before document resolution, so
// document contributions override them per host.
func (m *Manager) seed(n *node.Node) {
	n.OutDir = m.OutDir
	n.ActionsDir = m.cfg.ActionsDir
	n.Timeout = m.cfg.Timeout
	n.Prefix = m.cfg.Prefix
	n.SSHOpts = append([]string(nil), m.cfg.SSHOpts...)
	n.OKCodes = append([]int(nil), m.cfg.OKCodes...)
	n.OutputsTimestamp = m.cfg.OutputsTimestamp
	n.TimestampSuffix = m.suffix
	if len(m.cfg.EnvVars) > 0 {
		n.EnvVars = make(map[string]string, len(m.cfg.EnvVars))
		for k, v := range m.cfg.EnvVars {
			n.EnvVars[k] = v
		}
	}
}
