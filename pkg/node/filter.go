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
	"fmt"
	"log/slog"
	"sort"

	"github.com/NVIDIA/fleet-probe/pkg/errors"
)

// ErrAllNodesFiltered is returned when filtration leaves no hosts to run on.
var ErrAllNodesFiltered = errors.New(errors.ErrCodeFiltered, "all nodes were excluded by the configured filters")

// FilterSpec selects the subset of the inventory a run targets. Attribute
// clauses combine with AND across attributes and OR within one attribute's
// value list.
type FilterSpec struct {
	// Attrs maps an attribute name to its accepted values.
	Attrs map[string][]string

	// CheckMaster includes the control plane pseudo host in the run. The
	// pseudo host is synthesized after filtration and never subject to
	// attribute clauses.
	CheckMaster bool

	// OnlineOnly drops hosts the inventory reports as unreachable.
	OnlineOnly bool
}

// ParseFilterSpec builds a FilterSpec from a raw filters mapping. The keys
// check_master and online are reserved flags; every other key is treated as
// an attribute clause whose value is a scalar or list of accepted values.
func ParseFilterSpec(raw map[string]any) (*FilterSpec, error) {
	spec := &FilterSpec{Attrs: make(map[string][]string)}
	for key, value := range raw {
		switch key {
		case "check_master":
			b, ok := value.(bool)
			if !ok {
				return nil, errors.New(errors.ErrCodeConfig,
					fmt.Sprintf("filter flag check_master must be a boolean, got %T", value))
			}
			spec.CheckMaster = b
		case "online":
			b, ok := value.(bool)
			if !ok {
				return nil, errors.New(errors.ErrCodeConfig,
					fmt.Sprintf("filter flag online must be a boolean, got %T", value))
			}
			spec.OnlineOnly = b
		default:
			spec.Attrs[key] = scalarSet(value)
		}
	}
	return spec, nil
}

// Apply filters the host set. ErrAllNodesFiltered is returned only when the
// input was non-empty and nothing survived; an empty inventory passes
// through as an empty result.
func (s *FilterSpec) Apply(nodes []*Node, logger *slog.Logger) ([]*Node, error) {
	var kept []*Node
	for _, n := range nodes {
		if s.matches(n) {
			kept = append(kept, n)
		}
	}
	logger.Info("node filtration complete", "before", len(nodes), "after", len(kept))
	if len(nodes) > 0 && len(kept) == 0 {
		return nil, ErrAllNodesFiltered
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].ID < kept[j].ID })
	return kept, nil
}

func (s *FilterSpec) matches(n *Node) bool {
	if s.OnlineOnly && !n.Online {
		return false
	}
	for attr, accepted := range s.Attrs {
		if len(accepted) == 0 {
			continue
		}
		values, ok := n.AttrValues(attr)
		if !ok {
			return false
		}
		if !intersects(values, accepted) {
			return false
		}
	}
	return true
}

func intersects(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
