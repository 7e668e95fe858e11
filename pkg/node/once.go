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
	"log/slog"
	"sort"

	"github.com/NVIDIA/fleet-probe/pkg/config"
)

// OnceAssigner hands out single-assignment work: for each once rule, each
// candidate attribute value is claimed by exactly one host per run. Hosts
// are scanned in ascending id order so assignment is deterministic for a
// given inventory.
type OnceAssigner struct {
	resolver *Resolver
	logger   *slog.Logger

	// claimed[attr][value] records the id of the host that owns the value.
	claimed map[string]map[string]int
}

// NewOnceAssigner creates an assigner with an empty claim ledger.
func NewOnceAssigner(resolver *Resolver, logger *slog.Logger) *OnceAssigner {
	return &OnceAssigner{
		resolver: resolver,
		logger:   logger,
		claimed:  make(map[string]map[string]int),
	}
}

// Assign walks the once rules over the host set. For every rule value the
// first host (by id) carrying that attribute value receives the rule's
// sub-document as an accumulating resolution pass. A value already claimed
// in this run is never reassigned, including across repeated Assign calls.
func (a *OnceAssigner) Assign(nodes []*Node, rules []config.OnceRule) error {
	ordered := make([]*Node, len(nodes))
	copy(ordered, nodes)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	for _, rule := range rules {
		ledger := a.claimed[rule.Attr]
		if ledger == nil {
			ledger = make(map[string]int)
			a.claimed[rule.Attr] = ledger
		}
		for _, value := range sortedRuleValues(rule) {
			if owner, ok := ledger[value]; ok {
				a.logger.Debug("once value already claimed",
					"attr", rule.Attr, "value", value, "node", owner)
				continue
			}
			doc := rule.Values[value]
			for _, n := range ordered {
				if !hasValue(n, rule.Attr, value) {
					continue
				}
				if err := a.resolver.Resolve(n, doc, false); err != nil {
					return err
				}
				ledger[value] = n.ID
				a.logger.Debug("once value assigned",
					"attr", rule.Attr, "value", value, "node", n.ID)
				break
			}
		}
	}
	return nil
}

// Claimed reports the owner of a value under an attribute, if assigned.
func (a *OnceAssigner) Claimed(attr, value string) (int, bool) {
	owner, ok := a.claimed[attr][value]
	return owner, ok
}

func hasValue(n *Node, attr, value string) bool {
	values, ok := n.AttrValues(attr)
	if !ok {
		return false
	}
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

func sortedRuleValues(rule config.OnceRule) []string {
	values := make([]string, 0, len(rule.Values))
	for v := range rule.Values {
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}
