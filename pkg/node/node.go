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
	"strconv"

	"github.com/NVIDIA/fleet-probe/pkg/inventory"
)

// Command is one labeled command action. Labels name the output artifact
// and define execution order within a host.
type Command struct {
	Label string
	Run   string
}

// Script is one script action. Env, when set, overrides the host's default
// environment for this one invocation.
type Script struct {
	Name string
	Env  map[string]string
}

// PushSpec is one file push action (local source, remote destination).
type PushSpec struct {
	Src string
	Dst string
}

// Node is the per-host state: identity and attributes from the inventory,
// the action lists produced by document resolution, the execution options
// in effect, and the result maps filled in after execution.
type Node struct {
	// Identity.
	ID         int
	Cluster    int
	Addr       string
	Name       string
	FQDN       string
	MAC        string
	OSPlatform string
	Roles      []string
	Online     bool
	Status     string
	Release    string

	// Resolved action lists.
	Commands  []Command
	Scripts   []Script
	Files     []string
	FileLists []string
	Puts      []PushSpec
	Logs      []string

	// Execution options, contributed by resolution on top of run defaults.
	Timeout          int
	SSHOpts          []string
	EnvVars          map[string]string
	Prefix           string
	OutDir           string
	ActionsDir       string
	OutputsTimestamp bool
	TimestampSuffix  string
	OKCodes          []int

	// Result maps, written after execution: action label → artifact path.
	CommandOutputs map[string]string
	ScriptOutputs  map[string]string

	// Extra holds contributions whose key has no registered attribute.
	Extra map[string]any
}

// NewFromRecord builds a Node from a raw inventory record, with release
// information resolved by the caller.
func NewFromRecord(rec inventory.Record, release string) *Node {
	roles := rec.Roles
	if len(roles) == 0 {
		roles = []string{"none"}
	}
	return &Node{
		ID:         rec.ID,
		Cluster:    rec.Cluster,
		Addr:       rec.Addr,
		Name:       rec.Name,
		FQDN:       rec.FQDN,
		MAC:        rec.MAC,
		OSPlatform: rec.OSPlatform,
		Roles:      roles,
		Online:     rec.Online,
		Status:     rec.Status,
		Release:    release,
	}
}

// AttrValues returns the node's values for a named attribute, normalized to
// a set of scalars, for document matching. Attributes are resolved through
// an explicit registry; contributions stored in Extra participate too.
func (n *Node) AttrValues(name string) ([]string, bool) {
	if get, ok := attrRegistry[name]; ok {
		return get(n), true
	}
	if v, ok := n.Extra[name]; ok {
		return scalarSet(v), true
	}
	return nil, false
}

// attrRegistry maps attribute names to accessors. Matching a "by_<attr>"
// section is a lookup here, never reflection. The priority section ("by_id")
// is handled separately by the resolver, but id remains matchable.
var attrRegistry = map[string]func(*Node) []string{
	"id":          func(n *Node) []string { return []string{strconv.Itoa(n.ID)} },
	"cluster":     func(n *Node) []string { return []string{strconv.Itoa(n.Cluster)} },
	"ip":          func(n *Node) []string { return []string{n.Addr} },
	"name":        func(n *Node) []string { return []string{n.Name} },
	"fqdn":        func(n *Node) []string { return []string{n.FQDN} },
	"mac":         func(n *Node) []string { return []string{n.MAC} },
	"os_platform": func(n *Node) []string { return []string{n.OSPlatform} },
	"roles":       func(n *Node) []string { return n.Roles },
	"online":      func(n *Node) []string { return []string{strconv.FormatBool(n.Online)} },
	"status":      func(n *Node) []string { return []string{n.Status} },
	"release":     func(n *Node) []string { return []string{n.Release} },
}
