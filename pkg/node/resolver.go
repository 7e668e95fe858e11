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
	"sort"
	"strconv"

	"github.com/NVIDIA/fleet-probe/pkg/config"
)

// Resolver turns one declarative document plus a host's attributes into the
// host's concrete action lists.
//
// Contribution semantics for list attributes: resettable attributes are
// cleared up front, so every contribution appends. Non-resettable
// attributes keep their value until the first contribution of the pass
// replaces it; later contributions append. Outermost-scope contributions
// of a reset pass and id-priority contributions always replace without
// counting as the first. Scalar attributes always replace.
//
// Resolution is idempotent for the resettable attributes: a reset pass
// clears them before walking, so re-resolving the same document yields the
// same lists.
type Resolver struct {
	// Resettable is the set of list attributes cleared before a reset
	// pass. Defaults to commands/scripts/files/filelists; push specs and
	// log captures accumulate across passes unless configured in.
	Resettable map[string]bool
}

// NewResolver creates a Resolver with the default resettable set.
func NewResolver() *Resolver {
	return &Resolver{Resettable: config.DefaultResettableAttrs}
}

// Resolve applies one document to one host. With reset=true the resettable
// list attributes are cleared first; once-assignment passes use reset=false
// to accumulate on top of the initial resolution.
func (r *Resolver) Resolve(n *Node, doc *config.Document, reset bool) error {
	if reset {
		r.clear(n)
	}
	touched := make(map[string]bool)
	return r.walk(n, doc, touched, reset)
}

func (r *Resolver) clear(n *Node) {
	for attr := range r.Resettable {
		switch attr {
		case config.KeyCommands:
			n.Commands = nil
		case config.KeyScripts:
			n.Scripts = nil
		case config.KeyFiles:
			n.Files = nil
		case config.KeyFileLists:
			n.FileLists = nil
		case config.KeyPut:
			n.Puts = nil
		case config.KeyLogs:
			n.Logs = nil
		}
	}
}

// walk applies one document scope. top is true only for the outermost scope
// of a reset pass, where generic contributions replace unconditionally.
func (r *Resolver) walk(n *Node, doc *config.Document, touched map[string]bool, top bool) error {
	for _, k := range sortedAnyKeys(doc.Generic) {
		if err := r.apply(n, k, doc.Generic[k], touched, top); err != nil {
			return err
		}
	}

	for _, m := range doc.Matches {
		values, ok := n.AttrValues(m.Attr)
		if !ok {
			continue
		}
		for _, v := range values {
			branch, ok := m.Branches[v]
			if !ok {
				continue
			}
			if err := r.applyAll(n, doc.Default, touched); err != nil {
				return err
			}
			if err := r.applyAll(n, m.Default, touched); err != nil {
				return err
			}
			if err := r.walk(n, branch, touched, false); err != nil {
				return err
			}
		}
	}

	if doc.Priority != nil {
		sub, ok := doc.Priority.ByID[strconv.Itoa(n.ID)]
		if !ok {
			return nil
		}
		if err := r.applyAll(n, doc.Priority.Default, touched); err != nil {
			return err
		}
		// Id-priority contributions replace: they run last and win over
		// anything matched earlier in the pass.
		for _, k := range sortedAnyKeys(sub) {
			if err := r.apply(n, k, sub[k], touched, true); err != nil {
				return err
			}
		}
	}
	return nil
}

// applyAll applies a flat contribution map with ordinary semantics.
func (r *Resolver) applyAll(n *Node, m map[string]any, touched map[string]bool) error {
	for _, k := range sortedAnyKeys(m) {
		if err := r.apply(n, k, m[k], touched, false); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) apply(n *Node, key string, value any, touched map[string]bool, asDefault bool) error {
	if config.AppendableAttrs[key] {
		replace := asDefault || (!r.Resettable[key] && !touched[key])
		if err := setList(n, key, value, replace); err != nil {
			return fmt.Errorf("attribute %q: %w", key, err)
		}
		if !asDefault {
			touched[key] = true
		}
		return nil
	}
	if err := setScalar(n, key, value); err != nil {
		return fmt.Errorf("attribute %q: %w", key, err)
	}
	return nil
}

func setList(n *Node, key string, value any, replace bool) error {
	switch key {
	case config.KeyCommands:
		entries, err := parseCommands(value)
		if err != nil {
			return err
		}
		n.Commands = appendOrReplace(n.Commands, entries, replace)
	case config.KeyScripts:
		entries, err := parseScripts(value)
		if err != nil {
			return err
		}
		n.Scripts = appendOrReplace(n.Scripts, entries, replace)
	case config.KeyFiles:
		entries, err := toStringList(value)
		if err != nil {
			return err
		}
		n.Files = appendOrReplace(n.Files, entries, replace)
	case config.KeyFileLists:
		entries, err := toStringList(value)
		if err != nil {
			return err
		}
		n.FileLists = appendOrReplace(n.FileLists, entries, replace)
	case config.KeyPut:
		entries, err := parsePuts(value)
		if err != nil {
			return err
		}
		n.Puts = appendOrReplace(n.Puts, entries, replace)
	case config.KeyLogs:
		entries, err := toStringList(value)
		if err != nil {
			return err
		}
		n.Logs = appendOrReplace(n.Logs, entries, replace)
	}
	return nil
}

func appendOrReplace[T any](dst, entries []T, replace bool) []T {
	if replace {
		return append([]T(nil), entries...)
	}
	return append(dst, entries...)
}

func setScalar(n *Node, key string, value any) error {
	switch key {
	case "timeout":
		t, err := toInt(value)
		if err != nil {
			return err
		}
		n.Timeout = t
	case "prefix":
		n.Prefix = fmt.Sprint(value)
	case "ssh_opts":
		opts, err := toStringList(value)
		if err != nil {
			return err
		}
		n.SSHOpts = opts
	case "env_vars":
		env, err := toStringMap(value)
		if err != nil {
			return err
		}
		n.EnvVars = env
	case "outputs_timestamp":
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("expected a boolean, got %T", value)
		}
		n.OutputsTimestamp = b
	case "ok_codes":
		codes, err := toIntList(value)
		if err != nil {
			return err
		}
		n.OKCodes = codes
	case "outdir":
		n.OutDir = fmt.Sprint(value)
	case "actions_dir":
		n.ActionsDir = fmt.Sprint(value)
	default:
		if n.Extra == nil {
			n.Extra = make(map[string]any)
		}
		n.Extra[key] = value
	}
	return nil
}

// parseCommands converts document entries to labeled commands. Each entry
// is a mapping of label → command line; multi-pair mappings contribute one
// command per pair, in label order.
func parseCommands(value any) ([]Command, error) {
	var out []Command
	for _, entry := range asList(value) {
		m, err := toStringKeyed(entry)
		if err != nil {
			return nil, err
		}
		for _, label := range sortedAnyKeys(m) {
			out = append(out, Command{Label: label, Run: fmt.Sprint(m[label])})
		}
	}
	return out, nil
}

// parseScripts converts document entries to scripts. Entries are either a
// bare name/path, or a single-pair mapping of name → env override map.
func parseScripts(value any) ([]Script, error) {
	var out []Script
	for _, entry := range asList(value) {
		switch e := entry.(type) {
		case string:
			out = append(out, Script{Name: e})
		default:
			m, err := toStringKeyed(entry)
			if err != nil {
				return nil, err
			}
			for _, name := range sortedAnyKeys(m) {
				env, err := toStringMap(m[name])
				if err != nil {
					return nil, fmt.Errorf("script %q: %w", name, err)
				}
				out = append(out, Script{Name: name, Env: env})
			}
		}
	}
	return out, nil
}

// parsePuts converts document entries to push specs. Entries are two-element
// [src, dst] lists or {src: ..., dst: ...} mappings.
func parsePuts(value any) ([]PushSpec, error) {
	var out []PushSpec
	for _, entry := range asList(value) {
		switch e := entry.(type) {
		case []any:
			if len(e) != 2 {
				return nil, fmt.Errorf("push spec needs [src, dst], got %d elements", len(e))
			}
			out = append(out, PushSpec{Src: fmt.Sprint(e[0]), Dst: fmt.Sprint(e[1])})
		default:
			m, err := toStringKeyed(entry)
			if err != nil {
				return nil, err
			}
			src, okSrc := m["src"]
			dst, okDst := m["dst"]
			if !okSrc || !okDst {
				return nil, fmt.Errorf("push spec needs src and dst keys")
			}
			out = append(out, PushSpec{Src: fmt.Sprint(src), Dst: fmt.Sprint(dst)})
		}
	}
	return out, nil
}

// asList normalizes scalar-or-list document values to a list.
func asList(v any) []any {
	switch val := v.(type) {
	case nil:
		return nil
	case []any:
		return val
	default:
		return []any{val}
	}
}

// scalarSet normalizes an attribute value to a set of scalar strings for
// matching.
func scalarSet(v any) []string {
	items := asList(v)
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, fmt.Sprint(it))
	}
	return out
}

func toStringKeyed(v any) (map[string]any, error) {
	switch m := v.(type) {
	case map[string]any:
		return m, nil
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a mapping, got %T", v)
	}
}

func toStringList(v any) ([]string, error) {
	var out []string
	for _, it := range asList(v) {
		s, ok := it.(string)
		if !ok {
			return nil, fmt.Errorf("expected a string, got %T", it)
		}
		out = append(out, s)
	}
	return out, nil
}

func toIntList(v any) ([]int, error) {
	var out []int
	for _, it := range asList(v) {
		i, err := toInt(it)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		return strconv.Atoi(n)
	default:
		return 0, fmt.Errorf("expected an integer, got %T", v)
	}
}

func toStringMap(v any) (map[string]string, error) {
	if v == nil {
		return nil, nil
	}
	m, err := toStringKeyed(v)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		out[k] = fmt.Sprint(val)
	}
	return out, nil
}

func sortedAnyKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
