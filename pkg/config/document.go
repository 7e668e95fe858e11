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

package config

import (
	"fmt"
	"sort"
	"strings"
)

// Reserved document keys and prefixes.
const (
	// MatchPrefix marks attribute-matched sections ("by_roles", "by_os_platform", ...).
	MatchPrefix = "by_"
	// OncePrefix marks fleet-wide single-assignment sections ("once_by_roles", ...).
	OncePrefix = "once_"
	// PrioritySection is the reserved host-id override section. It is the one
	// "by_" key that is not an attribute matcher.
	PrioritySection = "by_id"
	// DefaultKey contributes values inside a matched branch or inside the
	// priority section regardless of which value or id matched.
	DefaultKey = "default"
)

// Action list attribute names contributed by documents onto hosts.
const (
	KeyCommands  = "cmds"
	KeyScripts   = "scripts"
	KeyFiles     = "files"
	KeyFileLists = "filelists"
	KeyLogs      = "logs"
	KeyPut       = "put"
)

// AppendableAttrs is the set of list-valued host attributes that accumulate
// contributions within a resolution pass.
var AppendableAttrs = map[string]bool{
	KeyCommands:  true,
	KeyScripts:   true,
	KeyFiles:     true,
	KeyFileLists: true,
	KeyLogs:      true,
	KeyPut:       true,
}

// DefaultResettableAttrs is the set of list attributes cleared before a
// reset resolution pass. Push specs and log captures are exempt by default;
// the resolver accepts an override.
var DefaultResettableAttrs = map[string]bool{
	KeyCommands:  true,
	KeyScripts:   true,
	KeyFiles:     true,
	KeyFileLists: true,
}

// Document is one scope of the declarative configuration tree. Generic keys
// contribute unconditionally at this scope, Matches narrow by host attribute
// values, and Priority applies host-id specific overrides last.
type Document struct {
	// Generic holds keys that are neither matchers nor the priority section.
	Generic map[string]any
	// Default holds this scope's "default" contributions, applied whenever
	// one of this scope's matchers fires, before recursing into the branch.
	Default map[string]any
	// Matches holds the "by_<attr>" sections, ordered by attribute name.
	Matches []*AttributeMatch
	// Priority holds the "by_id" section, if present.
	Priority *IDPriority
}

// AttributeMatch maps values of one host attribute to nested sub-documents.
// Default holds the section's own "default" key (sibling of the value
// branches), contributed for every matching value before the branch scope.
type AttributeMatch struct {
	Attr     string
	Default  map[string]any
	Branches map[string]*Document
}

// IDPriority holds per-host-id override contributions. The id sub-maps are
// flat contribution maps applied with replace semantics; Default is applied
// first with ordinary semantics.
type IDPriority struct {
	Default map[string]any
	ByID    map[string]map[string]any
}

// OnceRule is a fleet-wide single-assignment rule: each candidate value's
// sub-document is granted to exactly one matching host per run.
type OnceRule struct {
	Attr   string
	Values map[string]*Document
}

// ParseDocument converts a raw YAML tree into a Document plus the top-level
// once-rules. Once-rules are only recognized at the outermost scope.
func ParseDocument(raw map[string]any) (*Document, []OnceRule, error) {
	doc, err := parseScope(raw, "")
	if err != nil {
		return nil, nil, err
	}

	var rules []OnceRule
	for _, k := range sortedKeys(raw) {
		if !strings.HasPrefix(k, OncePrefix+MatchPrefix) {
			continue
		}
		attr := k[len(OncePrefix+MatchPrefix):]
		branches, err := toMap(raw[k])
		if err != nil {
			return nil, nil, fmt.Errorf("section %q: %w", k, err)
		}
		rule := OnceRule{Attr: attr, Values: make(map[string]*Document, len(branches))}
		for _, v := range sortedKeys(branches) {
			sub, err := toMap(branches[v])
			if err != nil {
				return nil, nil, fmt.Errorf("section %q value %q: %w", k, v, err)
			}
			subDoc, err := parseScope(sub, k+"."+v)
			if err != nil {
				return nil, nil, err
			}
			rule.Values[v] = subDoc
		}
		rules = append(rules, rule)
	}
	return doc, rules, nil
}

func parseScope(raw map[string]any, path string) (*Document, error) {
	doc := &Document{Generic: make(map[string]any)}

	for _, k := range sortedKeys(raw) {
		v := raw[k]
		switch {
		case k == DefaultKey:
			m, err := toMap(v)
			if err != nil {
				return nil, fmt.Errorf("%s: default section: %w", at(path), err)
			}
			doc.Default = m

		case k == PrioritySection:
			p, err := parsePriority(v, path)
			if err != nil {
				return nil, err
			}
			doc.Priority = p

		case strings.HasPrefix(k, OncePrefix):
			// Once-rules are handled by ParseDocument at the top scope;
			// nested occurrences are ignored here.
			continue

		case strings.HasPrefix(k, MatchPrefix):
			branches, err := toMap(v)
			if err != nil {
				return nil, fmt.Errorf("%s: section %q: %w", at(path), k, err)
			}
			m := &AttributeMatch{
				Attr:     k[len(MatchPrefix):],
				Branches: make(map[string]*Document, len(branches)),
			}
			for _, bv := range sortedKeys(branches) {
				sub, err := toMap(branches[bv])
				if err != nil {
					return nil, fmt.Errorf("%s: section %q value %q: %w", at(path), k, bv, err)
				}
				if bv == DefaultKey {
					m.Default = sub
					continue
				}
				subDoc, err := parseScope(sub, path+"/"+k+"."+bv)
				if err != nil {
					return nil, err
				}
				m.Branches[bv] = subDoc
			}
			doc.Matches = append(doc.Matches, m)

		default:
			doc.Generic[k] = v
		}
	}

	sort.Slice(doc.Matches, func(i, j int) bool { return doc.Matches[i].Attr < doc.Matches[j].Attr })
	return doc, nil
}

func parsePriority(v any, path string) (*IDPriority, error) {
	section, err := toMap(v)
	if err != nil {
		return nil, fmt.Errorf("%s: section %q: %w", at(path), PrioritySection, err)
	}
	p := &IDPriority{ByID: make(map[string]map[string]any, len(section))}
	for _, id := range sortedKeys(section) {
		sub, err := toMap(section[id])
		if err != nil {
			return nil, fmt.Errorf("%s: section %q id %q: %w", at(path), PrioritySection, id, err)
		}
		if id == DefaultKey {
			p.Default = sub
			continue
		}
		p.ByID[id] = sub
	}
	return p, nil
}

// toMap normalizes a YAML mapping node. Nil values parse as empty maps so
// that bare branch keys ("compute:") are valid.
func toMap(v any) (map[string]any, error) {
	switch m := v.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return m, nil
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprintf("%v", k)] = val
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a mapping, got %T", v)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func at(path string) string {
	if path == "" {
		return "document root"
	}
	return path
}
