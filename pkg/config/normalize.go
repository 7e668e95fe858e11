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

import "strings"

// NormalizeActions merges an action-first document into a canonical
// host-first document tree.
//
// Action documents are keyed by action name first, with matcher sections
// nested below each action:
//
//	cmds:
//	  default: [{uname: uname -a}]
//	  by_roles:
//	    compute: [{df: df -h}]
//
// The canonical shape keys matcher sections first, with action contributions
// nested inside each branch:
//
//	cmds: [{uname: uname -a}]
//	by_roles:
//	  compute:
//	    cmds: [{df: df -h}]
//
// This is a pure structural transform; it contributes nothing the resolver
// does not already understand. Sections for distinct actions under the same
// matcher key are merged, not replaced.
func NormalizeActions(src, dst map[string]any) {
	for _, action := range sortedKeys(src) {
		reshape(action, src, action, dst)
	}
}

func reshape(action string, el map[string]any, k string, dst map[string]any) {
	matchSect := strings.HasPrefix(k, MatchPrefix) || strings.HasPrefix(k, OncePrefix+MatchPrefix)
	if k != action {
		if _, ok := dst[k]; !ok {
			dst[k] = map[string]any{}
		}
	}

	section, _ := normalizeMapKeys(el[k])
	if section == nil {
		// Leaf value directly under the action key.
		if k == action {
			dst[k] = el[k]
		} else {
			ensureMap(dst, k)[action] = el[k]
		}
		return
	}

	if dv, ok := section[DefaultKey]; ok {
		switch {
		case k == action:
			dst[k] = dv
		case matchSect:
			ensureMap(ensureMap(dst, k), DefaultKey)[action] = dv
		default:
			ensureMap(dst, k)[action] = dv
		}
	}

	switch {
	case k == action:
		for _, subk := range sortedKeys(section) {
			if subk == DefaultKey {
				continue
			}
			reshape(action, section, subk, dst)
		}
	case matchSect || allMatcherKeys(section):
		sub := ensureMap(dst, k)
		for _, subk := range sortedKeys(section) {
			if subk == DefaultKey || section[subk] == nil {
				continue
			}
			if _, ok := sub[subk]; !ok {
				sub[subk] = map[string]any{}
			}
			reshape(action, section, subk, sub)
		}
	default:
		ensureMap(dst, k)[action] = el[k]
	}
}

// allMatcherKeys reports whether every key of the section is the default key
// or a matcher/once section, meaning the section nests further rather than
// holding a leaf contribution.
func allMatcherKeys(section map[string]any) bool {
	for k := range section {
		if k != DefaultKey && !strings.HasPrefix(k, MatchPrefix) && !strings.HasPrefix(k, OncePrefix+MatchPrefix) {
			return false
		}
	}
	return true
}

func ensureMap(m map[string]any, k string) map[string]any {
	if sub, ok := m[k].(map[string]any); ok {
		return sub
	}
	sub := map[string]any{}
	m[k] = sub
	return sub
}

// normalizeMapKeys returns v as a string-keyed map, or nil when v is not a
// mapping at all.
func normalizeMapKeys(v any) (map[string]any, bool) {
	m, err := toMap(v)
	if err != nil || v == nil {
		return nil, false
	}
	return m, true
}
