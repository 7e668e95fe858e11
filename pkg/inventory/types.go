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

package inventory

import (
	"context"
	"encoding/json"
	"strings"
)

// UnknownRelease is the sentinel used when no release information is
// available for a host's cluster.
const UnknownRelease = "n/a"

// Roles is a host role set. Inventory payloads encode it either as a list
// or as a comma-separated string; both forms decode to the same set.
type Roles []string

// UnmarshalJSON accepts both the list and the comma-separated string form.
func (r *Roles) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*r = list
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*r = nil
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	*r = out
	return nil
}

// Record is one raw inventory entry, prior to filtering and host
// construction.
type Record struct {
	ID         int    `json:"id"`
	Cluster    int    `json:"cluster"`
	Roles      Roles  `json:"roles"`
	Name       string `json:"name"`
	FQDN       string `json:"fqdn"`
	MAC        string `json:"mac"`
	OSPlatform string `json:"os_platform"`
	Status     string `json:"status"`
	Online     bool   `json:"online"`
	Addr       string `json:"ip"`
}

// Source supplies the raw host inventory and release information.
//
// A Source that cannot return Records at all is fatal to the run; a failed
// ReleaseMap lookup degrades to the UnknownRelease sentinel per cluster.
type Source interface {
	// Records returns the raw inventory.
	Records(ctx context.Context) ([]Record, error)
	// ReleaseMap returns the release version per cluster id.
	ReleaseMap(ctx context.Context) (map[int]string, error)
	// ControlPlaneRelease returns the control-plane release version.
	ControlPlaneRelease(ctx context.Context) (string, error)
}
