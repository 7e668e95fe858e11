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
	"fmt"
	"os"
	"strconv"
)

// File reads a pre-captured inventory from a JSON file. Two layouts are
// accepted: a bare array of records, or an object with "nodes", optional
// "releases" (cluster id → release) and "control_plane_release" fields.
type File struct {
	Path string
}

type fileInventory struct {
	Nodes               []Record          `json:"nodes"`
	Releases            map[string]string `json:"releases"`
	ControlPlaneRelease string            `json:"control_plane_release"`
}

// NewFile creates a file-backed inventory source.
func NewFile(path string) *File {
	return &File{Path: path}
}

func (f *File) load() (*fileInventory, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("reading inventory %s: %w", f.Path, err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err == nil {
		return &fileInventory{Nodes: records}, nil
	}

	inv := &fileInventory{}
	if err := json.Unmarshal(data, inv); err != nil {
		return nil, fmt.Errorf("parsing inventory %s: %w", f.Path, err)
	}
	return inv, nil
}

// Records implements Source.
func (f *File) Records(_ context.Context) ([]Record, error) {
	inv, err := f.load()
	if err != nil {
		return nil, err
	}
	return inv.Nodes, nil
}

// ReleaseMap implements Source.
func (f *File) ReleaseMap(_ context.Context) (map[int]string, error) {
	inv, err := f.load()
	if err != nil {
		return nil, err
	}
	out := make(map[int]string, len(inv.Releases))
	for k, v := range inv.Releases {
		id, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("inventory %s: release key %q is not a cluster id", f.Path, k)
		}
		out[id] = v
	}
	return out, nil
}

// ControlPlaneRelease implements Source.
func (f *File) ControlPlaneRelease(_ context.Context) (string, error) {
	inv, err := f.load()
	if err != nil {
		return "", err
	}
	if inv.ControlPlaneRelease == "" {
		return UnknownRelease, nil
	}
	return inv.ControlPlaneRelease, nil
}
