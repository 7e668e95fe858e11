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

package oci

import (
	"strings"

	"github.com/distribution/reference"

	apperrors "github.com/NVIDIA/fleet-probe/pkg/errors"
)

// URIScheme marks a publish target as an OCI registry reference
// (e.g., "oci://ghcr.io/org/repo:tag").
const URIScheme = "oci://"

// Reference is a parsed publish target: either an OCI registry reference or
// a local directory path.
type Reference struct {
	// IsOCI reports whether the target is an OCI registry reference.
	IsOCI bool
	// Registry is the registry host. Set only when IsOCI is true.
	Registry string
	// Repository is the image repository path. Set only when IsOCI is true.
	Repository string
	// Tag is the image tag. Empty means none was given; callers apply a
	// default such as the run id. Set only when IsOCI is true.
	Tag string
	// LocalPath is the directory path for non-OCI targets.
	LocalPath string
}

// ParseTarget parses a publish target string. Strings with the oci:// scheme
// are parsed as image references; anything else is a local directory.
func ParseTarget(target string) (*Reference, error) {
	if !strings.HasPrefix(target, URIScheme) {
		return &Reference{LocalPath: target}, nil
	}

	ref, err := reference.ParseNormalizedNamed(strings.TrimPrefix(target, URIScheme))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodePublish, "invalid OCI reference", err)
	}

	out := &Reference{
		IsOCI:      true,
		Registry:   reference.Domain(ref),
		Repository: reference.Path(ref),
	}
	if tagged, ok := ref.(reference.Tagged); ok {
		out.Tag = tagged.Tag()
	}
	return out, nil
}
