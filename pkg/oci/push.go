/*
Copyright © 2025 NVIDIA Corporation
SPDX-License-Identifier: Apache-2.0
*/

// Package oci pushes collected diagnostic artifacts to OCI registries.
package oci

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/distribution/reference"
	ociv1 "github.com/opencontainers/image-spec/specs-go/v1"
	oras "oras.land/oras-go/v2"
	"oras.land/oras-go/v2/content/file"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/credentials"

	apperrors "github.com/NVIDIA/fleet-probe/pkg/errors"
)

// ArtifactType is the media type for fleet-probe diagnostic artifacts.
const ArtifactType = "application/vnd.nvidia.fleetprobe.artifact"

// PushOptions configures one artifact push.
type PushOptions struct {
	// SourceDir is the output tree to push.
	SourceDir string
	// Registry is the OCI registry host (e.g., "ghcr.io", "localhost:5000").
	Registry string
	// Repository is the image repository path (e.g., "nvidia/fleet-probe").
	Repository string
	// Tag is the image tag; usually the run id.
	Tag string
	// PlainHTTP uses HTTP instead of HTTPS for the registry connection.
	PlainHTTP bool
	// InsecureTLS skips TLS certificate verification.
	InsecureTLS bool
}

// PushResult reports a completed push.
type PushResult struct {
	// Digest is the SHA256 digest of the pushed artifact.
	Digest string
	// Reference is the full image reference (registry/repository:tag).
	Reference string
}

// Push packs the output tree into an OCI 1.1 artifact and copies it to the
// registry using ORAS. Docker credentials are used when present.
func Push(ctx context.Context, opts PushOptions) (*PushResult, error) {
	if opts.Tag == "" {
		return nil, apperrors.New(apperrors.ErrCodePublish, "tag is required to push an artifact")
	}

	absDir, err := filepath.Abs(opts.SourceDir)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodePublish, "resolving source directory", err)
	}

	registryHost := stripProtocol(opts.Registry)
	refString := fmt.Sprintf("%s/%s:%s", registryHost, opts.Repository, opts.Tag)
	if _, parseErr := reference.ParseNormalizedNamed(refString); parseErr != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodePublish,
			fmt.Sprintf("invalid image reference %q", refString), parseErr)
	}

	fs, err := file.New(absDir)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodePublish, "creating file store", err)
	}
	defer func() { _ = fs.Close() }()
	fs.TarReproducible = true

	layerDesc, err := fs.Add(ctx, ".", ociv1.MediaTypeImageLayerGzip, absDir)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodePublish, "adding source directory to store", err)
	}

	manifestDesc, err := oras.PackManifest(ctx, fs, oras.PackManifestVersion1_1, ArtifactType,
		oras.PackManifestOptions{Layers: []ociv1.Descriptor{layerDesc}})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodePublish, "packing manifest", err)
	}

	if tagErr := fs.Tag(ctx, manifestDesc, opts.Tag); tagErr != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodePublish, "tagging manifest in local store", tagErr)
	}

	repo, err := remote.NewRepository(fmt.Sprintf("%s/%s", registryHost, opts.Repository))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodePublish, "initializing remote repository", err)
	}
	repo.PlainHTTP = opts.PlainHTTP
	repo.Client = authClient(opts.PlainHTTP, opts.InsecureTLS)

	desc, err := oras.Copy(ctx, fs, opts.Tag, repo, opts.Tag, oras.DefaultCopyOptions)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodePublish, "pushing artifact to registry", err)
	}

	return &PushResult{
		Digest:    desc.Digest.String(),
		Reference: refString,
	}, nil
}

func stripProtocol(registry string) string {
	registry = strings.TrimPrefix(registry, "https://")
	registry = strings.TrimPrefix(registry, "http://")
	return registry
}

func authClient(plainHTTP, insecureTLS bool) *auth.Client {
	credStore, _ := credentials.NewStoreFromDocker(credentials.StoreOptions{})

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !plainHTTP && insecureTLS {
		if transport.TLSClientConfig == nil {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
		} else {
			transport.TLSClientConfig.InsecureSkipVerify = true //nolint:gosec
		}
	}

	return &auth.Client{
		Client:     &http.Client{Transport: transport},
		Cache:      auth.NewCache(),
		Credential: credentials.Credential(credStore),
	}
}
