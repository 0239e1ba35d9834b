// Package templatesource loads the dashboard template, either from a local
// file or from an OCI artifact pushed with oras:
//
//	oras push ghcr.io/acme/edge-template:v3 edge-template.json:application/json
//	TEMPLATE_PATH=oci://ghcr.io/acme/edge-template:v3
package templatesource

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2"
	"oras.land/oras-go/v2/content"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
)

const (
	schemeOCI     = "oci://"
	schemeOCIHTTP = "oci+http://"
	defaultTag    = "latest"
)

// ArtifactType tags template artifacts pushed by edgedash tooling.
const ArtifactType = "application/vnd.margo.edgedash.template.v1+json"

type Credentials struct {
	Username string
	Password string
}

// Load returns the template text referenced by ref.
func Load(ctx context.Context, ref string, creds Credentials) (string, error) {
	switch {
	case strings.HasPrefix(ref, schemeOCI):
		return loadOCI(ctx, strings.TrimPrefix(ref, schemeOCI), false, creds)
	case strings.HasPrefix(ref, schemeOCIHTTP):
		return loadOCI(ctx, strings.TrimPrefix(ref, schemeOCIHTTP), true, creds)
	default:
		data, err := os.ReadFile(ref)
		if err != nil {
			return "", fmt.Errorf("failed to read template: %w", err)
		}
		return string(data), nil
	}
}

func loadOCI(ctx context.Context, ref string, plainHTTP bool, creds Credentials) (string, error) {
	repo, err := remote.NewRepository(ref)
	if err != nil {
		return "", fmt.Errorf("invalid repo: %w", err)
	}
	repo.PlainHTTP = plainHTTP
	if creds.Username != "" || creds.Password != "" {
		repo.Client = &auth.Client{
			Credential: auth.StaticCredential(repo.Reference.Registry, auth.Credential{
				Username: creds.Username,
				Password: creds.Password,
			}),
			Cache: auth.NewCache(),
		}
	}

	tag := repo.Reference.Reference
	if tag == "" {
		tag = defaultTag
	}
	return fetchTemplate(ctx, repo, tag)
}

// fetchTemplate resolves tag in target and returns the template layer.
func fetchTemplate(ctx context.Context, target oras.ReadOnlyTarget, tag string) (string, error) {
	_, manifestJSON, err := oras.FetchBytes(ctx, target, tag, oras.DefaultFetchBytesOptions)
	if err != nil {
		return "", fmt.Errorf("oras fetch %s failed: %w", tag, err)
	}

	var manifest ocispec.Manifest
	if err := json.Unmarshal(manifestJSON, &manifest); err != nil {
		return "", fmt.Errorf("decode manifest %s: %w", tag, err)
	}
	layer, ok := templateLayer(manifest.Layers)
	if !ok {
		return "", fmt.Errorf("artifact %s has no layers", tag)
	}

	data, err := content.FetchAll(ctx, target, layer)
	if err != nil {
		return "", fmt.Errorf("fetch layer %s: %w", layer.Digest, err)
	}
	return string(data), nil
}

// templateLayer picks the first JSON layer, or the first layer when none is
// typed as JSON.
func templateLayer(layers []ocispec.Descriptor) (ocispec.Descriptor, bool) {
	if len(layers) == 0 {
		return ocispec.Descriptor{}, false
	}
	for _, l := range layers {
		if strings.Contains(l.MediaType, "json") {
			return l, true
		}
	}
	return layers[0], true
}
