// Package oci pushes and inspects artifacts in OCI registries.
//
// It is a thin layer over ORAS: blobs are pushed individually, packed into
// an image manifest with ORAS's v1.1 packer and tagged. Transient registry
// failures are retried with exponential backoff.
package oci

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/bcit-ltc/forge-pipeline/errors"
	digest "github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2"
	"oras.land/oras-go/v2/errdef"

	orasint "github.com/bcit-ltc/forge-pipeline/oci/internal/oras"
)

// Blob is a single piece of content pushed as a manifest config or layer.
type Blob struct {
	MediaType   string
	Data        []byte
	Annotations map[string]string
}

// Artifact describes everything needed to push one tagged manifest.
type Artifact struct {
	// ArtifactType is optional when Config carries a media type.
	ArtifactType string
	Config       Blob
	Layers       []Blob
	Annotations  map[string]string
}

// Manifest is what Describe reports about a pushed artifact.
type Manifest struct {
	Descriptor   ocispec.Descriptor
	ArtifactType string
	Config       ocispec.Descriptor
	Layers       []ocispec.Descriptor
	Annotations  map[string]string
}

// Client talks to OCI registries.
type Client struct {
	opts *clientOptions
}

// New creates a Client.
func New(opts ...ClientOption) *Client {
	o := defaultClientOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.targetFactory == nil {
		auth := o.auth
		o.targetFactory = func(ctx context.Context, repository string) (oras.Target, error) {
			return orasint.NewRepository(ctx, repository, &auth)
		}
	}
	return &Client{opts: o}
}

// Push uploads the artifact and tags it with the tag in ref
// (registry/repository:tag).
func (c *Client) Push(ctx context.Context, ref string, a Artifact) (ocispec.Descriptor, error) {
	repoPath, tag, isDigest := orasint.SplitReference(ref)
	if repoPath == "" || tag == "" || isDigest {
		return ocispec.Descriptor{}, errors.Newf(errors.CodeInvalidInput, "push reference must be repository:tag, got %q", ref)
	}
	if a.Config.MediaType == "" && a.ArtifactType == "" {
		return ocispec.Descriptor{}, errors.New(errors.CodeInvalidInput, "artifact type or config media type is required")
	}

	var manifest ocispec.Descriptor
	err := c.retry(ctx, "push", ref, func(ctx context.Context) error {
		target, err := c.opts.targetFactory(ctx, repoPath)
		if err != nil {
			return mapError(err, "push", ref)
		}
		desc, err := pushManifest(ctx, target, a)
		if err != nil {
			return mapError(err, "push", ref)
		}
		if err := target.Tag(ctx, desc, tag); err != nil {
			return mapError(err, "tag", ref)
		}
		manifest = desc
		return nil
	})
	if err != nil {
		return ocispec.Descriptor{}, err
	}

	c.opts.logger.Info("pushed artifact", "reference", ref, "digest", manifest.Digest.String())
	return manifest, nil
}

func pushManifest(ctx context.Context, target oras.Target, a Artifact) (ocispec.Descriptor, error) {
	packOpts := oras.PackManifestOptions{
		ManifestAnnotations: a.Annotations,
	}

	if a.Config.MediaType != "" {
		cfg, err := pushBlob(ctx, target, a.Config)
		if err != nil {
			return ocispec.Descriptor{}, fmt.Errorf("push config: %w", err)
		}
		packOpts.ConfigDescriptor = &cfg
	}

	for i, layer := range a.Layers {
		desc, err := pushBlob(ctx, target, layer)
		if err != nil {
			return ocispec.Descriptor{}, fmt.Errorf("push layer %d: %w", i, err)
		}
		packOpts.Layers = append(packOpts.Layers, desc)
	}

	return oras.PackManifest(ctx, target, oras.PackManifestVersion1_1, a.ArtifactType, packOpts)
}

func pushBlob(ctx context.Context, target oras.Target, b Blob) (ocispec.Descriptor, error) {
	desc := ocispec.Descriptor{
		MediaType:   b.MediaType,
		Digest:      digest.FromBytes(b.Data),
		Size:        int64(len(b.Data)),
		Annotations: b.Annotations,
	}
	exists, err := target.Exists(ctx, desc)
	if err != nil && !errors.Is(err, errdef.ErrNotFound) {
		return ocispec.Descriptor{}, err
	}
	if exists {
		return desc, nil
	}
	if err := target.Push(ctx, desc, bytes.NewReader(b.Data)); err != nil && !errors.Is(err, errdef.ErrAlreadyExists) {
		return ocispec.Descriptor{}, err
	}
	return desc, nil
}

// Describe fetches the manifest behind ref. It returns an error matching
// ErrNotFound when the reference does not exist.
func (c *Client) Describe(ctx context.Context, ref string) (*Manifest, error) {
	repoPath, tag, _ := orasint.SplitReference(ref)
	if repoPath == "" || tag == "" {
		return nil, errors.Newf(errors.CodeInvalidInput, "describe reference must include a tag or digest, got %q", ref)
	}

	var out *Manifest
	err := c.retry(ctx, "describe", ref, func(ctx context.Context) error {
		target, err := c.opts.targetFactory(ctx, repoPath)
		if err != nil {
			return mapError(err, "describe", ref)
		}
		desc, data, err := oras.FetchBytes(ctx, target, tag, oras.DefaultFetchBytesOptions)
		if err != nil {
			return mapError(err, "describe", ref)
		}
		var m ocispec.Manifest
		if err := json.Unmarshal(data, &m); err != nil {
			return errors.Wrap(err, errors.CodeInternal, "decode manifest")
		}
		out = &Manifest{
			Descriptor:   desc,
			ArtifactType: m.ArtifactType,
			Config:       m.Config,
			Layers:       m.Layers,
			Annotations:  m.Annotations,
		}
		return nil
	})
	if err != nil {
		if errors.GetCode(err) == errors.CodeNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return out, nil
}

// retry runs op until it succeeds, returns a non-retryable error, or the
// attempts are exhausted.
func (c *Client) retry(ctx context.Context, opName, ref string, op func(context.Context) error) error {
	delay := c.opts.retryDelay
	var lastErr error

	for attempt := 1; attempt <= c.opts.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return mapError(err, opName, ref)
		}

		lastErr = c.attempt(ctx, op)
		if lastErr == nil {
			return nil
		}
		if !errors.IsRetryable(lastErr) || attempt == c.opts.maxAttempts {
			break
		}

		c.opts.logger.Warn("registry operation failed, retrying",
			slog.String("op", opName),
			slog.String("reference", ref),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.Any("error", lastErr))

		select {
		case <-ctx.Done():
			return mapError(ctx.Err(), opName, ref)
		case <-time.After(delay):
		}
		delay *= 2
	}
	return lastErr
}

func (c *Client) attempt(ctx context.Context, op func(context.Context) error) error {
	if c.opts.timeout <= 0 {
		return op(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, c.opts.timeout)
	defer cancel()
	return op(actx)
}
