package chart

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	digest "github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	helmchart "helm.sh/helm/v3/pkg/chart"
	"helm.sh/helm/v3/pkg/chart/loader"
	"helm.sh/helm/v3/pkg/chartutil"
	"helm.sh/helm/v3/pkg/registry"

	"github.com/bcit-ltc/forge-pipeline/domain"
	"github.com/bcit-ltc/forge-pipeline/errors"
	"github.com/bcit-ltc/forge-pipeline/fs"
	"github.com/bcit-ltc/forge-pipeline/oci"
)

// AnnotationContentDigest records the chart content digest on the pushed
// manifest so re-publishing can be compared without downloading layers.
const AnnotationContentDigest = "ca.bcit.ltc.forge.content-digest"

// Registry is the subset of the OCI client used to publish charts.
type Registry interface {
	Describe(ctx context.Context, ref string) (*oci.Manifest, error)
	Push(ctx context.Context, ref string, a oci.Artifact) (ocispec.Descriptor, error)
}

// ReleaseRequest describes a chart to publish.
type ReleaseRequest struct {
	// FS and Path locate the chart directory.
	FS   fs.Filesystem
	Path string

	Version    string
	AppVersion string

	// Revision is the source commit. A version already published from the
	// same revision counts as published even if its content differs.
	Revision string

	// Registry is the OCI repository prefix, e.g. "ghcr.io/org/charts".
	// The chart name is appended.
	Registry string

	Timestamp time.Time
}

// Releaser packages charts and publishes them as OCI artifacts.
type Releaser struct {
	registry Registry
	tempDir  string
	logger   *slog.Logger
}

// ReleaserOption configures a Releaser.
type ReleaserOption func(*Releaser)

// WithTempDir sets the parent directory for packaging scratch space.
func WithTempDir(dir string) ReleaserOption {
	return func(r *Releaser) {
		r.tempDir = dir
	}
}

// WithReleaserLogger sets the logger.
func WithReleaserLogger(l *slog.Logger) ReleaserOption {
	return func(r *Releaser) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewReleaser creates a Releaser publishing to reg.
func NewReleaser(reg Registry, opts ...ReleaserOption) *Releaser {
	r := &Releaser{registry: reg, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Release loads the chart, stamps the version and pushes it. When the tag
// already exists with the same content digest, or was published from the same
// non-empty Revision, nothing is pushed and the result is marked
// AlreadyPublished. Anything else yields a *PublishError with code CONFLICT.
func (r *Releaser) Release(ctx context.Context, req ReleaseRequest) (domain.ReleaseArtifact, error) {
	if req.FS == nil || req.Version == "" || req.Registry == "" {
		return domain.ReleaseArtifact{}, errors.New(errors.CodeInvalidInput, "chart filesystem, version and registry are required")
	}
	if req.AppVersion == "" {
		req.AppVersion = req.Version
	}
	if req.Path == "" {
		req.Path = "."
	}

	files, err := fs.ReadTree(req.FS, req.Path, true)
	if err != nil {
		return domain.ReleaseArtifact{}, errors.WrapWithContext(err, errors.CodeNotFound, "read chart directory",
			map[string]interface{}{"path": req.Path})
	}

	ch, err := loadChart(files)
	if err != nil {
		return domain.ReleaseArtifact{}, err
	}
	ch.Metadata.Version = req.Version
	ch.Metadata.AppVersion = req.AppVersion
	if err := ch.Validate(); err != nil {
		return domain.ReleaseArtifact{}, errors.Wrap(err, errors.CodeInvalidInput, "invalid chart metadata")
	}

	meta, err := json.Marshal(ch.Metadata)
	if err != nil {
		return domain.ReleaseArtifact{}, errors.Wrap(err, errors.CodeInternal, "encode chart metadata")
	}
	contentDigest := ContentDigest(meta, files)

	ref := fmt.Sprintf("%s/%s:%s", strings.TrimSuffix(req.Registry, "/"), ch.Metadata.Name, OCITag(req.Version))
	out := domain.ReleaseArtifact{
		Chart:         ch.Metadata.Name,
		Version:       req.Version,
		Reference:     ref,
		ContentDigest: contentDigest.String(),
	}

	existing, err := r.registry.Describe(ctx, ref)
	switch {
	case err == nil:
		sameRevision := req.Revision != "" && existing.Annotations[ocispec.AnnotationRevision] == req.Revision
		if existing.Annotations[AnnotationContentDigest] != out.ContentDigest && !sameRevision {
			return domain.ReleaseArtifact{}, &PublishError{
				Reference: ref,
				Reason:    errors.CodeConflict,
				Message:   fmt.Sprintf("version %s already published with different content", req.Version),
			}
		}
		r.logger.Info("chart already published", "reference", ref, "same_revision", sameRevision)
		out.Digest = existing.Descriptor.Digest.String()
		out.ContentDigest = existing.Annotations[AnnotationContentDigest]
		out.AlreadyPublished = true
		return out, nil
	case errors.Is(err, oci.ErrNotFound):
	default:
		return domain.ReleaseArtifact{}, &PublishError{Reference: ref, Reason: errors.GetCode(err), Message: "inspect registry", Err: err}
	}

	archive, err := r.pack(ch)
	if err != nil {
		return domain.ReleaseArtifact{}, err
	}

	annotations := map[string]string{
		AnnotationContentDigest:   out.ContentDigest,
		ocispec.AnnotationTitle:   ch.Metadata.Name,
		ocispec.AnnotationVersion: req.Version,
		ocispec.AnnotationCreated: req.Timestamp.UTC().Format(time.RFC3339),
	}
	if req.Revision != "" {
		annotations[ocispec.AnnotationRevision] = req.Revision
	}
	desc, err := r.registry.Push(ctx, ref, oci.Artifact{
		Config:      oci.Blob{MediaType: registry.ConfigMediaType, Data: meta},
		Layers:      []oci.Blob{{MediaType: registry.ChartLayerMediaType, Data: archive}},
		Annotations: annotations,
	})
	if err != nil {
		return domain.ReleaseArtifact{}, &PublishError{Reference: ref, Reason: errors.GetCode(err), Message: "push chart", Err: err}
	}

	r.logger.Info("published chart", "reference", ref, "digest", desc.Digest.String())
	out.Digest = desc.Digest.String()
	return out, nil
}

func loadChart(files []fs.TreeFile) (*helmchart.Chart, error) {
	buffered := make([]*loader.BufferedFile, 0, len(files))
	for _, f := range files {
		buffered = append(buffered, &loader.BufferedFile{Name: f.Name, Data: f.Data})
	}
	ch, err := loader.LoadFiles(buffered)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidInput, "load chart")
	}
	return ch, nil
}

// pack writes the chart archive to scratch space and returns its bytes.
func (r *Releaser) pack(ch *helmchart.Chart) ([]byte, error) {
	dir, err := os.MkdirTemp(r.tempDir, "forge-chart-")
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "create packaging directory")
	}
	defer os.RemoveAll(dir)

	name, err := chartutil.Save(ch, dir)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "package chart")
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "read chart archive")
	}
	return data, nil
}

// ContentDigest is a sha256 over the stamped metadata and every chart file
// except Chart.yaml, in name order. Archive timestamps do not affect it.
func ContentDigest(meta []byte, files []fs.TreeFile) digest.Digest {
	d := digest.SHA256.Digester()
	h := d.Hash()
	writeField(h, "metadata", meta)
	for _, f := range files {
		if path.Clean(f.Name) == ChartFile {
			continue
		}
		writeField(h, f.Name, f.Data)
	}
	return d.Digest()
}

func writeField(w io.Writer, name string, data []byte) {
	fmt.Fprintf(w, "%s\x00%d\x00", name, len(data))
	w.Write(data) //nolint:errcheck // hash writes never fail
}

// OCITag converts a chart version to an OCI tag. Build metadata separators
// are not allowed in tags and become "_", as helm does.
func OCITag(version string) string {
	return strings.ReplaceAll(version, "+", "_")
}
