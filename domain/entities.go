package domain

import (
	"time"
)

// Repository identifies the source repository of a run.
type Repository struct {
	// URL is the clone URL reported by the CI system.
	URL string `json:"url"`

	// Name is the short repository name. It defaults to the last path
	// element of URL without a ".git" suffix.
	Name string `json:"name"`
}

// BuildParams describes the container build for a run.
type BuildParams struct {
	// Context is the build context directory, relative to the checkout.
	Context string `json:"context"`

	// Dockerfile is the Dockerfile path, relative to the checkout.
	Dockerfile string `json:"dockerfile"`

	// Args are passed to the build as --build-arg KEY=VALUE.
	Args map[string]string `json:"args,omitempty"`
}

// BuildArtifact references a built and pushed container image.
type BuildArtifact struct {
	// Registry is the registry host, e.g. "ghcr.io".
	Registry string `json:"registry"`

	// Repository is the image repository within the registry.
	Repository string `json:"repository"`

	// Tags are the pushed tags. The first tag is the primary tag written into
	// the chart values.
	Tags []string `json:"tags"`

	// Digest is the manifest digest reported by the registry.
	Digest string `json:"digest,omitempty"`
}

// PrimaryTag returns the first tag or "" when no tags were pushed.
func (a BuildArtifact) PrimaryTag() string {
	if len(a.Tags) == 0 {
		return ""
	}
	return a.Tags[0]
}

// Reference returns registry/repository:tag for the primary tag.
func (a BuildArtifact) Reference() string {
	ref := a.Repository
	if a.Registry != "" {
		ref = a.Registry + "/" + ref
	}
	if tag := a.PrimaryTag(); tag != "" {
		ref += ":" + tag
	}
	return ref
}

// ChartUpdate describes a write to the chart repository.
type ChartUpdate struct {
	// Repository is the chart repository URL.
	Repository string `json:"repository"`

	// Path is the chart directory within the repository.
	Path string `json:"path"`

	// Version is the chart version written to Chart.yaml.
	Version string `json:"version"`

	// AppVersion is the application version written to Chart.yaml.
	AppVersion string `json:"appVersion"`

	// ImageTag is the image tag written to the values file.
	ImageTag string `json:"imageTag"`

	// Commit is the hash of the pushed commit, or the current head when
	// nothing changed.
	Commit string `json:"commit"`

	// Changed is false when the repository already held these values.
	Changed bool `json:"changed"`

	// Host is the environment host set in the released values. It is never
	// committed.
	Host string `json:"host,omitempty"`
}

// ReleaseArtifact describes a chart published to an OCI registry.
type ReleaseArtifact struct {
	// Chart is the chart name.
	Chart string `json:"chart"`

	// Version is the published chart version.
	Version string `json:"version"`

	// Reference is the full OCI reference, e.g. "ghcr.io/org/charts/web:1.2.4".
	Reference string `json:"reference"`

	// Digest is the manifest digest.
	Digest string `json:"digest"`

	// ContentDigest identifies the chart content independently of packaging.
	ContentDigest string `json:"contentDigest"`

	// AlreadyPublished is true when an identical chart already existed at
	// this version and nothing was pushed.
	AlreadyPublished bool `json:"alreadyPublished"`
}

// VersionInfo is the resolved version of a run.
type VersionInfo struct {
	// Version is the full semantic version including pre-release and build
	// metadata.
	Version string `json:"version"`

	// Previous is the baseline version the bump was applied to.
	Previous string `json:"previous,omitempty"`

	// Bump is the applied increment: major, minor, patch or none.
	Bump string `json:"bump"`
}

// StageRecord is the outcome of a single stage in a run.
type StageRecord struct {
	Stage      Stage         `json:"stage"`
	Status     StageStatus   `json:"status"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
	Duration   time.Duration `json:"duration"`
	Message    string        `json:"message,omitempty"`
}

// RunError carries the stage, code and message of a failed run.
type RunError struct {
	Stage   Stage  `json:"stage"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RunResult is the structured outcome of a pipeline run.
type RunResult struct {
	// Status is done or failed.
	Status RunStatus `json:"status"`

	// Stage is the last stage reached, or the stage whose transition failed.
	Stage Stage `json:"stage"`

	Environment Environment      `json:"environment,omitempty"`
	Version     *VersionInfo     `json:"version,omitempty"`
	NoOp        bool             `json:"noop"`
	Build       *BuildArtifact   `json:"build,omitempty"`
	Chart       *ChartUpdate     `json:"chart,omitempty"`
	Release     *ReleaseArtifact `json:"release,omitempty"`
	Tag         string           `json:"tag,omitempty"`
	Error       *RunError        `json:"error,omitempty"`
	Stages      []StageRecord    `json:"stages"`
}

// Failed reports whether the run halted on an error.
func (r *RunResult) Failed() bool {
	return r.Status == RunStatusFailed
}
