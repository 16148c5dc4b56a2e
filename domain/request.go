package domain

import (
	"maps"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/bcit-ltc/forge-pipeline/errors"
)

var (
	commitPattern   = regexp.MustCompile(`^[0-9a-fA-F]{7,40}$`)
	buildArgPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

const (
	defaultContext    = "."
	defaultDockerfile = "Dockerfile"
)

// RequestInput holds the untrusted values used to build a PipelineRequest.
type RequestInput struct {
	Ref        string
	Commit     string
	Repository Repository
	Build      BuildParams

	// Timestamp is the pipeline start time. It is the only clock input of a
	// run; zero values are rejected.
	Timestamp time.Time
}

// PipelineRequest is the validated, immutable input of a run.
// Use NewPipelineRequest to construct one; accessors return copies.
type PipelineRequest struct {
	ref        string
	commit     string
	repository Repository
	build      BuildParams
	timestamp  time.Time
}

// NewPipelineRequest validates in and returns an immutable request.
// All fields are treated as untrusted input from the CI system.
func NewPipelineRequest(in RequestInput) (PipelineRequest, error) {
	fields := map[string]string{
		"ref":              in.Ref,
		"commit":           in.Commit,
		"repository.url":   in.Repository.URL,
		"repository.name":  in.Repository.Name,
		"build.context":    in.Build.Context,
		"build.dockerfile": in.Build.Dockerfile,
	}
	for name, value := range fields {
		if strings.ContainsAny(value, "\x00\r\n") {
			return PipelineRequest{}, invalid(name, "contains control characters")
		}
	}

	if strings.TrimSpace(in.Ref) == "" {
		return PipelineRequest{}, invalid("ref", "is required")
	}
	if !commitPattern.MatchString(in.Commit) {
		return PipelineRequest{}, invalid("commit", "must be 7-40 hexadecimal characters")
	}
	if in.Timestamp.IsZero() {
		return PipelineRequest{}, invalid("timestamp", "is required")
	}

	buildCtx, err := relativePath("build.context", in.Build.Context, defaultContext)
	if err != nil {
		return PipelineRequest{}, err
	}
	dockerfile, err := relativePath("build.dockerfile", in.Build.Dockerfile, defaultDockerfile)
	if err != nil {
		return PipelineRequest{}, err
	}

	for k, v := range in.Build.Args {
		if !buildArgPattern.MatchString(k) {
			return PipelineRequest{}, invalid("build.args", "invalid key "+quote(k))
		}
		if strings.ContainsAny(v, "\x00\r\n") {
			return PipelineRequest{}, invalid("build.args", "value of "+k+" contains control characters")
		}
	}

	repo := in.Repository
	if repo.Name == "" {
		repo.Name = repoName(repo.URL)
	}

	return PipelineRequest{
		ref:        in.Ref,
		commit:     strings.ToLower(in.Commit),
		repository: repo,
		build: BuildParams{
			Context:    buildCtx,
			Dockerfile: dockerfile,
			Args:       maps.Clone(in.Build.Args),
		},
		timestamp: in.Timestamp.UTC(),
	}, nil
}

// Ref returns the source ref, e.g. "refs/heads/main".
func (r PipelineRequest) Ref() string { return r.ref }

// Commit returns the lower-case commit hash.
func (r PipelineRequest) Commit() string { return r.commit }

// ShortCommit returns the first seven characters of the commit hash.
func (r PipelineRequest) ShortCommit() string {
	if len(r.commit) > 7 {
		return r.commit[:7]
	}
	return r.commit
}

// Repository returns the repository coordinates.
func (r PipelineRequest) Repository() Repository { return r.repository }

// Build returns a copy of the build parameters.
func (r PipelineRequest) Build() BuildParams {
	b := r.build
	b.Args = maps.Clone(r.build.Args)
	return b
}

// Timestamp returns the pipeline start time in UTC.
func (r PipelineRequest) Timestamp() time.Time { return r.timestamp }

func relativePath(field, p, def string) (string, error) {
	if p == "" {
		return def, nil
	}
	if strings.HasPrefix(p, "/") || strings.Contains(p, `\`) {
		return "", invalid(field, "must be a relative path")
	}
	for _, elem := range strings.Split(p, "/") {
		if elem == ".." {
			return "", invalid(field, "must not contain '..'")
		}
	}
	return path.Clean(p), nil
}

func repoName(url string) string {
	url = strings.TrimSuffix(strings.TrimRight(url, "/"), ".git")
	if i := strings.LastIndexAny(url, "/:"); i >= 0 {
		return url[i+1:]
	}
	return url
}

func quote(s string) string {
	return `"` + s + `"`
}

func invalid(field, reason string) error {
	pe := errors.Newf(errors.CodeInvalidInput, "invalid pipeline request: %s %s", field, reason)
	pe.Context = map[string]interface{}{"field": field}
	return pe
}
