// Package imagebuild builds and pushes container images with the docker CLI.
package imagebuild

import (
	"context"
	"log/slog"
	"maps"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/distribution/reference"
	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/bcit-ltc/forge-pipeline/domain"
	"github.com/bcit-ltc/forge-pipeline/errors"
	"github.com/bcit-ltc/forge-pipeline/executor"
)

const (
	defaultAttempts = 3
	defaultDelay    = 2 * time.Second
	defaultTimeout  = 5 * time.Minute
	maxOutputTail   = 2048
)

var pushDigestPattern = regexp.MustCompile(`digest: (sha256:[0-9a-f]{64})`)

// transientMarkers identify registry failures worth retrying.
var transientMarkers = []string{
	"timeout",
	"timed out",
	"connection refused",
	"connection reset",
	"broken pipe",
	"tls handshake",
	"no such host",
	"temporary failure",
	"eof",
	"too many requests",
	"toomanyrequests",
	"500 internal server error",
	"502 bad gateway",
	"503 service unavailable",
	"504 gateway timeout",
}

// Request describes a single image build.
type Request struct {
	Environment domain.Environment
	Version     string
	Commit      string
	Branch      string
	Issue       int
	Timestamp   time.Time
	Build       domain.BuildParams

	// Source is the image source URL recorded as a label.
	Source string

	// Dir is the checkout directory Build paths are relative to.
	Dir string
}

// Credentials authenticate docker push.
type Credentials struct {
	Username string
	Password string
}

// DockerBuilder builds images with "docker build" and pushes every rendered
// tag with "docker push". Builds are never retried. Pushes are retried with
// exponential backoff when the failure looks transient.
type DockerBuilder struct {
	runner     executor.Runner
	registry   string
	repository string
	rules      TagRules
	creds      *Credentials
	attempts   int
	delay      time.Duration
	timeout    time.Duration
	logger     *slog.Logger
}

// Option configures a DockerBuilder.
type Option func(*DockerBuilder)

// WithRunner sets the docker command runner.
func WithRunner(r executor.Runner) Option {
	return func(b *DockerBuilder) {
		b.runner = r
	}
}

// WithTagRules replaces the default tag rules.
func WithTagRules(rules TagRules) Option {
	return func(b *DockerBuilder) {
		b.rules = rules
	}
}

// WithCredentials logs in to the registry before pushing.
func WithCredentials(c Credentials) Option {
	return func(b *DockerBuilder) {
		b.creds = &c
	}
}

// WithRetry bounds push attempts, the first backoff delay and each attempt's duration.
func WithRetry(attempts int, delay, timeout time.Duration) Option {
	return func(b *DockerBuilder) {
		b.attempts = attempts
		b.delay = delay
		b.timeout = timeout
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *DockerBuilder) {
		b.logger = logger
	}
}

// NewDockerBuilder returns a builder pushing to registry/repository.
func NewDockerBuilder(registry, repository string, opts ...Option) (*DockerBuilder, error) {
	b := &DockerBuilder{
		registry:   strings.TrimSuffix(registry, "/"),
		repository: repository,
		rules:      DefaultTagRules(),
		attempts:   defaultAttempts,
		delay:      defaultDelay,
		timeout:    defaultTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.runner == nil {
		b.runner = executor.NewWrappedExecutor("docker")
	}
	if b.logger == nil {
		b.logger = slog.New(slog.DiscardHandler)
	}
	if b.attempts < 1 {
		b.attempts = 1
	}

	if _, err := reference.ParseNormalizedNamed(b.name()); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidConfig, "invalid image repository "+b.name())
	}
	if err := b.rules.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *DockerBuilder) name() string {
	if b.registry == "" {
		return b.repository
	}
	return b.registry + "/" + b.repository
}

// Tags renders and validates the image tags for req without building.
func (b *DockerBuilder) Tags(req Request) ([]string, error) {
	tags, err := b.rules.RenderTags(TagData{
		Environment: req.Environment,
		Version:     req.Version,
		Commit:      req.Commit,
		Branch:      req.Branch,
		Issue:       req.Issue,
		Time:        req.Timestamp,
	})
	if err != nil {
		return nil, err
	}

	named, err := reference.ParseNormalizedNamed(b.name())
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidConfig, "invalid image repository")
	}
	for _, tag := range tags {
		if _, err := reference.WithTag(named, tag); err != nil {
			return nil, errors.Wrap(err, errors.CodeInvalidInput, "invalid image tag "+tag)
		}
	}
	return tags, nil
}

// Build builds the image, pushes every tag and returns the artifact.
func (b *DockerBuilder) Build(ctx context.Context, req Request) (domain.BuildArtifact, error) {
	tags, err := b.Tags(req)
	if err != nil {
		return domain.BuildArtifact{}, err
	}

	refs := make([]string, len(tags))
	for i, tag := range tags {
		refs[i] = b.name() + ":" + tag
	}

	b.logger.InfoContext(ctx, "building image", "image", b.name(), "tags", tags)
	if res, err := b.runner.Execute(ctx, b.buildArgs(req, refs), executor.WithWorkingDir(req.Dir)); err != nil {
		return domain.BuildArtifact{}, newBuildError("build", refs[0], res, err)
	}

	if b.creds != nil {
		if err := b.login(ctx); err != nil {
			return domain.BuildArtifact{}, err
		}
	}

	var dgst digest.Digest
	for _, ref := range refs {
		d, err := b.push(ctx, ref)
		if err != nil {
			return domain.BuildArtifact{}, err
		}
		if dgst == "" {
			dgst = d
		}
	}

	return domain.BuildArtifact{
		Registry:   b.registry,
		Repository: b.repository,
		Tags:       tags,
		Digest:     dgst.String(),
	}, nil
}

func (b *DockerBuilder) buildArgs(req Request, refs []string) []string {
	dockerfile := req.Build.Dockerfile
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}
	buildCtx := req.Build.Context
	if buildCtx == "" {
		buildCtx = "."
	}

	args := []string{"build", "--file", filepath.FromSlash(dockerfile)}
	for _, ref := range refs {
		args = append(args, "--tag", ref)
	}

	labels := map[string]string{
		ocispec.AnnotationVersion:  req.Version,
		ocispec.AnnotationRevision: req.Commit,
		ocispec.AnnotationCreated:  req.Timestamp.UTC().Format(time.RFC3339),
	}
	if req.Source != "" {
		labels[ocispec.AnnotationSource] = req.Source
	}
	for _, k := range slices.Sorted(maps.Keys(labels)) {
		args = append(args, "--label", k+"="+labels[k])
	}

	for _, k := range slices.Sorted(maps.Keys(req.Build.Args)) {
		args = append(args, "--build-arg", k+"="+req.Build.Args[k])
	}

	return append(args, filepath.FromSlash(buildCtx))
}

func (b *DockerBuilder) login(ctx context.Context) error {
	args := []string{"login", b.registry, "--username", b.creds.Username, "--password-stdin"}
	res, err := b.runner.Execute(ctx, args,
		executor.WithStdin(b.creds.Password),
		executor.WithRetry(b.attempts-1, b.delay),
		executor.WithTimeout(b.timeout),
		executor.WithRetryCondition(transient),
	)
	if err != nil {
		return newBuildError("login", b.registry, res, err)
	}
	return nil
}

func (b *DockerBuilder) push(ctx context.Context, ref string) (digest.Digest, error) {
	b.logger.InfoContext(ctx, "pushing image", "ref", ref)

	res, err := b.runner.Execute(ctx, []string{"push", ref},
		executor.WithRetry(b.attempts-1, b.delay),
		executor.WithBackoff(2),
		executor.WithTimeout(b.timeout),
		executor.WithRetryCondition(transient),
		executor.WithLogger(b.logger),
	)
	if err != nil {
		return "", newBuildError("push", ref, res, err)
	}

	m := pushDigestPattern.FindStringSubmatch(res.Stdout + res.Stderr)
	if m == nil {
		b.logger.WarnContext(ctx, "push output did not report a digest", "ref", ref)
		return "", nil
	}
	d, err := digest.Parse(m[1])
	if err != nil {
		return "", &BuildError{Op: "push", Ref: ref, Err: err}
	}
	return d, nil
}

// transient reports whether a failed docker command is worth retrying.
func transient(res *executor.Result, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) || res == nil {
		return false
	}
	out := strings.ToLower(res.Stderr + res.Stdout)
	if strings.Contains(out, "denied") || strings.Contains(out, "unauthorized") {
		return false
	}
	for _, marker := range transientMarkers {
		if strings.Contains(out, marker) {
			return true
		}
	}
	return false
}

func newBuildError(op, ref string, res *executor.Result, err error) *BuildError {
	be := &BuildError{Op: op, Ref: ref, Err: err}
	if res != nil {
		be.ExitCode = res.ExitCode
		be.Output = tail(strings.TrimSpace(res.Stderr), maxOutputTail)
	}
	return be
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
