package version

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/bcit-ltc/forge-pipeline/domain"
	"github.com/bcit-ltc/forge-pipeline/environment"
	"github.com/bcit-ltc/forge-pipeline/errors"
)

// HistorySource provides the release history of the application.
type HistorySource interface {
	// History returns the highest released version and the commits made since.
	History(ctx context.Context) (History, error)
}

// Service resolves the version of a run according to its environment.
type Service struct {
	resolver  *Resolver
	source    HistorySource
	tagPrefix string
	logger    *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger used by the service.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithTagPrefix sets the prefix stripped from release tags, "v" by default.
func WithTagPrefix(prefix string) ServiceOption {
	return func(s *Service) {
		s.tagPrefix = prefix
	}
}

// NewService returns a Service reading history from source.
func NewService(resolver *Resolver, source HistorySource, opts ...ServiceOption) *Service {
	s := &Service{
		resolver:  resolver,
		source:    source,
		tagPrefix: "v",
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return s
}

// Resolve returns the version for a run classified as cls.
//
//   - stable: the release tag is the version; history is not consulted.
//   - latest: the next version of the history.
//   - review: the next version with a pre-release identifying the branch
//     ("issue-<n>", "pr-<n>" or "review-<slug>") and the short commit as
//     build metadata.
//
// Histories without qualifying commits resolve to NoOp for latest and review.
func (s *Service) Resolve(ctx context.Context, cls environment.Classification, req domain.PipelineRequest) (Resolution, error) {
	if cls.Environment == domain.EnvironmentStable {
		return s.fromTag(cls.Name)
	}

	h, err := s.source.History(ctx)
	if err != nil {
		return Resolution{}, err
	}

	res, err := s.resolver.Resolve(h)
	if err != nil {
		return Resolution{}, err
	}

	s.logger.Debug("resolved history",
		"environment", cls.Environment,
		"previous", versionString(h.Previous),
		"commits", len(h.Commits),
		"bump", res.Bump.String(),
		"noop", res.NoOp,
	)

	if res.NoOp || cls.Environment == domain.EnvironmentLatest {
		return res, nil
	}

	next := semver.New(res.Next.Major(), res.Next.Minor(), res.Next.Patch(), PreRelease(cls), req.ShortCommit())
	res.Next = next
	return res, nil
}

func (s *Service) fromTag(tag string) (Resolution, error) {
	v, err := semver.StrictNewVersion(strings.TrimPrefix(tag, s.tagPrefix))
	if err != nil {
		return Resolution{}, errors.Wrap(err, errors.CodeInvalidInput, fmt.Sprintf("release tag %q is not a semantic version", tag))
	}
	return Resolution{Bump: BumpNone, Next: v}, nil
}

// PreRelease returns the pre-release identifier used for review versions.
func PreRelease(cls environment.Classification) string {
	switch {
	case cls.Kind == environment.KindPull:
		return "pr-" + cls.Name
	case cls.Issue > 0:
		return fmt.Sprintf("issue-%d", cls.Issue)
	}
	if slug := environment.Slug(cls.Name); slug != "" {
		return "review-" + slug
	}
	return "review"
}

func versionString(v *semver.Version) string {
	if v == nil {
		return ""
	}
	return v.String()
}
