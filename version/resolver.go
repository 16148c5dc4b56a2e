package version

import (
	"github.com/Masterminds/semver/v3"

	"github.com/bcit-ltc/forge-pipeline/domain"
	"github.com/bcit-ltc/forge-pipeline/errors"
)

// DefaultInitialVersion is the first release of a lineage without tags.
const DefaultInitialVersion = "1.0.0"

// History is the input of a resolution.
type History struct {
	// Previous is the highest released version, or nil when nothing was
	// released yet.
	Previous *semver.Version

	// Commits are the commits made since Previous, in any order.
	Commits []Commit
}

// Resolution is the outcome of resolving a history.
type Resolution struct {
	// NoOp is set when no commit qualifies for a release. Next is nil.
	NoOp bool

	Bump     Bump
	Previous *semver.Version
	Next     *semver.Version

	// Trigger is the hash of the first commit with the winning bump.
	Trigger string
}

// Info returns the reportable form of r, or nil for NoOp resolutions.
func (r Resolution) Info() *domain.VersionInfo {
	if r.NoOp || r.Next == nil {
		return nil
	}
	info := &domain.VersionInfo{Version: r.Next.String(), Bump: r.Bump.String()}
	if r.Previous != nil {
		info.Previous = r.Previous.String()
	}
	return info
}

// Resolver computes the next version from conventional-commit history.
// It is pure: the same History always yields the same Resolution.
type Resolver struct {
	initial *semver.Version
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver) error

// WithInitialVersion sets the version of the first release of a lineage.
func WithInitialVersion(v string) ResolverOption {
	return func(r *Resolver) error {
		parsed, err := semver.StrictNewVersion(v)
		if err != nil {
			return errors.Wrap(err, errors.CodeInvalidConfig, "invalid initial version")
		}
		r.initial = parsed
		return nil
	}
}

// NewResolver returns a Resolver starting new lineages at DefaultInitialVersion
// unless overridden.
func NewResolver(opts ...ResolverOption) (*Resolver, error) {
	r := &Resolver{initial: semver.MustParse(DefaultInitialVersion)}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Resolve returns the next version for h. The highest bump across all
// commits wins: breaking changes bump major, feat bumps minor, fix and perf
// bump patch. A history without qualifying commits resolves to NoOp.
func (r *Resolver) Resolve(h History) (Resolution, error) {
	a := newAnalyzer()

	res := Resolution{Previous: h.Previous}
	for _, c := range h.Commits {
		if b := a.bump(c.Message); b > res.Bump {
			res.Bump = b
			res.Trigger = c.Hash
		}
	}

	if res.Bump == BumpNone {
		res.NoOp = true
		return res, nil
	}

	if h.Previous == nil {
		next := *r.initial
		res.Next = &next
		return res, nil
	}

	// Pre-release and build metadata of the baseline are dropped before the
	// increment so the result is always a plain release version.
	plain := semver.New(h.Previous.Major(), h.Previous.Minor(), h.Previous.Patch(), "", "")

	var next semver.Version
	switch res.Bump {
	case BumpMajor:
		next = plain.IncMajor()
	case BumpMinor:
		next = plain.IncMinor()
	default:
		next = plain.IncPatch()
	}
	res.Next = &next
	return res, nil
}
