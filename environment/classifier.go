// Package environment maps source refs to deployment environments.
package environment

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/bcit-ltc/forge-pipeline/domain"
	"github.com/bcit-ltc/forge-pipeline/errors"
)

const (
	// DefaultReleasePattern matches release tags such as "1.2.3" or "v1.2.3".
	DefaultReleasePattern = `^v?(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)$`

	// DefaultBranch is the branch deployed to the latest environment.
	DefaultBranch = "main"

	refsHeads = "refs/heads/"
	refsTags  = "refs/tags/"
	refsPull  = "refs/pull/"
)

var (
	issuePattern = regexp.MustCompile(`^(\d+)-`)
	pullPattern  = regexp.MustCompile(`^[0-9]+$`)
)

const maxSlug = 40

// Kind is the kind of ref a classification was made from.
type Kind string

const (
	KindBranch Kind = "branch"
	KindTag    Kind = "tag"
	KindPull   Kind = "pull"
)

// Classification is the result of classifying a ref.
type Classification struct {
	Environment domain.Environment `json:"environment"`
	Kind        Kind               `json:"kind"`

	// Name is the branch or tag name without the refs/ prefix, or the pull
	// request number for pull refs.
	Name string `json:"name"`

	// Issue is the issue number of branches named "<n>-...", otherwise 0.
	Issue int `json:"issue,omitempty"`
}

// ClassificationError reports a ref that could not be classified.
type ClassificationError struct {
	Ref    string
	Reason string
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("cannot classify ref %q: %s", e.Ref, e.Reason)
}

// Code implements errors.Coder.
func (e *ClassificationError) Code() errors.ErrorCode {
	return errors.CodeClassificationFailed
}

// Classifier maps refs to environments.
// A Classifier is immutable and safe for concurrent use.
type Classifier struct {
	release       *regexp.Regexp
	defaultBranch string
}

// Option configures a Classifier.
type Option func(*Classifier) error

// WithReleasePattern sets the regular expression release tags must match.
func WithReleasePattern(pattern string) Option {
	return func(c *Classifier) error {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return errors.Wrap(err, errors.CodeInvalidConfig, "invalid release tag pattern")
		}
		c.release = re
		return nil
	}
}

// WithDefaultBranch sets the branch classified as latest.
func WithDefaultBranch(branch string) Option {
	return func(c *Classifier) error {
		branch = strings.TrimPrefix(branch, refsHeads)
		if branch == "" {
			return errors.New(errors.CodeInvalidConfig, "default branch cannot be empty")
		}
		c.defaultBranch = branch
		return nil
	}
}

// NewClassifier returns a Classifier using the default release pattern and
// default branch unless overridden.
func NewClassifier(opts ...Option) (*Classifier, error) {
	c := &Classifier{
		release:       regexp.MustCompile(DefaultReleasePattern),
		defaultBranch: DefaultBranch,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Classify returns the environment for ref. Rules are evaluated in order:
//
//  1. refs/pull/<n>/... is review.
//  2. a tag matching the release pattern is stable. Bare names are tried as tags.
//  3. any other refs/tags/ ref is review.
//  4. the default branch, qualified or bare, is latest.
//  5. any other branch is review.
//
// Malformed refs return a *ClassificationError.
func (c *Classifier) Classify(ref string) (Classification, error) {
	if reason := invalidRef(ref); reason != "" {
		return Classification{}, &ClassificationError{Ref: ref, Reason: reason}
	}

	switch {
	case strings.HasPrefix(ref, refsPull):
		num, _, _ := strings.Cut(strings.TrimPrefix(ref, refsPull), "/")
		if !pullPattern.MatchString(num) {
			return Classification{}, &ClassificationError{Ref: ref, Reason: "pull request ref without a number"}
		}
		return Classification{Environment: domain.EnvironmentReview, Kind: KindPull, Name: num}, nil

	case strings.HasPrefix(ref, refsTags):
		name := strings.TrimPrefix(ref, refsTags)
		if c.release.MatchString(name) {
			return Classification{Environment: domain.EnvironmentStable, Kind: KindTag, Name: name}, nil
		}
		return Classification{Environment: domain.EnvironmentReview, Kind: KindTag, Name: name}, nil
	}

	name := strings.TrimPrefix(ref, refsHeads)
	if name == ref && c.release.MatchString(name) {
		return Classification{Environment: domain.EnvironmentStable, Kind: KindTag, Name: name}, nil
	}
	if name == c.defaultBranch {
		return Classification{Environment: domain.EnvironmentLatest, Kind: KindBranch, Name: name}, nil
	}

	return Classification{
		Environment: domain.EnvironmentReview,
		Kind:        KindBranch,
		Name:        name,
		Issue:       IssueNumber(name),
	}, nil
}

// IssueNumber returns n for branch names of the form "<n>-description".
func IssueNumber(branch string) int {
	m := issuePattern.FindStringSubmatch(branch)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

// invalidRef returns a reason when ref is not a well formed ref name.
func invalidRef(ref string) string {
	switch {
	case ref == "":
		return "empty ref"
	case strings.HasPrefix(ref, "-"):
		return "leading '-'"
	case strings.HasSuffix(ref, "/"):
		return "trailing '/'"
	case strings.HasSuffix(ref, ".lock"):
		return "trailing '.lock'"
	case strings.Contains(ref, ".."):
		return "contains '..'"
	case strings.Contains(ref, "//"):
		return "contains '//'"
	case strings.Contains(ref, "@{"):
		return "contains '@{'"
	case ref == refsHeads || ref == refsTags || ref == refsPull:
		return "missing name"
	}
	for _, r := range ref {
		if unicode.IsSpace(r) || unicode.IsControl(r) || strings.ContainsRune("~^:?*[\\", r) {
			return fmt.Sprintf("invalid character %q", r)
		}
	}
	return ""
}

// Slug converts a branch or tag name into a lower-case identifier made of
// [a-z0-9-], at most 40 characters long. It is used in pre-release versions,
// image tags and host names.
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	s := strings.TrimRight(b.String(), "-")
	if len(s) > maxSlug {
		s = strings.TrimRight(s[:maxSlug], "-")
	}
	return s
}
