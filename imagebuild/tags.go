package imagebuild

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bcit-ltc/forge-pipeline/domain"
	"github.com/bcit-ltc/forge-pipeline/environment"
	"github.com/bcit-ltc/forge-pipeline/errors"
)

const maxTagLength = 128

var (
	placeholderPattern = regexp.MustCompile(`\{([^{}]*)\}`)
	invalidTagChars    = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)
)

// Placeholders lists the names usable in tag formats.
var Placeholders = []string{"env", "version", "date", "timestamp", "commit_hash", "branch", "issue"}

// TagRules maps each environment to the tag formats rendered for it.
// The first format yields the primary tag.
type TagRules map[domain.Environment][]string

// DefaultTagRules returns the standard tagging scheme.
func DefaultTagRules() TagRules {
	return TagRules{
		domain.EnvironmentStable: {"{version}", "stable", "latest"},
		domain.EnvironmentLatest: {"{version}-{commit_hash}.{date}.{timestamp}", "latest"},
		domain.EnvironmentReview: {"review-{branch}-{commit_hash}.{date}.{timestamp}"},
	}
}

// Validate checks that every environment has at least one format and that
// formats only use known placeholders.
func (r TagRules) Validate() error {
	for _, env := range domain.Environments {
		formats, ok := r[env]
		if !ok || len(formats) == 0 {
			return errors.Newf(errors.CodeInvalidConfig, "no image tag formats for environment %s", env)
		}
		for _, f := range formats {
			if err := ValidateFormat(f); err != nil {
				return err
			}
		}
	}
	return nil
}

// ValidateFormat reports unknown placeholders in format.
func ValidateFormat(format string) error {
	if strings.TrimSpace(format) == "" {
		return errors.New(errors.CodeInvalidConfig, "empty image tag format")
	}
	for _, m := range placeholderPattern.FindAllStringSubmatch(format, -1) {
		if !known(m[1]) {
			return errors.Newf(errors.CodeInvalidConfig, "unknown placeholder {%s} in image tag format %q", m[1], format)
		}
	}
	return nil
}

func known(name string) bool {
	for _, p := range Placeholders {
		if p == name {
			return true
		}
	}
	return false
}

// TagData holds the values substituted into tag formats.
type TagData struct {
	Environment domain.Environment
	Version     string
	Commit      string
	Branch      string
	Issue       int
	Time        time.Time
}

func (d TagData) values() map[string]string {
	commit := d.Commit
	if len(commit) > 7 {
		commit = commit[:7]
	}
	issue := environment.Slug(d.Branch)
	if d.Issue > 0 {
		issue = strconv.Itoa(d.Issue)
	}
	t := d.Time.UTC()
	return map[string]string{
		"env":         d.Environment.String(),
		"version":     d.Version,
		"date":        t.Format("20060102"),
		"timestamp":   strconv.FormatInt(t.Unix(), 10),
		"commit_hash": commit,
		"branch":      environment.Slug(d.Branch),
		"issue":       issue,
	}
}

// RenderTags renders the formats configured for d.Environment. Results are
// sanitised to the OCI tag grammar and de-duplicated in order.
func (r TagRules) RenderTags(d TagData) ([]string, error) {
	formats := r[d.Environment]
	if len(formats) == 0 {
		return nil, errors.Newf(errors.CodeInvalidConfig, "no image tag formats for environment %s", d.Environment)
	}

	values := d.values()
	seen := make(map[string]struct{}, len(formats))
	tags := make([]string, 0, len(formats))
	for _, f := range formats {
		tag, err := render(f, values)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return tags, nil
}

func render(format string, values map[string]string) (string, error) {
	var unknown string
	out := placeholderPattern.ReplaceAllStringFunc(format, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := values[name]
		if !ok && unknown == "" {
			unknown = name
		}
		return v
	})
	if unknown != "" {
		return "", errors.Newf(errors.CodeInvalidConfig, "unknown placeholder {%s} in image tag format %q", unknown, format)
	}

	tag := SanitizeTag(out)
	if tag == "" {
		return "", errors.Newf(errors.CodeInvalidConfig, "image tag format %q rendered an empty tag", format)
	}
	return tag, nil
}

// SanitizeTag maps s onto the tag grammar [A-Za-z0-9_][A-Za-z0-9_.-]{0,127}.
// Invalid runs become a single '-'.
func SanitizeTag(s string) string {
	s = invalidTagChars.ReplaceAllString(s, "-")
	s = strings.TrimLeft(s, ".-")
	if len(s) > maxTagLength {
		s = s[:maxTagLength]
	}
	return s
}
