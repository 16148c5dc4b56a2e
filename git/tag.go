package git

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// TagFilter is a predicate function for filtering tags.
// It returns true if the tag should be included in the results.
type TagFilter func(name string, ref *plumbing.Reference) bool

// TagPrefixFilter keeps tags starting with prefix.
func TagPrefixFilter(prefix string) TagFilter {
	return func(name string, _ *plumbing.Reference) bool {
		return strings.HasPrefix(name, prefix)
	}
}

// Tags returns the sorted names of tags that pass every filter.
//
// Context timeout/cancellation is honored during the operation.
func (r *Repo) Tags(ctx context.Context, filters ...TagFilter) ([]string, error) {
	refs, err := r.repo.Tags()
	if err != nil {
		return nil, WrapError(err, "failed to list tags")
	}
	defer refs.Close()

	var tags []string
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := ref.Name().Short()
		for _, filter := range filters {
			if filter != nil && !filter(name, ref) {
				return nil
			}
		}
		tags = append(tags, name)
		return nil
	})
	if err != nil {
		return nil, WrapError(err, "failed to iterate tags")
	}

	sort.Strings(tags)
	return tags, nil
}

// TagCommit returns the commit hash a tag points to, peeling annotated tags.
func (r *Repo) TagCommit(ctx context.Context, name string) (string, error) {
	ref, err := r.repo.Tag(name)
	if err != nil {
		return "", WrapErrorf(ErrTagMissing, "tag %q", name)
	}

	tagObj, err := r.repo.TagObject(ref.Hash())
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return ref.Hash().String(), nil
	}
	if err != nil {
		return "", WrapErrorf(err, "failed to read tag %q", name)
	}

	commit, err := tagObj.Commit()
	if err != nil {
		return "", WrapErrorf(err, "tag %q does not point to a commit", name)
	}
	return commit.Hash.String(), nil
}

// CreateTag creates a tag at target. A non-empty message produces an annotated
// tag signed by who; otherwise a lightweight tag is created.
func (r *Repo) CreateTag(ctx context.Context, name, target, message string, who Signature) error {
	if name == "" {
		return WrapError(ErrInvalidRef, "tag name cannot be empty")
	}
	if target == "" {
		return WrapError(ErrInvalidRef, "target revision cannot be empty")
	}

	hash, err := r.repo.ResolveRevision(plumbing.Revision(target))
	if err != nil {
		return WrapErrorf(ErrResolveFailed, "failed to resolve %q", target)
	}

	if _, err := r.repo.Tag(name); err == nil {
		return WrapErrorf(ErrTagExists, "tag %q", name)
	}

	var opts *git.CreateTagOptions
	if message != "" {
		when := who.When
		if when.IsZero() {
			when = time.Now()
		}
		opts = &git.CreateTagOptions{
			Tagger:  &object.Signature{Name: who.Name, Email: who.Email, When: when},
			Message: message,
		}
	}

	if _, err := r.repo.CreateTag(name, *hash, opts); err != nil {
		return WrapErrorf(err, "failed to create tag %q", name)
	}
	return nil
}
