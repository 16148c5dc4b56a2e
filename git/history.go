package git

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Commit is a summary of a single commit.
type Commit struct {
	Hash    string
	Message string
	Author  string
	When    time.Time
}

func toCommit(c *object.Commit) Commit {
	return Commit{
		Hash:    c.Hash.String(),
		Message: c.Message,
		Author:  c.Author.Name,
		When:    c.Author.When,
	}
}

// CommitsSince returns the commits reachable from HEAD but not from base,
// newest first. An empty base returns the full history.
//
// Context timeout/cancellation is checked between commits.
func (r *Repo) CommitsSince(ctx context.Context, base string) ([]Commit, error) {
	head, err := r.repo.Head()
	if err != nil {
		return nil, WrapError(ErrResolveFailed, "failed to resolve HEAD")
	}

	seen := map[plumbing.Hash]struct{}{}
	if base != "" {
		baseHash, rErr := r.repo.ResolveRevision(plumbing.Revision(base))
		if rErr != nil {
			return nil, WrapErrorf(ErrResolveFailed, "failed to resolve %q", base)
		}
		baseCommit, cErr := r.repo.CommitObject(*baseHash)
		if cErr != nil {
			return nil, WrapErrorf(cErr, "failed to load commit %s", baseHash)
		}
		walker := object.NewCommitPreorderIter(baseCommit, nil, nil)
		err = walker.ForEach(func(c *object.Commit) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			seen[c.Hash] = struct{}{}
			return nil
		})
		if err != nil {
			return nil, WrapError(err, "failed to walk base history")
		}
	}

	iter, err := r.repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, WrapError(err, "failed to read history")
	}
	defer iter.Close()

	var commits []Commit
	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c, nErr := iter.Next()
		if errors.Is(nErr, io.EOF) {
			break
		}
		if nErr != nil {
			return nil, WrapError(nErr, "failed to read history")
		}
		if _, ok := seen[c.Hash]; ok {
			continue
		}
		commits = append(commits, toCommit(c))
	}

	return commits, nil
}
