package git

import (
	"context"
	"errors"
	"strings"

	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Add stages paths. Glob patterns are expanded against the worktree; plain
// paths that do not exist are skipped.
func (r *Repo) Add(_ context.Context, paths ...string) error {
	for _, p := range paths {
		matches, err := r.expand(p)
		if err != nil {
			return err
		}
		for _, m := range matches {
			if _, err := r.worktree.Add(m); err != nil {
				return WrapErrorf(err, "failed to add path %q", m)
			}
		}
	}
	return nil
}

func (r *Repo) expand(p string) ([]string, error) {
	switch {
	case p == "":
		return nil, nil
	case strings.ContainsAny(p, "*?["):
		matches, err := util.Glob(r.root, p)
		if err != nil {
			return nil, WrapErrorf(err, "invalid glob pattern %q", p)
		}
		return matches, nil
	}
	if _, err := r.root.Stat(p); err != nil {
		return nil, nil
	}
	return []string{p}, nil
}

// Commit records staged changes as who and returns the new hash. Without
// staged changes it returns ErrEmptyCommit unless opts.AllowEmpty is set.
func (r *Repo) Commit(_ context.Context, msg string, who Signature, opts CommitOpts) (string, error) {
	switch {
	case msg == "":
		return "", WrapError(ErrInvalidRef, "commit message cannot be empty")
	case who.Name == "" || who.Email == "":
		return "", WrapError(ErrInvalidRef, "committer name and email are required")
	}

	if !opts.AllowEmpty {
		dirty, err := r.staged()
		if err != nil {
			return "", err
		}
		if !dirty {
			return "", ErrEmptyCommit
		}
	}

	sig := &object.Signature{Name: who.Name, Email: who.Email, When: who.When}
	hash, err := r.worktree.Commit(msg, &git.CommitOptions{
		Author:            sig,
		Committer:         sig,
		AllowEmptyCommits: opts.AllowEmpty,
	})
	switch {
	case errors.Is(err, git.ErrEmptyCommit):
		return "", ErrEmptyCommit
	case err != nil:
		return "", WrapError(err, "failed to create commit")
	}
	return hash.String(), nil
}

func (r *Repo) staged() (bool, error) {
	status, err := r.worktree.Status()
	if err != nil {
		return false, WrapError(err, "failed to get worktree status")
	}
	for _, st := range status {
		if st.Staging != git.Untracked && st.Staging != git.Unmodified {
			return true, nil
		}
	}
	return false, nil
}
