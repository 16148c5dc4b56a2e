package git

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// remoteAuth resolves the auth method for the first URL of remote.
//
//nolint:ireturn // go-git consumes transport.AuthMethod
func (r *Repo) remoteAuth(remote string) (transport.AuthMethod, error) {
	if r.options.Auth == nil {
		return nil, nil
	}
	rem, err := r.repo.Remote(remote)
	if err != nil {
		return nil, WrapErrorf(ErrResolveFailed, "remote %q not found", remote)
	}
	urls := rem.Config().URLs
	if len(urls) == 0 {
		return nil, WrapErrorf(ErrResolveFailed, "remote %q has no URL", remote)
	}
	return authFor(r.options.Auth, urls[0])
}

// Fetch fetches changes from the specified remote.
// It supports pruning stale remote branches and shallow fetching when depth > 0.
// Returns ErrAlreadyUpToDate if there are no changes to fetch.
//
// Context timeout/cancellation is honored during the fetch operation.
func (r *Repo) Fetch(ctx context.Context, remote string, prune bool, depth int, refSpecs ...string) error {
	if remote == "" {
		remote = DefaultRemoteName
	}

	authMethod, err := r.remoteAuth(remote)
	if err != nil {
		return err
	}

	fetchOpts := &git.FetchOptions{
		RemoteName: remote,
		Prune:      prune,
		Depth:      depth,
		Auth:       authMethod,
		Tags:       git.NoTags,
	}
	for _, spec := range refSpecs {
		fetchOpts.RefSpecs = append(fetchOpts.RefSpecs, config.RefSpec(spec))
	}

	err = r.repo.FetchContext(ctx, fetchOpts)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, git.NoErrAlreadyUpToDate):
		return ErrAlreadyUpToDate
	case errors.Is(err, git.ErrRemoteNotFound):
		return WrapError(ErrResolveFailed, "remote not found")
	default:
		return WrapError(mapTransportError(err), "failed to fetch from remote")
	}
}

// Push pushes branch to the specified remote. An empty branch pushes every
// local branch.
// Returns ErrNotFastForward if the push would overwrite remote changes and force is false.
// Returns ErrAlreadyUpToDate if there are no changes to push.
//
// Context timeout/cancellation is honored during the push operation.
func (r *Repo) Push(ctx context.Context, remote, branch string, force bool) error {
	var specs []config.RefSpec
	if branch != "" {
		specs = append(specs, refSpec(plumbing.NewBranchReferenceName(branch)))
	}
	return r.push(ctx, remote, force, specs)
}

// PushTag pushes the tag name to the specified remote.
// Returns ErrAlreadyUpToDate if the remote already has the tag at the same object.
func (r *Repo) PushTag(ctx context.Context, remote, name string) error {
	if name == "" {
		return WrapError(ErrInvalidRef, "tag name cannot be empty")
	}
	if _, err := r.repo.Tag(name); err != nil {
		return WrapErrorf(ErrTagMissing, "tag %q", name)
	}
	return r.push(ctx, remote, false, []config.RefSpec{refSpec(plumbing.NewTagReferenceName(name))})
}

func refSpec(ref plumbing.ReferenceName) config.RefSpec {
	return config.RefSpec(fmt.Sprintf("%s:%s", ref, ref))
}

func (r *Repo) push(ctx context.Context, remote string, force bool, specs []config.RefSpec) error {
	if remote == "" {
		remote = DefaultRemoteName
	}

	authMethod, err := r.remoteAuth(remote)
	if err != nil {
		return err
	}

	err = r.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: remote,
		RefSpecs:   specs,
		Force:      force,
		Auth:       authMethod,
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, git.NoErrAlreadyUpToDate):
		return ErrAlreadyUpToDate
	case errors.Is(err, git.ErrRemoteNotFound):
		return WrapError(ErrResolveFailed, "remote not found")
	case isNonFastForward(err):
		return WrapError(ErrNotFastForward, err.Error())
	default:
		return WrapError(mapTransportError(err), "failed to push to remote")
	}
}

// isNonFastForward reports whether a push was rejected because the remote
// branch moved. go-git reports this case without a wrapped sentinel.
func isNonFastForward(err error) bool {
	if errors.Is(err, git.ErrNonFastForwardUpdate) || errors.Is(err, git.ErrForceNeeded) {
		return true
	}
	return strings.Contains(err.Error(), "non-fast-forward")
}

// ResetToRemote fetches branch from remote and hard resets the worktree and
// the current branch to the fetched commit, discarding local commits.
//
// Context timeout/cancellation is honored during the fetch.
func (r *Repo) ResetToRemote(ctx context.Context, remote, branch string) error {
	if branch == "" {
		return WrapError(ErrInvalidRef, "branch cannot be empty")
	}
	if remote == "" {
		remote = DefaultRemoteName
	}

	remoteRef := plumbing.NewRemoteReferenceName(remote, branch)
	spec := fmt.Sprintf("+%s:%s", plumbing.NewBranchReferenceName(branch), remoteRef)
	if err := r.Fetch(ctx, remote, false, r.options.ShallowDepth, spec); err != nil && !errors.Is(err, ErrAlreadyUpToDate) {
		return err
	}

	ref, err := r.repo.Reference(remoteRef, true)
	if err != nil {
		return WrapErrorf(ErrResolveFailed, "remote branch %s not found", remoteRef.Short())
	}

	if err := r.worktree.Reset(&git.ResetOptions{Commit: ref.Hash(), Mode: git.HardReset}); err != nil {
		return WrapError(err, "failed to reset worktree")
	}
	return nil
}
