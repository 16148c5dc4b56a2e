package chart

import (
	"context"
	"errors"
	"log/slog"

	"github.com/bcit-ltc/forge-pipeline/fs"
	fsb "github.com/bcit-ltc/forge-pipeline/fs/billy"
	"github.com/bcit-ltc/forge-pipeline/git"
)

// Store checks out chart repositories.
type Store interface {
	Checkout(ctx context.Context, repoURL, branch string) (Workspace, error)
}

// Workspace is a private checkout of one branch of a chart repository.
type Workspace interface {
	// FS is the worktree root.
	FS() fs.Filesystem

	// Commit stages paths and commits them. It returns ok=false when
	// nothing changed.
	Commit(ctx context.Context, msg string, who git.Signature, paths ...string) (hash string, ok bool, err error)

	// Push publishes the branch. A concurrent remote write yields an error
	// matching git.ErrNotFastForward.
	Push(ctx context.Context) error

	// Reset discards local commits and moves to the remote branch tip.
	Reset(ctx context.Context) error

	// Head returns the current commit hash.
	Head(ctx context.Context) (string, error)
}

// GitStore clones chart repositories into in-memory filesystems.
type GitStore struct {
	auth   git.AuthProvider
	logger *slog.Logger
}

// GitStoreOption configures a GitStore.
type GitStoreOption func(*GitStore)

// WithAuth sets the provider used for clone, fetch and push.
func WithAuth(a git.AuthProvider) GitStoreOption {
	return func(s *GitStore) {
		s.auth = a
	}
}

// WithStoreLogger sets the store logger.
func WithStoreLogger(l *slog.Logger) GitStoreOption {
	return func(s *GitStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewGitStore creates a GitStore.
func NewGitStore(opts ...GitStoreOption) *GitStore {
	s := &GitStore{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Checkout clones branch of repoURL into a fresh in-memory filesystem.
//
//nolint:ireturn // callers depend on the Workspace behaviour only.
func (s *GitStore) Checkout(ctx context.Context, repoURL, branch string) (Workspace, error) {
	memFS := fsb.NewInMemoryFS()
	repo, err := git.Clone(ctx, repoURL, &git.Options{
		FS:     memFS,
		Branch: branch,
		Auth:   s.auth,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("cloned chart repository", "url", repoURL, "branch", branch)
	return &gitWorkspace{repo: repo, fs: memFS, branch: branch}, nil
}

type gitWorkspace struct {
	repo   *git.Repo
	fs     fs.Filesystem
	branch string
}

func (w *gitWorkspace) FS() fs.Filesystem { return w.fs }

func (w *gitWorkspace) Commit(ctx context.Context, msg string, who git.Signature, paths ...string) (string, bool, error) {
	if err := w.repo.Add(ctx, paths...); err != nil {
		return "", false, err
	}
	hash, err := w.repo.Commit(ctx, msg, who, git.CommitOpts{})
	if errors.Is(err, git.ErrEmptyCommit) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return hash, true, nil
}

func (w *gitWorkspace) Push(ctx context.Context) error {
	err := w.repo.Push(ctx, "", w.branch, false)
	if errors.Is(err, git.ErrAlreadyUpToDate) {
		return nil
	}
	return err
}

func (w *gitWorkspace) Reset(ctx context.Context) error {
	return w.repo.ResetToRemote(ctx, "", w.branch)
}

func (w *gitWorkspace) Head(ctx context.Context) (string, error) {
	return w.repo.Head(ctx)
}
