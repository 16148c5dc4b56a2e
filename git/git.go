package git

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobilly "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/storage/filesystem"

	"github.com/bcit-ltc/forge-pipeline/fs"
	"github.com/bcit-ltc/forge-pipeline/git/internal/auth"
	"github.com/bcit-ltc/forge-pipeline/git/internal/fsbridge"
)

const (
	// DefaultStorerCacheSize is the number of objects kept in the LRU cache.
	DefaultStorerCacheSize = 1000

	// DefaultRemoteName is the remote used by Sync, Fetch and Push.
	DefaultRemoteName = "origin"
)

// Options locates a repository inside a filesystem.
type Options struct {
	// FS holds the worktree and the .git directory. Required.
	FS fs.Filesystem

	// Workdir is the worktree root within FS. Defaults to ".".
	Workdir string

	// Branch limits Clone to one branch and checks it out.
	Branch string

	StorerCacheSize int

	// Auth resolves credentials per remote URL. Nil means anonymous.
	Auth AuthProvider

	// ShallowDepth limits clone and fetch history. Zero fetches everything.
	ShallowDepth int
}

// Validate reports missing or negative fields as ErrInvalidRef.
func (o *Options) Validate() error {
	switch {
	case o == nil:
		return WrapError(ErrInvalidRef, "options are required")
	case o.FS == nil:
		return WrapError(ErrInvalidRef, "FS is required")
	case o.StorerCacheSize < 0:
		return WrapError(ErrInvalidRef, "StorerCacheSize cannot be negative")
	case o.ShallowDepth < 0:
		return WrapError(ErrInvalidRef, "ShallowDepth cannot be negative")
	}
	return nil
}

func (o Options) withDefaults() Options {
	if o.Workdir == "" {
		o.Workdir = "."
	}
	if o.StorerCacheSize == 0 {
		o.StorerCacheSize = DefaultStorerCacheSize
	}
	return o
}

// Repo is a non-bare repository backed by an fs.Filesystem.
type Repo struct {
	repo     *git.Repository
	worktree *git.Worktree
	// root is the billy view of Options.Workdir.
	root    gobilly.Filesystem
	options Options
}

// layout is the resolved on-filesystem shape of a repository before go-git
// opens it.
type layout struct {
	root    gobilly.Filesystem
	storage *filesystem.Storage
	options Options
}

func resolve(opts *Options) (*layout, error) {
	if err := opts.Validate(); err != nil {
		return nil, WrapError(err, "invalid options")
	}
	o := opts.withDefaults()

	billyFS, err := fsbridge.ToBillyFilesystem(o.FS)
	if err != nil {
		return nil, fmt.Errorf("filesystem conversion failed: %w", err)
	}
	root, err := billyFS.Chroot(o.Workdir)
	if err != nil {
		return nil, fmt.Errorf("failed to chroot to workdir %q: %w", o.Workdir, err)
	}
	dotGit, err := root.Chroot(git.GitDirName)
	if err != nil {
		return nil, fmt.Errorf("failed to access .git directory: %w", err)
	}
	return &layout{
		root:    root,
		storage: fsbridge.NewStorage(dotGit, o.StorerCacheSize),
		options: o,
	}, nil
}

func (l *layout) bind(repo *git.Repository, err error, action string) (*Repo, error) {
	if err != nil {
		return nil, WrapError(err, "failed to "+action+" repository")
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return nil, WrapError(err, "failed to get worktree")
	}
	return &Repo{repo: repo, worktree: worktree, root: l.root, options: l.options}, nil
}

// Init creates an empty repository.
func Init(_ context.Context, opts *Options) (*Repo, error) {
	l, err := resolve(opts)
	if err != nil {
		return nil, err
	}
	repo, err := git.Init(l.storage, l.root)
	return l.bind(repo, err, "initialize")
}

// Open opens the repository at opts.Workdir.
func Open(_ context.Context, opts *Options) (*Repo, error) {
	l, err := resolve(opts)
	if err != nil {
		return nil, err
	}
	repo, err := git.Open(l.storage, l.root)
	return l.bind(repo, err, "open")
}

// Clone clones remoteURL. With opts.Branch set only that branch is fetched
// and checked out.
func Clone(ctx context.Context, remoteURL string, opts *Options) (*Repo, error) {
	if remoteURL == "" {
		return nil, WrapError(ErrInvalidRef, "remote URL cannot be empty")
	}
	l, err := resolve(opts)
	if err != nil {
		return nil, err
	}

	co := &git.CloneOptions{
		URL:          remoteURL,
		Depth:        l.options.ShallowDepth,
		SingleBranch: l.options.ShallowDepth > 0 || l.options.Branch != "",
	}
	if l.options.Branch != "" {
		co.ReferenceName = plumbing.NewBranchReferenceName(l.options.Branch)
	}
	if co.Auth, err = authFor(l.options.Auth, remoteURL); err != nil {
		return nil, err
	}

	repo, err := git.CloneContext(ctx, l.storage, l.root, co)
	if err != nil {
		err = mapTransportError(err)
	}
	return l.bind(repo, err, "clone")
}

//nolint:ireturn // go-git option field type.
func authFor(p AuthProvider, remoteURL string) (transport.AuthMethod, error) {
	if p == nil {
		return nil, nil
	}
	m, err := p.Method(remoteURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthRequired, err)
	}
	return m, nil
}

func mapTransportError(err error) error {
	switch {
	case errors.Is(err, transport.ErrAuthenticationRequired):
		return fmt.Errorf("%w: %w", ErrAuthRequired, err)
	case errors.Is(err, transport.ErrAuthorizationFailed):
		return fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}
	return err
}

// AuthProvider resolves the auth method for a remote URL. A nil method means
// anonymous access.
type AuthProvider interface {
	Method(remoteURL string) (transport.AuthMethod, error)
}

// TokenAuth sends token as HTTPS basic auth to hosts, or to every host when
// none are listed.
//
//nolint:ireturn // callers only need the provider behaviour.
func TokenAuth(token string, hosts ...string) AuthProvider {
	return auth.NewTokenProvider(token).WithHosts(hosts...)
}

// Signature identifies the author of a commit or tag.
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

type CommitOpts struct {
	AllowEmpty bool
}

// Head returns the commit hash HEAD points to.
func (r *Repo) Head(_ context.Context) (string, error) {
	ref, err := r.repo.Head()
	if err != nil {
		return "", WrapError(ErrResolveFailed, "failed to resolve HEAD")
	}
	return ref.Hash().String(), nil
}
