// Package gittest provides in-memory git remotes for tests. Remotes are served
// over the "inmem" transport so clone, fetch and push go through go-git's
// regular protocol code.
package gittest

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/client"
	"github.com/go-git/go-git/v5/plumbing/transport/server"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/stretchr/testify/require"
)

// Scheme is the URL scheme remotes are served under.
const Scheme = "inmem"

// DefaultBranch is the branch remotes are initialised with.
const DefaultBranch = "main"

var (
	installOnce sync.Once
	registry    = &loader{repos: map[string]storer.Storer{}}
	counter     atomic.Int64
)

type loader struct {
	mu    sync.Mutex
	repos map[string]storer.Storer
}

//nolint:ireturn // server.Loader contract
func (l *loader) Load(ep *transport.Endpoint) (storer.Storer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.repos[ep.String()]
	if !ok {
		return nil, transport.ErrRepositoryNotFound
	}
	return s, nil
}

func (l *loader) add(url string, s storer.Storer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.repos[url] = s
}

// Remote is an in-memory repository reachable at URL.
type Remote struct {
	URL  string
	repo *git.Repository
}

// NewRemote creates an empty remote whose HEAD points at DefaultBranch.
func NewRemote(t testing.TB) *Remote {
	t.Helper()

	installOnce.Do(func() {
		client.InstallProtocol(Scheme, server.NewClient(registry))
	})

	storage := memory.NewStorage()
	repo, err := git.Init(storage, memfs.New())
	require.NoError(t, err)
	require.NoError(t, storage.SetReference(
		plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(DefaultBranch)),
	))

	url := fmt.Sprintf("%s://origin/repo-%d", Scheme, counter.Add(1))
	registry.add(url, storage)

	return &Remote{URL: url, repo: repo}
}

// Commit writes files into the remote worktree, commits them on the current
// branch and returns the commit hash.
func (r *Remote) Commit(t testing.TB, msg string, files map[string]string) string {
	t.Helper()

	wt, err := r.repo.Worktree()
	require.NoError(t, err)

	// Pushes move the branch without touching the worktree.
	if head, hErr := r.repo.Head(); hErr == nil {
		require.NoError(t, wt.Reset(&git.ResetOptions{Commit: head.Hash(), Mode: git.HardReset}))
	}

	for name, content := range files {
		f, err := wt.Filesystem.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
		require.NoError(t, f.Close())
		_, err = wt.Add(name)
		require.NoError(t, err)
	}

	sig := &object.Signature{Name: "Test", Email: "test@example.com", When: time.Now()}
	hash, err := wt.Commit(msg, &git.CommitOptions{Author: sig, Committer: sig, AllowEmptyCommits: true})
	require.NoError(t, err)
	return hash.String()
}

// Tag creates a lightweight tag at hash.
func (r *Remote) Tag(t testing.TB, name, hash string) {
	t.Helper()
	ref := plumbing.NewHashReference(plumbing.NewTagReferenceName(name), plumbing.NewHash(hash))
	require.NoError(t, r.repo.Storer.SetReference(ref))
}

// Head returns the commit DefaultBranch points to.
func (r *Remote) Head(t testing.TB) string {
	t.Helper()
	ref, err := r.repo.Reference(plumbing.NewBranchReferenceName(DefaultBranch), true)
	require.NoError(t, err)
	return ref.Hash().String()
}

// ReadFile returns name as committed at the tip of DefaultBranch.
func (r *Remote) ReadFile(t testing.TB, name string) string {
	t.Helper()
	commit, err := r.repo.CommitObject(plumbing.NewHash(r.Head(t)))
	require.NoError(t, err)
	f, err := commit.File(name)
	require.NoError(t, err)
	content, err := f.Contents()
	require.NoError(t, err)
	return content
}

// Message returns the message of the commit at the tip of DefaultBranch.
func (r *Remote) Message(t testing.TB) string {
	t.Helper()
	commit, err := r.repo.CommitObject(plumbing.NewHash(r.Head(t)))
	require.NoError(t, err)
	return commit.Message
}

// TagCommit returns the commit tag name points to, peeling annotated tags.
// It returns "" when the remote has no such tag.
func (r *Remote) TagCommit(t testing.TB, name string) string {
	t.Helper()
	ref, err := r.repo.Tag(name)
	if err != nil {
		return ""
	}
	if tag, tErr := r.repo.TagObject(ref.Hash()); tErr == nil {
		commit, cErr := tag.Commit()
		require.NoError(t, cErr)
		return commit.Hash.String()
	}
	return ref.Hash().String()
}
