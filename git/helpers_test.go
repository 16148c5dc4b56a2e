package git

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bcit-ltc/forge-pipeline/fs"
	fsb "github.com/bcit-ltc/forge-pipeline/fs/billy"
)

var testSignature = Signature{Name: "Forge Bot", Email: "bot@example.com", When: time.Unix(1700000000, 0)}

// testRepo bundles a repository with its filesystem.
type testRepo struct {
	repo *Repo
	fs   fs.Filesystem
	ctx  context.Context
}

func setupTestRepo(t *testing.T) *testRepo {
	t.Helper()

	ctx := context.Background()
	memFS := fsb.NewInMemoryFS()

	repo, err := Init(ctx, &Options{FS: memFS})
	require.NoError(t, err)

	return &testRepo{repo: repo, fs: memFS, ctx: ctx}
}

// commitFile writes content to name, stages it and commits with msg.
func (tr *testRepo) commitFile(t *testing.T, name, content, msg string) string {
	t.Helper()

	require.NoError(t, tr.fs.WriteFile(name, []byte(content), 0o644))
	require.NoError(t, tr.repo.Add(tr.ctx, name))
	hash, err := tr.repo.Commit(tr.ctx, msg, testSignature, CommitOpts{})
	require.NoError(t, err)
	return hash
}

func cloneTestRepo(t *testing.T, url, branch string) *testRepo {
	t.Helper()

	ctx := context.Background()
	memFS := fsb.NewInMemoryFS()

	repo, err := Clone(ctx, url, &Options{FS: memFS, Branch: branch})
	require.NoError(t, err)

	return &testRepo{repo: repo, fs: memFS, ctx: ctx}
}
