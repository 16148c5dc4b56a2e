package git

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fsb "github.com/bcit-ltc/forge-pipeline/fs/billy"
	"github.com/bcit-ltc/forge-pipeline/git/gittest"
)

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    *Options
		wantErr bool
	}{
		{name: "nil options", opts: nil, wantErr: true},
		{name: "missing filesystem", opts: &Options{}, wantErr: true},
		{name: "negative cache", opts: &Options{FS: fsb.NewInMemoryFS(), StorerCacheSize: -1}, wantErr: true},
		{name: "negative depth", opts: &Options{FS: fsb.NewInMemoryFS(), ShallowDepth: -1}, wantErr: true},
		{name: "valid", opts: &Options{FS: fsb.NewInMemoryFS()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRef)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestInitOpen(t *testing.T) {
	tr := setupTestRepo(t)
	hash := tr.commitFile(t, "README.md", "hello", "docs: add readme")

	reopened, err := Open(context.Background(), &Options{FS: tr.fs})
	require.NoError(t, err)

	head, err := reopened.Head(context.Background())
	require.NoError(t, err)
	assert.Equal(t, hash, head)
}

func TestOpenMissingRepository(t *testing.T) {
	_, err := Open(context.Background(), &Options{FS: fsb.NewInMemoryFS()})
	require.Error(t, err)
}

func TestClone(t *testing.T) {
	remote := gittest.NewRemote(t)
	want := remote.Commit(t, "chore: init", map[string]string{"charts/app/Chart.yaml": "name: app\n"})

	tr := cloneTestRepo(t, remote.URL, gittest.DefaultBranch)

	head, err := tr.repo.Head(tr.ctx)
	require.NoError(t, err)
	assert.Equal(t, want, head)

	data, err := tr.fs.ReadFile("charts/app/Chart.yaml")
	require.NoError(t, err)
	assert.Equal(t, "name: app\n", string(data))
}

func TestCloneErrors(t *testing.T) {
	_, err := Clone(context.Background(), "", &Options{FS: fsb.NewInMemoryFS()})
	require.ErrorIs(t, err, ErrInvalidRef)

	_, err = Clone(context.Background(), gittest.Scheme+"://origin/missing", &Options{FS: fsb.NewInMemoryFS()})
	require.Error(t, err)
}

func TestCommitRequiresChanges(t *testing.T) {
	tr := setupTestRepo(t)
	tr.commitFile(t, "a.txt", "a", "feat: a")

	_, err := tr.repo.Commit(tr.ctx, "chore: nothing", testSignature, CommitOpts{})
	require.ErrorIs(t, err, ErrEmptyCommit)

	_, err = tr.repo.Commit(tr.ctx, "chore: nothing", testSignature, CommitOpts{AllowEmpty: true})
	require.NoError(t, err)

	_, err = tr.repo.Commit(tr.ctx, "", testSignature, CommitOpts{AllowEmpty: true})
	require.ErrorIs(t, err, ErrInvalidRef)

	_, err = tr.repo.Commit(tr.ctx, "msg", Signature{}, CommitOpts{AllowEmpty: true})
	require.ErrorIs(t, err, ErrInvalidRef)
}

func TestAddGlobAndMissing(t *testing.T) {
	tr := setupTestRepo(t)
	require.NoError(t, tr.fs.WriteFile("one.yaml", []byte("1"), 0o644))
	require.NoError(t, tr.fs.WriteFile("two.yaml", []byte("2"), 0o644))

	require.NoError(t, tr.repo.Add(tr.ctx, "*.yaml", "missing.txt", ""))

	hash, err := tr.repo.Commit(tr.ctx, "feat: values", testSignature, CommitOpts{})
	require.NoError(t, err)
	assert.Len(t, hash, 40)
}
