package git

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcit-ltc/forge-pipeline/git/gittest"
)

func TestPush(t *testing.T) {
	remote := gittest.NewRemote(t)
	remote.Commit(t, "chore: init", map[string]string{"values.yaml": "image:\n  tag: old\n"})

	tr := cloneTestRepo(t, remote.URL, gittest.DefaultBranch)
	hash := tr.commitFile(t, "values.yaml", "image:\n  tag: new\n", "Update app to version 1.0.1")

	require.NoError(t, tr.repo.Push(tr.ctx, "", gittest.DefaultBranch, false))
	assert.Equal(t, hash, remote.Head(t))
	assert.Equal(t, "image:\n  tag: new\n", remote.ReadFile(t, "values.yaml"))

	err := tr.repo.Push(tr.ctx, "", gittest.DefaultBranch, false)
	require.ErrorIs(t, err, ErrAlreadyUpToDate)
}

func TestPushRejectedWhenRemoteMoved(t *testing.T) {
	remote := gittest.NewRemote(t)
	remote.Commit(t, "chore: init", map[string]string{"values.yaml": "a: 1\n"})

	tr := cloneTestRepo(t, remote.URL, gittest.DefaultBranch)
	moved := remote.Commit(t, "chore: concurrent", map[string]string{"other.yaml": "b: 2\n"})
	tr.commitFile(t, "values.yaml", "a: 2\n", "chore: local")

	err := tr.repo.Push(tr.ctx, "", gittest.DefaultBranch, false)
	require.ErrorIs(t, err, ErrNotFastForward)
	assert.Equal(t, moved, remote.Head(t))

	require.NoError(t, tr.repo.ResetToRemote(tr.ctx, "", gittest.DefaultBranch))
	head, err := tr.repo.Head(tr.ctx)
	require.NoError(t, err)
	assert.Equal(t, moved, head)

	data, err := tr.fs.ReadFile("values.yaml")
	require.NoError(t, err)
	assert.Equal(t, "a: 1\n", string(data))

	hash := tr.commitFile(t, "values.yaml", "a: 2\n", "chore: local again")
	require.NoError(t, tr.repo.Push(tr.ctx, "", gittest.DefaultBranch, false))
	assert.Equal(t, hash, remote.Head(t))
	assert.Equal(t, "b: 2\n", remote.ReadFile(t, "other.yaml"))
}

func TestFetchUpToDate(t *testing.T) {
	remote := gittest.NewRemote(t)
	remote.Commit(t, "chore: init", map[string]string{"a": "a"})

	tr := cloneTestRepo(t, remote.URL, gittest.DefaultBranch)
	err := tr.repo.Fetch(tr.ctx, "", false, 0)
	require.ErrorIs(t, err, ErrAlreadyUpToDate)

	err = tr.repo.Fetch(tr.ctx, "upstream", false, 0)
	require.Error(t, err)
}

func TestResetToRemoteArguments(t *testing.T) {
	tr := setupTestRepo(t)
	require.ErrorIs(t, tr.repo.ResetToRemote(tr.ctx, "", ""), ErrInvalidRef)
}

func TestPushTag(t *testing.T) {
	remote := gittest.NewRemote(t)
	remote.Commit(t, "chore: init", map[string]string{"a": "a"})

	tr := cloneTestRepo(t, remote.URL, gittest.DefaultBranch)
	hash := tr.commitFile(t, "b", "b", "fix: b")
	require.NoError(t, tr.repo.CreateTag(tr.ctx, "v1.0.1", hash, "Release 1.0.1", testSignature))

	require.NoError(t, tr.repo.PushTag(tr.ctx, "", "v1.0.1"))
	assert.Equal(t, hash, remote.TagCommit(t, "v1.0.1"))

	err := tr.repo.PushTag(tr.ctx, "", "v1.0.1")
	require.ErrorIs(t, err, ErrAlreadyUpToDate)

	require.ErrorIs(t, tr.repo.PushTag(tr.ctx, "", "v9.9.9"), ErrTagMissing)
	require.ErrorIs(t, tr.repo.PushTag(tr.ctx, "", ""), ErrInvalidRef)
	assert.Empty(t, remote.TagCommit(t, "v9.9.9"))
}
