package git

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTags(t *testing.T) {
	tr := setupTestRepo(t)
	first := tr.commitFile(t, "a.txt", "a", "feat: a")
	second := tr.commitFile(t, "b.txt", "b", "fix: b")

	require.NoError(t, tr.repo.CreateTag(tr.ctx, "v1.0.0", first, "", testSignature))
	require.NoError(t, tr.repo.CreateTag(tr.ctx, "v1.1.0", second, "release 1.1.0", testSignature))
	require.NoError(t, tr.repo.CreateTag(tr.ctx, "chart-0.1.0", second, "", testSignature))

	t.Run("all sorted", func(t *testing.T) {
		tags, err := tr.repo.Tags(tr.ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"chart-0.1.0", "v1.0.0", "v1.1.0"}, tags)
	})

	t.Run("prefix filter", func(t *testing.T) {
		tags, err := tr.repo.Tags(tr.ctx, TagPrefixFilter("v"))
		require.NoError(t, err)
		assert.Equal(t, []string{"v1.0.0", "v1.1.0"}, tags)
	})

	t.Run("tag commit peels annotated tags", func(t *testing.T) {
		got, err := tr.repo.TagCommit(tr.ctx, "v1.1.0")
		require.NoError(t, err)
		assert.Equal(t, second, got)

		got, err = tr.repo.TagCommit(tr.ctx, "v1.0.0")
		require.NoError(t, err)
		assert.Equal(t, first, got)

		_, err = tr.repo.TagCommit(tr.ctx, "v9.9.9")
		require.ErrorIs(t, err, ErrTagMissing)
	})

	t.Run("duplicate tag", func(t *testing.T) {
		err := tr.repo.CreateTag(tr.ctx, "v1.0.0", second, "", testSignature)
		require.ErrorIs(t, err, ErrTagExists)
	})

	t.Run("invalid arguments", func(t *testing.T) {
		require.ErrorIs(t, tr.repo.CreateTag(tr.ctx, "", second, "", testSignature), ErrInvalidRef)
		require.ErrorIs(t, tr.repo.CreateTag(tr.ctx, "x", "", "", testSignature), ErrInvalidRef)
		require.ErrorIs(t, tr.repo.CreateTag(tr.ctx, "x", "nope", "", testSignature), ErrResolveFailed)
	})
}
