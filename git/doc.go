// Package git provides a high-level wrapper for the git operations the
// pipeline needs.
//
// It is a facade over go-git operating exclusively through the fs.Filesystem
// abstraction, so repositories can live on disk (the CI checkout) or in
// memory (per-run chart repository clones).
//
// # Basic Usage
//
// Open the checkout and read release history:
//
//	repo, err := git.Open(ctx, &git.Options{FS: billy.NewOSFS("."), Workdir: "."})
//	tags, err := repo.Tags(ctx, git.TagPrefixFilter("v"))
//	commits, err := repo.CommitsSince(ctx, baseHash)
//
// Clone, change and publish:
//
//	repo, err := git.Clone(ctx, url, &git.Options{FS: billy.NewInMemoryFS(), Branch: "main"})
//	err = repo.Add(ctx, "apps/web/Chart.yaml")
//	sha, err := repo.Commit(ctx, "Update web to version 1.2.4", who, git.CommitOpts{})
//	err = repo.Push(ctx, "", "main", false)
//	if errors.Is(err, git.ErrNotFastForward) {
//	    err = repo.ResetToRemote(ctx, "", "main")
//	}
//
// # Error Handling
//
// Operations return sentinel errors (ErrNotFastForward, ErrAlreadyUpToDate,
// ErrTagMissing, ...) wrapped with context; use errors.Is to test for them.
package git
