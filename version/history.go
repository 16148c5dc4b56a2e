package version

import (
	"context"
	"strings"

	"github.com/Masterminds/semver/v3"

	fsb "github.com/bcit-ltc/forge-pipeline/fs/billy"
	"github.com/bcit-ltc/forge-pipeline/git"
)

// GitHistory reads release history from a git repository. Released versions
// are tags of the form <prefix><semver>; pre-release tags are ignored.
type GitHistory struct {
	repo   *git.Repo
	prefix string
}

// NewGitHistory returns a HistorySource backed by repo.
func NewGitHistory(repo *git.Repo, tagPrefix string) *GitHistory {
	return &GitHistory{repo: repo, prefix: tagPrefix}
}

// OpenGitHistory opens the checkout at dir read-only.
func OpenGitHistory(ctx context.Context, dir, tagPrefix string) (*GitHistory, error) {
	repo, err := git.Open(ctx, &git.Options{FS: fsb.NewOSFS(dir)})
	if err != nil {
		return nil, err
	}
	return NewGitHistory(repo, tagPrefix), nil
}

// History returns the highest released version and the commits since its tag.
// A repository without release tags returns its full history.
func (g *GitHistory) History(ctx context.Context) (History, error) {
	tags, err := g.repo.Tags(ctx, git.TagPrefixFilter(g.prefix))
	if err != nil {
		return History{}, err
	}

	var (
		best    *semver.Version
		bestTag string
	)
	for _, tag := range tags {
		v, pErr := semver.StrictNewVersion(strings.TrimPrefix(tag, g.prefix))
		if pErr != nil || v.Prerelease() != "" {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best, bestTag = v, tag
		}
	}

	base := ""
	if bestTag != "" {
		base = "refs/tags/" + bestTag
	}
	commits, err := g.repo.CommitsSince(ctx, base)
	if err != nil {
		return History{}, err
	}

	h := History{Previous: best, Commits: make([]Commit, 0, len(commits))}
	for _, c := range commits {
		h.Commits = append(h.Commits, Commit{Hash: c.Hash, Message: c.Message})
	}
	return h, nil
}
