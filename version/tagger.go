package version

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	fsb "github.com/bcit-ltc/forge-pipeline/fs/billy"
	"github.com/bcit-ltc/forge-pipeline/errors"
	"github.com/bcit-ltc/forge-pipeline/git"
)

// GitTagger records released versions as <prefix><version> tags so later
// histories start from them.
type GitTagger struct {
	repo   *git.Repo
	prefix string
	remote string
	who    git.Signature
	logger *slog.Logger
}

// TaggerOption configures a GitTagger.
type TaggerOption func(*GitTagger)

// WithTagRemote sets the remote tags are pushed to. An empty name keeps tags
// local.
func WithTagRemote(name string) TaggerOption {
	return func(g *GitTagger) {
		g.remote = name
	}
}

// WithTaggerIdentity sets the tagger of annotated tags.
func WithTaggerIdentity(name, email string) TaggerOption {
	return func(g *GitTagger) {
		if name != "" {
			g.who.Name = name
		}
		if email != "" {
			g.who.Email = email
		}
	}
}

func WithTaggerLogger(logger *slog.Logger) TaggerOption {
	return func(g *GitTagger) {
		g.logger = logger
	}
}

// NewGitTagger tags commits of repo and pushes them to origin.
func NewGitTagger(repo *git.Repo, tagPrefix string, opts ...TaggerOption) *GitTagger {
	g := &GitTagger{
		repo:   repo,
		prefix: tagPrefix,
		remote: git.DefaultRemoteName,
		who:    git.Signature{Name: "forge-pipeline", Email: "forge-pipeline@localhost"},
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = slog.New(slog.DiscardHandler)
	}
	return g
}

// OpenGitTagger opens the checkout at dir. auth may be nil.
func OpenGitTagger(ctx context.Context, dir, tagPrefix string, auth git.AuthProvider, opts ...TaggerOption) (*GitTagger, error) {
	repo, err := git.Open(ctx, &git.Options{FS: fsb.NewOSFS(dir), Auth: auth})
	if err != nil {
		return nil, err
	}
	return NewGitTagger(repo, tagPrefix, opts...), nil
}

// TagRelease tags commit as version and pushes the tag. A tag that already
// points at commit is pushed again; one pointing elsewhere is
// CodeAlreadyExists. It returns the tag name.
func (g *GitTagger) TagRelease(ctx context.Context, version, commit string, when time.Time) (string, error) {
	name := g.prefix + version

	existing, err := g.repo.TagCommit(ctx, name)
	switch {
	case err == nil && existing != commit:
		return "", errors.WrapWithContext(git.ErrTagExists, errors.CodeAlreadyExists, "release tag points at another commit", map[string]interface{}{
			"tag":    name,
			"commit": existing,
		})
	case err == nil:
		g.logger.Debug("release tag exists", "tag", name, "commit", commit)
	case errors.Is(err, git.ErrTagMissing):
		who := g.who
		who.When = when
		if err := g.repo.CreateTag(ctx, name, commit, "Release "+version, who); err != nil {
			return "", errors.Wrap(err, git.ErrorCode(err), fmt.Sprintf("create tag %s", name))
		}
	default:
		return "", errors.Wrap(err, git.ErrorCode(err), fmt.Sprintf("read tag %s", name))
	}

	if g.remote == "" {
		return name, nil
	}
	if err := g.repo.PushTag(ctx, g.remote, name); err != nil && !errors.Is(err, git.ErrAlreadyUpToDate) {
		return "", errors.Wrap(err, git.ErrorCode(err), fmt.Sprintf("push tag %s", name))
	}
	g.logger.Info("release tagged", "tag", name, "commit", commit)
	return name, nil
}
