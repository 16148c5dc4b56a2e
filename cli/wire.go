package cli

import (
	"context"
	"strings"

	"github.com/bcit-ltc/forge-pipeline/chart"
	"github.com/bcit-ltc/forge-pipeline/config"
	"github.com/bcit-ltc/forge-pipeline/environment"
	"github.com/bcit-ltc/forge-pipeline/errors"
	"github.com/bcit-ltc/forge-pipeline/executor"
	fsb "github.com/bcit-ltc/forge-pipeline/fs/billy"
	"github.com/bcit-ltc/forge-pipeline/git"
	"github.com/bcit-ltc/forge-pipeline/imagebuild"
	"github.com/bcit-ltc/forge-pipeline/oci"
	"github.com/bcit-ltc/forge-pipeline/pipeline"
	schema "github.com/bcit-ltc/forge-pipeline/schemas"
	"github.com/bcit-ltc/forge-pipeline/secrets"
	awsprovider "github.com/bcit-ltc/forge-pipeline/secrets/providers/aws"
	envprovider "github.com/bcit-ltc/forge-pipeline/secrets/providers/env"
	"github.com/bcit-ltc/forge-pipeline/version"
)

func (a *app) loadConfig(ctx context.Context) (*config.Config, error) {
	return config.Load(ctx, fsb.NewOSFS(a.dir), a.configPath)
}

func (a *app) classifier(cfg *config.Config) (*environment.Classifier, error) {
	return environment.NewClassifier(
		environment.WithReleasePattern(cfg.Release.TagPattern),
		environment.WithDefaultBranch(cfg.DefaultBranch),
	)
}

func (a *app) versionService(ctx context.Context, cfg *config.Config) (*version.Service, error) {
	resolver, err := version.NewResolver(version.WithInitialVersion(cfg.Release.InitialVersion))
	if err != nil {
		return nil, err
	}
	history := a.deps.History
	if history == nil {
		h, err := version.OpenGitHistory(ctx, a.dir, cfg.Release.TagPrefix)
		if err != nil {
			return nil, err
		}
		history = h
	}
	return version.NewService(resolver, history,
		version.WithTagPrefix(cfg.Release.TagPrefix),
		version.WithLogger(a.logger),
	), nil
}

// orchestrator wires every stage from cfg. The returned function closes the
// secret providers.
func (a *app) orchestrator(ctx context.Context, cfg *config.Config) (*pipeline.Orchestrator, func() error, error) {
	mgr, err := a.secretManager(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	fail := func(err error) (*pipeline.Orchestrator, func() error, error) {
		_ = mgr.Close()
		return nil, nil, err
	}

	classifier, err := a.classifier(cfg)
	if err != nil {
		return fail(err)
	}
	versions, err := a.versionService(ctx, cfg)
	if err != nil {
		return fail(err)
	}

	delay, timeout := cfg.RetryDelay(), cfg.RetryTimeout()

	runner := a.deps.Runner
	if runner == nil {
		runner = executor.NewWrappedExecutor("docker", executor.WithLogger(a.logger))
	}
	builderOpts := []imagebuild.Option{
		imagebuild.WithRunner(runner),
		imagebuild.WithTagRules(cfg.TagRules()),
		imagebuild.WithRetry(cfg.Retry.Attempts, delay, timeout),
		imagebuild.WithLogger(a.logger),
	}
	if c := cfg.Credentials.Registry; c != nil {
		password, err := resolveSecret(ctx, mgr, "registry", c)
		if err != nil {
			return fail(err)
		}
		builderOpts = append(builderOpts, imagebuild.WithCredentials(imagebuild.Credentials{
			Username: c.Username,
			Password: password,
		}))
	}
	builder, err := imagebuild.NewDockerBuilder(cfg.Image.Registry, cfg.Image.Repository, builderOpts...)
	if err != nil {
		return fail(err)
	}

	storeOpts := []chart.GitStoreOption{chart.WithStoreLogger(a.logger)}
	if c := cfg.Credentials.ChartRepository; c != nil {
		token, err := resolveSecret(ctx, mgr, "chartRepository", c)
		if err != nil {
			return fail(err)
		}
		storeOpts = append(storeOpts, chart.WithAuth(git.TokenAuth(token)))
	}
	updater := chart.NewUpdater(chart.NewGitStore(storeOpts...),
		chart.WithAuthor(cfg.Chart.Author.Name, cfg.Chart.Author.Email),
		chart.WithRetry(cfg.Retry.Attempts, delay),
		chart.WithOperationTimeout(timeout),
		chart.WithUpdaterLogger(a.logger),
	)

	ociOpts := []oci.ClientOption{
		oci.WithRetry(cfg.Retry.Attempts, delay),
		oci.WithTimeout(timeout),
		oci.WithLogger(a.logger),
	}
	if c := cfg.Credentials.ChartRegistry; c != nil {
		password, err := resolveSecret(ctx, mgr, "chartRegistry", c)
		if err != nil {
			return fail(err)
		}
		host, _, _ := strings.Cut(cfg.Chart.Registry, "/")
		ociOpts = append(ociOpts, oci.WithStaticAuth(host, c.Username, password))
	}
	if a.deps.Targets != nil {
		ociOpts = append(ociOpts, oci.WithTargetFactory(a.deps.Targets))
	}
	releaser := chart.NewReleaser(oci.New(ociOpts...), chart.WithReleaserLogger(a.logger))

	tagger, err := a.tagger(ctx, cfg, mgr)
	if err != nil {
		return fail(err)
	}

	orch, err := pipeline.New(cfg, pipeline.Stages{
		Classifier: classifier,
		Versioner:  versions,
		Builder:    builder,
		Updater:    updater,
		Releaser:   releaser,
		Tagger:     tagger,
	}, pipeline.WithWorkDir(a.dir), pipeline.WithLogger(a.logger))
	if err != nil {
		return fail(err)
	}
	return orch, mgr.Close, nil
}

// tagger returns nil when latest releases are not tagged.
//
//nolint:ireturn // the stage is optional
func (a *app) tagger(ctx context.Context, cfg *config.Config, mgr *secrets.Manager) (pipeline.ReleaseTagger, error) {
	if !cfg.Release.TagLatest {
		return nil, nil
	}
	if a.deps.Tagger != nil {
		return a.deps.Tagger, nil
	}
	var auth git.AuthProvider
	if c := cfg.Credentials.Source; c != nil {
		token, err := resolveSecret(ctx, mgr, "source", c)
		if err != nil {
			return nil, err
		}
		auth = git.TokenAuth(token)
	}
	t, err := version.OpenGitTagger(ctx, a.dir, cfg.Release.TagPrefix, auth,
		version.WithTaggerIdentity(cfg.Chart.Author.Name, cfg.Chart.Author.Email),
		version.WithTaggerLogger(a.logger),
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// secretManager registers the providers credentials refer to. The env
// provider is always available; AWS Secrets Manager is only contacted when
// a credential uses it.
func (a *app) secretManager(ctx context.Context, cfg *config.Config) (*secrets.Manager, error) {
	mgr := secrets.NewManager(&secrets.Config{
		DefaultProvider: "env",
		AutoClear:       true,
		Logger:          a.logger,
	})

	providers := a.deps.Providers
	if providers == nil {
		providers = []secrets.Provider{envprovider.New()}
		if usesProvider(cfg.Credentials, "aws") {
			p, err := awsprovider.New(ctx, awsprovider.WithMaxRetries(cfg.Retry.Attempts))
			if err != nil {
				return nil, errors.Wrap(err, errors.CodeInvalidConfig, "initialize AWS Secrets Manager")
			}
			providers = append(providers, p)
		}
	}
	for _, p := range providers {
		if err := mgr.RegisterProvider(p); err != nil {
			_ = mgr.Close()
			return nil, err
		}
	}
	return mgr, nil
}

func usesProvider(creds schema.Credentials, name string) bool {
	for _, c := range []*schema.Credential{creds.Registry, creds.ChartRepository, creds.ChartRegistry, creds.Source} {
		if c != nil && c.Provider == name {
			return true
		}
	}
	return false
}

func resolveSecret(ctx context.Context, mgr *secrets.Manager, field string, c *schema.Credential) (string, error) {
	s, err := mgr.ResolveFrom(ctx, c.Provider, secrets.SecretRef{Path: c.Path})
	if err != nil {
		return "", errors.WrapWithContext(err, errors.CodeUnauthorized, "resolve credential", map[string]interface{}{
			"credential": field,
			"provider":   c.Provider,
			"path":       c.Path,
		})
	}
	return s.String(), nil
}
