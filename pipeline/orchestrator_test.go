package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcit-ltc/forge-pipeline/chart"
	"github.com/bcit-ltc/forge-pipeline/config"
	"github.com/bcit-ltc/forge-pipeline/domain"
	"github.com/bcit-ltc/forge-pipeline/environment"
	"github.com/bcit-ltc/forge-pipeline/errors"
	"github.com/bcit-ltc/forge-pipeline/imagebuild"
	"github.com/bcit-ltc/forge-pipeline/version"
)

var testTime = time.Date(2024, 5, 17, 9, 30, 0, 0, time.UTC)

const baseConfig = `
forgeVersion: "1.0.0"
app: "web"
image: {registry: "ghcr.io", repository: "bcit-ltc/web"}
chart: {
	repository: %q
	path:       "apps/web"
	hostKey:    "ingress.host"
	registry:   "registry.local/charts"
}
`

func testConfig(t *testing.T, chartRepo string, extra string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(fmt.Sprintf(baseConfig, chartRepo)+extra), "pipeline.cue")
	require.NoError(t, err)
	return cfg
}

const testCommit = "abc1234def5678abc1234def5678abc1234def56"

func testRequest(t *testing.T, ref string) domain.PipelineRequest {
	t.Helper()
	return requestAt(t, ref, testCommit, testTime)
}

func requestAt(t *testing.T, ref, commit string, ts time.Time) domain.PipelineRequest {
	t.Helper()
	req, err := domain.NewPipelineRequest(domain.RequestInput{
		Ref:        ref,
		Commit:     commit,
		Repository: domain.Repository{URL: "https://github.com/bcit-ltc/web.git"},
		Timestamp:  ts,
	})
	require.NoError(t, err)
	return req
}

// MockVersioner is a Versioner backed by a function.
type MockVersioner struct {
	ResolveFunc func(ctx context.Context, cls environment.Classification) (version.Resolution, error)
	calls       int
}

func (m *MockVersioner) Resolve(ctx context.Context, cls environment.Classification, _ domain.PipelineRequest) (version.Resolution, error) {
	m.calls++
	return m.ResolveFunc(ctx, cls)
}

// MockBuilder is a Builder backed by a function.
type MockBuilder struct {
	BuildFunc func(ctx context.Context, req imagebuild.Request) (domain.BuildArtifact, error)
	calls     int
	last      imagebuild.Request
}

func (m *MockBuilder) Build(ctx context.Context, req imagebuild.Request) (domain.BuildArtifact, error) {
	m.calls++
	m.last = req
	return m.BuildFunc(ctx, req)
}

// MockUpdater is a ChartUpdater backed by a function.
type MockUpdater struct {
	UpdateFunc func(ctx context.Context, req chart.UpdateRequest) (chart.Result, error)
	calls      int
	last       chart.UpdateRequest
}

func (m *MockUpdater) Update(ctx context.Context, req chart.UpdateRequest) (chart.Result, error) {
	m.calls++
	m.last = req
	return m.UpdateFunc(ctx, req)
}

// MockReleaser is a ChartReleaser backed by a function.
type MockReleaser struct {
	ReleaseFunc func(ctx context.Context, req chart.ReleaseRequest) (domain.ReleaseArtifact, error)
	calls       int
	last        chart.ReleaseRequest
}

func (m *MockReleaser) Release(ctx context.Context, req chart.ReleaseRequest) (domain.ReleaseArtifact, error) {
	m.calls++
	m.last = req
	return m.ReleaseFunc(ctx, req)
}

// MockTagger is a ReleaseTagger backed by a function.
type MockTagger struct {
	TagFunc func(ctx context.Context, version, commit string) (string, error)
	calls   int
	when    time.Time
}

func (m *MockTagger) TagRelease(ctx context.Context, version, commit string, when time.Time) (string, error) {
	m.calls++
	m.when = when
	return m.TagFunc(ctx, version, commit)
}

type mocks struct {
	versioner *MockVersioner
	builder   *MockBuilder
	updater   *MockUpdater
	releaser  *MockReleaser
	tagger    *MockTagger
}

func newMocks(next string) *mocks {
	return &mocks{
		versioner: &MockVersioner{ResolveFunc: func(context.Context, environment.Classification) (version.Resolution, error) {
			if next == "" {
				return version.Resolution{NoOp: true}, nil
			}
			return version.Resolution{
				Bump:     version.BumpPatch,
				Previous: semver.MustParse("1.2.3"),
				Next:     semver.MustParse(next),
			}, nil
		}},
		builder: &MockBuilder{BuildFunc: func(_ context.Context, req imagebuild.Request) (domain.BuildArtifact, error) {
			return domain.BuildArtifact{Registry: "ghcr.io", Repository: "bcit-ltc/web", Tags: []string{req.Version, "latest"}}, nil
		}},
		updater: &MockUpdater{UpdateFunc: func(_ context.Context, req chart.UpdateRequest) (chart.Result, error) {
			return chart.Result{ChartUpdate: domain.ChartUpdate{
				Repository: req.Repository, Path: req.Path, Version: req.Version, AppVersion: req.Version,
				ImageTag: req.ImageTag, Commit: "0123abcd", Changed: true,
			}}, nil
		}},
		releaser: &MockReleaser{ReleaseFunc: func(_ context.Context, req chart.ReleaseRequest) (domain.ReleaseArtifact, error) {
			return domain.ReleaseArtifact{Chart: "web", Version: req.Version, Reference: req.Registry + "/web:" + req.Version}, nil
		}},
		tagger: &MockTagger{TagFunc: func(_ context.Context, version, _ string) (string, error) {
			return "v" + version, nil
		}},
	}
}

func (m *mocks) orchestrator(t *testing.T, cfg *config.Config) *Orchestrator {
	t.Helper()
	classifier, err := environment.NewClassifier()
	require.NoError(t, err)
	o, err := New(cfg, Stages{
		Classifier: classifier,
		Versioner:  m.versioner,
		Builder:    m.builder,
		Updater:    m.updater,
		Releaser:   m.releaser,
		Tagger:     m.tagger,
	}, WithClock(func() time.Time { return testTime }))
	require.NoError(t, err)
	return o
}

func stageStatuses(res *domain.RunResult) map[domain.Stage]domain.StageStatus {
	out := map[domain.Stage]domain.StageStatus{}
	for _, rec := range res.Stages {
		out[rec.Stage] = rec.Status
	}
	return out
}

func TestRunCompletes(t *testing.T) {
	m := newMocks("1.2.4")
	o := m.orchestrator(t, testConfig(t, "https://github.com/bcit-ltc/helm-charts.git", ""))

	res := o.Run(context.Background(), testRequest(t, "refs/heads/main"))

	require.Nil(t, res.Error)
	assert.Equal(t, domain.RunStatusDone, res.Status)
	assert.Equal(t, domain.StageReleased, res.Stage)
	assert.Equal(t, domain.EnvironmentLatest, res.Environment)
	require.NotNil(t, res.Version)
	assert.Equal(t, "1.2.4", res.Version.Version)
	assert.Equal(t, "1.2.3", res.Version.Previous)
	assert.Equal(t, "patch", res.Version.Bump)
	assert.Len(t, res.Stages, len(domain.Stages))
	for _, rec := range res.Stages {
		assert.Equal(t, domain.StageStatusOK, rec.Status, rec.Stage)
	}

	assert.Equal(t, "main", m.builder.last.Branch)
	assert.Equal(t, testTime, m.builder.last.Timestamp)
	assert.Equal(t, "web", m.updater.last.App)
	assert.Equal(t, "apps/web", m.updater.last.Path)
	assert.Equal(t, "ingress.host", m.updater.last.HostKey)
	assert.Equal(t, "1.2.4", m.updater.last.ImageTag)
	assert.Equal(t, "registry.local/charts", m.releaser.last.Registry)
	assert.Equal(t, testCommit, m.releaser.last.Revision)
	assert.Equal(t, "1.2.4", res.Release.Version)
	assert.Equal(t, "v1.2.4", res.Tag)
	assert.Equal(t, testTime, m.tagger.when)
}

func TestRunTagsOnlyLatest(t *testing.T) {
	tests := []struct {
		name  string
		ref   string
		next  string
		extra string
		calls int
	}{
		{name: "latest", ref: "refs/heads/main", next: "1.2.4", calls: 1},
		{name: "latest without chart release", ref: "refs/heads/main", next: "1.2.4", extra: `environments: latest: releaseChart: false`, calls: 1},
		{name: "latest without commits", ref: "refs/heads/main", calls: 0},
		{name: "review", ref: "refs/heads/12-search", next: "1.3.0-issue-12+abc1234", calls: 0},
		{name: "stable", ref: "refs/tags/v1.2.4", next: "1.2.4", calls: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMocks(tt.next)
			o := m.orchestrator(t, testConfig(t, "https://github.com/bcit-ltc/helm-charts.git", tt.extra))

			res := o.Run(context.Background(), testRequest(t, tt.ref))
			require.Nil(t, res.Error)
			assert.Equal(t, tt.calls, m.tagger.calls)
			if tt.calls == 0 {
				assert.Empty(t, res.Tag)
			}
		})
	}
}

func TestRunTagFailure(t *testing.T) {
	m := newMocks("1.2.4")
	m.tagger.TagFunc = func(context.Context, string, string) (string, error) {
		return "", errors.New(errors.CodeUnauthorized, "push tag v1.2.4")
	}
	o := m.orchestrator(t, testConfig(t, "https://github.com/bcit-ltc/helm-charts.git", ""))

	res := o.Run(context.Background(), testRequest(t, "refs/heads/main"))

	assert.Equal(t, domain.RunStatusFailed, res.Status)
	assert.Equal(t, domain.StageReleased, res.Stage)
	require.NotNil(t, res.Error)
	assert.Equal(t, "UNAUTHORIZED", res.Error.Code)
	require.NotNil(t, res.Release)
	assert.Empty(t, res.Tag)
}

func TestRunNoOpStopsAfterVersion(t *testing.T) {
	m := newMocks("")
	o := m.orchestrator(t, testConfig(t, "https://github.com/bcit-ltc/helm-charts.git", ""))

	res := o.Run(context.Background(), testRequest(t, "refs/heads/feature/x"))

	assert.Equal(t, domain.RunStatusDone, res.Status)
	assert.Equal(t, domain.StageVersioned, res.Stage)
	assert.Equal(t, domain.EnvironmentReview, res.Environment)
	assert.True(t, res.NoOp)
	assert.Nil(t, res.Version)
	assert.Nil(t, res.Build)
	assert.Len(t, res.Stages, 2)
	assert.Zero(t, m.builder.calls)
	assert.Zero(t, m.updater.calls)
	assert.Zero(t, m.releaser.calls)
}

func TestRunHaltsOnFailure(t *testing.T) {
	buildErr := &imagebuild.BuildError{Op: "build", Ref: "ghcr.io/bcit-ltc/web:1.2.4", ExitCode: 1, Output: "COPY failed"}

	tests := []struct {
		name       string
		ref        string
		setup      func(m *mocks)
		stage      domain.Stage
		code       errors.ErrorCode
		downstream func(m *mocks) int
	}{
		{
			name:       "classification",
			ref:        "refs/heads/bad..name",
			stage:      domain.StageClassified,
			code:       errors.CodeClassificationFailed,
			downstream: func(m *mocks) int { return m.versioner.calls + m.builder.calls },
		},
		{
			name: "version",
			ref:  "refs/heads/main",
			setup: func(m *mocks) {
				m.versioner.ResolveFunc = func(context.Context, environment.Classification) (version.Resolution, error) {
					return version.Resolution{}, errors.New(errors.CodeNotFound, "repository has no history")
				}
			},
			stage:      domain.StageVersioned,
			code:       errors.CodeNotFound,
			downstream: func(m *mocks) int { return m.builder.calls },
		},
		{
			name: "build",
			ref:  "refs/heads/main",
			setup: func(m *mocks) {
				m.builder.BuildFunc = func(context.Context, imagebuild.Request) (domain.BuildArtifact, error) {
					return domain.BuildArtifact{}, buildErr
				}
			},
			stage:      domain.StageBuilt,
			code:       errors.CodeBuildFailed,
			downstream: func(m *mocks) int { return m.updater.calls + m.releaser.calls },
		},
		{
			name: "chart update",
			ref:  "refs/heads/main",
			setup: func(m *mocks) {
				m.updater.UpdateFunc = func(context.Context, chart.UpdateRequest) (chart.Result, error) {
					return chart.Result{}, &chart.WriteConflictError{Repository: "charts", Branch: "main", Attempts: 3}
				}
			},
			stage:      domain.StageChartUpdated,
			code:       errors.CodeWriteConflict,
			downstream: func(m *mocks) int { return m.releaser.calls },
		},
		{
			name: "release",
			ref:  "refs/heads/main",
			setup: func(m *mocks) {
				m.releaser.ReleaseFunc = func(context.Context, chart.ReleaseRequest) (domain.ReleaseArtifact, error) {
					return domain.ReleaseArtifact{}, &chart.PublishError{Reference: "registry.local/charts/web:1.2.4", Reason: errors.CodeConflict}
				}
			},
			stage:      domain.StageReleased,
			code:       errors.CodeConflict,
			downstream: func(*mocks) int { return 0 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMocks("1.2.4")
			if tt.setup != nil {
				tt.setup(m)
			}
			o := m.orchestrator(t, testConfig(t, "https://github.com/bcit-ltc/helm-charts.git", ""))

			res := o.Run(context.Background(), testRequest(t, tt.ref))

			assert.True(t, res.Failed())
			assert.Equal(t, tt.stage, res.Stage)
			require.NotNil(t, res.Error)
			assert.Equal(t, tt.stage, res.Error.Stage)
			assert.Equal(t, string(tt.code), res.Error.Code)
			assert.NotEmpty(t, res.Error.Message)
			assert.Zero(t, tt.downstream(m))
			assert.Equal(t, domain.StageStatusFailed, res.Stages[len(res.Stages)-1].Status)
		})
	}
}

func TestRunBuildFailureProducesNoChart(t *testing.T) {
	m := newMocks("1.2.4")
	m.builder.BuildFunc = func(context.Context, imagebuild.Request) (domain.BuildArtifact, error) {
		return domain.BuildArtifact{}, &imagebuild.BuildError{Op: "build", Ref: "ghcr.io/bcit-ltc/web:1.2.4", ExitCode: 1}
	}
	o := m.orchestrator(t, testConfig(t, "https://github.com/bcit-ltc/helm-charts.git", ""))

	res := o.Run(context.Background(), testRequest(t, "refs/heads/main"))

	assert.Equal(t, domain.StageBuilt, res.Stage)
	assert.Nil(t, res.Build)
	assert.Nil(t, res.Chart)
	assert.Nil(t, res.Release)
}

func TestRunCancelled(t *testing.T) {
	t.Run("before start", func(t *testing.T) {
		m := newMocks("1.2.4")
		o := m.orchestrator(t, testConfig(t, "https://github.com/bcit-ltc/helm-charts.git", ""))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		res := o.Run(ctx, testRequest(t, "refs/heads/main"))

		assert.True(t, res.Failed())
		assert.Equal(t, domain.StageClassified, res.Stage)
		assert.Equal(t, string(errors.CodeCancelled), res.Error.Code)
		assert.Empty(t, res.Stages)
		assert.Zero(t, m.versioner.calls)
	})

	t.Run("during build", func(t *testing.T) {
		m := newMocks("1.2.4")
		ctx, cancel := context.WithCancel(context.Background())
		m.builder.BuildFunc = func(ctx context.Context, _ imagebuild.Request) (domain.BuildArtifact, error) {
			cancel()
			return domain.BuildArtifact{}, ctx.Err()
		}
		o := m.orchestrator(t, testConfig(t, "https://github.com/bcit-ltc/helm-charts.git", ""))

		res := o.Run(ctx, testRequest(t, "refs/heads/main"))

		assert.Equal(t, domain.StageBuilt, res.Stage)
		assert.Equal(t, string(errors.CodeCancelled), res.Error.Code)
		assert.Zero(t, m.updater.calls)
	})

	t.Run("after build", func(t *testing.T) {
		m := newMocks("1.2.4")
		ctx, cancel := context.WithCancel(context.Background())
		builder := m.builder.BuildFunc
		m.builder.BuildFunc = func(ctx context.Context, req imagebuild.Request) (domain.BuildArtifact, error) {
			defer cancel()
			return builder(ctx, req)
		}
		o := m.orchestrator(t, testConfig(t, "https://github.com/bcit-ltc/helm-charts.git", ""))

		res := o.Run(ctx, testRequest(t, "refs/heads/main"))

		assert.Equal(t, domain.StageChartUpdated, res.Stage)
		assert.Equal(t, string(errors.CodeCancelled), res.Error.Code)
		assert.NotNil(t, res.Build)
		assert.Zero(t, m.updater.calls)
	})
}

func TestRunEnvironmentPolicy(t *testing.T) {
	tests := []struct {
		name     string
		policy   string
		updates  int
		releases int
		stage    domain.Stage
		skipped  []domain.Stage
	}{
		{
			name:    "release disabled",
			policy:  `environments: review: releaseChart: false`,
			updates: 1,
			stage:   domain.StageChartUpdated,
			skipped: []domain.Stage{domain.StageReleased},
		},
		{
			name:    "update disabled",
			policy:  `environments: review: {updateChart: false, releaseChart: false}`,
			stage:   domain.StageBuilt,
			skipped: []domain.Stage{domain.StageChartUpdated, domain.StageReleased},
		},
		{
			name:     "other environment disabled",
			policy:   `environments: stable: releaseChart: false`,
			updates:  1,
			releases: 1,
			stage:    domain.StageReleased,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMocks("1.3.0-issue-12+abc1234")
			o := m.orchestrator(t, testConfig(t, "https://github.com/bcit-ltc/helm-charts.git", tt.policy))

			res := o.Run(context.Background(), testRequest(t, "refs/heads/12-new-catalog"))

			assert.Equal(t, domain.RunStatusDone, res.Status)
			assert.Equal(t, tt.stage, res.Stage)
			assert.Equal(t, tt.updates, m.updater.calls)
			assert.Equal(t, tt.releases, m.releaser.calls)
			statuses := stageStatuses(res)
			for _, s := range tt.skipped {
				assert.Equal(t, domain.StageStatusSkipped, statuses[s], s)
			}
			assert.Len(t, res.Stages, len(domain.Stages))
		})
	}
}

func TestRunPullRequestBranch(t *testing.T) {
	m := newMocks("1.3.0-pr-42+abc1234")
	o := m.orchestrator(t, testConfig(t, "https://github.com/bcit-ltc/helm-charts.git", ""))

	res := o.Run(context.Background(), testRequest(t, "refs/pull/42/merge"))

	require.Nil(t, res.Error)
	assert.Equal(t, "pr-42", m.builder.last.Branch)
	assert.Equal(t, environment.KindPull, m.updater.last.Classification.Kind)
}

func TestNewValidation(t *testing.T) {
	m := newMocks("1.2.4")
	cfg := testConfig(t, "https://github.com/bcit-ltc/helm-charts.git", "")

	_, err := New(nil, Stages{})
	assert.Equal(t, errors.CodeInvalidConfig, errors.GetCode(err))

	_, err = New(cfg, Stages{Versioner: m.versioner, Builder: m.builder})
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}
