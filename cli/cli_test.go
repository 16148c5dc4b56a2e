package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"oras.land/oras-go/v2"
	"oras.land/oras-go/v2/content/memory"

	"github.com/bcit-ltc/forge-pipeline/config"
	"github.com/bcit-ltc/forge-pipeline/domain"
	"github.com/bcit-ltc/forge-pipeline/environment"
	"github.com/bcit-ltc/forge-pipeline/executor"
	"github.com/bcit-ltc/forge-pipeline/git/gittest"
	"github.com/bcit-ltc/forge-pipeline/secrets"
	envprovider "github.com/bcit-ltc/forge-pipeline/secrets/providers/env"
	"github.com/bcit-ltc/forge-pipeline/version"
)

const commit = "abc1234def5678abc1234def5678abc1234def56"

const pipelineCUE = `
forgeVersion: "1.0.0"
app: "web"
image: {registry: "ghcr.io", repository: "bcit-ltc/web"}
chart: {
	repository: %q
	path:       "apps/web"
	registry:   "registry.local/charts"
}
credentials: registry: {provider: "env", path: "ci/registry-token", username: "ci-bot"}
`

func noEnv(string) (string, bool) { return "", false }

// MockRunner records docker invocations.
type MockRunner struct {
	mu    sync.Mutex
	calls [][]string
	fail  string
}

func (m *MockRunner) Execute(_ context.Context, args []string, _ ...executor.Option) (*executor.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, args)
	if args[0] == m.fail {
		return &executor.Result{ExitCode: 1, Stderr: "denied"}, fmt.Errorf("exit status 1")
	}
	return &executor.Result{}, nil
}

func (m *MockRunner) commands() []string {
	out := make([]string, len(m.calls))
	for i, c := range m.calls {
		out[i] = c[0]
	}
	return out
}

type history struct {
	previous string
	messages []string
}

func (h history) History(context.Context) (version.History, error) {
	out := version.History{}
	if h.previous != "" {
		out.Previous = semver.MustParse(h.previous)
	}
	for i, msg := range h.messages {
		out.Commits = append(out.Commits, version.Commit{Hash: fmt.Sprint(i), Message: msg})
	}
	return out, nil
}

type tagger struct {
	tags []string
}

func (g *tagger) TagRelease(_ context.Context, version, commit string, _ time.Time) (string, error) {
	g.tags = append(g.tags, "v"+version+"@"+commit[:7])
	return "v" + version, nil
}

type registry struct {
	mu    sync.Mutex
	repos map[string]*memory.Store
}

func (r *registry) factory(_ context.Context, repository string) (oras.Target, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.repos == nil {
		r.repos = map[string]*memory.Store{}
	}
	if _, ok := r.repos[repository]; !ok {
		r.repos[repository] = memory.New()
	}
	return r.repos[repository], nil
}

type harness struct {
	dir    string
	remote *gittest.Remote
	runner *MockRunner
	tagger *tagger
	deps   Deps
}

func newHarness(t *testing.T, h history) *harness {
	t.Helper()

	remote := gittest.NewRemote(t)
	remote.Commit(t, "chore: add web chart", map[string]string{
		"apps/web/Chart.yaml":  "apiVersion: v2\nname: web\nversion: 1.2.3\nappVersion: \"1.2.3\"\n",
		"apps/web/values.yaml": "image:\n  tag: 1.2.3\n",
	})

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".forge"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.DefaultPath), []byte(fmt.Sprintf(pipelineCUE, remote.URL)), 0o644))

	store := envprovider.New(envprovider.WithLookup(func(name string) (string, bool) {
		return "s3cr3t", name == "CI_REGISTRY_TOKEN"
	}))

	runner := &MockRunner{}
	tags := &tagger{}
	return &harness{
		dir:    dir,
		remote: remote,
		runner: runner,
		tagger: tags,
		deps: Deps{
			Runner:    runner,
			Providers: []secrets.Provider{store},
			Targets:   (&registry{}).factory,
			History:   h,
			Tagger:    tags,
		},
	}
}

func (h *harness) execute(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := Execute(context.Background(), append(args, "--dir", h.dir), &stdout, &stderr, h.deps)
	return code, stdout.String(), stderr.String()
}

func decodeResult(t *testing.T, out string) domain.RunResult {
	t.Helper()
	var res domain.RunResult
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	return res
}

func TestRunCommand(t *testing.T) {
	h := newHarness(t, history{previous: "1.2.3", messages: []string{"fix: handle empty catalog"}})

	code, out, stderr := h.execute("run",
		"--ref", "refs/heads/main",
		"--commit", commit,
		"--repo-url", "https://github.com/bcit-ltc/web.git",
		"--build-arg", "NODE_ENV=production",
		"--timestamp", "2024-05-17T09:30:00Z",
	)
	require.Equal(t, 0, code, stderr)

	res := decodeResult(t, out)
	assert.Equal(t, domain.RunStatusDone, res.Status)
	assert.Equal(t, domain.StageReleased, res.Stage)
	assert.Equal(t, "1.2.4", res.Version.Version)
	assert.Equal(t, "registry.local/charts/web:1.2.4", res.Release.Reference)
	assert.Contains(t, h.remote.ReadFile(t, "apps/web/Chart.yaml"), "version: 1.2.4")
	assert.Equal(t, "v1.2.4", res.Tag)
	assert.Equal(t, []string{"v1.2.4@abc1234"}, h.tagger.tags)

	assert.Equal(t, []string{"build", "login", "push", "push"}, h.runner.commands())
	assert.Contains(t, h.runner.calls[0], "NODE_ENV=production")
	assert.NotContains(t, stderr, "s3cr3t")
	assert.Contains(t, stderr, "pipeline finished")
}

func TestRunCommandWithoutReleaseTags(t *testing.T) {
	h := newHarness(t, history{previous: "1.2.3", messages: []string{"fix: handle empty catalog"}})
	path := filepath.Join(h.dir, config.DefaultPath)
	src, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, append(src, "release: tagLatest: false\n"...), 0o644))

	code, out, stderr := h.execute("run", "--ref", "refs/heads/main", "--commit", commit, "--timestamp", "2024-05-17T09:30:00Z")
	require.Equal(t, 0, code, stderr)

	res := decodeResult(t, out)
	assert.Equal(t, domain.StageReleased, res.Stage)
	assert.Empty(t, res.Tag)
	assert.Empty(t, h.tagger.tags)
}

func TestRunCommandNoOp(t *testing.T) {
	h := newHarness(t, history{previous: "1.2.3", messages: []string{"docs: typo"}})

	code, out, _ := h.execute("run", "--ref", "refs/heads/feature/x", "--commit", commit, "--timestamp", "2024-05-17T09:30:00Z")
	require.Equal(t, 0, code)

	res := decodeResult(t, out)
	assert.True(t, res.NoOp)
	assert.Equal(t, domain.StageVersioned, res.Stage)
	assert.Empty(t, h.runner.calls)
}

func TestRunCommandFailures(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		setup func(h *harness)
		stage domain.Stage
		code  string
	}{
		{
			name:  "invalid commit",
			args:  []string{"--ref", "refs/heads/main", "--commit", "xyz"},
			stage: domain.StageStart,
			code:  "INVALID_INPUT",
		},
		{
			name:  "invalid build arg",
			args:  []string{"--ref", "refs/heads/main", "--commit", commit, "--build-arg", "NODE_ENV"},
			stage: domain.StageStart,
			code:  "INVALID_INPUT",
		},
		{
			name:  "missing configuration",
			args:  []string{"--ref", "refs/heads/main", "--commit", commit, "--config", "missing.cue"},
			stage: domain.StageStart,
			code:  "NOT_FOUND",
		},
		{
			name:  "missing secret",
			args:  []string{"--ref", "refs/heads/main", "--commit", commit},
			setup: func(h *harness) { h.deps.Providers = []secrets.Provider{envprovider.New(envprovider.WithLookup(noEnv))} },
			stage: domain.StageStart,
			code:  "UNAUTHORIZED",
		},
		{
			name:  "build failure",
			args:  []string{"--ref", "refs/heads/main", "--commit", commit},
			setup: func(h *harness) { h.runner.fail = "build" },
			stage: domain.StageBuilt,
			code:  "BUILD_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, history{previous: "1.2.3", messages: []string{"fix: x"}})
			if tt.setup != nil {
				tt.setup(h)
			}

			code, out, _ := h.execute(append([]string{"run"}, tt.args...)...)
			assert.Equal(t, 1, code)

			res := decodeResult(t, out)
			assert.Equal(t, domain.RunStatusFailed, res.Status)
			assert.Equal(t, tt.stage, res.Stage)
			require.NotNil(t, res.Error)
			assert.Equal(t, tt.code, res.Error.Code)
		})
	}
}

func TestClassifyCommand(t *testing.T) {
	tests := []struct {
		ref  string
		want domain.Environment
	}{
		{"refs/heads/main", domain.EnvironmentLatest},
		{"refs/tags/v1.2.3", domain.EnvironmentStable},
		{"refs/heads/12-search", domain.EnvironmentReview},
		{"refs/pull/7/merge", domain.EnvironmentReview},
	}

	h := newHarness(t, history{})
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			code, out, stderr := h.execute("classify", "--ref", tt.ref)
			require.Equal(t, 0, code, stderr)

			var cls environment.Classification
			require.NoError(t, json.Unmarshal([]byte(out), &cls))
			assert.Equal(t, tt.want, cls.Environment)
		})
	}
}

func TestClassifyWithoutConfiguration(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Execute(context.Background(), []string{"classify", "--ref", "refs/heads/main", "--dir", t.TempDir()}, &stdout, &stderr, Deps{})
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), `"environment": "latest"`)
}

func TestClassifyInvalidRef(t *testing.T) {
	h := newHarness(t, history{})
	code, out, stderr := h.execute("classify", "--ref", "refs/heads/bad..ref")
	assert.Equal(t, 1, code)
	assert.Empty(t, out)
	assert.Contains(t, stderr, "cannot classify ref")
}

func TestNextVersionCommand(t *testing.T) {
	h := newHarness(t, history{previous: "1.2.3", messages: []string{"feat: search"}})

	code, out, stderr := h.execute("next-version", "--ref", "refs/heads/12-search", "--commit", commit)
	require.Equal(t, 0, code, stderr)

	var got versionOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, domain.EnvironmentReview, got.Environment)
	assert.False(t, got.NoOp)
	require.NotNil(t, got.Version)
	assert.Equal(t, "1.3.0-issue-12+abc1234", got.Version.Version)
	assert.Equal(t, "minor", got.Version.Bump)
}

func TestLoggingFlags(t *testing.T) {
	h := newHarness(t, history{})

	code, _, stderr := h.execute("classify", "--ref", "refs/heads/main", "--logformat", "yaml")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "invalid log format")

	code, _, stderr = h.execute("classify", "--ref", "refs/heads/main", "--loglevel", "trace")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "invalid log level")

	var stdout, errOut bytes.Buffer
	args := []string{"classify", "--ref", "refs/heads/main", "--dir", t.TempDir(), "--loglevel", "debug", "--logformat", "json"}
	code = Execute(context.Background(), args, &stdout, &errOut, Deps{})
	assert.Equal(t, 0, code)
	assert.True(t, strings.HasPrefix(errOut.String(), "{"), errOut.String())
	assert.Contains(t, errOut.String(), "no pipeline configuration")
}
