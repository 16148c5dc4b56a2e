package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bcit-ltc/forge-pipeline/chart"
	"github.com/bcit-ltc/forge-pipeline/config"
	"github.com/bcit-ltc/forge-pipeline/domain"
	"github.com/bcit-ltc/forge-pipeline/environment"
	"github.com/bcit-ltc/forge-pipeline/errors"
	"github.com/bcit-ltc/forge-pipeline/imagebuild"
	"github.com/bcit-ltc/forge-pipeline/version"
)

// Orchestrator drives a single run through its stages. It holds no per-run
// state and may run several requests concurrently when its collaborators
// allow it.
type Orchestrator struct {
	stages Stages
	cfg    *config.Config
	dir    string
	now    func() time.Time
	logger *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithWorkDir sets the checkout directory build paths are relative to.
func WithWorkDir(dir string) Option {
	return func(o *Orchestrator) {
		o.dir = dir
	}
}

// WithClock sets the clock used for stage timings. Versions and tags only
// ever use the request timestamp.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New creates an Orchestrator.
func New(cfg *config.Config, stages Stages, opts ...Option) (*Orchestrator, error) {
	if cfg == nil || cfg.Pipeline == nil {
		return nil, errors.New(errors.CodeInvalidConfig, "pipeline configuration is required")
	}
	if stages.Classifier == nil || stages.Versioner == nil || stages.Builder == nil ||
		stages.Updater == nil || stages.Releaser == nil {
		return nil, errors.New(errors.CodeInvalidInput, "every pipeline stage must be provided")
	}

	o := &Orchestrator{
		stages: stages,
		cfg:    cfg,
		dir:    ".",
		now:    time.Now,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// run carries the state of one Run call.
type run struct {
	o      *Orchestrator
	req    domain.PipelineRequest
	result *domain.RunResult
	logger *slog.Logger

	cls      environment.Classification
	res      version.Resolution
	artifact domain.BuildArtifact
	update   chart.Result
}

// Run executes req and returns its result. Failures are reported in the
// result, never as a Go error; the result is always non-nil.
func (o *Orchestrator) Run(ctx context.Context, req domain.PipelineRequest) *domain.RunResult {
	r := &run{
		o:      o,
		req:    req,
		result: &domain.RunResult{Stage: domain.StageStart, Stages: []domain.StageRecord{}},
		logger: o.logger.With("ref", req.Ref(), "commit", req.ShortCommit()),
	}
	r.logger.Info("pipeline started")

	ok := r.step(ctx, domain.StageClassified, r.classify) &&
		r.step(ctx, domain.StageVersioned, r.version)
	if ok && r.res.NoOp {
		r.logger.Info("no releasable commits", "stage", r.result.Stage)
		return r.finish()
	}

	ok = ok && r.step(ctx, domain.StageBuilt, r.build)
	if !ok {
		return r.finish()
	}

	policy := o.cfg.Policy(r.cls.Environment)
	switch {
	case !policy.UpdateChart:
		r.skip(domain.StageChartUpdated, "chart update disabled for "+r.cls.Environment.String())
		r.skip(domain.StageReleased, "chart release requires a chart update")
	case !policy.ReleaseChart:
		if r.step(ctx, domain.StageChartUpdated, r.updateChart) {
			r.skip(domain.StageReleased, "chart release disabled for "+r.cls.Environment.String())
		}
	default:
		_ = r.step(ctx, domain.StageChartUpdated, r.updateChart) &&
			r.step(ctx, domain.StageReleased, r.releaseChart)
	}

	if !r.result.Failed() {
		if err := r.tagRelease(ctx); err != nil {
			r.fail(r.result.Stage, err)
		}
	}
	return r.finish()
}

// step runs fn as stage unless the run is cancelled. It records the outcome
// and reports whether the run may continue.
func (r *run) step(ctx context.Context, stage domain.Stage, fn func(context.Context) error) bool {
	if err := ctx.Err(); err != nil {
		r.fail(stage, errors.Wrap(err, errors.CodeCancelled, fmt.Sprintf("run cancelled before %s", stage)))
		return false
	}

	started := r.o.now()
	err := fn(ctx)
	finished := r.o.now()

	rec := domain.StageRecord{
		Stage:      stage,
		Status:     domain.StageStatusOK,
		StartedAt:  started,
		FinishedAt: finished,
		Duration:   finished.Sub(started),
	}
	if err != nil {
		if ctx.Err() != nil && errors.GetCode(err) == errors.CodeUnknown {
			err = errors.Wrap(err, errors.CodeCancelled, fmt.Sprintf("%s cancelled", stage))
		}
		rec.Status = domain.StageStatusFailed
		rec.Message = err.Error()
		r.result.Stages = append(r.result.Stages, rec)
		r.fail(stage, err)
		return false
	}

	r.result.Stages = append(r.result.Stages, rec)
	r.result.Stage = stage
	r.logger.Info("stage completed", "stage", stage, "duration", rec.Duration)
	return true
}

func (r *run) skip(stage domain.Stage, reason string) {
	now := r.o.now()
	r.result.Stages = append(r.result.Stages, domain.StageRecord{
		Stage:      stage,
		Status:     domain.StageStatusSkipped,
		StartedAt:  now,
		FinishedAt: now,
		Message:    reason,
	})
	r.logger.Info("stage skipped", "stage", stage, "reason", reason)
}

func (r *run) fail(stage domain.Stage, err error) {
	code := errors.GetCode(err)
	r.result.Status = domain.RunStatusFailed
	r.result.Stage = stage
	r.result.Error = &domain.RunError{
		Stage:   stage,
		Code:    string(code),
		Message: err.Error(),
	}
	r.logger.Error("stage failed", "stage", stage, "code", code, "error", err)
}

func (r *run) finish() *domain.RunResult {
	if r.result.Status == "" {
		r.result.Status = domain.RunStatusDone
	}
	state := domain.StageDone
	if r.result.Failed() {
		state = domain.StageFailed
	}
	r.logger.Info("pipeline finished", "state", state, "stage", r.result.Stage, "noop", r.result.NoOp)
	return r.result
}

func (r *run) classify(_ context.Context) error {
	cls, err := r.o.stages.Classifier.Classify(r.req.Ref())
	if err != nil {
		return err
	}
	r.cls = cls
	r.result.Environment = cls.Environment
	r.logger = r.logger.With("environment", cls.Environment)
	return nil
}

func (r *run) version(ctx context.Context) error {
	res, err := r.o.stages.Versioner.Resolve(ctx, r.cls, r.req)
	if err != nil {
		return err
	}
	r.res = res
	if res.NoOp {
		r.result.NoOp = true
		return nil
	}
	info := res.Info()
	if info == nil {
		return errors.New(errors.CodeInternal, "version resolution returned no version")
	}
	r.result.Version = info
	r.logger = r.logger.With("version", info.Version)
	return nil
}

func (r *run) build(ctx context.Context) error {
	artifact, err := r.o.stages.Builder.Build(ctx, imagebuild.Request{
		Environment: r.cls.Environment,
		Version:     r.result.Version.Version,
		Commit:      r.req.Commit(),
		Branch:      branchName(r.cls),
		Issue:       r.cls.Issue,
		Timestamp:   r.req.Timestamp(),
		Build:       r.req.Build(),
		Source:      r.req.Repository().URL,
		Dir:         r.o.dir,
	})
	if err != nil {
		return err
	}
	r.artifact = artifact
	r.result.Build = &artifact
	return nil
}

func (r *run) updateChart(ctx context.Context) error {
	c := r.o.cfg.Chart
	upd, err := r.o.stages.Updater.Update(ctx, chart.UpdateRequest{
		Repository:     c.Repository,
		Branch:         c.Branch,
		Path:           c.Path,
		ValuesFile:     c.ValuesFile,
		HostKey:        c.HostKey,
		App:            r.o.cfg.App,
		Version:        r.result.Version.Version,
		ImageTag:       r.artifact.PrimaryTag(),
		Classification: r.cls,
		Timestamp:      r.req.Timestamp(),
	})
	if err != nil {
		return err
	}
	r.update = upd
	r.result.Chart = &upd.ChartUpdate
	return nil
}

func (r *run) releaseChart(ctx context.Context) error {
	rel, err := r.o.stages.Releaser.Release(ctx, chart.ReleaseRequest{
		FS:        r.update.FS,
		Path:      r.o.cfg.Chart.Path,
		Version:   r.result.Version.Version,
		Revision:  r.req.Commit(),
		Registry:  r.o.cfg.Chart.Registry,
		Timestamp: r.req.Timestamp(),
	})
	if err != nil {
		return err
	}
	r.result.Release = &rel
	return nil
}

// tagRelease tags the commit of a latest run with its version. Without the
// tag the next run would resolve the same version again.
func (r *run) tagRelease(ctx context.Context) error {
	if r.cls.Environment != domain.EnvironmentLatest || r.o.stages.Tagger == nil {
		return nil
	}
	tag, err := r.o.stages.Tagger.TagRelease(ctx, r.result.Version.Version, r.req.Commit(), r.req.Timestamp())
	if err != nil {
		return err
	}
	r.result.Tag = tag
	r.logger.Info("release tagged", "tag", tag)
	return nil
}

// branchName is the value of the {branch} image tag placeholder.
func branchName(cls environment.Classification) string {
	if cls.Kind == environment.KindPull {
		return "pr-" + cls.Name
	}
	return cls.Name
}
