package pipeline

import (
	"context"
	"time"

	"github.com/bcit-ltc/forge-pipeline/chart"
	"github.com/bcit-ltc/forge-pipeline/domain"
	"github.com/bcit-ltc/forge-pipeline/environment"
	"github.com/bcit-ltc/forge-pipeline/imagebuild"
	"github.com/bcit-ltc/forge-pipeline/version"
)

// Classifier maps a source ref to an environment.
type Classifier interface {
	Classify(ref string) (environment.Classification, error)
}

// Versioner resolves the version of a run.
type Versioner interface {
	Resolve(ctx context.Context, cls environment.Classification, req domain.PipelineRequest) (version.Resolution, error)
}

// Builder builds and pushes the container image.
type Builder interface {
	Build(ctx context.Context, req imagebuild.Request) (domain.BuildArtifact, error)
}

// ChartUpdater commits the version into the chart repository.
type ChartUpdater interface {
	Update(ctx context.Context, req chart.UpdateRequest) (chart.Result, error)
}

// ChartReleaser publishes the chart to an OCI registry.
type ChartReleaser interface {
	Release(ctx context.Context, req chart.ReleaseRequest) (domain.ReleaseArtifact, error)
}

// ReleaseTagger records a latest release in the source repository so the
// next history starts after it.
type ReleaseTagger interface {
	TagRelease(ctx context.Context, version, commit string, when time.Time) (string, error)
}

// Stages are the collaborators of an Orchestrator. All but Tagger are
// required.
type Stages struct {
	Classifier Classifier
	Versioner  Versioner
	Builder    Builder
	Updater    ChartUpdater
	Releaser   ChartReleaser
	Tagger     ReleaseTagger
}

var (
	_ Classifier    = (*environment.Classifier)(nil)
	_ Versioner     = (*version.Service)(nil)
	_ Builder       = (*imagebuild.DockerBuilder)(nil)
	_ ChartUpdater  = (*chart.Updater)(nil)
	_ ChartReleaser = (*chart.Releaser)(nil)
	_ ReleaseTagger = (*version.GitTagger)(nil)
)
