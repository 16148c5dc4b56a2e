package cli

import (
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bcit-ltc/forge-pipeline/domain"
	"github.com/bcit-ltc/forge-pipeline/errors"
)

type requestFlags struct {
	ref        string
	commit     string
	repoURL    string
	repoName   string
	context    string
	dockerfile string
	buildArgs  []string
	timestamp  string
}

func (f *requestFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.ref, "ref", "", "source ref, e.g. refs/heads/main")
	flags.StringVar(&f.commit, "commit", "", "commit sha of the ref")
	flags.StringVar(&f.repoURL, "repo-url", "", "source repository URL")
	flags.StringVar(&f.repoName, "repo-name", "", "source repository name (default: last element of --repo-url)")
	flags.StringVar(&f.context, "context", ".", "build context, relative to --dir")
	flags.StringVar(&f.dockerfile, "dockerfile", "Dockerfile", "Dockerfile, relative to --dir")
	flags.StringArrayVar(&f.buildArgs, "build-arg", nil, "build argument KEY=VALUE (repeatable)")
	flags.StringVar(&f.timestamp, "timestamp", "", "pipeline start time in RFC 3339 (default: now)")
}

// request validates the flags into a PipelineRequest.
func (f *requestFlags) request() (domain.PipelineRequest, error) {
	ts := time.Now().UTC()
	if f.timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, f.timestamp)
		if err != nil {
			return domain.PipelineRequest{}, errors.Wrap(err, errors.CodeInvalidInput, "invalid --timestamp")
		}
		ts = parsed
	}

	args := make(map[string]string, len(f.buildArgs))
	for _, kv := range f.buildArgs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return domain.PipelineRequest{}, errors.Newf(errors.CodeInvalidInput, "invalid --build-arg %q: expected KEY=VALUE", kv)
		}
		args[k] = v
	}

	return domain.NewPipelineRequest(domain.RequestInput{
		Ref:        f.ref,
		Commit:     f.commit,
		Repository: domain.Repository{URL: f.repoURL, Name: f.repoName},
		Build: domain.BuildParams{
			Context:    f.context,
			Dockerfile: f.dockerfile,
			Args:       args,
		},
		Timestamp: ts,
	})
}

func (a *app) newRunCommand() *cobra.Command {
	f := &requestFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline for a ref",
		Example: `  forge-pipeline run --ref refs/heads/main --commit $GITHUB_SHA \
    --repo-url https://github.com/bcit-ltc/web --build-arg NODE_ENV=production`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, f)
		},
	}
	f.register(cmd)
	return cmd
}

func (a *app) run(cmd *cobra.Command, f *requestFlags) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	req, err := f.request()
	if err != nil {
		return report(out, failure(err))
	}

	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return report(out, failure(err))
	}

	orch, closeSecrets, err := a.orchestrator(ctx, cfg)
	if err != nil {
		return report(out, failure(err))
	}
	defer func() {
		if err := closeSecrets(); err != nil {
			a.logger.Warn("closing secret providers", "error", err)
		}
	}()

	return report(out, orch.Run(ctx, req))
}

// failure is the result of a run that could not start.
func failure(err error) *domain.RunResult {
	return &domain.RunResult{
		Status: domain.RunStatusFailed,
		Stage:  domain.StageStart,
		Error: &domain.RunError{
			Stage:   domain.StageStart,
			Code:    string(errors.GetCode(err)),
			Message: err.Error(),
		},
		Stages: []domain.StageRecord{},
	}
}

func report(w io.Writer, res *domain.RunResult) error {
	if err := writeJSON(w, res); err != nil {
		return err
	}
	if res.Failed() {
		return errRunFailed
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
