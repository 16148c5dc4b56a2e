// Package cli implements the forge-pipeline command line.
//
// Commands write machine-readable JSON to stdout and logs to stderr. A run
// that fails exits with status 1 after printing its result.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bcit-ltc/forge-pipeline/config"
	"github.com/bcit-ltc/forge-pipeline/errors"
	"github.com/bcit-ltc/forge-pipeline/executor"
	"github.com/bcit-ltc/forge-pipeline/oci"
	"github.com/bcit-ltc/forge-pipeline/pipeline"
	"github.com/bcit-ltc/forge-pipeline/secrets"
	"github.com/bcit-ltc/forge-pipeline/version"
)

// errRunFailed marks a failure whose result was already printed.
var errRunFailed = errors.New(errors.CodeExecutionFailed, "pipeline run failed")

// Deps replaces collaborators that reach outside the process. Zero fields
// use the real implementations.
type Deps struct {
	// Runner runs docker.
	Runner executor.Runner

	// Providers replaces the default secret providers.
	Providers []secrets.Provider

	// Targets opens chart registry repositories.
	Targets oci.TargetFactory

	// History replaces the git history of the checkout.
	History version.HistorySource

	// Tagger replaces the release tagger of the checkout.
	Tagger pipeline.ReleaseTagger
}

type app struct {
	deps       Deps
	logger     *slog.Logger
	dir        string
	configPath string
}

// NewRootCommand builds the command tree.
func NewRootCommand(deps Deps) *cobra.Command {
	a := &app{deps: deps, logger: slog.New(slog.DiscardHandler)}

	root := &cobra.Command{
		Use:   "forge-pipeline",
		Short: "Classify, version, build and release an application",
		Long: `forge-pipeline turns a source ref into a deployment: it picks the
environment, computes the next semantic version from conventional commits,
builds and pushes the container image, updates the Helm chart repository and
publishes the chart to an OCI registry.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(cmd)
			if err != nil {
				return err
			}
			a.logger = logger
			return nil
		},
		SilenceUsage:      true,
		SilenceErrors:     true,
		DisableAutoGenTag: true,
	}

	registerLoggingFlags(root)
	root.PersistentFlags().StringVar(&a.configPath, "config", config.DefaultPath, "pipeline configuration file, relative to --dir")
	root.PersistentFlags().StringVar(&a.dir, "dir", ".", "repository checkout directory")

	root.AddCommand(a.newRunCommand(), a.newClassifyCommand(), a.newNextVersionCommand())
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer, deps Deps) int {
	root := NewRootCommand(deps)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}
