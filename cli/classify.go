package cli

import (
	"github.com/spf13/cobra"

	"github.com/bcit-ltc/forge-pipeline/environment"
	"github.com/bcit-ltc/forge-pipeline/errors"
)

func (a *app) newClassifyCommand() *cobra.Command {
	var ref string
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Print the environment of a ref",
		Long: `Classify prints the environment a ref deploys to. Release tag pattern and
default branch come from the pipeline configuration when it exists.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			classifier, err := a.optionalClassifier(cmd)
			if err != nil {
				return err
			}
			cls, err := classifier.Classify(ref)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), cls)
		},
	}
	cmd.Flags().StringVar(&ref, "ref", "", "source ref, e.g. refs/tags/v1.2.3")
	_ = cmd.MarkFlagRequired("ref")
	return cmd
}

// optionalClassifier uses the configuration when present and the defaults
// otherwise.
func (a *app) optionalClassifier(cmd *cobra.Command) (*environment.Classifier, error) {
	cfg, err := a.loadConfig(cmd.Context())
	switch {
	case err == nil:
		return a.classifier(cfg)
	case errors.GetCode(err) == errors.CodeNotFound:
		a.logger.Debug("no pipeline configuration, using defaults", "path", a.configPath)
		return environment.NewClassifier()
	default:
		return nil, err
	}
}
