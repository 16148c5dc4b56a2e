package cli

import (
	"github.com/spf13/cobra"

	"github.com/bcit-ltc/forge-pipeline/domain"
)

type versionOutput struct {
	Environment domain.Environment  `json:"environment"`
	NoOp        bool                `json:"noop"`
	Version     *domain.VersionInfo `json:"version,omitempty"`
}

func (a *app) newNextVersionCommand() *cobra.Command {
	f := &requestFlags{}
	cmd := &cobra.Command{
		Use:   "next-version",
		Short: "Print the version the next run of a ref would release",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			req, err := f.request()
			if err != nil {
				return err
			}
			cfg, err := a.loadConfig(ctx)
			if err != nil {
				return err
			}
			classifier, err := a.classifier(cfg)
			if err != nil {
				return err
			}
			cls, err := classifier.Classify(req.Ref())
			if err != nil {
				return err
			}
			svc, err := a.versionService(ctx, cfg)
			if err != nil {
				return err
			}
			res, err := svc.Resolve(ctx, cls, req)
			if err != nil {
				return err
			}

			return writeJSON(cmd.OutOrStdout(), versionOutput{
				Environment: cls.Environment,
				NoOp:        res.NoOp,
				Version:     res.Info(),
			})
		},
	}
	cmd.Flags().StringVar(&f.ref, "ref", "", "source ref, e.g. refs/heads/main")
	cmd.Flags().StringVar(&f.commit, "commit", "", "commit sha of the ref")
	_ = cmd.MarkFlagRequired("ref")
	_ = cmd.MarkFlagRequired("commit")
	return cmd
}
