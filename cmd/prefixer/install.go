package prefixer

import (
	"github.com/arthur-debert/prefixer/pkg/errors"
	"github.com/arthur-debert/prefixer/pkg/installer"
	"github.com/arthur-debert/prefixer/pkg/manifest"
	"github.com/arthur-debert/prefixer/pkg/types"
	"github.com/spf13/cobra"
)

func newInstallCmd(opts *globalOptions) *cobra.Command {
	var (
		prefix    string
		dryRun    bool
		reinstall []string
	)

	cmd := &cobra.Command{
		Use:   "install --prefix PREFIX MANIFEST",
		Short: MsgInstallShort,
		Long:  MsgInstallLong,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if prefix == "" {
				return errors.New(errors.ErrInvalidInput, MsgErrNoPrefix)
			}
			desired, err := manifest.Load(args[0])
			if err != nil {
				return err
			}
			s, err := opts.newSession(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			s.installer.SetReinstallPackages(reinstall...)
			return s.apply(cmd, prefix, desired, dryRun)
		},
	}

	cmd.Flags().StringVarP(&prefix, "prefix", "p", "", MsgFlagPrefix)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, MsgFlagDryRun)
	cmd.Flags().StringArrayVar(&reinstall, "reinstall", nil, MsgFlagReinstall)
	_ = cmd.MarkFlagDirname("prefix")

	return cmd
}

// apply plans or runs the transaction that turns prefix into desired and
// prints the outcome.
func (s *session) apply(cmd *cobra.Command, prefix string, desired []types.RepoDataRecord, dryRun bool) error {
	ctx := cmd.Context()
	if dryRun {
		tx, err := s.installer.Plan(ctx, prefix, desired)
		if err != nil {
			return err
		}
		return s.printer.Transaction(tx)
	}

	result, err := s.installer.Install(ctx, prefix, desired)
	if metricsErr := s.flushMetrics(); err == nil {
		err = metricsErr
	}
	if err != nil {
		return err
	}
	return s.printOutcome(result)
}

func (s *session) printOutcome(result *installer.InstallationResult) error {
	if len(result.Transaction.Operations) == 0 {
		return s.printer.Transaction(result.Transaction)
	}
	return s.printer.Outcome(result.ClobberedPaths, result.PreLinkScriptResult, result.PostLinkScriptResult)
}
