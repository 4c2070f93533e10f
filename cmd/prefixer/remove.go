package prefixer

import (
	"strings"

	"github.com/arthur-debert/prefixer/pkg/datastore"
	"github.com/arthur-debert/prefixer/pkg/errors"
	"github.com/arthur-debert/prefixer/pkg/types"
	"github.com/spf13/cobra"
)

func newRemoveCmd(opts *globalOptions) *cobra.Command {
	var (
		prefix string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "remove --prefix PREFIX NAME...",
		Short: MsgRemoveShort,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if prefix == "" {
				return errors.New(errors.ErrInvalidInput, MsgErrNoPrefix)
			}
			installed, err := datastore.NewOS(prefix).Scan()
			if err != nil {
				return err
			}
			desired, err := withoutPackages(installed, args, prefix)
			if err != nil {
				return err
			}
			s, err := opts.newSession(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			s.installer.SetInstalledPackages(installed)
			return s.apply(cmd, prefix, desired, dryRun)
		},
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if prefix == "" {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}
			installed, err := datastore.NewOS(prefix).Scan()
			if err != nil {
				return nil, cobra.ShellCompDirectiveError
			}
			var names []string
			for _, r := range installed {
				if strings.HasPrefix(r.Name, toComplete) {
					names = append(names, r.Name)
				}
			}
			return names, cobra.ShellCompDirectiveNoFileComp
		},
	}

	cmd.Flags().StringVarP(&prefix, "prefix", "p", "", MsgFlagPrefix)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, MsgFlagDryRun)
	_ = cmd.MarkFlagDirname("prefix")

	return cmd
}

// withoutPackages returns the installed records minus the named packages.
// Every name must be installed.
func withoutPackages(installed []types.PrefixRecord, names []string, prefix string) ([]types.RepoDataRecord, error) {
	drop := make(map[string]bool, len(names))
	for _, name := range names {
		drop[strings.ToLower(name)] = false
	}
	desired := make([]types.RepoDataRecord, 0, len(installed))
	for _, r := range installed {
		name := r.NormalizedName()
		if _, ok := drop[name]; ok {
			drop[name] = true
			continue
		}
		desired = append(desired, r.RepoDataRecord)
	}
	for _, name := range names {
		if !drop[strings.ToLower(name)] {
			return nil, errors.Newf(errors.ErrNotFound, MsgErrNotInstall, name, prefix).
				WithDetail(errors.DetailPackage, name)
		}
	}
	return desired, nil
}
