package prefixer

import (
	"github.com/arthur-debert/prefixer/pkg/datastore"
	"github.com/arthur-debert/prefixer/pkg/errors"
	"github.com/arthur-debert/prefixer/pkg/ui"
	"github.com/spf13/cobra"
)

func newListCmd(opts *globalOptions) *cobra.Command {
	var (
		prefix   string
		markdown bool
	)

	cmd := &cobra.Command{
		Use:   "list --prefix PREFIX",
		Short: MsgListShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if prefix == "" {
				return errors.New(errors.ErrInvalidInput, MsgErrNoPrefix)
			}
			records, err := datastore.NewOS(prefix).Scan()
			if err != nil {
				return err
			}
			return ui.NewPrinter(cmd.OutOrStdout(), opts.outputFormat).Records(records, markdown)
		},
	}

	cmd.Flags().StringVarP(&prefix, "prefix", "p", "", MsgFlagPrefix)
	cmd.Flags().BoolVar(&markdown, "markdown", false, MsgFlagMarkdown)
	_ = cmd.MarkFlagDirname("prefix")

	return cmd
}
