package prefixer

import (
	"fmt"
	"io"

	"github.com/arthur-debert/prefixer/internal/version"
	"github.com/arthur-debert/prefixer/pkg/cache"
	"github.com/arthur-debert/prefixer/pkg/config"
	"github.com/arthur-debert/prefixer/pkg/download"
	"github.com/arthur-debert/prefixer/pkg/errors"
	"github.com/arthur-debert/prefixer/pkg/installer"
	"github.com/arthur-debert/prefixer/pkg/link"
	"github.com/arthur-debert/prefixer/pkg/logging"
	"github.com/arthur-debert/prefixer/pkg/metrics"
	"github.com/arthur-debert/prefixer/pkg/reporter"
	"github.com/arthur-debert/prefixer/pkg/ui"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// globalOptions are the persistent flags plus what PersistentPreRunE
// derives from them.
type globalOptions struct {
	verbosity   int
	configFile  string
	format      string
	metricsFile string
	cacheDir    string
	linkScripts bool

	cfg          *config.Config
	outputFormat ui.Format
}

// NewRootCmd creates and returns the root command
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:     "prefixer",
		Short:   MsgRootShort,
		Long:    MsgRootLong,
		Version: version.Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Help()
			return fmt.Errorf("no command specified")
		},
		SilenceUsage:      true,
		SilenceErrors:     true,
		DisableAutoGenTag: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.CountVarP(&opts.verbosity, "verbose", "v", MsgFlagVerbose)
	flags.StringVar(&opts.configFile, "config", "", MsgFlagConfig)
	flags.StringVar(&opts.format, "format", "auto", MsgFlagFormat)
	flags.StringVar(&opts.metricsFile, "metrics-file", "", MsgFlagMetricsFile)
	flags.StringVar(&opts.cacheDir, "cache-dir", "", MsgFlagCacheDir)
	flags.BoolVar(&opts.linkScripts, "link-scripts", false, MsgFlagLinkScripts)

	rootCmd.AddCommand(newInstallCmd(opts))
	rootCmd.AddCommand(newRemoveCmd(opts))
	rootCmd.AddCommand(newListCmd(opts))
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newCompletionCmd())

	return rootCmd
}

// setup loads the configuration, with changed flags layered on top, and
// configures logging from it.
func (o *globalOptions) setup(cmd *cobra.Command) error {
	format, err := ui.ParseFormat(o.format)
	if err != nil {
		return errors.Wrap(err, errors.ErrInvalidInput, "invalid --format")
	}
	o.outputFormat = format

	overrides := make(map[string]interface{})
	if cmd.Flags().Changed("cache-dir") {
		overrides["cache.dir"] = o.cacheDir
	}
	if cmd.Flags().Changed("link-scripts") {
		overrides["install.execute_link_scripts"] = o.linkScripts
	}

	cfg, err := config.Load(config.LoadOptions{File: o.configFile, Overrides: overrides})
	if err != nil {
		return err
	}
	o.cfg = cfg

	logging.SetupLogger(o.verbosity, cfg.LogFile())
	log.Debug().Str("command", cmd.Name()).Msg("Command started")
	return nil
}

// session is one configured installer plus the reporters attached to it.
type session struct {
	installer installer.Installer
	printer   *ui.Printer
	registry  *prometheus.Registry
	metrics   string
}

// newSession maps the configuration onto an installer. Progress goes to
// out unless JSON output was asked for.
func (o *globalOptions) newSession(out io.Writer) (*session, error) {
	cfg := o.cfg
	codesign, err := link.ParseAppleCodeSignBehavior(cfg.Install.AppleCodeSign)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigValid, "invalid install.apple_codesign")
	}

	s := &session{printer: ui.NewPrinter(out, o.outputFormat), metrics: o.metricsFile}

	reporters := []reporter.Reporter{reporter.NewLogReporter(logging.GetLogger("progress"))}
	if s.printer.Format() != ui.FormatJSON {
		reporters = append(reporters, ui.NewTerminalReporter(out, s.printer.Format()))
	}
	if o.metricsFile != "" {
		s.registry = prometheus.NewRegistry()
		m, err := metrics.NewReporter(s.registry)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrInternal, "failed to register metrics")
		}
		reporters = append(reporters, m)
	}

	inst := installer.New()
	inst.SetDownloadClient(download.NewClient(download.Options{
		Timeout:   cfg.Download.Timeout,
		RateLimit: cfg.Download.RateLimit,
	})).
		SetRetryPolicy(download.NewRetryPolicy(cfg.Download.MaxRetries, cfg.Download.InitialBackoff)).
		SetPackageCache(cache.New(cfg.CacheDir())).
		SetIOConcurrencyLimit(cfg.Install.IOConcurrency).
		SetExecuteLinkScripts(cfg.Install.ExecuteLinkScripts).
		SetAppleCodeSignBehavior(codesign).
		SetLinkOptions(installer.LinkOptions{
			AllowSymbolicLinks: cfg.Link.AllowSymbolicLinks,
			AllowHardLinks:     cfg.Link.AllowHardLinks,
			AllowRefLinks:      cfg.Link.AllowRefLinks,
		}).
		SetReporter(reporter.Multi(reporters...))
	s.installer = inst
	return s, nil
}

// flushMetrics writes the metrics textfile when one was requested.
func (s *session) flushMetrics() error {
	if s.registry == nil {
		return nil
	}
	if err := metrics.WriteTextfile(s.metrics, s.registry); err != nil {
		return errors.Wrapf(err, errors.ErrIO, "failed to write metrics to %s", s.metrics).
			WithDetail(errors.DetailPath, s.metrics)
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: MsgVersionShort,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), MsgVersionFormat, version.Version, version.Commit, version.Date)
		},
	}
}

func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: MsgCompletionShort,
		Long: `To load completions:

Bash:
  $ source <(prefixer completion bash)

Zsh:
  $ prefixer completion zsh > "${fpath[1]}/_prefixer"

Fish:
  $ prefixer completion fish | source

PowerShell:
  PS> prefixer completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		// Completion must work without a config or log file.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			return GenCompletion(cmd.Root(), args[0], cmd.OutOrStdout())
		},
	}
}

// GenCompletion writes the completion script for shell.
func GenCompletion(root *cobra.Command, shell string, out io.Writer) error {
	switch shell {
	case "bash":
		return root.GenBashCompletionV2(out, true)
	case "zsh":
		return root.GenZshCompletion(out)
	case "fish":
		return root.GenFishCompletion(out, true)
	case "powershell":
		return root.GenPowerShellCompletionWithDesc(out)
	}
	return errors.Newf(errors.ErrInvalidInput, "unsupported shell %q", shell)
}
