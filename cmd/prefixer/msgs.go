package prefixer

// Command descriptions
const (
	MsgRootShort = "Install conda packages into a prefix"
	MsgRootLong  = `prefixer reconciles a prefix directory with a list of conda packages.

Packages that are no longer wanted are unlinked, missing ones are fetched
into a shared package cache and linked into the prefix. Packages that are
already installed in the wanted build are left alone.`
	MsgInstallShort = "Make a prefix contain exactly the packages of a manifest"
	MsgInstallLong  = `Install reads a manifest (TOML, YAML or JSON, chosen by file extension)
listing package records and changes the prefix so it holds exactly those
packages. Installed packages missing from the manifest are removed.`
	MsgRemoveShort     = "Remove packages from a prefix"
	MsgListShort       = "List the packages installed in a prefix"
	MsgVersionShort    = "Print version information"
	MsgCompletionShort = "Generate shell completion script"

	// Flags
	MsgFlagVerbose     = "Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)"
	MsgFlagConfig      = "Config file (default $XDG_CONFIG_HOME/prefixer/config.toml)"
	MsgFlagFormat      = "Output format: auto, term, text or json"
	MsgFlagMetricsFile = "Write Prometheus metrics to this file when done"
	MsgFlagPrefix      = "Prefix directory to operate on"
	MsgFlagDryRun      = "Show what would change without touching the prefix"
	MsgFlagReinstall   = "Reinstall this package even if it is up to date (repeatable)"
	MsgFlagLinkScripts = "Run post-link and pre-unlink scripts"
	MsgFlagCacheDir    = "Package cache directory"
	MsgFlagMarkdown    = "Print the list as a markdown table"

	// Messages
	MsgVersionFormat = "prefixer version %s\n  commit: %s\n  built:  %s\n"
	MsgErrNoPrefix   = "--prefix is required"
	MsgErrNotInstall = "package %s is not installed in %s"
)
