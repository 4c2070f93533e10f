// Package paths provides centralized path handling for prefixer.
//
// It resolves the XDG directories prefixer uses for its package cache,
// configuration and state, and holds the fixed names of the per-prefix
// metadata layout.
//
// # Environment Variables
//
//   - PREFIXER_CACHE_DIR: Override the package cache (default: $XDG_CACHE_HOME/prefixer/pkgs)
//   - PREFIXER_CONFIG_DIR: Override the config directory (default: $XDG_CONFIG_HOME/prefixer)
//   - PREFIXER_STATE_DIR: Override the state directory (default: $XDG_STATE_HOME/prefixer)
package paths
