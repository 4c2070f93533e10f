// Package config loads prefixer's settings. Values are layered, later
// layers winning: the embedded defaults, the user config file (TOML or
// YAML), PREFIXER_* environment variables, and finally explicit overrides
// such as command-line flags.
package config
