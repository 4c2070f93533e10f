package paths

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
)

// Environment variable names
const (
	EnvCacheDir  = "PREFIXER_CACHE_DIR"
	EnvConfigDir = "PREFIXER_CONFIG_DIR"
	EnvStateDir  = "PREFIXER_STATE_DIR"
)

// Fixed layout names. These are part of the on-disk contract with other
// conda tooling and are not configurable.
const (
	AppDirName      = "prefixer"
	CondaMetaDir    = "conda-meta"
	PackageCacheDir = "pkgs"
	ConfigFileName  = "config.toml"
	LogFileName     = "prefixer.log"
)

// CacheDir returns the package cache directory.
func CacheDir() string {
	if dir := os.Getenv(EnvCacheDir); dir != "" {
		return expandHome(dir)
	}
	return filepath.Join(xdg.CacheHome, AppDirName, PackageCacheDir)
}

// ConfigDir returns the configuration directory.
func ConfigDir() string {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return expandHome(dir)
	}
	return filepath.Join(xdg.ConfigHome, AppDirName)
}

// ConfigFilePath returns the default user configuration file.
func ConfigFilePath() string {
	return filepath.Join(ConfigDir(), ConfigFileName)
}

// StateDir returns the state directory.
func StateDir() string {
	if dir := os.Getenv(EnvStateDir); dir != "" {
		return expandHome(dir)
	}
	return filepath.Join(xdg.StateHome, AppDirName)
}

// LogFilePath returns the default log file location.
func LogFilePath() string {
	return filepath.Join(StateDir(), LogFileName)
}

// CondaMetaPath returns the metadata directory of a prefix.
func CondaMetaPath(prefix string) string {
	return filepath.Join(prefix, CondaMetaDir)
}

// IsWithin reports whether path is inside parent (or equal to it).
func IsWithin(path, parent string) bool {
	rel, err := filepath.Rel(filepath.Clean(parent), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
