package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/arthur-debert/prefixer/pkg/errors"
	"github.com/arthur-debert/prefixer/pkg/logging"
	"github.com/arthur-debert/prefixer/pkg/paths"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables read as configuration.
const EnvPrefix = "PREFIXER_"

// Apple code-sign behaviors accepted by install.apple_codesign.
const (
	CodeSignDoNothing = "do-nothing"
	CodeSignIgnore    = "ignore"
	CodeSignFail      = "fail"
)

// Config is the complete prefixer configuration.
type Config struct {
	Install  InstallConfig  `koanf:"install"`
	Link     LinkConfig     `koanf:"link"`
	Cache    CacheConfig    `koanf:"cache"`
	Download DownloadConfig `koanf:"download"`
	Log      LogConfig      `koanf:"log"`
}

// InstallConfig controls the install pipeline.
type InstallConfig struct {
	IOConcurrency      int    `koanf:"io_concurrency"`
	ExecuteLinkScripts bool   `koanf:"execute_link_scripts"`
	AppleCodeSign      string `koanf:"apple_codesign"`
}

// LinkConfig holds link strategy preferences. Nil means "when possible".
type LinkConfig struct {
	AllowSymbolicLinks *bool `koanf:"allow_symbolic_links"`
	AllowHardLinks     *bool `koanf:"allow_hard_links"`
	AllowRefLinks      *bool `koanf:"allow_ref_links"`
}

// CacheConfig locates the package cache.
type CacheConfig struct {
	Dir string `koanf:"dir"`
}

// DownloadConfig tunes the download client and its retry policy.
type DownloadConfig struct {
	Timeout        time.Duration `koanf:"timeout"`
	MaxRetries     int           `koanf:"max_retries"`
	InitialBackoff time.Duration `koanf:"initial_backoff"`
	RateLimit      int           `koanf:"rate_limit"`
}

// LogConfig controls the rotating log file.
type LogConfig struct {
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
}

// LoadOptions selects the sources Load reads.
type LoadOptions struct {
	// File is an explicit config file. When empty the default location is
	// tried and silently skipped if missing.
	File string
	// Overrides are flat dotted keys applied last.
	Overrides map[string]interface{}
	// SkipEnv disables reading PREFIXER_* variables.
	SkipEnv bool
}

// Load builds the configuration from all layers and validates it.
func Load(opts LoadOptions) (*Config, error) {
	logger := logging.GetLogger("config")
	k := koanf.New(".")

	// 1. Embedded defaults
	if err := k.Load(&rawBytesProvider{bytes: defaultConfig}, toml.Parser()); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigParse, "failed to load defaults")
	}

	// 2. User config file
	configFile := opts.File
	explicit := configFile != ""
	if !explicit {
		configFile = paths.ConfigFilePath()
	}
	if _, err := os.Stat(configFile); err == nil {
		if err := k.Load(file.Provider(configFile), parserFor(configFile)); err != nil {
			return nil, errors.Wrapf(err, errors.ErrConfigParse, "failed to load config from %s", configFile).
				WithDetail(errors.DetailPath, configFile)
		}
		logger.Debug().Str("file", configFile).Msg("Loaded config file")
	} else if explicit {
		return nil, errors.Wrapf(err, errors.ErrConfigLoad, "config file %s not readable", configFile).
			WithDetail(errors.DetailPath, configFile)
	}

	// 3. Environment
	if !opts.SkipEnv {
		if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
			return nil, errors.Wrap(err, errors.ErrConfigLoad, "failed to load environment")
		}
	}

	// 4. Explicit overrides
	if len(opts.Overrides) > 0 {
		if err := k.Load(confmap.Provider(opts.Overrides, "."), nil); err != nil {
			return nil, errors.Wrap(err, errors.ErrConfigLoad, "failed to apply overrides")
		}
	}

	var cfg Config
	unmarshalConf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	}
	if err := k.UnmarshalWithConf("", &cfg, unmarshalConf); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigParse, "failed to unmarshal configuration")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps PREFIXER_DOWNLOAD_MAX_RETRIES to download.max_retries: the
// first segment is the section, the rest is the key.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, key, found := strings.Cut(s, "_")
	if !found {
		return s
	}
	return section + "." + key
}

func parserFor(path string) koanf.Parser {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser()
	default:
		return toml.Parser()
	}
}

// Validate rejects values the installer cannot work with.
func (c *Config) Validate() error {
	if c.Install.IOConcurrency < 0 {
		return errors.Newf(errors.ErrConfigValid, "install.io_concurrency must not be negative, got %d", c.Install.IOConcurrency)
	}
	switch c.Install.AppleCodeSign {
	case CodeSignDoNothing, CodeSignIgnore, CodeSignFail:
	default:
		return errors.Newf(errors.ErrConfigValid, "install.apple_codesign must be one of %s, %s, %s; got %q",
			CodeSignDoNothing, CodeSignIgnore, CodeSignFail, c.Install.AppleCodeSign)
	}
	if c.Download.MaxRetries < 0 {
		return errors.Newf(errors.ErrConfigValid, "download.max_retries must not be negative, got %d", c.Download.MaxRetries)
	}
	if c.Download.Timeout < 0 || c.Download.InitialBackoff < 0 {
		return errors.New(errors.ErrConfigValid, "download durations must not be negative")
	}
	if c.Download.RateLimit < 0 {
		return errors.Newf(errors.ErrConfigValid, "download.rate_limit must not be negative, got %d", c.Download.RateLimit)
	}
	return nil
}

// CacheDir returns the configured cache directory or the XDG default.
func (c *Config) CacheDir() string {
	if c.Cache.Dir != "" {
		return c.Cache.Dir
	}
	return paths.CacheDir()
}

// LogFile returns logging options derived from the config.
func (c *Config) LogFile() logging.FileOptions {
	return logging.FileOptions{
		Path:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
	}
}
