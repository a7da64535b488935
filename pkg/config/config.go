// Package config loads supplychain settings from defaults, an optional TOML
// file, SUPPLYCHAIN_* environment variables and command-line flags, in that
// order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	str2duration "github.com/xhit/go-str2duration/v2"

	"github.com/matzehuels/supplychain/pkg/cache"
	apperrors "github.com/matzehuels/supplychain/pkg/errors"
	"github.com/matzehuels/supplychain/pkg/httputil"
)

const (
	// AppName names the config and cache directories.
	AppName = "supplychain"

	// EnvPrefix prefixes environment overrides, e.g. SUPPLYCHAIN_CACHE_MAX_AGE.
	EnvPrefix = "SUPPLYCHAIN"
)

// API response cache backends.
const (
	BackendNone  = cache.BackendNone
	BackendFile  = cache.BackendFile
	BackendRedis = cache.BackendRedis
)

// Duration accepts Go durations as well as day and week units ("1w", "2d 6h").
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return str2duration.String(time.Duration(d)) }

// ParseDuration parses human durations such as "48h", "1w" or "1d 6h".
func ParseDuration(s string) (Duration, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if s == "" {
		return 0, nil
	}
	d, err := str2duration.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return Duration(d), nil
}

// Retry mirrors [httputil.Policy] for configuration files.
type Retry struct {
	MaxAttempts int      `mapstructure:"max_attempts"`
	BaseDelay   Duration `mapstructure:"base_delay"`
	Multiplier  float64  `mapstructure:"multiplier"`
	MaxDelay    Duration `mapstructure:"max_delay"`
	MinInterval Duration `mapstructure:"min_interval"`
}

// Policy converts the settings into a retry policy.
func (r Retry) Policy() httputil.Policy {
	return httputil.Policy{
		MaxAttempts: r.MaxAttempts,
		BaseDelay:   r.BaseDelay.Std(),
		Multiplier:  r.Multiplier,
		MaxDelay:    r.MaxDelay.Std(),
		MinInterval: r.MinInterval.Std(),
	}
}

// Config holds every runtime setting.
type Config struct {
	CacheDir        string   `mapstructure:"cache_dir"`
	CacheMaxAge     Duration `mapstructure:"cache_max_age"`
	AutoUpdate      bool     `mapstructure:"auto_update"`
	Concurrency     int      `mapstructure:"concurrency"`
	DumpURL         string   `mapstructure:"dump_url"`
	APIURL          string   `mapstructure:"api_url"`
	UserAgent       string   `mapstructure:"user_agent"`
	HTTPTimeout     Duration `mapstructure:"http_timeout"`
	DownloadTimeout Duration `mapstructure:"download_timeout"`
	APICache        string   `mapstructure:"api_cache"`
	RedisURL        string   `mapstructure:"redis_url"`
	LogFile         string   `mapstructure:"log_file"`
	Retry           Retry    `mapstructure:"retry"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

// Options controls where Load looks for settings.
type Options struct {
	// Path is an explicit config file. When empty, DefaultPath is tried and
	// silently skipped if missing.
	Path string

	// Flags are bound by their names with dashes turned into underscores
	// ("cache-max-age" sets cache_max_age). Only flags the user set override
	// other sources.
	Flags *pflag.FlagSet

	// Env looks up environment variables; nil means os.LookupEnv.
	Env func(string) (string, bool)
}

// Load resolves the configuration and validates it.
func Load(opts Options) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	path := opts.Path
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			var pathErr *os.PathError
			if explicit || !errors.As(err, &pathErr) {
				return nil, apperrors.Wrap(apperrors.ErrCodeInvalidConfig, err, "read config %s", path)
			}
		} else {
			path = v.ConfigFileUsed()
		}
	}

	bindEnv(v, opts.Env)
	if opts.Flags != nil {
		bindFlags(v, opts.Flags)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInvalidConfig, err, "decode config")
	}
	cfg.CacheDir = expandHome(cfg.CacheDir)
	if cfg.CacheDir == "" {
		cfg.CacheDir = DefaultCacheDir()
	}
	if _, err := os.Stat(path); err == nil {
		cfg.File = path
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cache_dir", "")
	v.SetDefault("cache_max_age", "48h")
	v.SetDefault("auto_update", true)
	v.SetDefault("concurrency", 8)
	v.SetDefault("dump_url", "https://static.crates.io/db-dump.tar.gz")
	v.SetDefault("api_url", "https://crates.io")
	v.SetDefault("user_agent", "")
	v.SetDefault("http_timeout", "30s")
	v.SetDefault("download_timeout", "15m")
	v.SetDefault("api_cache", BackendNone)
	v.SetDefault("redis_url", "")
	v.SetDefault("log_file", "")

	p := httputil.DefaultPolicy()
	v.SetDefault("retry.max_attempts", p.MaxAttempts)
	v.SetDefault("retry.base_delay", p.BaseDelay.String())
	v.SetDefault("retry.multiplier", p.Multiplier)
	v.SetDefault("retry.max_delay", p.MaxDelay.String())
	v.SetDefault("retry.min_interval", p.MinInterval.String())
}

// keys lists every setting that can be overridden from the environment.
var keys = []string{
	"cache_dir", "cache_max_age", "auto_update", "concurrency", "dump_url",
	"api_url", "user_agent", "http_timeout", "download_timeout", "api_cache",
	"redis_url", "log_file", "retry.max_attempts", "retry.base_delay",
	"retry.multiplier", "retry.max_delay", "retry.min_interval",
}

// bindEnv copies SUPPLYCHAIN_* variables into v. Nested keys use an
// underscore: SUPPLYCHAIN_RETRY_MAX_ATTEMPTS.
func bindEnv(v *viper.Viper, lookup func(string) (string, bool)) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	for _, key := range keys {
		name := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if val, ok := lookup(name); ok {
			v.Set(key, val)
		}
	}
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) {
	fs.Visit(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if isKnown(key) {
			v.Set(key, f.Value.String())
		}
	})
}

func isKnown(key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	target := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != target {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return ParseDuration(v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("unsupported duration type %T", v)
		}
	}
}

// Validate rejects settings the tool cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Concurrency <= 0:
		return apperrors.New(apperrors.ErrCodeInvalidConfig, "concurrency must be positive, got %d", c.Concurrency)
	case c.CacheMaxAge <= 0:
		return apperrors.New(apperrors.ErrCodeInvalidConfig, "cache_max_age must be positive")
	case c.HTTPTimeout < 0, c.DownloadTimeout < 0:
		return apperrors.New(apperrors.ErrCodeInvalidConfig, "timeouts must not be negative")
	case c.Retry.BaseDelay < 0, c.Retry.MaxDelay < 0, c.Retry.MinInterval < 0:
		return apperrors.New(apperrors.ErrCodeInvalidConfig, "retry delays must not be negative")
	case c.Retry.MaxAttempts < 1:
		return apperrors.New(apperrors.ErrCodeInvalidConfig, "retry.max_attempts must be at least 1")
	}

	switch c.APICache {
	case BackendNone, BackendFile:
	case BackendRedis:
		if c.RedisURL == "" {
			return apperrors.New(apperrors.ErrCodeInvalidConfig, "api_cache = redis requires redis_url")
		}
	default:
		return apperrors.New(apperrors.ErrCodeInvalidConfig, "unknown api_cache backend %q (want none, file or redis)", c.APICache)
	}

	for name, u := range map[string]string{"dump_url": c.DumpURL, "api_url": c.APIURL} {
		if err := apperrors.ValidateURL(u); err != nil {
			return apperrors.Wrap(apperrors.ErrCodeInvalidConfig, err, "%s", name)
		}
	}
	return nil
}

// CacheOptions returns the API response cache settings for [cache.Open].
func (c *Config) CacheOptions() cache.Options {
	return cache.Options{Backend: c.APICache, Dir: c.APICacheDir(), RedisURL: c.RedisURL}
}

// SnapshotDir is where the registry dump is kept.
func (c *Config) SnapshotDir() string { return filepath.Join(c.CacheDir, "snapshot") }

// APICacheDir is where file-cached API responses are kept.
func (c *Config) APICacheDir() string { return filepath.Join(c.CacheDir, "api") }

// DefaultPath returns $XDG_CONFIG_HOME/supplychain/config.toml, falling back
// to ~/.config. It returns "" if no home directory is known.
func DefaultPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, AppName, "config.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", AppName, "config.toml")
}

// DefaultCacheDir returns $XDG_CACHE_HOME/supplychain, falling back to
// ~/.cache and then the system temp directory.
func DefaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), AppName)
	}
	return filepath.Join(home, ".cache", AppName)
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
