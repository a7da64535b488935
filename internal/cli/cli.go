// Package cli implements the supplychain command-line interface.
//
// The commands audit who can publish the crates.io dependencies of a Rust
// project:
//   - publishers: users and teams able to publish any dependency
//   - crates: every dependency with its publishers
//   - json: the full report as JSON or YAML
//   - lookup: publishers of explicitly named crates
//   - update: download the crates.io database dump
//   - cache: inspect or clear local data
//
// Arguments after "--" are passed to `cargo metadata`, for example
// `supplychain crates -- --manifest-path ../other/Cargo.toml`.
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging and
// --log-file to keep a rotating log on disk. Loggers are passed through
// context.Context.
package cli

import (
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/supplychain/pkg/buildinfo"
	"github.com/matzehuels/supplychain/pkg/config"
	"github.com/matzehuels/supplychain/pkg/observability"
)

// =============================================================================
// Constants
// =============================================================================

// appName is the application name used for directories and display.
const appName = config.AppName

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	// Config is loaded before any subcommand runs.
	Config *config.Config

	stderr     io.Writer
	configPath string
	closers    []io.Closer
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: newLogger(w, level),
		stderr: w,
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// Close releases resources opened while running a command, such as the log
// file.
func (c *CLI) Close() error {
	var first error
	for _, cl := range c.closers {
		if err := cl.Close(); err != nil && first == nil {
			first = err
		}
	}
	c.closers = nil
	return first
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "Audit who can publish your Rust dependencies",
		Long: `supplychain lists the people and teams who can publish the crates.io
dependencies of a Rust project, so you can see whom your build trusts.

Ownership comes from the crates.io database dump, cached locally and
refreshed when older than --cache-max-age, with the crates.io API filling
in crates and teams the dump does not cover.`,
		Version:           buildinfo.Version,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
	}

	root.SetVersionTemplate(buildinfo.Template())

	pf := root.PersistentFlags()
	pf.StringVar(&c.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/supplychain/config.toml)")
	pf.String("cache-dir", "", "directory for the registry snapshot and API cache")
	pf.String("cache-max-age", "", "maximum snapshot age before refreshing, e.g. 48h, 1w, '1d 6h'")
	pf.Bool("auto-update", true, "download a new snapshot when the cached one is stale")
	pf.Int("concurrency", 0, "number of crates resolved concurrently")
	pf.String("api-cache", "", "cache for API responses: none, file or redis")
	pf.String("log-file", "", "also write logs to this file, rotated by size")

	root.AddCommand(c.publishersCommand())
	root.AddCommand(c.cratesCommand())
	root.AddCommand(c.jsonCommand())
	root.AddCommand(c.lookupCommand())
	root.AddCommand(c.updateCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// setup loads the configuration, attaches the log file and registers
// logging hooks. It runs before every subcommand.
func (c *CLI) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(config.Options{Path: c.configPath, Flags: cmd.Flags()})
	if err != nil {
		return err
	}
	c.Config = cfg

	if cfg.LogFile != "" {
		rotator, err := openLogFile(cfg.LogFile)
		if err != nil {
			return err
		}
		c.closers = append(c.closers, rotator)
		c.Logger.SetOutput(io.MultiWriter(c.stderr, rotator))
	}
	if cfg.File != "" {
		c.Logger.Debug("loaded config", "file", cfg.File)
	}

	registerLogHooks(c.Logger)
	cmd.SetContext(withLogger(cmd.Context(), c.Logger))
	return nil
}

// registerLogHooks routes observability events into the debug log.
func registerLogHooks(l *log.Logger) {
	h := &logHooks{logger: l}
	observability.SetSnapshotHooks(h)
	observability.SetResolveHooks(h)
	observability.SetHTTPHooks(h)
	observability.SetCacheHooks(h)
}
