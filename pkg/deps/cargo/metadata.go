package cargo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/tidwall/gjson"

	apperrors "github.com/matzehuels/supplychain/pkg/errors"
	"github.com/matzehuels/supplychain/pkg/publishers"
)

// Registry sources used by crates.io in `cargo metadata` output.
const (
	GitIndexSource    = "registry+https://github.com/rust-lang/crates.io-index"
	SparseIndexSource = "sparse+https://index.crates.io/"
)

// CommandFunc builds the command to run. Tests substitute a fake process.
type CommandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// Runner invokes cargo.
type Runner struct {
	cargo   string
	dir     string
	command CommandFunc
	logger  *log.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithCargo sets the cargo executable, default "cargo".
func WithCargo(path string) Option {
	return func(r *Runner) {
		if path != "" {
			r.cargo = path
		}
	}
}

// WithDir sets the working directory cargo runs in.
func WithDir(dir string) Option {
	return func(r *Runner) { r.dir = dir }
}

// WithCommand replaces process creation.
func WithCommand(fn CommandFunc) Option {
	return func(r *Runner) {
		if fn != nil {
			r.command = fn
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRunner creates a Runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		cargo:   "cargo",
		command: exec.CommandContext,
		logger:  log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Packages runs cargo metadata with the extra args and returns the crates.io
// packages of the resolved dependency graph.
func (r *Runner) Packages(ctx context.Context, args []string) ([]publishers.Package, error) {
	argv := append([]string{"metadata", "--format-version", "1"}, args...)
	r.logger.Debug("running cargo", "args", strings.Join(argv, " "))

	cmd := r.command(ctx, r.cargo, argv...)
	cmd.Dir = r.dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = exitErr.Error()
			}
			return nil, apperrors.New(apperrors.ErrCodeMetadataFailed, "cargo metadata failed: %s", msg)
		}
		return nil, apperrors.Wrap(apperrors.ErrCodeMetadataFailed, err, "run %s", r.cargo)
	}
	return ParseMetadata(stdout.Bytes())
}

// ParseMetadata extracts crates.io packages from `cargo metadata` JSON.
// The result is sorted by name then version, without duplicates.
func ParseMetadata(data []byte) ([]publishers.Package, error) {
	if !gjson.ValidBytes(data) {
		return nil, apperrors.New(apperrors.ErrCodeInvalidFormat, "cargo metadata output is not valid JSON")
	}
	pkgs := gjson.GetBytes(data, "packages")
	if !pkgs.IsArray() {
		return nil, apperrors.New(apperrors.ErrCodeInvalidFormat, "cargo metadata output has no packages array")
	}

	seen := make(map[publishers.Package]bool)
	var out []publishers.Package
	var parseErr error
	pkgs.ForEach(func(_, p gjson.Result) bool {
		if !isCratesIO(p.Get("source").String()) {
			return true
		}
		pkg := publishers.Package{
			Name:    p.Get("name").String(),
			Version: p.Get("version").String(),
		}
		if pkg.Name == "" {
			parseErr = fmt.Errorf("package without name: %s", p.Raw)
			return false
		}
		if !seen[pkg] {
			seen[pkg] = true
			out = append(out, pkg)
		}
		return true
	})
	if parseErr != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInvalidFormat, parseErr, "parse cargo metadata")
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Version < out[j].Version
	})
	return out, nil
}

func isCratesIO(source string) bool {
	return source == GitIndexSource || source == SparseIndexSource
}
