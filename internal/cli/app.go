package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/supplychain/pkg/buildinfo"
	"github.com/matzehuels/supplychain/pkg/cache"
	"github.com/matzehuels/supplychain/pkg/config"
	apperrors "github.com/matzehuels/supplychain/pkg/errors"
	"github.com/matzehuels/supplychain/pkg/httputil"
	"github.com/matzehuels/supplychain/pkg/index"
	"github.com/matzehuels/supplychain/pkg/integrations/crates"
	"github.com/matzehuels/supplychain/pkg/io"
	"github.com/matzehuels/supplychain/pkg/publishers"
	"github.com/matzehuels/supplychain/pkg/snapshot"
)

// =============================================================================
// Component Factory
// =============================================================================

func (c *CLI) settings() *config.Config {
	if c.Config == nil {
		cfg, err := config.Load(config.Options{})
		if err != nil {
			c.Logger.Warn("invalid configuration, using defaults", "err", err)
			cfg = &config.Config{}
		}
		c.Config = cfg
	}
	return c.Config
}

func (c *CLI) userAgent() string {
	if ua := c.settings().UserAgent; ua != "" {
		return ua
	}
	return buildinfo.UserAgent()
}

func (c *CLI) newStore() *snapshot.Store {
	return snapshot.NewStore(c.settings().SnapshotDir(), snapshot.WithStoreLogger(c.Logger))
}

func (c *CLI) newFetcher(store *snapshot.Store) *snapshot.Fetcher {
	cfg := c.settings()
	return snapshot.NewFetcher(store.StagingDir(),
		snapshot.WithURL(cfg.DumpURL),
		snapshot.WithHTTPClient(httputil.NewHTTPClient(cfg.DownloadTimeout.Std())),
		snapshot.WithUserAgent(c.userAgent()),
		snapshot.WithFetchLogger(c.Logger),
	)
}

// newAPICache opens the configured backend for registry API responses.
func (c *CLI) newAPICache(ctx context.Context) (cache.Cache, error) {
	backend, err := cache.Open(ctx, c.settings().CacheOptions())
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInvalidConfig, err, "open %s api cache", c.settings().APICache)
	}
	return backend, nil
}

func (c *CLI) newCratesClient(backend cache.Cache) *crates.Client {
	cfg := c.settings()
	return crates.NewClient(backend, cfg.CacheMaxAge.Std(),
		crates.WithBaseURL(cfg.APIURL),
		crates.WithUserAgent(c.userAgent()),
		crates.WithPolicy(cfg.Retry.Policy()),
		crates.WithHTTPClient(httputil.NewHTTPClient(cfg.HTTPTimeout.Std())),
		crates.WithLogger(c.Logger),
	)
}

// =============================================================================
// Resolution
// =============================================================================

// ensureSnapshot returns the snapshot to query, or nil for API-only runs.
func (c *CLI) ensureSnapshot(ctx context.Context, store *snapshot.Store) *snapshot.Snapshot {
	cfg := c.settings()
	res := snapshot.Ensure(ctx, store, c.newFetcher(store), snapshot.EnsureOptions{
		MaxAge:     cfg.CacheMaxAge.Std(),
		AutoUpdate: cfg.AutoUpdate,
		Policy:     cfg.Retry.Policy(),
		Logger:     c.Logger,
	})
	c.Logger.Debug("snapshot", "state", res.State)
	return res.Snapshot
}

// buildIndex loads the snapshot tables. A malformed table is fatal.
func buildIndex(ctx context.Context, snap *snapshot.Snapshot, logger *log.Logger) (*index.Index, error) {
	prog := newProgress(logger)
	idx, err := index.Build(ctx, snap, index.WithLogger(logger))
	if err != nil {
		if errors.Is(err, index.ErrMalformed) {
			return nil, apperrors.Wrap(apperrors.ErrCodeSnapshotInvalid, err,
				"snapshot %s is unreadable; run '%s update' to download a new one", snap.Generation, appName)
		}
		return nil, err
	}
	prog.done(fmt.Sprintf("Loaded ownership of %d crates", idx.Len()))
	if st := idx.Stats(); st.SkippedOwners+st.SkippedMembers > 0 {
		logger.Warn("snapshot has dangling rows", "owners", st.SkippedOwners, "members", st.SkippedMembers)
	}
	return idx, nil
}

// resolve attributes publishers to pkgs and returns the serializable report.
func (c *CLI) resolve(ctx context.Context, pkgs []publishers.Package) (*io.Document, error) {
	store := c.newStore()
	snap := c.ensureSnapshot(ctx, store)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var idx publishers.Index
	if snap != nil {
		built, err := buildIndex(ctx, snap, c.Logger)
		if err != nil {
			return nil, err
		}
		idx = built
	}

	backend, err := c.newAPICache(ctx)
	if err != nil {
		return nil, err
	}
	defer backend.Close()

	prog := newProgress(c.Logger)
	spinner := newSpinner(ctx, fmt.Sprintf("Resolving publishers of %d crates...", len(pkgs)))
	resolver := publishers.NewResolver(idx, c.newCratesClient(backend),
		publishers.WithWorkers(c.settings().Concurrency),
		publishers.WithLogger(c.Logger),
		publishers.WithProgress(spinner.Progress),
	)

	spinner.Start()
	report := resolver.Resolve(ctx, pkgs)
	spinner.Stop()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prog.done(fmt.Sprintf("Resolved %d crates", len(pkgs)))

	for _, e := range report.Failures() {
		c.Logger.Warn("incomplete publishers", "crate", e.Package.Name, "reason", e.Failure.Kind, "err", e.Failure.Message)
	}
	return io.NewDocument(report, snap, time.Now()), nil
}
