package cli

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"

	"github.com/matzehuels/supplychain/pkg/observability"
)

// logHooks writes observability events to the debug log.
type logHooks struct {
	logger *log.Logger
}

var (
	_ observability.SnapshotHooks = (*logHooks)(nil)
	_ observability.ResolveHooks  = (*logHooks)(nil)
	_ observability.HTTPHooks     = (*logHooks)(nil)
	_ observability.CacheHooks    = (*logHooks)(nil)
)

func (h *logHooks) OnFetchStart(_ context.Context, url string) {
	h.logger.Debug("download started", "url", url)
}

func (h *logHooks) OnFetchComplete(_ context.Context, url string, size int64, d time.Duration, err error) {
	if err != nil {
		h.logger.Debug("download failed", "url", url, "after", d.Round(time.Millisecond), "err", err)
		return
	}
	h.logger.Debug("download finished", "size", humanize.IBytes(uint64(size)), "elapsed", d.Round(time.Millisecond))
}

func (h *logHooks) OnInstall(_ context.Context, generation string, err error) {
	if err != nil {
		h.logger.Debug("snapshot install failed", "err", err)
		return
	}
	h.logger.Debug("snapshot installed", "generation", generation)
}

func (h *logHooks) OnIndexBuilt(_ context.Context, crates int, d time.Duration, err error) {
	if err != nil {
		return
	}
	h.logger.Debug("index ready", "crates", humanize.Comma(int64(crates)), "elapsed", d.Round(time.Millisecond))
}

func (h *logHooks) OnResolveStart(_ context.Context, n int) {
	h.logger.Debug("resolving publishers", "crates", n)
}

func (h *logHooks) OnLookup(_ context.Context, pkg string, hit bool) {
	if !hit {
		h.logger.Debug("not in snapshot", "crate", pkg)
	}
}

func (h *logHooks) OnLiveLookup(_ context.Context, pkg string, d time.Duration, err error) {
	h.logger.Debug("api lookup", "crate", pkg, "elapsed", d.Round(time.Millisecond), "err", err)
}

func (h *logHooks) OnResolveComplete(_ context.Context, n, failures int, d time.Duration) {
	h.logger.Debug("resolution finished", "crates", n, "failures", failures, "elapsed", d.Round(time.Millisecond))
}

func (h *logHooks) OnRequest(_ context.Context, method, host, path string) {
	h.logger.Debug("http request", "method", method, "host", host, "path", path)
}

func (h *logHooks) OnResponse(_ context.Context, method, host, path string, status int, d time.Duration) {
	h.logger.Debug("http response", "path", path, "status", status, "elapsed", d.Round(time.Millisecond))
}

func (h *logHooks) OnError(_ context.Context, method, host, path string, err error) {
	h.logger.Debug("http error", "host", host, "path", path, "err", err)
}

func (h *logHooks) OnCacheHit(_ context.Context, keyType string) {
	h.logger.Debug("cache hit", "namespace", keyType)
}

func (h *logHooks) OnCacheMiss(context.Context, string) {}

func (h *logHooks) OnCacheSet(context.Context, string, int) {}
