package snapshot

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matzehuels/supplychain/pkg/httputil"
)

// flakyServer fails the first n requests with status, then serves archive.
func flakyServer(t *testing.T, n int32, status int, archive []byte) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= n {
			w.WriteHeader(status)
			return
		}
		serveBytes(archive)(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newTestPair(t *testing.T, url string, opts ...StoreOption) (*Store, *Fetcher) {
	t.Helper()
	s := NewStore(filepath.Join(t.TempDir(), "cache"), opts...)
	return s, NewFetcher(s.StagingDir(), WithURL(url))
}

func TestRefreshRetriesTransient(t *testing.T) {
	srv, hits := flakyServer(t, 2, http.StatusServiceUnavailable, buildArchive(t, dumpFiles()))
	s, f := newTestPair(t, srv.URL)

	snap, err := Refresh(context.Background(), f, s, httputil.NoDelayPolicy())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if hits.Load() != 3 {
		t.Errorf("requests = %d, want 3", hits.Load())
	}
	if snap.Source != srv.URL {
		t.Errorf("Source = %q", snap.Source)
	}
	if s.CurrentSnapshot() == nil {
		t.Error("snapshot should be installed")
	}
}

func TestRefreshGivesUp(t *testing.T) {
	srv, hits := flakyServer(t, 100, http.StatusInternalServerError, nil)
	s, f := newTestPair(t, srv.URL)

	_, err := Refresh(context.Background(), f, s, httputil.NoDelayPolicy())
	var fe *FetchError
	if !errors.As(err, &fe) || fe.StatusCode != http.StatusInternalServerError {
		t.Fatalf("Refresh error = %v, want status FetchError", err)
	}
	if int(hits.Load()) != httputil.NoDelayPolicy().MaxAttempts {
		t.Errorf("requests = %d, want %d", hits.Load(), httputil.NoDelayPolicy().MaxAttempts)
	}
}

func TestRefreshDoesNotRetryPermanent(t *testing.T) {
	srv, hits := flakyServer(t, 100, http.StatusForbidden, nil)
	s, f := newTestPair(t, srv.URL)

	if _, err := Refresh(context.Background(), f, s, httputil.NoDelayPolicy()); err == nil {
		t.Fatal("expected error")
	}
	if hits.Load() != 1 {
		t.Errorf("requests = %d, want 1", hits.Load())
	}
}

func TestEnsure(t *testing.T) {
	archive := buildArchive(t, dumpFiles())
	ctx := context.Background()
	policy := httputil.NoDelayPolicy()

	t.Run("fresh snapshot used without download", func(t *testing.T) {
		srv, hits := flakyServer(t, 0, http.StatusServiceUnavailable, archive)
		s, f := newTestPair(t, srv.URL)
		if _, err := Refresh(ctx, f, s, policy); err != nil {
			t.Fatal(err)
		}
		hits.Store(0)

		res := Ensure(ctx, s, f, EnsureOptions{MaxAge: time.Hour, AutoUpdate: true, Policy: policy})
		if res.State != StateFresh || res.Snapshot == nil {
			t.Errorf("result = %+v", res)
		}
		if hits.Load() != 0 {
			t.Error("fresh snapshot should not trigger a download")
		}
	})

	t.Run("zero max age is always stale", func(t *testing.T) {
		srv, hits := flakyServer(t, 0, http.StatusServiceUnavailable, archive)
		now := time.Now()
		s, f := newTestPair(t, srv.URL, WithClock(func() time.Time { return now }))
		if _, err := Refresh(ctx, f, s, policy); err != nil {
			t.Fatal(err)
		}
		now = now.Add(time.Hour)
		hits.Store(0)

		res := Ensure(ctx, s, f, EnsureOptions{MaxAge: 0, Policy: policy})
		if res.State != StateStale || res.Snapshot != nil {
			t.Errorf("result = %+v, want stale and API-only", res)
		}
		if s.IsFresh(s.CurrentSnapshot(), 0) {
			t.Error("IsFresh with zero max age should be false")
		}
	})

	t.Run("missing snapshot downloaded", func(t *testing.T) {
		srv, _ := flakyServer(t, 0, http.StatusServiceUnavailable, archive)
		s, f := newTestPair(t, srv.URL)

		res := Ensure(ctx, s, f, EnsureOptions{AutoUpdate: true, Policy: policy})
		if res.State != StateRefreshed || res.Snapshot == nil {
			t.Errorf("result = %+v", res)
		}
	})

	t.Run("stale snapshot used when refresh fails", func(t *testing.T) {
		srv, hits := flakyServer(t, 0, http.StatusServiceUnavailable, archive)
		now := time.Now()
		s, f := newTestPair(t, srv.URL, WithClock(func() time.Time { return now }))
		first, err := Refresh(ctx, f, s, policy)
		if err != nil {
			t.Fatal(err)
		}

		now = now.Add(72 * time.Hour)
		hits.Store(-100) // every following request fails

		res := Ensure(ctx, s, f, EnsureOptions{MaxAge: 48 * time.Hour, AutoUpdate: true, Policy: policy})
		if res.State != StateStale || res.Snapshot == nil || res.Snapshot.Generation != first.Generation {
			t.Errorf("result = %+v, want stale snapshot %s", res, first.Generation)
		}
		if res.RefreshErr == nil {
			t.Error("RefreshErr should report the failed refresh")
		}
	})

	t.Run("missing snapshot and refresh fails", func(t *testing.T) {
		srv, _ := flakyServer(t, 100, http.StatusBadGateway, nil)
		s, f := newTestPair(t, srv.URL)

		res := Ensure(ctx, s, f, EnsureOptions{AutoUpdate: true, Policy: policy})
		if res.Snapshot != nil || res.State != StateMissing || res.RefreshErr == nil {
			t.Errorf("result = %+v, want API-only", res)
		}
	})

	t.Run("stale snapshot ignored without auto update", func(t *testing.T) {
		srv, hits := flakyServer(t, 0, http.StatusServiceUnavailable, archive)
		now := time.Now()
		s, f := newTestPair(t, srv.URL, WithClock(func() time.Time { return now }))
		if _, err := Refresh(ctx, f, s, policy); err != nil {
			t.Fatal(err)
		}
		now = now.Add(72 * time.Hour)
		hits.Store(0)

		res := Ensure(ctx, s, f, EnsureOptions{MaxAge: 48 * time.Hour, AutoUpdate: false, Policy: policy})
		if res.Snapshot != nil || res.State != StateStale {
			t.Errorf("result = %+v, want API-only with stale state", res)
		}
		if hits.Load() != 0 {
			t.Error("no download without auto update")
		}
	})
}
