package snapshot

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/supplychain/pkg/httputil"
)

// DefaultMaxAge is how long a snapshot is used before it is considered stale.
const DefaultMaxAge = 48 * time.Hour

// Refresh downloads a new dump and installs it. Transient fetch failures
// (network errors, 5xx and 429 responses, truncated transfers) are retried
// under policy; corrupt archives and store failures are not.
func Refresh(ctx context.Context, f *Fetcher, s *Store, policy httputil.Policy) (*Snapshot, error) {
	var staged *Staged
	err := httputil.Retry(ctx, policy, func() error {
		st, err := f.Fetch(ctx)
		if err != nil {
			var fe *FetchError
			if errors.As(err, &fe) && fe.Transient() {
				return httputil.Retryable(err)
			}
			return err
		}
		staged = st
		return nil
	})
	if err != nil {
		var re *httputil.RetryableError
		if errors.As(err, &re) {
			return nil, re.Err
		}
		return nil, err
	}
	return s.Install(ctx, staged)
}

// EnsureOptions controls [Ensure]. A zero MaxAge treats every snapshot as
// stale; callers normally pass [DefaultMaxAge] or a configured value.
type EnsureOptions struct {
	MaxAge     time.Duration
	AutoUpdate bool
	Policy     httputil.Policy
	Logger     *log.Logger
}

// State describes the snapshot [Ensure] settled on.
type State string

const (
	StateFresh     State = "fresh"
	StateRefreshed State = "refreshed"
	StateStale     State = "stale"
	StateMissing   State = "missing"
)

// EnsureResult reports the snapshot to use for a query. Snapshot is nil when
// the query must run against the registry API alone.
type EnsureResult struct {
	Snapshot *Snapshot
	State    State

	// RefreshErr is the error of a failed automatic refresh.
	RefreshErr error
}

// Ensure applies the query-time snapshot policy. Freshness is evaluated once.
//
//   - A fresh snapshot is used as-is.
//   - With AutoUpdate, a stale or missing snapshot is refreshed. If the
//     refresh fails, a stale snapshot is still used; without one the query
//     runs API-only.
//   - Without AutoUpdate, a stale snapshot is not used and the query runs
//     API-only.
//
// Ensure never fails; refresh errors are reported in the result.
func Ensure(ctx context.Context, s *Store, f *Fetcher, opts EnsureOptions) EnsureResult {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	maxAge := opts.MaxAge

	cur := s.CurrentSnapshot()
	if s.IsFresh(cur, maxAge) {
		return EnsureResult{Snapshot: cur, State: StateFresh}
	}

	state := StateMissing
	if cur != nil {
		state = StateStale
		logger.Info("snapshot is stale", "age", cur.Age(s.Now()).Round(time.Minute), "max_age", maxAge)
	}

	if !opts.AutoUpdate {
		logger.Warn("no fresh snapshot, querying the registry API for every crate; run 'supplychain update' to download one")
		return EnsureResult{State: state}
	}

	logger.Info("downloading registry snapshot", "url", f.URL())
	snap, err := Refresh(ctx, f, s, opts.Policy)
	if err == nil {
		return EnsureResult{Snapshot: snap, State: StateRefreshed}
	}

	if cur != nil {
		logger.Warn("snapshot refresh failed, using stale snapshot", "err", err)
		return EnsureResult{Snapshot: cur, State: StateStale, RefreshErr: err}
	}
	logger.Warn("snapshot download failed, querying the registry API for every crate", "err", err)
	return EnsureResult{State: StateMissing, RefreshErr: err}
}
