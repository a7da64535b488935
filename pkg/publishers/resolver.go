package publishers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/supplychain/pkg/observability"
)

const defaultWorkers = 8

// Index answers publisher lookups from a local snapshot.
// The returned set must be treated as read-only.
type Index interface {
	PublishersOf(name string) (*Set, bool)
}

// LiveSource queries the registry API.
type LiveSource interface {
	// OwnersOf returns the publishers of a package with team membership
	// expanded where possible. A non-nil set may accompany an error when only
	// part of the answer could be determined.
	OwnersOf(ctx context.Context, name string) (*Set, error)

	// TeamMembers returns the user accounts belonging to team.
	TeamMembers(ctx context.Context, team Team) ([]User, error)
}

// ErrLiveUnavailable annotates misses when no [LiveSource] is configured.
var ErrLiveUnavailable = errors.New("not in snapshot and live lookups are disabled")

// Resolver attributes publishers to packages by consulting the snapshot index
// first and falling back to the registry API for misses and for teams whose
// membership the snapshot does not carry.
//
// Resolver is safe for concurrent use; the index is never mutated.
type Resolver struct {
	index    Index
	live     LiveSource
	workers  int
	logger   *log.Logger
	progress func(done, total int)
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithWorkers bounds the number of packages resolved concurrently.
// Network request rate is governed by the LiveSource, not by this value.
func WithWorkers(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithLogger sets the logger used for per-package diagnostics.
func WithLogger(l *log.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithProgress registers fn to be called after each distinct package name is
// resolved, with the number done so far and the total. fn may be called from
// several goroutines at once.
func WithProgress(fn func(done, total int)) Option {
	return func(r *Resolver) { r.progress = fn }
}

// NewResolver creates a Resolver. Either source may be nil: a nil index means
// every package goes to the API, a nil live source means snapshot-only mode.
func NewResolver(index Index, live LiveSource, opts ...Option) *Resolver {
	r := &Resolver{
		index:   index,
		live:    live,
		workers: defaultWorkers,
		logger:  log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// outcome is the resolution of one distinct package name.
type outcome struct {
	set     *Set
	source  Source
	failure *Failure
}

// Resolve returns one entry per package, in input order. Failures are
// recorded on the affected entries and never abort the run; Resolve itself
// does not fail.
func (r *Resolver) Resolve(ctx context.Context, pkgs []Package) *Report {
	start := time.Now()
	hooks := observability.Resolve()
	hooks.OnResolveStart(ctx, len(pkgs))

	var names []string
	slot := make(map[string]int)
	for _, p := range pkgs {
		if _, ok := slot[p.Name]; !ok {
			slot[p.Name] = len(names)
			names = append(names, p.Name)
		}
	}

	outcomes := make([]outcome, len(names))
	var (
		g    errgroup.Group
		done atomic.Int64
	)
	g.SetLimit(r.workers)
	for i, name := range names {
		g.Go(func() error {
			outcomes[i] = r.resolveOne(ctx, name)
			if r.progress != nil {
				r.progress(int(done.Add(1)), len(names))
			}
			return nil
		})
	}
	_ = g.Wait()

	report := &Report{Entries: make([]Entry, len(pkgs))}
	failures := 0
	for i, p := range pkgs {
		o := outcomes[slot[p.Name]]
		report.Entries[i] = Entry{
			Package:    p,
			Publishers: o.set.Clone(),
			Source:     o.source,
			Failure:    o.failure,
		}
		if o.failure != nil {
			failures++
		}
	}

	hooks.OnResolveComplete(ctx, len(pkgs), failures, time.Since(start))
	return report
}

func (r *Resolver) resolveOne(ctx context.Context, name string) outcome {
	var (
		snap *Set
		hit  bool
	)
	if r.index != nil {
		snap, hit = r.index.PublishersOf(name)
	}
	observability.Resolve().OnLookup(ctx, name, hit)

	if hit {
		teams := snap.UnexpandedTeams()
		if len(teams) == 0 {
			return outcome{set: snap.Clone(), source: SourceSnapshot}
		}
		if r.live == nil {
			return outcome{set: snap.Clone(), source: SourceSnapshot}
		}
		return r.expandTeams(ctx, name, snap.Clone(), teams)
	}

	if r.live == nil {
		return outcome{set: &Set{}, source: SourceNone, failure: &Failure{
			Kind:    FailureUnavailable,
			Message: ErrLiveUnavailable.Error(),
		}}
	}

	start := time.Now()
	set, err := r.live.OwnersOf(ctx, name)
	observability.Resolve().OnLiveLookup(ctx, name, time.Since(start), err)
	if err != nil {
		r.logger.Debug("live lookup failed", "package", name, "err", err)
	}

	o := outcome{set: set.Clone(), source: SourceAPI, failure: failureFrom(err)}
	if set == nil {
		o.source = SourceNone
	}
	return o
}

// expandTeams resolves the membership of teams the snapshot left unexpanded.
// A team that cannot be expanded stays in the set as a team account.
func (r *Resolver) expandTeams(ctx context.Context, name string, set *Set, teams []Team) outcome {
	o := outcome{set: set, source: SourceMerged}
	for _, team := range teams {
		start := time.Now()
		members, err := r.live.TeamMembers(ctx, team)
		observability.Resolve().OnLiveLookup(ctx, name, time.Since(start), err)
		if err != nil {
			r.logger.Debug("team expansion failed", "package", name, "team", team.DisplayName(), "err", err)
			if o.failure == nil {
				o.failure = &Failure{
					Kind:    FailureTeamExpansion,
					Message: fmt.Sprintf("team %s: %v", team.DisplayName(), err),
				}
			}
			continue
		}
		set.ExpandTeam(team, members)
	}
	return o
}
