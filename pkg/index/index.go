package index

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/supplychain/pkg/observability"
	"github.com/matzehuels/supplychain/pkg/publishers"
	"github.com/matzehuels/supplychain/pkg/snapshot"
)

// Stats counts what a build read and skipped.
type Stats struct {
	Crates      int
	Users       int
	Teams       int
	OwnerRows   int
	Memberships int

	// SkippedOwners counts owner rows referencing an unknown crate, user or
	// team. SkippedMembers does the same for membership rows.
	SkippedOwners  int
	SkippedMembers int
}

// Index maps crate names to publisher sets. It is never modified after
// [Build] returns.
type Index struct {
	crates  map[string]*publishers.Set
	members map[int64][]publishers.AccountID
	stats   Stats
}

var _ publishers.Index = (*Index)(nil)

// Option configures [Build].
type Option func(*builder)

// WithLogger sets the logger for build diagnostics.
func WithLogger(l *log.Logger) Option {
	return func(b *builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// Build reads the tables of snap into a new Index in a single pass per table.
func Build(ctx context.Context, snap *snapshot.Snapshot, opts ...Option) (idx *Index, err error) {
	start := time.Now()
	b := &builder{
		snap:    snap,
		logger:  log.New(io.Discard),
		users:   make(map[int64]publishers.User),
		teams:   make(map[int64]publishers.Team),
		members: make(map[int64][]publishers.AccountID),
		crates:  make(map[int64]string),
	}
	for _, opt := range opts {
		opt(b)
	}
	defer func() {
		n := 0
		if idx != nil {
			n = len(idx.crates)
		}
		observability.Snapshot().OnIndexBuilt(ctx, n, time.Since(start), err)
	}()

	steps := []func() error{b.readUsers, b.readTeams, b.readMembers, b.readCrates, b.readOwners}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}

	b.logger.Debug("index built",
		"crates", b.stats.Crates,
		"users", b.stats.Users,
		"teams", b.stats.Teams,
		"skipped_owners", b.stats.SkippedOwners,
		"elapsed", time.Since(start).Round(time.Millisecond))

	return &Index{crates: b.sets, members: b.members, stats: b.stats}, nil
}

// PublishersOf returns the publisher set of a crate. The set is shared and
// must not be modified. A crate in the snapshot with no owners yields an
// empty set and true.
func (idx *Index) PublishersOf(name string) (*publishers.Set, bool) {
	s, ok := idx.crates[name]
	return s, ok
}

// TeamMembers returns the members of a team in dump order, and whether the
// dump carried membership for it.
func (idx *Index) TeamMembers(teamID int64) ([]publishers.AccountID, bool) {
	m, ok := idx.members[teamID]
	return m, ok
}

// Len returns the number of crates.
func (idx *Index) Len() int { return len(idx.crates) }

// Stats returns row counts from the build.
func (idx *Index) Stats() Stats { return idx.stats }

type builder struct {
	snap   *snapshot.Snapshot
	logger *log.Logger
	stats  Stats

	users   map[int64]publishers.User
	teams   map[int64]publishers.Team
	members map[int64][]publishers.AccountID
	crates  map[int64]string
	sets    map[string]*publishers.Set
}

func (b *builder) open(name string) (*table, error) {
	path, ok := b.snap.Path(name)
	if !ok {
		return nil, &ParseError{Table: name, Err: errors.New("table not present in snapshot")}
	}
	return openTable(name, path)
}

// each opens a table, checks its header with check and calls row per record.
func (b *builder) each(name string, check func(*table) error, row func(*table) error) error {
	t, err := b.open(name)
	if err != nil {
		return err
	}
	defer t.Close()

	if err := check(t); err != nil {
		return err
	}
	for {
		if err := t.next(); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := row(t); err != nil {
			return err
		}
	}
}

func (b *builder) readUsers() error {
	var loginCol string
	return b.each(snapshot.TableUsers,
		func(t *table) (err error) {
			if err := t.require("id"); err != nil {
				return err
			}
			loginCol, err = t.firstOf("gh_login", "login")
			return err
		},
		func(t *table) error {
			id, err := t.int("id")
			if err != nil {
				return err
			}
			b.users[id] = publishers.User{ID: id, Login: t.str(loginCol), Name: t.str("name")}
			b.stats.Users++
			return nil
		})
}

func (b *builder) readTeams() error {
	var explicit bool
	return b.each(snapshot.TableTeams,
		func(t *table) error {
			if err := t.require("id"); err != nil {
				return err
			}
			explicit = t.has("org") && t.has("name")
			if !explicit {
				return t.require("login")
			}
			return nil
		},
		func(t *table) error {
			id, err := t.int("id")
			if err != nil {
				return err
			}
			team := publishers.Team{ID: id}
			if explicit {
				team.Org, team.Name = t.str("org"), t.str("name")
			} else {
				team.Org, team.Name = splitTeamLogin(t.str("login"))
			}
			b.teams[id] = team
			b.stats.Teams++
			return nil
		})
}

func (b *builder) readMembers() error {
	if _, ok := b.snap.Path(snapshot.TableTeamMembers); !ok {
		return nil
	}
	seen := make(map[[2]int64]bool)
	return b.each(snapshot.TableTeamMembers,
		func(t *table) error { return t.require("team_id", "user_id") },
		func(t *table) error {
			teamID, err := t.int("team_id")
			if err != nil {
				return err
			}
			userID, err := t.int("user_id")
			if err != nil {
				return err
			}
			if _, ok := b.teams[teamID]; !ok {
				b.stats.SkippedMembers++
				return nil
			}
			if _, ok := b.users[userID]; !ok {
				b.stats.SkippedMembers++
				return nil
			}
			if seen[[2]int64{teamID, userID}] {
				return nil
			}
			seen[[2]int64{teamID, userID}] = true
			b.members[teamID] = append(b.members[teamID], publishers.AccountID{Kind: publishers.KindUser, ID: userID})
			b.stats.Memberships++
			return nil
		})
}

func (b *builder) readCrates() error {
	return b.each(snapshot.TableCrates,
		func(t *table) error { return t.require("id", "name") },
		func(t *table) error {
			id, err := t.int("id")
			if err != nil {
				return err
			}
			name := t.str("name")
			if name == "" {
				return t.errorf("name", "empty crate name")
			}
			b.crates[id] = name
			b.stats.Crates++
			return nil
		})
}

func (b *builder) readOwners() error {
	b.sets = make(map[string]*publishers.Set, len(b.crates))
	for _, name := range b.crates {
		b.sets[name] = &publishers.Set{}
	}
	return b.each(snapshot.TableCrateOwners,
		func(t *table) error { return t.require("crate_id", "owner_id", "owner_kind") },
		func(t *table) error {
			crateID, err := t.int("crate_id")
			if err != nil {
				return err
			}
			ownerID, err := t.int("owner_id")
			if err != nil {
				return err
			}
			kind, err := parseOwnerKind(t.str("owner_kind"))
			if err != nil {
				return t.errorf("owner_kind", "%v", err)
			}
			b.stats.OwnerRows++

			name, ok := b.crates[crateID]
			if !ok {
				b.stats.SkippedOwners++
				return nil
			}
			set := b.sets[name]

			switch kind {
			case publishers.KindUser:
				u, ok := b.users[ownerID]
				if !ok {
					b.stats.SkippedOwners++
					return nil
				}
				set.Add(u)
			case publishers.KindTeam:
				team, ok := b.teams[ownerID]
				if !ok {
					b.stats.SkippedOwners++
					return nil
				}
				ids, ok := b.members[ownerID]
				if !ok {
					set.Add(team)
					return nil
				}
				for _, id := range ids {
					set.Add(b.users[id.ID])
				}
			}
			return nil
		})
}

func parseOwnerKind(v string) (publishers.AccountKind, error) {
	switch strings.TrimSpace(strings.ToLower(v)) {
	case "0", "user":
		return publishers.KindUser, nil
	case "1", "team":
		return publishers.KindTeam, nil
	}
	return "", fmt.Errorf("unknown owner kind %q", v)
}

// splitTeamLogin splits a crates.io team login "github:org:team".
func splitTeamLogin(login string) (org, name string) {
	parts := strings.Split(login, ":")
	switch len(parts) {
	case 3:
		return parts[1], parts[2]
	case 2:
		return parts[0], parts[1]
	}
	return "", login
}
