package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/matzehuels/supplychain/pkg/publishers"
	"github.com/matzehuels/supplychain/pkg/snapshot"
)

// makeSnapshot writes tables into a temp dir and returns a snapshot over them.
func makeSnapshot(t *testing.T, tables map[string]string) *snapshot.Snapshot {
	t.Helper()
	dir := t.TempDir()
	snap := &snapshot.Snapshot{Generation: "test", Dir: dir, Tables: map[string]string{}}
	for name, body := range tables {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
		snap.Tables[name] = p
	}
	return snap
}

func baseTables() map[string]string {
	return map[string]string{
		snapshot.TableCrates: "id,name,downloads\n" +
			"1,p1,100\n" +
			"2,p2,200\n" +
			"3,alpha,5\n" +
			"4,unowned,0\n",
		snapshot.TableUsers: "gh_avatar,gh_id,gh_login,id,name\n" +
			"a,11,u1,1,User One\n" +
			"b,12,u2,2,\n",
		snapshot.TableTeams: "avatar,github_id,id,login,name,org_id\n" +
			",100,1,github:acme:t1,T1,9\n" +
			",101,2,github:acme:core-team,Core,9\n",
		snapshot.TableCrateOwners: "crate_id,created_at,created_by,owner_id,owner_kind\n" +
			"1,2020-01-01,,1,0\n" +
			"2,2020-01-01,,1,1\n" +
			"3,2020-01-01,,2,1\n",
		snapshot.TableTeamMembers: "team_id,user_id\n" +
			"1,2\n",
	}
}

func ids(s *publishers.Set) []string {
	var out []string
	for _, a := range s.Accounts() {
		out = append(out, a.AccountID().String())
	}
	return out
}

func TestBuildRoundTrip(t *testing.T) {
	idx, err := Build(context.Background(), makeSnapshot(t, baseTables()))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	tests := []struct {
		crate string
		want  []string
	}{
		{"p1", []string{"user:1"}},
		{"p2", []string{"user:2"}},
		{"alpha", []string{"team:2"}},
		{"unowned", nil},
	}
	for _, tt := range tests {
		t.Run(tt.crate, func(t *testing.T) {
			set, ok := idx.PublishersOf(tt.crate)
			if !ok {
				t.Fatalf("PublishersOf(%q) missing", tt.crate)
			}
			if got := ids(set); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("PublishersOf(%q) = %v, want %v", tt.crate, got, tt.want)
			}
		})
	}

	if _, ok := idx.PublishersOf("ghost"); ok {
		t.Error("unknown crate should miss")
	}
	if idx.Len() != 4 {
		t.Errorf("Len() = %d, want 4", idx.Len())
	}
}

func TestBuildDecodesAccounts(t *testing.T) {
	idx, err := Build(context.Background(), makeSnapshot(t, baseTables()))
	if err != nil {
		t.Fatal(err)
	}

	p1, _ := idx.PublishersOf("p1")
	users := p1.Users()
	if len(users) != 1 || users[0].Login != "u1" || users[0].Name != "User One" {
		t.Errorf("p1 users = %+v", users)
	}

	alpha, _ := idx.PublishersOf("alpha")
	teams := alpha.UnexpandedTeams()
	if len(teams) != 1 {
		t.Fatalf("alpha should keep core-team unexpanded, got %v", alpha)
	}
	if teams[0].Org != "acme" || teams[0].Name != "core-team" {
		t.Errorf("team = %+v, want acme/core-team", teams[0])
	}
}

func TestBuildTeamMembers(t *testing.T) {
	idx, err := Build(context.Background(), makeSnapshot(t, baseTables()))
	if err != nil {
		t.Fatal(err)
	}
	m, ok := idx.TeamMembers(1)
	if !ok || len(m) != 1 || m[0] != (publishers.AccountID{Kind: publishers.KindUser, ID: 2}) {
		t.Errorf("TeamMembers(1) = %v, %v", m, ok)
	}
	if _, ok := idx.TeamMembers(2); ok {
		t.Error("team without membership rows should report false")
	}
}

func TestBuildWithoutMembershipTable(t *testing.T) {
	tables := baseTables()
	delete(tables, snapshot.TableTeamMembers)

	idx, err := Build(context.Background(), makeSnapshot(t, tables))
	if err != nil {
		t.Fatal(err)
	}
	p2, _ := idx.PublishersOf("p2")
	if got := ids(p2); !reflect.DeepEqual(got, []string{"team:1"}) {
		t.Errorf("p2 = %v, want the unexpanded team", got)
	}
}

func TestBuildExplicitTeamColumns(t *testing.T) {
	tables := baseTables()
	tables[snapshot.TableTeams] = "id,org,name\n1,rust-lang,libs\n2,rust-lang,compiler\n"

	idx, err := Build(context.Background(), makeSnapshot(t, tables))
	if err != nil {
		t.Fatal(err)
	}
	alpha, _ := idx.PublishersOf("alpha")
	if got := alpha.Teams(); len(got) != 1 || got[0].DisplayName() != "rust-lang/compiler" {
		t.Errorf("alpha teams = %+v", got)
	}
}

func TestBuildOwnerKindNames(t *testing.T) {
	tables := baseTables()
	tables[snapshot.TableCrateOwners] = "crate_id,owner_id,owner_kind\n1,1,user\n3,2,team\n"

	idx, err := Build(context.Background(), makeSnapshot(t, tables))
	if err != nil {
		t.Fatal(err)
	}
	p1, _ := idx.PublishersOf("p1")
	if got := ids(p1); !reflect.DeepEqual(got, []string{"user:1"}) {
		t.Errorf("p1 = %v", got)
	}
}

func TestBuildSkipsDanglingRows(t *testing.T) {
	tables := baseTables()
	tables[snapshot.TableCrateOwners] = "crate_id,owner_id,owner_kind\n" +
		"1,1,0\n" +
		"99,1,0\n" + // unknown crate
		"1,42,0\n" + // unknown user
		"1,42,1\n" // unknown team
	tables[snapshot.TableTeamMembers] = "team_id,user_id\n1,2\n1,77\n55,1\n1,2\n"

	idx, err := Build(context.Background(), makeSnapshot(t, tables))
	if err != nil {
		t.Fatal(err)
	}
	st := idx.Stats()
	if st.SkippedOwners != 3 {
		t.Errorf("SkippedOwners = %d, want 3", st.SkippedOwners)
	}
	if st.SkippedMembers != 2 {
		t.Errorf("SkippedMembers = %d, want 2", st.SkippedMembers)
	}
	if st.Memberships != 1 {
		t.Errorf("Memberships = %d, want 1 (duplicates collapse)", st.Memberships)
	}
	if st.Crates != 4 || st.Users != 2 || st.Teams != 2 || st.OwnerRows != 4 {
		t.Errorf("Stats = %+v", st)
	}
}

func TestBuildMalformed(t *testing.T) {
	tests := []struct {
		name   string
		table  string
		body   string
		column string
	}{
		{"missing crate name column", snapshot.TableCrates, "id,title\n1,p1\n", "name"},
		{"non-numeric crate id", snapshot.TableCrates, "id,name\nabc,p1\n", "id"},
		{"missing owner kind", snapshot.TableCrateOwners, "crate_id,owner_id\n1,1\n", "owner_kind"},
		{"bad owner kind", snapshot.TableCrateOwners, "crate_id,owner_id,owner_kind\n1,1,7\n", "owner_kind"},
		{"missing login", snapshot.TableUsers, "id,name\n1,x\n", "gh_login|login"},
		{"team without login or org", snapshot.TableTeams, "id,name\n1,x\n", "login"},
		{"empty table", snapshot.TableUsers, "", ""},
		{"ragged row", snapshot.TableCrates, "id,name\n1,p1,extra\n", ""},
		{"bad membership id", snapshot.TableTeamMembers, "team_id,user_id\n1,x\n", "user_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tables := baseTables()
			tables[tt.table] = tt.body

			_, err := Build(context.Background(), makeSnapshot(t, tables))
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("Build error = %v, want ErrMalformed", err)
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("error %T is not a ParseError", err)
			}
			if pe.Table != tt.table {
				t.Errorf("Table = %q, want %q", pe.Table, tt.table)
			}
			if tt.column != "" && pe.Column != tt.column {
				t.Errorf("Column = %q, want %q", pe.Column, tt.column)
			}
		})
	}
}

func TestBuildMissingRequiredTable(t *testing.T) {
	snap := makeSnapshot(t, baseTables())
	delete(snap.Tables, snapshot.TableUsers)

	_, err := Build(context.Background(), snap)
	var pe *ParseError
	if !errors.As(err, &pe) || pe.Table != snapshot.TableUsers {
		t.Errorf("Build error = %v, want ParseError for users table", err)
	}
}

func TestSplitTeamLogin(t *testing.T) {
	tests := []struct {
		login, org, name string
	}{
		{"github:rust-lang:libs", "rust-lang", "libs"},
		{"acme:core", "acme", "core"},
		{"lonely", "", "lonely"},
	}
	for _, tt := range tests {
		org, name := splitTeamLogin(tt.login)
		if org != tt.org || name != tt.name {
			t.Errorf("splitTeamLogin(%q) = %q, %q", tt.login, org, name)
		}
	}
}
