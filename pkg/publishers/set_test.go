package publishers

import (
	"reflect"
	"testing"
)

func TestSetDedup(t *testing.T) {
	s := NewSet(
		User{ID: 1, Login: "alice"},
		User{ID: 1, Login: "alice", Name: "Alice"},
		Team{ID: 1, Org: "rust-lang", Name: "libs"},
	)
	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 (user 1 and team 1 are distinct)", s.Len())
	}
	if !s.Contains(AccountID{Kind: KindUser, ID: 1}) {
		t.Error("missing user:1")
	}
	if !s.Contains(AccountID{Kind: KindTeam, ID: 1}) {
		t.Error("missing team:1")
	}
}

func TestSetNil(t *testing.T) {
	var s *Set
	if s.Len() != 0 {
		t.Error("nil set should be empty")
	}
	if s.Contains(AccountID{Kind: KindUser, ID: 1}) {
		t.Error("nil set should contain nothing")
	}
	if s.Accounts() != nil {
		t.Error("nil set should have no accounts")
	}
	if c := s.Clone(); c == nil || c.Len() != 0 {
		t.Error("cloning nil should yield an empty set")
	}
}

func TestSetAccountsOrder(t *testing.T) {
	s := NewSet(
		Team{ID: 2, Org: "o", Name: "b"},
		User{ID: 9, Login: "z"},
		Team{ID: 1, Org: "o", Name: "a"},
		User{ID: 3, Login: "c"},
	)
	var got []string
	for _, a := range s.Accounts() {
		got = append(got, a.AccountID().String())
	}
	want := []string{"user:3", "user:9", "team:1", "team:2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Accounts() = %v, want %v", got, want)
	}
}

func TestSetUnion(t *testing.T) {
	a := NewSet(User{ID: 1, Login: "a"}, User{ID: 2, Login: "b"})
	b := NewSet(User{ID: 2, Login: "b"}, User{ID: 3, Login: "c"})
	a.Union(b)
	if a.Len() != 3 {
		t.Errorf("Len() = %d, want 3", a.Len())
	}
	if b.Len() != 2 {
		t.Error("Union should not modify its argument")
	}
}

func TestSetCloneIndependent(t *testing.T) {
	orig := NewSet(User{ID: 1, Login: "a"})
	c := orig.Clone()
	c.Add(User{ID: 2, Login: "b"})
	if orig.Len() != 1 {
		t.Error("modifying a clone changed the original")
	}
}

func TestSetExpandTeam(t *testing.T) {
	team := Team{ID: 7, Org: "acme", Name: "core"}
	s := NewSet(User{ID: 1, Login: "a"}, team)

	if got := s.UnexpandedTeams(); len(got) != 1 || got[0].ID != 7 {
		t.Fatalf("UnexpandedTeams() = %v", got)
	}

	s.ExpandTeam(team, []User{{ID: 1, Login: "a"}, {ID: 4, Login: "d"}})
	if s.Contains(team.AccountID()) {
		t.Error("expanded team should be removed")
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
	if len(s.UnexpandedTeams()) != 0 {
		t.Error("no teams should remain unexpanded")
	}
}

func TestSetExpandedTeamNotListed(t *testing.T) {
	s := NewSet(Team{ID: 1, Org: "o", Name: "t", Members: []User{}})
	if len(s.UnexpandedTeams()) != 0 {
		t.Error("a team with an empty, non-nil member list is expanded")
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		acct Account
		want string
	}{
		{User{ID: 1, Login: "alice"}, "alice"},
		{User{ID: 1, Login: "alice", Name: "Alice Smith"}, "alice (Alice Smith)"},
		{User{ID: 1, Login: "bob", Name: "bob"}, "bob"},
		{Team{ID: 1, Org: "rust-lang", Name: "libs"}, "rust-lang/libs"},
		{Team{ID: 1, Name: "libs"}, "libs"},
	}
	for _, tt := range tests {
		if got := tt.acct.DisplayName(); got != tt.want {
			t.Errorf("DisplayName() = %q, want %q", got, tt.want)
		}
	}
}

func TestSetString(t *testing.T) {
	s := NewSet(User{ID: 2, Login: "b"}, User{ID: 1, Login: "a"})
	if got := s.String(); got != "{a, b}" {
		t.Errorf("String() = %q", got)
	}
}

func TestPackageString(t *testing.T) {
	if got := (Package{Name: "serde"}).String(); got != "serde" {
		t.Errorf("got %q", got)
	}
	if got := (Package{Name: "serde", Version: "1.0.0"}).String(); got != "serde@1.0.0" {
		t.Errorf("got %q", got)
	}
}
