package publishers

import (
	"sort"
	"strings"
)

// Set is a collection of accounts attributed to one package, deduplicated by
// [AccountID]. Insertion order is not significant; [Set.Accounts] returns a
// stable ordering for rendering.
//
// The zero value is an empty set ready to use. A Set is not safe for
// concurrent mutation.
type Set struct {
	accounts map[AccountID]Account
}

// NewSet returns a set holding accts.
func NewSet(accts ...Account) *Set {
	s := &Set{}
	for _, a := range accts {
		s.Add(a)
	}
	return s
}

// Add inserts a, replacing any account with the same id.
func (s *Set) Add(a Account) {
	if s.accounts == nil {
		s.accounts = make(map[AccountID]Account)
	}
	s.accounts[a.AccountID()] = a
}

// Remove deletes the account with the given id, if present.
func (s *Set) Remove(id AccountID) {
	delete(s.accounts, id)
}

// Contains reports whether an account with id is in the set.
func (s *Set) Contains(id AccountID) bool {
	if s == nil {
		return false
	}
	_, ok := s.accounts[id]
	return ok
}

// Len returns the number of accounts.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.accounts)
}

// Union adds every account of other to s.
func (s *Set) Union(other *Set) {
	if other == nil {
		return
	}
	for _, a := range other.accounts {
		s.Add(a)
	}
}

// Clone returns an independent copy. Cloning nil yields an empty set.
func (s *Set) Clone() *Set {
	out := &Set{}
	out.Union(s)
	return out
}

// Accounts returns all accounts, users before teams, each ordered by id.
func (s *Set) Accounts() []Account {
	if s == nil {
		return nil
	}
	out := make([]Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return lessID(out[i].AccountID(), out[j].AccountID()) })
	return out
}

// Users returns the user accounts ordered by id.
func (s *Set) Users() []User {
	var out []User
	for _, a := range s.Accounts() {
		if u, ok := a.(User); ok {
			out = append(out, u)
		}
	}
	return out
}

// Teams returns the team accounts ordered by id.
func (s *Set) Teams() []Team {
	var out []Team
	for _, a := range s.Accounts() {
		if t, ok := a.(Team); ok {
			out = append(out, t)
		}
	}
	return out
}

// UnexpandedTeams returns team accounts whose membership is still unknown.
func (s *Set) UnexpandedTeams() []Team {
	var out []Team
	for _, t := range s.Teams() {
		if t.Members == nil {
			out = append(out, t)
		}
	}
	return out
}

// ExpandTeam replaces team with its members. An empty member list removes
// the team without adding anyone.
func (s *Set) ExpandTeam(team Team, members []User) {
	s.Remove(team.AccountID())
	for _, m := range members {
		s.Add(m)
	}
}

// String renders the display names in [Set.Accounts] order.
func (s *Set) String() string {
	accts := s.Accounts()
	names := make([]string, len(accts))
	for i, a := range accts {
		names[i] = a.DisplayName()
	}
	return "{" + strings.Join(names, ", ") + "}"
}

func lessID(a, b AccountID) bool {
	if a.Kind != b.Kind {
		return a.Kind == KindUser
	}
	return a.ID < b.ID
}
