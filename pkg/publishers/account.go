package publishers

import (
	"fmt"
	"strconv"
)

// AccountKind distinguishes individual users from teams.
type AccountKind string

const (
	KindUser AccountKind = "user"
	KindTeam AccountKind = "team"
)

// AccountID identifies an account across kinds. User and team ids come from
// separate registry tables and may overlap numerically, so the kind is part
// of the identity.
type AccountID struct {
	Kind AccountKind
	ID   int64
}

func (id AccountID) String() string {
	return string(id.Kind) + ":" + strconv.FormatInt(id.ID, 10)
}

// Account is a publisher identity: either a [User] or a [Team].
type Account interface {
	AccountID() AccountID
	DisplayName() string
	isAccount()
}

// User is an individual registry account.
type User struct {
	ID    int64  `json:"id" yaml:"id"`
	Login string `json:"login" yaml:"login"`
	Name  string `json:"name,omitempty" yaml:"name,omitempty"`
}

func (u User) AccountID() AccountID { return AccountID{Kind: KindUser, ID: u.ID} }

// DisplayName returns "login (Name)" when a display name is known.
func (u User) DisplayName() string {
	if u.Name != "" && u.Name != u.Login {
		return fmt.Sprintf("%s (%s)", u.Login, u.Name)
	}
	return u.Login
}

func (User) isAccount() {}

// Team is an organization-scoped group of users that owns packages.
// Members is nil until the membership has been resolved.
type Team struct {
	ID      int64  `json:"id" yaml:"id"`
	Org     string `json:"org" yaml:"org"`
	Name    string `json:"name" yaml:"name"`
	Members []User `json:"members,omitempty" yaml:"members,omitempty"`
}

func (t Team) AccountID() AccountID { return AccountID{Kind: KindTeam, ID: t.ID} }

// DisplayName returns "org/name".
func (t Team) DisplayName() string {
	if t.Org == "" {
		return t.Name
	}
	return t.Org + "/" + t.Name
}

func (Team) isAccount() {}

var (
	_ Account = User{}
	_ Account = Team{}
)
