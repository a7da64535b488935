package snapshot

// Table file names inside the crates.io dump's data directory.
const (
	TableCrates      = "crates.csv"
	TableCrateOwners = "crate_owners.csv"
	TableUsers       = "users.csv"
	TableTeams       = "teams.csv"

	// TableTeamMembers is not part of every dump. When present it lets the
	// index expand teams without API calls.
	TableTeamMembers = "team_members.csv"
)

// RequiredTables must all be present for a snapshot to be usable.
var RequiredTables = []string{TableCrates, TableCrateOwners, TableUsers, TableTeams}

// OptionalTables are extracted when the archive carries them.
var OptionalTables = []string{TableTeamMembers}

func knownTable(name string) bool {
	for _, t := range RequiredTables {
		if t == name {
			return true
		}
	}
	for _, t := range OptionalTables {
		if t == name {
			return true
		}
	}
	return false
}
