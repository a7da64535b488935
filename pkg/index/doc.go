// Package index builds the in-memory registry index from a snapshot.
//
// [Build] reads the snapshot tables once and produces an [Index] mapping
// crate name to its publisher set. Owner rows that reference a team are
// expanded into the team's members when the dump carries membership rows;
// otherwise the team is kept as a team account for the resolver to expand
// through the registry API.
//
// An Index is read-only after construction and safe for concurrent use.
// It is an ordinary value: tests can build several from synthetic snapshots
// in the same process.
//
// # Table Format
//
// Tables are comma-separated with a header row. Columns are located by name,
// so additional columns are ignored. A missing required column, or a value
// that cannot be decoded, fails the build with a [ParseError].
package index
