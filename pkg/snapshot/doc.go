// Package snapshot manages the local copy of the crates.io database dump.
//
// # Overview
//
// A snapshot is one downloaded dump generation: the ownership tables
// extracted from the archive plus the instant the download completed.
// Three pieces cooperate:
//
//   - [Fetcher] downloads and unpacks the archive into a staging area
//   - [Store] installs staged tables and answers freshness questions
//   - [Refresh] and [Ensure] combine the two with a retry policy and the
//     query-time auto-update rules
//
// # On-disk Layout
//
//	<dir>/
//	  snapshot.toml          generation id, acquisition time, table files
//	  generations/<uuid>/    table files of one generation
//	  staging/               fetcher scratch space
//
// Readers locate tables only through snapshot.toml, and [Store.Install]
// replaces that file with a single rename. A reader therefore sees either
// the old generation or the new one, never a mixture.
//
// # Freshness
//
// [IsFresh] is a pure function of the acquisition time, the current time and
// the maximum age. A snapshot exactly max age old is stale.
package snapshot
