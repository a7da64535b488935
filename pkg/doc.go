// Package pkg provides the core libraries for supplychain, a tool that
// answers "who can publish the crates my build depends on?".
//
// # Overview
//
// The pkg directory is organized into these areas:
//
//  1. [snapshot] - Download and atomic install of the crates.io database dump
//  2. [index] - In-memory crate to owner index built from a snapshot
//  3. [integrations] - Registry API clients with caching, retries and pacing
//  4. [publishers] - Accounts, publisher sets and the resolver that merges both sources
//  5. [io] - JSON and YAML report documents
//
// # Architecture
//
// The typical data flow:
//
//	cargo metadata / command line
//	         ↓
//	    [deps/cargo] package (crates.io packages of a workspace)
//	         ↓
//	    [publishers] package (snapshot index first, live API for misses)
//	         ↓
//	    [io] package (report document)
//
// # Quick Start
//
//	store := snapshot.NewStore(dir)
//	res := snapshot.Ensure(ctx, store, fetcher, snapshot.EnsureOptions{AutoUpdate: true})
//	idx, _ := index.Build(ctx, res.Snapshot)
//
//	client := crates.NewClient(cache.NewNullCache(), time.Hour)
//	r := publishers.NewResolver(idx, client)
//	report := r.Resolve(ctx, []publishers.Package{{Name: "serde"}})
//
// # Supporting Packages
//
//   - [cache]: response cache backends (file, Redis, none)
//   - [config]: layered configuration (defaults, TOML file, environment, flags)
//   - [errors]: coded errors with user-facing messages and hints
//   - [httputil]: retry policy and HTTP transport
//   - [observability]: hooks for snapshot, resolve, cache and HTTP events
//   - [buildinfo]: version information set at build time
package pkg
