// Package cargo extracts the crates.io dependencies of a Rust workspace.
//
// [Runner.Packages] invokes `cargo metadata --format-version 1`, forwarding
// any extra arguments (such as --manifest-path or --features), and
// [ParseMetadata] reduces its JSON output to the registry packages whose
// publishers can be audited. Path and git dependencies are skipped because
// nobody publishes them to the registry.
package cargo
