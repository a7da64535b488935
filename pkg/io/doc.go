// Package io serializes publisher reports for machines.
//
// # Document Format
//
// [NewDocument] flattens a [publishers.Report] into a stable structure that
// encodes identically as JSON ([WriteJSON]) and YAML ([WriteYAML]):
//
//	{
//	  "generated_at": "2026-01-02T15:04:05Z",
//	  "snapshot": {"generation": "...", "acquired_at": "..."},
//	  "crates": [
//	    {
//	      "name": "serde",
//	      "version": "1.0.200",
//	      "source": "snapshot",
//	      "publishers": [{"kind": "user", "id": 3618, "login": "dtolnay"}]
//	    },
//	    {
//	      "name": "ghost",
//	      "source": "none",
//	      "publishers": [],
//	      "failure": {"kind": "not_found", "message": "..."}
//	    }
//	  ],
//	  "publishers": [
//	    {"kind": "user", "id": 3618, "login": "dtolnay", "crates": ["serde"]}
//	  ]
//	}
//
// Crates keep the order of the report. An empty publishers list without a
// failure means the crate was queried and nobody can publish it; a failure
// means the list may be incomplete.
//
// Teams appear in publishers lists only when their membership could not be
// resolved. Their entries carry "org" and "name" instead of "login".
package io
