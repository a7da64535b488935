// Package integrations provides the shared HTTP client for registry APIs.
//
// # Overview
//
// Registry-specific clients live in subpackages and embed [Client]:
//
//   - [crates]: crates.io owners and team membership
//
// # Shared Infrastructure
//
// [Client] handles:
//   - Response caching via [cache.Cache] (file, Redis or none)
//   - Retries with exponential backoff per [httputil.Policy]
//   - A minimum interval between requests, shared by all goroutines
//   - A circuit breaker that stops requests after repeated transient failures
//   - Observability hooks for every request
//
// # Error Classification
//
// [Client.Get] maps responses onto sentinel errors:
//
//   - 404: [ErrNotFound], not retried
//   - other 4xx: [ErrClient], not retried
//   - 429, 5xx, network errors: [ErrNetwork], retried by [Client.Cached]
//   - open breaker: [ErrUnavailable], not retried
package integrations
