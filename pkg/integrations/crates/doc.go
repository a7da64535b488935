// Package crates provides the crates.io API client used to fill gaps in the
// registry snapshot.
//
// # Overview
//
// [Client] implements [publishers.LiveSource]:
//
//	client := crates.NewClient(cache.NewNullCache(), time.Hour)
//	set, err := client.OwnersOf(ctx, "serde")
//
// # Endpoints
//
//   - GET /api/v1/crates/{name}/owners lists users and teams
//   - GET /api/v1/teams/{id}/members lists the users of a team
//
// A team owner whose response entry carries a "members" array is expanded
// inline; otherwise the members endpoint is queried. Membership is memoized
// per client so a team shared by many crates costs one request.
//
// # Errors
//
// Failures are returned as [*APIError]. 404 responses are [NotFound] and
// other 4xx responses [ClientError]; neither is retried. Server errors,
// 429 responses and network failures are retried and then reported as
// [Transient].
//
// # User-Agent
//
// crates.io asks API clients to identify themselves; the client sends
// [buildinfo.UserAgent] unless overridden.
package crates
