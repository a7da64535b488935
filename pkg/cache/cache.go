// Package cache provides a byte-oriented cache for registry API responses.
//
// Three backends implement [Cache]:
//
//   - [FileCache]: JSON envelopes under a directory, for CLI use
//   - [RedisCache]: a shared Redis instance, for CI fleets that run the
//     audit on many machines
//   - [NullCache]: stores nothing, used when caching is disabled
//
// Keys are produced by a [Keyer] so that every backend sees the same
// namespace layout. A [ScopedKeyer] adds a prefix, which keeps entries from
// different registry endpoints apart in a shared Redis.
package cache

import (
	"context"
	"strconv"
	"time"
)

// Cache stores opaque byte payloads with an optional time-to-live.
//
// Get reports a miss with ok == false and a nil error. Implementations must
// be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Keyer builds cache keys for registry lookups.
type Keyer interface {
	// OwnersKey is the key for the owner list of a crate on a registry API.
	OwnersKey(api, crate string) string

	// TeamMembersKey is the key for the member list of a team.
	TeamMembersKey(api string, teamID int64) string

	// HTTPKey is the key for an arbitrary cached HTTP response.
	HTTPKey(namespace, key string) string
}

// DefaultKeyer produces readable keys of the form "kind:hash".
type DefaultKeyer struct{}

// NewDefaultKeyer returns the standard key layout.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

func (DefaultKeyer) OwnersKey(api, crate string) string {
	return hashKey("owners", api, crate)
}

func (DefaultKeyer) TeamMembersKey(api string, teamID int64) string {
	return hashKey("members", api, strconv.FormatInt(teamID, 10))
}

func (DefaultKeyer) HTTPKey(namespace, key string) string {
	return "http:" + namespace + ":" + key
}
