package cache

// ScopedKeyer wraps a Keyer with a prefix for namespace isolation.
// Use it when several registries or tool versions share one Redis:
//
//	keyer := cache.NewScopedKeyer(cache.NewDefaultKeyer(), "supplychain:v1:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// OwnersKey generates a prefixed owners key.
func (k *ScopedKeyer) OwnersKey(api, crate string) string {
	return k.prefix + k.inner.OwnersKey(api, crate)
}

// TeamMembersKey generates a prefixed team membership key.
func (k *ScopedKeyer) TeamMembersKey(api string, teamID int64) string {
	return k.prefix + k.inner.TeamMembersKey(api, teamID)
}

// HTTPKey generates a prefixed key for HTTP response caching.
func (k *ScopedKeyer) HTTPKey(namespace, key string) string {
	return k.prefix + k.inner.HTTPKey(namespace, key)
}
