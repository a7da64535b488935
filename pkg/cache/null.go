package cache

import (
	"context"
	"fmt"
	"time"
)

// Backend names accepted by [Open].
const (
	BackendNone  = "none"
	BackendFile  = "file"
	BackendRedis = "redis"
)

// Options selects and configures a backend for [Open].
type Options struct {
	Backend  string
	Dir      string // file backend
	RedisURL string // redis backend
}

// Open returns the backend named by opts. An empty name selects
// [BackendNone].
func Open(ctx context.Context, opts Options) (Cache, error) {
	switch opts.Backend {
	case BackendNone, "":
		return NewNullCache(), nil
	case BackendFile:
		return NewFileCache(opts.Dir)
	case BackendRedis:
		return NewRedisCache(ctx, opts.RedisURL)
	}
	return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
}

// NullCache is the "none" backend: every lookup misses and writes are
// dropped, so each run asks the registry again.
type NullCache struct{}

// NewNullCache returns the "none" backend.
func NewNullCache() Cache { return NullCache{} }

func (NullCache) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (NullCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (NullCache) Delete(context.Context, string) error                     { return nil }
func (NullCache) Close() error                                             { return nil }

var _ Cache = NullCache{}
