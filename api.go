package mightycache

import (
	"context"

	"github.com/unkn0wn-root/mightycache/backend"
)

// Result carries the ETag of the entry after Save or Head.
type Result struct {
	ETag string
}

// Entry is what Restore returns. When NotModified is true the caller already
// holds the current version and Body is nil.
type Entry struct {
	ETag        string
	Body        []byte
	NotModified bool
}

// Store is the conditional CRUD contract shared by Cache and Set.
// An empty expected/ifNewer hash means "not provided".
type Store interface {
	// Save writes body at key. With a non-empty expected hash the write only
	// happens when key is missing or its current ETag equals expected;
	// otherwise it fails with ErrHashMismatch.
	Save(ctx context.Context, body []byte, key, expected string) (Result, error)

	// Restore returns the entry at key. If ifNewer equals the current ETag the
	// body is omitted. Missing keys fail with ErrCacheNotFound.
	Restore(ctx context.Context, key, ifNewer string) (Entry, error)

	// Head returns the current ETag of key without the body.
	Head(ctx context.Context, key string) (Result, error)

	// Remove deletes key, honoring expected like Save does.
	Remove(ctx context.Context, key, expected string) error

	Keys(ctx context.Context) ([]string, error)
	Exists(ctx context.Context, key string) (bool, error)

	// Clear deletes every entry of this namespace.
	Clear(ctx context.Context) error
}

// Cache is a Store over one backend, able to hand out isolated Sets.
type Cache interface {
	Store

	// Set returns the Set called key, provisioning it on first use. Concurrent
	// and repeated calls for the same key return the same instance.
	Set(ctx context.Context, key string) (Set, error)

	// Close releases the backend.
	Close(ctx context.Context) error
}

// Set is a namespaced sub-cache. Sets cannot be nested.
type Set interface {
	Store

	Key() string
	State() SetState

	// Set always fails with ErrNestedSet.
	Set(ctx context.Context, key string) (Set, error)

	// Destroy drops the namespace and everything in it. The Set is
	// deregistered from its parent, so a later Cache.Set call starts fresh.
	Destroy(ctx context.Context) error
}

// Options configure a Cache. Only Backend is required.
type Options struct {
	Backend backend.Backend

	Logger Logger // if nil, NopLogger is used
	Hooks  Hooks  // if nil, NopHooks is used
}

// New wraps opts.Backend in a Cache. The Cache owns the backend and closes it
// on Close.
func New(opts Options) (Cache, error) {
	return newCache(opts)
}
