// Package backend defines the storage abstraction used by mightycache.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly the
// same []byte that was previously passed to Put for a key. The cache derives an
// entry's ETag from those bytes, so any prepended metadata, compression or
// re-encoding that is not fully reversed breaks hash comparison across writers.
//
// Optional capabilities are discovered with type assertions:
//   - Namespacer: the backend can carve out isolated sub-namespaces (Sets).
//   - CompareAndSwapper: the backend can check-and-write atomically.
//   - Hasher: the backend can report an entry's ETag without returning the body.
package backend

import (
	"context"
	"errors"
)

var (
	// ErrClosed is returned by backends used after Close.
	ErrClosed = errors.New("backend: closed")

	// ErrNestedNamespace is returned by Namespace on a namespace.
	ErrNestedNamespace = errors.New("backend: namespaces cannot be nested")
)

// Backend is a minimal byte store keyed by string.
// Must be safe for concurrent use.
type Backend interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Put stores value at key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Del removes key. Deleting a missing key is not an error.
	Del(ctx context.Context, key string) error

	// Has reports whether key exists.
	Has(ctx context.Context, key string) (bool, error)

	// Keys lists every key in this namespace, in no particular order.
	Keys(ctx context.Context) ([]string, error)

	// Clear removes every key in this namespace. Child namespaces are not touched.
	Clear(ctx context.Context) error

	// Close releases resources. Namespaces returned by a Namespacer borrow the
	// parent's resources and their Close is a no-op.
	Close(ctx context.Context) error
}

// Namespacer is implemented by backends that support isolated sub-namespaces.
type Namespacer interface {
	// Namespace provisions (if needed) and returns the namespace called name.
	Namespace(ctx context.Context, name string) (Backend, error)

	// DropNamespace removes the namespace and everything stored in it.
	DropNamespace(ctx context.Context, name string) error
}

// CompareAndSwapper is implemented by backends that can perform the
// hash-check-then-write sequence as a single atomic operation.
// Hashes are etag.Of over the stored bytes.
type CompareAndSwapper interface {
	// PutIfMatch stores value when key is missing or when the ETag of the
	// current value equals expected. Otherwise nothing is written and the
	// current ETag is returned with swapped=false.
	PutIfMatch(ctx context.Context, key string, value []byte, expected string) (current string, swapped bool, err error)

	// DelIfMatch deletes key when it exists and, if expected is non-empty,
	// its current ETag equals expected.
	DelIfMatch(ctx context.Context, key, expected string) (DelResult, error)
}

// DelResult reports the outcome of DelIfMatch.
type DelResult struct {
	Found   bool   // key existed
	Deleted bool   // key was removed
	Current string // ETag of the value at the time of the check (when Found)
}

// Hasher is implemented by backends that can report an entry's ETag more
// cheaply than returning its body.
type Hasher interface {
	// ETag returns the hash of the value at key; ok=false on miss.
	ETag(ctx context.Context, key string) (tag string, ok bool, err error)
}
