// Package mightycache implements a key-addressed cache with optimistic
// concurrency control over pluggable byte-store backends.
//
// Every entry's ETag is the SHA-1 (hex) of its stored bytes. Writers that pass
// the ETag they last observed only overwrite or delete when it still matches;
// otherwise they get ErrHashMismatch and can re-read. Readers that pass an
// ETag get the body only when it changed.
//
// Components:
//   - backend.Backend: byte store (memory, fs, redis, bigcache, badger).
//   - Cache: conditional Save/Restore/Head/Remove plus Keys/Exists/Clear.
//   - Set: an isolated namespace of a Cache with its own lifecycle.
//   - handler: net/http adapter mapping outcomes to 200/204/304/404/412/500.
//
// CAS pattern:
//
//	r, _ := cache.Head(ctx, k)                  // observe
//	_, err := cache.Save(ctx, next, k, r.ETag)  // write iff unchanged
//	if errors.Is(err, mightycache.ErrHashMismatch) { /* re-read and retry */ }
//
// When the backend does not implement backend.CompareAndSwapper the check and
// the write are two separate backend calls, and two writers holding the same
// ETag can both succeed. The bundled memory, redis, bigcache and badger
// backends all close that window; fs does not.
package mightycache
