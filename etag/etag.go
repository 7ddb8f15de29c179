// Package etag computes the content fingerprint used for optimistic concurrency.
//
// Every backend and every client must agree on the encoding: SHA-1 over the raw
// stored bytes, lowercase hex. Redis' server-side redis.sha1hex produces the same
// string, which lets Lua scripts compare hashes without shipping values back.
package etag

import (
	"crypto/sha1" //nolint:gosec // fingerprint, not a security boundary
	"encoding/hex"
)

// Size is the length of an encoded ETag.
const Size = sha1.Size * 2

// Of returns the ETag of b.
func Of(b []byte) string {
	sum := sha1.Sum(b) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// Match reports whether the caller's hash equals the current one.
// An empty expected hash never matches.
func Match(expected, current string) bool {
	return expected != "" && expected == current
}
