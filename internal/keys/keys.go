// Package keys lays out cache entries and set namespaces inside a single flat
// keyspace (Redis, bigcache, badger).
//
//	<base>e:<key>                 - entries of the root namespace
//	<base>s<len>:<name>:<key>     - entries of set <name>
//
// The length prefix keeps set names containing ':' from colliding with
// each other or with root entries.
package keys

import (
	"strconv"
	"strings"
)

// Space is one namespace inside the flat keyspace.
type Space struct {
	base   string
	prefix string
}

// Root returns the root namespace under base.
func Root(base string) Space {
	return Space{base: base, prefix: base + "e:"}
}

// Set returns the namespace of set name, a sibling of the root namespace.
func (s Space) Set(name string) Space {
	return Space{base: s.base, prefix: s.base + "s" + strconv.Itoa(len(name)) + ":" + name + ":"}
}

// Prefix returns the prefix shared by every key of the namespace.
func (s Space) Prefix() string { return s.prefix }

// Key returns the storage key for the user key k.
func (s Space) Key(k string) string { return s.prefix + k }

// User strips the namespace prefix from a storage key.
// ok is false when storageKey belongs to another namespace.
func (s Space) User(storageKey string) (string, bool) {
	if !strings.HasPrefix(storageKey, s.prefix) {
		return "", false
	}
	return storageKey[len(s.prefix):], true
}

// Glob returns a Redis MATCH pattern selecting every key of the namespace.
func (s Space) Glob() string {
	var b strings.Builder
	b.Grow(len(s.prefix) + 1)
	for _, r := range s.prefix {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('*')
	return b.String()
}
