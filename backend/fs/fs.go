// Package fs stores entries as files in a directory.
//
// Keys are percent-encoded into file names and decoded again by Keys. An
// encoded name longer than MaxNameLen bytes is rejected with ErrKeyTooLong.
// Each non-ASCII byte encodes to three, so 28 CJK characters is the limit. Sets are
// sub-directories under <dir>/.sets. Writes go through a temp file and a
// rename, so readers never observe a partial value. There is no atomic
// compare-and-swap: two processes racing on the same key can both pass the
// cache's hash check.
package fs

import (
	"context"
	"errors"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/unkn0wn-root/mightycache/backend"
)

const (
	setsDir = ".sets"

	// MaxNameLen is NAME_MAX on common filesystems (ext4, xfs, apfs, ntfs).
	MaxNameLen     = 255
	tmpPattern     = ".tmp-*"
	defaultDirPerm = 0o700
)

var (
	ErrNoDir    = errors.New("fs backend: directory is empty")
	ErrEmptyKey = errors.New("fs backend: empty key")
	// ErrKeyTooLong reports a key whose encoded file name exceeds MaxNameLen.
	ErrKeyTooLong = errors.New("fs backend: encoded key exceeds file name limit")
)

var (
	_ backend.Backend    = (*FS)(nil)
	_ backend.Namespacer = (*FS)(nil)
	_ backend.Hasher     = (*FS)(nil)
)

type Config struct {
	Dir     string
	DirPerm os.FileMode // default 0o700

	// HashMemo remembers the ETag of each file keyed by size and mtime, so
	// Head and conditional writes skip re-hashing unchanged files. Only safe
	// when this process is the sole writer of Dir.
	HashMemo        bool
	HashMemoEntries int64 // default 1<<16
}

type FS struct {
	dir  string
	perm os.FileMode
	memo *memo // shared with namespaces; nil when disabled
	root bool
}

// New creates Dir if needed.
func New(cfg Config) (*FS, error) {
	if cfg.Dir == "" {
		return nil, ErrNoDir
	}
	perm := cfg.DirPerm
	if perm == 0 {
		perm = defaultDirPerm
	}
	if err := os.MkdirAll(cfg.Dir, perm); err != nil {
		return nil, err
	}
	f := &FS{dir: cfg.Dir, perm: perm, root: true}
	if cfg.HashMemo {
		m, err := newMemo(cfg.HashMemoEntries)
		if err != nil {
			return nil, err
		}
		f.memo = m
	}
	return f, nil
}

func (f *FS) Get(_ context.Context, key string) ([]byte, bool, error) {
	path, err := f.path(key)
	if err != nil {
		return nil, false, err
	}
	b, err := os.ReadFile(path) //nolint:gosec // name is percent-encoded, cannot escape dir
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (f *FS) Put(_ context.Context, key string, value []byte) error {
	path, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(f.dir, f.perm); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.dir, tmpPattern)
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	f.memo.forget(path)
	return nil
}

func (f *FS) Del(_ context.Context, key string) error {
	path, err := f.path(key)
	if err != nil {
		return err
	}
	f.memo.forget(path)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (f *FS) Has(_ context.Context, key string) (bool, error) {
	path, err := f.path(key)
	if err != nil {
		return false, err
	}
	st, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return st.Mode().IsRegular(), nil
}

func (f *FS) Keys(_ context.Context) ([]string, error) {
	names, err := f.entries()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		k, err := decode(name)
		if err != nil {
			continue // not ours
		}
		out = append(out, k)
	}
	return out, nil
}

func (f *FS) Clear(_ context.Context) error {
	names, err := f.entries()
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := os.Remove(filepath.Join(f.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	f.memo.reset()
	return nil
}

// Close releases the hash memo. The directory is left in place.
func (f *FS) Close(context.Context) error {
	if f.root {
		f.memo.close()
	}
	return nil
}

func (f *FS) Namespace(_ context.Context, name string) (backend.Backend, error) {
	if !f.root {
		return nil, backend.ErrNestedNamespace
	}
	dir, err := f.setDir(name)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, f.perm); err != nil {
		return nil, err
	}
	return &FS{dir: dir, perm: f.perm, memo: f.memo}, nil
}

func (f *FS) DropNamespace(_ context.Context, name string) error {
	dir, err := f.setDir(name)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	f.memo.reset()
	return nil
}

// ETag hashes the file, or answers from the memo when enabled.
func (f *FS) ETag(_ context.Context, key string) (string, bool, error) {
	path, err := f.path(key)
	if err != nil {
		return "", false, err
	}
	return f.memo.etag(path)
}

// entries lists the file names of stored entries, skipping temp files and
// the sets directory.
func (f *FS) entries() ([]string, error) {
	des, err := os.ReadDir(f.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(des))
	for _, de := range des {
		name := de.Name()
		if !de.Type().IsRegular() || strings.HasPrefix(name, ".") {
			continue
		}
		out = append(out, name)
	}
	return out, nil
}

func (f *FS) path(key string) (string, error) {
	name, err := fileName(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(f.dir, name), nil
}

func (f *FS) setDir(name string) (string, error) {
	dir, err := fileName(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(f.dir, setsDir, dir), nil
}

func fileName(key string) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}
	name := encode(key)
	if len(name) > MaxNameLen {
		return "", ErrKeyTooLong
	}
	return name, nil
}

// encode maps key to a single path element. Everything but [A-Za-z0-9-_.~]
// is percent-encoded, and a leading '.' too, so names never clash with the
// sets directory or temp files.
func encode(key string) string {
	s := strings.ReplaceAll(url.QueryEscape(key), "+", "%20")
	if strings.HasPrefix(s, ".") {
		s = "%2E" + s[1:]
	}
	return s
}

func decode(name string) (string, error) {
	return url.PathUnescape(name)
}
