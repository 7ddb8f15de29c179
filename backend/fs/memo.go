package fs

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/unkn0wn-root/mightycache/etag"
)

const defaultMemoEntries = 1 << 16

type memoEntry struct {
	size int64
	mod  time.Time
	tag  string
}

// memo is a ristretto cache of file ETags. A nil *memo disables memoization
// and every method falls through to the filesystem.
type memo struct {
	c *ristretto.Cache
}

func newMemo(entries int64) (*memo, error) {
	if entries <= 0 {
		entries = defaultMemoEntries
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: entries * 10,
		MaxCost:     entries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &memo{c: c}, nil
}

func (m *memo) etag(path string) (string, bool, error) {
	before, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	if m != nil {
		if v, ok := m.c.Get(path); ok {
			if e, ok := v.(memoEntry); ok && e.size == before.Size() && e.mod.Equal(before.ModTime()) {
				return e.tag, true, nil
			}
			m.c.Del(path)
		}
	}

	b, err := os.ReadFile(path) //nolint:gosec
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	tag := etag.Of(b)

	if m != nil {
		// only remember what did not change while we were reading it
		after, err := os.Stat(path)
		if err == nil && after.Size() == before.Size() && after.ModTime().Equal(before.ModTime()) {
			m.c.Set(path, memoEntry{size: after.Size(), mod: after.ModTime(), tag: tag}, 1)
		}
	}
	return tag, true, nil
}

func (m *memo) forget(path string) {
	if m != nil {
		m.c.Del(path)
	}
}

func (m *memo) reset() {
	if m != nil {
		m.c.Clear()
	}
}

func (m *memo) close() {
	if m != nil {
		m.c.Close()
	}
}
