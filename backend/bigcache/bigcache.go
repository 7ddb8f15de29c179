// Package bigcache is an in-process Backend on allegro/bigcache.
//
// Entries and sets share one BigCache, separated by key prefixes. Writes are
// serialized per key through striped locks so PutIfMatch and DelIfMatch are
// atomic with respect to every other write. Reads take no lock.
package bigcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	bc "github.com/allegro/bigcache/v3"
	"github.com/cespare/xxhash/v2"

	"github.com/unkn0wn-root/mightycache/backend"
	"github.com/unkn0wn-root/mightycache/etag"
	"github.com/unkn0wn-root/mightycache/internal/keys"
)

const (
	DefaultLifeWindow = 10 * time.Minute
	stripes           = 64
)

var (
	_ backend.Backend           = (*BigCache)(nil)
	_ backend.Namespacer        = (*BigCache)(nil)
	_ backend.CompareAndSwapper = (*BigCache)(nil)
	_ backend.Hasher            = (*BigCache)(nil)
)

type Config struct {
	LifeWindow         time.Duration // default DefaultLifeWindow
	CleanWindow        time.Duration // 0 = expired entries are only replaced, never swept
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited
	Verbose            bool
}

type shared struct {
	c      *bc.BigCache
	locks  [stripes]sync.Mutex
	closed atomic.Bool
}

type BigCache struct {
	sh    *shared
	space keys.Space
	root  bool
}

func New(cfg Config) (*BigCache, error) {
	life := cfg.LifeWindow
	if life <= 0 {
		life = DefaultLifeWindow
	}
	conf := bc.DefaultConfig(life)
	conf.Verbose = cfg.Verbose
	conf.CleanWindow = cfg.CleanWindow
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.New(context.Background(), conf)
	if err != nil {
		return nil, err
	}
	return &BigCache{sh: &shared{c: c}, space: keys.Root(""), root: true}, nil
}

func (b *BigCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	if b.sh.closed.Load() {
		return nil, false, backend.ErrClosed
	}
	return b.get(b.space.Key(key))
}

func (b *BigCache) Put(_ context.Context, key string, value []byte) error {
	if b.sh.closed.Load() {
		return backend.ErrClosed
	}
	sk := b.space.Key(key)
	mu := b.sh.lock(sk)
	defer mu.Unlock()
	return b.sh.c.Set(sk, value)
}

func (b *BigCache) Del(_ context.Context, key string) error {
	if b.sh.closed.Load() {
		return backend.ErrClosed
	}
	sk := b.space.Key(key)
	mu := b.sh.lock(sk)
	defer mu.Unlock()
	return b.del(sk)
}

func (b *BigCache) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := b.Get(ctx, key)
	return ok, err
}

func (b *BigCache) Keys(context.Context) ([]string, error) {
	if b.sh.closed.Load() {
		return nil, backend.ErrClosed
	}
	stored := b.storageKeys(b.space)
	out := make([]string, 0, len(stored))
	for _, sk := range stored {
		k, _ := b.space.User(sk)
		out = append(out, k)
	}
	return out, nil
}

func (b *BigCache) Clear(context.Context) error {
	if b.sh.closed.Load() {
		return backend.ErrClosed
	}
	return b.clear(b.space)
}

// Close stops the BigCache janitor. Namespaces no-op.
func (b *BigCache) Close(context.Context) error {
	if !b.root || b.sh.closed.Swap(true) {
		return nil
	}
	return b.sh.c.Close()
}

func (b *BigCache) Namespace(_ context.Context, name string) (backend.Backend, error) {
	if b.sh.closed.Load() {
		return nil, backend.ErrClosed
	}
	if !b.root {
		return nil, backend.ErrNestedNamespace
	}
	return &BigCache{sh: b.sh, space: b.space.Set(name)}, nil
}

func (b *BigCache) DropNamespace(_ context.Context, name string) error {
	if b.sh.closed.Load() {
		return backend.ErrClosed
	}
	return b.clear(b.space.Set(name))
}

func (b *BigCache) PutIfMatch(_ context.Context, key string, value []byte, expected string) (string, bool, error) {
	if b.sh.closed.Load() {
		return "", false, backend.ErrClosed
	}
	sk := b.space.Key(key)
	mu := b.sh.lock(sk)
	defer mu.Unlock()

	cur, ok, err := b.get(sk)
	if err != nil {
		return "", false, err
	}
	if ok && expected != "" {
		if tag := etag.Of(cur); tag != expected {
			return tag, false, nil
		}
	}
	if err := b.sh.c.Set(sk, value); err != nil {
		return "", false, err
	}
	return etag.Of(value), true, nil
}

func (b *BigCache) DelIfMatch(_ context.Context, key, expected string) (backend.DelResult, error) {
	if b.sh.closed.Load() {
		return backend.DelResult{}, backend.ErrClosed
	}
	sk := b.space.Key(key)
	mu := b.sh.lock(sk)
	defer mu.Unlock()

	cur, ok, err := b.get(sk)
	if err != nil || !ok {
		return backend.DelResult{}, err
	}
	tag := etag.Of(cur)
	if expected != "" && tag != expected {
		return backend.DelResult{Found: true, Current: tag}, nil
	}
	if err := b.del(sk); err != nil {
		return backend.DelResult{}, err
	}
	return backend.DelResult{Found: true, Deleted: true, Current: tag}, nil
}

func (b *BigCache) ETag(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := b.Get(ctx, key)
	if err != nil || !ok {
		return "", false, err
	}
	return etag.Of(v), true, nil
}

func (b *BigCache) get(sk string) ([]byte, bool, error) {
	v, err := b.sh.c.Get(sk)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (b *BigCache) del(sk string) error {
	if err := b.sh.c.Delete(sk); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
		return err
	}
	return nil
}

// storageKeys walks the whole cache and returns the keys of space.
func (b *BigCache) storageKeys(space keys.Space) []string {
	var out []string
	it := b.sh.c.Iterator()
	for it.SetNext() {
		info, err := it.Value()
		if err != nil {
			continue // entry vanished mid-iteration
		}
		if _, ok := space.User(info.Key()); ok {
			out = append(out, info.Key())
		}
	}
	return out
}

func (b *BigCache) clear(space keys.Space) error {
	for _, sk := range b.storageKeys(space) {
		mu := b.sh.lock(sk)
		err := b.del(sk)
		mu.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *shared) lock(sk string) *sync.Mutex {
	mu := &s.locks[xxhash.Sum64String(sk)%stripes]
	mu.Lock()
	return mu
}
