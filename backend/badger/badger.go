// Package badger is an embedded Backend on dgraph-io/badger.
//
// Entries and sets share one database, separated by key prefixes.
// Conditional writes run inside a read-write transaction and are retried on
// transaction conflicts.
package badger

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	badgerdb "github.com/dgraph-io/badger/v3"

	"github.com/unkn0wn-root/mightycache"
	"github.com/unkn0wn-root/mightycache/backend"
	"github.com/unkn0wn-root/mightycache/etag"
	"github.com/unkn0wn-root/mightycache/internal/keys"
)

const defaultConflictRetries = 16

var ErrNoPath = errors.New("badger backend: path is required unless InMemory is set")

var (
	_ backend.Backend           = (*Badger)(nil)
	_ backend.Namespacer        = (*Badger)(nil)
	_ backend.CompareAndSwapper = (*Badger)(nil)
	_ backend.Hasher            = (*Badger)(nil)
)

type Config struct {
	Path       string
	InMemory   bool
	SyncWrites bool

	// ConflictRetries bounds how often a conditional write is retried after
	// badger.ErrConflict. Default 16.
	ConflictRetries int

	// Logger receives badger's internal log lines. nil silences them.
	Logger mightycache.Logger
}

type shared struct {
	db      *badgerdb.DB
	retries int
	closed  atomic.Bool
}

type Badger struct {
	sh    *shared
	space keys.Space
	root  bool
}

func New(cfg Config) (*Badger, error) {
	if cfg.Path == "" && !cfg.InMemory {
		return nil, ErrNoPath
	}
	path := cfg.Path
	if cfg.InMemory {
		path = ""
	}
	opts := badgerdb.DefaultOptions(path).
		WithInMemory(cfg.InMemory).
		WithSyncWrites(cfg.SyncWrites).
		WithLogger(nil)
	if cfg.Logger != nil {
		opts = opts.WithLogger(badgerLogger{cfg.Logger})
	}

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger backend: open: %w", err)
	}
	retries := cfg.ConflictRetries
	if retries <= 0 {
		retries = defaultConflictRetries
	}
	return &Badger{
		sh:    &shared{db: db, retries: retries},
		space: keys.Root(""),
		root:  true,
	}, nil
}

func (b *Badger) Get(_ context.Context, key string) ([]byte, bool, error) {
	if b.sh.closed.Load() {
		return nil, false, backend.ErrClosed
	}
	var (
		val   []byte
		found bool
	)
	err := b.sh.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(b.space.Key(key)))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		val, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return val, found, nil
}

func (b *Badger) Put(_ context.Context, key string, value []byte) error {
	if b.sh.closed.Load() {
		return backend.ErrClosed
	}
	return b.sh.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(b.space.Key(key)), value)
	})
}

func (b *Badger) Del(_ context.Context, key string) error {
	if b.sh.closed.Load() {
		return backend.ErrClosed
	}
	return b.sh.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete([]byte(b.space.Key(key)))
	})
}

func (b *Badger) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := b.ETag(ctx, key)
	return ok, err
}

func (b *Badger) Keys(context.Context) ([]string, error) {
	if b.sh.closed.Load() {
		return nil, backend.ErrClosed
	}
	prefix := []byte(b.space.Prefix())
	out := []string{}
	err := b.sh.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			k, _ := b.space.User(string(it.Item().Key()))
			out = append(out, k)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Badger) Clear(context.Context) error {
	if b.sh.closed.Load() {
		return backend.ErrClosed
	}
	return b.sh.db.DropPrefix([]byte(b.space.Prefix()))
}

// Close closes the database. Namespaces no-op.
func (b *Badger) Close(context.Context) error {
	if !b.root || b.sh.closed.Swap(true) {
		return nil
	}
	return b.sh.db.Close()
}

func (b *Badger) Namespace(_ context.Context, name string) (backend.Backend, error) {
	if b.sh.closed.Load() {
		return nil, backend.ErrClosed
	}
	if !b.root {
		return nil, backend.ErrNestedNamespace
	}
	return &Badger{sh: b.sh, space: b.space.Set(name)}, nil
}

func (b *Badger) DropNamespace(_ context.Context, name string) error {
	if b.sh.closed.Load() {
		return backend.ErrClosed
	}
	return b.sh.db.DropPrefix([]byte(b.space.Set(name).Prefix()))
}

func (b *Badger) PutIfMatch(_ context.Context, key string, value []byte, expected string) (string, bool, error) {
	if b.sh.closed.Load() {
		return "", false, backend.ErrClosed
	}
	sk := []byte(b.space.Key(key))
	var (
		current string
		swapped bool
	)
	err := b.update(func(txn *badgerdb.Txn) error {
		current, swapped = "", false
		tag, found, err := hashItem(txn, sk)
		if err != nil {
			return err
		}
		if found && expected != "" && tag != expected {
			current = tag
			return nil
		}
		if err := txn.Set(sk, value); err != nil {
			return err
		}
		swapped = true
		return nil
	})
	return current, swapped, err
}

func (b *Badger) DelIfMatch(_ context.Context, key, expected string) (backend.DelResult, error) {
	if b.sh.closed.Load() {
		return backend.DelResult{}, backend.ErrClosed
	}
	sk := []byte(b.space.Key(key))
	var res backend.DelResult
	err := b.update(func(txn *badgerdb.Txn) error {
		res = backend.DelResult{}
		tag, found, err := hashItem(txn, sk)
		if err != nil || !found {
			return err
		}
		res.Found, res.Current = true, tag
		if expected != "" && tag != expected {
			return nil
		}
		if err := txn.Delete(sk); err != nil {
			return err
		}
		res.Deleted = true
		return nil
	})
	return res, err
}

func (b *Badger) ETag(_ context.Context, key string) (string, bool, error) {
	if b.sh.closed.Load() {
		return "", false, backend.ErrClosed
	}
	var (
		tag   string
		found bool
	)
	err := b.sh.db.View(func(txn *badgerdb.Txn) error {
		var err error
		tag, found, err = hashItem(txn, []byte(b.space.Key(key)))
		return err
	})
	return tag, found, err
}

// update runs fn in a read-write transaction, retrying on conflicts.
func (b *Badger) update(fn func(txn *badgerdb.Txn) error) error {
	var err error
	for range b.sh.retries {
		err = b.sh.db.Update(fn)
		if !errors.Is(err, badgerdb.ErrConflict) {
			return err
		}
	}
	return err
}

// hashItem hashes the value in place, without copying it out of the txn.
func hashItem(txn *badgerdb.Txn, key []byte) (string, bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	var tag string
	err = item.Value(func(v []byte) error {
		tag = etag.Of(v)
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return tag, true, nil
}

// badgerLogger routes badger's printf-style logging into a mightycache.Logger.
type badgerLogger struct{ l mightycache.Logger }

func (b badgerLogger) Errorf(f string, v ...any) {
	b.l.Error(fmt.Sprintf(f, v...), mightycache.Fields{"component": "badger"})
}
func (b badgerLogger) Warningf(f string, v ...any) {
	b.l.Warn(fmt.Sprintf(f, v...), mightycache.Fields{"component": "badger"})
}
func (b badgerLogger) Infof(f string, v ...any) {
	b.l.Info(fmt.Sprintf(f, v...), mightycache.Fields{"component": "badger"})
}
func (b badgerLogger) Debugf(f string, v ...any) {
	b.l.Debug(fmt.Sprintf(f, v...), mightycache.Fields{"component": "badger"})
}
