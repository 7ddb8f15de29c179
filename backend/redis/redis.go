// Package redis is a go-redis Backend.
//
// Root entries are plain string keys under <prefix>e:. Each set is a single
// Redis hash at <prefix>h:<name>, so DropNamespace is one DEL. Conditional
// writes run as Lua scripts and are atomic.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/mightycache/backend"
	"github.com/unkn0wn-root/mightycache/internal/keys"
)

const (
	DefaultPrefix = "mightycache:"

	scanCount   = 512
	clearBatch  = 512
	clearFanout = 4
)

var ErrNilClient = errors.New("redis backend: nil client")

var (
	_ backend.Backend           = (*Redis)(nil)
	_ backend.Namespacer        = (*Redis)(nil)
	_ backend.CompareAndSwapper = (*Redis)(nil)
	_ backend.Hasher            = (*Redis)(nil)

	_ backend.Backend           = (*hashSet)(nil)
	_ backend.CompareAndSwapper = (*hashSet)(nil)
	_ backend.Hasher            = (*hashSet)(nil)
)

type Config struct {
	Client      goredis.UniversalClient
	CloseClient bool   // set true only if this backend exclusively owns the client
	Prefix      string // default DefaultPrefix
}

type Redis struct {
	rdb         goredis.UniversalClient
	closeClient bool
	prefix      string
	space       keys.Space
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Redis{
		rdb:         cfg.Client,
		closeClient: cfg.CloseClient,
		prefix:      prefix,
		space:       keys.Root(prefix),
	}, nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.rdb.Get(ctx, r.space.Key(key)).Bytes()
	if err == goredis.Nil {
		return nil, false, nil // miss
	}
	if err != nil {
		return nil, false, err // transport/server error
	}
	return b, true, nil
}

func (r *Redis) Put(ctx context.Context, key string, value []byte) error {
	return r.rdb.Set(ctx, r.space.Key(key), value, 0).Err()
}

func (r *Redis) Del(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, r.space.Key(key)).Err()
}

func (r *Redis) Has(ctx context.Context, key string) (bool, error) {
	n, err := r.rdb.Exists(ctx, r.space.Key(key)).Result()
	return n > 0, err
}

func (r *Redis) Keys(ctx context.Context) ([]string, error) {
	var (
		mu  sync.Mutex
		out []string
	)
	err := r.scan(ctx, func(batch []string) {
		mu.Lock()
		defer mu.Unlock()
		for _, sk := range batch {
			if k, ok := r.space.User(sk); ok {
				out = append(out, k)
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Clear unlinks every root entry in batches, a few pipelines at a time.
// Set hashes live under a different prefix and are not matched.
func (r *Redis) Clear(ctx context.Context) error {
	var (
		mu  sync.Mutex
		all []string
	)
	if err := r.scan(ctx, func(batch []string) {
		mu.Lock()
		all = append(all, batch...)
		mu.Unlock()
	}); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(clearFanout)
	for start := 0; start < len(all); start += clearBatch {
		batch := all[start:min(start+clearBatch, len(all))]
		g.Go(func() error {
			_, err := r.rdb.Pipelined(ctx, func(p goredis.Pipeliner) error {
				for _, k := range batch {
					p.Unlink(ctx, k)
				}
				return nil
			})
			return err
		})
	}
	return g.Wait()
}

// Close releases the underlying redis client only when this backend owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (r *Redis) Close(context.Context) error {
	if r.closeClient {
		if err := r.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}

// Namespace returns a view over the set's hash. Redis creates the hash on
// first write, so nothing is provisioned up front beyond a liveness check.
func (r *Redis) Namespace(ctx context.Context, name string) (backend.Backend, error) {
	if err := r.rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis backend: ping: %w", err)
	}
	return &hashSet{rdb: r.rdb, key: r.hashKey(name)}, nil
}

func (r *Redis) DropNamespace(ctx context.Context, name string) error {
	return r.rdb.Del(ctx, r.hashKey(name)).Err()
}

func (r *Redis) PutIfMatch(ctx context.Context, key string, value []byte, expected string) (string, bool, error) {
	return runPutIfMatch(ctx, r.rdb, keyTarget(r.space.Key(key)), value, expected)
}

func (r *Redis) DelIfMatch(ctx context.Context, key, expected string) (backend.DelResult, error) {
	return runDelIfMatch(ctx, r.rdb, keyTarget(r.space.Key(key)), expected)
}

func (r *Redis) ETag(ctx context.Context, key string) (string, bool, error) {
	return runHashOf(ctx, r.rdb, keyTarget(r.space.Key(key)))
}

func (r *Redis) hashKey(name string) string { return r.prefix + "h:" + name }

// scan walks the root namespace. On a cluster every master is scanned and fn
// may be called concurrently.
func (r *Redis) scan(ctx context.Context, fn func([]string)) error {
	match := r.space.Glob()
	if cc, ok := r.rdb.(*goredis.ClusterClient); ok {
		return cc.ForEachMaster(ctx, func(ctx context.Context, node *goredis.Client) error {
			return scanNode(ctx, node, match, fn)
		})
	}
	return scanNode(ctx, r.rdb, match, fn)
}

func scanNode(ctx context.Context, c goredis.Cmdable, match string, fn func([]string)) error {
	var cursor uint64
	for {
		batch, next, err := c.Scan(ctx, cursor, match, scanCount).Result()
		if err != nil {
			return err
		}
		if len(batch) > 0 {
			fn(batch)
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// hashSet is a set namespace stored as fields of one Redis hash.
// It borrows the parent's client; Close is a no-op.
type hashSet struct {
	rdb goredis.UniversalClient
	key string
}

func (h *hashSet) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := h.rdb.HGet(ctx, h.key, key).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (h *hashSet) Put(ctx context.Context, key string, value []byte) error {
	return h.rdb.HSet(ctx, h.key, key, value).Err()
}

func (h *hashSet) Del(ctx context.Context, key string) error {
	return h.rdb.HDel(ctx, h.key, key).Err()
}

func (h *hashSet) Has(ctx context.Context, key string) (bool, error) {
	return h.rdb.HExists(ctx, h.key, key).Result()
}

func (h *hashSet) Keys(ctx context.Context) ([]string, error) {
	return h.rdb.HKeys(ctx, h.key).Result()
}

func (h *hashSet) Clear(ctx context.Context) error {
	return h.rdb.Del(ctx, h.key).Err()
}

func (h *hashSet) Close(context.Context) error { return nil }

func (h *hashSet) PutIfMatch(ctx context.Context, key string, value []byte, expected string) (string, bool, error) {
	return runPutIfMatch(ctx, h.rdb, fieldTarget(h.key, key), value, expected)
}

func (h *hashSet) DelIfMatch(ctx context.Context, key, expected string) (backend.DelResult, error) {
	return runDelIfMatch(ctx, h.rdb, fieldTarget(h.key, key), expected)
}

func (h *hashSet) ETag(ctx context.Context, key string) (string, bool, error) {
	return runHashOf(ctx, h.rdb, fieldTarget(h.key, key))
}

func runPutIfMatch(ctx context.Context, c goredis.Scripter, t target, value []byte, expected string) (string, bool, error) {
	res, err := putIfMatch.Run(ctx, c, []string{t.key}, t.mode, t.field, value, expected).Slice()
	if err != nil {
		return "", false, err
	}
	if len(res) != 2 {
		return "", false, fmt.Errorf("redis backend: unexpected script reply %v", res)
	}
	swapped, _ := res[0].(int64)
	current, _ := res[1].(string)
	return current, swapped == 1, nil
}

func runDelIfMatch(ctx context.Context, c goredis.Scripter, t target, expected string) (backend.DelResult, error) {
	res, err := delIfMatch.Run(ctx, c, []string{t.key}, t.mode, t.field, expected).Slice()
	if err != nil {
		return backend.DelResult{}, err
	}
	if len(res) != 3 {
		return backend.DelResult{}, fmt.Errorf("redis backend: unexpected script reply %v", res)
	}
	found, _ := res[0].(int64)
	deleted, _ := res[1].(int64)
	current, _ := res[2].(string)
	return backend.DelResult{Found: found == 1, Deleted: deleted == 1, Current: current}, nil
}

func runHashOf(ctx context.Context, c goredis.Scripter, t target) (string, bool, error) {
	tag, err := hashOf.Run(ctx, c, []string{t.key}, t.mode, t.field).Text()
	if err == goredis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return tag, true, nil
}
