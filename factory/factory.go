// Package factory builds a Cache from an implementation name and an untyped
// configuration map. Every field is validated before any backend is opened.
//
//	c, err := factory.New("redis", map[string]any{
//		"host": "localhost",
//		"port": 6379,
//		"options": map[string]any{"db": 2},
//	})
package factory

import (
	"net"
	"sort"
	"strconv"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/mightycache"
	"github.com/unkn0wn-root/mightycache/backend"
	badgerbe "github.com/unkn0wn-root/mightycache/backend/badger"
	bigcachebe "github.com/unkn0wn-root/mightycache/backend/bigcache"
	fsbe "github.com/unkn0wn-root/mightycache/backend/fs"
	"github.com/unkn0wn-root/mightycache/backend/memory"
	redisbe "github.com/unkn0wn-root/mightycache/backend/redis"
)

// opener opens a backend whose configuration has already been validated.
type opener func() (backend.Backend, error)

// builder validates cfg and returns how to open the backend.
type builder func(cfg args, o *options) (opener, error)

var builders = map[string]builder{
	"memory":   buildMemory,
	"mem":      buildMemory,
	"fs":       buildFS,
	"redis":    buildRedis,
	"bigcache": buildBigCache,
	"badger":   buildBadger,
}

type options struct {
	logger mightycache.Logger
	hooks  mightycache.Hooks
}

type Option func(*options)

func WithLogger(l mightycache.Logger) Option { return func(o *options) { o.logger = l } }

func WithHooks(h mightycache.Hooks) Option { return func(o *options) { o.hooks = h } }

// New looks up name (case-insensitive), validates cfg and opens the backend.
// A nil cfg is treated as empty.
func New(name string, cfg map[string]any, opts ...Option) (mightycache.Cache, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	build, ok := builders[strings.ToLower(name)]
	if !ok {
		return nil, unknownError{name: name}
	}
	open, err := build(args(cfg), &o)
	if err != nil {
		return nil, err
	}
	be, err := open()
	if err != nil {
		return nil, err
	}
	return mightycache.New(mightycache.Options{Backend: be, Logger: o.logger, Hooks: o.hooks})
}

// Implementations lists the accepted names.
func Implementations() []string {
	out := make([]string, 0, len(builders))
	for name := range builders {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func buildMemory(args, *options) (opener, error) {
	return func() (backend.Backend, error) { return memory.New(), nil }, nil
}

func buildFS(cfg args, _ *options) (opener, error) {
	path, _, err := cfg.str("path", true)
	if err != nil {
		return nil, err
	}
	memo, _, err := cfg.boolean("hashMemo", false)
	if err != nil {
		return nil, err
	}
	return func() (backend.Backend, error) {
		return fsbe.New(fsbe.Config{Dir: path, HashMemo: memo})
	}, nil
}

func buildRedis(cfg args, _ *options) (opener, error) {
	host, _, err := cfg.str("host", true)
	if err != nil {
		return nil, err
	}
	port, _, err := cfg.integer("port", true)
	if err != nil {
		return nil, err
	}
	if port == 0 {
		return nil, missing("port")
	}
	if port < 0 || port > 65535 {
		return nil, invalid("port", "int", port)
	}
	extra, _, err := cfg.object("options", false)
	if err != nil {
		return nil, err
	}
	username, _, err := extra.str("username", false)
	if err != nil {
		return nil, err
	}
	password, _, err := extra.str("password", false)
	if err != nil {
		return nil, err
	}
	db, _, err := extra.integer("db", false)
	if err != nil {
		return nil, err
	}
	prefix, _, err := extra.str("prefix", false)
	if err != nil {
		return nil, err
	}

	return func() (backend.Backend, error) {
		client := goredis.NewClient(&goredis.Options{
			Addr:     net.JoinHostPort(host, strconv.Itoa(port)),
			Username: username,
			Password: password,
			DB:       db,
		})
		return redisbe.New(redisbe.Config{Client: client, CloseClient: true, Prefix: prefix})
	}, nil
}

func buildBigCache(cfg args, _ *options) (opener, error) {
	life, _, err := cfg.duration("lifeWindow", false)
	if err != nil {
		return nil, err
	}
	clean, _, err := cfg.duration("cleanWindow", false)
	if err != nil {
		return nil, err
	}
	maxMB, _, err := cfg.integer("hardMaxCacheSizeMB", false)
	if err != nil {
		return nil, err
	}
	return func() (backend.Backend, error) {
		return bigcachebe.New(bigcachebe.Config{
			LifeWindow:         life,
			CleanWindow:        clean,
			HardMaxCacheSizeMB: maxMB,
		})
	}, nil
}

func buildBadger(cfg args, o *options) (opener, error) {
	inMemory, _, err := cfg.boolean("inMemory", false)
	if err != nil {
		return nil, err
	}
	path, _, err := cfg.str("path", !inMemory)
	if err != nil {
		return nil, err
	}
	sync, _, err := cfg.boolean("syncWrites", false)
	if err != nil {
		return nil, err
	}
	return func() (backend.Backend, error) {
		return badgerbe.New(badgerbe.Config{
			Path:       path,
			InMemory:   inMemory,
			SyncWrites: sync,
			Logger:     o.logger,
		})
	}, nil
}
