package mightycache

import (
	"context"
	"fmt"
	"sync"

	"github.com/unkn0wn-root/mightycache/backend"
	"github.com/unkn0wn-root/mightycache/etag"
)

// store implements Store over one backend namespace. The root Cache and every
// Set wrap their own store.
type store struct {
	ns    string // "" for the root namespace, set key otherwise
	be    backend.Backend
	log   Logger
	hooks Hooks
	enter func() (func(), error) // nil for the root namespace
}

type cache struct {
	*store
	sets *registry

	closeOnce sync.Once
	closeErr  error
}

func newCache(opts Options) (*cache, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("mightycache: backend is required")
	}
	c := &cache{
		store: &store{
			be:    opts.Backend,
			log:   coalesce[Logger](opts.Logger, NopLogger{}),
			hooks: coalesce[Hooks](opts.Hooks, NopHooks{}),
		},
		sets: newRegistry(),
	}
	return c, nil
}

func (c *cache) Set(ctx context.Context, key string) (Set, error) {
	if key == "" {
		return nil, ErrInvalidSetKey
	}
	ns, ok := c.be.(backend.Namespacer)
	if !ok {
		return nil, ErrSetNotDefined
	}
	s, err := c.sets.getOrCreate(ctx, key, func(ctx context.Context) (*set, error) {
		return provisionSet(ctx, key, c, ns)
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (c *cache) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.closeErr = c.be.Close(ctx)
	})
	return c.closeErr
}

func (s *store) Save(ctx context.Context, body []byte, key, expected string) (Result, error) {
	release, err := s.check()
	if err != nil {
		return Result{}, err
	}
	defer release()
	tag := etag.Of(body)

	if expected == "" {
		if err := s.be.Put(ctx, key, body); err != nil {
			s.backendError("save", key, err)
			return Result{}, updateFailed(key, err)
		}
		return Result{ETag: tag}, nil
	}

	if cas, ok := s.be.(backend.CompareAndSwapper); ok {
		current, swapped, err := cas.PutIfMatch(ctx, key, body, expected)
		if err != nil {
			s.backendError("save", key, err)
			return Result{}, updateFailed(key, err)
		}
		if !swapped {
			return Result{}, s.mismatch(key, expected, current)
		}
		return Result{ETag: tag}, nil
	}

	// check-then-write: only as atomic as the backend, see package doc
	current, found, err := s.currentETag(ctx, key)
	if err != nil {
		s.backendError("save", key, err)
		return Result{}, updateFailed(key, err)
	}
	// a missing entry is written regardless of the supplied hash
	if found && current != expected {
		return Result{}, s.mismatch(key, expected, current)
	}
	if err := s.be.Put(ctx, key, body); err != nil {
		s.backendError("save", key, err)
		return Result{}, updateFailed(key, err)
	}
	return Result{ETag: tag}, nil
}

func (s *store) Restore(ctx context.Context, key, ifNewer string) (Entry, error) {
	release, err := s.check()
	if err != nil {
		return Entry{}, err
	}
	defer release()
	v, ok, err := s.be.Get(ctx, key)
	if err != nil {
		s.backendError("restore", key, err)
		return Entry{}, fmt.Errorf("mightycache: restore [%s]: %w", key, err)
	}
	if !ok {
		return Entry{}, notFound(key)
	}
	tag := etag.Of(v)
	if etag.Match(ifNewer, tag) {
		return Entry{ETag: tag, NotModified: true}, nil
	}
	return Entry{ETag: tag, Body: v}, nil
}

func (s *store) Head(ctx context.Context, key string) (Result, error) {
	release, err := s.check()
	if err != nil {
		return Result{}, err
	}
	defer release()
	tag, ok, err := s.currentETag(ctx, key)
	if err != nil {
		s.backendError("head", key, err)
		return Result{}, fmt.Errorf("mightycache: head [%s]: %w", key, err)
	}
	if !ok {
		return Result{}, notFound(key)
	}
	return Result{ETag: tag}, nil
}

func (s *store) Remove(ctx context.Context, key, expected string) error {
	release, err := s.check()
	if err != nil {
		return err
	}
	defer release()

	if cas, ok := s.be.(backend.CompareAndSwapper); ok {
		res, err := cas.DelIfMatch(ctx, key, expected)
		if err != nil {
			s.backendError("remove", key, err)
			return deleteFailed(key, err)
		}
		switch {
		case !res.Found:
			return notFound(key)
		case !res.Deleted:
			return s.mismatch(key, expected, res.Current)
		}
		return nil
	}

	var found bool
	if expected == "" {
		found, err = s.be.Has(ctx, key)
	} else {
		var current string
		current, found, err = s.currentETag(ctx, key)
		if err == nil && found && current != expected {
			return s.mismatch(key, expected, current)
		}
	}
	if err != nil {
		s.backendError("remove", key, err)
		return deleteFailed(key, err)
	}
	if !found {
		return notFound(key)
	}
	if err := s.be.Del(ctx, key); err != nil {
		s.backendError("remove", key, err)
		return deleteFailed(key, err)
	}
	return nil
}

func (s *store) Keys(ctx context.Context) ([]string, error) {
	release, err := s.check()
	if err != nil {
		return nil, err
	}
	defer release()
	ks, err := s.be.Keys(ctx)
	if err != nil {
		s.backendError("keys", "", err)
		return nil, fmt.Errorf("mightycache: keys: %w", err)
	}
	if ks == nil {
		ks = []string{}
	}
	return ks, nil
}

func (s *store) Exists(ctx context.Context, key string) (bool, error) {
	release, err := s.check()
	if err != nil {
		return false, err
	}
	defer release()
	ok, err := s.be.Has(ctx, key)
	if err != nil {
		s.backendError("exists", key, err)
		return false, fmt.Errorf("mightycache: exists [%s]: %w", key, err)
	}
	return ok, nil
}

func (s *store) Clear(ctx context.Context) error {
	release, err := s.check()
	if err != nil {
		return err
	}
	defer release()
	if err := s.be.Clear(ctx); err != nil {
		s.backendError("clear", "", err)
		return fmt.Errorf("mightycache: clear: %w", err)
	}
	s.log.Debug("namespace cleared", Fields{"ns": s.ns})
	return nil
}

// check admits one operation. The returned release must be called once the
// operation no longer touches the backend.
func (s *store) check() (func(), error) {
	if s.enter == nil {
		return func() {}, nil
	}
	return s.enter()
}

func (s *store) currentETag(ctx context.Context, key string) (string, bool, error) {
	if h, ok := s.be.(backend.Hasher); ok {
		return h.ETag(ctx, key)
	}
	v, ok, err := s.be.Get(ctx, key)
	if err != nil || !ok {
		return "", false, err
	}
	return etag.Of(v), true, nil
}

func (s *store) mismatch(key, expected, actual string) error {
	s.log.Debug("conditional write rejected (hash mismatch)", Fields{
		"ns": s.ns, "key": key, "expected": expected, "actual": actual,
	})
	s.hooks.HashMismatch(s.ns, key, expected, actual)
	return hashMismatch(key, expected, actual)
}

func (s *store) backendError(op, key string, err error) {
	s.log.Warn("backend "+op+" failed", Fields{"ns": s.ns, "key": key, "err": err})
	s.hooks.BackendError(s.ns, op, key, err)
}

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
