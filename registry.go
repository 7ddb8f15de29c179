package mightycache

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// registry memoizes Sets per key. Concurrent first calls for the same key
// share a single provisioning.
type registry struct {
	mu    sync.Mutex
	sets  map[string]*set
	group singleflight.Group
}

func newRegistry() *registry {
	return &registry{sets: make(map[string]*set)}
}

func (r *registry) lookup(key string) (*set, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sets[key]
	return s, ok
}

func (r *registry) getOrCreate(
	ctx context.Context,
	key string,
	create func(context.Context) (*set, error),
) (*set, error) {
	if s, ok := r.lookup(key); ok {
		return s, nil
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		if s, ok := r.lookup(key); ok {
			return s, nil
		}
		// detached: every waiter shares this call
		s, err := create(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.sets[key] = s
		r.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*set), nil
}

// forget drops key only while it still maps to s.
func (r *registry) forget(key string, s *set) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sets[key] == s {
		delete(r.sets, key)
	}
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sets)
}
