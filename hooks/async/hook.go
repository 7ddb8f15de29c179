// Package asynchook moves Hooks calls off the cache's hot path.
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{MismatchEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	c, _ := mightycache.New(mightycache.Options{
//	    Backend: be,
//	    Hooks:   hooks, // or raw if you don't want async
//	})
//
// Events are dropped, not queued, once the buffer is full or after Close.
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/mightycache"
)

type Hooks struct {
	inner mightycache.Hooks
	q     chan func()
	wg    sync.WaitGroup

	mu      sync.RWMutex // guards closed against sends on a closed q
	closed  bool
	dropped atomic.Uint64
}

var _ mightycache.Hooks = (*Hooks)(nil)

func New(inner mightycache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers.
func (h *Hooks) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	close(h.q)
	h.mu.Unlock()
	h.wg.Wait()
}

// Dropped reports how many events were discarded.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) HashMismatch(ns, k, exp, act string) {
	h.try(func() { h.inner.HashMismatch(ns, k, exp, act) })
}
func (h *Hooks) BackendError(ns, op, k string, err error) {
	h.try(func() { h.inner.BackendError(ns, op, k, err) })
}
func (h *Hooks) SetProvisioned(s string)       { h.try(func() { h.inner.SetProvisioned(s) }) }
func (h *Hooks) SetFailed(s string, err error) { h.try(func() { h.inner.SetFailed(s, err) }) }
func (h *Hooks) SetDestroyed(s string)         { h.try(func() { h.inner.SetDestroyed(s) }) }
