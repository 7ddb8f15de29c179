// Package memory is an in-process Backend. It supports every optional
// capability and is the reference implementation for the others.
package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/mightycache/backend"
	"github.com/unkn0wn-root/mightycache/etag"
)

var (
	_ backend.Backend           = (*Memory)(nil)
	_ backend.Namespacer        = (*Memory)(nil)
	_ backend.CompareAndSwapper = (*Memory)(nil)
	_ backend.Hasher            = (*Memory)(nil)
)

type shared struct {
	mu     sync.RWMutex
	closed atomic.Bool
}

// Memory stores copies of every value it is given.
type Memory struct {
	sh   *shared
	data map[string][]byte

	sets map[string]*Memory // nil on namespaces
	root bool
}

func New() *Memory {
	return &Memory{
		sh:   &shared{},
		data: make(map[string][]byte),
		sets: make(map[string]*Memory),
		root: true,
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	if m.sh.closed.Load() {
		return nil, false, backend.ErrClosed
	}
	m.sh.mu.RLock()
	defer m.sh.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return clone(v), true, nil
}

func (m *Memory) Put(_ context.Context, key string, value []byte) error {
	if m.sh.closed.Load() {
		return backend.ErrClosed
	}
	m.sh.mu.Lock()
	m.data[key] = clone(value)
	m.sh.mu.Unlock()
	return nil
}

func (m *Memory) Del(_ context.Context, key string) error {
	if m.sh.closed.Load() {
		return backend.ErrClosed
	}
	m.sh.mu.Lock()
	delete(m.data, key)
	m.sh.mu.Unlock()
	return nil
}

func (m *Memory) Has(_ context.Context, key string) (bool, error) {
	if m.sh.closed.Load() {
		return false, backend.ErrClosed
	}
	m.sh.mu.RLock()
	_, ok := m.data[key]
	m.sh.mu.RUnlock()
	return ok, nil
}

func (m *Memory) Keys(_ context.Context) ([]string, error) {
	if m.sh.closed.Load() {
		return nil, backend.ErrClosed
	}
	m.sh.mu.RLock()
	defer m.sh.mu.RUnlock()
	out := make([]string, 0, len(m.data))
	for k := range m.data {
		out = append(out, k)
	}
	return out, nil
}

func (m *Memory) Clear(_ context.Context) error {
	if m.sh.closed.Load() {
		return backend.ErrClosed
	}
	m.sh.mu.Lock()
	clear(m.data)
	m.sh.mu.Unlock()
	return nil
}

// Close drops everything. Only the root instance closes; namespaces no-op.
func (m *Memory) Close(context.Context) error {
	if !m.root {
		return nil
	}
	if m.sh.closed.Swap(true) {
		return nil
	}
	m.sh.mu.Lock()
	clear(m.data)
	clear(m.sets)
	m.sh.mu.Unlock()
	return nil
}

func (m *Memory) Namespace(_ context.Context, name string) (backend.Backend, error) {
	if m.sh.closed.Load() {
		return nil, backend.ErrClosed
	}
	if !m.root {
		return nil, backend.ErrNestedNamespace
	}
	m.sh.mu.Lock()
	defer m.sh.mu.Unlock()
	if s, ok := m.sets[name]; ok {
		return s, nil
	}
	s := &Memory{sh: m.sh, data: make(map[string][]byte)}
	m.sets[name] = s
	return s, nil
}

func (m *Memory) DropNamespace(_ context.Context, name string) error {
	if m.sh.closed.Load() {
		return backend.ErrClosed
	}
	m.sh.mu.Lock()
	defer m.sh.mu.Unlock()
	if s, ok := m.sets[name]; ok {
		clear(s.data)
		delete(m.sets, name)
	}
	return nil
}

func (m *Memory) PutIfMatch(_ context.Context, key string, value []byte, expected string) (string, bool, error) {
	if m.sh.closed.Load() {
		return "", false, backend.ErrClosed
	}
	m.sh.mu.Lock()
	defer m.sh.mu.Unlock()
	if cur, ok := m.data[key]; ok && expected != "" {
		if tag := etag.Of(cur); tag != expected {
			return tag, false, nil
		}
	}
	m.data[key] = clone(value)
	return etag.Of(value), true, nil
}

func (m *Memory) DelIfMatch(_ context.Context, key, expected string) (backend.DelResult, error) {
	if m.sh.closed.Load() {
		return backend.DelResult{}, backend.ErrClosed
	}
	m.sh.mu.Lock()
	defer m.sh.mu.Unlock()
	cur, ok := m.data[key]
	if !ok {
		return backend.DelResult{}, nil
	}
	tag := etag.Of(cur)
	if expected != "" && tag != expected {
		return backend.DelResult{Found: true, Current: tag}, nil
	}
	delete(m.data, key)
	return backend.DelResult{Found: true, Deleted: true, Current: tag}, nil
}

func (m *Memory) ETag(_ context.Context, key string) (string, bool, error) {
	if m.sh.closed.Load() {
		return "", false, backend.ErrClosed
	}
	m.sh.mu.RLock()
	defer m.sh.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return "", false, nil
	}
	return etag.Of(v), true, nil
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
