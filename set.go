package mightycache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/mightycache/backend"
)

// SetState is the lifecycle position of a Set.
type SetState int32

const (
	SetInitializing SetState = iota
	SetReady
	SetFailed
	SetDestroyed
)

func (s SetState) String() string {
	switch s {
	case SetInitializing:
		return "initializing"
	case SetReady:
		return "ready"
	case SetFailed:
		return "failed"
	case SetDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("SetState(%d)", int32(s))
	}
}

type set struct {
	*store
	key    string
	parent *cache
	ns     backend.Namespacer

	state atomic.Int32
	// Operations hold ops for reading while they touch the backend. Destroy
	// holds it for writing, so nothing lands in a dropped namespace.
	ops sync.RWMutex
}

// provisionSet asks the backend for the namespace and returns a ready Set.
// A failed provisioning never escapes: the caller gets the error instead.
func provisionSet(ctx context.Context, key string, parent *cache, ns backend.Namespacer) (*set, error) {
	s := &set{key: key, parent: parent, ns: ns}
	s.state.Store(int32(SetInitializing))

	be, err := ns.Namespace(ctx, key)
	if err != nil {
		s.state.Store(int32(SetFailed))
		parent.log.Warn("set provisioning failed", Fields{"set": key, "err": err})
		parent.hooks.SetFailed(key, err)
		return nil, fmt.Errorf("mightycache: provision set [%s]: %w", key, err)
	}

	s.store = &store{
		ns:    key,
		be:    be,
		log:   parent.log,
		hooks: parent.hooks,
		enter: s.enter,
	}
	s.state.Store(int32(SetReady))
	parent.log.Debug("set provisioned", Fields{"set": key})
	parent.hooks.SetProvisioned(key)
	return s, nil
}

func (s *set) Key() string { return s.key }

func (s *set) State() SetState { return SetState(s.state.Load()) }

func (s *set) Set(context.Context, string) (Set, error) {
	return nil, ErrNestedSet
}

func (s *set) Destroy(ctx context.Context) error {
	s.ops.Lock()
	defer s.ops.Unlock()

	if err := s.alive(); err != nil {
		return err
	}
	if err := s.ns.DropNamespace(ctx, s.key); err != nil {
		s.backendError("destroy", "", err)
		return fmt.Errorf("mightycache: destroy set [%s]: %w", s.key, err)
	}
	s.state.Store(int32(SetDestroyed))
	s.parent.sets.forget(s.key, s)

	s.log.Debug("set destroyed", Fields{"set": s.key})
	s.hooks.SetDestroyed(s.key)
	return nil
}

// enter admits an operation unless the set has been destroyed.
func (s *set) enter() (func(), error) {
	s.ops.RLock()
	if err := s.alive(); err != nil {
		s.ops.RUnlock()
		return nil, err
	}
	return s.ops.RUnlock, nil
}

func (s *set) alive() error {
	if s.State() == SetDestroyed {
		return &Error{Code: CodeSetDestroyed, Key: s.key}
	}
	return nil
}
