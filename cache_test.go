package mightycache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/unkn0wn-root/mightycache/backend"
	"github.com/unkn0wn-root/mightycache/backend/memory"
	"github.com/unkn0wn-root/mightycache/etag"
)

const (
	zulTag    = "4cdbc5ffe38a19ec2fd3c1625f92c14e2e0b4ec0"
	odoyleTag = "8d8dbf068de76b07ecd87c58f228c8dfdce138dd"
)

// plainBackend hides every optional capability of the wrapped backend, so the
// cache falls back to check-then-write.
type plainBackend struct{ backend.Backend }

// failingBackend fails the configured operations.
type failingBackend struct {
	backend.Backend
	getErr, putErr, delErr error
}

func (f *failingBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	return f.Backend.Get(ctx, key)
}

func (f *failingBackend) Put(ctx context.Context, key string, v []byte) error {
	if f.putErr != nil {
		return f.putErr
	}
	return f.Backend.Put(ctx, key, v)
}

func (f *failingBackend) Del(ctx context.Context, key string) error {
	if f.delErr != nil {
		return f.delErr
	}
	return f.Backend.Del(ctx, key)
}

type recordingHooks struct {
	NopHooks
	mu         sync.Mutex
	mismatches []string
	backend    []string
	destroyed  []string
}

func (h *recordingHooks) HashMismatch(ns, key, _, _ string) {
	h.mu.Lock()
	h.mismatches = append(h.mismatches, ns+"/"+key)
	h.mu.Unlock()
}

func (h *recordingHooks) BackendError(_, op, key string, _ error) {
	h.mu.Lock()
	h.backend = append(h.backend, op+":"+key)
	h.mu.Unlock()
}

func (h *recordingHooks) SetDestroyed(key string) {
	h.mu.Lock()
	h.destroyed = append(h.destroyed, key)
	h.mu.Unlock()
}

func newTestCache(t *testing.T, be backend.Backend) Cache {
	t.Helper()
	c, err := New(Options{Backend: be})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

// both variants: atomic compare-and-swap and check-then-write
func eachBackend(t *testing.T, fn func(t *testing.T, c Cache)) {
	t.Run("cas", func(t *testing.T) { fn(t, newTestCache(t, memory.New())) })
	t.Run("plain", func(t *testing.T) { fn(t, newTestCache(t, plainBackend{memory.New()})) })
}

func TestNewRequiresBackend(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatalf("expected error without backend")
	}
}

func TestEndToEnd(t *testing.T) {
	eachBackend(t, func(t *testing.T, c Cache) {
		ctx := context.Background()

		res, err := c.Save(ctx, []byte(`{"name":"Zul"}`), "test", "")
		if err != nil {
			t.Fatalf("save: %v", err)
		}
		if res.ETag != zulTag {
			t.Fatalf("etag: got %s want %s", res.ETag, zulTag)
		}

		res, err = c.Save(ctx, []byte(`{"name":"Odoyle Rules!"}`), "test", zulTag)
		if err != nil {
			t.Fatalf("conditional save: %v", err)
		}
		if res.ETag != odoyleTag {
			t.Fatalf("etag: got %s want %s", res.ETag, odoyleTag)
		}

		e, err := c.Restore(ctx, "test", "")
		if err != nil {
			t.Fatalf("restore: %v", err)
		}
		if e.ETag != odoyleTag || string(e.Body) != `{"name":"Odoyle Rules!"}` || e.NotModified {
			t.Fatalf("restore: unexpected entry %+v", e)
		}

		err = c.Remove(ctx, "test", "wrong")
		if !errors.Is(err, ErrHashMismatch) {
			t.Fatalf("remove: want ErrHashMismatch, got %v", err)
		}
		want := "Provided Hash [wrong] doesn't match current hash [" + odoyleTag + "]"
		if err.Error() != want {
			t.Fatalf("message: got %q want %q", err.Error(), want)
		}
		if ok, _ := c.Exists(ctx, "test"); !ok {
			t.Fatalf("entry must remain after a rejected remove")
		}

		if err := c.Remove(ctx, "test", odoyleTag); err != nil {
			t.Fatalf("remove: %v", err)
		}
		if ok, _ := c.Exists(ctx, "test"); ok {
			t.Fatalf("entry still exists after remove")
		}
	})
}

func TestSaveHead(t *testing.T) {
	eachBackend(t, func(t *testing.T, c Cache) {
		ctx := context.Background()
		body := []byte("payload")
		saved, err := c.Save(ctx, body, "k", "")
		if err != nil {
			t.Fatalf("save: %v", err)
		}
		head, err := c.Head(ctx, "k")
		if err != nil {
			t.Fatalf("head: %v", err)
		}
		if head.ETag != saved.ETag || head.ETag != etag.Of(body) {
			t.Fatalf("head %s, save %s, want %s", head.ETag, saved.ETag, etag.Of(body))
		}

		_, err = c.Head(ctx, "nope")
		if !errors.Is(err, ErrCacheNotFound) {
			t.Fatalf("head missing: want ErrCacheNotFound, got %v", err)
		}
	})
}

func TestSaveConditional(t *testing.T) {
	eachBackend(t, func(t *testing.T, c Cache) {
		ctx := context.Background()
		first, _ := c.Save(ctx, []byte("v1"), "k", "")

		_, err := c.Save(ctx, []byte("v2"), "k", "stale")
		var ce *Error
		if !errors.As(err, &ce) || ce.Code != CodeHashMismatch {
			t.Fatalf("want HashMismatch, got %v", err)
		}
		if ce.Expected != "stale" || ce.Actual != first.ETag {
			t.Fatalf("mismatch details: %+v", ce)
		}
		e, _ := c.Restore(ctx, "k", "")
		if string(e.Body) != "v1" {
			t.Fatalf("rejected save must not write, got %q", e.Body)
		}

		if _, err := c.Save(ctx, []byte("v2"), "k", first.ETag); err != nil {
			t.Fatalf("matching save: %v", err)
		}
	})
}

func TestSavePermissiveCreate(t *testing.T) {
	eachBackend(t, func(t *testing.T, c Cache) {
		ctx := context.Background()
		res, err := c.Save(ctx, []byte("fresh"), "new", "some-stale-hash")
		if err != nil {
			t.Fatalf("save with hash on missing key must succeed, got %v", err)
		}
		if res.ETag != etag.Of([]byte("fresh")) {
			t.Fatalf("etag: %s", res.ETag)
		}
		if ok, _ := c.Exists(ctx, "new"); !ok {
			t.Fatalf("entry not written")
		}
	})
}

func TestRestore(t *testing.T) {
	eachBackend(t, func(t *testing.T, c Cache) {
		ctx := context.Background()

		_, err := c.Restore(ctx, "ghost", "")
		if !errors.Is(err, ErrCacheNotFound) {
			t.Fatalf("want ErrCacheNotFound, got %v", err)
		}
		if err.Error() != "Cache for [ghost] not found" {
			t.Fatalf("message: %q", err.Error())
		}

		saved, _ := c.Save(ctx, []byte("body"), "k", "")

		e, err := c.Restore(ctx, "k", saved.ETag)
		if err != nil {
			t.Fatalf("restore: %v", err)
		}
		if !e.NotModified || e.Body != nil || e.ETag != saved.ETag {
			t.Fatalf("want suppressed body, got %+v", e)
		}

		e, err = c.Restore(ctx, "k", "older")
		if err != nil {
			t.Fatalf("restore: %v", err)
		}
		if e.NotModified || string(e.Body) != "body" {
			t.Fatalf("want full body, got %+v", e)
		}
	})
}

func TestRemove(t *testing.T) {
	eachBackend(t, func(t *testing.T, c Cache) {
		ctx := context.Background()
		if err := c.Remove(ctx, "ghost", ""); !errors.Is(err, ErrCacheNotFound) {
			t.Fatalf("want ErrCacheNotFound, got %v", err)
		}
		if err := c.Remove(ctx, "ghost", "abc"); !errors.Is(err, ErrCacheNotFound) {
			t.Fatalf("want ErrCacheNotFound with hash, got %v", err)
		}
		_, _ = c.Save(ctx, []byte("x"), "k", "")
		if err := c.Remove(ctx, "k", ""); err != nil {
			t.Fatalf("unconditional remove: %v", err)
		}
	})
}

func TestKeysClear(t *testing.T) {
	eachBackend(t, func(t *testing.T, c Cache) {
		ctx := context.Background()
		keys, err := c.Keys(ctx)
		if err != nil || keys == nil || len(keys) != 0 {
			t.Fatalf("empty keys: %v %v", keys, err)
		}
		for _, k := range []string{"b", "a", "c"} {
			if _, err := c.Save(ctx, []byte(k), k, ""); err != nil {
				t.Fatalf("save %s: %v", k, err)
			}
		}
		keys, _ = c.Keys(ctx)
		sort.Strings(keys)
		if len(keys) != 3 || keys[0] != "a" || keys[2] != "c" {
			t.Fatalf("keys: %v", keys)
		}
		if err := c.Clear(ctx); err != nil {
			t.Fatalf("clear: %v", err)
		}
		keys, _ = c.Keys(ctx)
		if len(keys) != 0 {
			t.Fatalf("keys after clear: %v", keys)
		}
	})
}

func TestBackendFailures(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	t.Run("save", func(t *testing.T) {
		h := &recordingHooks{}
		c, _ := New(Options{Backend: &failingBackend{Backend: plainBackend{memory.New()}, putErr: boom}, Hooks: h})
		_, err := c.Save(ctx, []byte("x"), "k", "")
		if !errors.Is(err, ErrUpdateFailed) || !errors.Is(err, boom) {
			t.Fatalf("want UpdateFailed wrapping boom, got %v", err)
		}
		if err.Error() != "Failed to update key [k] - boom" {
			t.Fatalf("message: %q", err.Error())
		}
		if len(h.backend) != 1 || h.backend[0] != "save:k" {
			t.Fatalf("hooks: %v", h.backend)
		}
	})

	t.Run("conditional save read", func(t *testing.T) {
		c, _ := New(Options{Backend: &failingBackend{Backend: plainBackend{memory.New()}, getErr: boom}})
		_, err := c.Save(ctx, []byte("x"), "k", "abc")
		if !errors.Is(err, ErrUpdateFailed) {
			t.Fatalf("want UpdateFailed, got %v", err)
		}
	})

	t.Run("restore", func(t *testing.T) {
		c, _ := New(Options{Backend: &failingBackend{Backend: memory.New(), getErr: boom}})
		_, err := c.Restore(ctx, "k", "")
		if !errors.Is(err, boom) || errors.Is(err, ErrCacheNotFound) {
			t.Fatalf("want wrapped boom, got %v", err)
		}
	})

	t.Run("remove", func(t *testing.T) {
		mem := memory.New()
		_ = mem.Put(ctx, "k", []byte("x"))
		c, _ := New(Options{Backend: &failingBackend{Backend: plainBackend{mem}, delErr: boom}})
		err := c.Remove(ctx, "k", "")
		if !errors.Is(err, ErrDeleteFailed) {
			t.Fatalf("want DeleteFailed, got %v", err)
		}
		if err.Error() != "Failed to delete key [k] - boom" {
			t.Fatalf("message: %q", err.Error())
		}
	})
}

func TestHashMismatchHook(t *testing.T) {
	ctx := context.Background()
	h := &recordingHooks{}
	c, _ := New(Options{Backend: memory.New(), Hooks: h})
	_, _ = c.Save(ctx, []byte("x"), "k", "")
	_, _ = c.Save(ctx, []byte("y"), "k", "nope")
	_ = c.Remove(ctx, "k", "nope")
	if len(h.mismatches) != 2 || h.mismatches[0] != "/k" {
		t.Fatalf("mismatches: %v", h.mismatches)
	}
}

// gatedBackend blocks every Get until n readers have arrived, so concurrent
// check-then-write sequences all observe the same version.
type gatedBackend struct {
	backend.Backend
	wg *sync.WaitGroup
}

func (g gatedBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok, err := g.Backend.Get(ctx, key)
	g.wg.Done()
	g.wg.Wait()
	return v, ok, err
}

func TestStaleWritersRace(t *testing.T) {
	ctx := context.Background()
	const writers = 2

	t.Run("check-then-write lets both through", func(t *testing.T) {
		mem := memory.New()
		_ = mem.Put(ctx, "k", []byte("base"))
		var gate sync.WaitGroup
		gate.Add(writers)
		c := newTestCache(t, gatedBackend{Backend: mem, wg: &gate})

		errs := saveConcurrently(c, writers, etag.Of([]byte("base")))
		for i, err := range errs {
			if err != nil {
				t.Fatalf("writer %d: %v", i, err)
			}
		}
	})

	t.Run("compare-and-swap admits one", func(t *testing.T) {
		mem := memory.New()
		_ = mem.Put(ctx, "k", []byte("base"))
		c := newTestCache(t, mem)

		errs := saveConcurrently(c, writers, etag.Of([]byte("base")))
		var ok, mismatched int
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrHashMismatch):
				mismatched++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if ok != 1 || mismatched != writers-1 {
			t.Fatalf("ok=%d mismatched=%d", ok, mismatched)
		}
	})
}

func saveConcurrently(c Cache, n int, expected string) []error {
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = c.Save(context.Background(), []byte{byte('a' + i)}, "k", expected)
		}()
	}
	wg.Wait()
	return errs
}

func TestCloseOnce(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	c, _ := New(Options{Backend: mem})
	if err := c.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := c.Close(ctx); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, err := c.Save(ctx, []byte("x"), "k", ""); !errors.Is(err, backend.ErrClosed) {
		t.Fatalf("want ErrClosed after close, got %v", err)
	}
}
