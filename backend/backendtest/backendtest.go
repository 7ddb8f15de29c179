// Package backendtest is a conformance suite run by every backend package.
package backendtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/mightycache/backend"
	"github.com/unkn0wn-root/mightycache/etag"
)

// Factory returns a fresh, empty backend. The suite closes it.
type Factory func(t *testing.T) backend.Backend

// Run exercises the Backend contract and every optional capability the
// backend implements.
func Run(t *testing.T, newBackend Factory) {
	t.Helper()

	t.Run("Basic", func(t *testing.T) { testBasic(t, open(t, newBackend)) })
	t.Run("Clear", func(t *testing.T) { testClear(t, open(t, newBackend)) })
	t.Run("Namespaces", func(t *testing.T) {
		b := open(t, newBackend)
		ns, ok := b.(backend.Namespacer)
		if !ok {
			t.Skip("backend has no namespaces")
		}
		testNamespaces(t, b, ns)
	})
	t.Run("CompareAndSwap", func(t *testing.T) {
		b := open(t, newBackend)
		cas, ok := b.(backend.CompareAndSwapper)
		if !ok {
			t.Skip("backend has no compare-and-swap")
		}
		testCAS(t, b, cas)
	})
	t.Run("ConcurrentCompareAndSwap", func(t *testing.T) {
		b := open(t, newBackend)
		cas, ok := b.(backend.CompareAndSwapper)
		if !ok {
			t.Skip("backend has no compare-and-swap")
		}
		testConcurrentCAS(t, b, cas)
	})
	t.Run("Hasher", func(t *testing.T) {
		b := open(t, newBackend)
		h, ok := b.(backend.Hasher)
		if !ok {
			t.Skip("backend has no hasher")
		}
		testHasher(t, b, h)
	})
}

func open(t *testing.T, newBackend Factory) backend.Backend {
	t.Helper()
	b := newBackend(t)
	t.Cleanup(func() { _ = b.Close(context.Background()) })
	return b
}

func testBasic(t *testing.T, b backend.Backend) {
	ctx := context.Background()

	_, ok, err := b.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	values := map[string][]byte{
		"plain":          []byte(`{"name":"Zul"}`),
		"with space/and": []byte("x"),
		"bin":            {0x00, 0xff, 0x10, 0x00},
		"empty":          {},
	}
	for k, v := range values {
		require.NoError(t, b.Put(ctx, k, v), "put %q", k)
	}
	for k, v := range values {
		got, ok, err := b.Get(ctx, k)
		require.NoError(t, err)
		require.True(t, ok, "get %q", k)
		assert.Equal(t, len(v), len(got), "len %q", k)
		if len(v) > 0 {
			assert.Equal(t, v, got, "bytes %q", k)
		}
		has, err := b.Has(ctx, k)
		require.NoError(t, err)
		assert.True(t, has)
	}

	keys, err := b.Keys(ctx)
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"bin", "empty", "plain", "with space/and"}, keys)

	require.NoError(t, b.Put(ctx, "plain", []byte("v2")))
	got, _, err := b.Get(ctx, "plain")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(got))

	require.NoError(t, b.Del(ctx, "plain"))
	require.NoError(t, b.Del(ctx, "plain"), "deleting a missing key is not an error")
	has, err := b.Has(ctx, "plain")
	require.NoError(t, err)
	assert.False(t, has)
}

func testClear(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	for i := range 20 {
		require.NoError(t, b.Put(ctx, fmt.Sprintf("k%02d", i), []byte("v")))
	}
	require.NoError(t, b.Clear(ctx))
	keys, err := b.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
	require.NoError(t, b.Clear(ctx), "clearing an empty namespace")
}

func testNamespaces(t *testing.T, root backend.Backend, nser backend.Namespacer) {
	ctx := context.Background()

	a, err := nser.Namespace(ctx, "a")
	require.NoError(t, err)
	b, err := nser.Namespace(ctx, "a:b")
	require.NoError(t, err)

	require.NoError(t, root.Put(ctx, "k", []byte("root")))
	require.NoError(t, a.Put(ctx, "k", []byte("a")))
	require.NoError(t, b.Put(ctx, "k", []byte("ab")))
	require.NoError(t, a.Put(ctx, "only-a", []byte("a")))

	for _, tc := range []struct {
		be   backend.Backend
		want string
	}{{root, "root"}, {a, "a"}, {b, "ab"}} {
		v, ok, err := tc.be.Get(ctx, "k")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, tc.want, string(v))
	}

	rootKeys, err := root.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, rootKeys)

	aKeys, err := a.Keys(ctx)
	require.NoError(t, err)
	sort.Strings(aKeys)
	assert.Equal(t, []string{"k", "only-a"}, aKeys)

	// clearing the root leaves namespaces alone
	require.NoError(t, root.Clear(ctx))
	has, err := a.Has(ctx, "k")
	require.NoError(t, err)
	assert.True(t, has)

	// the same name yields the same data
	again, err := nser.Namespace(ctx, "a")
	require.NoError(t, err)
	v, ok, err := again.Get(ctx, "only-a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", string(v))

	require.NoError(t, nser.DropNamespace(ctx, "a"))
	fresh, err := nser.Namespace(ctx, "a")
	require.NoError(t, err)
	keys, err := fresh.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)

	// dropping one namespace leaves its neighbour alone
	v, ok, err = b.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ab", string(v))

	require.NoError(t, nser.DropNamespace(ctx, "never-created"))
}

func testCAS(t *testing.T, b backend.Backend, cas backend.CompareAndSwapper) {
	ctx := context.Background()
	v1 := []byte("one")
	v2 := []byte("two")

	// missing key: written regardless of the expected hash
	_, swapped, err := cas.PutIfMatch(ctx, "k", v1, "stale")
	require.NoError(t, err)
	require.True(t, swapped)

	cur, swapped, err := cas.PutIfMatch(ctx, "k", v2, "stale")
	require.NoError(t, err)
	assert.False(t, swapped)
	assert.Equal(t, etag.Of(v1), cur)

	_, swapped, err = cas.PutIfMatch(ctx, "k", v2, etag.Of(v1))
	require.NoError(t, err)
	require.True(t, swapped)
	got, _, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, v2, got)

	res, err := cas.DelIfMatch(ctx, "k", etag.Of(v1))
	require.NoError(t, err)
	assert.Equal(t, backend.DelResult{Found: true, Current: etag.Of(v2)}, res)

	res, err = cas.DelIfMatch(ctx, "k", etag.Of(v2))
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.True(t, res.Deleted)

	res, err = cas.DelIfMatch(ctx, "k", "")
	require.NoError(t, err)
	assert.False(t, res.Found)

	require.NoError(t, b.Put(ctx, "k", v1))
	res, err = cas.DelIfMatch(ctx, "k", "")
	require.NoError(t, err)
	assert.True(t, res.Deleted, "no expected hash deletes unconditionally")
}

func testConcurrentCAS(t *testing.T, b backend.Backend, cas backend.CompareAndSwapper) {
	ctx := context.Background()
	base := []byte("base")
	require.NoError(t, b.Put(ctx, "race", base))
	expected := etag.Of(base)

	const writers = 16
	var (
		wins  atomic.Int32
		wg    sync.WaitGroup
		start = make(chan struct{})
	)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, ok, err := cas.PutIfMatch(ctx, "race", []byte(fmt.Sprintf("w%d", i)), expected)
			if err != nil {
				t.Errorf("writer %d: %v", i, err)
				return
			}
			if ok {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func testHasher(t *testing.T, b backend.Backend, h backend.Hasher) {
	ctx := context.Background()
	_, ok, err := h.ETag(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	v := []byte(`{"name":"Odoyle Rules!"}`)
	require.NoError(t, b.Put(ctx, "k", v))
	tag, ok, err := h.ETag(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, etag.Of(v), tag)
}
