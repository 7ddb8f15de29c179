package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/mightycache"
	"github.com/unkn0wn-root/mightycache/backend/memory"
	"github.com/unkn0wn-root/mightycache/codec"
)

const (
	zulTag    = "4cdbc5ffe38a19ec2fd3c1625f92c14e2e0b4ec0"
	odoyleTag = "8d8dbf068de76b07ecd87c58f228c8dfdce138dd"
)

func keyFromPath(r *http.Request) string {
	return strings.TrimPrefix(r.URL.Path, "/cache/")
}

func newHandler(t *testing.T, opts Options) (*Handler, mightycache.Cache) {
	t.Helper()
	c, err := mightycache.New(mightycache.Options{Backend: memory.New()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	if opts.KeyFunc == nil {
		opts.KeyFunc = keyFromPath
	}
	h, err := New(c, opts)
	require.NoError(t, err)
	return h, c
}

func do(h http.Handler, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, Options{KeyFunc: keyFromPath})
	require.ErrorIs(t, err, ErrNoStore)
	assert.Equal(t, "A Cache Implementation is required", err.Error())

	c, _ := mightycache.New(mightycache.Options{Backend: memory.New()})
	_, err = New(c, Options{})
	require.ErrorIs(t, err, ErrNoKeyFunc)
	assert.Equal(t, "Missing Required Argument [KeyFunc]", err.Error())
}

func TestLifecycle(t *testing.T) {
	h, _ := newHandler(t, Options{})

	rec := do(h, http.MethodPut, "/cache/test", `{"name":"Zul"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, zulTag, rec.Header().Get("ETag"))

	rec = do(h, http.MethodHead, "/cache/test", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, zulTag, rec.Header().Get("ETag"))

	rec = do(h, http.MethodHead, "/cache/test", "", map[string]string{"If-None-Match": zulTag})
	assert.Equal(t, http.StatusNotModified, rec.Code)

	rec = do(h, http.MethodPut, "/cache/test", `{"name":"Odoyle Rules!"}`, map[string]string{"If-None-Match": zulTag})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, odoyleTag, rec.Header().Get("ETag"))

	rec = do(h, http.MethodGet, "/cache/test", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, odoyleTag, rec.Header().Get("ETag"))
	assert.Equal(t, `{"name":"Odoyle Rules!"}`, rec.Body.String())

	rec = do(h, http.MethodGet, "/cache/test", "", map[string]string{"If-None-Match": odoyleTag})
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Equal(t, odoyleTag, rec.Header().Get("ETag"))
	assert.Empty(t, rec.Body.String())

	rec = do(h, http.MethodDelete, "/cache/test", "", map[string]string{"If-None-Match": "wrong"})
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
	assert.Equal(t, "Provided Hash [wrong] doesn't match current hash ["+odoyleTag+"]", rec.Body.String())

	rec = do(h, http.MethodDelete, "/cache/test", "", map[string]string{"If-None-Match": odoyleTag})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestStatusMapping(t *testing.T) {
	h, c := newHandler(t, Options{})
	_, err := c.Save(context.Background(), []byte("v"), "k", "")
	require.NoError(t, err)

	cases := []struct {
		name   string
		method string
		path   string
		hdr    map[string]string
		status int
		body   string
	}{
		{"head missing", http.MethodHead, "/cache/nope", nil, http.StatusNotFound, ""},
		{"restore missing", http.MethodGet, "/cache/nope", nil, http.StatusNotFound, "Cache for [nope] not found"},
		{"remove missing", http.MethodDelete, "/cache/nope", nil, http.StatusNotFound, "Cache for [nope] not found"},
		{"save stale", http.MethodPut, "/cache/k", map[string]string{"If-None-Match": "stale"}, http.StatusPreconditionFailed, ""},
		{"restore stale hash", http.MethodGet, "/cache/k", map[string]string{"If-None-Match": "stale"}, http.StatusOK, "v"},
		{"missing key", http.MethodGet, "/cache/", nil, http.StatusBadRequest, "Missing cache key"},
		{"bad method", http.MethodPatch, "/cache/k", nil, http.StatusMethodNotAllowed, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(h, tc.method, tc.path, "new", tc.hdr)
			assert.Equal(t, tc.status, rec.Code)
			if tc.body != "" {
				assert.Equal(t, tc.body, rec.Body.String())
			}
		})
	}
}

func TestMethodNotAllowedAllowHeader(t *testing.T) {
	h, _ := newHandler(t, Options{})
	rec := do(h, http.MethodPatch, "/cache/k", "", nil)
	assert.Equal(t, "HEAD, GET, PUT, POST, DELETE", rec.Header().Get("Allow"))
}

func TestPostSaves(t *testing.T) {
	h, _ := newHandler(t, Options{})
	rec := do(h, http.MethodPost, "/cache/test", `{"name":"Zul"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, zulTag, rec.Header().Get("ETag"))
}

func TestQuotedConditionalHeader(t *testing.T) {
	h, _ := newHandler(t, Options{})
	do(h, http.MethodPut, "/cache/test", `{"name":"Zul"}`, nil)

	for _, v := range []string{`"` + zulTag + `"`, `W/"` + zulTag + `"`, " " + zulTag + " "} {
		rec := do(h, http.MethodHead, "/cache/test", "", map[string]string{"If-None-Match": v})
		assert.Equal(t, http.StatusNotModified, rec.Code, "header %q", v)
	}
}

func TestCustomHeaders(t *testing.T) {
	h, _ := newHandler(t, Options{CheckHeader: "X-Cache-Hash", ETagHeader: "X-Cache-ETag"})

	rec := do(h, http.MethodPut, "/cache/test", `{"name":"Zul"}`, nil)
	assert.Equal(t, zulTag, rec.Header().Get("X-Cache-ETag"))
	assert.Empty(t, rec.Header().Get("ETag"))

	rec = do(h, http.MethodGet, "/cache/test", "", map[string]string{"X-Cache-Hash": zulTag})
	assert.Equal(t, http.StatusNotModified, rec.Code)

	// the default header is ignored once another is configured
	rec = do(h, http.MethodGet, "/cache/test", "", map[string]string{"If-None-Match": zulTag})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNormalizers(t *testing.T) {
	h, _ := newHandler(t, Options{
		Normalizers: map[string]codec.Normalizer{"application/json": codec.JSON{}},
	})

	rec := do(h, http.MethodPut, "/cache/test", "{ \"name\" : \"Zul\" }", map[string]string{
		"Content-Type": "application/json; charset=utf-8",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, zulTag, rec.Header().Get("ETag"), "whitespace must not change the ETag")

	rec = do(h, http.MethodPut, "/cache/test", "{broken", map[string]string{"Content-Type": "application/json"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// other media types are stored as sent
	rec = do(h, http.MethodPut, "/cache/raw", "{ }", map[string]string{"Content-Type": "text/plain"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(h, http.MethodGet, "/cache/raw", "", nil)
	assert.Equal(t, "{ }", rec.Body.String())
}

func TestBodyLimits(t *testing.T) {
	h, _ := newHandler(t, Options{MaxBodyBytes: 4})
	rec := do(h, http.MethodPut, "/cache/k", "0123456789", nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	h, _ = newHandler(t, Options{DefaultNormalizer: codec.Limit{Max: 4}})
	rec = do(h, http.MethodPut, "/cache/k", "0123456789", nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

// brokenStore fails every call with a backend error.
type brokenStore struct{ mightycache.Store }

var errBackend = errors.New("backend down")

func (brokenStore) Head(context.Context, string) (mightycache.Result, error) {
	return mightycache.Result{}, errBackend
}

func (brokenStore) Save(context.Context, []byte, string, string) (mightycache.Result, error) {
	return mightycache.Result{}, &mightycache.Error{Code: mightycache.CodeUpdateFailed, Key: "k", Err: errBackend}
}

func (brokenStore) Remove(context.Context, string, string) error {
	return &mightycache.Error{Code: mightycache.CodeDeleteFailed, Key: "k", Err: errBackend}
}

type errorLogger struct {
	mightycache.NopLogger
	n int
}

func (l *errorLogger) Error(string, mightycache.Fields) { l.n++ }

func TestServerErrors(t *testing.T) {
	l := &errorLogger{}
	h, err := New(brokenStore{}, Options{KeyFunc: keyFromPath, Logger: l})
	require.NoError(t, err)

	rec := do(h, http.MethodHead, "/cache/k", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = do(h, http.MethodPut, "/cache/k", "x", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to update key [k] - backend down", rec.Body.String())

	rec = do(h, http.MethodDelete, "/cache/k", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to delete key [k] - backend down", rec.Body.String())

	assert.Equal(t, 3, l.n)
}

func TestSetStore(t *testing.T) {
	c, err := mightycache.New(mightycache.Options{Backend: memory.New()})
	require.NoError(t, err)
	s, err := c.Set(context.Background(), "users")
	require.NoError(t, err)

	h, err := New(s, Options{KeyFunc: keyFromPath})
	require.NoError(t, err)
	rec := do(h, http.MethodPut, "/cache/test", `{"name":"Zul"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	ok, err := c.Exists(context.Background(), "test")
	require.NoError(t, err)
	assert.False(t, ok, "set writes must not land in the root namespace")
}
