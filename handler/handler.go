// Package handler maps mightycache operations onto HTTP conditional requests.
//
// The current ETag travels in the ETag response header; the caller's last
// known ETag is read from If-None-Match (both configurable). Save and Remove
// use that header as the expected hash, Head and Restore as the "I already
// have this version" hash.
package handler

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/unkn0wn-root/mightycache"
	"github.com/unkn0wn-root/mightycache/codec"
)

const (
	DefaultCheckHeader = "If-None-Match"
	DefaultETagHeader  = "ETag"
)

var (
	ErrNoStore   = errors.New("A Cache Implementation is required")  //nolint:stylecheck,revive // established message
	ErrNoKeyFunc = errors.New("Missing Required Argument [KeyFunc]") //nolint:stylecheck,revive
)

// KeyFunc maps a request to the cache key it addresses.
type KeyFunc func(*http.Request) string

type Options struct {
	KeyFunc KeyFunc // required

	CheckHeader string // default DefaultCheckHeader
	ETagHeader  string // default DefaultETagHeader

	// Normalizers are picked by the media type of the Save request's
	// Content-Type. Bodies of other types go through DefaultNormalizer.
	Normalizers       map[string]codec.Normalizer
	DefaultNormalizer codec.Normalizer // default codec.Raw

	MaxBodyBytes int64 // 0 = unlimited

	Logger mightycache.Logger
}

// Handler serves one Store. It holds no per-request state.
type Handler struct {
	store       mightycache.Store
	keyFunc     KeyFunc
	checkHeader string
	etagHeader  string
	normalizers map[string]codec.Normalizer
	fallback    codec.Normalizer
	maxBody     int64
	log         mightycache.Logger
}

func New(store mightycache.Store, opts Options) (*Handler, error) {
	if store == nil {
		return nil, ErrNoStore
	}
	if opts.KeyFunc == nil {
		return nil, ErrNoKeyFunc
	}
	h := &Handler{
		store:       store,
		keyFunc:     opts.KeyFunc,
		checkHeader: coalesce(opts.CheckHeader, DefaultCheckHeader),
		etagHeader:  coalesce(opts.ETagHeader, DefaultETagHeader),
		normalizers: make(map[string]codec.Normalizer, len(opts.Normalizers)),
		fallback:    opts.DefaultNormalizer,
		maxBody:     opts.MaxBodyBytes,
		log:         opts.Logger,
	}
	if h.fallback == nil {
		h.fallback = codec.Raw{}
	}
	if h.log == nil {
		h.log = mightycache.NopLogger{}
	}
	for mt, n := range opts.Normalizers {
		h.normalizers[strings.ToLower(mt)] = n
	}
	return h, nil
}

// ServeHTTP dispatches by method: HEAD→Head, GET→Restore, PUT/POST→Save,
// DELETE→Remove.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodHead:
		h.Head(w, r)
	case http.MethodGet:
		h.Restore(w, r)
	case http.MethodPut, http.MethodPost:
		h.Save(w, r)
	case http.MethodDelete:
		h.Remove(w, r)
	default:
		w.Header().Set("Allow", "HEAD, GET, PUT, POST, DELETE")
		h.fail(w, r, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	}
}

// Head responds 200 when the caller's hash is stale or absent, 304 when it
// is current.
func (h *Handler) Head(w http.ResponseWriter, r *http.Request) {
	key, ok := h.key(w, r)
	if !ok {
		return
	}
	res, err := h.store.Head(r.Context(), key)
	if err != nil {
		h.respondErr(w, r, "head", key, err)
		return
	}
	w.Header().Set(h.etagHeader, res.ETag)
	if h.conditional(r) == res.ETag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Save stores the (normalized) request body under the conditional header's
// hash.
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	key, ok := h.key(w, r)
	if !ok {
		return
	}
	body, status, err := h.body(w, r)
	if err != nil {
		h.fail(w, r, status, err.Error())
		return
	}
	res, err := h.store.Save(r.Context(), body, key, h.conditional(r))
	if err != nil {
		h.respondErr(w, r, "save", key, err)
		return
	}
	w.Header().Set(h.etagHeader, res.ETag)
	w.WriteHeader(http.StatusOK)
}

// Restore writes the entry, or 304 with only the ETag header when the
// caller already holds the current version.
func (h *Handler) Restore(w http.ResponseWriter, r *http.Request) {
	key, ok := h.key(w, r)
	if !ok {
		return
	}
	e, err := h.store.Restore(r.Context(), key, h.conditional(r))
	if err != nil {
		h.respondErr(w, r, "restore", key, err)
		return
	}
	w.Header().Set(h.etagHeader, e.ETag)
	if e.NotModified {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(e.Body)
}

func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	key, ok := h.key(w, r)
	if !ok {
		return
	}
	if err := h.store.Remove(r.Context(), key, h.conditional(r)); err != nil {
		h.respondErr(w, r, "remove", key, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) key(w http.ResponseWriter, r *http.Request) (string, bool) {
	key := h.keyFunc(r)
	if key == "" {
		h.fail(w, r, http.StatusBadRequest, "Missing cache key")
		return "", false
	}
	return key, true
}

// conditional reads the caller's hash, accepting quoted and weak forms.
func (h *Handler) conditional(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get(h.checkHeader))
	v = strings.TrimPrefix(v, "W/")
	return strings.Trim(v, `"`)
}

func (h *Handler) body(w http.ResponseWriter, r *http.Request) ([]byte, int, error) {
	rd := r.Body
	if h.maxBody > 0 {
		rd = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	raw, err := io.ReadAll(rd)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, http.StatusRequestEntityTooLarge, err
		}
		return nil, http.StatusBadRequest, err
	}

	body, err := h.normalizer(r).Normalize(raw)
	if err != nil {
		if errors.Is(err, codec.ErrTooLarge) {
			return nil, http.StatusRequestEntityTooLarge, err
		}
		return nil, http.StatusBadRequest, err
	}
	return body, 0, nil
}

func (h *Handler) normalizer(r *http.Request) codec.Normalizer {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return h.fallback
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return h.fallback
	}
	if n, ok := h.normalizers[mt]; ok {
		return n
	}
	return h.fallback
}

// respondErr maps a cache error onto a status and writes its message.
func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, op, key string, err error) {
	status := statusOf(op, err)
	if status >= http.StatusInternalServerError {
		h.log.Error("cache "+op+" failed", mightycache.Fields{
			"key": key, "method": r.Method, "path": r.URL.Path, "err": err,
		})
	}
	h.fail(w, r, status, err.Error())
}

func statusOf(op string, err error) int {
	code, ok := mightycache.CodeOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch code {
	case mightycache.CodeCacheNotFound:
		return http.StatusNotFound
	case mightycache.CodeHashMismatch:
		if op == "save" || op == "remove" {
			return http.StatusPreconditionFailed
		}
	}
	return http.StatusInternalServerError
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if r.Method != http.MethodHead {
		_, _ = io.WriteString(w, msg)
	}
}

func coalesce(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
