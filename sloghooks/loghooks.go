// Package sloghooks reports cache events through log/slog.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/mightycache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	MismatchEvery     uint64
	BackendErrorEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	mismatchCtr atomic.Uint64
	backendCtr  atomic.Uint64
}

var _ mightycache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) HashMismatch(ns, key, expected, actual string) {
	if h.l == nil || !sample(h.opts.MismatchEvery, &h.mismatchCtr) {
		return
	}
	h.l.Info("mightycache.hash_mismatch",
		"ns", ns,
		"key", h.redact(key),
		"expected", expected,
		"actual", actual)
}

func (h *Hooks) BackendError(ns, op, key string, err error) {
	if h.l == nil || !sample(h.opts.BackendErrorEvery, &h.backendCtr) {
		return
	}
	h.l.Warn("mightycache.backend_error",
		"ns", ns,
		"op", op,
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) SetProvisioned(setKey string) {
	if h.l == nil {
		return
	}
	h.l.Debug("mightycache.set_provisioned", "set", setKey)
}

func (h *Hooks) SetFailed(setKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("mightycache.set_failed",
		"set", setKey,
		"err", err)
}

func (h *Hooks) SetDestroyed(setKey string) {
	if h.l == nil {
		return
	}
	h.l.Info("mightycache.set_destroyed", "set", setKey)
}
