// Package promhooks counts cache events as Prometheus metrics.
package promhooks

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/mightycache"
)

// Options configure metric naming and registration.
type Options struct {
	Namespace string // defaults to "mightycache"
	Subsystem string
	// Registerer receives the collectors. Defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
}

// Hooks implements mightycache.Hooks with counters.
type Hooks struct {
	mismatch *prometheus.CounterVec
	backend  *prometheus.CounterVec
	sets     *prometheus.CounterVec
}

var _ mightycache.Hooks = (*Hooks)(nil)

// New builds the counters and registers them.
func New(opts Options) (*Hooks, error) {
	if opts.Namespace == "" {
		opts.Namespace = "mightycache"
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}

	h := &Hooks{
		mismatch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Subsystem: opts.Subsystem,
			Name:      "hash_mismatch_total",
			Help:      "Conditional writes rejected because the stored hash differed.",
		}, []string{"ns"}),
		backend: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Subsystem: opts.Subsystem,
			Name:      "backend_errors_total",
			Help:      "Backend operations that failed.",
		}, []string{"ns", "op"}),
		sets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Subsystem: opts.Subsystem,
			Name:      "set_events_total",
			Help:      "Set lifecycle transitions.",
		}, []string{"event"}),
	}

	for _, c := range []prometheus.Collector{h.mismatch, h.backend, h.sets} {
		if err := opts.Registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// Set keys are unbounded, so only the root/set split is kept as a label.
func nsLabel(ns string) string {
	if ns == "" {
		return "root"
	}
	return "set"
}

func (h *Hooks) HashMismatch(ns, _, _, _ string) {
	h.mismatch.WithLabelValues(nsLabel(ns)).Inc()
}

func (h *Hooks) BackendError(ns, op, _ string, _ error) {
	h.backend.WithLabelValues(nsLabel(ns), op).Inc()
}

func (h *Hooks) SetProvisioned(string)   { h.sets.WithLabelValues("provisioned").Inc() }
func (h *Hooks) SetFailed(string, error) { h.sets.WithLabelValues("failed").Inc() }
func (h *Hooks) SetDestroyed(string)     { h.sets.WithLabelValues("destroyed").Inc() }
