package mightycache

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The cache calls them on hot paths.
type Hooks interface {
	// A conditional Save or Remove was rejected.
	// ns is "" for the root namespace, the set key otherwise.
	HashMismatch(ns, key, expected, actual string)

	// The backend failed an operation.
	// op ∈ {"save", "restore", "head", "remove", "keys", "exists", "clear", "destroy"}
	BackendError(ns, op, key string, err error)

	// Set lifecycle transitions.
	SetProvisioned(setKey string)
	SetFailed(setKey string, err error)
	SetDestroyed(setKey string)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) HashMismatch(string, string, string, string) {}
func (NopHooks) BackendError(string, string, string, error)  {}
func (NopHooks) SetProvisioned(string)                       {}
func (NopHooks) SetFailed(string, error)                     {}
func (NopHooks) SetDestroyed(string)                         {}
