package mightycache

import (
	"errors"
	"fmt"
)

// Code is the stable, machine-checkable identifier of an Error.
type Code int

const (
	CodeHashMismatch  Code = 0
	CodeUpdateFailed  Code = 1
	CodeCacheNotFound Code = 2
	CodeDeleteFailed  Code = 3
	CodeSetNotDefined Code = 5
	CodeSetDestroyed  Code = 6
)

func (c Code) String() string {
	switch c {
	case CodeHashMismatch:
		return "HashMismatch"
	case CodeUpdateFailed:
		return "UpdateFailed"
	case CodeCacheNotFound:
		return "CacheNotFound"
	case CodeDeleteFailed:
		return "DeleteFailed"
	case CodeSetNotDefined:
		return "SetNotDefined"
	case CodeSetDestroyed:
		return "SetDestroyed"
	default:
		return fmt.Sprintf("Code(%d)", int(c))
	}
}

// Error is returned by cache operations. Compare with errors.Is against the
// Err* sentinels; only the Code takes part in the comparison.
type Error struct {
	Code     Code
	Key      string
	Expected string // HashMismatch: hash supplied by the caller
	Actual   string // HashMismatch: hash currently stored
	Err      error  // UpdateFailed/DeleteFailed: backend error
}

var (
	ErrHashMismatch  = &Error{Code: CodeHashMismatch}
	ErrUpdateFailed  = &Error{Code: CodeUpdateFailed}
	ErrCacheNotFound = &Error{Code: CodeCacheNotFound}
	ErrDeleteFailed  = &Error{Code: CodeDeleteFailed}
	ErrSetNotDefined = &Error{Code: CodeSetNotDefined}
	ErrSetDestroyed  = &Error{Code: CodeSetDestroyed}
)

var (
	ErrNestedSet     = errors.New("cannot call set of a set instance")
	ErrInvalidSetKey = errors.New("mightycache: set key must not be empty")
)

func (e *Error) Error() string {
	switch e.Code {
	case CodeHashMismatch:
		return fmt.Sprintf("Provided Hash [%s] doesn't match current hash [%s]", e.Expected, e.Actual)
	case CodeUpdateFailed:
		return withCause(fmt.Sprintf("Failed to update key [%s]", e.Key), e.Err)
	case CodeCacheNotFound:
		return fmt.Sprintf("Cache for [%s] not found", e.Key)
	case CodeDeleteFailed:
		return withCause(fmt.Sprintf("Failed to delete key [%s]", e.Key), e.Err)
	case CodeSetNotDefined:
		return "Set is not associated with this cache"
	case CodeSetDestroyed:
		return fmt.Sprintf("Set [%s] has been destroyed", e.Key)
	default:
		return withCause(fmt.Sprintf("mightycache: %s [%s]", e.Code, e.Key), e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// CodeOf extracts the Code of err. ok is false when err is not an *Error.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return 0, false
}

func withCause(msg string, err error) string {
	if err == nil {
		return msg
	}
	return msg + " - " + err.Error()
}

func hashMismatch(key, expected, actual string) error {
	return &Error{Code: CodeHashMismatch, Key: key, Expected: expected, Actual: actual}
}

func notFound(key string) error {
	return &Error{Code: CodeCacheNotFound, Key: key}
}

func updateFailed(key string, err error) error {
	return &Error{Code: CodeUpdateFailed, Key: key, Err: err}
}

func deleteFailed(key string, err error) error {
	return &Error{Code: CodeDeleteFailed, Key: key, Err: err}
}
