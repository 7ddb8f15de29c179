// Package codec turns request bodies into the canonical bytes that get stored
// and hashed. Two writers that send the same document in different byte
// layouts (key order, whitespace, map ordering) end up with the same ETag.
package codec

import "errors"

// ErrTooLarge is returned by Limit when the body exceeds its size cap.
var ErrTooLarge = errors.New("codec: payload too large")

// Codec encodes/decodes values V to []byte.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Normalizer rewrites a body into its canonical form.
type Normalizer interface {
	Normalize([]byte) ([]byte, error)
}

// NormalizerFunc adapts a function to Normalizer.
type NormalizerFunc func([]byte) ([]byte, error)

func (f NormalizerFunc) Normalize(b []byte) ([]byte, error) { return f(b) }

// Canonical normalizes by decoding with c and encoding again. It is only as
// canonical as c's encoder: use a deterministic codec.
func Canonical[V any](c Codec[V]) Normalizer {
	return NormalizerFunc(func(b []byte) ([]byte, error) {
		v, err := c.Decode(b)
		if err != nil {
			return nil, err
		}
		return c.Encode(v)
	})
}
