package codec

import (
	"github.com/fxamacker/cbor/v2"
)

// CBOR encodes values in RFC 8949 Core Deterministic form, so equal values
// always produce equal bytes (and equal ETags). Construct with NewCBOR or
// MustCBOR; the zero value has no modes.
type CBOR[V any] struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var _ Codec[struct{}] = CBOR[struct{}]{}

// CBOROptions tune decoding of untrusted request bodies.
type CBOROptions struct {
	MaxNestedLevels int // 0 = library default (32)
	MaxArrayLen     int // 0 = library default
	MaxMapPairs     int // 0 = library default
}

func NewCBOR[V any](opts CBOROptions) (CBOR[V], error) {
	eo := cbor.CoreDetEncOptions()
	eo.Time = cbor.TimeRFC3339Nano

	em, err := eo.EncMode()
	if err != nil {
		return CBOR[V]{}, err
	}
	// duplicate keys would make two different documents collapse into one
	dm, err := cbor.DecOptions{
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
		MaxNestedLevels:  opts.MaxNestedLevels,
		MaxArrayElements: opts.MaxArrayLen,
		MaxMapPairs:      opts.MaxMapPairs,
	}.DecMode()
	if err != nil {
		return CBOR[V]{}, err
	}
	return CBOR[V]{enc: em, dec: dm}, nil
}

// MustCBOR is NewCBOR for package-level variables; it panics on bad options.
func MustCBOR[V any](opts CBOROptions) CBOR[V] {
	c, err := NewCBOR[V](opts)
	if err != nil {
		panic(err)
	}
	return c
}

func (c CBOR[V]) Encode(v V) ([]byte, error) { return c.enc.Marshal(v) }

func (c CBOR[V]) Decode(b []byte) (V, error) {
	var v V
	err := c.dec.Unmarshal(b, &v)
	return v, err
}

// CBORNormalizer re-encodes any CBOR document in Core Deterministic form.
func CBORNormalizer() Normalizer {
	return Canonical(MustCBOR[any](CBOROptions{}))
}
