package codec

import (
	"bytes"
	"encoding/json"
	"errors"
)

var errInvalidJSON = errors.New("codec: invalid JSON")

type JSONCodec[V any] struct{}

func (JSONCodec[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSONCodec[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}

// JSON validates the body and strips insignificant whitespace. Key order is
// preserved; decode into a map with Canonical(JSONCodec[map[string]any]{}) to
// sort object keys as well.
type JSON struct{}

func (JSON) Normalize(b []byte) ([]byte, error) {
	if !json.Valid(b) {
		return nil, errInvalidJSON
	}
	var buf bytes.Buffer
	buf.Grow(len(b))
	if err := json.Compact(&buf, b); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
