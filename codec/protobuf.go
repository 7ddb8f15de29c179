package codec

import "google.golang.org/protobuf/proto"

// Protobuf encodes messages with deterministic map ordering.
type Protobuf[T proto.Message] struct {
	new func() T // constructor for a concrete message (e.g., func() *mypb.User { return &mypb.User{} })
}

func NewProtobuf[T proto.Message](ctor func() T) Protobuf[T] {
	return Protobuf[T]{new: ctor}
}

func (c Protobuf[T]) Encode(v T) ([]byte, error) {
	return proto.MarshalOptions{Deterministic: true}.Marshal(v)
}

func (c Protobuf[T]) Decode(b []byte) (T, error) {
	m := c.new()
	err := proto.Unmarshal(b, m)
	return m, err
}

// ProtobufNormalizer validates the body as a T and re-encodes it
// deterministically. Unknown fields are kept.
func ProtobufNormalizer[T proto.Message](ctor func() T) Normalizer {
	return Canonical(NewProtobuf(ctor))
}
