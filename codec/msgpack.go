package codec

import "github.com/vmihailenco/msgpack/v5"

// Msgpack is a compact binary codec; fields follow `msgpack:"name"` tags.
type Msgpack[V any] struct{}

var _ Codec[struct{}] = Msgpack[struct{}]{}

func (Msgpack[V]) Encode(v V) ([]byte, error) {
	b, err := msgpack.Marshal(v)
	return b, wrap("msgpack", "encode", err)
}

func (Msgpack[V]) Decode(b []byte) (V, error) {
	var v V
	err := msgpack.Unmarshal(b, &v)
	return v, wrap("msgpack", "decode", err)
}
