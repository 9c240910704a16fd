// Package codec converts cached values to and from the payload bytes framed by
// the cache client. Pick one per cache; all Codecs are safe for concurrent use.
package codec

import "fmt"

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Names lists the formats accepted by ByName.
var Names = []string{"json", "msgpack", "cbor"}

// ByName returns the struct codec registered under name.
func ByName[V any](name string) (Codec[V], error) {
	switch name {
	case "", "json":
		return JSON[V]{}, nil
	case "msgpack":
		return Msgpack[V]{}, nil
	case "cbor":
		return NewCBOR[V](true)
	default:
		return nil, fmt.Errorf("codec: unknown format %q (want one of %v)", name, Names)
	}
}

func wrap(format, op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("codec: %s %s: %w", format, op, err)
}
