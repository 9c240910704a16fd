package codec

import "fmt"

// Limit refuses to decode payloads larger than MaxDecode bytes, guarding
// against oversized entries written into a shared store by something other
// than this cache. MaxDecode <= 0 disables the check.
type Limit[V any] struct {
	Inner     Codec[V]
	MaxDecode int
}

func (c Limit[V]) Encode(v V) ([]byte, error) { return c.Inner.Encode(v) }

func (c Limit[V]) Decode(b []byte) (V, error) {
	if c.MaxDecode > 0 && len(b) > c.MaxDecode {
		var zero V
		return zero, fmt.Errorf("codec: payload too large: %d > %d bytes", len(b), c.MaxDecode)
	}
	return c.Inner.Decode(b)
}
