package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"
)

const version byte = 1

// Kind tags the shape of a stored cache entry.
type Kind byte

const (
	// KindValue is a plain entry; liveness is the store-native TTL.
	KindValue Kind = 1
	// KindEmpty is the negative marker for a key with no backing record.
	KindEmpty Kind = 2
	// KindLogical wraps a payload with a logical expiry and carries no native TTL.
	KindLogical Kind = 3
)

var (
	ErrCorrupt = errors.New("flashguard: corrupt cache entry")
	magic4     = [...]byte{'F', 'G', 'C', 'E'}
)

const hdr = 4 + 1 + 1

// Entry is a decoded cache entry. ExpireAt is set only for KindLogical.
type Entry struct {
	Kind     Kind
	ExpireAt time.Time
	Payload  []byte
}

// Expired reports whether a logical entry is past its expiry at now.
// Non-logical entries never expire logically.
func (e Entry) Expired(now time.Time) bool {
	return e.Kind == KindLogical && !e.ExpireAt.After(now)
}

func header(buf *bytes.Buffer, k Kind) {
	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(byte(k))
}

// Value: magic(4) | ver(1) | kind(1) | vlen(u32 be) | payload(vlen)
func EncodeValue(payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(hdr + 4 + len(payload))
	header(&buf, KindValue)
	writePayload(&buf, payload)
	return buf.Bytes()
}

// Empty: magic(4) | ver(1) | kind(1)
func EncodeEmpty() []byte {
	var buf bytes.Buffer
	buf.Grow(hdr)
	header(&buf, KindEmpty)
	return buf.Bytes()
}

// Logical: magic(4) | ver(1) | kind(1) | expireAt(i64 be, unix nanos) | vlen(u32 be) | payload(vlen)
func EncodeLogical(expireAt time.Time, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(hdr + 8 + 4 + len(payload))
	header(&buf, KindLogical)

	var u8 [8]byte
	binary.BigEndian.PutUint64(u8[:], uint64(expireAt.UnixNano()))
	buf.Write(u8[:])

	writePayload(&buf, payload)
	return buf.Bytes()
}

func writePayload(buf *bytes.Buffer, payload []byte) {
	var u4 [4]byte
	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])
	buf.Write(payload)
}

// Decode parses any entry kind. Trailing bytes are rejected.
func Decode(b []byte) (Entry, error) {
	if len(b) < hdr || !bytes.Equal(b[:4], magic4[:]) || b[4] != version {
		return Entry{}, ErrCorrupt
	}
	off := hdr
	switch k := Kind(b[5]); k {
	case KindEmpty:
		if len(b) != hdr {
			return Entry{}, ErrCorrupt
		}
		return Entry{Kind: KindEmpty}, nil

	case KindValue:
		p, err := readPayload(b, off)
		if err != nil {
			return Entry{}, err
		}
		return Entry{Kind: KindValue, Payload: p}, nil

	case KindLogical:
		if off+8 > len(b) {
			return Entry{}, ErrCorrupt
		}
		ns := int64(binary.BigEndian.Uint64(b[off : off+8]))
		off += 8
		p, err := readPayload(b, off)
		if err != nil {
			return Entry{}, err
		}
		return Entry{Kind: KindLogical, ExpireAt: time.Unix(0, ns), Payload: p}, nil

	default:
		return Entry{}, ErrCorrupt
	}
}

func readPayload(b []byte, off int) ([]byte, error) {
	if off+4 > len(b) {
		return nil, ErrCorrupt
	}
	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off { // exact fit: no trailing bytes
		return nil, ErrCorrupt
	}
	return b[off : off+vlen], nil
}
