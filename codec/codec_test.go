package codec

import (
	"strings"
	"testing"
	"time"

	"google.golang.org/protobuf/types/known/wrapperspb"
)

type resource struct {
	ID    int64     `json:"id" msgpack:"id" cbor:"id"`
	Name  string    `json:"name" msgpack:"name" cbor:"name"`
	Stock int       `json:"stock" msgpack:"stock" cbor:"stock"`
	Begin time.Time `json:"begin" msgpack:"begin" cbor:"begin"`
}

func sample() resource {
	return resource{ID: 7, Name: "voucher", Stock: 100, Begin: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func roundTrip[V any](t *testing.T, name string, c Codec[V], v V, eq func(a, b V) bool) {
	t.Helper()
	b, err := c.Encode(v)
	if err != nil {
		t.Fatalf("%s encode: %v", name, err)
	}
	got, err := c.Decode(b)
	if err != nil {
		t.Fatalf("%s decode: %v", name, err)
	}
	if !eq(got, v) {
		t.Fatalf("%s mismatch: got %+v want %+v", name, got, v)
	}
}

func sameResource(a, b resource) bool {
	return a.ID == b.ID && a.Name == b.Name && a.Stock == b.Stock && a.Begin.Equal(b.Begin)
}

func TestStructCodecs(t *testing.T) {
	roundTrip[resource](t, "json", JSON[resource]{}, sample(), sameResource)
	roundTrip[resource](t, "msgpack", Msgpack[resource]{}, sample(), sameResource)
	roundTrip[resource](t, "cbor", MustCBOR[resource](false), sample(), sameResource)
	roundTrip[resource](t, "cbor-det", MustCBOR[resource](true), sample(), sameResource)
}

func TestCBORDeterministicIsStable(t *testing.T) {
	c := MustCBOR[map[string]int](true)
	m := map[string]int{"b": 2, "a": 1, "c": 3}
	first, err := c.Encode(m)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		again, _ := c.Encode(m)
		if string(again) != string(first) {
			t.Fatalf("deterministic encoding changed between calls")
		}
	}
}

func TestProtobuf(t *testing.T) {
	c := NewProtobuf(func() *wrapperspb.StringValue { return &wrapperspb.StringValue{} })
	roundTrip[*wrapperspb.StringValue](t, "protobuf", c, wrapperspb.String("hello"),
		func(a, b *wrapperspb.StringValue) bool { return a.GetValue() == b.GetValue() })
}

func TestRawCodecs(t *testing.T) {
	roundTrip[string](t, "string", String{}, "plain", func(a, b string) bool { return a == b })
	roundTrip[[]byte](t, "bytes", Bytes{}, []byte{1, 2, 3},
		func(a, b []byte) bool { return string(a) == string(b) })
}

func TestLimitRejectsOversized(t *testing.T) {
	c := Limit[string]{Inner: String{}, MaxDecode: 4}
	if _, err := c.Decode([]byte("12345")); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Fatalf("expected size error, got %v", err)
	}
	if v, err := c.Decode([]byte("1234")); err != nil || v != "1234" {
		t.Fatalf("payload at limit should decode, v=%q err=%v", v, err)
	}
	unlimited := Limit[string]{Inner: String{}}
	if _, err := unlimited.Decode([]byte(strings.Repeat("x", 1<<16))); err != nil {
		t.Fatalf("MaxDecode<=0 disables the limit, got %v", err)
	}
}

func TestByName(t *testing.T) {
	for _, name := range append([]string{""}, Names...) {
		c, err := ByName[resource](name)
		if err != nil {
			t.Fatalf("%q: %v", name, err)
		}
		roundTrip[resource](t, name, c, sample(), sameResource)
	}
	if _, err := ByName[resource]("xml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestDecodeErrorsNameTheFormat(t *testing.T) {
	garbage := []byte{0xff, 0x00, 0x13}
	cases := map[string]Codec[resource]{
		"json":    JSON[resource]{},
		"msgpack": Msgpack[resource]{},
		"cbor":    MustCBOR[resource](true),
	}
	for name, c := range cases {
		_, err := c.Decode(garbage)
		if err == nil || !strings.Contains(err.Error(), "codec: "+name+" decode") {
			t.Fatalf("%s: got %v", name, err)
		}
	}
}
