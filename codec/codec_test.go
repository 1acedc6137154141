package codec

import (
	"bytes"
	"strings"
	"testing"

	"github.com/unkn0wn-root/gqlcache/record"
)

func sample() *record.Record {
	r := record.New("2001")
	r.Set("__typename", record.String("Droid"))
	r.Set("name", record.String("R2-D2"))
	r.Set("height", record.Float(0.96))
	r.Set("rank", record.Int(-3))
	r.Set("nickname", record.Null())
	r.Set("tags", record.List())
	r.Set("friends", record.List(record.Ref("1000"), record.Null(), record.Ref("1002")))
	r.Set("grid", record.List(record.List(record.Int(1)), record.List()))
	meta, _ := record.RawScalar([]byte(`{"z":1,"a":[true,null]}`))
	r.Set("meta", meta)
	r.Set("best", record.Ref("1000"))
	return r
}

func allCodecs() []Codec {
	return []Codec{JSON{}, MustCBOR(), Msgpack{}, Protobuf{}, Limit{Inner: JSON{}, MaxDecode: 1 << 20}}
}

// TestRoundTrip checks every codec preserves kinds, order and values.
func TestRoundTrip(t *testing.T) {
	in := sample()
	for _, c := range allCodecs() {
		b, err := c.Encode(in)
		if err != nil {
			t.Fatalf("%s: encode: %v", c.Name(), err)
		}
		out, err := c.Decode(b)
		if err != nil {
			t.Fatalf("%s: decode: %v", c.Name(), err)
		}
		if !in.Equal(out) {
			t.Fatalf("%s: round trip mismatch\nin:  %v\nout: %v", c.Name(), in.SortedFields(), out.SortedFields())
		}
		if strings.Join(in.Fields(), ",") != strings.Join(out.Fields(), ",") {
			t.Fatalf("%s: field order lost: %v", c.Name(), out.Fields())
		}
		tags, _ := out.Get("tags")
		nick, _ := out.Get("nickname")
		if !tags.IsList() || len(tags.Elems()) != 0 || !nick.IsNull() {
			t.Fatalf("%s: empty list / null not distinct", c.Name())
		}
	}
}

func TestDeterministic(t *testing.T) {
	for _, c := range []Codec{MustCBOR(), Protobuf{}, JSON{}} {
		a, _ := c.Encode(sample())
		b, _ := c.Encode(sample())
		if !bytes.Equal(a, b) {
			t.Fatalf("%s: encoding not stable", c.Name())
		}
	}
}

func TestDecodeGarbage(t *testing.T) {
	for _, c := range allCodecs() {
		if _, err := c.Decode([]byte{0xff, 0x00, 0x13}); err == nil {
			t.Fatalf("%s: garbage decoded", c.Name())
		}
	}
}

func TestDecodeRejectsBadTag(t *testing.T) {
	if _, err := (JSON{}).Decode([]byte(`{"k":"x","f":[{"n":"a","v":{"t":9}}]}`)); err == nil {
		t.Fatalf("unknown tag accepted")
	}
	if _, err := (JSON{}).Decode([]byte(`{"k":"","f":[]}`)); err == nil {
		t.Fatalf("empty key accepted")
	}
}

func TestLimitRejectsOversized(t *testing.T) {
	c := Limit{Inner: JSON{}, MaxDecode: 8}
	b, _ := c.Encode(sample())
	if _, err := c.Decode(b); err == nil {
		t.Fatalf("oversized payload decoded")
	}
	if c.Name() != "json" {
		t.Fatalf("name=%q", c.Name())
	}
}

func TestByName(t *testing.T) {
	for _, n := range []string{"", "json", "cbor", "msgpack", "protobuf"} {
		c, err := ByName(n)
		if err != nil || c == nil {
			t.Fatalf("ByName(%q): %v", n, err)
		}
	}
	if _, err := ByName("xml"); err == nil {
		t.Fatalf("unknown codec accepted")
	}
}
