package codec

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/unkn0wn-root/gqlcache/record"
)

// CBOR is a Codec that serializes records using fxamacker/cbor with Core
// Deterministic encoding (RFC 8949), so equal records encode to equal bytes.
// The zero value is NOT ready to use. Construct with NewCBOR or MustCBOR.
type CBOR struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var _ Codec = CBOR{}

func NewCBOR() (CBOR, error) {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return CBOR{}, err
	}
	dm, err := (cbor.DecOptions{}).DecMode()
	if err != nil {
		return CBOR{}, err
	}
	return CBOR{enc: em, dec: dm}, nil
}

// MustCBOR is like NewCBOR but panics on error.
// Handy for package-level variables in tests.
func MustCBOR() CBOR {
	c, err := NewCBOR()
	if err != nil {
		panic(err)
	}
	return c
}

func (CBOR) Name() string { return "cbor" }

func (c CBOR) Encode(r *record.Record) ([]byte, error) {
	return c.enc.Marshal(toWire(r))
}

func (c CBOR) Decode(b []byte) (*record.Record, error) {
	var w wireRecord
	if err := c.dec.Unmarshal(b, &w); err != nil {
		return nil, err
	}
	return fromWire(w)
}
