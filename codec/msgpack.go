package codec

import (
	"github.com/vmihailenco/msgpack/v5"

	"github.com/unkn0wn-root/gqlcache/record"
)

// Msgpack is a Codec that serializes records using vmihailenco/msgpack/v5.
// The zero value is ready to use.
type Msgpack struct{}

var _ Codec = Msgpack{}

func (Msgpack) Name() string { return "msgpack" }

func (Msgpack) Encode(r *record.Record) ([]byte, error) {
	return msgpack.Marshal(toWire(r))
}

func (Msgpack) Decode(b []byte) (*record.Record, error) {
	var w wireRecord
	if err := msgpack.Unmarshal(b, &w); err != nil {
		return nil, err
	}
	return fromWire(w)
}
