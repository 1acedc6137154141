package codec

import (
	"github.com/goccy/go-json"

	"github.com/unkn0wn-root/gqlcache/record"
)

// JSON is a Codec backed by goccy/go-json. The zero value is ready to use.
type JSON struct{}

var _ Codec = JSON{}

func (JSON) Name() string { return "json" }

func (JSON) Encode(r *record.Record) ([]byte, error) {
	return json.MarshalNoEscape(toWire(r))
}

func (JSON) Decode(b []byte) (*record.Record, error) {
	var w wireRecord
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, err
	}
	return fromWire(w)
}
