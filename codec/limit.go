package codec

import (
	"fmt"

	"github.com/unkn0wn-root/gqlcache/record"
)

// Limit wraps another codec to enforce a maximum allowed payload size
// at Decode time. Encode is forwarded to Inner unchanged.
// If MaxDecode <= 0, size limiting is disabled.
//
// Typical use: protect against oversized inputs coming from a shared
// provider such as Redis.
type Limit struct {
	// Inner is the underlying codec being wrapped. It must be set.
	Inner Codec
	// MaxDecode is the maximum permitted payload length in bytes.
	MaxDecode int
}

var _ Codec = Limit{}

func (c Limit) Name() string { return c.Inner.Name() }

func (c Limit) Encode(r *record.Record) ([]byte, error) { return c.Inner.Encode(r) }

func (c Limit) Decode(b []byte) (*record.Record, error) {
	if c.MaxDecode > 0 && len(b) > c.MaxDecode {
		return nil, fmt.Errorf("payload too large: %d > %d", len(b), c.MaxDecode)
	}
	return c.Inner.Decode(b)
}
