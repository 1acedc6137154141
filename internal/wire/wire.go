package wire

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/cespare/xxhash/v2"
)

const (
	version    byte = 1
	kindRecord byte = 1
)

var (
	ErrCorrupt = errors.New("gqlcache: corrupt entry")
	magic4     = [...]byte{'G', 'Q', 'L', 'C'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Envelope is one persisted record: the record key it was stored for, the
// codec that produced the payload, and the payload itself.
type Envelope struct {
	Key     string
	Codec   string
	Payload []byte
}

// Record:
//
//	magic(4) | ver(1) | kind(1=record) | codecLen(u8) | codec(codecLen)
//	keyLen(u16 be) | key(keyLen) | vlen(u32 be) | payload(vlen)
//	sum(u64 be) = xxhash64 of every preceding byte
//
// Storing the key lets readers reject entries filed under the wrong
// storage key; storing the codec name rejects entries written by a store
// configured with another codec.
func EncodeRecord(e Envelope) ([]byte, error) {
	if l := len(e.Codec); l == 0 || l > 0xFF {
		return nil, errors.New("gqlcache: invalid codec name length")
	}
	if l := len(e.Key); l == 0 || l > 0xFFFF {
		return nil, errors.New("gqlcache: invalid record key length")
	}

	var buf bytes.Buffer
	buf.Grow(4 + 1 + 1 + 1 + len(e.Codec) + 2 + len(e.Key) + 4 + len(e.Payload) + 8)

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindRecord)

	buf.WriteByte(byte(len(e.Codec)))
	buf.WriteString(e.Codec)

	var u2 [2]byte
	binary.BigEndian.PutUint16(u2[:], uint16(len(e.Key)))
	buf.Write(u2[:])
	buf.WriteString(e.Key)

	var u4 [4]byte
	binary.BigEndian.PutUint32(u4[:], uint32(len(e.Payload)))
	buf.Write(u4[:])
	buf.Write(e.Payload)

	var u8 [8]byte
	binary.BigEndian.PutUint64(u8[:], xxhash.Sum64(buf.Bytes()))
	buf.Write(u8[:])

	return buf.Bytes(), nil
}

// DecodeRecord parses an envelope. Payload aliases b.
func DecodeRecord(b []byte) (Envelope, error) {
	const hdr = 4 + 1 + 1 + 1
	if len(b) < hdr+8 || !hasMagic(b) || b[4] != version || b[5] != kindRecord {
		return Envelope{}, ErrCorrupt
	}
	body := len(b) - 8
	if xxhash.Sum64(b[:body]) != binary.BigEndian.Uint64(b[body:]) {
		return Envelope{}, ErrCorrupt
	}
	b = b[:body]
	off := 6

	clen := int(b[off])
	off++
	if clen == 0 || clen > len(b)-off {
		return Envelope{}, ErrCorrupt
	}
	codec := string(b[off : off+clen])
	off += clen

	if off+2 > len(b) {
		return Envelope{}, ErrCorrupt
	}
	klen := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	if klen == 0 || klen > len(b)-off {
		return Envelope{}, ErrCorrupt
	}
	key := string(b[off : off+klen])
	off += klen

	if off+4 > len(b) {
		return Envelope{}, ErrCorrupt
	}
	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen != len(b)-off {
		return Envelope{}, ErrCorrupt
	}

	return Envelope{Key: key, Codec: codec, Payload: b[off:]}, nil
}
