// Package codec serializes records for byte-oriented providers.
//
// Every codec maps a record onto the same portable shape (fields in
// insertion order, each value tagged as scalar, reference or list) so that
// an empty list and null stay distinct and references survive the trip.
package codec

import (
	"fmt"

	"github.com/unkn0wn-root/gqlcache/record"
)

// Codec encodes/decodes records to []byte for storage.
type Codec interface {
	// Name identifies the format in persisted envelopes.
	Name() string
	Encode(*record.Record) ([]byte, error)
	Decode([]byte) (*record.Record, error)
}

const (
	tagScalar uint8 = 1
	tagRef    uint8 = 2
	tagList   uint8 = 3
)

type wireValue struct {
	T uint8       `json:"t" msgpack:"t" cbor:"1,keyasint"`
	S string      `json:"s,omitempty" msgpack:"s,omitempty" cbor:"2,keyasint,omitempty"`
	L []wireValue `json:"l,omitempty" msgpack:"l,omitempty" cbor:"3,keyasint,omitempty"`
}

type wireField struct {
	N string    `json:"n" msgpack:"n" cbor:"1,keyasint"`
	V wireValue `json:"v" msgpack:"v" cbor:"2,keyasint"`
}

type wireRecord struct {
	K string      `json:"k" msgpack:"k" cbor:"1,keyasint"`
	F []wireField `json:"f" msgpack:"f" cbor:"2,keyasint"`
}

func toWire(r *record.Record) wireRecord {
	fields := r.Fields()
	out := wireRecord{K: r.Key(), F: make([]wireField, len(fields))}
	for i, f := range fields {
		v, _ := r.Get(f)
		out.F[i] = wireField{N: f, V: toWireValue(v)}
	}
	return out
}

func toWireValue(v record.Value) wireValue {
	switch v.Kind() {
	case record.KindReference:
		k, _ := v.RefKey()
		return wireValue{T: tagRef, S: k}
	case record.KindList:
		elems := v.Elems()
		l := make([]wireValue, len(elems))
		for i, e := range elems {
			l[i] = toWireValue(e)
		}
		return wireValue{T: tagList, L: l}
	default:
		return wireValue{T: tagScalar, S: v.Raw()}
	}
}

func fromWire(w wireRecord) (*record.Record, error) {
	if w.K == "" {
		return nil, fmt.Errorf("codec: record without key")
	}
	r := record.New(w.K)
	for _, f := range w.F {
		v, err := fromWireValue(f.V)
		if err != nil {
			return nil, fmt.Errorf("codec: %s.%s: %w", w.K, f.N, err)
		}
		r.Set(f.N, v)
	}
	return r, nil
}

func fromWireValue(w wireValue) (record.Value, error) {
	switch w.T {
	case tagScalar:
		return record.RawScalar([]byte(w.S))
	case tagRef:
		if w.S == "" {
			return record.Value{}, fmt.Errorf("empty reference")
		}
		return record.Ref(w.S), nil
	case tagList:
		elems := make([]record.Value, len(w.L))
		for i, e := range w.L {
			v, err := fromWireValue(e)
			if err != nil {
				return record.Value{}, err
			}
			elems[i] = v
		}
		return record.List(elems...), nil
	default:
		return record.Value{}, fmt.Errorf("unknown value tag %d", w.T)
	}
}

// ByName returns the codec registered under name: json, cbor, msgpack or
// protobuf. An empty name selects json.
func ByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON{}, nil
	case "cbor":
		return NewCBOR()
	case "msgpack":
		return Msgpack{}, nil
	case "protobuf", "proto":
		return Protobuf{}, nil
	default:
		return nil, fmt.Errorf("codec: unknown codec %q", name)
	}
}
