package codec

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/unkn0wn-root/gqlcache/record"
)

// Protobuf encodes records as a google.protobuf.Struct with deterministic
// marshaling:
//
//	{k: "<key>", f: [[name, value], ...]}
//
// where a value is {t: tag, s: text} or {t: 3, l: [values...]}.
// The zero value is ready to use.
type Protobuf struct{}

var _ Codec = Protobuf{}

func (Protobuf) Name() string { return "protobuf" }

func (Protobuf) Encode(r *record.Record) ([]byte, error) {
	w := toWire(r)
	fields := make([]*structpb.Value, len(w.F))
	for i, f := range w.F {
		fields[i] = structpb.NewListValue(&structpb.ListValue{Values: []*structpb.Value{
			structpb.NewStringValue(f.N),
			protoValue(f.V),
		}})
	}
	msg := &structpb.Struct{Fields: map[string]*structpb.Value{
		"k": structpb.NewStringValue(w.K),
		"f": structpb.NewListValue(&structpb.ListValue{Values: fields}),
	}}
	return proto.MarshalOptions{Deterministic: true}.Marshal(msg)
}

func protoValue(v wireValue) *structpb.Value {
	fields := map[string]*structpb.Value{"t": structpb.NewNumberValue(float64(v.T))}
	if v.T == tagList {
		l := make([]*structpb.Value, len(v.L))
		for i, e := range v.L {
			l[i] = protoValue(e)
		}
		fields["l"] = structpb.NewListValue(&structpb.ListValue{Values: l})
	} else {
		fields["s"] = structpb.NewStringValue(v.S)
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: fields})
}

func (Protobuf) Decode(b []byte) (*record.Record, error) {
	var msg structpb.Struct
	if err := proto.Unmarshal(b, &msg); err != nil {
		return nil, err
	}
	w := wireRecord{K: msg.GetFields()["k"].GetStringValue()}
	for _, fv := range msg.GetFields()["f"].GetListValue().GetValues() {
		pair := fv.GetListValue().GetValues()
		if len(pair) != 2 {
			return nil, fmt.Errorf("codec: malformed field entry")
		}
		v, err := wireFromProto(pair[1])
		if err != nil {
			return nil, err
		}
		w.F = append(w.F, wireField{N: pair[0].GetStringValue(), V: v})
	}
	return fromWire(w)
}

func wireFromProto(pv *structpb.Value) (wireValue, error) {
	s := pv.GetStructValue()
	if s == nil {
		return wireValue{}, fmt.Errorf("codec: value is not a struct")
	}
	f := s.GetFields()
	out := wireValue{T: uint8(f["t"].GetNumberValue()), S: f["s"].GetStringValue()}
	for _, e := range f["l"].GetListValue().GetValues() {
		v, err := wireFromProto(e)
		if err != nil {
			return wireValue{}, err
		}
		out.L = append(out.L, v)
	}
	return out, nil
}
