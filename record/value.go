package record

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Kind tags the shape carried by a Value.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindScalar
	KindReference
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindReference:
		return "reference"
	case KindList:
		return "list"
	default:
		return "invalid"
	}
}

// Value is a field value stored in a Record. It is one of:
//   - a scalar, held as canonical JSON text (null, bool, number, string or a
//     JSON-shaped custom scalar),
//   - a reference to another record's key,
//   - an ordered list of values (lists may nest).
//
// The zero Value is invalid and never stored.
type Value struct {
	kind Kind
	raw  string // scalar: canonical JSON; reference: target key
	list []Value
}

const rawNull = "null"

// Null returns the explicit null scalar.
func Null() Value { return Value{kind: KindScalar, raw: rawNull} }

// String returns a string scalar.
func String(s string) Value {
	b, _ := json.MarshalNoEscape(s)
	return Value{kind: KindScalar, raw: string(b)}
}

func Int(i int64) Value { return Value{kind: KindScalar, raw: strconv.FormatInt(i, 10)} }

func Bool(b bool) Value { return Value{kind: KindScalar, raw: strconv.FormatBool(b)} }

// Float returns a number scalar. NaN and infinities have no JSON form and
// are stored as null.
func Float(f float64) Value {
	b, err := json.Marshal(f)
	if err != nil {
		return Null()
	}
	return Value{kind: KindScalar, raw: string(b)}
}

// Scalar converts any JSON-marshalable Go value into a scalar. Maps are
// encoded with sorted keys so equal custom scalars compare equal.
func Scalar(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		if t.kind != KindScalar {
			return Value{}, fmt.Errorf("record: %s is not a scalar", t.kind)
		}
		return t, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case json.RawMessage:
		return RawScalar(t)
	}
	b, err := json.MarshalNoEscape(v)
	if err != nil {
		return Value{}, fmt.Errorf("record: scalar encode: %w", err)
	}
	return RawScalar(b)
}

// RawScalar wraps JSON text as a scalar after canonicalizing it
// (compact, sorted object keys, number literals preserved).
func RawScalar(b []byte) (Value, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return Value{}, fmt.Errorf("record: empty scalar")
	}
	switch b[0] {
	case '{', '[':
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return Value{}, fmt.Errorf("record: scalar decode: %w", err)
		}
		out, err := json.MarshalNoEscape(v)
		if err != nil {
			return Value{}, fmt.Errorf("record: scalar encode: %w", err)
		}
		return Value{kind: KindScalar, raw: string(out)}, nil
	default:
		if !json.Valid(b) {
			return Value{}, fmt.Errorf("record: invalid scalar %q", b)
		}
		return Value{kind: KindScalar, raw: string(b)}, nil
	}
}

// Ref returns a reference to the record stored under key.
func Ref(key string) Value { return Value{kind: KindReference, raw: key} }

// List returns a list value. A nil argument list yields an empty list.
func List(vs ...Value) Value {
	out := make([]Value, len(vs))
	copy(out, vs)
	return Value{kind: KindList, list: out}
}

func (v Value) Kind() Kind     { return v.kind }
func (v Value) Valid() bool    { return v.kind != KindInvalid }
func (v Value) IsNull() bool   { return v.kind == KindScalar && v.raw == rawNull }
func (v Value) IsRef() bool    { return v.kind == KindReference }
func (v Value) IsList() bool   { return v.kind == KindList }
func (v Value) IsScalar() bool { return v.kind == KindScalar }

// Raw returns the canonical JSON text of a scalar; empty for other kinds.
func (v Value) Raw() string {
	if v.kind != KindScalar {
		return ""
	}
	return v.raw
}

// RefKey returns the referenced key and true for references.
func (v Value) RefKey() (string, bool) {
	if v.kind != KindReference {
		return "", false
	}
	return v.raw, true
}

// Elems returns the list elements. The slice must not be modified.
func (v Value) Elems() []Value {
	if v.kind != KindList {
		return nil
	}
	return v.list
}

// Interface decodes a scalar into plain Go data: nil, bool, string, int64
// (integral numbers), float64, or map[string]any / []any for JSON-shaped
// custom scalars. Scalar lists decode into []any. References decode to nil.
//
// Numbers are stored as JSON text, so an integral float64 written from
// decoded JSON, e.g. 3.0, reads back as int64(3). Compare numbers by value,
// not with reflect.DeepEqual against the written data.
func (v Value) Interface() any {
	switch v.kind {
	case KindList:
		out := make([]any, len(v.list))
		for i, e := range v.list {
			out[i] = e.Interface()
		}
		return out
	case KindScalar:
		return decodeScalar(v.raw)
	default:
		return nil
	}
}

func decodeScalar(raw string) any {
	switch {
	case raw == rawNull:
		return nil
	case raw == "true":
		return true
	case raw == "false":
		return false
	case raw[0] == '"':
		var s string
		if err := json.Unmarshal([]byte(raw), &s); err == nil {
			return s
		}
		return raw
	case raw[0] == '-' || (raw[0] >= '0' && raw[0] <= '9'):
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
		return raw
	default:
		var out any
		if err := json.Unmarshal([]byte(raw), &out); err != nil {
			return raw
		}
		return out
	}
}

// Equal reports structural equality, recursing into lists.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	if v.kind != KindList {
		return v.raw == o.raw
	}
	if len(v.list) != len(o.list) {
		return false
	}
	for i := range v.list {
		if !v.list[i].Equal(o.list[i]) {
			return false
		}
	}
	return true
}

// References appends every key referenced by v (recursively through lists).
func (v Value) References(dst []string) []string {
	switch v.kind {
	case KindReference:
		return append(dst, v.raw)
	case KindList:
		for _, e := range v.list {
			dst = e.References(dst)
		}
	}
	return dst
}

func (v Value) clone() Value {
	if v.kind != KindList {
		return v
	}
	out := make([]Value, len(v.list))
	for i, e := range v.list {
		out[i] = e.clone()
	}
	return Value{kind: KindList, list: out}
}

// String renders the value the way dumps show it: scalars as JSON,
// references as Ref(key), lists as [a, b].
func (v Value) String() string {
	var sb strings.Builder
	v.write(&sb)
	return sb.String()
}

func (v Value) write(sb *strings.Builder) {
	switch v.kind {
	case KindScalar:
		sb.WriteString(v.raw)
	case KindReference:
		sb.WriteString("Ref(")
		sb.WriteString(v.raw)
		sb.WriteString(")")
	case KindList:
		sb.WriteByte('[')
		for i, e := range v.list {
			if i > 0 {
				sb.WriteString(", ")
			}
			e.write(sb)
		}
		sb.WriteByte(']')
	default:
		sb.WriteString("<invalid>")
	}
}
