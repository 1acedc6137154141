package normalize

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/unkn0wn-root/gqlcache/record"
	"github.com/unkn0wn-root/gqlcache/selection"
)

// Reader loads records for Denormalize. A miss is (nil, false, nil).
type Reader interface {
	ReadRecord(ctx context.Context, key string) (*record.Record, bool, error)
}

// ReaderFunc adapts a function to Reader.
type ReaderFunc func(ctx context.Context, key string) (*record.Record, bool, error)

func (f ReaderFunc) ReadRecord(ctx context.Context, key string) (*record.Record, bool, error) {
	return f(ctx, key)
}

// MapReader serves records from a map.
type MapReader map[string]*record.Record

func (m MapReader) ReadRecord(_ context.Context, key string) (*record.Record, bool, error) {
	r, ok := m[key]
	return r, ok, nil
}

// Denormalized is the outcome of Denormalize.
type Denormalized struct {
	Data map[string]any
	// Dependencies are the record keys the read looked up, including keys
	// that turned out to be missing. Sorted.
	Dependencies []string
}

// Denormalize rebuilds response data for sels starting at rootKey.
//
// A reference to a missing record fails the enclosing field; the failure
// climbs to the nearest nullable field, which reads as null, or to the root,
// in which case the error (matching ErrMiss) is returned. A field that was
// never written fails the whole read: its value is unknown, not null.
// Stored values of the wrong shape return an error matching ErrCorrupt.
//
// The returned Denormalized is non-nil even on error so callers can track
// dependencies of failed reads.
func Denormalize(ctx context.Context, r Reader, rootKey, rootType string, sels []selection.Selection, vars map[string]any, fields FieldKeyResolver) (*Denormalized, error) {
	d := &denormalizer{
		ctx:    ctx,
		r:      r,
		vars:   vars,
		fields: fields,
		deps:   make(map[string]struct{}),
	}
	data, err := d.object(rootKey, rootType, sels)
	out := &Denormalized{Dependencies: sortedKeys(d.deps)}
	if err != nil {
		return out, err
	}
	out.Data = data
	return out, nil
}

type denormalizer struct {
	ctx    context.Context
	r      Reader
	vars   map[string]any
	fields FieldKeyResolver
	deps   map[string]struct{}
}

func (d *denormalizer) object(key, static string, sels []selection.Selection) (map[string]any, error) {
	if err := d.ctx.Err(); err != nil {
		return nil, err
	}
	d.deps[key] = struct{}{}
	rec, ok, err := d.r.ReadRecord(d.ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &MissError{Key: key}
	}

	runtime, _ := rec.Typename()
	parentType := runtime
	if parentType == "" {
		parentType = static
	}

	out := make(map[string]any)
	for _, f := range selection.Collect(sels, d.vars, runtime, static) {
		fk := selection.FieldKey(f, d.vars)
		v, found := rec.Get(fk)
		if !found && f.Composite() && d.fields != nil {
			if k, ok := d.fields.ResolveFieldKey(parentType, f.Name, selection.ResolveArguments(f, d.vars)); ok {
				v, found = k.Ref(), true
			}
		}
		if !found && f.Name == record.TypenameField {
			if parentType == "" {
				out[f.ResponseName()] = nil
			} else {
				out[f.ResponseName()] = parentType
			}
			continue
		}
		if !found {
			return nil, &MissError{Key: key, Field: fk}
		}

		val, err := d.value(key, fk, f, v)
		if err != nil {
			if !f.NonNull && isRecordMiss(err) {
				out[f.ResponseName()] = nil
				continue
			}
			return nil, err
		}
		out[f.ResponseName()] = val
	}
	return out, nil
}

func (d *denormalizer) value(key, fk string, f *selection.Field, v record.Value) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	if !f.Composite() {
		if v.IsRef() || len(v.References(nil)) > 0 {
			return nil, &CorruptionError{Key: key, Field: fk, Reason: "reference stored for a scalar field"}
		}
		return v.Interface(), nil
	}

	switch v.Kind() {
	case record.KindReference:
		ref, _ := v.RefKey()
		return d.object(ref, f.Type, f.Selections)
	case record.KindList:
		elems := v.Elems()
		out := make([]any, len(elems))
		for i, e := range elems {
			ev, err := d.value(key, fk, f, e)
			if err != nil {
				return nil, err
			}
			out[i] = ev
		}
		return out, nil
	default:
		return nil, &CorruptionError{Key: key, Field: fk, Reason: fmt.Sprintf("scalar %s stored for an object field", v.Raw())}
	}
}

func isRecordMiss(err error) bool {
	var me *MissError
	return errors.As(err, &me) && me.Field == ""
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
